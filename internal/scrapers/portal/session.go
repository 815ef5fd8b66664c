package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"stundenplan-backend/internal/components/assert"
	"stundenplan-backend/internal/components/telemetry"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("internal/scrapers/portal")

const (
	report_session_launch           = "session.launch"
	report_session_login            = "session.login"
	report_session_login_navigation = "session.login-navigation"
	report_session_close            = "session.close"
)

// ErrUnauthenticated is returned by operations that need a logged in session.
var ErrUnauthenticated = errors.New("not authenticated: call Login first")

var errSessionClosed = errors.New("session closed")

type SessionOptions struct {
	BaseUrl   string
	LoginPath string
	// AuthenticatedPattern matches urls inside the authenticated area of the portal.
	AuthenticatedPattern *regexp.Regexp
	// PoolSize is the number of pages navigations are spread across, 0 means 1.
	PoolSize          int
	NavigationTimeout time.Duration
	// RatePerSecond limits navigations against the portal, 0 means 2 per second.
	RatePerSecond float64
	Locators      LoginLocators
}

type pagePool struct {
	browser Browser
	pages   chan Page
	all     []Page
}

func (p *pagePool) close() error {
	var errs []error
	for _, page := range p.all {
		err := page.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}
	err := p.browser.Close()
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Session owns the single browser used to talk to the portal and its authentication state.
//
// Pages are handed out exclusively through WithPage, so concurrent navigations queue instead of
// racing on one tab. Login is single-flighted: concurrent callers share one attempt.
type Session struct {
	launcher Launcher
	opts     SessionOptions
	loginUrl string
	limiter  *rate.Limiter
	tel      telemetry.API

	mutex sync.Mutex
	pool  *pagePool
	// generation is bumped by Close, a login started in an older generation may not mark the
	// session authenticated.
	generation uint64
	loggedIn   atomic.Bool
	flight     singleflight.Group
}

func NewSession(launcher Launcher, opts SessionOptions, tel telemetry.API) (*Session, error) {
	assert.NotNil(launcher, "launcher")
	assert.NotNil(tel, "tel")
	assert.NotNil(opts.AuthenticatedPattern, "authenticated pattern")

	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	loginUrl, err := base.Parse(opts.LoginPath)
	if err != nil {
		return nil, fmt.Errorf("parse login path: %w", err)
	}

	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 2
	}
	if len(opts.Locators.Username) == 0 && len(opts.Locators.Password) == 0 {
		opts.Locators = DefaultLoginLocators
	}

	burst := int(opts.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Session{
		launcher: launcher,
		opts:     opts,
		loginUrl: loginUrl.String(),
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		tel:      telemetry.NewScopedAPI("portal_session", tel),
	}, nil
}

// ensurePool lazily launches the browser and its pages, at most one browser is alive at a time.
func (s *Session) ensurePool(ctx context.Context) (*pagePool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.pool != nil {
		return s.pool, nil
	}

	browser, err := s.launcher.Launch(ctx)
	if err != nil {
		s.tel.ReportBroken(report_session_launch, err)
		return nil, err
	}

	pool := &pagePool{
		browser: browser,
		pages:   make(chan Page, s.opts.PoolSize),
	}
	for i := 0; i < s.opts.PoolSize; i++ {
		page, err := browser.NewPage(ctx)
		if err != nil {
			s.tel.ReportBroken(report_session_launch, fmt.Errorf("open page %d: %w", i, err))
			closeErr := pool.close()
			if closeErr != nil {
				s.tel.ReportWarning(report_session_close, closeErr)
			}
			return nil, err
		}
		pool.all = append(pool.all, page)
		pool.pages <- page
	}

	s.pool = pool
	return pool, nil
}

// WithPage runs fn with exclusive access to one page of the pool, it waits for a free page until
// ctx is done.
func (s *Session) WithPage(ctx context.Context, fn func(page Page) error) error {
	pool, err := s.ensurePool(ctx)
	if err != nil {
		return err
	}

	var page Page
	select {
	case page = <-pool.pages:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		pool.pages <- page
	}()

	s.mutex.Lock()
	closed := s.pool != pool
	s.mutex.Unlock()
	if closed {
		return errSessionClosed
	}

	return fn(page)
}

// Navigate loads a url on page, subject to the session's rate limit.
func (s *Session) Navigate(ctx context.Context, page Page, url string) error {
	err := s.limiter.Wait(ctx)
	if err != nil {
		return err
	}
	s.tel.ReportDebug("navigate", url)
	return page.Navigate(ctx, url)
}

// IsAuthenticated reads the authentication state, it does not touch the network.
func (s *Session) IsAuthenticated() bool {
	return s.loggedIn.Load()
}

// IsAuthenticatedUrl reports whether a url lies inside the authenticated area.
func (s *Session) IsAuthenticatedUrl(u string) bool {
	return s.opts.AuthenticatedPattern.MatchString(u)
}

// Invalidate marks the session as logged out, the browser is kept.
func (s *Session) Invalidate() {
	s.loggedIn.Store(false)
}

// Login authenticates against the portal. It returns immediately when already authenticated and
// joins the attempt in flight if there is one. The attempt outlives the caller that started it, a
// caller whose ctx is done stops waiting and gets false. It never returns an error, failures are
// reported and yield false.
func (s *Session) Login(ctx context.Context, username, password string) bool {
	if s.loggedIn.Load() {
		return true
	}
	results := s.flight.DoChan("login", func() (any, error) {
		if s.loggedIn.Load() {
			return true, nil
		}

		s.mutex.Lock()
		generation := s.generation
		s.mutex.Unlock()

		// navigation and submit each get NavigationTimeout
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.opts.NavigationTimeout)
		defer cancel()
		ok := s.login(attemptCtx, username, password)

		s.mutex.Lock()
		defer s.mutex.Unlock()
		if s.generation != generation {
			s.tel.ReportDebug("login finished after close, discarded")
			return false, nil
		}
		s.loggedIn.Store(ok)
		return ok, nil
	})

	select {
	case result := <-results:
		return result.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (s *Session) firstPresent(ctx context.Context, page Page, chain []Locator) (string, bool) {
	for _, locator := range chain {
		exists, err := page.Exists(ctx, locator.Selector)
		if err != nil {
			s.tel.ReportDebug("locator failed", locator.Name, err)
			continue
		}
		if exists {
			return locator.Selector, true
		}
	}
	return "", false
}

func (s *Session) login(ctx context.Context, username, password string) (ok bool) {
	ctx, span := tracer.Start(ctx, "session:login", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.tel.ReportBroken(report_session_login, fmt.Errorf("panic: %v", r))
			span.SetStatus(codes.Error, "panic during login")
			ok = false
		}
	}()

	err := s.WithPage(ctx, func(page Page) error {
		navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
		defer cancel()
		err := s.Navigate(navCtx, page, s.loginUrl)
		if err != nil {
			return fmt.Errorf("navigate to login: %w", err)
		}

		usernameSel, found := s.firstPresent(ctx, page, s.opts.Locators.Username)
		if !found {
			return fmt.Errorf("could not find username field")
		}
		passwordSel, found := s.firstPresent(ctx, page, s.opts.Locators.Password)
		if !found {
			return fmt.Errorf("could not find password field")
		}

		err = page.Fill(ctx, usernameSel, username)
		if err != nil {
			return fmt.Errorf("fill username: %w", err)
		}
		err = page.Fill(ctx, passwordSel, password)
		if err != nil {
			return fmt.Errorf("fill password: %w", err)
		}

		submitCtx, cancelSubmit := context.WithTimeout(ctx, s.opts.NavigationTimeout)
		defer cancelSubmit()
		submitSel, found := s.firstPresent(ctx, page, s.opts.Locators.Submit)
		if found {
			err = page.ClickAndWaitNavigation(submitCtx, submitSel)
		} else {
			err = page.PressEnterAndWaitNavigation(submitCtx, passwordSel)
		}
		if err != nil {
			// the portal may not navigate at all (client side routing), the url decides
			s.tel.ReportWarning(report_session_login_navigation, err)
		}

		current, err := page.URL(ctx)
		if err != nil {
			return fmt.Errorf("read url: %w", err)
		}
		span.SetAttributes(attribute.String("url", current))
		if !s.IsAuthenticatedUrl(current) {
			return fmt.Errorf("login rejected, landed on %s", current)
		}
		return nil
	})
	if err != nil {
		s.tel.ReportBroken(report_session_login, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return false
	}

	s.tel.ReportDebug("logged in")
	return true
}

// Close releases the browser and resets the authentication state, it is safe to call repeatedly.
func (s *Session) Close() error {
	s.mutex.Lock()
	pool := s.pool
	s.pool = nil
	s.generation++
	s.loggedIn.Store(false)
	s.mutex.Unlock()

	if pool == nil {
		return nil
	}

	err := pool.close()
	if err != nil {
		s.tel.ReportWarning(report_session_close, err)
	}
	return err
}
