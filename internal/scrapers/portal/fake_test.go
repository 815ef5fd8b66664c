package portal

import (
	"context"
	"errors"
	"regexp"
	"stundenplan-backend/internal/components/telemetry"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testBaseUrl   = "https://portal.example"
	testLoginUrl  = "https://portal.example/login"
	testLandedUrl = "https://portal.example/today"
)

// fakePortal stands in for chrome, every page it hands out shares its state.
type fakePortal struct {
	mutex sync.Mutex

	launchErr error
	launches  int
	closes    int
	pages     int

	// present holds the selectors that exist on every page.
	present map[string]bool
	// landing is the url a submitted login form navigates to.
	landing   string
	submitErr error
	// release, when set, blocks submissions until it is closed.
	release chan struct{}
	submits atomic.Int32
	enters  atomic.Int32
	filled  map[string]string

	// redirect maps a navigated url to where the page ends up.
	redirect     func(url string) string
	navigations  []string
	tableRenders bool
	document     string
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		present: map[string]bool{
			`input[name="username"]`: true,
			`input[name="password"]`: true,
			`button[type="submit"]`:  true,
		},
		landing:      testLandedUrl,
		filled:       map[string]string{},
		tableRenders: true,
		document:     singleLessonTable,
	}
}

func (f *fakePortal) Launch(ctx context.Context) (Browser, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.launches++
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return fakeBrowser{portal: f}, nil
}

func (f *fakePortal) counts() (launches, closes, pages int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.launches, f.closes, f.pages
}

type fakeBrowser struct {
	portal *fakePortal
}

func (b fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.portal.mutex.Lock()
	defer b.portal.mutex.Unlock()
	b.portal.pages++
	return &fakePage{portal: b.portal, url: "about:blank"}, nil
}

func (b fakeBrowser) Close() error {
	b.portal.mutex.Lock()
	defer b.portal.mutex.Unlock()
	b.portal.closes++
	return nil
}

type fakePage struct {
	portal *fakePortal
	mutex  sync.Mutex
	url    string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.portal.mutex.Lock()
	p.portal.navigations = append(p.portal.navigations, url)
	redirect := p.portal.redirect
	p.portal.mutex.Unlock()

	if redirect != nil {
		url = redirect(url)
	}
	p.mutex.Lock()
	p.url = url
	p.mutex.Unlock()
	return nil
}

func (p *fakePage) Exists(ctx context.Context, selector string) (bool, error) {
	p.portal.mutex.Lock()
	defer p.portal.mutex.Unlock()
	return p.portal.present[selector], nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.portal.mutex.Lock()
	defer p.portal.mutex.Unlock()
	p.portal.filled[selector] = value
	return nil
}

func (p *fakePage) submit(ctx context.Context) error {
	if p.portal.release != nil {
		select {
		case <-p.portal.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.portal.mutex.Lock()
	landing, err := p.portal.landing, p.portal.submitErr
	p.portal.mutex.Unlock()

	p.mutex.Lock()
	p.url = landing
	p.mutex.Unlock()
	return err
}

func (p *fakePage) ClickAndWaitNavigation(ctx context.Context, selector string) error {
	p.portal.submits.Add(1)
	return p.submit(ctx)
}

func (p *fakePage) PressEnterAndWaitNavigation(ctx context.Context, selector string) error {
	p.portal.submits.Add(1)
	p.portal.enters.Add(1)
	return p.submit(ctx)
}

func (p *fakePage) WaitPresent(ctx context.Context, selector string) error {
	p.portal.mutex.Lock()
	renders := p.portal.tableRenders
	p.portal.mutex.Unlock()
	if renders {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.url, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.portal.mutex.Lock()
	defer p.portal.mutex.Unlock()
	return p.portal.document, nil
}

func (p *fakePage) Close() error {
	return nil
}

var errFakeNavigation = errors.New("navigation timeout")

func newTestSession(t testing.TB, portal *fakePortal, poolSize int) (*Session, *telemetry.RecordingAPI) {
	t.Helper()
	rec := telemetry.NewRecordingAPI()
	session, err := NewSession(portal, SessionOptions{
		BaseUrl:              testBaseUrl,
		LoginPath:            "/login",
		AuthenticatedPattern: regexp.MustCompile(`/(today|timetable)`),
		PoolSize:             poolSize,
		NavigationTimeout:    time.Second,
		RatePerSecond:        1000,
	}, rec)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		session.Close()
	})
	return session, rec
}
