package portal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Page is a single rendered browser tab.
//
// note: fault injection point
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Exists reports whether selector currently matches an element, it does not wait.
	Exists(ctx context.Context, selector string) (bool, error)
	// Fill replaces the value of the input matched by selector.
	Fill(ctx context.Context, selector, value string) error
	// ClickAndWaitNavigation clicks selector and waits for the navigation it triggers.
	ClickAndWaitNavigation(ctx context.Context, selector string) error
	// PressEnterAndWaitNavigation presses enter inside selector and waits for the navigation it triggers.
	PressEnterAndWaitNavigation(ctx context.Context, selector string) error
	// WaitPresent blocks until selector matches an element.
	WaitPresent(ctx context.Context, selector string) error
	URL(ctx context.Context) (string, error)
	// HTML serializes the current (rendered) document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser owns the pages it creates, all pages share cookies.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts a browser.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// ChromeLauncher launches a local chrome/chromium through the devtools protocol.
type ChromeLauncher struct {
	Headless bool
	// ExecPath is optional, chromedp looks up a chrome binary in the usual places when it is empty.
	ExecPath  string
	UserAgent string
}

func (l ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	userAgent := l.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1440, 1024),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	// the browser outlives the request that happened to launch it, so it is not derived from ctx
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	if ctx.Err() != nil {
		cancel()
		return nil, ctx.Err()
	}

	return &chromeBrowser{ctx: browserCtx, cancel: cancel}, nil
}

type chromeBrowser struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	// the first Run on a tab context creates the target, it must not run on a derived context
	// otherwise the tab is closed together with it
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel}, nil
}

func (b *chromeBrowser) Close() error {
	b.cancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// derive creates a context on the tab that honors the deadline and cancellation of the caller's ctx.
func (p *chromePage) derive(ctx context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(p.ctx)
	cancelDeadline := func() {}
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancelDeadline()
		cancel()
	}
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, done := p.derive(ctx)
	defer done()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) runResponse(ctx context.Context, action chromedp.Action) error {
	runCtx, done := p.derive(ctx)
	defer done()
	_, err := chromedp.RunResponse(runCtx, action)
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var exists bool
	err = p.run(ctx, chromedp.Evaluate(
		fmt.Sprintf("document.querySelector(%s) !== null", quoted),
		&exists,
	))
	return exists, err
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	return p.run(
		ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *chromePage) ClickAndWaitNavigation(ctx context.Context, selector string) error {
	return p.runResponse(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) PressEnterAndWaitNavigation(ctx context.Context, selector string) error {
	return p.runResponse(ctx, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
}

func (p *chromePage) WaitPresent(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var location string
	err := p.run(ctx, chromedp.Location(&location))
	return location, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
