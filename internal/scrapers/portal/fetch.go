package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"stundenplan-backend/internal/components/assert"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/components/telemetry"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_fetcher_fetch_week = "fetcher.fetch-week"
	report_fetcher_session    = "fetcher.session-expired"
)

// ErrTableTimeout is returned when the timetable never rendered.
var ErrTableTimeout = errors.New("timetable did not render in time")

// DatePlaceholder is replaced with the monday of the requested week in TimetablePath.
const DatePlaceholder = "{date}"

type FetcherOptions struct {
	BaseUrl string
	// TimetablePath is resolved against BaseUrl and must contain DatePlaceholder.
	TimetablePath string
	// Settle is waited after navigation, the single page app keeps mutating the DOM after the table
	// first attaches.
	Settle            time.Duration
	NavigationTimeout time.Duration
	TableTimeout      time.Duration
}

// Fetcher retrieves the raw weekly grid through the session's pages.
type Fetcher struct {
	session   *Session
	extractor Extractor
	opts      FetcherOptions
	base      *url.URL
	time      chrono.TimeAPI
	tel       telemetry.API
}

func NewFetcher(
	session *Session,
	extractor Extractor,
	opts FetcherOptions,
	clock chrono.TimeAPI,
	tel telemetry.API,
) (Fetcher, error) {
	assert.NotNil(session, "session")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")

	if !strings.Contains(opts.TimetablePath, DatePlaceholder) {
		return Fetcher{}, fmt.Errorf("timetable path %q lacks %s", opts.TimetablePath, DatePlaceholder)
	}
	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return Fetcher{}, fmt.Errorf("parse base url: %w", err)
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.TableTimeout <= 0 {
		opts.TableTimeout = 30 * time.Second
	}

	return Fetcher{
		session:   session,
		extractor: extractor,
		opts:      opts,
		base:      base,
		time:      clock,
		tel:       telemetry.NewScopedAPI("portal_fetcher", tel),
	}, nil
}

// MondayOf returns midnight of the monday starting the week of d. Sunday belongs to the week that
// started 6 days earlier.
func MondayOf(d time.Time) time.Time {
	weekday := int(d.Weekday())
	offset := weekday - 1
	if weekday == 0 {
		offset = 6
	}
	monday := d.AddDate(0, 0, -offset)
	return chrono.Midnight(monday)
}

// WeekUrl returns the timetable url for the week starting on monday.
func (f Fetcher) WeekUrl(monday time.Time) (string, error) {
	path := strings.ReplaceAll(f.opts.TimetablePath, DatePlaceholder, chrono.FormatDate(monday))
	resolved, err := f.base.Parse(path)
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchWeek retrieves the week containing anchor, a zero anchor means now.
func (f Fetcher) FetchWeek(ctx context.Context, anchor time.Time) (WeekSchedule, error) {
	ctx, span := tracer.Start(ctx, "fetcher:FetchWeek", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if !f.session.IsAuthenticated() {
		span.SetStatus(codes.Error, "unauthenticated")
		return WeekSchedule{}, ErrUnauthenticated
	}

	if anchor.IsZero() {
		anchor = f.time.Now()
	}
	monday := MondayOf(anchor)
	link, err := f.WeekUrl(monday)
	if err != nil {
		return WeekSchedule{}, err
	}
	span.SetAttributes(attribute.String("url", link))

	var week WeekSchedule
	err = f.session.WithPage(ctx, func(page Page) error {
		navCtx, cancel := context.WithTimeout(ctx, f.opts.NavigationTimeout)
		defer cancel()
		err := f.session.Navigate(navCtx, page, link)
		if err != nil {
			return fmt.Errorf("navigate: %w", err)
		}

		err = sleep(ctx, f.opts.Settle)
		if err != nil {
			return err
		}

		current, err := page.URL(ctx)
		if err != nil {
			return fmt.Errorf("read url: %w", err)
		}
		if !f.session.IsAuthenticatedUrl(current) {
			f.session.Invalidate()
			f.tel.ReportWarning(report_fetcher_session, current)
			return ErrUnauthenticated
		}

		waitCtx, cancelWait := context.WithTimeout(ctx, f.opts.TableTimeout)
		defer cancelWait()
		err = page.WaitPresent(waitCtx, f.extractor.Layout.Table)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %v", ErrTableTimeout, f.extractor.Layout.Table, err)
		}

		html, err := page.HTML(ctx)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return fmt.Errorf("parse document: %w", err)
		}
		week = f.extractor.Extract(doc)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrUnauthenticated) {
			f.tel.ReportBroken(report_fetcher_fetch_week, err, link)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch week failed")
		return WeekSchedule{}, err
	}

	slots := 0
	for _, day := range week.Slots {
		slots += len(day)
	}
	f.tel.ReportDebug("fetched week", chrono.FormatDate(monday), len(week.Days), slots)
	return week, nil
}
