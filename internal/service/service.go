// Package service composes the portal session, the week fetcher, the normalizer and the cache into
// the operations the http api exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"stundenplan-backend/internal/components/assert"
	"stundenplan-backend/internal/components/cache"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/components/telemetry"
	"stundenplan-backend/internal/scrapers/portal"
	"stundenplan-backend/internal/timetable"
	"time"
)

const (
	report_service_login       = "service.login"
	report_service_fetch_week  = "service.fetch-week"
	report_service_invalidate  = "service.invalidate"
	report_service_resolve_day = "service.resolve-day"
)

var (
	ErrLoginFailed = errors.New("portal login failed")
	ErrInvalidDate = errors.New("invalid date: expected today, tomorrow or YYYY-MM-DD")
)

// Authenticator is the part of portal.Session the service depends on.
type Authenticator interface {
	IsAuthenticated() bool
	Login(ctx context.Context, username, password string) bool
}

// WeekFetcher retrieves the raw schedule for the week containing anchor.
type WeekFetcher interface {
	FetchWeek(ctx context.Context, anchor time.Time) (portal.WeekSchedule, error)
}

type Options struct {
	Username string
	Password string
	// Scope is the middle segment of every cache key.
	Scope            string
	TimetableTTL     time.Duration
	SubstitutionsTTL time.Duration
}

type Service struct {
	cache   *cache.Cache
	auth    Authenticator
	fetcher WeekFetcher
	time    chrono.TimeAPI
	opts    Options
	tel     telemetry.API
}

func NewService(
	store *cache.Cache,
	auth Authenticator,
	fetcher WeekFetcher,
	clock chrono.TimeAPI,
	opts Options,
	tel telemetry.API,
) Service {
	assert.NotNil(store, "cache")
	assert.NotNil(auth, "authenticator")
	assert.NotNil(fetcher, "week fetcher")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "tel")
	assert.NotEmptyStr(opts.Username, "portal username")
	assert.NotEmptyStr(opts.Password, "portal password")

	if opts.Scope == "" {
		opts.Scope = "default"
	}
	if opts.TimetableTTL <= 0 {
		opts.TimetableTTL = time.Hour
	}
	if opts.SubstitutionsTTL <= 0 {
		opts.SubstitutionsTTL = 5 * time.Minute
	}

	return Service{
		cache:   store,
		auth:    auth,
		fetcher: fetcher,
		time:    clock,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("service", tel),
	}
}

// ResolveDay turns "today", "tomorrow" or an ISO date into midnight of that day in the clock's
// location.
func (s Service) ResolveDay(value string) (time.Time, error) {
	now := s.time.Now()
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "today":
		return chrono.Midnight(now), nil
	case "tomorrow":
		return chrono.Midnight(now).AddDate(0, 0, 1), nil
	}
	date, err := chrono.ParseDate(value, now.Location())
	if err != nil {
		s.tel.ReportDebug(report_service_resolve_day, value, err)
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return date, nil
}

// ensureSession logs into the portal unless already authenticated.
func (s Service) ensureSession(ctx context.Context) error {
	if s.auth.IsAuthenticated() {
		return nil
	}
	if !s.auth.Login(ctx, s.opts.Username, s.opts.Password) {
		s.tel.ReportWarning(report_service_login, ErrLoginFailed)
		return ErrLoginFailed
	}
	return nil
}

func (s Service) fetchWeek(ctx context.Context, anchor time.Time) (portal.WeekSchedule, error) {
	err := s.ensureSession(ctx)
	if err != nil {
		return portal.WeekSchedule{}, err
	}
	week, err := s.fetcher.FetchWeek(ctx, anchor)
	if err != nil {
		s.tel.ReportWarning(report_service_fetch_week, err, chrono.FormatDate(anchor))
		return portal.WeekSchedule{}, err
	}
	return week, nil
}

func (s Service) key(category cache.Category, date time.Time) string {
	return cache.Key(category, s.opts.Scope, chrono.FormatDate(date))
}

func (s Service) Timetable(ctx context.Context, date time.Time) ([]timetable.Lesson, error) {
	return cache.GetOrSet(
		ctx, s.cache,
		s.key(cache.CategoryTimetable, date),
		s.opts.TimetableTTL,
		func(ctx context.Context) ([]timetable.Lesson, error) {
			week, err := s.fetchWeek(ctx, date)
			if err != nil {
				return nil, err
			}
			return timetable.DayLessons(week, date), nil
		},
	)
}

// Substitutions are derived from a fresh fetch every time the short lived entry expires, they do
// not reuse the timetable entry.
func (s Service) Substitutions(ctx context.Context, date time.Time) ([]timetable.Substitution, error) {
	return cache.GetOrSet(
		ctx, s.cache,
		s.key(cache.CategorySubstitutions, date),
		s.opts.SubstitutionsTTL,
		func(ctx context.Context) ([]timetable.Substitution, error) {
			week, err := s.fetchWeek(ctx, date)
			if err != nil {
				return nil, err
			}
			return timetable.ToSubstitutions(timetable.DayLessons(week, date)), nil
		},
	)
}

func (s Service) Cancellations(ctx context.Context, date time.Time) ([]timetable.Lesson, error) {
	return cache.GetOrSet(
		ctx, s.cache,
		s.key(cache.CategoryCancellations, date),
		s.opts.SubstitutionsTTL,
		func(ctx context.Context) ([]timetable.Lesson, error) {
			week, err := s.fetchWeek(ctx, date)
			if err != nil {
				return nil, err
			}
			return timetable.CancelledOnly(timetable.DayLessons(week, date)), nil
		},
	)
}

// Week returns the whole week containing anchor, keyed by its monday.
func (s Service) Week(ctx context.Context, anchor time.Time) (timetable.Week, error) {
	monday := portal.MondayOf(anchor)
	return cache.GetOrSet(
		ctx, s.cache,
		s.key(cache.CategoryWeek, monday),
		s.opts.TimetableTTL,
		func(ctx context.Context) (timetable.Week, error) {
			week, err := s.fetchWeek(ctx, monday)
			if err != nil {
				return timetable.Week{}, err
			}
			return timetable.BuildWeek(week, monday), nil
		},
	)
}

// Categories lists every cache category the service writes.
var Categories = []cache.Category{
	cache.CategoryTimetable,
	cache.CategorySubstitutions,
	cache.CategoryCancellations,
	cache.CategoryWeek,
}

// Invalidate drops every cached entry under prefix, an empty prefix clears all categories.
func (s Service) Invalidate(prefix string) int {
	removed := 0
	if prefix == "" {
		for _, category := range Categories {
			removed += s.cache.DelByPrefix(category.Prefix())
		}
	} else {
		removed = s.cache.DelByPrefix(prefix)
	}
	s.tel.ReportDebug(report_service_invalidate, prefix, removed)
	return removed
}

// Authenticated reports whether the portal session is currently logged in.
func (s Service) Authenticated() bool {
	return s.auth.IsAuthenticated()
}

func (s Service) Now() time.Time {
	return s.time.Now()
}
