package service

import (
	"context"
	"errors"
	"stundenplan-backend/internal/components/cache"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/components/telemetry"
	"stundenplan-backend/internal/scrapers/portal"
	"stundenplan-backend/internal/timetable"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mutex    sync.Mutex
	loggedIn bool
	accept   bool
	logins   int
	username string
	password string
}

func (f *fakeAuth) IsAuthenticated() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.loggedIn
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.logins++
	f.username = username
	f.password = password
	f.loggedIn = f.accept
	return f.accept
}

type fakeFetcher struct {
	mutex   sync.Mutex
	week    portal.WeekSchedule
	err     error
	anchors []time.Time
}

func (f *fakeFetcher) FetchWeek(ctx context.Context, anchor time.Time) (portal.WeekSchedule, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.anchors = append(f.anchors, anchor)
	if f.err != nil {
		return portal.WeekSchedule{}, f.err
	}
	return f.week, nil
}

func (f *fakeFetcher) calls() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.anchors)
}

func testWeek() portal.WeekSchedule {
	return portal.WeekSchedule{
		Days: []string{"Mo", "Di", "Mi", "Do", "Fr"},
		Slots: map[string][]portal.RawSlot{
			"Mo": {
				{Hour: 1, Day: "Mo", Subject: "Mathe", Teacher: "Schmidt", Room: "101"},
				{Hour: 2, Day: "Mo", Subject: "Englisch", Teacher: "Klein", Room: "102", IsCancelled: true},
				{Hour: 3, Day: "Mo", Subject: "Physik", Teacher: "Wolf", Room: "Lab", IsSubstitution: true},
			},
			"Di": {{Hour: 4, Day: "Di", Subject: "Kunst", Teacher: "Roth", Room: "K1"}},
			"Mi": {},
			"Do": {},
			"Fr": {},
		},
	}
}

type harness struct {
	service Service
	auth    *fakeAuth
	fetcher *fakeFetcher
	clock   *chrono.ManualTime
	cache   *cache.Cache
	tel     *telemetry.RecordingAPI
}

var berlin = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
	return loc
}()

// monday 2025-10-13 09:00 in Berlin
var testNow = time.Date(2025, 10, 13, 9, 0, 0, 0, berlin)

func newHarness(t testing.TB) harness {
	t.Helper()
	tel := telemetry.NewRecordingAPI()
	clock := chrono.NewManualTime(testNow)
	store := cache.New(64, clock, tel)
	auth := &fakeAuth{accept: true}
	fetcher := &fakeFetcher{week: testWeek()}
	service := NewService(store, auth, fetcher, clock, Options{
		Username:         "student",
		Password:         "secret",
		TimetableTTL:     time.Hour,
		SubstitutionsTTL: 5 * time.Minute,
	}, tel)
	return harness{
		service: service,
		auth:    auth,
		fetcher: fetcher,
		clock:   clock,
		cache:   store,
		tel:     tel,
	}
}

func TestResolveDay(t *testing.T) {
	h := newHarness(t)

	today, err := h.service.ResolveDay("today")
	require.NoError(t, err)
	require.Equal(t, "2025-10-13", chrono.FormatDate(today))
	require.Equal(t, 0, today.Hour())

	tomorrow, err := h.service.ResolveDay("Tomorrow")
	require.NoError(t, err)
	require.Equal(t, "2025-10-14", chrono.FormatDate(tomorrow))

	explicit, err := h.service.ResolveDay("2025-12-01")
	require.NoError(t, err)
	require.Equal(t, "2025-12-01", chrono.FormatDate(explicit))
	require.Equal(t, berlin, explicit.Location())

	for _, bad := range []string{"13.10.2025", "2025-13-01", "yesterday", "2025-02-30"} {
		_, err := h.service.ResolveDay(bad)
		require.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestTimetableLogsInLazily(t *testing.T) {
	h := newHarness(t)

	lessons, err := h.service.Timetable(context.Background(), chrono.Midnight(testNow))
	require.NoError(t, err)
	require.Len(t, lessons, 3)
	require.Equal(t, "2025-10-13-1", lessons[0].Id)
	require.Equal(t, "08:00", lessons[0].StartTime)
	require.Equal(t, "08:45", lessons[0].EndTime)

	require.Equal(t, 1, h.auth.logins)
	require.Equal(t, "student", h.auth.username)
	require.Equal(t, "secret", h.auth.password)
	require.True(t, h.cache.Has("timetable:default:2025-10-13"))

	// authenticated now, a different day fetches without logging in again
	_, err = h.service.Timetable(context.Background(), chrono.Midnight(testNow).AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 1, h.auth.logins)
	require.Equal(t, 2, h.fetcher.calls())
}

func TestTimetableIsCached(t *testing.T) {
	h := newHarness(t)
	day := chrono.Midnight(testNow)

	first, err := h.service.Timetable(context.Background(), day)
	require.NoError(t, err)
	second, err := h.service.Timetable(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, 1, h.fetcher.calls())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached lessons differ (-first +second):\n%s", diff)
	}

	h.clock.Advance(time.Hour + time.Second)
	_, err = h.service.Timetable(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, 2, h.fetcher.calls())
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t)
	h.auth.accept = false

	_, err := h.service.Timetable(context.Background(), chrono.Midnight(testNow))
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, 0, h.fetcher.calls())
	require.False(t, h.cache.Has("timetable:default:2025-10-13"))
	require.True(t, h.tel.Has(telemetry.LevelWarning, report_service_login))

	// nothing is remembered, the next call tries again
	h.auth.accept = true
	_, err = h.service.Timetable(context.Background(), chrono.Midnight(testNow))
	require.NoError(t, err)
	require.Equal(t, 2, h.auth.logins)
}

func TestFetchErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = portal.ErrTableTimeout

	_, err := h.service.Substitutions(context.Background(), chrono.Midnight(testNow))
	require.ErrorIs(t, err, portal.ErrTableTimeout)
	require.Equal(t, 0, h.cache.Len())
	require.True(t, h.tel.Has(telemetry.LevelWarning, report_service_fetch_week))
}

func TestSubstitutions(t *testing.T) {
	h := newHarness(t)

	subs, err := h.service.Substitutions(context.Background(), chrono.Midnight(testNow))
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, timetable.CANCELLATION, subs[0].Type)
	require.Equal(t, "sub-2025-10-13-2", subs[0].Id)
	require.Equal(t, timetable.SUBSTITUTION, subs[1].Type)
	require.True(t, h.cache.Has("substitutions:default:2025-10-13"))

	// the short ttl runs out long before the timetable one
	h.clock.Advance(5*time.Minute + time.Second)
	require.False(t, h.cache.Has("substitutions:default:2025-10-13"))
}

func TestCancellations(t *testing.T) {
	h := newHarness(t)

	cancelled, err := h.service.Cancellations(context.Background(), chrono.Midnight(testNow))
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.Equal(t, "Englisch", cancelled[0].Subject)
	require.True(t, h.cache.Has("cancellations:default:2025-10-13"))
}

func TestWeekendHasNoLessons(t *testing.T) {
	h := newHarness(t)
	saturday := time.Date(2025, 10, 18, 0, 0, 0, 0, berlin)

	lessons, err := h.service.Timetable(context.Background(), saturday)
	require.NoError(t, err)
	require.NotNil(t, lessons)
	require.Empty(t, lessons)
}

func TestWeek(t *testing.T) {
	h := newHarness(t)
	thursday := time.Date(2025, 10, 16, 0, 0, 0, 0, berlin)

	week, err := h.service.Week(context.Background(), thursday)
	require.NoError(t, err)
	require.Equal(t, "2025-10-13", week.WeekStart)
	require.Len(t, week.Days, 5)
	require.Equal(t, "2025-10-14", week.Days[1].Date)
	require.Equal(t, "2025-10-14-4", week.Days[1].Lessons[0].Id)

	require.Len(t, h.fetcher.anchors, 1)
	require.Equal(t, "2025-10-13", chrono.FormatDate(h.fetcher.anchors[0]))
	require.True(t, h.cache.Has("week:default:2025-10-13"))

	// another day of the same week hits the same entry
	_, err = h.service.Week(context.Background(), time.Date(2025, 10, 17, 0, 0, 0, 0, berlin))
	require.NoError(t, err)
	require.Equal(t, 1, h.fetcher.calls())
}

func TestInvalidate(t *testing.T) {
	h := newHarness(t)
	day := chrono.Midnight(testNow)
	ctx := context.Background()

	_, err := h.service.Timetable(ctx, day)
	require.NoError(t, err)
	_, err = h.service.Substitutions(ctx, day)
	require.NoError(t, err)
	_, err = h.service.Cancellations(ctx, day)
	require.NoError(t, err)
	h.cache.Set("unrelated", 1, 0)

	require.Equal(t, 1, h.service.Invalidate("timetable:"))
	require.False(t, h.cache.Has("timetable:default:2025-10-13"))
	require.True(t, h.cache.Has("substitutions:default:2025-10-13"))

	require.Equal(t, 2, h.service.Invalidate(""))
	require.Equal(t, 1, h.cache.Len())
	require.True(t, h.cache.Has("unrelated"))
}

func TestScopeIsPartOfTheKey(t *testing.T) {
	tel := telemetry.NewRecordingAPI()
	clock := chrono.NewManualTime(testNow)
	store := cache.New(0, clock, tel)
	service := NewService(store, &fakeAuth{accept: true}, &fakeFetcher{week: testWeek()}, clock, Options{
		Username: "student",
		Password: "secret",
		Scope:    "10b",
	}, tel)

	_, err := service.Timetable(context.Background(), chrono.Midnight(testNow))
	require.NoError(t, err)
	require.True(t, store.Has("timetable:10b:2025-10-13"))
}

func TestNewServiceRequiresCredentials(t *testing.T) {
	tel := telemetry.NewRecordingAPI()
	clock := chrono.NewManualTime(testNow)
	require.Panics(t, func() {
		NewService(cache.New(0, clock, tel), &fakeAuth{}, &fakeFetcher{}, clock, Options{Password: "x"}, tel)
	})
}

func TestAuthenticated(t *testing.T) {
	h := newHarness(t)
	require.False(t, h.service.Authenticated())
	_, err := h.service.Timetable(context.Background(), chrono.Midnight(testNow))
	require.NoError(t, err)
	require.True(t, h.service.Authenticated())
}

var errBoom = errors.New("boom")
