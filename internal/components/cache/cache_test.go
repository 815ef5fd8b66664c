package cache

import (
	"context"
	"errors"
	"sort"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/components/telemetry"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache() (*Cache, *chrono.ManualTime) {
	clock := chrono.NewManualTime(time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC))
	return New(64, clock, telemetry.NewRecordingAPI()), clock
}

func TestKey(t *testing.T) {
	require.Equal(t, "timetable:default:2025-10-13", Key(CategoryTimetable, "default", "2025-10-13"))
	require.Equal(t, "substitutions:", CategorySubstitutions.Prefix())
}

func TestRoundTrip(t *testing.T) {
	c, clock := newTestCache()

	_, ok := c.Get("timetable:default:2025-10-13")
	require.False(t, ok)

	c.Set("timetable:default:2025-10-13", "lessons", time.Minute)
	value, ok := c.Get("timetable:default:2025-10-13")
	require.True(t, ok)
	require.Equal(t, "lessons", value)
	require.True(t, c.Has("timetable:default:2025-10-13"))

	clock.Advance(59 * time.Second)
	require.True(t, c.Has("timetable:default:2025-10-13"))

	clock.Advance(time.Second)
	_, ok = c.Get("timetable:default:2025-10-13")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestCache()
	c.Set("week:default:2025-10-13", 1, 0)
	clock.Advance(24 * 365 * time.Hour)
	require.True(t, c.Has("week:default:2025-10-13"))
}

func TestDel(t *testing.T) {
	c, clock := newTestCache()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	require.True(t, c.Del("a"))
	require.False(t, c.Del("a"))
	require.False(t, c.Has("a"))

	clock.Advance(2 * time.Minute)
	require.False(t, c.Del("b"))
}

func TestGetOrSetComputesOnce(t *testing.T) {
	c, _ := newTestCache()

	calls := 0
	compute := func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"Mathe", "Deutsch"}, nil
	}

	first, err := GetOrSet(context.Background(), c, "timetable:default:2025-10-13", time.Hour, compute)
	require.Nil(t, err)
	second, err := GetOrSet(context.Background(), c, "timetable:default:2025-10-13", time.Hour, compute)
	require.Nil(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestGetOrSetRecomputesAfterExpiry(t *testing.T) {
	c, clock := newTestCache()

	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	value, err := GetOrSet(context.Background(), c, "substitutions:default:2025-10-13", 5*time.Minute, compute)
	require.Nil(t, err)
	require.Equal(t, 1, value)

	clock.Advance(5 * time.Minute)

	value, err = GetOrSet(context.Background(), c, "substitutions:default:2025-10-13", 5*time.Minute, compute)
	require.Nil(t, err)
	require.Equal(t, 2, value)
}

func TestGetOrSetDoesNotStoreErrors(t *testing.T) {
	c, _ := newTestCache()
	failure := errors.New("schedule table did not appear")

	_, err := GetOrSet(context.Background(), c, "timetable:default:2025-10-14", time.Hour, func(ctx context.Context) (int, error) {
		return 0, failure
	})
	require.ErrorIs(t, err, failure)
	require.False(t, c.Has("timetable:default:2025-10-14"))

	value, err := GetOrSet(context.Background(), c, "timetable:default:2025-10-14", time.Hour, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.Nil(t, err)
	require.Equal(t, 7, value)
}

func TestGetOrSetTypeMismatchRecomputes(t *testing.T) {
	c, _ := newTestCache()
	c.Set("timetable:default:2025-10-15", "not a number", time.Hour)

	value, err := GetOrSet(context.Background(), c, "timetable:default:2025-10-15", time.Hour, func(ctx context.Context) (int, error) {
		return 3, nil
	})
	require.Nil(t, err)
	require.Equal(t, 3, value)
}

func TestDelByPrefix(t *testing.T) {
	c, _ := newTestCache()
	c.Set("timetable:default:2025-10-13", 1, time.Hour)
	c.Set("timetable:default:2025-10-14", 2, time.Hour)
	c.Set("substitutions:default:2025-10-13", 3, time.Hour)
	c.Set("week:default:2025-10-13", 4, time.Hour)

	removed := c.DelByPrefix(CategoryTimetable.Prefix())
	require.Equal(t, 2, removed)

	remaining := c.store.Keys()
	sort.Strings(remaining)
	require.Equal(t, []string{"substitutions:default:2025-10-13", "week:default:2025-10-13"}, remaining)
}
