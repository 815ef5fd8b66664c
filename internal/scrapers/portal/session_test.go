package portal

import (
	"context"
	"errors"
	"stundenplan-backend/internal/components/telemetry"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSuccess(t *testing.T) {
	portal := newFakePortal()
	session, _ := newTestSession(t, portal, 1)

	require.False(t, session.IsAuthenticated())
	require.True(t, session.Login(context.Background(), "schueler", "geheim"))
	require.True(t, session.IsAuthenticated())

	require.Equal(t, []string{testLoginUrl}, portal.navigations)
	require.Equal(t, "schueler", portal.filled[`input[name="username"]`])
	require.Equal(t, "geheim", portal.filled[`input[name="password"]`])
	require.Equal(t, int32(1), portal.submits.Load())
}

func TestLoginWhenAuthenticatedSkipsNetwork(t *testing.T) {
	portal := newFakePortal()
	session, _ := newTestSession(t, portal, 1)

	require.True(t, session.Login(context.Background(), "schueler", "geheim"))
	require.True(t, session.Login(context.Background(), "schueler", "geheim"))

	require.Len(t, portal.navigations, 1)
	require.Equal(t, int32(1), portal.submits.Load())
}

func TestLoginSingleFlight(t *testing.T) {
	portal := newFakePortal()
	portal.release = make(chan struct{})
	session, _ := newTestSession(t, portal, 1)

	const callers = 8
	results := make([]bool, callers)
	wg := sync.WaitGroup{}
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = session.Login(context.Background(), "schueler", "geheim")
		}()
	}

	require.Eventually(t, func() bool {
		return portal.submits.Load() == 1
	}, time.Second, time.Millisecond)
	// give the other callers time to join the attempt in flight
	time.Sleep(20 * time.Millisecond)
	close(portal.release)
	wg.Wait()

	require.Equal(t, int32(1), portal.submits.Load())
	for _, ok := range results {
		require.True(t, ok)
	}
}

func TestLoginRejected(t *testing.T) {
	portal := newFakePortal()
	portal.landing = testLoginUrl + "?error=1"
	session, rec := newTestSession(t, portal, 1)

	require.False(t, session.Login(context.Background(), "schueler", "falsch"))
	require.False(t, session.IsAuthenticated())
	require.True(t, rec.Has(telemetry.LevelBroken, report_session_login))

	// the in-flight marker is cleared, a later attempt runs again
	portal.mutex.Lock()
	portal.landing = testLandedUrl
	portal.mutex.Unlock()
	require.True(t, session.Login(context.Background(), "schueler", "geheim"))
	require.Equal(t, int32(2), portal.submits.Load())
}

func TestLoginMissingFields(t *testing.T) {
	portal := newFakePortal()
	portal.present = map[string]bool{`input[type="password"]`: true}
	session, rec := newTestSession(t, portal, 1)

	require.False(t, session.Login(context.Background(), "schueler", "geheim"))
	require.Equal(t, int32(0), portal.submits.Load())
	require.True(t, rec.Has(telemetry.LevelBroken, report_session_login))
}

func TestLoginLocatorFallback(t *testing.T) {
	portal := newFakePortal()
	portal.present = map[string]bool{
		`input[type="email"]`:    true,
		`input[type="password"]`: true,
	}
	session, _ := newTestSession(t, portal, 1)

	require.True(t, session.Login(context.Background(), "schueler@schule.de", "geheim"))
	require.Equal(t, "schueler@schule.de", portal.filled[`input[type="email"]`])
	require.Equal(t, "geheim", portal.filled[`input[type="password"]`])
	// without a submit control the form is submitted with enter
	require.Equal(t, int32(1), portal.enters.Load())
}

func TestLoginNavigationFailureIsNotFatal(t *testing.T) {
	portal := newFakePortal()
	portal.submitErr = errFakeNavigation
	session, rec := newTestSession(t, portal, 1)

	require.True(t, session.Login(context.Background(), "schueler", "geheim"))
	require.True(t, rec.Has(telemetry.LevelWarning, report_session_login_navigation))
}

func TestLoginLaunchFailure(t *testing.T) {
	portal := newFakePortal()
	portal.launchErr = errors.New("chrome not installed")
	session, rec := newTestSession(t, portal, 1)

	require.False(t, session.Login(context.Background(), "schueler", "geheim"))
	require.True(t, rec.Has(telemetry.LevelBroken, report_session_launch))
	require.True(t, rec.Has(telemetry.LevelBroken, report_session_login))
}

func TestCloseIsIdempotent(t *testing.T) {
	portal := newFakePortal()
	session, _ := newTestSession(t, portal, 2)

	require.Nil(t, session.Close())

	require.True(t, session.Login(context.Background(), "schueler", "geheim"))
	launches, _, pages := portal.counts()
	require.Equal(t, 1, launches)
	require.Equal(t, 2, pages)

	require.Nil(t, session.Close())
	require.Nil(t, session.Close())
	require.False(t, session.IsAuthenticated())
	_, closes, _ := portal.counts()
	require.Equal(t, 1, closes)

	// the browser is relaunched lazily
	require.True(t, session.Login(context.Background(), "schueler", "geheim"))
	launches, _, _ = portal.counts()
	require.Equal(t, 2, launches)
}

func TestCloseDuringLoginStaysLoggedOut(t *testing.T) {
	portal := newFakePortal()
	portal.release = make(chan struct{})
	session, _ := newTestSession(t, portal, 1)

	result := make(chan bool, 1)
	go func() {
		result <- session.Login(context.Background(), "schueler", "geheim")
	}()
	require.Eventually(t, func() bool {
		return portal.submits.Load() == 1
	}, time.Second, time.Millisecond)

	require.Nil(t, session.Close())
	close(portal.release)

	require.False(t, <-result)
	require.False(t, session.IsAuthenticated())

	// a fresh attempt relaunches the browser and succeeds
	require.True(t, session.Login(context.Background(), "schueler", "geheim"))
	require.True(t, session.IsAuthenticated())
}

func TestLoginSurvivesCancelledLeader(t *testing.T) {
	portal := newFakePortal()
	portal.release = make(chan struct{})
	session, _ := newTestSession(t, portal, 1)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leader := make(chan bool, 1)
	go func() {
		leader <- session.Login(leaderCtx, "schueler", "geheim")
	}()
	require.Eventually(t, func() bool {
		return portal.submits.Load() == 1
	}, time.Second, time.Millisecond)

	follower := make(chan bool, 1)
	go func() {
		follower <- session.Login(context.Background(), "schueler", "geheim")
	}()
	// give the follower time to join the attempt in flight
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	require.False(t, <-leader)

	close(portal.release)
	require.True(t, <-follower)
	require.True(t, session.IsAuthenticated())
	require.Equal(t, int32(1), portal.submits.Load())
}

func poolConcurrency(t *testing.T, poolSize int) int32 {
	portal := newFakePortal()
	session, _ := newTestSession(t, portal, poolSize)

	var active, maxActive atomic.Int32
	wg := sync.WaitGroup{}
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := session.WithPage(context.Background(), func(page Page) error {
				n := active.Add(1)
				for {
					current := maxActive.Load()
					if n <= current || maxActive.CompareAndSwap(current, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.Nil(t, err)
		}()
	}
	wg.Wait()
	return maxActive.Load()
}

func TestPagePoolSerializes(t *testing.T) {
	require.Equal(t, int32(1), poolConcurrency(t, 1))
	require.LessOrEqual(t, poolConcurrency(t, 2), int32(2))
}

func TestWithPageHonorsContext(t *testing.T) {
	portal := newFakePortal()
	session, _ := newTestSession(t, portal, 1)

	hold := make(chan struct{})
	go session.WithPage(context.Background(), func(page Page) error {
		<-hold
		return nil
	})
	defer close(hold)

	require.Eventually(t, func() bool {
		_, _, pages := portal.counts()
		return pages == 1
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := session.WithPage(ctx, func(page Page) error {
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
