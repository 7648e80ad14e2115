package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkBody struct {
	Up        bool   `json:"up"`
	Error     string `json:"error"`
	CheckedAt string `json:"checkedAt"`
}

type reportBody struct {
	Status   string               `json:"status"`
	Draining bool                 `json:"draining"`
	Checks   map[string]checkBody `json:"checks"`
}

func get(t *testing.T, r *Registry, scope Scope) (int, reportBody) {
	t.Helper()
	w := httptest.NewRecorder()
	r.Handler(scope)(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body reportBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func ok(context.Context) error { return nil }

// toggle is a check whose result the test flips between refreshes.
type toggle struct {
	err atomic.Pointer[error]
}

func (c *toggle) fail(err error) { c.err.Store(&err) }
func (c *toggle) pass()          { c.err.Store(nil) }

func (c *toggle) check(context.Context) error {
	if p := c.err.Load(); p != nil {
		return *p
	}
	return nil
}

func newServing(t *testing.T, checks ...Check) *Registry {
	t.Helper()
	r := NewRegistry()
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	for _, c := range checks {
		require.NoError(t, r.Register(c))
	}
	r.SetServing(true)
	return r
}

func TestRegister_Validation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Check{Name: "postgres"}))
	assert.Error(t, r.Register(Check{Func: ok}))

	require.NoError(t, r.Register(Check{Name: "postgres", Scope: Readiness, Func: ok}))
	assert.Error(t, r.Register(Check{Name: "postgres", Scope: Readiness, Func: ok}))
	// Same name in the other scope is a different check.
	assert.NoError(t, r.Register(Check{Name: "postgres", Scope: Liveness, Func: ok}))
}

func TestReadyz_ListsEveryCheck(t *testing.T) {
	r := newServing(t,
		Check{Name: "postgres", Scope: Readiness, Func: ok},
		Check{Name: "sweeper", Scope: Readiness, Func: ok},
		Check{Name: "goroutines", Scope: Liveness, Func: ok},
	)
	r.Refresh(context.Background())

	code, body := get(t, r, Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Draining)
	require.Len(t, body.Checks, 2)
	assert.True(t, body.Checks["postgres"].Up)
	assert.Equal(t, "2026-03-01T12:00:00Z", body.Checks["sweeper"].CheckedAt)

	code, body = get(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body.Checks, "goroutines")
	assert.NotContains(t, body.Checks, "postgres")
}

func TestReadyz_NotServing(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Check{Name: "postgres", Scope: Readiness, Func: ok}))

	code, body := get(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body.Status)
	assert.True(t, body.Draining)
	assert.False(t, r.Ready())

	r.SetServing(true)
	assert.True(t, r.Ready())

	// Draining never affects liveness.
	r.SetServing(false)
	code, _ = get(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code)
}

func TestReadyz_PostgresDownAfterThreshold(t *testing.T) {
	db := &toggle{}
	r := newServing(t, Check{Name: "postgres", Scope: Readiness, Func: db.check})
	ctx := context.Background()

	db.fail(errors.New("connection refused"))
	r.Refresh(ctx)
	r.Refresh(ctx)

	// Two misses keep the instance in rotation but expose the error.
	code, body := get(t, r, Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "connection refused", body.Checks["postgres"].Error)

	r.Refresh(ctx)
	code, body = get(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, body.Checks["postgres"].Up)
	assert.False(t, r.Ready())

	// A single success brings it back.
	db.pass()
	r.Refresh(ctx)
	code, body = get(t, r, Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.Checks["postgres"].Error)
}

func TestReadyz_StaleSweeperFlipsReadiness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var lastSweep atomic.Int64
	lastSweep.Store(now.Add(-5 * time.Second).UnixNano())

	sweeper := freshnessCheck(
		func() time.Time { return time.Unix(0, lastSweep.Load()) },
		15*time.Second,
		func() time.Time { return now },
	)
	r := newServing(t, Check{Name: "sweeper", Scope: Readiness, Func: sweeper, FailAfter: 1})
	ctx := context.Background()

	r.Refresh(ctx)
	assert.True(t, r.Ready())

	// The sweeper stops ticking; readiness drops on the next refresh.
	now = now.Add(time.Minute)
	r.Refresh(ctx)
	code, body := get(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks["sweeper"].Error, "exceeds 15s")

	lastSweep.Store(now.UnixNano())
	r.Refresh(ctx)
	assert.True(t, r.Ready())
}

func TestRefresh_AppliesTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	r := newServing(t, Check{Name: "postgres", Scope: Readiness, Func: slow, Timeout: 10 * time.Millisecond, FailAfter: 1})

	r.Refresh(context.Background())
	statuses := r.Statuses(Readiness)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Up)
	assert.ErrorIs(t, statuses[0].Err, context.DeadlineExceeded)
}

func TestRun_RefreshesUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	r := newServing(t, Check{Name: "postgres", Scope: Readiness, Func: func(context.Context) error {
		calls.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, PingCheck(pinger{})(ctx))
		assert.ErrorContains(t, PingCheck(pinger{err: errors.New("refused")})(ctx), "ping: refused")
	})

	t.Run("goroutines", func(t *testing.T) {
		assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
		assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "limit 0")
	})

	t.Run("freshness never ran", func(t *testing.T) {
		check := freshnessCheck(func() time.Time { return time.Time{} }, time.Minute, time.Now)
		assert.ErrorContains(t, check(ctx), "has not run yet")
	})
}
