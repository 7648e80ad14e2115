// Package health serves the /livez and /readyz endpoints of the orders API.
//
// Checks are refreshed by a single background worker (Registry.Run) and the
// endpoints only report the last recorded result, so a slow dependency never
// slows down the orchestrator polling us. A check is reported down only after
// FailAfter consecutive failures and comes back on the first success.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports whether a dependency is usable. A nil error means up.
type CheckFunc func(ctx context.Context) error

// Scope selects the endpoint a check contributes to.
type Scope uint8

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Scope = iota
	// Readiness checks decide whether the process receives traffic.
	Readiness
)

func (s Scope) String() string {
	if s == Liveness {
		return "liveness"
	}
	return "readiness"
}

const (
	defaultTimeout   = time.Second
	defaultFailAfter = 3
)

// Check describes one registered dependency check.
type Check struct {
	Name    string
	Scope   Scope
	Func    CheckFunc
	Timeout time.Duration
	// FailAfter is the number of consecutive failures before the check is
	// reported down. Zero means 3.
	FailAfter int
}

// Status is the last recorded result of a check.
type Status struct {
	Name      string
	Up        bool
	Err       error
	CheckedAt time.Time
}

type entry struct {
	Check

	mu       sync.Mutex
	failures int
	status   Status
}

func (e *entry) record(err error, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status.CheckedAt = at
	e.status.Err = err
	if err == nil {
		e.failures = 0
		e.status.Up = true
		return
	}
	e.failures++
	if e.failures >= e.FailAfter {
		e.status.Up = false
	}
}

func (e *entry) snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Registry holds the checks of one process and its serving state.
type Registry struct {
	serving atomic.Bool

	mu      sync.RWMutex
	entries []*entry

	now func() time.Time
}

// NewRegistry creates an empty Registry. It reports not ready until
// SetServing(true) is called.
func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// Register adds a check. Checks start up so a fresh process is not taken out
// of rotation before the first refresh.
func (r *Registry) Register(c Check) error {
	if c.Name == "" || c.Func == nil {
		return errors.New("check needs a name and a func")
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.FailAfter <= 0 {
		c.FailAfter = defaultFailAfter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Name == c.Name && e.Scope == c.Scope {
			return errors.Errorf("%s check %q already registered", c.Scope, c.Name)
		}
	}
	e := &entry{Check: c}
	e.status = Status{Name: c.Name, Up: true}
	r.entries = append(r.entries, e)
	return nil
}

// SetServing marks the process as accepting traffic. It is flipped to false
// on shutdown so the load balancer drains us before the server stops.
func (r *Registry) SetServing(v bool) {
	r.serving.Store(v)
}

// Refresh runs every check once, concurrently, and records the results.
func (r *Registry) Refresh(ctx context.Context) {
	r.mu.RLock()
	entries := append([]*entry(nil), r.entries...)
	r.mu.RUnlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, e.Timeout)
			defer cancel()
			e.record(e.Func(checkCtx), r.now())
			return nil
		})
	}
	_ = g.Wait()
}

// Run refreshes the checks every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.Refresh(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Statuses returns the recorded results of the checks in scope, sorted by
// name.
func (r *Registry) Statuses(scope Scope) []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Status
	for _, e := range r.entries {
		if e.Scope == scope {
			out = append(out, e.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports whether the process is serving and every readiness check is
// up.
func (r *Registry) Ready() bool {
	if !r.serving.Load() {
		return false
	}
	for _, s := range r.Statuses(Readiness) {
		if !s.Up {
			return false
		}
	}
	return true
}

// Handler returns the endpoint for scope. The body lists every check of the
// scope with its state; the status code is 503 when any of them is down, or
// for readiness while the process is not serving.
func (r *Registry) Handler(scope Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		statuses := r.Statuses(scope)
		draining := scope == Readiness && !r.serving.Load()

		ok := !draining
		for _, s := range statuses {
			ok = ok && s.Up
		}

		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write(encodeReport(ok, draining, statuses))
	}
}

func encodeReport(ok, draining bool, statuses []Status) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.Field("status", func(e *jx.Encoder) {
		if ok {
			e.Str("ok")
		} else {
			e.Str("unavailable")
		}
	})
	if draining {
		e.Field("draining", func(e *jx.Encoder) { e.Bool(true) })
	}
	if len(statuses) > 0 {
		e.Field("checks", func(e *jx.Encoder) {
			e.ObjStart()
			for _, s := range statuses {
				e.Field(s.Name, func(e *jx.Encoder) { encodeStatus(e, s) })
			}
			e.ObjEnd()
		})
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeStatus(e *jx.Encoder, s Status) {
	e.ObjStart()
	e.Field("up", func(e *jx.Encoder) { e.Bool(s.Up) })
	if s.Err != nil {
		e.Field("error", func(e *jx.Encoder) { e.Str(s.Err.Error()) })
	}
	if !s.CheckedAt.IsZero() {
		e.Field("checkedAt", func(e *jx.Encoder) { e.Str(s.CheckedAt.UTC().Format(time.RFC3339)) })
	}
	e.ObjEnd()
}
