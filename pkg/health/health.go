// Package health runs liveness and readiness probes in the background and
// serves their state on /livez and /readyz.
//
// A probe flips to unhealthy after FailureThreshold consecutive failures and
// back to healthy after SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes a single probe.
type Check struct {
	Name    string
	Timeout time.Duration
	Func    CheckFunc
	// FailureThreshold defaults to 3.
	FailureThreshold int
	// SuccessThreshold defaults to 1.
	SuccessThreshold int
}

// probe is the runtime state of a Check. Counters are owned by the single
// goroutine calling run; healthy and lastErr are read concurrently.
type probe struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func newProbe(c Check) *probe {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	p := &probe{Check: c}
	p.healthy.Store(true)
	return p
}

func (p *probe) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Func(checkCtx)

	was := p.healthy.Load()
	if err != nil {
		p.lastErr.Store(&err)
		p.successes = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
	} else {
		p.fails = 0
		p.successes++
		if p.successes >= p.SuccessThreshold {
			p.healthy.Store(true)
		}
	}

	if now := p.healthy.Load(); now != was {
		lg := zctx.From(ctx).With(zap.String("check", p.Name))
		if now {
			lg.Info("Health check recovered")
		} else {
			lg.Warn("Health check failing", zap.Error(err))
		}
	}
}

// failure returns the failure message, or "" when healthy.
func (p *probe) failure() string {
	if p.healthy.Load() {
		return ""
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// Monitor owns the registered probes and the manual readiness flag.
type Monitor struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
	done      sync.WaitGroup
}

// NewMonitor creates a Monitor that reports not ready until SetReady(true).
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Liveness registers a probe that reports whether the process should be
// restarted.
func (m *Monitor) Liveness(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveness = append(m.liveness, newProbe(c))
}

// Readiness registers a probe that gates traffic, such as a database ping.
func (m *Monitor) Readiness(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readiness = append(m.readiness, newProbe(c))
}

// Start runs every probe immediately and then every interval until Stop or
// ctx cancellation.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	probes := slices.Concat(m.liveness, m.readiness)
	m.mu.Unlock()

	for _, p := range probes {
		m.done.Add(1)
		go func() {
			defer m.done.Done()
			loop(ctx, p, interval)
		}()
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// Stop cancels the probe goroutines and waits for them to exit. It is safe
// to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.done.Wait()
	}
}

// SetReady sets the manual readiness flag. Shutdown clears it so load
// balancers drain the instance before the server stops.
func (m *Monitor) SetReady(ready bool) {
	m.ready.Store(ready)
}

// IsReady reports whether the flag is set and every readiness probe passes.
func (m *Monitor) IsReady() bool {
	if !m.ready.Load() {
		return false
	}
	return len(failures(m.snapshot(&m.readiness))) == 0
}

func (m *Monitor) snapshot(list *[]*probe) []*probe {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(*list)
}

// LiveHandler serves /livez.
func (m *Monitor) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(m.snapshot(&m.liveness)))
}

// ReadyHandler serves /readyz.
func (m *Monitor) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	f := failures(m.snapshot(&m.readiness))
	if !m.ready.Load() {
		f["_readiness"] = "service is not ready"
	}
	writeStatus(w, f)
}

func failures(probes []*probe) map[string]string {
	f := make(map[string]string)
	for _, p := range probes {
		if msg := p.failure(); msg != "" {
			f[p.Name] = msg
		}
	}
	return f
}

// writeStatus writes {"status":"ok"} or a 503 with the failing checks in
// name order.
func writeStatus(w http.ResponseWriter, f map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	e.FieldStart("status")
	if len(f) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(f))
		for name := range f {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(f[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
