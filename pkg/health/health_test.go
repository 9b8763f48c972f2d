package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, h http.HandlerFunc) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.True(t, jx.Valid(w.Body.Bytes()), w.Body.String())
	return w.Code, w.Body.String()
}

func TestLiveHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Check
		runs       int
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "healthy until first run",
			checks:     []Check{{Name: "db", Func: failing("refused")}},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "below failure threshold",
			checks:     []Check{{Name: "db", Func: failing("refused")}},
			runs:       2,
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "past failure threshold",
			checks:     []Check{{Name: "db", Func: failing("refused")}, {Name: "cpu", Func: passing()}},
			runs:       3,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unhealthy","checks":{"db":"refused"}}`,
		},
		{
			name:       "custom threshold",
			checks:     []Check{{Name: "db", Func: failing("refused"), FailureThreshold: 1}},
			runs:       1,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unhealthy","checks":{"db":"refused"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			for _, c := range tt.checks {
				m.Liveness(c)
			}
			for range tt.runs {
				for _, p := range m.liveness {
					p.run(context.Background())
				}
			}

			code, body := get(t, m.LiveHandler)
			assert.Equal(t, tt.wantStatus, code)
			assert.JSONEq(t, tt.wantBody, body)
		})
	}
}

func TestReadyHandler(t *testing.T) {
	m := NewMonitor()
	m.Readiness(Check{Name: "postgres", Func: passing()})
	m.Readiness(Check{Name: "images", Func: failing("bucket missing"), FailureThreshold: 1})

	code, body := get(t, m.ReadyHandler)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, body)

	m.SetReady(true)
	code, _ = get(t, m.ReadyHandler)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, m.IsReady())

	m.readiness[1].run(context.Background())
	code, body = get(t, m.ReadyHandler)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, `{"status":"unhealthy","checks":{"images":"bucket missing"}}`, body)
	assert.False(t, m.IsReady())
}

func TestReadyHandler_SortedChecks(t *testing.T) {
	m := NewMonitor()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		m.Readiness(Check{Name: name, Func: failing(name), FailureThreshold: 1})
	}
	m.SetReady(true)
	for _, p := range m.readiness {
		p.run(context.Background())
	}

	_, body := get(t, m.ReadyHandler)
	assert.Equal(t, `{"status":"unhealthy","checks":{"alpha":"alpha","mid":"mid","zeta":"zeta"}}`, body)
}

func TestProbe_Recovery(t *testing.T) {
	down := true
	p := newProbe(Check{
		Name:             "flaky",
		SuccessThreshold: 2,
		Func: func(context.Context) error {
			if down {
				return errors.New("down")
			}
			return nil
		},
	})
	ctx := context.Background()

	for range 3 {
		p.run(ctx)
	}
	assert.Equal(t, "down", p.failure())

	down = false
	p.run(ctx)
	assert.Equal(t, "down", p.failure(), "one success is below the threshold")
	p.run(ctx)
	assert.Empty(t, p.failure())
}

func TestProbe_Timeout(t *testing.T) {
	p := newProbe(Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	p.run(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), p.failure())
}

func TestMonitor_StartStop(t *testing.T) {
	m := NewMonitor()
	var (
		mu    sync.Mutex
		calls int
	)
	m.Liveness(Check{Name: "count", Func: func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}})

	m.Start(context.Background(), 5*time.Millisecond)
	m.Start(context.Background(), 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, time.Millisecond)

	m.Stop()
	m.Stop()

	mu.Lock()
	after := calls
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, calls, "no runs after Stop")
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	m.Liveness(Check{Name: "live", Func: failing("err")})
	m.Readiness(Check{Name: "ready", Func: passing()})
	m.SetReady(true)

	m.Start(context.Background(), time.Millisecond)
	defer m.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				m.IsReady()
				get(t, m.LiveHandler)
				get(t, m.ReadyHandler)
			}
		})
	}
	wg.Wait()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCount(100000)(ctx))
	assert.ErrorContains(t, GoroutineCount(0)(ctx), "exceeds 0")

	assert.NoError(t, GCMaxPause(time.Hour)(ctx))

	assert.NoError(t, Ping(pinger{})(ctx))
	assert.ErrorContains(t, Ping(pinger{err: errors.New("refused")})(ctx), "ping: refused")
}
