// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check flips to unhealthy only after FailureThreshold consecutive failures
// and back after SuccessThreshold consecutive successes, so a single slow
// database ping does not take the instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Kind says which probe a check contributes to.
type Kind string

const (
	Liveness  Kind = "liveness"
	Readiness Kind = "readiness"
	// Dependency checks cover optional backends the service degrades without.
	// They show up in StatusEndpoint but never fail a probe.
	Dependency Kind = "dependency"
)

// Check describes a registered check.
type Check struct {
	Name             string
	Kind             Kind
	Timeout          time.Duration
	Func             CheckFunc
	FailureThreshold int
	SuccessThreshold int
}

// probe is a Check plus its runtime state. The counters are owned by the
// goroutine running the check; healthy and lastErr are read by handlers.
type probe struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	fails     int
	successes int
}

// observe records the result of one run and reports whether the health state
// flipped.
func (p *probe) observe(err error) (changed bool) {
	was := p.healthy.Load()
	if err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.successes = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
	} else {
		p.lastErr.Store(nil)
		p.fails = 0
		p.successes++
		if p.successes >= p.SuccessThreshold {
			p.healthy.Store(true)
		}
	}
	return was != p.healthy.Load()
}

func (p *probe) run(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return p.observe(p.Func(ctx))
}

// reason returns why the probe is unhealthy, or "".
func (p *probe) reason() string {
	if p.healthy.Load() {
		return ""
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is unhealthy"
}

// Health owns the registered checks and the manual readiness switch.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Health that is not ready until SetReady(true). A nil logger
// disables state change logging.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Add registers c. Zero thresholds default to 3 failures and 1 success, and a
// zero timeout defaults to one second. Checks start healthy.
func (h *Health) Add(c Check) {
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

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Liveness, Timeout: timeout, Func: fn})
}

// AddReadinessCheck registers a check that decides whether the instance
// should receive traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Readiness, Timeout: timeout, Func: fn})
}

// Start runs every check immediately and then once per interval, each in its
// own goroutine, until Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.loop(ctx, p, interval)
		}()
	}
}

func (h *Health) loop(ctx context.Context, p *probe, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if p.run(ctx) {
			h.logChange(p)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (h *Health) logChange(p *probe) {
	fields := []zap.Field{zap.String("check", p.Name), zap.String("kind", string(p.Kind))}
	if p.healthy.Load() {
		h.lg.Info("Health check recovered", fields...)
		return
	}
	h.lg.Warn("Health check failing", append(fields, zap.String("reason", p.reason()))...)
}

// Stop halts the background checks and waits for them to exit. It may be
// called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// SetReady flips the manual readiness switch. Set it after startup and clear
// it at the start of a graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the switch is on and every readiness check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

// failures maps failing check names to their reasons. No kinds means all.
func (h *Health) failures(kinds ...Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range h.probes {
		if len(kinds) > 0 && !slices.Contains(kinds, p.Kind) {
			continue
		}
		if r := p.reason(); r != "" {
			out[p.Name] = r
		}
	}
	return out
}

// Report is the JSON body of both probe endpoints.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeReport(w, failures)
}

// StatusEndpoint serves /healthz: every failing check of any kind. It answers
// 503 only when a liveness or readiness check fails and reports "degraded"
// when only dependency checks do.
func (h *Health) StatusEndpoint(w http.ResponseWriter, _ *http.Request) {
	all := h.failures()
	if len(h.failures(Liveness, Readiness)) > 0 || len(all) == 0 {
		writeReport(w, all)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Report{Status: "degraded", Checks: all})
}

func writeReport(w http.ResponseWriter, failures map[string]string) {
	rep := Report{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		rep = Report{Status: "unhealthy", Checks: failures}
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
