// Package orchestrator wires RateLimiter, HealthMonitor, SingleFlight
// history, PromptPlanner, and IterativeStrategy behind a single public
// Fetch entry, mirroring the teacher's context.Context-first threading
// convention for every suspension point.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"recoforge/pkg/catalog"
	"recoforge/pkg/generator"
	"recoforge/pkg/health"
	"recoforge/pkg/history"
	"recoforge/pkg/logx"
	"recoforge/pkg/metrics"
	"recoforge/pkg/planner"
	"recoforge/pkg/strategy"
)

// defaultDeadline bounds a single Fetch's end-to-end execution.
const defaultDeadline = 120 * time.Second

type correlationKey struct{}

// CorrelationID returns the correlation id carried by ctx, or "" if none
// has been attached.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// Deps bundles the per-backend collaborators a single Fetch call needs.
// Generator is expected to already be wrapped with the rate-limit,
// circuit, timeout, retry, and metrics middlewares.
type Deps struct {
	Generator generator.Generator
	Planner   *planner.Planner
	Library   catalog.Library
	Profile   catalog.Profile
	Budget    planner.Budget
}

// Orchestrator is the top-level recommendation entry point.
type Orchestrator struct {
	history  *history.Store
	health   *health.Monitor
	logger   *logx.Logger
	recorder metrics.Recorder
	deadline time.Duration
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithDeadline overrides the default 120s per-fetch deadline.
func WithDeadline(d time.Duration) Option { return func(o *Orchestrator) { o.deadline = d } }

// WithLogger attaches a logger for request start/complete events.
func WithLogger(l *logx.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithRecorder attaches a metrics recorder for fetch-level observations.
func WithRecorder(r metrics.Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// New builds an Orchestrator over the given history and health collaborators.
func New(h *history.Store, mon *health.Monitor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		history:  h,
		health:   mon,
		recorder: metrics.Nop(),
		deadline: defaultDeadline,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fetch computes the operation key for req, routes it through the
// single-flight/throttle history store, and on the winning execution runs
// the health gate, the iterative strategy, and the dedupe/filter pipeline.
// Concurrent callers sharing an operationKey observe the same result.
func (o *Orchestrator) Fetch(ctx context.Context, backendID string, req catalog.RequestSpec, deps Deps) ([]catalog.Recommendation, error) {
	correlationID := uuid.NewString()
	ctx = withCorrelationID(ctx, correlationID)

	opKey := operationKey(backendID, req, deps.Library.Fingerprint())
	start := time.Now()

	o.logEvent("request.start", correlationID, backendID, opKey)

	result, err := o.history.Run(opKey, func() (any, error) {
		return o.execute(ctx, backendID, req, deps)
	})

	elapsedMs := float64(time.Since(start).Milliseconds())
	o.recorder.Observe("fetch.elapsed_ms", elapsedMs, map[string]string{"backend": backendID})
	o.logEvent("request.complete", correlationID, backendID, opKey)

	if err != nil {
		return nil, err
	}
	recs, _ := result.([]catalog.Recommendation)
	return recs, nil
}

func (o *Orchestrator) execute(ctx context.Context, backendID string, req catalog.RequestSpec, deps Deps) ([]catalog.Recommendation, error) {
	if o.health.Status(backendID) == health.Unhealthy {
		return []catalog.Recommendation{}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	onRound := func(iteration, requested, received, unique int) {
		o.logDebugf("fetch iteration=%d requested=%d received=%d unique=%d backend=%s",
			iteration, requested, received, unique, backendID)
	}

	raw := strategy.Recommend(fetchCtx, deps.Generator, planAdapter{deps.Planner}, req, deps.Profile, deps.Library, deps.Budget, onRound)

	// Drop items surfaced by earlier fetches before Dedupe records this
	// batch in history, so this batch's own keys do not filter it out.
	fresh := o.history.Filter(req.Mode, raw, nil)
	return o.history.Dedupe(req.Mode, fresh), nil
}

// planAdapter narrows *planner.Planner to the strategy.Planner interface.
type planAdapter struct{ p *planner.Planner }

func (a planAdapter) Plan(spec catalog.RequestSpec, profile catalog.Profile, lib catalog.Library, budget planner.Budget, appendix string) planner.PromptPlan {
	return a.p.Plan(spec, profile, lib, budget, appendix)
}

// operationKey hashes the fields that identify a logically distinct fetch:
// backend, model, target count, mode, discovery mode, tier, and library
// state.
func operationKey(backendID string, req catalog.RequestSpec, libraryFingerprint string) string {
	parts := []string{
		backendID, req.ModelID, strconv.Itoa(req.TargetCount),
		string(req.Mode), string(req.DiscoveryMode), string(req.SamplingTier),
		libraryFingerprint,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%x", binary.BigEndian.Uint64(sum[:8]))
}

func (o *Orchestrator) logEvent(event, correlationID, backendID, opKey string) {
	if o.logger == nil {
		return
	}
	o.logger.Info("%s correlation_id=%s backend=%s operation_key=%s", event, correlationID, backendID, opKey)
}

func (o *Orchestrator) logDebugf(format string, args ...any) {
	if o.logger == nil {
		return
	}
	o.logger.Debug(format, args...)
}
