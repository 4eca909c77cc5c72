package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var advisorTracer = otel.Tracer("service/advisor")

const (
	// FallbackStageJustification accompanies the default stage when the
	// model could not be used.
	FallbackStageJustification = "Stage advisor unavailable, defaulting to lead."
	skippedStageJustification  = "Add more detail to the description to get a stage suggestion."
)

// StageAdvisor suggests a pipeline stage from a deal description. The model
// is only asked once the visible text is longer than the minimum length.
type StageAdvisor struct {
	gateway  port.AIGateway
	cache    port.Cache[domain.StageSuggestion]
	minChars int
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewStageAdvisor creates the advisor. cache may be nil.
func NewStageAdvisor(gw port.AIGateway, cache port.Cache[domain.StageSuggestion], minChars int, metrics *observability.Metrics, logger *zap.Logger) *StageAdvisor {
	return &StageAdvisor{gateway: gw, cache: cache, minChars: minChars, metrics: metrics, logger: logger}
}

// ShouldAdvise reports whether the description carries enough text.
func (a *StageAdvisor) ShouldAdvise(description string) bool {
	return domain.RuneLen(domain.StripMarkup(description)) > a.minChars
}

// Suggest returns a stage for the deal. It never fails: short descriptions
// and gateway errors both yield the lead stage.
func (a *StageAdvisor) Suggest(ctx context.Context, tenantName, description string, value int64) *domain.StageSuggestion {
	ctx, span := advisorTracer.Start(ctx, "StageAdvisor.Suggest")
	defer span.End()

	text := domain.StripMarkup(description)
	if domain.RuneLen(text) <= a.minChars {
		span.SetAttributes(attribute.Bool("advisor.invoked", false))
		return &domain.StageSuggestion{Stage: domain.StageLead, Justification: skippedStageJustification, Skipped: true}
	}

	key := fmt.Sprintf("%s|%d|%s", tenantName, value, text)
	if a.cache != nil {
		if s, ok := a.cache.Get(key); ok {
			a.metrics.IncrCacheHit("advisor")
			return &s
		}
		a.metrics.IncrCacheMiss("advisor")
	}

	span.SetAttributes(attribute.Bool("advisor.invoked", true))
	start := time.Now()
	s, err := a.gateway.SuggestStage(ctx, &domain.StageRequest{
		Description: text,
		Value:       value,
		TenantName:  tenantName,
	})
	a.metrics.RecordRequestDuration("advisor", time.Since(start))
	if err != nil {
		a.metrics.IncrFallback(observability.ComponentAdvisor)
		a.logger.Warn("stage advisor failed, defaulting to lead", zap.Error(err))
		return &domain.StageSuggestion{Stage: domain.StageLead, Justification: FallbackStageJustification, Fallback: true}
	}

	if a.cache != nil {
		a.cache.Set(key, *s)
	}
	return s
}

// DraftSession follows a description as it is being typed and asks the
// advisor once typing pauses. A newer edit cancels any call still in flight,
// and its result is discarded.
type DraftSession struct {
	advisor    *StageAdvisor
	debouncer  *Debouncer
	tenantName string
	onResult   func(domain.StageSuggestion)

	ctx context.Context
	// mu guards the fields below and is held while a result is delivered,
	// so an Update either lands before a delivery or supersedes it.
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	closed bool
}

// NewDraftSession binds a debouncer to the advisor. onResult is called from
// the debouncer's goroutine.
func (a *StageAdvisor) NewDraftSession(ctx context.Context, tenantName string, delay time.Duration, onResult func(domain.StageSuggestion)) *DraftSession {
	return &DraftSession{
		advisor:    a,
		debouncer:  NewDebouncer(delay),
		tenantName: tenantName,
		onResult:   onResult,
		ctx:        ctx,
	}
}

// Update records the latest draft.
func (s *DraftSession) Update(description string, value int64) {
	seq := s.supersede()

	if !s.advisor.ShouldAdvise(description) {
		s.debouncer.Cancel()
		return
	}

	s.debouncer.Trigger(func() {
		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()
		s.mu.Lock()
		if s.closed || seq != s.seq {
			s.mu.Unlock()
			return
		}
		s.cancel = cancel
		s.mu.Unlock()

		res := s.advisor.Suggest(ctx, s.tenantName, description, value)

		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.seq || s.closed || ctx.Err() != nil {
			return
		}
		s.cancel = nil
		s.onResult(*res)
	})
}

// supersede cancels the call in flight and returns the new draft number.
// Results tagged with an older number are dropped.
func (s *DraftSession) supersede() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.seq
}

func (s *DraftSession) cancelInFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Close stops the session; no further results are delivered.
func (s *DraftSession) Close() {
	s.debouncer.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelInFlight()
}
