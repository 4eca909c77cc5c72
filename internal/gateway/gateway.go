// Package gateway is the single point of contact with the model service.
// Each task sends a system instruction, a payload and a declared output
// schema, then parses and validates the answer. Failures are returned as
// *domain.ErrAIGateway and never retried here.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var tracer = otel.Tracer("gateway")

// Gateway implements port.AIGateway on top of a port.ModelClient.
type Gateway struct {
	client  port.ModelClient
	metrics *observability.Metrics
	logger  *zap.Logger
}

// New creates a Gateway.
func New(client port.ModelClient, metrics *observability.Metrics, logger *zap.Logger) *Gateway {
	return &Gateway{client: client, metrics: metrics, logger: logger}
}

var _ port.AIGateway = (*Gateway)(nil)

// invoke runs one model call and decodes the validated answer into out.
// shape may rewrite the generic decoded value before validation.
func (g *Gateway) invoke(ctx context.Context, task, system, payload string, schema *domain.Schema, shape func(any) any, out any) error {
	ctx, span := tracer.Start(ctx, "Gateway."+task)
	defer span.End()
	span.SetAttributes(attribute.String("ai.task", task))

	start := time.Now()
	err := g.call(ctx, task, system, payload, schema, shape, out)
	g.metrics.RecordAICall(task, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		g.logger.Warn("ai gateway call failed",
			zap.String("task", task),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return &domain.ErrAIGateway{Task: task, Err: err}
	}
	return nil
}

func (g *Gateway) call(ctx context.Context, task, system, payload string, schema *domain.Schema, shape func(any) any, out any) error {
	resp, err := g.client.Generate(ctx, &domain.ModelRequest{
		Task:              task,
		SystemInstruction: system,
		Payload:           payload,
		Schema:            schema,
	})
	if err != nil {
		return err
	}
	g.metrics.RecordTokens(resp.PromptTokens, resp.CompletionTokens)

	raw, err := ExtractJSON(resp.Text)
	if err != nil {
		return err
	}
	v, err := decodeAny(raw)
	if err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	if shape != nil {
		v = shape(v)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("model output does not match schema: %w", err)
	}

	normalized, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, out)
}

func marshalPayload(label string, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return label + ": {}"
	}
	return label + ": " + string(b)
}

func roundInt(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Round(f))
}

// ============================================================
// Tasks
// ============================================================

// MapLeadRows maps one chunk of raw rows to lead fields.
func (g *Gateway) MapLeadRows(ctx context.Context, tenantName string, rows []map[string]string) ([]domain.MappedLead, error) {
	var out struct {
		Leads []domain.MappedLead `json:"leads"`
	}
	err := g.invoke(ctx, domain.TaskMapLeadRows,
		mapRowsInstruction(tenantName),
		marshalPayload("Raw data chunk", rows),
		leadRowsSchema, shapeLeadRows, &out)
	if err != nil {
		return nil, err
	}
	return out.Leads, nil
}

// shapeLeadRows accepts a bare array or a single-array envelope and
// stringifies scalar fields.
func shapeLeadRows(v any) any {
	var arr []any
	switch x := v.(type) {
	case []any:
		arr = x
	case map[string]any:
		if leads, ok := x["leads"].([]any); ok {
			arr = leads
		} else {
			for _, val := range x {
				if a, ok := val.([]any); ok {
					arr = a
					break
				}
			}
		}
		if arr == nil {
			return v
		}
	default:
		return v
	}
	stringifyScalars(arr)
	return map[string]any{"leads": arr}
}

// GenerateOutreach drafts a first-contact email and forecast.
func (g *Gateway) GenerateOutreach(ctx context.Context, req *domain.OutreachRequest) (*domain.OutreachPackage, error) {
	var wire struct {
		Subject              string  `json:"email_subject"`
		Body                 string  `json:"email_body"`
		Probability          float64 `json:"probability"`
		PostReplyProbability float64 `json:"post_reply_probability"`
		Strategy             string  `json:"strategy"`
	}
	err := g.invoke(ctx, domain.TaskOutreach,
		outreachInstruction(req.TenantName),
		marshalPayload("Lead", req),
		outreachSchema, nil, &wire)
	if err != nil {
		return nil, err
	}
	return &domain.OutreachPackage{
		Subject:              wire.Subject,
		Body:                 wire.Body,
		Probability:          roundInt(wire.Probability),
		PostReplyProbability: roundInt(wire.PostReplyProbability),
		Strategy:             wire.Strategy,
	}, nil
}

// TriageChat answers a lead message and flags escalation.
func (g *Gateway) TriageChat(ctx context.Context, req *domain.TriageRequest) (*domain.TriageDecision, error) {
	payload := fmt.Sprintf("Lead: %s\nConversation so far:\n%s\nNew message: %s",
		req.ContactName, transcript(req.History), req.Message)

	var out domain.TriageDecision
	if err := g.invoke(ctx, domain.TaskTriage, triageInstruction(req.TenantName), payload, triageSchema, nil, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Reply) == "" {
		return nil, &domain.ErrAIGateway{Task: domain.TaskTriage, Err: fmt.Errorf("empty reply")}
	}
	return &out, nil
}

// SuggestStage maps a deal description to a funnel stage.
func (g *Gateway) SuggestStage(ctx context.Context, req *domain.StageRequest) (*domain.StageSuggestion, error) {
	payload := fmt.Sprintf("Deal value: %d\nDeal notes: %s", req.Value, req.Description)

	var out struct {
		Stage         string `json:"stage"`
		Justification string `json:"justification"`
	}
	if err := g.invoke(ctx, domain.TaskStage, stageInstruction(req.TenantName), payload, stageSchema, nil, &out); err != nil {
		return nil, err
	}
	stage, ok := domain.ParseStage(out.Stage)
	if !ok {
		return nil, &domain.ErrAIGateway{Task: domain.TaskStage, Err: fmt.Errorf("unknown stage %q", out.Stage)}
	}
	return &domain.StageSuggestion{Stage: stage, Justification: out.Justification}, nil
}

// AnalyzeLead scores a contact from its profile and transcript.
func (g *Gateway) AnalyzeLead(ctx context.Context, req *domain.LeadAnalysisRequest) (*domain.AIAnalysis, error) {
	c := req.Contact
	payload := fmt.Sprintf("Lead: %s\nCity: %s\nCategory: %s\nNotes: %s\nConversation:\n%s",
		c.FullName(), c.City, c.LeadCategory, c.Description, transcript(req.Transcript))

	var wire struct {
		Score         float64  `json:"score"`
		Sentiment     string   `json:"sentiment"`
		Summary       string   `json:"summary"`
		Strategy      string   `json:"strategy"`
		IntentMarkers []string `json:"intent_markers"`
		LeadPersona   string   `json:"lead_persona"`
	}
	if err := g.invoke(ctx, domain.TaskAnalyzeLead, analyzeInstruction(req.TenantName), payload, analysisSchema, nil, &wire); err != nil {
		return nil, err
	}
	return &domain.AIAnalysis{
		Score:         roundInt(wire.Score),
		Sentiment:     domain.Sentiment(wire.Sentiment),
		Summary:       wire.Summary,
		Strategy:      wire.Strategy,
		IntentMarkers: wire.IntentMarkers,
		LeadPersona:   wire.LeadPersona,
	}, nil
}
