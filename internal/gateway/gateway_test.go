package gateway_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/gateway"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
)

// --- Mock ---

type mockModel struct {
	text string
	err  error
	last *domain.ModelRequest
}

func (m *mockModel) Generate(_ context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ModelResponse{Text: m.text, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (m *mockModel) Provider() string { return "mock" }

func newGateway(m *mockModel) *gateway.Gateway {
	return gateway.New(m, observability.NewMetrics(), zap.NewNop())
}

// --- Tests ---

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Sure! Here you go: {\"a\":[1,2]} Let me know.", `{"a":[1,2]}`},
		{"array", "result:\n[{\"x\":\"y\"}]", `[{"x":"y"}]`},
		{"braces in prose first", "use {curly} style: {\"ok\":true}", `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gateway.ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := gateway.ExtractJSON("I cannot help with that."); err == nil {
		t.Error("expected error for prose-only output")
	}
}

func TestMapLeadRows_BareArrayAndNumericPhone(t *testing.T) {
	m := &mockModel{text: `[
		{"first_name":"Ali","last_name":"Raza","phone":3001234567,"city":"Lahore","lead_category":"smb"},
		{"first_name":"Sara","phone":"0321 7654321","lead_category":"corporate"}
	]`}
	g := newGateway(m)

	leads, err := g.MapLeadRows(context.Background(), "Neural Workspace", []map[string]string{{"name": "ali raza"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	if leads[0].Phone != "3001234567" {
		t.Errorf("expected stringified phone, got %q", leads[0].Phone)
	}
	if m.last.Task != domain.TaskMapLeadRows {
		t.Errorf("unexpected task %q", m.last.Task)
	}
	if !strings.Contains(m.last.SystemInstruction, "Neural Workspace") {
		t.Error("system instruction should name the tenant")
	}
	if !strings.Contains(m.last.Payload, "ali raza") {
		t.Error("payload should carry the raw rows")
	}
}

func TestGenerateOutreach_MissingFieldIsGatewayError(t *testing.T) {
	g := newGateway(&mockModel{text: `{"email_subject":"Hi","email_body":"Body","probability":40}`})

	_, err := g.GenerateOutreach(context.Background(), &domain.OutreachRequest{FirstName: "Ali", TenantName: "Acme"})

	var gwErr *domain.ErrAIGateway
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected ErrAIGateway, got %v", err)
	}
	if gwErr.Task != domain.TaskOutreach {
		t.Errorf("unexpected task %q", gwErr.Task)
	}
}

func TestGenerateOutreach_RoundsProbabilities(t *testing.T) {
	g := newGateway(&mockModel{text: "```json\n" + `{"email_subject":"Hello","email_body":"Dear Ali","probability":72.6,"post_reply_probability":140,"strategy":"Call"}` + "\n```"})

	pkg, err := g.GenerateOutreach(context.Background(), &domain.OutreachRequest{FirstName: "Ali", TenantName: "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkg.Probability != 73 {
		t.Errorf("expected 73, got %d", pkg.Probability)
	}
	// clamping is the caller's job
	if pkg.PostReplyProbability != 140 {
		t.Errorf("expected raw 140, got %d", pkg.PostReplyProbability)
	}
}

func TestTriageChat_TransportError(t *testing.T) {
	transport := errors.New("connection refused")
	g := newGateway(&mockModel{err: transport})

	_, err := g.TriageChat(context.Background(), &domain.TriageRequest{Message: "hello"})

	if !errors.Is(err, transport) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestTriageChat_NonJSON(t *testing.T) {
	g := newGateway(&mockModel{text: "Our team will reach out shortly."})

	if _, err := g.TriageChat(context.Background(), &domain.TriageRequest{Message: "price?"}); err == nil {
		t.Fatal("expected error for non-JSON answer")
	}
}

func TestSuggestStage_OutOfVocabulary(t *testing.T) {
	g := newGateway(&mockModel{text: `{"stage":"negotiation","justification":"haggling"}`})

	if _, err := g.SuggestStage(context.Background(), &domain.StageRequest{Description: "x"}); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestSuggestStage_CaseInsensitive(t *testing.T) {
	g := newGateway(&mockModel{text: `{"stage":"Qualified","justification":"budget confirmed"}`})

	s, err := g.SuggestStage(context.Background(), &domain.StageRequest{Description: "x", Value: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Stage != domain.StageQualified {
		t.Errorf("expected qualified, got %s", s.Stage)
	}
}

func TestAnalyzeLead(t *testing.T) {
	m := &mockModel{text: `{"score":88,"sentiment":"POSITIVE","summary":"Keen buyer","strategy":"Send quote","intent_markers":["asked for pricing"],"lead_persona":"Decision maker"}`}
	g := newGateway(m)

	a, err := g.AnalyzeLead(context.Background(), &domain.LeadAnalysisRequest{
		Contact:    domain.Contact{FirstName: "Ali", City: "Lahore"},
		Transcript: []domain.Message{
			{Sender: domain.SenderLead, Content: "What is the price?"},
			{Sender: domain.SenderUser, Content: "It starts at 5000.", IsAIGenerated: true},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Score != 88 || len(a.IntentMarkers) != 1 {
		t.Errorf("unexpected analysis %+v", a)
	}
	if !strings.Contains(m.last.Payload, "[lead] What is the price?") {
		t.Error("payload should include the transcript")
	}
	if !strings.Contains(m.last.Payload, "[assistant] It starts at 5000.") {
		t.Error("agent replies should be labelled apart from operators")
	}
}
