package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Gemini generateContent REST endpoint with a JSON
// response schema.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	guard      *resilience.Guard
}

// NewGeminiClient creates a GeminiClient.
func NewGeminiClient(httpClient *http.Client, opts Options, guard *resilience.Guard) *GeminiClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = geminiBaseURL
	}
	return &GeminiClient{
		httpClient: httpClient,
		baseURL:    base,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		timeout:    opts.Timeout,
		guard:      guard,
	}
}

// Provider implements port.ModelClient.
func (c *GeminiClient) Provider() string { return ProviderGemini }

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64       `json:"temperature"`
	ResponseMIMEType string        `json:"responseMimeType,omitempty"`
	ResponseSchema   *geminiSchema `json:"responseSchema,omitempty"`
}

// geminiSchema is the OpenAPI flavour Gemini expects: upper-case types.
type geminiSchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]*geminiSchema `json:"properties,omitempty"`
	Items       *geminiSchema            `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	Enum        []string                 `json:"enum,omitempty"`
}

func toGeminiSchema(s *domain.Schema) *geminiSchema {
	if s == nil {
		return nil
	}
	out := &geminiSchema{
		Type:        strings.ToUpper(string(s.Type)),
		Description: s.Description,
		Items:       toGeminiSchema(s.Items),
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*geminiSchema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
	}
	return out
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
	ModelVersion  string               `json:"modelVersion"`
	Error         *geminiError         `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      *geminiContent `json:"content"`
	FinishReason string         `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends one request, bounded by the configured timeout.
func (c *GeminiClient) Generate(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	ctx, span := tracer.Start(ctx, "GeminiClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.task", req.Task),
		attribute.String("ai.model", c.model),
	)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	apiReq := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Payload}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.2,
			ResponseMIMEType: "application/json",
			ResponseSchema:   toGeminiSchema(req.Schema),
		},
	}
	if req.SystemInstruction != "" {
		apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))

	var out *domain.ModelResponse
	start := time.Now()
	err = c.guard.Do(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}

		var apiResp geminiResponse
		if err := json.Unmarshal(raw, &apiResp); err != nil {
			return fmt.Errorf("gemini returned status %d with undecodable body: %w", resp.StatusCode, err)
		}
		if apiResp.Error != nil || resp.StatusCode != http.StatusOK {
			msg := fmt.Sprintf("gemini returned status %d", resp.StatusCode)
			if apiResp.Error != nil {
				msg = fmt.Sprintf("%s (%s): %s", msg, apiResp.Error.Status, apiResp.Error.Message)
			}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return resilience.Permanent(fmt.Errorf("%s", msg))
			}
			return fmt.Errorf("%s", msg)
		}

		var text strings.Builder
		if len(apiResp.Candidates) > 0 && apiResp.Candidates[0].Content != nil {
			for _, part := range apiResp.Candidates[0].Content.Parts {
				text.WriteString(part.Text)
			}
		}
		if text.Len() == 0 {
			reason := ""
			if len(apiResp.Candidates) > 0 {
				reason = apiResp.Candidates[0].FinishReason
			}
			return fmt.Errorf("gemini returned no content (finish reason %q)", reason)
		}

		out = &domain.ModelResponse{Text: text.String(), Model: c.model}
		if apiResp.ModelVersion != "" {
			out.Model = apiResp.ModelVersion
		}
		if apiResp.UsageMetadata != nil {
			out.PromptTokens = apiResp.UsageMetadata.PromptTokenCount
			out.CompletionTokens = apiResp.UsageMetadata.CandidatesTokenCount
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, &domain.ErrExternalService{Service: ProviderGemini, Err: err}
	}

	out.Latency = time.Since(start)
	span.SetAttributes(
		attribute.Int("ai.prompt_tokens", out.PromptTokens),
		attribute.Int("ai.completion_tokens", out.CompletionTokens),
	)
	return out, nil
}
