package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint and
// requests a json_schema response format.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	guard   *resilience.Guard
}

// NewOpenAIClient creates an OpenAIClient. A non-empty BaseURL points it at a
// compatible gateway instead of api.openai.com.
func NewOpenAIClient(httpClient *http.Client, opts Options, guard *resilience.Guard) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = httpClient

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
		guard:   guard,
	}
}

// Provider implements port.ModelClient.
func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

// Generate sends one chat completion, bounded by the configured timeout.
func (c *OpenAIClient) Generate(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
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

	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Payload,
	})

	apiReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
	}
	if req.Schema != nil {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Task,
				Schema: req.Schema,
				Strict: false,
			},
		}
	} else {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var out *domain.ModelResponse
	start := time.Now()
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
				apiErr.HTTPStatusCode != http.StatusTooManyRequests {
				return resilience.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return fmt.Errorf("openai returned no content")
		}

		out = &domain.ModelResponse{
			Text:             resp.Choices[0].Message.Content,
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, &domain.ErrExternalService{Service: ProviderOpenAI, Err: err}
	}

	out.Latency = time.Since(start)
	span.SetAttributes(
		attribute.Int("ai.prompt_tokens", out.PromptTokens),
		attribute.Int("ai.completion_tokens", out.CompletionTokens),
	)
	return out, nil
}
