// Package ai holds the model backends behind port.ModelClient.
package ai

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var tracer = otel.Tracer("infra/ai")

// Provider names accepted by NewModelClient.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Options configures a model backend.
type Options struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	Resilience resilience.Config
}

// NewModelClient builds the backend selected by opts.Provider. Both backends
// share one guard so the bulkhead caps model calls process-wide.
func NewModelClient(httpClient *http.Client, opts Options, logger *zap.Logger) (port.ModelClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	guard := resilience.NewGuard("model-"+opts.Provider, opts.Resilience, logger)

	switch opts.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(httpClient, opts, guard), nil
	case ProviderOpenAI:
		return NewOpenAIClient(httpClient, opts, guard), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", opts.Provider)
	}
}
