package domain

// ============================================================
// Health, Metrics & Dashboard API Responses
// ============================================================

// HealthStatus is returned by GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// AIMetrics is returned by GET /v1/metrics/ai.
type AIMetrics struct {
	TotalCalls          int64            `json:"totalCalls"`
	FailedCalls         int64            `json:"failedCalls"`
	ErrorRate           float64          `json:"errorRate"`
	Fallbacks           map[string]int64 `json:"fallbacks"`
	AvgTokensPerRequest float64          `json:"avgTokensPerRequest"`
	RowsImported        int64            `json:"rowsImported"`
	RowsDropped         int64            `json:"rowsDropped"`
	Provider            string           `json:"provider"`
}

// DashboardSummary is returned by GET /v1/dashboard.
type DashboardSummary struct {
	PipelineValue          int64             `json:"pipeline_value"`
	ClosedRevenue          int64             `json:"closed_revenue"`
	Currency               string            `json:"currency"`
	Contacts               int               `json:"contacts"`
	OpportunitiesByStage   map[Stage]int     `json:"opportunities_by_stage"`
	SentimentBreakdown     map[Sentiment]int `json:"sentiment_breakdown"`
	Drafts                 int               `json:"drafts"`
	EscalatedConversations int               `json:"escalated_conversations"`
	ActiveTriggers         int               `json:"active_triggers"`
	RecentOpportunities    []Opportunity     `json:"recent_opportunities"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
