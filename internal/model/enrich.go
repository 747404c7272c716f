package model

import "time"

// Operation names one of the three enrichment operations.
type Operation string

const (
	OpCategorize Operation = "categorize"
	OpDescribe   Operation = "describe"
	OpAnomaly    Operation = "anomaly"
)

// Operations lists every operation in pipeline order.
var Operations = []Operation{OpCategorize, OpDescribe, OpAnomaly}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCategorize, OpDescribe, OpAnomaly:
		return true
	}
	return false
}

// StrategyFallback marks results produced without the generation backend.
const StrategyFallback = "fallback"

// CategorizationResult is the outcome of the categorize operation.
type CategorizationResult struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Strategy   string  `json:"strategy"`
}

// DescriptionResult is the outcome of the describe operation.
type DescriptionResult struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	SEOScore    int      `json:"seo_score"`
	Strategy    string   `json:"strategy"`
}

// AnomalyResult is the outcome of the anomaly operation.
type AnomalyResult struct {
	RiskScore       int      `json:"risk_score"`
	Anomalies       []string `json:"anomalies"`
	Recommendations []string `json:"recommendations"`
	Strategy        string   `json:"strategy"`
}

// AuditEntry records one enrichment attempt. Entries are append-only.
type AuditEntry struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	Operation    Operation `json:"operation"`
	Strategy     string    `json:"strategy"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// BatchStatus is the status field of a result envelope.
type BatchStatus string

const (
	BatchStatusSuccess BatchStatus = "success"
	BatchStatusError   BatchStatus = "error"
)

// BatchResult is the status envelope returned by every batch operation.
type BatchResult struct {
	Operation  string      `json:"operation"`
	Status     BatchStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	Processed  int         `json:"processed"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Created    int         `json:"created,omitempty"`
	Updated    int         `json:"updated,omitempty"`
	Rejected   int         `json:"rejected,omitempty"`
	Flagged    int         `json:"flagged,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Fail marks the envelope as failed with the given message.
func (b *BatchResult) Fail(msg string) {
	b.Status = BatchStatusError
	b.Message = msg
}
