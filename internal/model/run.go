package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Outcome maps a finished run onto the result envelope status. A run that
// is still going has no outcome yet.
func (s RunStatus) Outcome() BatchStatus {
	switch s {
	case RunStatusComplete:
		return BatchStatusSuccess
	case RunStatusFailed:
		return BatchStatusError
	}
	return ""
}

// RunFlags selects which phases a pipeline run executes.
type RunFlags struct {
	Ingest     bool     `json:"ingest"`
	Categorize bool     `json:"categorize"`
	Describe   bool     `json:"describe"`
	Anomaly    bool     `json:"anomaly"`
	Limit      int      `json:"limit"`
	Force      bool     `json:"force"`
	Inputs     []string `json:"inputs,omitempty"`
	Format     string   `json:"format,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// Counters aggregates item counts across a run.
type Counters struct {
	Scraped     int `json:"products_scraped"`
	Rejected    int `json:"products_rejected"`
	Categorized int `json:"products_categorized"`
	Described   int `json:"descriptions_generated"`
	Scored      int `json:"anomalies_scored"`
	Flagged     int `json:"products_flagged"`
	Errors      int `json:"errors"`
}

// Run represents a single pipeline execution. Status is the tracked row
// state; Outcome is the envelope status reported to callers.
type Run struct {
	ID         string        `json:"id"`
	Outcome    BatchStatus   `json:"status,omitempty"`
	Status     RunStatus     `json:"run_status"`
	Flags      RunFlags      `json:"flags"`
	Counters   Counters      `json:"counters"`
	Phases     []PhaseResult `json:"phases,omitempty"`
	Error      string        `json:"error,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string       `json:"name"`
	Status   PhaseStatus  `json:"status"`
	Duration int64        `json:"duration_ms"`
	Batch    *BatchResult `json:"batch,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// RunFilter narrows run listings.
type RunFilter struct {
	Status RunStatus
	Limit  int
}
