package types

import (
	"time"
)

// OutcomeStatus is the terminal state of one applied plan item.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusFailed    OutcomeStatus = "failed"
	StatusSkipped   OutcomeStatus = "skipped"
)

// ItemOutcome records how a single planned change fared during apply.
type ItemOutcome struct {
	Op       Operation     `json:"op" yaml:"op"`
	Record   *AssetRecord  `json:"record" yaml:"record"`
	Status   OutcomeStatus `json:"status" yaml:"status"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempts int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Counts aggregates outcomes per category.
type Counts struct {
	TotalConsidered int `json:"total_considered" yaml:"total_considered"`
	Created         int `json:"created" yaml:"created"`
	Updated         int `json:"updated" yaml:"updated"`
	Deleted         int `json:"deleted" yaml:"deleted"`
	Skipped         int `json:"skipped" yaml:"skipped"`
	Failed          int `json:"failed" yaml:"failed"`
}

// SyncResult summarizes one provider scope's reconciliation pass.
// Immutable once returned by the aggregator.
type SyncResult struct {
	ProviderType string        `json:"provider_type" yaml:"provider_type"`
	ProviderName string        `json:"provider_name" yaml:"provider_name"`
	NodePath     string        `json:"node_path" yaml:"node_path"`
	Counts       Counts        `json:"counts" yaml:"counts"`
	Outcomes     []ItemOutcome `json:"outcomes" yaml:"outcomes"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded reports whether the scope completed without a fatal error.
func (r *SyncResult) Succeeded() bool {
	return r.Error == ""
}

// RunSummary is the whole-run summary handed to the notifier: per-scope
// results plus the record lists for display. Rendering and transport are
// the notifier's concern.
type RunSummary struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Results   []SyncResult  `json:"results" yaml:"results"`

	Created []AssetRecord `json:"created,omitempty" yaml:"created,omitempty"`
	Updated []AssetRecord `json:"updated,omitempty" yaml:"updated,omitempty"`
	Deleted []AssetRecord `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Totals sums counts across all scopes.
func (s *RunSummary) Totals() Counts {
	var t Counts
	for _, r := range s.Results {
		t.TotalConsidered += r.Counts.TotalConsidered
		t.Created += r.Counts.Created
		t.Updated += r.Counts.Updated
		t.Deleted += r.Counts.Deleted
		t.Skipped += r.Counts.Skipped
		t.Failed += r.Counts.Failed
	}
	return t
}
