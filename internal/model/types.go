package model

import (
	"strings"
	"time"
)

// Execution is one composite-pipeline execution as reported by a backend
// host. The host_* fields are provenance added on the client side and are
// never sent back to a backend.
type Execution struct {
	ExecutionID         string  `json:"execution_id" yaml:"execution_id"`
	Name                string  `json:"name" yaml:"name"`
	Status              string  `json:"status" yaml:"status"`
	OverallProgress     float64 `json:"overall_progress" yaml:"overall_progress"`
	CreatedAt           string  `json:"created_at" yaml:"created_at"`
	StartedAt           string  `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt         string  `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	EstimatedCompletion string  `json:"estimated_completion,omitempty" yaml:"estimated_completion,omitempty"`
	DurationSeconds     float64 `json:"duration_seconds" yaml:"duration_seconds"`
	Steps               []Step  `json:"steps" yaml:"steps"`
	ErrorMessage        string  `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	HostID          string `json:"host_id,omitempty" yaml:"host_id,omitempty"`
	HostLabel       string `json:"host_label,omitempty" yaml:"host_label,omitempty"`
	HostAPIBaseURL  string `json:"host_api_base_url,omitempty" yaml:"host_api_base_url,omitempty"`
	HostFileBaseURL string `json:"host_file_base_url,omitempty" yaml:"host_file_base_url,omitempty"`
}

type Step struct {
	StepID          string   `json:"step_id" yaml:"step_id"`
	Name            string   `json:"name" yaml:"name"`
	Status          string   `json:"status" yaml:"status"`
	Progress        float64  `json:"progress" yaml:"progress"`
	StartedAt       string   `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt     string   `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	JobIDs          []string `json:"job_ids" yaml:"job_ids"`
	InputKeys       []string `json:"input_keys" yaml:"input_keys"`
	OutputKeys      []string `json:"output_keys" yaml:"output_keys"`
	DurationSeconds float64  `json:"duration_seconds" yaml:"duration_seconds"`
	ErrorMessage    string   `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Provenance identifies the host an execution was fetched from.
type Provenance struct {
	HostID      string
	HostLabel   string
	APIBaseURL  string
	FileBaseURL string
}

func (e *Execution) Tag(p Provenance) {
	e.HostID = p.HostID
	e.HostLabel = p.HostLabel
	e.HostAPIBaseURL = p.APIBaseURL
	e.HostFileBaseURL = p.FileBaseURL
}

func (e Execution) HasProvenance() bool {
	return strings.TrimSpace(e.HostID) != ""
}

// RowID is the composite (host, execution) key used for display rows.
func (e Execution) RowID() string {
	if e.HostID == "" {
		return e.ExecutionID
	}
	return e.HostID + ":" + e.ExecutionID
}

// ParseRowID splits a composite row id. Host ids never contain ':', so only
// the first separator splits.
func ParseRowID(id string) (hostID, executionID string) {
	raw := strings.TrimSpace(id)
	i := strings.Index(raw, ":")
	if i < 0 {
		return "", raw
	}
	return raw[:i], raw[i+1:]
}

func (e Execution) ShortID() string {
	return ShortID(e.ExecutionID)
}

func ShortID(id string) string {
	r := []rune(id)
	if len(r) <= 8 {
		return id
	}
	return string(r[:8])
}

func (e Execution) Created() time.Time {
	return ParseTimestamp(e.CreatedAt)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp accepts RFC3339 and the zone-less ISO forms some backends
// emit, which are read as UTC. Unparseable input yields the zero time.
func ParseTimestamp(raw string) time.Time {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
