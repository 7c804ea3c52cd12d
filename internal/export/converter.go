package export

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pipeline-monitor/internal/apiclient"
)

var converterURLPattern = regexp.MustCompile(`(?i)^https?://`)

func ValidBaseURL(raw string) bool {
	return converterURLPattern.MatchString(strings.TrimSpace(raw))
}

const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskError     = "error"
	TaskCancelled = "cancelled"
)

// Converter is a client for the external PDF-to-images conversion service.
type Converter struct {
	base *url.URL
	http *http.Client
}

func NewConverter(base string, hc *http.Client) (*Converter, error) {
	if !ValidBaseURL(base) {
		return nil, errors.Errorf("invalid converter base URL %q", base)
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid converter base URL %q", base)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Converter{base: u, http: hc}, nil
}

type StartResult struct {
	TaskID      string `json:"task_id,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

type TaskStatus struct {
	Status      string
	Total       int
	Completed   int
	DownloadURL string
	Error       string
}

type convertRequest struct {
	InputURLs    []string `json:"input_urls"`
	OutputFormat string   `json:"output_format"`
	Zip          bool     `json:"zip"`
}

func (c *Converter) Start(ctx context.Context, urls []string) (StartResult, error) {
	body, err := json.Marshal(convertRequest{InputURLs: urls, OutputFormat: "png", Zip: true})
	if err != nil {
		return StartResult{}, errors.Wrap(err, "marshal convert request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/convert/pdf-to-images"), bytes.NewReader(body))
	if err != nil {
		return StartResult{}, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := apiclient.Download(c.http, req)
	if err != nil {
		return StartResult{}, errors.Wrap(err, "start conversion")
	}
	var out StartResult
	if err := json.Unmarshal(data, &out); err != nil {
		return StartResult{}, errors.Wrap(err, "decode conversion start response")
	}
	if out.DownloadURL != "" {
		out.DownloadURL = c.Resolve(out.DownloadURL)
	}
	if out.TaskID == "" && out.DownloadURL == "" {
		return StartResult{}, errors.New("conversion start returned neither task id nor download url")
	}
	return out, nil
}

type rawTaskStatus struct {
	Status         string   `json:"status"`
	TotalPages     *float64 `json:"total_pages"`
	Total          *float64 `json:"total"`
	CompletedPages *float64 `json:"completed_pages"`
	Completed      *float64 `json:"completed"`
	DownloadURL    string   `json:"download_url"`
	Error          string   `json:"error"`
}

func (c *Converter) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/tasks/"+url.PathEscape(taskID)), nil)
	if err != nil {
		return TaskStatus{}, errors.WithStack(err)
	}
	data, err := apiclient.Download(c.http, req)
	if err != nil {
		return TaskStatus{}, errors.Wrap(err, "poll conversion task")
	}
	var raw rawTaskStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return TaskStatus{}, errors.Wrap(err, "decode conversion task status")
	}
	st := TaskStatus{
		Status:    strings.ToLower(strings.TrimSpace(raw.Status)),
		Total:     firstPositive(raw.TotalPages, raw.Total),
		Completed: firstPositive(raw.CompletedPages, raw.Completed),
		Error:     raw.Error,
	}
	if st.Status == "" {
		st.Status = TaskRunning
	}
	if raw.DownloadURL != "" {
		st.DownloadURL = c.Resolve(raw.DownloadURL)
	}
	return st, nil
}

func (c *Converter) Cancel(ctx context.Context, taskID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/tasks/"+url.PathEscape(taskID)+"/cancel"), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := apiclient.Download(c.http, req); err != nil {
		return errors.Wrap(err, "cancel conversion task")
	}
	return nil
}

// Download fetches a finished archive.
func (c *Converter) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Resolve(downloadURL), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return apiclient.Download(c.http, req)
}

// Resolve makes a download URL absolute; the service may answer with a
// path relative to its base.
func (c *Converter) Resolve(raw string) string {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || ref.IsAbs() {
		return raw
	}
	if strings.HasPrefix(ref.Path, "/") {
		return c.base.String() + ref.String()
	}
	return c.base.String() + "/" + ref.String()
}

func (c *Converter) endpoint(path string) string {
	return c.base.String() + path
}

func firstPositive(values ...*float64) int {
	for _, v := range values {
		if v != nil && *v > 0 {
			return int(*v)
		}
	}
	return 0
}
