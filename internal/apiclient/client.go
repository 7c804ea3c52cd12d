// Package apiclient talks to one composite-pipeline backend host.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/slogx"
)

const (
	DefaultTimeout = 10 * time.Second

	EndpointListActive      = "list_active"
	EndpointRealtimeStatus  = "realtime_status"
	EndpointExecutionStatus = "execution_status"
	EndpointFile            = "file"

	OutcomeOK           = "ok"
	OutcomeStatusError  = "status_error"
	OutcomeTransportErr = "transport_error"
	OutcomeDecodeError  = "decode_error"

	maxErrorBody = 4 << 10
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Observer receives one call per request.
type Observer interface {
	ObserveRequest(host, endpoint, outcome string, latency time.Duration)
}

type Client struct {
	host     hostconfig.HostConfig
	http     *http.Client
	observer Observer
	logger   *slog.Logger
	timeout  time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client bound to host. A host with an empty ID is the
// host-less default endpoint and its responses carry no provenance.
func New(host hostconfig.HostConfig, opts ...Option) *Client {
	c := &Client{
		host:   host,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slogx.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.http.Timeout != c.timeout {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

func (c *Client) Host() hostconfig.HostConfig {
	return c.host
}

type ListOptions struct {
	Limit                  int
	IncludeCompletedRecent *bool
	StatusFilter           string
}

func (c *Client) ListActive(ctx context.Context, opts ListOptions) ([]model.Execution, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.IncludeCompletedRecent != nil {
		q.Set("include_completed_recent", strconv.FormatBool(*opts.IncludeCompletedRecent))
	}
	if s := strings.TrimSpace(opts.StatusFilter); s != "" {
		q.Set("status_filter", s)
	}

	var out []model.Execution
	if err := c.getJSON(ctx, EndpointListActive, c.apiURL("/executions/active", q), &out); err != nil {
		return nil, err
	}
	return c.tagAll(out), nil
}

// RealtimeStatus fetches the current status of ids. No request is made for
// an empty id list.
func (c *Client) RealtimeStatus(ctx context.Context, ids []string) ([]model.Execution, error) {
	if len(ids) == 0 {
		return []model.Execution{}, nil
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("execution_ids", id)
	}

	var out []model.Execution
	if err := c.getJSON(ctx, EndpointRealtimeStatus, c.apiURL("/executions/realtime-status", q), &out); err != nil {
		return nil, err
	}
	return c.tagAll(out), nil
}

func (c *Client) ExecutionStatus(ctx context.Context, executionID string) (model.Execution, error) {
	id := strings.TrimSpace(executionID)
	if id == "" {
		return model.Execution{}, errors.New("execution id is required")
	}

	var out model.Execution
	if err := c.getJSON(ctx, EndpointExecutionStatus, c.apiURL("/"+url.PathEscape(id)+"/status", nil), &out); err != nil {
		return model.Execution{}, err
	}
	if c.host.ID != "" {
		out.Tag(c.host.Provenance())
	}
	return out, nil
}

func (c *Client) apiURL(path string, q url.Values) string {
	u := strings.TrimRight(strings.TrimSpace(c.host.APIBaseURL), "/") + c.host.EffectiveAPIPath() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) tagAll(rows []model.Execution) []model.Execution {
	if rows == nil {
		rows = []model.Execution{}
	}
	if c.host.ID == "" {
		return rows
	}
	p := c.host.Provenance()
	for i := range rows {
		rows[i].Tag(p)
	}
	return rows
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for k, v := range c.host.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, v any) error {
	body, err := c.get(ctx, endpoint, rawURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.observe(endpoint, OutcomeDecodeError, 0)
		return errors.Wrapf(err, "decode %s response from %s", endpoint, rawURL)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, rawURL, accept string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, OutcomeTransportErr, time.Since(start))
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.observe(endpoint, OutcomeStatusError, time.Since(start))
		return nil, &StatusError{
			Method:     http.MethodGet,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, OutcomeTransportErr, time.Since(start))
		return nil, errors.Wrapf(err, "read %s response from %s", endpoint, rawURL)
	}
	latency := time.Since(start)
	c.observe(endpoint, OutcomeOK, latency)
	c.logger.DebugContext(ctx, "api request",
		slog.String("host", c.hostName()),
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", latency),
	)
	return data, nil
}

func (c *Client) observe(endpoint, outcome string, latency time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRequest(c.hostName(), endpoint, outcome, latency)
}

func (c *Client) hostName() string {
	if c.host.ID == "" {
		return "default"
	}
	return c.host.ID
}
