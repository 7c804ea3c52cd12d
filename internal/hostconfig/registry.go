package hostconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/xid"

	"pipeline-monitor/internal/slogx"
	"pipeline-monitor/internal/store"
)

const (
	DocumentKey       = "runtime-config-v2"
	LegacyDocumentKey = "runtime-config-v1"
)

var (
	ErrHostNotFound  = errors.New("host not found")
	ErrLabelRequired = errors.New("host label is required")
	ErrInvalidHostID = errors.New("invalid host id")

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Source hands out immutable snapshots of the runtime configuration.
type Source interface {
	Snapshot() RuntimeConfig
}

// Registry is the single owner of the runtime configuration. Every
// mutation rewrites the whole document.
type Registry struct {
	mu       sync.RWMutex
	store    store.Store
	defaults RuntimeConfig
	cfg      RuntimeConfig
	logger   *slog.Logger
	newID    func() string
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// Open loads the persisted document. Unreadable documents are logged and
// treated as absent, so Open never fails.
func Open(s store.Store, defaults RuntimeConfig, opts ...Option) *Registry {
	r := &Registry{
		store:    s,
		defaults: defaults.Clone(),
		logger:   slogx.Discard(),
		newID:    func() string { return xid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.load()
	return r
}

func (r *Registry) load() RuntimeConfig {
	raw, ok, err := r.store.Get(DocumentKey)
	if err != nil {
		r.logger.Warn("read runtime config, using defaults", slog.String("key", DocumentKey), slogx.Error(err))
		return r.defaults.Clone()
	}
	if ok {
		cfg, err := r.decodeCurrent(raw)
		if err != nil {
			r.logger.Warn("parse runtime config, using defaults", slog.String("key", DocumentKey), slogx.Error(err))
			return r.defaults.Clone()
		}
		return cfg
	}

	legacyRaw, ok, err := r.store.Get(LegacyDocumentKey)
	if err != nil || !ok {
		if err != nil {
			r.logger.Warn("read legacy runtime config", slog.String("key", LegacyDocumentKey), slogx.Error(err))
		}
		return r.defaults.Clone()
	}
	cfg, err := r.decodeLegacy(legacyRaw)
	if err != nil {
		r.logger.Warn("parse legacy runtime config, using defaults", slog.String("key", LegacyDocumentKey), slogx.Error(err))
		return r.defaults.Clone()
	}
	if err := r.persist(cfg); err != nil {
		r.logger.Warn("persist migrated runtime config", slogx.Error(err))
	} else {
		r.logger.Info("migrated legacy runtime config", slog.String("from", LegacyDocumentKey), slog.String("to", DocumentKey))
	}
	return cfg
}

func (r *Registry) decodeCurrent(raw []byte) (RuntimeConfig, error) {
	var doc RuntimeConfig
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RuntimeConfig{}, err
	}
	out := RuntimeConfig{
		APIBaseURL:          firstNonEmpty(doc.APIBaseURL, r.defaults.APIBaseURL),
		FileDownloadBaseURL: firstNonEmpty(doc.FileDownloadBaseURL, r.defaults.FileDownloadBaseURL),
		ConverterBaseURL:    firstNonEmpty(doc.ConverterBaseURL, r.defaults.ConverterBaseURL),
	}
	if len(doc.Hosts) == 0 {
		out.Hosts = []HostConfig{r.syntheticDefault(doc.APIBaseURL, doc.FileDownloadBaseURL)}
		return out, nil
	}
	out.Hosts = make([]HostConfig, 0, len(doc.Hosts))
	for _, h := range doc.Hosts {
		if h.ID == "public" && h.Label == "Public" {
			h.Label = "Production"
		}
		out.Hosts = append(out.Hosts, h)
	}
	return out, nil
}

func (r *Registry) decodeLegacy(raw []byte) (RuntimeConfig, error) {
	var legacy struct {
		APIBaseURL          string `json:"apiBaseUrl"`
		FileDownloadBaseURL string `json:"fileDownloadBaseUrl"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return RuntimeConfig{}, err
	}
	return RuntimeConfig{
		APIBaseURL:          firstNonEmpty(legacy.APIBaseURL, r.defaults.APIBaseURL),
		FileDownloadBaseURL: firstNonEmpty(legacy.FileDownloadBaseURL, r.defaults.FileDownloadBaseURL),
		ConverterBaseURL:    r.defaults.ConverterBaseURL,
		Hosts:               []HostConfig{r.syntheticDefault(legacy.APIBaseURL, legacy.FileDownloadBaseURL)},
	}, nil
}

func (r *Registry) syntheticDefault(api, file string) HostConfig {
	return HostConfig{
		ID:                  "default",
		Label:               "Default",
		APIBaseURL:          firstNonEmpty(api, r.defaults.APIBaseURL),
		FileDownloadBaseURL: firstNonEmpty(file, r.defaults.FileDownloadBaseURL),
		Enabled:             true,
	}
}

func (r *Registry) Snapshot() RuntimeConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Clone()
}

func (r *Registry) ListEnabled() []HostConfig {
	return r.Snapshot().EnabledHosts()
}

func (r *Registry) AddHost(in HostInput) (HostConfig, error) {
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return HostConfig{}, ErrLabelRequired
	}
	if err := validateURLs(in.APIBaseURL, in.FileDownloadBaseURL); err != nil {
		return HostConfig{}, err
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	host := HostConfig{
		ID:                  Slug(label) + "-" + r.newID(),
		Label:               label,
		APIBaseURL:          strings.TrimSpace(in.APIBaseURL),
		FileDownloadBaseURL: strings.TrimSpace(in.FileDownloadBaseURL),
		Enabled:             enabled,
		APIPath:             strings.TrimSpace(in.APIPath),
		FileDownloadPath:    strings.TrimSpace(in.FileDownloadPath),
		Headers:             maps.Clone(in.Headers),
	}

	err := r.mutate(func(cfg *RuntimeConfig) (bool, error) {
		cfg.Hosts = append(cfg.Hosts, host)
		return true, nil
	})
	if err != nil {
		return HostConfig{}, err
	}
	return host.clone(), nil
}

// UpdateHost merges the set fields of patch into host id. An unknown id is
// a no-op and reports false.
func (r *Registry) UpdateHost(id string, patch HostPatch) (bool, error) {
	if patch.Label != nil && strings.TrimSpace(*patch.Label) == "" {
		return false, ErrLabelRequired
	}
	if patch.APIBaseURL != nil && !ValidURL(*patch.APIBaseURL) {
		return false, fmt.Errorf("%w: API base URL must start with http:// or https://", ErrInvalidURL)
	}
	if patch.FileDownloadBaseURL != nil {
		if v := strings.TrimSpace(*patch.FileDownloadBaseURL); v != "" && !ValidURL(v) {
			return false, fmt.Errorf("%w: file download base URL must start with http:// or https://", ErrInvalidURL)
		}
	}

	target := strings.TrimSpace(id)
	found := false
	err := r.mutate(func(cfg *RuntimeConfig) (bool, error) {
		for i := range cfg.Hosts {
			if cfg.Hosts[i].ID != target {
				continue
			}
			found = true
			applyPatch(&cfg.Hosts[i], patch)
			return true, nil
		}
		return false, nil
	})
	return found, err
}

func applyPatch(h *HostConfig, p HostPatch) {
	if p.Label != nil {
		h.Label = strings.TrimSpace(*p.Label)
	}
	if p.APIBaseURL != nil {
		h.APIBaseURL = strings.TrimSpace(*p.APIBaseURL)
	}
	if p.FileDownloadBaseURL != nil {
		h.FileDownloadBaseURL = strings.TrimSpace(*p.FileDownloadBaseURL)
	}
	if p.Enabled != nil {
		h.Enabled = *p.Enabled
	}
	if p.APIPath != nil {
		h.APIPath = strings.TrimSpace(*p.APIPath)
	}
	if p.FileDownloadPath != nil {
		h.FileDownloadPath = strings.TrimSpace(*p.FileDownloadPath)
	}
	if p.Headers != nil {
		if len(p.Headers) == 0 {
			h.Headers = nil
		} else {
			h.Headers = maps.Clone(p.Headers)
		}
	}
}

func (r *Registry) SetEnabled(id string, enabled bool) (bool, error) {
	return r.UpdateHost(id, HostPatch{Enabled: &enabled})
}

func (r *Registry) RemoveHost(id string) (bool, error) {
	target := strings.TrimSpace(id)
	removed := false
	err := r.mutate(func(cfg *RuntimeConfig) (bool, error) {
		for i := range cfg.Hosts {
			if cfg.Hosts[i].ID == target {
				cfg.Hosts = append(cfg.Hosts[:i], cfg.Hosts[i+1:]...)
				removed = true
				return true, nil
			}
		}
		return false, nil
	})
	return removed, err
}

func (r *Registry) ResetToDefaults() error {
	return r.mutate(func(cfg *RuntimeConfig) (bool, error) {
		*cfg = r.defaults.Clone()
		return true, nil
	})
}

// Save writes the current configuration, creating the document when it
// does not exist yet.
func (r *Registry) Save() error {
	return r.mutate(func(*RuntimeConfig) (bool, error) { return true, nil })
}

func (r *Registry) SetAPIBaseURL(url string) error {
	return r.setTopLevel(url, func(cfg *RuntimeConfig, v string) { cfg.APIBaseURL = v })
}

func (r *Registry) SetFileDownloadBaseURL(url string) error {
	return r.setTopLevel(url, func(cfg *RuntimeConfig, v string) { cfg.FileDownloadBaseURL = v })
}

// SetConverterBaseURL stores the converter base. An empty or non-http URL
// is stored as given; exports then rasterize locally.
func (r *Registry) SetConverterBaseURL(url string) error {
	return r.mutate(func(cfg *RuntimeConfig) (bool, error) {
		cfg.ConverterBaseURL = strings.TrimSpace(url)
		return true, nil
	})
}

func (r *Registry) setTopLevel(url string, set func(*RuntimeConfig, string)) error {
	v := strings.TrimSpace(url)
	if v != "" && !ValidURL(v) {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidURL, v)
	}
	return r.mutate(func(cfg *RuntimeConfig) (bool, error) {
		set(cfg, v)
		return true, nil
	})
}

// mutate applies fn to a copy of the configuration and persists the whole
// document when fn reports a change. The in-memory state only changes
// after a successful write.
func (r *Registry) mutate(fn func(cfg *RuntimeConfig) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cfg.Clone()
	changed, err := fn(&next)
	if err != nil || !changed {
		return err
	}
	if err := r.persist(next); err != nil {
		return err
	}
	r.cfg = next
	return nil
}

func (r *Registry) persist(cfg RuntimeConfig) error {
	return r.store.Update(func() error {
		if err := r.store.SetJSON(DocumentKey, cfg); err != nil {
			return fmt.Errorf("save runtime config: %w", err)
		}
		return nil
	})
}

func validateURLs(api, file string) error {
	if !ValidURL(api) {
		return fmt.Errorf("%w: API base URL must start with http:// or https://", ErrInvalidURL)
	}
	if v := strings.TrimSpace(file); v != "" && !ValidURL(v) {
		return fmt.Errorf("%w: file download base URL must start with http:// or https://", ErrInvalidURL)
	}
	return nil
}

// Slug lower-cases label and collapses whitespace runs to '-'. ':' is
// replaced as well since it separates host and execution in row ids.
func Slug(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = whitespaceRun.ReplaceAllString(s, "-")
	return strings.ReplaceAll(s, ":", "-")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
