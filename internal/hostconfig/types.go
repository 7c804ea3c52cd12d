// Package hostconfig owns the persisted runtime configuration: the list of
// backend hosts to aggregate and the host-less default endpoints.
package hostconfig

import (
	"maps"
	"strings"

	"pipeline-monitor/internal/model"
)

const (
	DefaultAPIPath          = "/composite-pipelines"
	DefaultFileDownloadPath = "/files"
)

type HostConfig struct {
	ID                  string            `json:"id" yaml:"id"`
	Label               string            `json:"label" yaml:"label"`
	APIBaseURL          string            `json:"apiBaseUrl" yaml:"apiBaseUrl"`
	FileDownloadBaseURL string            `json:"fileDownloadBaseUrl" yaml:"fileDownloadBaseUrl"`
	Enabled             bool              `json:"enabled" yaml:"enabled"`
	APIPath             string            `json:"apiPath,omitempty" yaml:"apiPath,omitempty"`
	FileDownloadPath    string            `json:"fileDownloadPath,omitempty" yaml:"fileDownloadPath,omitempty"`
	Headers             map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

func (h HostConfig) EffectiveFileBase() string {
	if v := strings.TrimSpace(h.FileDownloadBaseURL); v != "" {
		return v
	}
	return strings.TrimSpace(h.APIBaseURL)
}

func (h HostConfig) EffectiveAPIPath() string {
	if v := strings.TrimSpace(h.APIPath); v != "" {
		return v
	}
	return DefaultAPIPath
}

func (h HostConfig) EffectiveFilePath() string {
	if v := strings.TrimSpace(h.FileDownloadPath); v != "" {
		return v
	}
	return DefaultFileDownloadPath
}

func (h HostConfig) HasHeaders() bool {
	return len(h.Headers) > 0
}

func (h HostConfig) Provenance() model.Provenance {
	return model.Provenance{
		HostID:      h.ID,
		HostLabel:   h.Label,
		APIBaseURL:  strings.TrimSpace(h.APIBaseURL),
		FileBaseURL: h.EffectiveFileBase(),
	}
}

func (h HostConfig) clone() HostConfig {
	out := h
	if h.Headers != nil {
		out.Headers = maps.Clone(h.Headers)
	}
	return out
}

// RuntimeConfig is the document stored under DocumentKey.
type RuntimeConfig struct {
	APIBaseURL          string       `json:"apiBaseUrl" yaml:"apiBaseUrl"`
	FileDownloadBaseURL string       `json:"fileDownloadBaseUrl" yaml:"fileDownloadBaseUrl"`
	ConverterBaseURL    string       `json:"converterBaseUrl,omitempty" yaml:"converterBaseUrl,omitempty"`
	Hosts               []HostConfig `json:"hosts" yaml:"hosts"`
}

func (c RuntimeConfig) Clone() RuntimeConfig {
	out := c
	out.Hosts = make([]HostConfig, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		out.Hosts = append(out.Hosts, h.clone())
	}
	return out
}

func (c RuntimeConfig) EnabledHosts() []HostConfig {
	out := make([]HostConfig, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		if h.Enabled {
			out = append(out, h.clone())
		}
	}
	return out
}

func (c RuntimeConfig) Host(id string) (HostConfig, bool) {
	target := strings.TrimSpace(id)
	for _, h := range c.Hosts {
		if h.ID == target {
			return h.clone(), true
		}
	}
	return HostConfig{}, false
}

// DefaultHost is the host-less endpoint used when no host is enabled and
// as the last fallback. Its URLs come from the top-level fields, then from
// the first enabled host.
func (c RuntimeConfig) DefaultHost() HostConfig {
	api := strings.TrimSpace(c.APIBaseURL)
	file := strings.TrimSpace(c.FileDownloadBaseURL)
	var first *HostConfig
	for i := range c.Hosts {
		if c.Hosts[i].Enabled {
			first = &c.Hosts[i]
			break
		}
	}
	if api == "" && first != nil {
		api = strings.TrimSpace(first.APIBaseURL)
	}
	if file == "" && first != nil {
		file = first.EffectiveFileBase()
	}
	return HostConfig{
		Label:               "Default",
		APIBaseURL:          api,
		FileDownloadBaseURL: file,
		Enabled:             true,
	}
}

// HostInput describes a host to add. Enabled defaults to true.
type HostInput struct {
	Label               string
	APIBaseURL          string
	FileDownloadBaseURL string
	Enabled             *bool
	APIPath             string
	FileDownloadPath    string
	Headers             map[string]string
}

// HostPatch holds optional field updates. A nil field is left unchanged; a
// non-nil empty Headers map clears the headers.
type HostPatch struct {
	Label               *string
	APIBaseURL          *string
	FileDownloadBaseURL *string
	Enabled             *bool
	APIPath             *string
	FileDownloadPath    *string
	Headers             map[string]string
}

func (p HostPatch) IsEmpty() bool {
	return p.Label == nil && p.APIBaseURL == nil && p.FileDownloadBaseURL == nil &&
		p.Enabled == nil && p.APIPath == nil && p.FileDownloadPath == nil && p.Headers == nil
}
