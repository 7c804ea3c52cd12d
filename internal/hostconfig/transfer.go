package hostconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

type hostList struct {
	Hosts []HostConfig `json:"hosts" yaml:"hosts"`
}

// ExportHosts renders every host, enabled or not, as YAML or JSON.
func (r *Registry) ExportHosts(format string) ([]byte, error) {
	doc := hostList{Hosts: r.Snapshot().Hosts}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode hosts as yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode hosts as yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode hosts as json: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported format %q (use yaml or json)", format)
	}
}

type ImportResult struct {
	Added    int
	Replaced int
}

// ImportHosts reads a host list in YAML or JSON, either bare or under a
// "hosts" key. Hosts with a known id replace the existing entry; hosts
// without an id get a generated one. With replace set, the imported list
// becomes the whole host list.
func (r *Registry) ImportHosts(data []byte, replace bool) (ImportResult, error) {
	hosts, err := decodeHostList(data)
	if err != nil {
		return ImportResult{}, err
	}
	for i := range hosts {
		h := &hosts[i]
		h.Label = strings.TrimSpace(h.Label)
		h.ID = strings.TrimSpace(h.ID)
		if h.Label == "" {
			return ImportResult{}, fmt.Errorf("host %d: %w", i+1, ErrLabelRequired)
		}
		if err := validateURLs(h.APIBaseURL, h.FileDownloadBaseURL); err != nil {
			return ImportResult{}, fmt.Errorf("host %q: %w", h.Label, err)
		}
		if strings.Contains(h.ID, ":") {
			return ImportResult{}, fmt.Errorf("%w: %q must not contain ':'", ErrInvalidHostID, h.ID)
		}
		if h.ID == "" {
			h.ID = Slug(h.Label) + "-" + r.newID()
		}
	}

	var result ImportResult
	err = r.mutate(func(cfg *RuntimeConfig) (bool, error) {
		if replace {
			cfg.Hosts = hosts
			result.Added = len(hosts)
			return true, nil
		}
		index := make(map[string]int, len(cfg.Hosts))
		for i, h := range cfg.Hosts {
			index[h.ID] = i
		}
		for _, h := range hosts {
			if i, ok := index[h.ID]; ok {
				cfg.Hosts[i] = h
				result.Replaced++
				continue
			}
			index[h.ID] = len(cfg.Hosts)
			cfg.Hosts = append(cfg.Hosts, h)
			result.Added++
		}
		return true, nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

func decodeHostList(data []byte) ([]HostConfig, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("host list is empty")
	}
	if trimmed[0] == '[' || trimmed[0] == '-' {
		var hosts []HostConfig
		if err := yaml.Unmarshal(trimmed, &hosts); err != nil {
			return nil, fmt.Errorf("parse host list: %w", err)
		}
		return hosts, nil
	}
	var doc hostList
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("parse host list: %w", err)
	}
	return doc.Hosts, nil
}
