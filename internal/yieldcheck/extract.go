// Package yieldcheck loads VLM analysis results and drives the manual
// yield review that produces the shareable summary report.
package yieldcheck

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"pipeline-monitor/internal/model"
)

const resultsField = "vlm_results"

type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeTopLevel
	ShapeArrayItem
	ShapeNested
)

func (s Shape) String() string {
	switch s {
	case ShapeTopLevel:
		return "top-level"
	case ShapeArrayItem:
		return "array-item"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

type Analysis struct {
	Question string `json:"question,omitempty" yaml:"question"`
	Refer    string `json:"refer,omitempty" yaml:"refer"`
	Type     string `json:"type,omitempty" yaml:"type"`
	Choice1  string `json:"choice1,omitempty" yaml:"choice1"`
	Choice2  string `json:"choice2,omitempty" yaml:"choice2"`
	Choice3  string `json:"choice3,omitempty" yaml:"choice3"`
	Choice4  string `json:"choice4,omitempty" yaml:"choice4"`
	Choice5  string `json:"choice5,omitempty" yaml:"choice5"`
}

// Choices returns the non-empty choices in order.
func (a Analysis) Choices() []string {
	out := []string{}
	for _, c := range []string{a.Choice1, a.Choice2, a.Choice3, a.Choice4, a.Choice5} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// MultipleChoice reports whether any of the first three choices is set.
func (a Analysis) MultipleChoice() bool {
	return a.Choice1 != "" || a.Choice2 != "" || a.Choice3 != ""
}

type Item struct {
	StorageKey string   `json:"storage_key,omitempty" yaml:"storage_key"`
	LatencyMS  float64  `json:"latency_ms,omitempty" yaml:"latency_ms"`
	Analysis   Analysis `json:"analysis" yaml:"analysis"`
}

type Items []Item

// Extract finds the vlm_results list in a result document. Object keys are
// walked in document order, so the first match wins deterministically.
func Extract(doc []byte) (Items, Shape) {
	if !json.Valid(doc) {
		return Items{}, ShapeUnknown
	}
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil || len(root.Content) == 0 {
		return Items{}, ShapeUnknown
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return Items{}, ShapeUnknown
	}

	if list := field(top, resultsField); list != nil && list.Kind == yaml.SequenceNode {
		return decodeItems(list), ShapeTopLevel
	}
	for _, val := range values(top) {
		if val.Kind != yaml.SequenceNode {
			continue
		}
		for _, item := range val.Content {
			if item.Kind != yaml.MappingNode {
				continue
			}
			if list := field(item, resultsField); list != nil && list.Kind == yaml.SequenceNode {
				return decodeItems(list), ShapeArrayItem
			}
		}
	}
	for _, val := range values(top) {
		if val.Kind != yaml.MappingNode {
			continue
		}
		if list := field(val, resultsField); list != nil && list.Kind == yaml.SequenceNode {
			return decodeItems(list), ShapeNested
		}
	}
	return Items{}, ShapeUnknown
}

func field(m *yaml.Node, name string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			return m.Content[i+1]
		}
	}
	return nil
}

func values(m *yaml.Node) []*yaml.Node {
	out := make([]*yaml.Node, 0, len(m.Content)/2)
	for i := 1; i < len(m.Content); i += 2 {
		out = append(out, m.Content[i])
	}
	return out
}

// decodeItems keeps every entry of the list. Fields are read one at a
// time and a field of the wrong type is left zero, so a malformed entry
// still counts as an item.
func decodeItems(list *yaml.Node) Items {
	out := make(Items, 0, len(list.Content))
	for _, n := range list.Content {
		var it Item
		if n.Kind == yaml.MappingNode {
			it.StorageKey = scalarString(field(n, "storage_key"))
			if v := field(n, "latency_ms"); v != nil && v.Kind == yaml.ScalarNode {
				_ = v.Decode(&it.LatencyMS)
			}
			if a := field(n, "analysis"); a != nil && a.Kind == yaml.MappingNode {
				it.Analysis = Analysis{
					Question: scalarString(field(a, "question")),
					Refer:    scalarString(field(a, "refer")),
					Type:     scalarString(field(a, "type")),
					Choice1:  scalarString(field(a, "choice1")),
					Choice2:  scalarString(field(a, "choice2")),
					Choice3:  scalarString(field(a, "choice3")),
					Choice4:  scalarString(field(a, "choice4")),
					Choice5:  scalarString(field(a, "choice5")),
				}
			}
		}
		out = append(out, it)
	}
	return out
}

// scalarString returns the text of a non-null scalar, or "".
func scalarString(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return ""
	}
	return n.Value
}

var keyPreference = []string{"vlm_results", "results", "analysis", "final"}

// FindResultKey picks the JSON file most likely to hold the results: the
// last step with a JSON output (or, failing that, input) wins, and within
// a step names mentioning vlm_results, results, analysis or final rank
// higher in that order.
func FindResultKey(exec model.Execution) (string, bool) {
	for i := len(exec.Steps) - 1; i >= 0; i-- {
		s := exec.Steps[i]
		if key, ok := bestJSONKey(s.OutputKeys); ok {
			return key, true
		}
		if key, ok := bestJSONKey(s.InputKeys); ok {
			return key, true
		}
	}
	return "", false
}

func bestJSONKey(keys []string) (string, bool) {
	best, bestScore, found := "", -1, false
	for _, k := range keys {
		if !strings.HasSuffix(strings.ToLower(k), ".json") {
			continue
		}
		if sc := keyScore(k); sc > bestScore {
			best, bestScore, found = k, sc, true
		}
	}
	return best, found
}

func keyScore(key string) int {
	lower := strings.ToLower(key)
	for i, p := range keyPreference {
		if strings.Contains(lower, p) {
			return len(keyPreference) - i
		}
	}
	return 0
}
