package aggregate

import (
	"strings"

	"pipeline-monitor/internal/model"
)

// Filter narrows merged rows on the client side. Empty fields match all.
type Filter struct {
	Query    string
	HostIDs  []string
	Statuses []string
}

func (f Filter) Apply(rows []model.Execution) []model.Execution {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	hosts := toSet(f.HostIDs, strings.TrimSpace)
	statuses := toSet(model.ParseStatusList(f.Statuses...), model.NormalizeStatus)

	out := make([]model.Execution, 0, len(rows))
	for _, r := range rows {
		if len(hosts) > 0 && !hosts[r.HostID] {
			continue
		}
		if len(statuses) > 0 && !statuses[model.NormalizeStatus(r.Status)] {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(r.ExecutionID), q) &&
			!strings.Contains(strings.ToLower(r.Name), q) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toSet(values []string, norm func(string) string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		if n := norm(v); n != "" {
			out[n] = true
		}
	}
	return out
}
