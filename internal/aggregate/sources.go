package aggregate

import (
	"maps"

	"pipeline-monitor/internal/export"
	"pipeline-monitor/internal/filekey"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/model"
)

// FileLocator turns file keys into download URLs for one host.
type FileLocator interface {
	FileURL(key string) string
	Host() hostconfig.HostConfig
}

// CollectPDFSources lists the PDFs an execution references: the first
// step's inputs, then every step's outputs. Entries are named
// "{short id}/{file name}" so several executions can share one archive.
func CollectPDFSources(e model.Execution, files FileLocator) []export.Source {
	var keys []string
	if len(e.Steps) > 0 {
		keys = append(keys, e.Steps[0].InputKeys...)
	}
	for _, s := range e.Steps {
		keys = append(keys, s.OutputKeys...)
	}

	headers := files.Host().Headers
	prefix := e.ShortID()
	out := make([]export.Source, 0, len(keys))
	for _, k := range keys {
		if filekey.Classify(k) != filekey.KindPDF {
			continue
		}
		out = append(out, export.Source{
			URL:     files.FileURL(k),
			Name:    prefix + "/" + filekey.DisplayName(k),
			Headers: maps.Clone(headers),
		})
	}
	return out
}
