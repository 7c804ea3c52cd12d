package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	tea "github.com/charmbracelet/bubbletea"

	"pipeline-monitor/internal/hostconfig"
)

func newHostForm(existing *hostconfig.HostConfig, width int) *manageForm {
	f := &manageForm{Kind: manageFormKindHost, Title: "New Host"}
	h := hostconfig.HostConfig{Enabled: true}
	if existing != nil {
		h = *existing
		f.Title = "Edit Host: " + existing.ID
		f.IsEdit = true
		f.HostID = existing.ID
	}
	f.Fields = []manageFormField{
		{Key: "label", Label: "Label", Help: "Shown in list rows and the host filter", Kind: manageFieldString, Required: true, Value: h.Label},
		{Key: "api_base", Label: "API Base URL", Help: "e.g. https://api.example.com/api/v1", Kind: manageFieldString, Required: true, Value: h.APIBaseURL},
		{Key: "file_base", Label: "File Base URL", Help: "Optional; empty uses the API base", Kind: manageFieldString, Value: h.FileDownloadBaseURL},
		{Key: "enabled", Label: "Enabled", Help: "Disabled hosts are skipped by list and watch", Kind: manageFieldBool, Value: boolToYN(h.Enabled)},
		{Key: "api_path", Label: "API Path", Help: "Optional; default " + hostconfig.DefaultAPIPath, Kind: manageFieldString, Value: h.APIPath},
		{Key: "file_path", Label: "File Path", Help: "Optional; default " + hostconfig.DefaultFileDownloadPath, Kind: manageFieldString, Value: h.FileDownloadPath},
		{Key: "headers", Label: "Headers", Help: `JSON object, e.g. {"X-Plan":"paid"}; sent with every request`, Kind: manageFieldString, Value: hostconfig.FormatHeaders(h.Headers)},
	}
	return f.start(width)
}

func newEndpointsForm(snap hostconfig.RuntimeConfig, width int) *manageForm {
	f := &manageForm{
		Kind:  manageFormKindEndpoints,
		Title: "Default Endpoints",
		Fields: []manageFormField{
			{Key: "api_base", Label: "API Base URL", Help: "Host-less fallback; empty uses the first enabled host", Kind: manageFieldString, Value: snap.APIBaseURL},
			{Key: "file_base", Label: "File Base URL", Help: "Empty uses the API base", Kind: manageFieldString, Value: snap.FileDownloadBaseURL},
			{Key: "converter_base", Label: "Converter URL", Help: "PDF-to-images service; empty rasterizes locally", Kind: manageFieldString, Value: snap.ConverterBaseURL},
		},
	}
	return f.start(width)
}

// saveCmd validates the form and returns the command that persists it.
func (f *manageForm) saveCmd(reg *hostconfig.Registry) (tea.Cmd, error) {
	if f == nil {
		return nil, errors.New("internal form error")
	}
	vals, err := f.values()
	if err != nil {
		return nil, err
	}
	switch f.Kind {
	case manageFormKindEndpoints:
		return saveEndpointsCmd(reg, vals), nil
	case manageFormKindHost:
	default:
		return nil, errors.New("internal form error")
	}

	headers, err := hostconfig.ParseHeaders(vals["headers"])
	if err != nil {
		return nil, err
	}
	enabled, _ := parseBool(vals["enabled"])
	if !hostconfig.ValidURL(vals["api_base"]) {
		return nil, errors.New("api base url must start with http:// or https://")
	}
	if v := vals["file_base"]; v != "" && !hostconfig.ValidURL(v) {
		return nil, errors.New("file base url must start with http:// or https://")
	}

	if !f.IsEdit {
		in := hostconfig.HostInput{
			Label:               vals["label"],
			APIBaseURL:          vals["api_base"],
			FileDownloadBaseURL: vals["file_base"],
			Enabled:             boolPtr(enabled),
			APIPath:             vals["api_path"],
			FileDownloadPath:    vals["file_path"],
			Headers:             headers,
		}
		return func() tea.Msg {
			host, err := reg.AddHost(in)
			if err != nil {
				return manageSaveMsg{err: err}
			}
			return manageSaveMsg{message: "host added: " + host.ID}
		}, nil
	}

	if headers == nil {
		headers = map[string]string{}
	}
	patch := hostconfig.HostPatch{
		Label:               strPtr(vals["label"]),
		APIBaseURL:          strPtr(vals["api_base"]),
		FileDownloadBaseURL: strPtr(vals["file_base"]),
		Enabled:             boolPtr(enabled),
		APIPath:             strPtr(vals["api_path"]),
		FileDownloadPath:    strPtr(vals["file_path"]),
		Headers:             headers,
	}
	id := f.HostID
	return func() tea.Msg {
		found, err := reg.UpdateHost(id, patch)
		if err != nil {
			return manageSaveMsg{err: err}
		}
		if !found {
			return manageSaveMsg{err: fmt.Errorf("%w: %s", hostconfig.ErrHostNotFound, id)}
		}
		return manageSaveMsg{message: "host updated: " + id}
	}, nil
}

func saveEndpointsCmd(reg *hostconfig.Registry, vals map[string]string) tea.Cmd {
	return func() tea.Msg {
		if err := reg.SetAPIBaseURL(vals["api_base"]); err != nil {
			return manageSaveMsg{err: err}
		}
		if err := reg.SetFileDownloadBaseURL(vals["file_base"]); err != nil {
			return manageSaveMsg{err: err}
		}
		if err := reg.SetConverterBaseURL(vals["converter_base"]); err != nil {
			return manageSaveMsg{err: err}
		}
		return manageSaveMsg{message: "updated default endpoints"}
	}
}

func strPtr(v string) *string {
	s := v
	return &s
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
