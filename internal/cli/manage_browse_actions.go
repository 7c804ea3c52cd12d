package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"pipeline-monitor/internal/hostconfig"
)

const (
	manageActionEndpoints = iota
	manageActionReset
)

var manageActions = []string{
	"Default Endpoints",
	"Reset to Defaults",
}

func (m manageModel) renderActionsPanel(width int) string {
	lines := make([]string, 0, len(manageActions)+2)
	lines = append(lines, "Actions", "")
	for i, action := range manageActions {
		row := truncateRunes("[>] "+action, max(width-6, 10))
		if m.isActionCursor() && m.selectedActionIndex() == i {
			row = manageSelStyle.Width(max(width-4, 6)).Render(row)
		}
		lines = append(lines, row)
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m manageModel) runAction(idx int) (tea.Model, tea.Cmd) {
	switch idx {
	case manageActionEndpoints:
		m.mode = manageModeForm
		m.form = newEndpointsForm(m.snap, m.width)
		m.statusMessage = ""
		return m, nil
	case manageActionReset:
		m.statusMessage = "resetting hosts to defaults..."
		return m, resetHostsCmd(m.registry)
	}
	return m, nil
}

func (m manageModel) actionDetails(idx int) []string {
	switch idx {
	case manageActionEndpoints:
		return []string{
			"Default Endpoints",
			"",
			kv("api_base", defaultIfEmpty(m.snap.APIBaseURL, "(first enabled host)")),
			kv("file_base", defaultIfEmpty(m.snap.FileDownloadBaseURL, "(API base)")),
			kv("converter", defaultIfEmpty(m.snap.ConverterBaseURL, "(local rasterizer)")),
			"",
			"Used when no host is enabled or none answers.",
			"Press Enter to edit.",
		}
	case manageActionReset:
		return []string{
			"Reset to Defaults",
			"",
			"Replaces every host and endpoint with the built-in defaults.",
			"Press Enter to reset.",
		}
	}
	return []string{"Select an action."}
}

func resetHostsCmd(reg *hostconfig.Registry) tea.Cmd {
	return func() tea.Msg {
		if err := reg.ResetToDefaults(); err != nil {
			return manageSaveMsg{err: err}
		}
		return manageSaveMsg{message: fmt.Sprintf("updated: reset to %d default hosts", len(reg.Snapshot().Hosts))}
	}
}

func (m manageModel) totalBrowseRows() int {
	return len(m.snap.Hosts) + 1 + len(manageActions)
}

func (m manageModel) isActionCursor() bool {
	return m.cursor >= len(m.snap.Hosts)+1
}

func (m manageModel) selectedActionIndex() int {
	return clampInt(m.cursor-(len(m.snap.Hosts)+1), 0, len(manageActions)-1)
}
