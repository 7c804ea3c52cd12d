package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/apiclient"
	"pipeline-monitor/internal/hostconfig"
)

type manageMode int

const (
	manageModeBrowse manageMode = iota
	manageModeForm
	manageModeDeleteConfirm
)

type manageModel struct {
	registry  *hostconfig.Registry
	newClient aggregate.ClientFactory
	snap      hostconfig.RuntimeConfig
	cursor    int
	width     int
	height    int
	mode      manageMode
	form      *manageForm

	confirmDeleteID string
	statusMessage   string
	fatalErr        error
}

type manageLoadedMsg struct {
	snap hostconfig.RuntimeConfig
}

type manageSaveMsg struct {
	message string
	err     error
}

type manageDeleteMsg struct {
	message string
	err     error
}

type manageProbeMsg struct {
	message string
	err     error
}

func runManage(a *app, args []string) error {
	fs := flag.NewFlagSet("manage", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("manage requires an interactive terminal (TTY)")
	}

	m := newManageModel(a.registry, aggregate.APIClientFactory(a.clientOptions()...))
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("manage requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(manageModel); ok {
		return fm.fatalErr
	}
	return nil
}

func newManageModel(reg *hostconfig.Registry, factory aggregate.ClientFactory) manageModel {
	return manageModel{
		registry:  reg,
		newClient: factory,
		snap:      reg.Snapshot(),
		mode:      manageModeBrowse,
	}
}

func (m manageModel) Init() tea.Cmd {
	return loadHostsCmd(m.registry)
}

func (m manageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.form != nil {
			m.form = resizeFormInput(m.form, m.width)
		}
		return m, nil
	case manageLoadedMsg:
		m.snap = msg.snap
		total := m.totalBrowseRows()
		m.cursor = clampInt(m.cursor, 0, max(total-1, 0))
		return m, nil
	case manageSaveMsg:
		if msg.err != nil {
			if m.form != nil {
				m.form.Error = msg.err.Error()
				m.form.Saving = false
				return m, nil
			}
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.mode = manageModeBrowse
		m.form = nil
		m.statusMessage = msg.message
		return m, loadHostsCmd(m.registry)
	case manageDeleteMsg:
		m.mode = manageModeBrowse
		m.confirmDeleteID = ""
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = msg.message
		return m, loadHostsCmd(m.registry)
	case manageProbeMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = msg.message
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case manageModeBrowse:
		return m.updateBrowse(keyMsg)
	case manageModeForm:
		return m.updateForm(keyMsg)
	case manageModeDeleteConfirm:
		return m.updateDeleteConfirm(keyMsg)
	default:
		return m, nil
	}
}

func (m manageModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	hosts := m.snap.Hosts
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < m.totalBrowseRows()-1 {
			m.cursor++
		}
		return m, nil
	case " ", "space":
		if m.cursor >= len(hosts) {
			return m, nil
		}
		return m, toggleHostEnabledCmd(m.registry, hosts[m.cursor])
	case "p":
		if m.cursor >= len(hosts) {
			m.statusMessage = "select a host to probe"
			return m, nil
		}
		m.statusMessage = "probing " + hosts[m.cursor].ID + "..."
		return m, probeHostCmd(m.newClient, hosts[m.cursor])
	case "n":
		m.mode = manageModeForm
		m.form = newHostForm(nil, m.width)
		m.statusMessage = ""
		return m, nil
	case "r":
		return m, loadHostsCmd(m.registry)
	case "enter", "e":
		if m.isActionCursor() {
			return m.runAction(m.selectedActionIndex())
		}
		if m.cursor == len(hosts) {
			m.mode = manageModeForm
			m.form = newHostForm(nil, m.width)
			m.statusMessage = ""
			return m, nil
		}
		selected := hosts[m.cursor]
		m.mode = manageModeForm
		m.form = newHostForm(&selected, m.width)
		m.statusMessage = ""
		return m, nil
	case "d":
		if m.cursor >= len(hosts) {
			m.statusMessage = "select a host to delete"
			return m, nil
		}
		m.mode = manageModeDeleteConfirm
		m.confirmDeleteID = hosts[m.cursor].ID
		return m, nil
	}
	return m, nil
}

func (m manageModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = manageModeBrowse
		return m, nil
	}
	if m.form.Saving {
		return m, nil
	}

	res, cmd := m.form.handleKey(msg)
	switch res {
	case formKeyCancel:
		m.mode = manageModeBrowse
		m.form = nil
		m.statusMessage = "edit cancelled"
		return m, nil
	case formKeySubmit:
		save, err := m.form.saveCmd(m.registry)
		if err != nil {
			m.form.Error = err.Error()
			return m, nil
		}
		m.form.Error = ""
		m.form.Saving = true
		return m, save
	}
	return m, cmd
}

func (m manageModel) updateDeleteConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "n":
		m.mode = manageModeBrowse
		m.confirmDeleteID = ""
		m.statusMessage = "delete cancelled"
		return m, nil
	case "y", "enter":
		id := strings.TrimSpace(m.confirmDeleteID)
		if id == "" {
			m.mode = manageModeBrowse
			m.statusMessage = "delete cancelled"
			return m, nil
		}
		return m, deleteHostCmd(m.registry, id)
	}
	return m, nil
}

func (m manageModel) View() string {
	if m.fatalErr != nil {
		return manageErrorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	switch m.mode {
	case manageModeForm:
		if m.form == nil {
			return ""
		}
		return m.form.view(m.width)
	case manageModeDeleteConfirm:
		return m.viewDeleteConfirm()
	default:
		return m.viewBrowse()
	}
}

func (m manageModel) viewBrowse() string {
	header := manageTitleStyle.Render("pipeline-monitor manage") + "\n" +
		manageMutedStyle.Render("up/down: move | space: toggle enabled | p: probe | enter/e: edit | n: new | d: delete | r: refresh | q: quit")
	status := renderStatusLine(m.statusMessage, "Tip: space toggles a host; disabled hosts are skipped by list and watch.", m.width)

	if m.width < 90 {
		body := lipgloss.JoinVertical(lipgloss.Left,
			m.renderListPanel(m.width),
			m.renderActionsPanel(m.width),
			m.renderDetailsPanel(m.width),
		)
		return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
	}

	leftW := clampInt(m.width/2, 34, 56)
	rightW := m.width - leftW - 1
	left := lipgloss.JoinVertical(lipgloss.Left, m.renderListPanel(leftW), m.renderActionsPanel(leftW))
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, m.renderDetailsPanel(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (m manageModel) renderListPanel(width int) string {
	hosts := m.snap.Hosts
	total := len(hosts) + 1
	maxRows := clampInt(m.height-14, 4, 18)
	start, end := listWindow(total, min(m.cursor, total-1), maxRows)

	lines := make([]string, 0, maxRows+3)
	if len(hosts) == 0 {
		lines = append(lines, manageMutedStyle.Render("No hosts yet; the default endpoint is used."))
	}
	if start > 0 {
		lines = append(lines, manageMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		line := "[+] New Host"
		if i < len(hosts) {
			h := hosts[i]
			mark := " "
			if h.Enabled {
				mark = "x"
			}
			line = fmt.Sprintf("[%s] %s  %s", mark, h.Label, h.APIBaseURL)
		}
		line = truncateRunes(line, max(width-6, 10))
		if i == m.cursor {
			line = manageSelStyle.Width(max(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	if end < total {
		lines = append(lines, manageMutedStyle.Render("..."))
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m manageModel) renderDetailsPanel(width int) string {
	hosts := m.snap.Hosts
	var lines []string
	switch {
	case m.isActionCursor():
		lines = m.actionDetails(m.selectedActionIndex())
	case m.cursor >= len(hosts):
		lines = []string{
			"New Host",
			"",
			"Press Enter or n to add a backend host.",
			"Label and API base URL are required.",
		}
	default:
		h := hosts[m.cursor]
		lines = []string{
			"Host Details",
			"",
			kv("id", h.ID),
			kv("label", h.Label),
			kv("enabled", yesNo(h.Enabled)),
			kv("api_base", h.APIBaseURL),
			kv("file_base", defaultIfEmpty(h.FileDownloadBaseURL, "(API base)")),
			kv("api_path", h.EffectiveAPIPath()),
			kv("file_path", h.EffectiveFilePath()),
			kv("headers", defaultIfEmpty(strings.Join(sortedKeys(h.Headers), ", "), "(none)")),
		}
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], max(width-6, 12))
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m manageModel) viewDeleteConfirm() string {
	text := fmt.Sprintf(
		"Delete host '%s'?\n\nExecutions on that backend are not touched;\nthey just stop showing up here.\n\nPress y or Enter to confirm, n or Esc to cancel.",
		m.confirmDeleteID,
	)
	boxW := clampInt(m.width-8, 36, 80)
	boxH := clampInt(m.height-6, 9, 14)
	panel := managePanelStyle.Width(boxW).Height(boxH).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func loadHostsCmd(reg *hostconfig.Registry) tea.Cmd {
	return func() tea.Msg {
		return manageLoadedMsg{snap: reg.Snapshot()}
	}
}

func toggleHostEnabledCmd(reg *hostconfig.Registry, host hostconfig.HostConfig) tea.Cmd {
	return func() tea.Msg {
		next := !host.Enabled
		if _, err := reg.SetEnabled(host.ID, next); err != nil {
			return manageSaveMsg{err: err}
		}
		return manageSaveMsg{message: fmt.Sprintf("host %s enabled: %s", host.ID, yesNo(next))}
	}
}

func deleteHostCmd(reg *hostconfig.Registry, id string) tea.Cmd {
	return func() tea.Msg {
		removed, err := reg.RemoveHost(id)
		if err != nil {
			return manageDeleteMsg{err: err}
		}
		if !removed {
			return manageDeleteMsg{err: fmt.Errorf("%w: %s", hostconfig.ErrHostNotFound, id)}
		}
		return manageDeleteMsg{message: "host removed: " + id}
	}
}

func probeHostCmd(factory aggregate.ClientFactory, host hostconfig.HostConfig) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiclient.DefaultTimeout)
		defer cancel()
		start := time.Now()
		rows, err := factory(host).ListActive(ctx, apiclient.ListOptions{Limit: 1})
		if err != nil {
			return manageProbeMsg{err: fmt.Errorf("probe %s: %w", host.ID, err)}
		}
		return manageProbeMsg{message: fmt.Sprintf("host %s ok in %s (%d rows)", host.ID, time.Since(start).Round(time.Millisecond), len(rows))}
	}
}
