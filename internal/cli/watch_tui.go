package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/export"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/poller"
)

const watchListKey = "list"

type watchModel struct {
	ctx     context.Context
	ctrl    *poller.Controller
	backend watchBackend
	filter  aggregate.Filter

	list     poller.Snapshot[aggregate.ListResult]
	rows     []model.Execution
	cursor   int
	selected string

	detailOpen bool
	detail     poller.Snapshot[model.Execution]

	searching bool
	search    textinput.Model

	task          *export.Task
	width         int
	height        int
	statusMessage string
}

type watchEventMsg struct {
	ev poller.Event
}

type watchClosedMsg struct{}

type watchExportStartedMsg struct {
	task *export.Task
	err  error
}

type watchExportTickMsg struct{}

type watchExportDoneMsg struct {
	location string
	err      error
}

func newWatchModel(ctx context.Context, ctrl *poller.Controller, backend watchBackend, filter aggregate.Filter) watchModel {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "execution id or name"
	search.CharLimit = 256
	return watchModel{
		ctx:     ctx,
		ctrl:    ctrl,
		backend: backend,
		filter:  filter,
		search:  search,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.startListCmd(), waitForEvent(m.ctrl.Events()))
}

func waitForEvent(ch <-chan poller.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return watchEventMsg{ev: ev}
	}
}

func (m watchModel) startListCmd() tea.Cmd {
	ctrl, b := m.ctrl, m.backend
	return func() tea.Msg {
		poller.Start(ctrl, poller.SlotList, poller.Query[aggregate.ListResult]{
			Key:      watchListKey,
			Fetch:    b.list,
			Interval: b.interval,
			Retry:    b.retry,
		})
		return nil
	}
}

// startDetailCmd polls one row until it reaches a terminal status.
func (m watchModel) startDetailCmd(rowID string) tea.Cmd {
	ctrl, b := m.ctrl, m.backend
	return func() tea.Msg {
		poller.Start(ctrl, poller.SlotDetail, poller.Query[model.Execution]{
			Key: rowID,
			Fetch: func(ctx context.Context) (model.Execution, error) {
				return b.detail(ctx, rowID)
			},
			Interval: b.interval,
			StopWhen: func(e model.Execution) bool { return model.IsTerminal(e.Status) },
			Retry:    b.retry,
		})
		return nil
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.search.Width = clampInt(m.width-8, 20, 80)
		return m, nil
	case watchEventMsg:
		m = m.applyEvent(msg.ev)
		return m, waitForEvent(m.ctrl.Events())
	case watchClosedMsg:
		return m, tea.Quit
	case watchExportStartedMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.task = msg.task
		m.statusMessage = fmt.Sprintf("exporting %d files...", len(msg.task.Sources))
		return m, tea.Batch(exportTickCmd(), m.saveExportCmd(msg.task))
	case watchExportTickMsg:
		if m.task == nil {
			return m, nil
		}
		p := m.task.Progress()
		m.statusMessage = fmt.Sprintf("exporting %d/%d files (%d%%)", p.Completed, p.Total, p.Percent())
		return m, exportTickCmd()
	case watchExportDoneMsg:
		m.task = nil
		if msg.err != nil {
			m.statusMessage = "error: export: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = "exported " + msg.location
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.searching {
		return m.updateSearch(keyMsg)
	}
	if m.detailOpen {
		return m.updateDetail(keyMsg)
	}
	return m.updateBrowse(keyMsg)
}

func (m watchModel) applyEvent(ev poller.Event) watchModel {
	switch ev.Slot {
	case poller.SlotList:
		snap, ok := ev.Snapshot.(poller.Snapshot[aggregate.ListResult])
		if !ok {
			return m
		}
		m.list = snap
		m.applyRows()
	case poller.SlotDetail:
		snap, ok := ev.Snapshot.(poller.Snapshot[model.Execution])
		if !ok || !m.detailOpen || ev.Key != m.detail.Key {
			return m
		}
		m.detail = snap
	}
	return m
}

// applyRows refilters the current list and keeps the cursor on the same
// row when it is still present.
func (m *watchModel) applyRows() {
	m.rows = m.filter.Apply(m.list.Data.Executions)
	idx := -1
	for i, r := range m.rows {
		if r.RowID() == m.selected {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = clampInt(m.cursor, 0, max(len(m.rows)-1, 0))
	}
	m.cursor = idx
	m.selected = ""
	if len(m.rows) > 0 {
		m.selected = m.rows[m.cursor].RowID()
	}
}

func (m watchModel) moveCursor(delta int) watchModel {
	if len(m.rows) == 0 {
		return m
	}
	m.cursor = clampInt(m.cursor+delta, 0, len(m.rows)-1)
	m.selected = m.rows[m.cursor].RowID()
	return m
}

func (m watchModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		return m.moveCursor(-1), nil
	case "down", "j":
		return m.moveCursor(1), nil
	case "pgup":
		return m.moveCursor(-10), nil
	case "pgdown":
		return m.moveCursor(10), nil
	case "r":
		m.statusMessage = "refreshing..."
		return m, m.startListCmd()
	case "/":
		m.searching = true
		m.search.SetValue(m.filter.Query)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "enter":
		if m.selected == "" {
			return m, nil
		}
		m.detailOpen = true
		m.detail = poller.Snapshot[model.Execution]{Key: m.selected}
		return m, m.startDetailCmd(m.selected)
	case "x":
		return m.startExport()
	case "c":
		if m.task == nil {
			m.statusMessage = "no export running"
			return m, nil
		}
		m.task.Cancel()
		m.statusMessage = "cancelling export..."
		return m, nil
	}
	return m, nil
}

func (m watchModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "backspace":
		m.detailOpen = false
		m.ctrl.Stop(poller.SlotDetail)
		return m, nil
	case "x":
		return m.startExport()
	}
	return m, nil
}

func (m watchModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searching = false
		m.search.Blur()
		m.filter.Query = ""
		m.applyRows()
		return m, nil
	case "enter":
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.filter.Query = m.search.Value()
	m.applyRows()
	return m, cmd
}

func (m watchModel) startExport() (tea.Model, tea.Cmd) {
	if m.task != nil {
		m.statusMessage = "an export is already running (c cancels it)"
		return m, nil
	}
	rowID := m.selected
	if m.detailOpen {
		rowID = m.detail.Key
	}
	if rowID == "" {
		return m, nil
	}
	m.statusMessage = "collecting files for " + rowID + "..."
	ctx, start := m.ctx, m.backend.startExport
	return m, func() tea.Msg {
		task, err := start(ctx, rowID)
		return watchExportStartedMsg{task: task, err: err}
	}
}

func (m watchModel) saveExportCmd(task *export.Task) tea.Cmd {
	ctx, save := m.ctx, m.backend.saveExport
	return func() tea.Msg {
		location, err := save(ctx, task)
		return watchExportDoneMsg{location: location, err: err}
	}
}

func exportTickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(time.Time) tea.Msg { return watchExportTickMsg{} })
}

func (m watchModel) View() string {
	if m.width <= 0 {
		m.width = 120
	}
	if m.height <= 0 {
		m.height = 32
	}
	header := manageTitleStyle.Render("pipeline-monitor watch") + "  " + m.renderFreshness()
	var body, hints string
	if m.detailOpen {
		body = m.renderDetail(m.width - 2)
		hints = "esc: back | x: export PDFs"
	} else {
		body = m.renderTable(m.width - 2)
		hints = "up/down: move | enter: details | /: search | r: refresh | x: export PDFs | c: cancel export | q: quit"
	}
	parts := []string{header, manageMutedStyle.Render(hints), m.renderStats()}
	if m.searching {
		parts = append(parts, m.search.View())
	} else if m.filter.Query != "" {
		parts = append(parts, manageMutedStyle.Render("search: "+m.filter.Query))
	}
	parts = append(parts, body, renderStatusLine(m.statusMessage, m.lastError(), m.width))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m watchModel) renderFreshness() string {
	if !m.list.Loaded {
		if m.list.Err != nil {
			return manageErrorStyle.Render("load failed")
		}
		return manageMutedStyle.Render("loading...")
	}
	updated := "updated " + m.list.UpdatedAt.In(aggregate.KST()).Format("15:04:05")
	if m.list.Stale {
		return manageWarnStyle.Render("stale, " + updated)
	}
	return manageMutedStyle.Render(updated)
}

func (m watchModel) lastError() string {
	if m.list.Err != nil {
		return "error: " + m.list.Err.Error()
	}
	res := m.list.Data
	if res.FailedCalls > 0 {
		return fmt.Sprintf("%d of %d host calls failed", res.FailedCalls, res.Calls)
	}
	if res.FellBackToDefault {
		return "no host returned executions; showing the default endpoint"
	}
	return ""
}

func (m watchModel) renderStats() string {
	s := aggregate.ComputeStats(m.rows)
	return fmt.Sprintf("total %d  %s %d  %s %d  %s %d  pending %d  success %d%%  avg %s",
		s.Total,
		statusStyle(model.StatusRunning).Render("running"), s.Running,
		statusStyle(model.StatusCompleted).Render("completed"), s.Completed,
		statusStyle(model.StatusFailed).Render("failed"), s.Failed,
		s.Pending, s.SuccessRate, model.FormatDuration(s.AvgDurationSeconds))
}

func (m watchModel) renderTable(width int) string {
	if !m.list.Loaded {
		return managePanelStyle.Width(width).Render(manageMutedStyle.Render("Waiting for the first refresh..."))
	}
	if len(m.rows) == 0 {
		return managePanelStyle.Width(width).Render(manageMutedStyle.Render("No executions."))
	}
	estimates := aggregate.EstimateStarts(m.rows, time.Now(), aggregate.KST())
	maxRows := max(m.height-10, 3)
	start, end := listWindow(len(m.rows), m.cursor, maxRows)
	nameWidth := max(width-80, 12)

	lines := make([]string, 0, end-start+1)
	lines = append(lines, manageMutedStyle.Render(fmt.Sprintf("%-28s %-*s %-10s %5s %-16s %-9s %s",
		"ROW ID", nameWidth, "NAME", "STATUS", "PROG", "CREATED", "DURATION", "ETA")))
	for i := start; i < end; i++ {
		r := m.rows[i]
		status := model.NormalizeStatus(r.Status)
		eta := "-"
		if status == model.StatusPending {
			eta = aggregate.ETA(estimates, r)
		}
		line := fmt.Sprintf("%-28s %-*s %-10s %4.0f%% %-16s %-9s %s",
			truncateRunes(r.RowID(), 28),
			nameWidth, truncateRunes(defaultIfEmpty(r.Name, "-"), nameWidth),
			status,
			r.OverallProgress,
			formatCreated(r),
			model.FormatDuration(r.DurationSeconds),
			eta,
		)
		line = wrapOrTrim(line, width-4)
		if i == m.cursor {
			line = manageSelStyle.Width(max(width-4, 6)).Render(line)
		} else {
			line = statusStyle(status).UnsetBold().Render(line)
		}
		lines = append(lines, line)
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m watchModel) renderDetail(width int) string {
	snap := m.detail
	if !snap.Loaded {
		msg := "Loading " + snap.Key + "..."
		if snap.Err != nil {
			msg = "error: " + snap.Err.Error()
		}
		return managePanelStyle.Width(width).Render(msg)
	}
	e := snap.Data
	status := model.NormalizeStatus(e.Status)
	lines := []string{
		manageTitleStyle.Render(defaultIfEmpty(e.Name, e.ExecutionID)),
		"",
		kv("row", e.RowID()),
		kv("host", defaultIfEmpty(e.HostLabel, "-")),
		kv("status", statusStyle(status).Render(status)),
		kv("progress", fmt.Sprintf("%.0f%%", e.OverallProgress)),
		kv("created", formatCreated(e)),
		kv("duration", model.FormatDuration(e.DurationSeconds)),
	}
	if e.ErrorMessage != "" {
		lines = append(lines, manageErrorStyle.Render(wrapOrTrim(e.ErrorMessage, width-6)))
	}
	switch {
	case snap.Stale:
		lines = append(lines, manageWarnStyle.Render("stale: "+snap.Err.Error()))
	case snap.Done:
		lines = append(lines, manageMutedStyle.Render("final status; polling stopped"))
	}
	lines = append(lines, "", "Steps")
	for _, st := range e.Steps {
		stStatus := model.NormalizeStatus(st.Status)
		row := fmt.Sprintf("  %-24s %-10s %4.0f%%  %s  out:%d",
			truncateRunes(defaultIfEmpty(st.Name, st.StepID), 24),
			stStatus, st.Progress, model.FormatDuration(st.DurationSeconds), len(st.OutputKeys))
		lines = append(lines, statusStyle(stStatus).UnsetBold().Render(wrapOrTrim(row, width-6)))
		if st.ErrorMessage != "" {
			lines = append(lines, manageErrorStyle.Render(wrapOrTrim("    "+st.ErrorMessage, width-6)))
		}
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}
