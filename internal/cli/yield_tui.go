package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/yieldcheck"
)

type yieldModel struct {
	execID   string
	rowID    string
	duration float64
	key      string
	session  *yieldcheck.Session
	width    int
	height   int

	showReport    bool
	reported      bool
	statusMessage string
}

func newYieldModel(exec model.Execution, key string, items yieldcheck.Items) yieldModel {
	return yieldModel{
		execID:   exec.ExecutionID,
		rowID:    exec.RowID(),
		duration: exec.DurationSeconds,
		key:      key,
		session:  yieldcheck.NewSession(items),
	}
}

func (m yieldModel) Init() tea.Cmd {
	return nil
}

func (m yieldModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if m.showReport {
			return m.updateReport(msg)
		}
		return m.updateReview(msg)
	}
	return m, nil
}

func (m yieldModel) updateReview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "f", "F", "right", "l":
		m.session.Next()
		m.statusMessage = ""
	case "d", "D", "left", "h":
		m.session.Prev()
		m.statusMessage = ""
	case "q", "Q", " ":
		i := m.session.Index()
		m.session.ToggleFlag(i)
		m.statusMessage = fmt.Sprintf("item %d ineligible: %s", i+1, yesNo(m.session.IsFlagged(i)))
	case "home", "g":
		m.session.Goto(0)
	case "end", "G":
		m.session.Goto(m.session.Len() - 1)
	case "enter", "r":
		if !m.session.Ready() {
			m.statusMessage = "error: review up to the last item before the report"
			return m, nil
		}
		m.showReport = true
	}
	return m, nil
}

func (m yieldModel) updateReport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "b":
		m.showReport = false
	case "enter", "ctrl+c", "q":
		m.reported = msg.String() != "ctrl+c"
		return m, tea.Quit
	}
	return m, nil
}

func (m yieldModel) report(now time.Time) string {
	return m.session.Report(now.In(aggregate.KST()), m.execID, m.duration)
}

func (m yieldModel) View() string {
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}
	if m.showReport {
		header := manageTitleStyle.Render("Yield report")
		hints := manageMutedStyle.Render("enter/q: quit and print | b/esc: back to review")
		panel := managePanelStyle.Width(clampInt(m.width-4, 40, 100)).Render(m.report(time.Now()))
		return lipgloss.JoinVertical(lipgloss.Left, header, hints, panel)
	}

	title := manageTitleStyle.Render("yield check " + m.rowID)
	header := title + "\n" + manageMutedStyle.Render("F/right: next | D/left: prev | Q/space: toggle ineligible | g/G: first/last | enter: report | esc: quit")

	total := m.session.Len()
	sum := m.session.Summarize(m.execID, m.duration)
	progress := fmt.Sprintf("item %d/%d  flagged %d  seen last: %s  yield %d%%",
		m.session.Index()+1, total, len(sum.Ineligible), yesNo(m.session.SeenLast()), sum.YieldPercent)
	if total == 0 {
		progress = "no items in " + m.key
	}

	body := m.renderItem(clampInt(m.width-2, 40, 140))
	status := renderStatusLine(m.statusMessage, "source: "+m.key, m.width)
	return lipgloss.JoinVertical(lipgloss.Left, header, progress, body, m.renderStrip(m.width), status)
}

func (m yieldModel) renderItem(width int) string {
	item, ok := m.session.Current()
	if !ok {
		return managePanelStyle.Width(width).Render(manageMutedStyle.Render("Nothing to review."))
	}
	a := item.Analysis
	lines := []string{}
	if m.session.IsFlagged(m.session.Index()) {
		lines = append(lines, manageErrorStyle.Render("INELIGIBLE"), "")
	}
	lines = append(lines, kv("type", defaultIfEmpty(a.Type, "-")))
	lines = append(lines, "", manageTitleStyle.Render("Question"), wrapText(defaultIfEmpty(a.Question, "-"), width-6))
	if choices := a.Choices(); len(choices) > 0 {
		lines = append(lines, "", manageTitleStyle.Render("Choices"))
		for i, c := range choices {
			lines = append(lines, wrapText(fmt.Sprintf("%d. %s", i+1, c), width-6))
		}
	}
	if strings.TrimSpace(a.Refer) != "" {
		lines = append(lines, "", manageTitleStyle.Render("Reference"), wrapText(a.Refer, width-6))
	}
	if item.StorageKey != "" {
		lines = append(lines, "", manageMutedStyle.Render(truncateRunes(item.StorageKey, max(width-6, 10))))
	}
	return managePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

// renderStrip shows one cell per item around the cursor: flagged items in
// red, the current one highlighted.
func (m yieldModel) renderStrip(width int) string {
	total := m.session.Len()
	if total == 0 {
		return ""
	}
	maxCells := max((width-4)/4, 5)
	start, end := listWindow(total, m.session.Index(), maxCells)
	cells := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		cell := fmt.Sprintf("%3d", i+1)
		switch {
		case i == m.session.Index():
			cell = manageSelStyle.Render(cell)
		case m.session.IsFlagged(i):
			cell = manageErrorStyle.Render(cell)
		default:
			cell = manageMutedStyle.Render(cell)
		}
		cells = append(cells, cell)
	}
	return strings.Join(cells, " ")
}

func wrapText(s string, width int) string {
	return lipgloss.NewStyle().Width(max(width, 20)).Render(s)
}
