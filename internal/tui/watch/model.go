package watch

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 2 * time.Second

type tickMsg time.Time

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string

	width  int
	height int

	status    *StatusSnapshot
	recent    []RecentTask
	lastError string

	spinner spinner.Model
	theme   Theme
}

// New creates a new watch TUI model polling the reporting API at apiURL.
func New(apiURL string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		apiURL:  apiURL,
		spinner: sp,
		theme:   NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return fetchStatus(m.apiURL) },
		func() tea.Msg { return fetchRecent(m.apiURL) },
		tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(
			func() tea.Msg { return fetchStatus(m.apiURL) },
			func() tea.Msg { return fetchRecent(m.apiURL) },
			tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case statusMsg:
		snap := StatusSnapshot(msg)
		m.status = &snap
		m.lastError = ""

	case recentMsg:
		m.recent = msg
		m.lastError = ""

	case errMsg:
		m.lastError = msg.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing overseer watch..."
	}

	parts := []string{
		m.renderHeader(),
		m.renderDirectors(),
		m.renderRecent(),
	}

	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("OVERSEER " + m.spinner.View())
	if m.status == nil {
		return title + m.theme.Dim.Render(" connecting...")
	}
	s := m.status
	line := fmt.Sprintf("total %d  %s %d  %s %d  %s %d  %s %d",
		s.Total,
		m.theme.StatusDone.Render("done"), s.Done,
		m.theme.StatusFailed.Render("failed"), s.Failed,
		m.theme.StatusPending.Render("pending"), s.Pending,
		m.theme.StatusRunning.Render("running"), s.Running,
	)
	return lipgloss.JoinVertical(lipgloss.Left, title, " "+line)
}

func (m Model) renderDirectors() string {
	if m.status == nil || len(m.status.Directors) == 0 {
		return ""
	}

	names := make([]string, 0, len(m.status.Directors))
	for name := range m.status.Directors {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := []string{m.theme.Header.Render(fmt.Sprintf(" %-12s %6s %6s %6s", "DIRECTOR", "TOTAL", "DONE", "FAIL"))}
	for _, name := range names {
		c := m.status.Directors[name]
		rows = append(rows, fmt.Sprintf(" %-12s %6d %6d %6d", name, c.Total, c.Done, c.Failed))
	}
	return m.theme.Border.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderRecent() string {
	if len(m.recent) == 0 {
		return m.theme.Dim.Render(" no tasks yet")
	}

	rows := []string{m.theme.Header.Render(fmt.Sprintf(" %-5s %-12s %-10s %-15s %s", "ID", "DIRECTOR", "STATUS", "TYPE", "CREATED"))}
	for _, t := range m.recent {
		status := t.Status
		switch status {
		case "done":
			status = m.theme.StatusDone.Render(status)
		case "failed":
			status = m.theme.StatusFailed.Render(status)
		case "running":
			status = m.theme.StatusRunning.Render(status)
		default:
			status = m.theme.StatusPending.Render(status)
		}
		rows = append(rows, fmt.Sprintf(" %-5d %-12s %-10s %-15s %s",
			t.ID, t.AssignedTo, status, t.TaskType, t.CreatedAt.Local().Format("01-02 15:04")))
	}
	return m.theme.Border.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
