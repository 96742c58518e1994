package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/infrastructure/logging"
)

const (
	maxStatusLines   = 500
	maxStatusNotices = 5
)

// stateMsg reports a lifecycle transition of the supervised server
type stateMsg struct {
	state domain.LifecycleState
	err   error
}

// lineMsg carries one output channel line
type lineMsg logging.Line

// noticeMsg carries one user notification
type noticeMsg string

// activatedMsg is sent once activation has finished
type activatedMsg struct {
	sessionID  string
	binaryPath string
	err        error
}

// tickMsg refreshes the uptime display
type tickMsg time.Time

type statusKeys struct {
	Quit  key.Binding
	Clear key.Binding
}

var defaultStatusKeys = statusKeys{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "Quit"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "Clear"),
	),
}

// statusModel is the Bubble Tea model behind 'run --tui'
type statusModel struct {
	keys        statusKeys
	spinner     spinner.Model
	channelName string
	state       domain.LifecycleState
	lastErr     error
	activating  bool
	sessionID   string
	binaryPath  string
	lines       []string
	notices     []string
	startedAt   time.Time
	now         time.Time
	width       int
	height      int
}

func newStatusModel(channelName string, now time.Time) statusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	return statusModel{
		keys:        defaultStatusKeys,
		spinner:     sp,
		channelName: channelName,
		state:       domain.StateStopped,
		activating:  true,
		startedAt:   now,
		now:         now,
		height:      24,
	}
}

// Init implements tea.Model
func (m statusModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model
func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.lines = nil
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case stateMsg:
		m.state = msg.state
		if msg.err != nil {
			m.lastErr = msg.err
		}
		return m, nil

	case lineMsg:
		m.lines = append(m.lines, logging.Line(msg).String())
		if len(m.lines) > maxStatusLines {
			m.lines = m.lines[len(m.lines)-maxStatusLines:]
		}
		return m, nil

	case noticeMsg:
		m.notices = append(m.notices, string(msg))
		if len(m.notices) > maxStatusNotices {
			m.notices = m.notices[len(m.notices)-maxStatusNotices:]
		}
		return m, nil

	case activatedMsg:
		m.activating = false
		m.sessionID = msg.sessionID
		m.binaryPath = msg.binaryPath
		if msg.err != nil {
			m.lastErr = msg.err
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m statusModel) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()
	notices := m.renderNotices()

	used := lipgloss.Height(header) + lipgloss.Height(footer)
	if notices != "" {
		used += lipgloss.Height(notices)
	}
	body := m.renderLines(m.height - used)

	parts := []string{header, body}
	if notices != "" {
		parts = append(parts, notices)
	}
	parts = append(parts, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func stateColor(state domain.LifecycleState) lipgloss.Color {
	switch state {
	case domain.StateRunning:
		return lipgloss.Color("46")
	case domain.StateStarting:
		return lipgloss.Color("220")
	case domain.StateFailed:
		return lipgloss.Color("196")
	default:
		return lipgloss.Color("240")
	}
}

func (m statusModel) renderHeader() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render(m.channelName)

	state := strings.ToUpper(m.state.String())
	if m.activating {
		state = "ACTIVATING"
	}
	badge := lipgloss.NewStyle().
		Bold(true).
		Foreground(stateColor(m.state)).
		Render(state)

	session := "-"
	if m.sessionID != "" {
		session = m.sessionID
		if len(session) > 8 {
			session = session[:8] + "..."
		}
	}
	info := fmt.Sprintf("Session: %s | Up: %s", session, m.now.Sub(m.startedAt).Round(time.Second))

	if m.busy() {
		badge = m.spinner.View() + " " + badge
	}
	line1 := lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", badge, "  ", info)

	lines := []string{line1}
	if m.binaryPath != "" {
		lines = append(lines, "Server: "+m.binaryPath)
	}
	if m.lastErr != nil {
		lines = append(lines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Render("Error: "+m.lastErr.Error()))
	}
	lines = append(lines, m.divider())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m statusModel) busy() bool {
	return m.activating || m.state == domain.StateStarting
}

func (m statusModel) renderLines(room int) string {
	if len(m.lines) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("\n  Waiting for server output...\n")
	}
	if room < 1 {
		room = 1
	}
	start := 0
	if len(m.lines) > room {
		start = len(m.lines) - room
	}
	visible := m.lines[start:]
	if m.width > 0 {
		clipped := make([]string, len(visible))
		for i, line := range visible {
			clipped[i] = truncateString(line, m.width)
		}
		visible = clipped
	}
	return strings.Join(visible, "\n")
}

func (m statusModel) renderNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	rows := []string{m.divider()}
	for _, notice := range m.notices {
		rows = append(rows, style.Render(notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m statusModel) renderFooter() string {
	controls := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Render(fmt.Sprintf("Controls: [%s] %s | [%s] %s",
			m.keys.Clear.Help().Key, m.keys.Clear.Help().Desc,
			m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc))
	return lipgloss.JoinVertical(lipgloss.Left, m.divider(), controls)
}

func (m statusModel) divider() string {
	width := m.width
	if width <= 0 {
		width = 40
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Render(strings.Repeat("─", width))
}

// truncateString shortens s to at most n runes
func truncateString(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
