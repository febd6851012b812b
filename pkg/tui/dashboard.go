// Package tui provides a read-only operator dashboard over the account pool.
// It is launched only from "cwproxy dashboard" and never imported by the
// request pipeline.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"cwproxy/pkg/account"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	textPrimary  = lipgloss.Color("#F9FAFB")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textPrimary).
			Background(primaryColor).
			Padding(0, 2).
			MarginBottom(1)

	columnHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	statusValidStyle  = lipgloss.NewStyle().Foreground(successColor)
	statusLimitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	statusInvalStyle  = lipgloss.NewStyle().Foreground(errorColor)
	footerStyle       = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
)

// statusSource is the read-only view the dashboard polls; *account.Pool
// satisfies it, tests substitute a fixed snapshot.
type statusSource interface {
	Status() []*account.Account
}

type tickMsg time.Time

type model struct {
	pool     statusSource
	width    int
	interval time.Duration
	rows     []*account.Account
}

// Run starts the Bubble Tea program and blocks until the user quits.
func Run(pool statusSource, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	m := model{pool: pool, interval: pollInterval, width: 100}
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.poll())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg { return m.pool.Status() }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.tick(), m.poll())
	case []*account.Account:
		m.rows = msg
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("cwproxy account pool"))
	b.WriteString("\n")
	b.WriteString(columnHeaderStyle.Render(fmt.Sprintf("%-10s %-12s %-12s %-8s %s", "uuid", "auth", "status", "sessions", "resets_at")))
	b.WriteString("\n")
	for _, acc := range m.rows {
		b.WriteString(renderRow(acc))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("q to quit"))
	return wordwrap.String(b.String(), max(m.width, 40))
}



func renderRow(acc *account.Account) string {
	statusStyle := statusValidStyle
	switch acc.Status {
	case account.StatusRateLimited:
		statusStyle = statusLimitStyle
	case account.StatusInvalid:
		statusStyle = statusInvalStyle
	}

	resets := "-"
	if acc.ResetsAt != nil {
		resets = acc.ResetsAt.Format(time.RFC3339)
	}

	uuid := acc.OrganizationUUID
	if len(uuid) > 8 {
		uuid = uuid[:8]
	}

	return fmt.Sprintf("%-10s %-12s %-12s %-8d %s",
		uuid, acc.AuthType, statusStyle.Render(string(acc.Status)), acc.SessionCount(), resets)
}

