package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tagforge/plugman/internal/i18n"
)

// ConfirmOption represents a yes/no choice
type ConfirmOption struct {
	Value       bool
	Label       string
	Description string
}

// ConfirmModel is the bubbletea model for a yes/no prompt with a
// highlighted detail line, used for destructive or risky actions.
type ConfirmModel struct {
	title     string
	detail    string
	options   []ConfirmOption
	cursor    int
	selected  bool
	quitting  bool
	confirmed bool
}

var confirmDetailStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// NewConfirmModel creates a confirmation model. The detail line is rendered
// highlighted under the title, e.g. a blacklist reason or a plugin id.
func NewConfirmModel(title, detail string) ConfirmModel {
	options := []ConfirmOption{
		{
			Value:       false,
			Label:       i18n.T("ConfirmNo", nil),
			Description: i18n.T("ConfirmNoDesc", nil),
		},
		{
			Value:       true,
			Label:       i18n.T("ConfirmYes", nil),
			Description: i18n.T("ConfirmYesDesc", nil),
		},
	}

	return ConfirmModel{
		title:   title,
		detail:  detail,
		options: options,
		cursor:  0, // Default to no
	}
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.selected = false
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}

		case "enter", " ":
			m.selected = m.options[m.cursor].Value
			m.confirmed = true
			m.quitting = true
			return m, tea.Quit

		case "esc":
			// Select no as default and exit
			m.selected = false
			m.confirmed = true
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m ConfirmModel) View() string {
	if m.quitting && !m.confirmed {
		return ""
	}

	var b strings.Builder

	title := refTitleStyle.Render(m.title)
	b.WriteString(title)
	b.WriteString("\n\n")

	if m.detail != "" {
		b.WriteString("  " + confirmDetailStyle.Render(m.detail))
		b.WriteString("\n\n")
	}

	for i, opt := range m.options {
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}

		var labelLine string
		var descLine string

		if i == m.cursor {
			labelLine = refSelectedStyle.Render(fmt.Sprintf("%s%s", cursor, opt.Label))
			descLine = refDescSelectedStyle.Render(opt.Description)
		} else {
			labelLine = refOptionStyle.Render(fmt.Sprintf("%s%s", cursor, opt.Label))
			descLine = refDescStyle.Render(opt.Description)
		}

		b.WriteString(labelLine)
		b.WriteString("\n")
		b.WriteString(descLine)
		b.WriteString("\n\n")
	}

	help := refHelpStyle.Render("↑/↓: " + i18n.T("HelpMove", nil) + " | Enter: " + i18n.T("HelpSelect", nil))
	b.WriteString(help)

	return refBoxStyle.Render(b.String())
}

// GetSelected returns whether user selected yes
func (m ConfirmModel) GetSelected() bool {
	return m.selected
}

// IsConfirmed returns whether the user confirmed selection
func (m ConfirmModel) IsConfirmed() bool {
	return m.confirmed
}

// RunConfirm launches the interactive confirmation prompt
func RunConfirm(title, detail string) (bool, bool, error) {
	model := NewConfirmModel(title, detail)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return false, false, err
	}

	m := finalModel.(ConfirmModel)
	return m.GetSelected(), m.IsConfirmed(), nil
}
