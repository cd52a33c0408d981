package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tagforge/plugman/internal/i18n"
	"github.com/tagforge/plugman/internal/registry"
)

// RefOption represents one selectable ref
type RefOption struct {
	Name        string
	Description string
}

// RefSelectorModel is the bubbletea model for ref selection
type RefSelectorModel struct {
	plugin    string
	options   []RefOption
	cursor    int
	selected  string
	quitting  bool
	confirmed bool
}

// Ref selector styles
var (
	refTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	refOptionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	refSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57")).
				Bold(true).
				Padding(0, 1)

	refDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			MarginLeft(4)

	refDescSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				MarginLeft(4)

	refBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	refHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

// RefOptionsFromEntry builds selectable ref options from a registry entry,
// describing each ref's API window.
func RefOptionsFromEntry(entry *registry.Entry, current string) []RefOption {
	var options []RefOption
	for _, ref := range entry.Refs {
		desc := ""
		if ref.MinAPIVersion != "" || ref.MaxAPIVersion != "" {
			desc = "API " + ref.MinAPIVersion
			if ref.MaxAPIVersion != "" {
				desc += " - " + ref.MaxAPIVersion
			}
		}
		if ref.Description != "" {
			if desc != "" {
				desc += " | "
			}
			desc += ref.Description
		}
		if ref.Name == current {
			desc = strings.TrimSpace(desc + " (current)")
		}
		options = append(options, RefOption{Name: ref.Name, Description: desc})
	}
	return options
}

// NewRefSelectorModel creates a new ref selector model
func NewRefSelectorModel(plugin string, options []RefOption) RefSelectorModel {
	return RefSelectorModel{
		plugin:  plugin,
		options: options,
	}
}

func (m RefSelectorModel) Init() tea.Cmd {
	return nil
}

func (m RefSelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
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
			m.selected = m.options[m.cursor].Name
			m.confirmed = true
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m RefSelectorModel) View() string {
	if m.quitting && !m.confirmed {
		return ""
	}

	var b strings.Builder

	title := refTitleStyle.Render(i18n.T("RefSelectTitle", map[string]any{"Plugin": m.plugin}))
	b.WriteString(title)
	b.WriteString("\n\n")

	for i, opt := range m.options {
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}

		var labelLine string
		var descLine string

		if i == m.cursor {
			labelLine = refSelectedStyle.Render(fmt.Sprintf("%s%s", cursor, opt.Name))
			descLine = refDescSelectedStyle.Render(opt.Description)
		} else {
			labelLine = refOptionStyle.Render(fmt.Sprintf("%s%s", cursor, opt.Name))
			descLine = refDescStyle.Render(opt.Description)
		}

		b.WriteString(labelLine)
		b.WriteString("\n")
		if opt.Description != "" {
			b.WriteString(descLine)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	help := refHelpStyle.Render("↑/↓: " + i18n.T("HelpMove", nil) + " | Enter: " + i18n.T("HelpSelect", nil))
	b.WriteString(help)

	return refBoxStyle.Render(b.String())
}

// GetSelected returns the selected ref name
func (m RefSelectorModel) GetSelected() string {
	return m.selected
}

// IsConfirmed returns whether the user confirmed selection
func (m RefSelectorModel) IsConfirmed() bool {
	return m.confirmed
}

// RunRefSelector launches the interactive ref selector
func RunRefSelector(plugin string, options []RefOption) (string, bool, error) {
	model := NewRefSelectorModel(plugin, options)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return "", false, err
	}

	m := finalModel.(RefSelectorModel)
	return m.GetSelected(), m.IsConfirmed(), nil
}
