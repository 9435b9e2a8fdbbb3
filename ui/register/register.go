package register

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ristiko/smilodon/ui/common"
	"github.com/ristiko/smilodon/util"
)

var (
	Style = lipgloss.NewStyle().
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(common.COLOR_DIM))
)

// SubmitMsg carries the chosen username once it passes validation. The
// parent model owns account creation.
type SubmitMsg struct {
	Username string
}

type Model struct {
	TextInput textinput.Model
	Error     string
}

func InitialModel() Model {
	ti := textinput.New()
	ti.Placeholder = "username"
	ti.Prompt = common.ListSelectedPrefix
	ti.Focus()
	ti.CharLimit = 60
	ti.Width = common.TextInputDefaultWidth

	return Model{TextInput: ti}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			username := strings.ToLower(strings.TrimSpace(m.TextInput.Value()))
			if ok, reason := util.IsValidWebFingerUsername(username); !ok {
				m.Error = reason
				return m, nil
			}
			m.Error = ""
			return m, func() tea.Msg { return SubmitMsg{Username: username} }
		}
	}

	m.TextInput, cmd = m.TextInput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString("Welcome! Pick a username for this instance:\n\n")
	s.WriteString(m.TextInput.View())
	s.WriteString("\n")
	if m.Error != "" {
		s.WriteString("\n" + common.ListErrorStyle.Render(fmt.Sprintf("✗ %s", m.Error)))
	}
	s.WriteString("\n" + common.HelpStyle.Render("enter: confirm • ctrl+c: quit"))
	return Style.Render(s.String())
}
