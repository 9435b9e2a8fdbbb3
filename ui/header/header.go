package header

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/ristiko/smilodon/domain"
	"github.com/ristiko/smilodon/ui/common"
)

type Model struct {
	Width       int
	Acc         *domain.Account
	Domain      string
	UnreadCount int
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) View() string {
	return GetHeaderStyle(m.Acc, m.Domain, m.Width, m.UnreadCount)
}

// GetHeaderStyle renders the single-line header bar with manual spacing:
// username and unread badge on the left, instance domain centered, join
// date on the right.
func GetHeaderStyle(acc *domain.Account, domain string, width int, unreadCount int) string {
	leftTextPlain := fmt.Sprintf("@ %s", acc.Username)
	badgePlain := ""
	if unreadCount > 0 {
		badgePlain = fmt.Sprintf(" [%d]", unreadCount)
		leftTextPlain += badgePlain
	}
	centerText := domain
	rightText := fmt.Sprintf("joined: %s", acc.CreatedAt.Format("2006-01-02"))

	// Display widths from plain text, without ANSI codes
	leftLen := runewidth.StringWidth(leftTextPlain)
	centerLen := runewidth.StringWidth(centerText)
	rightLen := runewidth.StringWidth(rightText)

	totalTextLen := leftLen + centerLen + rightLen
	totalSpacing := maxInt(width-totalTextLen-common.HeaderTotalPadding, 2)

	leftSpacing := totalSpacing / 2
	rightSpacing := totalSpacing - leftSpacing

	spaces := func(n int) string {
		if n < 0 {
			n = 0
		}
		result := ""
		for i := 0; i < n; i++ {
			result += " "
		}
		return result
	}

	// Raw ANSI codes for the badge so lipgloss doesn't reset the
	// background behind it.
	leftText := fmt.Sprintf("@ %s", acc.Username)
	if unreadCount > 0 {
		leftText += common.ANSI_WARNING_START + badgePlain + common.ANSI_COLOR_RESET
	}

	header := fmt.Sprintf("  %s%s%s%s%s  ",
		leftText,
		spaces(leftSpacing),
		centerText,
		spaces(rightSpacing),
		rightText,
	)

	return lipgloss.NewStyle().
		Width(width).
		MaxWidth(width).
		Background(lipgloss.Color(common.COLOR_ACCENT)).
		Foreground(lipgloss.Color(common.COLOR_WHITE)).
		Bold(true).
		Render(header)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
