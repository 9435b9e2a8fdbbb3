package common

import "github.com/charmbracelet/lipgloss"

const (
	// === Primary UI Colors ===
	COLOR_ACCENT    = "69" // ANSI 69 (#5f87ff) - borders, selections, header
	COLOR_SECONDARY = "75" // ANSI 75 (#5fafff) - timestamps, domains, tags

	// === Text Colors ===
	COLOR_WHITE = "255" // primary text
	COLOR_LIGHT = "250" // secondary text, slightly dimmed
	COLOR_MUTED = "245" // tertiary text, hints
	COLOR_DIM   = "240" // very dim text, separators

	// === Semantic Colors ===
	COLOR_USERNAME = "48"  // usernames and handles stand out
	COLOR_SUCCESS  = "48"  // success messages
	COLOR_ERROR    = "196" // errors, delete actions
	COLOR_CRITICAL = "9"   // critical errors, terminal size warnings
	COLOR_WARNING  = "214" // pending states, caution (amber)

	// === Section/Title Colors ===
	COLOR_CAPTION = "170" // section captions, titles
	COLOR_HELP    = "245" // help text

	// === ANSI Escape Sequences (for inline coloring without breaking backgrounds) ===
	ANSI_WARNING_START = "\033[38;5;214m"
	ANSI_COLOR_RESET   = "\033[39m"
)

var (
	HelpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(COLOR_HELP)).Padding(0, 2)
	CaptionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(COLOR_CAPTION)).Padding(2)

	// === Shared List Styles ===

	// ListItemStyle is the base style for unselected list items
	ListItemStyle = lipgloss.NewStyle()

	// ListItemSelectedStyle is for the selected item text
	ListItemSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(COLOR_USERNAME)).
				Bold(true)

	// ListEmptyStyle is for empty list messages
	ListEmptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(COLOR_DIM)).
			Italic(true)

	// ListStatusStyle is for status messages (success, info)
	ListStatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(COLOR_SUCCESS))

	// ListErrorStyle is for error messages
	ListErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(COLOR_ERROR))

	// ListBadgeStyle is for inline badges like [pending], [remote]
	ListBadgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(COLOR_DIM))

	// ListWarnBadgeStyle is for badges that need attention, like retry counts
	ListWarnBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(COLOR_WARNING))
)

const (
	// ListSelectedPrefix is the indicator shown before selected items
	ListSelectedPrefix = "› "
	// ListUnselectedPrefix is the spacing for unselected items (same width as selected)
	ListUnselectedPrefix = "  "
)

// DefaultWindowWidth returns the usable width after accounting for outer
// margins and a safety buffer.
func DefaultWindowWidth(width int) int {
	return width - 10
}

// DefaultWindowHeight returns the usable height after accounting for outer
// margins and terminal chrome.
func DefaultWindowHeight(height int) int {
	return height - 10
}
