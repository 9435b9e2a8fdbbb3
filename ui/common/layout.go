package common

// Layout constants for the TUI. The values are derived from the actual
// styling applied to the components.

const (
	// HeaderHeight is the height of the header bar (single line)
	HeaderHeight = 1

	// HeaderNewline is the newline added after the header in View()
	HeaderNewline = 1

	// FooterHeight is the height of the help/footer text
	FooterHeight = 1

	// PanelMarginVertical is the vertical margin applied to the panel
	PanelMarginVertical = 2

	// HeaderTotalPadding is the total horizontal padding for header content
	HeaderTotalPadding = 4

	// MinItemsPerPage is the minimum number of items to show per page
	MinItemsPerPage = 3

	// DefaultItemsPerPage is used when dynamic calculation isn't possible
	DefaultItemsPerPage = 10

	// MaxContentTruncateWidth caps line width on very wide terminals
	MaxContentTruncateWidth = 150

	// RefreshSeconds is the interval for auto-refreshing data views
	RefreshSeconds = 30

	// TextInputDefaultWidth is a reasonable default width for text inputs
	TextInputDefaultWidth = 30
)

// VerticalLayoutOffset returns the vertical space taken by header, footer
// and margins.
func VerticalLayoutOffset() int {
	return HeaderHeight + HeaderNewline + PanelMarginVertical + FooterHeight
}

// CalculateAvailableHeight returns the height available for panel content.
func CalculateAvailableHeight(totalHeight int) int {
	return totalHeight - VerticalLayoutOffset()
}

// CalculateItemsPerPage returns the number of items that fit in the
// available height given an estimated item height.
func CalculateItemsPerPage(availableHeight, itemHeight int) int {
	if itemHeight <= 0 {
		itemHeight = 1
	}
	items := availableHeight / itemHeight
	if items < MinItemsPerPage {
		return MinItemsPerPage
	}
	return items
}
