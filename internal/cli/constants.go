package cli

// Formatting constants.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// MaxTitleLength is the maximum length of an asset title in tables.
	MaxTitleLength = 40
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)
