// Package ui provides the visual styling for the vergabe terminal client.
package ui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vergabeflow/internal/types"
)

// Color palette
var (
	// Light Mode Colors (Default)
	LightBackground = lipgloss.Color("#f7f7f5") // notion paper
	LightForeground = lipgloss.Color("#37352f")
	LightPrimary    = lipgloss.Color("#1f3a5f") // procurement blue
	LightAccent     = lipgloss.Color("#2f80ed")
	LightMuted      = lipgloss.Color("#9b9a97")
	LightBorder     = lipgloss.Color("#e3e2e0")
	LightCard       = lipgloss.Color("#ffffff")

	// Dark Mode Colors
	DarkBackground = lipgloss.Color("#191919")
	DarkForeground = lipgloss.Color("#e6e6e5")
	DarkPrimary    = lipgloss.Color("#6fa8ff")
	DarkAccent     = lipgloss.Color("#529cca")
	DarkMuted      = lipgloss.Color("#7d7c78")
	DarkBorder     = lipgloss.Color("#373737")
	DarkCard       = lipgloss.Color("#202020")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#e03e3e")
	Success     = lipgloss.Color("#0f7b6c")
	Warning     = lipgloss.Color("#d9730d")
	Info        = lipgloss.Color("#2f80ed")
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// DetectTheme picks dark mode from COLORFGBG or VERGABE_DARK_MODE=1,
// light mode otherwise.
func DetectTheme() Theme {
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		parts := strings.Split(colorTerm, ";")
		if len(parts) >= 2 {
			// 0-6 and 8 are dark backgrounds
			if bgIdx, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
					return DarkTheme()
				}
			}
		}
	}

	if os.Getenv("VERGABE_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	// Layout
	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style
	Card    lipgloss.Style

	// Text
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style
	Label    lipgloss.Style

	// Wizard
	StepDone    lipgloss.Style
	StepActive  lipgloss.Style
	StepPending lipgloss.Style
	Question    lipgloss.Style
	OptionHint  lipgloss.Style
	Answer      lipgloss.Style
	Unanswered  lipgloss.Style
	Focused     lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Components
	Spinner lipgloss.Style
	Divider lipgloss.Style
	Badge   lipgloss.Style
	Button  lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Content: lipgloss.NewStyle().
			Padding(1, 2),

		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Label: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		StepDone: lipgloss.NewStyle().
			Foreground(Success),

		StepActive: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true).
			Underline(true),

		StepPending: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Question: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		OptionHint: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true).
			PaddingLeft(2),

		Answer: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		Unanswered: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true).
			PaddingLeft(2),

		Focused: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		Button: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(theme.Primary).
			Padding(0, 2),
	}
}

// DefaultStyles returns styles for the detected theme
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		width = 40
	}
	return s.Divider.Render(strings.Repeat("─", width))
}

// RenderNotice styles a notice by level.
func (s Styles) RenderNotice(n types.Notice) string {
	switch n.Level {
	case types.NoticeSuccess:
		return s.Success.Render("✓ " + n.Message)
	case types.NoticeError:
		return s.Error.Render("✗ " + n.Message)
	case types.NoticeWarning:
		return s.Warning.Render("! " + n.Message)
	default:
		return s.Info.Render("i " + n.Message)
	}
}

// RenderSteps renders the step indicator, e.g. "1 Projekt › 2 Fragen › ...".
// current is 1-based.
func (s Styles) RenderSteps(labels []string, current int) string {
	parts := make([]string, len(labels))
	for i, label := range labels {
		text := fmt.Sprintf("%d %s", i+1, label)
		switch {
		case i+1 < current:
			parts[i] = s.StepDone.Render("✓ " + label)
		case i+1 == current:
			parts[i] = s.StepActive.Render(text)
		default:
			parts[i] = s.StepPending.Render(text)
		}
	}
	return strings.Join(parts, s.Muted.Render(" › "))
}
