// Package ui renders reposync's human-readable CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	// CategoryStyle for section headers
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

	// labelStyle pads "key:" columns in key/value blocks.
	labelStyle = lipgloss.NewStyle().Width(24)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

const (
	TreeChild  = "├─ "
	TreeLast   = "└─ "
	TreeIndent = "  "
)

const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// RenderKeyValue renders "key: value" with the key padded to a column.
func RenderKeyValue(key, value string) string {
	return labelStyle.Render(key+":") + value
}

// plainIcons stand in for the symbols when ShouldUseEmoji is false.
var plainIcons = map[string]string{
	IconPass: "[ok]",
	IconWarn: "[!]",
	IconFail: "[x]",
	IconSkip: "-",
}

// Icon returns symbol, or its ASCII stand-in when emoji are off.
func Icon(symbol string) string {
	if ShouldUseEmoji() {
		return symbol
	}
	if plain, ok := plainIcons[symbol]; ok {
		return plain
	}
	return symbol
}

func RenderPassIcon() string { return PassStyle.Render(Icon(IconPass)) }
func RenderWarnIcon() string { return WarnStyle.Render(Icon(IconWarn)) }
func RenderFailIcon() string { return FailStyle.Render(Icon(IconFail)) }
func RenderSkipIcon() string { return MutedStyle.Render(Icon(IconSkip)) }
