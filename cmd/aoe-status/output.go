package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	dark "github.com/thiagokokada/dark-mode-go"
	"golang.org/x/term"

	"github.com/agent-of-empires/aoe/internal/status"
)

// initColorProfile configures the lipgloss color profile. Respects an
// explicit AOE_COLOR override, otherwise auto-detects with a TrueColor
// preference; piped output gets no color at all.
func initColorProfile() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	// AOE_COLOR: truecolor, 256, 16, none
	switch strings.ToLower(os.Getenv("AOE_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	if ct := os.Getenv("COLORTERM"); ct == "truecolor" || ct == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}

// statusPalette maps each status to light/dark color pairs.
type statusPalette struct {
	running    lipgloss.Style
	permission lipgloss.Style
	question   lipgloss.Style
	idle       lipgloss.Style
	errored    lipgloss.Style
	unknown    lipgloss.Style
	dim        lipgloss.Style
}

// newStatusPalette builds the palette, consulting the OS dark-mode setting
// so light terminals don't get unreadable pale yellows.
func newStatusPalette() *statusPalette {
	isDark, err := dark.IsDarkMode()
	if err != nil {
		isDark = true // most terminal setups
	}

	pick := func(darkColor, lightColor string) lipgloss.Style {
		c := darkColor
		if !isDark {
			c = lightColor
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}

	return &statusPalette{
		running:    pick("10", "2"), // green
		permission: pick("11", "3"), // yellow
		question:   pick("14", "6"), // cyan
		idle:       pick("8", "8"),  // gray
		errored:    pick("9", "1"),  // red
		unknown:    pick("13", "5"), // magenta
		dim:        pick("8", "8"),
	}
}

// render returns the status display name, colored and symbol-prefixed.
func (p *statusPalette) render(st status.Status) string {
	switch st {
	case status.StatusRunning:
		return p.running.Render("● " + st.Display())
	case status.StatusWaitingPermission:
		return p.permission.Render("◐ " + st.Display())
	case status.StatusWaitingQuestion:
		return p.question.Render("◐ " + st.Display())
	case status.StatusIdle:
		return p.idle.Render("○ " + st.Display())
	case status.StatusError:
		return p.errored.Render("✕ " + st.Display())
	default:
		return p.unknown.Render("? " + st.Display())
	}
}

// truncate shortens s to a display width, rune-width aware so wide glyphs
// in session names don't break table columns.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
