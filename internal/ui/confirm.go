package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase must be typed to approve a dangerous operation
const ConfirmPhrase = "I AGREE"

// ConfirmDangerousOperation writes a warning box to out and reads one line
// from in. Returns true only if the line is exactly ConfirmPhrase.
func ConfirmDangerousOperation(in io.Reader, out io.Writer, title string, warnings []string) bool {
	width := GetTerminalWidth()

	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("%s  WARNING  ─  %s", WarningMarker, title)), ""}
	bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
	for _, warning := range warnings {
		lines = append(lines, bulletStyle.Render("• "+warning))
	}
	lines = append(lines, "")

	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))

	fmt.Fprintln(out, box)
	fmt.Fprintln(out)
	fmt.Fprint(out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", ConfirmPhrase)))

	// A missing trailing newline still counts; EOF alone is a refusal
	input, _ := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)

	if strings.TrimSpace(input) == ConfirmPhrase {
		return true
	}

	fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}

// FactoryResetConfirmation is the pre-configured confirmation for the reset command
func FactoryResetConfirmation(in io.Reader, out io.Writer, host string) bool {
	return ConfirmDangerousOperation(in, out,
		"FACTORY RESET",
		[]string{
			fmt.Sprintf("The bulb at %s will erase its WiFi credentials and settings", host),
			"It will leave your network and must be set up again with the WiZ app",
			"This cannot be undone",
		},
	)
}
