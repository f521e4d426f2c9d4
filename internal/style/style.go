// Package style holds the terminal styles agentotel uses for user-facing
// notices. Output always goes to stderr: stdout may carry console telemetry.
package style

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	// Color decisions follow stderr, where notices are written.
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stderr).EnvColorProfile())
}

var (
	Success = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"}).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "172", Dark: "214"}).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"}).Bold(true)
	Info    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
	Dim     = lipgloss.NewStyle().Faint(true)
	Bold    = lipgloss.NewStyle().Bold(true)
)

var (
	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Info.Render("→")
)

// PrintWarning writes a formatted warning line to stderr.
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, fmt.Sprintf(format, args...))
}

// Toggle renders a telemetry on/off notice. changed is false when the
// command left the state as it was (repeat or unknown argument).
func Toggle(message string, enabled, changed bool) string {
	switch {
	case !changed:
		return ArrowPrefix + " " + Dim.Render(message)
	case enabled:
		return SuccessPrefix + " " + message
	default:
		return WarningPrefix + " " + message
	}
}

// PrintToggle writes Toggle's line to w.
func PrintToggle(w io.Writer, message string, enabled, changed bool) {
	fmt.Fprintln(w, Toggle(message, enabled, changed))
}
