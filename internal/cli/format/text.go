package format

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/grantcarthew/verifytitle/internal/verify"
	"golang.org/x/term"
)

// VerifiedMessage is the single line printed for a passing run.
const VerifiedMessage = "Title verified successfully"

// Color helper functions that respect color.NoColor flag
func colorFprint(w io.Writer, c color.Attribute, s string) {
	color.New(c).Fprint(w, s)
}

// OutputOptions controls text formatting behavior.
type OutputOptions struct {
	UseColor bool // Enable ANSI color codes
}

// NewOutputOptions returns output options for text written to f.
// Priority: jsonOutput > noColorFlag > NO_COLOR env > TTY detection.
func NewOutputOptions(jsonOutput bool, noColorFlag bool, f *os.File) OutputOptions {
	// JSON output never has colors
	if jsonOutput {
		return OutputOptions{UseColor: false}
	}

	// --no-color flag disables colors
	if noColorFlag {
		return OutputOptions{UseColor: false}
	}

	// NO_COLOR environment variable disables colors
	if os.Getenv("NO_COLOR") != "" {
		return OutputOptions{UseColor: false}
	}

	return OutputOptions{
		UseColor: f != nil && term.IsTerminal(int(f.Fd())),
	}
}

// Verified outputs the success line.
func Verified(w io.Writer, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgGreen, VerifiedMessage+"\n")
		return nil
	}
	_, err := fmt.Fprintln(w, VerifiedMessage)
	return err
}

// ActionError outputs "Error: <message>".
func ActionError(w io.Writer, msg string, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgRed, "Error:")
		fmt.Fprintf(w, " %s\n", msg)
	} else {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
	return nil
}

// Drivers lists driver names, marking the selected one.
func Drivers(w io.Writer, names []string, selected string, opts OutputOptions) error {
	for _, name := range names {
		if name != selected {
			fmt.Fprintf(w, "    %s\n", name)
			continue
		}
		if opts.UseColor {
			fmt.Fprint(w, "  ")
			colorFprint(w, color.FgCyan, "* ")
			fmt.Fprintln(w, name)
		} else {
			fmt.Fprintf(w, "  * %s\n", name)
		}
	}
	return nil
}

// Result is the JSON shape of a finished verification.
type Result struct {
	OK         bool     `json:"ok"`
	Kind       string   `json:"kind,omitempty"`
	Error      string   `json:"error,omitempty"`
	URL        string   `json:"url"`
	Title      string   `json:"title,omitempty"`
	Screenshot string   `json:"screenshot,omitempty"`
	ExitCode   int      `json:"exit_code"`
	DurationMS int64    `json:"duration_ms"`
	States     []string `json:"states"`
}

// NewResult converts res for JSON output.
func NewResult(res verify.Result, reportOnly bool) Result {
	out := Result{
		OK:         res.OK(),
		URL:        res.URL,
		Title:      res.Title,
		Screenshot: res.ScreenshotPath,
		ExitCode:   res.ExitCode(reportOnly),
		DurationMS: res.Duration.Round(time.Millisecond).Milliseconds(),
		States:     make([]string, 0, len(res.Transitions)),
	}
	if !res.OK() {
		out.Kind = res.Kind.String()
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
	}
	for _, s := range res.Transitions {
		out.States = append(out.States, s.String())
	}
	return out
}
