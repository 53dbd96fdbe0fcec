package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/grantcarthew/verifytitle/internal/cli/format"
	"github.com/grantcarthew/verifytitle/internal/driver"
	"github.com/grantcarthew/verifytitle/internal/verify"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is set at build time.
var Version = "dev"

// Debug enables verbose debug output.
var Debug bool

// JSONOutput enables JSON output format (default is text).
var JSONOutput bool

// NoColor disables color output.
var NoColor bool

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verifytitle",
		Short: "Verify a web page's title in a headless browser",
		Long: `verifytitle opens a page in a headless Chromium, waits for a piece of
readiness text to render, asserts the document title exactly, and saves a
screenshot of the verified page.

Defaults check the Passport Pal front end:
  URL             http://localhost:3000
  readiness text  Passport Pal
  title           Passport Pal - Child Passport Guide
  screenshot      verification/verification_title.png

Every flag can also be set with a VERIFYTITLE_* environment variable
(--title-timeout becomes VERIFYTITLE_TITLE_TIMEOUT) or a key in the file
named by --config. Flags win over the environment, which wins over the file.

Exit codes:
  0  title verified (or --report-only)
  1  usage or configuration error
  2  browser could not be launched
  3  navigation failed
  4  readiness text did not appear
  5  title mismatch
  6  screenshot could not be written

Examples:
  verifytitle
  verifytitle --url http://localhost:5173 --debug
  verifytitle --driver chromedp --json
  verifytitle --title "Passport Pal - Child Passport Guide" --report-only`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runVerify,
	}

	cmd.PersistentFlags().BoolVar(&Debug, "debug", false, "Enable verbose debug output")
	cmd.PersistentFlags().BoolVar(&JSONOutput, "json", false, "Output in JSON format (default is text)")
	cmd.PersistentFlags().BoolVar(&NoColor, "no-color", false, "Disable color output")
	addVerifyFlags(cmd)

	cmd.SetVersionTemplate(`verifytitle version {{.Version}}
Repository: https://github.com/grantcarthew/verifytitle
Report issues: https://github.com/grantcarthew/verifytitle/issues/new
`)
	cmd.AddCommand(newDriverCmd())
	return cmd
}

// debugf logs a debug message if debug mode is enabled.
func debugf(format string, args ...any) {
	if Debug {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Fprintf(os.Stderr, "[DEBUG] [%s] "+format+"\n", append([]any{timestamp}, args...)...)
	}
}

// debugFunc returns debugf when debug output is on, nil otherwise, so the
// runner and drivers skip formatting entirely.
func debugFunc() func(string, ...any) {
	if Debug {
		return debugf
	}
	return nil
}

// Execute runs the root command.
// Supports command abbreviation via unique prefix matching.
func Execute(ctx context.Context) error {
	// Try abbreviation expansion for CLI commands
	args := os.Args[1:]
	if len(args) > 0 {
		if expanded := tryExpandCommand(args[0]); expanded != "" {
			args[0] = expanded
			rootCmd.SetArgs(args)
		}
	}
	return rootCmd.ExecuteContext(ctx)
}

// tryExpandCommand attempts to expand a command abbreviation.
// Returns the expanded command if exactly one match is found, empty string otherwise.
func tryExpandCommand(prefix string) string {
	var matches []string
	for _, cmd := range rootCmd.Commands() {
		name := cmd.Name()
		if name == prefix {
			// Exact match, no expansion needed
			return ""
		}
		if len(prefix) < len(name) && name[:len(prefix)] == prefix {
			matches = append(matches, name)
		}
	}

	// Return expanded command only if exactly one match
	if len(matches) == 1 {
		return matches[0]
	}
	return ""
}

func runVerify(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return outputError(cmd.ErrOrStderr(), err.Error())
	}

	d, err := driver.Lookup(s.Driver)
	if err != nil {
		return outputError(cmd.ErrOrStderr(), err.Error())
	}

	debugf("config: driver=%s url=%s text=%q title=%q screenshot=%s",
		s.Driver, s.Verify.URL, s.Verify.ReadyText, s.Verify.ExpectedTitle, s.Verify.ScreenshotPath)

	res := verify.NewRunner(d, s.Options, s.Verify).Run(cmd.Context())
	return outputResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, s.ReportOnly)
}

// outputResult prints res and converts it into the command's exit status.
func outputResult(stdout, stderr io.Writer, res verify.Result, reportOnly bool) error {
	code := res.ExitCode(reportOnly)

	if JSONOutput {
		w := stdout
		if !res.OK() {
			w = stderr
		}
		if err := outputJSON(w, format.NewResult(res, reportOnly)); err != nil {
			return err
		}
	} else if res.OK() {
		if err := format.Verified(stdout, format.NewOutputOptions(false, NoColor, os.Stdout)); err != nil {
			return err
		}
	} else {
		format.ActionError(stderr, res.Err.Error(), format.NewOutputOptions(false, NoColor, os.Stderr))
	}

	if res.OK() {
		return nil
	}
	if code == 0 {
		debugf("report-only: ignoring %s", res.Kind)
		return nil
	}
	return &ExitError{Code: code, Err: res.Err}
}

// ExitError carries a process exit status for main. Its message has
// already been written by the command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// IsPrintedError reports whether err was already shown to the user.
func IsPrintedError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// isStdoutTTY returns true if stdout is a terminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// outputJSON writes a JSON response to the given writer.
// Pretty prints if stdout is a TTY, compact otherwise.
func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if isStdoutTTY() {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// outputError writes a usage or configuration error and returns it marked
// as printed with exit status 1.
func outputError(w io.Writer, msg string) error {
	if JSONOutput {
		resp := map[string]any{
			"ok":        false,
			"error":     msg,
			"exit_code": 1,
		}
		outputJSON(w, resp)
	} else {
		format.ActionError(w, msg, format.NewOutputOptions(false, NoColor, os.Stderr))
	}
	return &ExitError{Code: 1, Err: errors.New(msg)}
}
