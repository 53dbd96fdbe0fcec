package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/grantcarthew/verifytitle/internal/cli"
)

// formatCobraError converts verbose Cobra errors to user-friendly messages.
func formatCobraError(err error) string {
	msg := err.Error()

	// Unknown flag: "unknown flag: --titel" -> suggest help
	if strings.HasPrefix(msg, "unknown flag") || strings.HasPrefix(msg, "unknown shorthand flag") {
		return msg + " (see: verifytitle --help)"
	}

	// Bad duration: `invalid argument "5" for "--timeout" flag: time: missing unit in duration "5"`
	re := regexp.MustCompile(`invalid argument "([^"]*)" for "(--[a-z-]+)" flag: time: `)
	if matches := re.FindStringSubmatch(msg); len(matches) > 2 {
		return fmt.Sprintf("%s needs a duration such as 10s or 500ms, got %q", matches[2], matches[1])
	}

	return msg
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.Execute(ctx)
	stop()
	if err != nil {
		// Print error if not already printed by command handler
		if !cli.IsPrintedError(err) {
			msg := formatCobraError(err)
			if cli.JSONOutput {
				resp := map[string]any{
					"ok":    false,
					"error": msg,
				}
				_ = json.NewEncoder(os.Stderr).Encode(resp)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
			}
		}
		os.Exit(cli.ExitCode(err))
	}
}
