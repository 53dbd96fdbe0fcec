package cli

import (
	"os"

	"github.com/grantcarthew/verifytitle/internal/cli/format"
	"github.com/grantcarthew/verifytitle/internal/driver"
	"github.com/spf13/cobra"
)

func newDriverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "driver",
		Short: "List available browser drivers",
		Long: `Lists the browser automation engines verifytitle can use. The marked
entry is the one a run would use with the current environment
(VERIFYTITLE_DRIVER, or a driver key in the VERIFYTITLE_CONFIG file).

Drivers:
  cdp         Built-in DevTools protocol client over a WebSocket (default)
  chromedp    github.com/chromedp/chromedp
  playwright  github.com/playwright-community/playwright-go (needs its driver installed)
  rod         github.com/go-rod/rod

Select one with --driver or VERIFYTITLE_DRIVER.`,
		Args: cobra.NoArgs,
		RunE: runDriver,
	}
}

func runDriver(cmd *cobra.Command, args []string) error {
	// Root flags are not parsed for subcommands, so the selection comes from
	// VERIFYTITLE_DRIVER, a VERIFYTITLE_CONFIG file, or the default.
	selected := driver.Default
	if root := cmd.Root(); root != nil && root != cmd {
		v, err := newViper(root.Flags())
		if err != nil {
			return outputError(cmd.ErrOrStderr(), err.Error())
		}
		selected = v.GetString("driver")
	}

	names := driver.Names()
	if JSONOutput {
		return outputJSON(cmd.OutOrStdout(), map[string]any{
			"ok":       true,
			"drivers":  names,
			"selected": selected,
		})
	}
	return format.Drivers(cmd.OutOrStdout(), names, selected, format.NewOutputOptions(false, NoColor, os.Stdout))
}
