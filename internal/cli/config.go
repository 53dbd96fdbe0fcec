package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grantcarthew/verifytitle/internal/driver"
	"github.com/grantcarthew/verifytitle/internal/verify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: --title-timeout is read
// from VERIFYTITLE_TITLE_TIMEOUT.
const EnvPrefix = "VERIFYTITLE"

// settings is everything one verification run needs.
type settings struct {
	Verify     verify.Config
	Driver     string
	Options    driver.Options
	ReportOnly bool
}

func addVerifyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("url", verify.DefaultURL, "Page to verify")
	f.String("text", verify.DefaultReadyText, "Text that must render before the title is checked")
	f.String("title", verify.DefaultExpectedTitle, "Exact document title expected")
	f.Duration("timeout", verify.DefaultReadyTimeout, "How long to wait for the readiness text")
	f.Duration("title-timeout", verify.DefaultTitleTimeout, "How long to retry the title comparison (0 checks once)")
	f.Duration("navigate-timeout", verify.DefaultNavigateTimeout, "How long to wait for the page to load")
	f.String("screenshot", verify.DefaultScreenshotPath, "Where to save the screenshot on success")
	f.String("failure-screenshot", "", "Where to save a screenshot when verification fails")
	f.String("driver", driver.Default, "Browser automation engine (see: verifytitle driver)")
	f.Bool("headless", true, "Run the browser without a window")
	f.Bool("no-sandbox", false, "Disable the Chromium sandbox (needed as root in containers)")
	f.String("chrome", "", "Path to the Chrome or Chromium binary")
	f.Int("window-width", 1280, "Browser viewport width")
	f.Int("window-height", 720, "Browser viewport height")
	f.Bool("report-only", false, "Always exit 0; report failures without failing the build")
	f.String("config", "", "Config file (yaml, json or toml) with flag names as keys")
}

// newViper layers flags over VERIFYTITLE_* environment variables over the
// optional config file over flag defaults.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		debugf("config: loaded %s", v.ConfigFileUsed())
	}
	return v, nil
}

// loadSettings resolves the effective configuration for a run.
func loadSettings(flags *pflag.FlagSet) (settings, error) {
	v, err := newViper(flags)
	if err != nil {
		return settings{}, err
	}

	readyTimeout, err := getDuration(v, "timeout")
	if err != nil {
		return settings{}, err
	}
	titleTimeout, err := getDuration(v, "title-timeout")
	if err != nil {
		return settings{}, err
	}
	navigateTimeout, err := getDuration(v, "navigate-timeout")
	if err != nil {
		return settings{}, err
	}

	s := settings{
		Verify: verify.Config{
			URL:                   v.GetString("url"),
			ReadyText:             v.GetString("text"),
			ExpectedTitle:         v.GetString("title"),
			ReadyTimeout:          readyTimeout,
			TitleTimeout:          titleTimeout,
			NavigateTimeout:       navigateTimeout,
			ScreenshotPath:        v.GetString("screenshot"),
			FailureScreenshotPath: v.GetString("failure-screenshot"),
		},
		Driver: v.GetString("driver"),
		Options: driver.Options{
			ChromePath:   v.GetString("chrome"),
			Headless:     v.GetBool("headless"),
			NoSandbox:    v.GetBool("no-sandbox"),
			WindowWidth:  v.GetInt("window-width"),
			WindowHeight: v.GetInt("window-height"),
			Debugf:       debugFunc(),
		},
		ReportOnly: v.GetBool("report-only"),
	}

	if s.Driver == "" {
		return settings{}, errors.New("driver cannot be empty")
	}
	if s.Options.WindowWidth <= 0 || s.Options.WindowHeight <= 0 {
		return settings{}, fmt.Errorf("invalid window size %dx%d", s.Options.WindowWidth, s.Options.WindowHeight)
	}
	if err := s.Verify.Validate(); err != nil {
		return settings{}, err
	}
	return s, nil
}

// getDuration parses key strictly. Environment and config file values
// must carry a unit: "10" is rejected rather than read as 10ns.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
