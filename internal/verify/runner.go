// Package verify runs the end-to-end title check: launch a browser, load
// the page, wait for the readiness text, assert the exact title, and keep a
// screenshot as evidence.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/grantcarthew/verifytitle/internal/driver"
)

// Defaults reproduce the Passport Pal smoke check.
const (
	DefaultURL             = "http://localhost:3000"
	DefaultReadyText       = "Passport Pal"
	DefaultExpectedTitle   = "Passport Pal - Child Passport Guide"
	DefaultScreenshotPath  = "verification/verification_title.png"
	DefaultReadyTimeout    = 10 * time.Second
	DefaultTitleTimeout    = 5 * time.Second
	DefaultNavigateTimeout = 30 * time.Second
)

// failureCaptureTimeout bounds the best-effort failure screenshot.
const failureCaptureTimeout = 5 * time.Second

// Config describes one verification.
type Config struct {
	URL           string
	ReadyText     string
	ExpectedTitle string

	// ReadyTimeout bounds the wait for ReadyText.
	ReadyTimeout time.Duration

	// TitleTimeout is how long the title is re-read before a mismatch is
	// final. Zero checks exactly once.
	TitleTimeout time.Duration

	// NavigateTimeout bounds page load and screenshot capture.
	NavigateTimeout time.Duration

	// ScreenshotPath receives the PNG on success. Existing files are replaced.
	ScreenshotPath string

	// FailureScreenshotPath, when set, receives a best-effort PNG on failure.
	FailureScreenshotPath string
}

// DefaultConfig returns the built-in Passport Pal check.
func DefaultConfig() Config {
	return Config{
		URL:             DefaultURL,
		ReadyText:       DefaultReadyText,
		ExpectedTitle:   DefaultExpectedTitle,
		ReadyTimeout:    DefaultReadyTimeout,
		TitleTimeout:    DefaultTitleTimeout,
		NavigateTimeout: DefaultNavigateTimeout,
		ScreenshotPath:  DefaultScreenshotPath,
	}
}

// Validate reports configuration that cannot produce a meaningful run.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return fmt.Errorf("invalid url %q: scheme must be http, https or file", c.URL)
	}
	if c.ReadyTimeout <= 0 {
		return errors.New("readiness timeout must be positive")
	}
	if c.TitleTimeout < 0 {
		return errors.New("title timeout cannot be negative")
	}
	if c.NavigateTimeout <= 0 {
		return errors.New("navigate timeout must be positive")
	}
	if c.ScreenshotPath == "" {
		return errors.New("screenshot path is required")
	}
	return nil
}

// Runner executes verifications with one driver.
type Runner struct {
	driver driver.Driver
	opts   driver.Options
	cfg    Config
}

// NewRunner returns a Runner that launches sessions from d with opts.
func NewRunner(d driver.Driver, opts driver.Options, cfg Config) *Runner {
	return &Runner{driver: d, opts: opts, cfg: cfg}
}

func (r *Runner) debugf(format string, args ...any) {
	if r.opts.Debugf != nil {
		r.opts.Debugf(format, args...)
	}
}

// Run performs one verification. It never panics on page problems and
// always releases the browser before returning; the outcome is in the Result.
func (r *Runner) Run(ctx context.Context) (res Result) {
	start := time.Now()
	res.URL = r.cfg.URL
	res.enter(StateInit)
	defer func() {
		res.enter(StateClosed)
		res.Duration = time.Since(start)
		r.debugf("verify: %s in %s (states %v)", res.Outcome, res.Duration.Round(time.Millisecond), res.Transitions)
	}()

	r.debugf("verify: launching %s driver", r.driver.Name())
	session, err := r.driver.Launch(ctx, r.opts)
	if err != nil {
		res.fail(&Failure{Kind: KindBrowserLaunchFailed, Err: err})
		return res
	}
	res.enter(StateBrowserLaunched)
	defer func() {
		if err := session.Close(); err != nil {
			r.debugf("verify: closing browser: %v", err)
		}
	}()

	if err := r.check(ctx, session, &res); err != nil {
		res.fail(err)
		r.captureFailure(ctx, session)
		return res
	}

	path, err := r.captureEvidence(ctx, session)
	if err != nil {
		res.fail(&Failure{Kind: KindScreenshotFailed, Err: err})
		return res
	}
	res.ScreenshotPath = path
	res.Outcome = Succeeded
	res.enter(StateVerified)
	return res
}

// check navigates, waits for readiness, and asserts the title.
func (r *Runner) check(ctx context.Context, session driver.Session, res *Result) error {
	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigateTimeout)
	err := session.Navigate(navCtx, r.cfg.URL)
	cancel()
	if err != nil {
		return &Failure{Kind: KindNavigationFailed, Err: err}
	}

	r.debugf("verify: waiting up to %s for %q", r.cfg.ReadyTimeout, r.cfg.ReadyText)
	readyCtx, cancel := context.WithTimeout(ctx, r.cfg.ReadyTimeout)
	err = session.WaitForText(readyCtx, r.cfg.ReadyText)
	cancel()
	if err != nil {
		return &Failure{Kind: KindReadinessTimeout, Err: err}
	}
	res.enter(StatePageLoaded)

	return r.assertTitle(ctx, session, res)
}

// assertTitle compares document.title to the expected string byte for byte,
// re-reading until it matches or TitleTimeout elapses.
func (r *Runner) assertTitle(ctx context.Context, session driver.Session, res *Result) error {
	var seen bool
	compare := func(ctx context.Context) (bool, error) {
		title, err := session.Title(ctx)
		if err != nil {
			return false, err
		}
		seen = true
		res.Title = title
		return title == r.cfg.ExpectedTitle, nil
	}

	var err error
	if r.cfg.TitleTimeout == 0 {
		var ok bool
		if ok, err = compare(ctx); err == nil && ok {
			return nil
		}
	} else {
		titleCtx, cancel := context.WithTimeout(ctx, r.cfg.TitleTimeout)
		err = driver.Poll(titleCtx, driver.PollInterval, compare)
		cancel()
		if err == nil {
			return nil
		}
	}

	if !seen {
		return &Failure{Kind: KindTitleMismatch, Err: fmt.Errorf("read title: %w", err)}
	}
	return &Failure{Kind: KindTitleMismatch, Err: &TitleMismatchError{
		Expected: r.cfg.ExpectedTitle,
		Actual:   res.Title,
	}}
}

// captureEvidence writes the success screenshot and returns its path.
func (r *Runner) captureEvidence(ctx context.Context, session driver.Session) (string, error) {
	shotCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigateTimeout)
	defer cancel()

	png, err := session.Screenshot(shotCtx)
	if err != nil {
		return "", err
	}
	if err := writeScreenshot(r.cfg.ScreenshotPath, png); err != nil {
		return "", err
	}
	r.debugf("verify: wrote %s (%d bytes)", r.cfg.ScreenshotPath, len(png))
	return r.cfg.ScreenshotPath, nil
}

// captureFailure saves what the page looked like when the check failed.
func (r *Runner) captureFailure(ctx context.Context, session driver.Session) {
	if r.cfg.FailureScreenshotPath == "" {
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureCaptureTimeout)
	defer cancel()

	png, err := session.Screenshot(shotCtx)
	if err == nil {
		err = writeScreenshot(r.cfg.FailureScreenshotPath, png)
	}
	if err != nil {
		r.debugf("verify: failure screenshot skipped: %v", err)
		return
	}
	r.debugf("verify: wrote failure screenshot %s", r.cfg.FailureScreenshotPath)
}

// writeScreenshot replaces path with png, creating parent directories.
func writeScreenshot(path string, png []byte) error {
	if len(png) == 0 {
		return errors.New("browser returned an empty screenshot")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, png, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func (r *Result) enter(s State) {
	r.Transitions = append(r.Transitions, s)
}

func (r *Result) fail(err error) {
	r.Outcome = Failed
	r.Kind = KindOf(err)
	r.Err = err
	r.enter(StateFailed)
}
