package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

func init() {
	Register(playwrightDriver{})
}

// playwrightDriver uses the Playwright driver process. Browsers are not
// downloaded here; install them once with the playwright-go CLI, or point
// ChromePath at a local Chrome.
type playwrightDriver struct{}

func (playwrightDriver) Name() string { return "playwright" }

func (playwrightDriver) Launch(ctx context.Context, opts Options) (Session, error) {
	pw, err := playwright.Run(&playwright.RunOptions{
		SkipInstallBrowsers: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start playwright (install with: go run github.com/playwright-community/playwright-go/cmd/playwright install chromium): %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:        playwright.Bool(opts.Headless),
		ChromiumSandbox: playwright.Bool(!opts.NoSandbox),
	}
	if opts.ChromePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ChromePath)
	}
	if left := remaining(ctx); left > 0 {
		launchOpts.Timeout = playwright.Float(float64(left.Milliseconds()))
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	opts.debugf("playwright: chromium %s", b.Version())

	width, height := opts.windowSize()
	p, err := b.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: width, Height: height},
	})
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("open page: %w", err)
	}

	return &playwrightSession{pw: pw, browser: b, page: p, opts: opts}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	opts    Options

	closeOnce sync.Once
	closeErr  error
}

// timeoutMillis converts ctx's deadline into Playwright's millisecond
// timeout, where 0 disables the timeout.
func timeoutMillis(ctx context.Context) *float64 {
	return playwright.Float(float64(remaining(ctx).Milliseconds()))
}

// translate maps Playwright's timeout error onto ErrTimeout.
func translate(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	s.opts.debugf("playwright: navigate %s", url)
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMillis(ctx),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", translate(err))
	}
	return nil
}

func (s *playwrightSession) WaitForText(ctx context.Context, text string) error {
	_, err := s.page.WaitForFunction(ReadyTextScript, text, playwright.PageWaitForFunctionOptions{
		Polling: playwright.Float(float64(PollInterval.Milliseconds())),
		Timeout: timeoutMillis(ctx),
	})
	return translate(err)
}

func (s *playwrightSession) Title(ctx context.Context) (string, error) {
	// Title takes no context and blocks while the page is busy.
	return callContext(ctx, s.page.Title)
}

func (s *playwrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypePng,
		Timeout: timeoutMillis(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", translate(err))
	}
	return buf, nil
}

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.browser.Close(), s.pw.Stop())
		s.opts.debugf("playwright: session closed")
	})
	return s.closeErr
}
