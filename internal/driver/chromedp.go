package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

func init() {
	Register(chromedpDriver{})
}

// chromedpDriver runs the check through chromedp's exec allocator.
type chromedpDriver struct{}

func (chromedpDriver) Name() string { return "chromedp" }

// allocatorOptions builds the exec allocator flags for opts.
func (chromedpDriver) allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	width, height := opts.windowSize()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(width, height),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.DisableGPU)
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}
	return allocOpts
}

func (d chromedpDriver) Launch(ctx context.Context, opts Options) (Session, error) {
	// The browser must outlive ctx, so it hangs off Background.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions(opts)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(opts.debugf),
		chromedp.WithErrorf(opts.debugf),
	)

	// Abort the launch if ctx ends first
	stop := context.AfterFunc(ctx, cancelBrowser)
	defer stop()

	// The first Run allocates the browser; it must not carry a timeout
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		if ctx.Err() != nil {
			return nil, timeoutError(ctx, err)
		}
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	opts.debugf("chromedp: browser started")

	return &chromedpSession{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		opts:          opts,
	}, nil
}

type chromedpSession struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	opts          Options

	closeOnce sync.Once
	closeErr  error
}

// run executes actions on the session's tab, bounded by the caller's ctx.
// Children of the tab context can be cancelled without closing the tab.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && runCtx.Err() != nil {
		return timeoutError(runCtx, err)
	}
	return err
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	s.opts.debugf("chromedp: navigate %s", url)
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromedpSession) WaitForText(ctx context.Context, text string) error {
	pollOpts := []chromedp.PollOption{
		chromedp.WithPollingArgs(text),
		chromedp.WithPollingInterval(PollInterval),
	}
	if left := remaining(ctx); left > 0 {
		pollOpts = append(pollOpts, chromedp.WithPollingTimeout(left))
	}

	var found bool
	err := s.run(ctx, chromedp.PollFunction(ReadyTextScript, &found, pollOpts...))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return ErrTimeout
	}
	return err
}

func (s *chromedpSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(func() {
		// Cancel closes the browser gracefully and waits for it
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelBrowser()
		s.cancelAlloc()
		s.opts.debugf("chromedp: session closed")
	})
	return s.closeErr
}
