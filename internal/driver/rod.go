package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"

	"github.com/grantcarthew/verifytitle/internal/browser"
)

func init() {
	Register(rodDriver{})
}

// rodDriver drives a locally installed Chrome through go-rod.
// Rod's own browser download is bypassed; discovery matches the cdp driver.
type rodDriver struct{}

func (rodDriver) Name() string { return "rod" }

func (rodDriver) Launch(ctx context.Context, opts Options) (Session, error) {
	bin, err := browser.ResolveChrome(opts.ChromePath)
	if err != nil {
		return nil, err
	}
	width, height := opts.windowSize()

	l := launcher.New().
		Bin(bin).
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox).
		Set("window-size", fmt.Sprintf("%d,%d", width, height)).
		Set("hide-scrollbars")

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	opts.debugf("rod: control url %s", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	p, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	return &rodSession{launcher: l, browser: b, page: p, opts: opts}, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     Options

	closeOnce sync.Once
	closeErr  error
}

// bound maps a context failure onto ErrTimeout.
func (s *rodSession) bound(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return timeoutError(ctx, err)
	}
	return err
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	s.opts.debugf("rod: navigate %s", url)
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return s.bound(ctx, fmt.Errorf("navigation failed: %w", err))
	}
	return s.bound(ctx, p.WaitLoad())
}

func (s *rodSession) WaitForText(ctx context.Context, text string) error {
	p := s.page.Context(ctx).Sleeper(func() utils.Sleeper {
		return utils.BackoffSleeper(PollInterval, PollInterval, nil)
	})
	return s.bound(ctx, p.Wait(rod.Eval(ReadyTextScript, text)))
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", s.bound(ctx, err)
	}
	return res.Value.Str(), nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", s.bound(ctx, err))
	}
	return buf, nil
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		err := s.browser.Close()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.closeErr = err
		s.opts.debugf("rod: session closed")
	})
	return s.closeErr
}
