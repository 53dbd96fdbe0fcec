package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/grantcarthew/verifytitle/internal/browser"
	"github.com/grantcarthew/verifytitle/internal/cdp"
)

func init() {
	Register(cdpDriver{})
}

// cdpDriver spawns Chrome itself and talks to the first page target over
// the in-tree CDP client.
type cdpDriver struct{}

func (cdpDriver) Name() string { return "cdp" }

func (cdpDriver) Launch(ctx context.Context, opts Options) (Session, error) {
	width, height := opts.windowSize()

	b, err := browser.Start(ctx, browser.LaunchOptions{
		ChromePath:   opts.ChromePath,
		Headless:     opts.Headless,
		NoSandbox:    opts.NoSandbox,
		WindowWidth:  width,
		WindowHeight: height,
	})
	if err != nil {
		return nil, err
	}
	opts.debugf("cdp: chrome pid=%d port=%d", b.PID(), b.Port())
	if opts.Debugf != nil {
		if info, err := b.Version(ctx); err == nil {
			opts.debugf("cdp: %s (protocol %s)", info.Browser, info.ProtocolVer)
		}
	}

	wsURL, err := b.WebSocketURL(ctx)
	if err != nil {
		b.Close()
		return nil, err
	}

	client, err := cdp.Dial(ctx, wsURL, cdp.DialOptions{})
	if err != nil {
		b.Close()
		return nil, err
	}

	if err := client.Call(ctx, "Page.enable", nil, nil); err != nil {
		client.Close()
		b.Close()
		return nil, fmt.Errorf("enable page domain: %w", err)
	}

	return &cdpSession{browser: b, client: client, opts: opts}, nil
}

type cdpSession struct {
	browser *browser.Browser
	client  *cdp.Client
	opts    Options

	closeOnce sync.Once
	closeErr  error
}

func (s *cdpSession) Navigate(ctx context.Context, url string) error {
	s.opts.debugf("cdp: navigate %s", url)
	if err := s.client.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return timeoutError(ctx, err)
		}
		return s.lost(err)
	}
	return nil
}

func (s *cdpSession) WaitForText(ctx context.Context, text string) error {
	expr := ReadyTextExpression(text)
	return Poll(ctx, PollInterval, func(ctx context.Context) (bool, error) {
		var found bool
		err := s.client.Evaluate(ctx, expr, &found)
		return found, err
	})
}

func (s *cdpSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.client.Evaluate(ctx, "document.title", &title); err != nil {
		return "", s.lost(err)
	}
	return title, nil
}

func (s *cdpSession) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.client.CaptureScreenshot(ctx, false)
	if err != nil {
		return nil, s.lost(err)
	}
	return data, nil
}

// lost names the read error when Chrome dropped the connection under us.
func (s *cdpSession) lost(err error) error {
	if cause := s.client.Err(); cause != nil {
		return fmt.Errorf("%w (browser connection lost: %v)", err, cause)
	}
	return err
}

func (s *cdpSession) Close() error {
	s.closeOnce.Do(func() {
		clientErr := s.client.Close()
		browserErr := s.browser.Close()
		s.closeErr = errors.Join(clientErr, browserErr)
		s.opts.debugf("cdp: session closed")
	})
	return s.closeErr
}
