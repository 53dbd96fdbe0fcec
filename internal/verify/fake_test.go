package verify

import (
	"context"
	"errors"
	"sync"

	"github.com/grantcarthew/verifytitle/internal/driver"
)

// pngStub is enough bytes to pass for a screenshot.
var pngStub = []byte("\x89PNG\r\n\x1a\nstub")

// fakeDriver hands out a single scripted session.
type fakeDriver struct {
	session   *fakeSession
	launchErr error
	launches  int
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Launch(ctx context.Context, opts driver.Options) (driver.Session, error) {
	d.launches++
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	return d.session, nil
}

// fakeSession plays back configured responses and records what was asked.
type fakeSession struct {
	mu sync.Mutex

	navigateErr error

	// textAppears false makes WaitForText block until its deadline.
	textAppears bool

	// titles is returned in order; the last entry repeats.
	titles   []string
	titleErr error

	screenshot    []byte
	screenshotErr error

	navigated   []string
	waitedFor   []string
	titleReads  int
	screenshots int
	closes      int
}

func newPassingSession() *fakeSession {
	return &fakeSession{
		textAppears: true,
		titles:      []string{DefaultExpectedTitle},
		screenshot:  pngStub,
	}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return s.navigateErr
}

func (s *fakeSession) WaitForText(ctx context.Context, text string) error {
	s.mu.Lock()
	s.waitedFor = append(s.waitedFor, text)
	appears := s.textAppears
	s.mu.Unlock()

	if appears {
		return nil
	}
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return driver.ErrTimeout
	}
	return ctx.Err()
}

func (s *fakeSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.titleErr != nil {
		return "", s.titleErr
	}
	i := min(s.titleReads, len(s.titles)-1)
	s.titleReads++
	return s.titles[i], nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots++
	return s.screenshot, s.screenshotErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}
