// Package driver abstracts the browser-automation engine behind a small
// session interface so the verification runner can drive any of them.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Default is the driver used when none is configured.
const Default = "cdp"

// PollInterval is how often readiness and title checks are repeated.
const PollInterval = 100 * time.Millisecond

// ErrTimeout is returned (wrapped) when a bounded wait elapses.
var ErrTimeout = errors.New("timed out")

// ErrUnknownDriver is returned by Lookup for unregistered names.
var ErrUnknownDriver = errors.New("unknown driver")

// Options configures a browser launch. Every driver honours the same set.
type Options struct {
	// ChromePath overrides browser discovery.
	ChromePath string

	Headless  bool
	NoSandbox bool

	WindowWidth  int
	WindowHeight int

	// Debugf receives diagnostic lines. Nil discards them.
	Debugf func(format string, args ...any)
}

func (o Options) debugf(format string, args ...any) {
	if o.Debugf != nil {
		o.Debugf(format, args...)
	}
}

// windowSize returns the configured viewport, filling in defaults.
func (o Options) windowSize() (int, int) {
	w, h := o.WindowWidth, o.WindowHeight
	if w == 0 {
		w = 1280
	}
	if h == 0 {
		h = 720
	}
	return w, h
}

// Driver launches browser sessions.
type Driver interface {
	Name() string
	Launch(ctx context.Context, opts Options) (Session, error)
}

// Session is one browser with one page. A session is owned by a single
// caller; Close releases the browser and is safe to call more than once.
type Session interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// WaitForText blocks until the page's visible text contains text
	// (see ReadyTextScript) or ctx ends. An elapsed deadline is ErrTimeout.
	WaitForText(ctx context.Context, text string) error

	// Title returns document.title as-is.
	Title(ctx context.Context) (string, error)

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Driver{}
)

// Register makes d available to Lookup. It panics on duplicate names.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[d.Name()]; dup {
		panic("driver: Register called twice for " + d.Name())
	}
	registry[d.Name()] = d
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownDriver, name, namesLocked())
	}
	return d, nil
}

// Names returns the registered driver names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ReadyTextScript is a JavaScript function that reports whether the page's
// rendered text contains its argument. Matching is case-insensitive and
// collapses runs of whitespace, the same way a Playwright text= selector
// treats an unquoted string.
const ReadyTextScript = `(needle) => {
	const norm = (s) => String(s || "").replace(/\s+/g, " ").trim().toLowerCase();
	if (!document.body) return false;
	return norm(document.body.innerText).includes(norm(needle));
}`

// ReadyTextExpression applies ReadyTextScript to text as a standalone
// expression, for engines that evaluate strings rather than functions.
func ReadyTextExpression(text string) string {
	arg, _ := json.Marshal(text)
	return fmt.Sprintf("(%s)(%s)", ReadyTextScript, arg)
}

// Poll calls check every interval until it reports true or ctx ends.
// Errors from check are treated as transient (the page may be mid-navigation)
// and reported alongside the timeout.
func Poll(ctx context.Context, interval time.Duration, check func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := check(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil && ctx.Err() == nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return timeoutError(ctx, lastErr)
		case <-ticker.C:
		}
	}
}

// timeoutError converts a context failure into ErrTimeout when the deadline
// passed, keeping cause for the message.
func timeoutError(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if cause != nil {
			return fmt.Errorf("%w (last error: %v)", ErrTimeout, cause)
		}
		return ErrTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return cause
}

// callContext runs fn and returns its result, or gives up when ctx ends.
// fn is left to finish in the background.
func callContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, timeoutError(ctx, nil)
	}
}

// remaining returns the time left before ctx's deadline, or 0 if it has none.
func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	if left := time.Until(deadline); left > 0 {
		return left
	}
	return time.Millisecond
}
