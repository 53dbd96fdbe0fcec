package verify

import (
	"errors"
	"fmt"
	"time"
)

// State is a step in a verification run.
type State int

// Run states. Closed is terminal and reachable from every other state.
const (
	StateInit State = iota
	StateBrowserLaunched
	StatePageLoaded
	StateVerified
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateInit:            "init",
	StateBrowserLaunched: "browser_launched",
	StatePageLoaded:      "page_loaded",
	StateVerified:        "verified",
	StateFailed:          "failed",
	StateClosed:          "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Kind classifies why a run failed.
type Kind int

const (
	KindNone Kind = iota
	KindBrowserLaunchFailed
	KindNavigationFailed
	KindReadinessTimeout
	KindTitleMismatch
	KindScreenshotFailed
)

var kindNames = [...]string{
	KindNone:                "none",
	KindBrowserLaunchFailed: "browser_launch_failed",
	KindNavigationFailed:    "navigation_failed",
	KindReadinessTimeout:    "readiness_timeout",
	KindTitleMismatch:       "title_mismatch",
	KindScreenshotFailed:    "screenshot_failed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode is the process status for a failure of this kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindNone:
		return 0
	case KindBrowserLaunchFailed:
		return 2
	case KindNavigationFailed:
		return 3
	case KindReadinessTimeout:
		return 4
	case KindTitleMismatch:
		return 5
	case KindScreenshotFailed:
		return 6
	default:
		return 1
	}
}

// Failure is the error carried by a failed Result.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindBrowserLaunchFailed:
		return fmt.Sprintf("browser launch failed: %v", f.Err)
	case KindReadinessTimeout:
		return fmt.Sprintf("readiness text did not appear: %v", f.Err)
	case KindScreenshotFailed:
		return fmt.Sprintf("screenshot failed: %v", f.Err)
	default:
		// Navigation and title errors already read well on their own
		return f.Err.Error()
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind carried by err, or KindNone.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindNone
}

// TitleMismatchError reports an exact-match title failure.
type TitleMismatchError struct {
	Expected string
	Actual   string
}

func (e *TitleMismatchError) Error() string {
	return fmt.Sprintf("title mismatch: expected %q, got %q", e.Expected, e.Actual)
}

// Outcome is the overall verdict of a run.
type Outcome int

const (
	Failed Outcome = iota
	Succeeded
)

func (o Outcome) String() string {
	if o == Succeeded {
		return "success"
	}
	return "failure"
}

// Result describes a finished run.
type Result struct {
	Outcome Outcome
	Kind    Kind
	Err     error

	// URL is the page that was checked.
	URL string

	// Title is the last title read from the page, if any.
	Title string

	// ScreenshotPath is set only when a screenshot was written.
	ScreenshotPath string

	// Transitions lists every state entered, starting with StateInit.
	Transitions []State

	Duration time.Duration
}

// OK reports whether the run succeeded.
func (r Result) OK() bool {
	return r.Outcome == Succeeded
}

// ExitCode returns the process status for r. With reportOnly set,
// verification failures exit 0 so a CI step stays non-blocking.
func (r Result) ExitCode(reportOnly bool) int {
	if r.OK() || reportOnly {
		return 0
	}
	return r.Kind.ExitCode()
}
