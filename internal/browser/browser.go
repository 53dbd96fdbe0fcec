package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// host is where Chrome exposes its debugging endpoint.
const host = "127.0.0.1"

// Browser represents a running Chrome instance with CDP enabled.
type Browser struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	port     int
	dataDir  string
	ownsData bool // true if we created the temp data dir
}

// ErrNoPageTarget is returned when no page target is available.
var ErrNoPageTarget = errors.New("no page target found")

// ErrStartTimeout is returned when the browser fails to start in time.
var ErrStartTimeout = errors.New("browser start timeout")

// Start launches a new Chrome browser with CDP enabled.
// It waits for the CDP endpoint to become available before returning.
func Start(ctx context.Context, opts LaunchOptions) (*Browser, error) {
	binPath, err := ResolveChrome(opts.ChromePath)
	if err != nil {
		return nil, err
	}

	opts, ownsData, err := prepareOptions(opts)
	if err != nil {
		return nil, err
	}

	cmd, err := spawnProcess(binPath, opts)
	if err != nil {
		if ownsData {
			os.RemoveAll(opts.UserDataDir)
		}
		return nil, err
	}

	b := &Browser{
		cmd:      cmd,
		port:     opts.Port,
		dataDir:  opts.UserDataDir,
		ownsData: ownsData,
	}

	timeout := opts.StartTimeout
	if timeout == 0 {
		timeout = DefaultStartTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.waitForCDP(waitCtx); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

// waitForCDP polls the CDP endpoint until it responds or context is cancelled.
func (b *Browser) waitForCDP(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrStartTimeout
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := FetchVersion(ctx, host, b.port); err == nil {
				return nil
			}
		}
	}
}

// Port returns the CDP debugging port.
func (b *Browser) Port() int {
	return b.port
}

// PID returns the browser process ID.
func (b *Browser) PID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Targets fetches the list of available CDP targets.
func (b *Browser) Targets(ctx context.Context) ([]Target, error) {
	return FetchTargets(ctx, host, b.port)
}

// PageTarget returns the first page-type target.
func (b *Browser) PageTarget(ctx context.Context) (*Target, error) {
	targets, err := b.Targets(ctx)
	if err != nil {
		return nil, err
	}

	target := FindPageTarget(targets)
	if target == nil {
		return nil, ErrNoPageTarget
	}

	return target, nil
}

// Version fetches the browser version information.
func (b *Browser) Version(ctx context.Context) (*VersionInfo, error) {
	return FetchVersion(ctx, host, b.port)
}

// WebSocketURL returns the WebSocket URL for connecting to the first page target.
func (b *Browser) WebSocketURL(ctx context.Context) (string, error) {
	target, err := b.PageTarget(ctx)
	if err != nil {
		return "", err
	}

	if target.WebSocketURL == "" {
		return "", fmt.Errorf("target %s has no WebSocket URL", target.ID)
	}

	return target.WebSocketURL, nil
}

// Close terminates the browser process and removes the temporary profile.
// It is safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}

	// Ask for a graceful shutdown first
	if err := b.cmd.Process.Signal(os.Interrupt); err != nil {
		if !errors.Is(err, os.ErrProcessDone) {
			_ = b.cmd.Process.Kill()
		}
	}

	// Chrome normally exits promptly on interrupt; escalate if it doesn't
	exited := make(chan struct{})
	go func() {
		_ = b.cmd.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		_ = b.cmd.Process.Kill()
		<-exited
	}

	if b.ownsData && b.dataDir != "" {
		os.RemoveAll(b.dataDir)
	}

	b.cmd = nil
	return nil
}
