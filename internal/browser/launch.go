package browser

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// LaunchOptions configures browser launch behavior.
type LaunchOptions struct {
	// ChromePath is the browser executable. Empty means auto-detect.
	ChromePath string

	// Headless runs the browser without a visible window.
	Headless bool

	// NoSandbox disables the Chrome sandbox, needed when running as root
	// inside containers.
	NoSandbox bool

	// Port for CDP remote debugging. If 0, a free local port is chosen.
	Port int

	// UserDataDir specifies the browser profile directory.
	// Empty creates a temporary directory that Close removes.
	UserDataDir string

	// WindowWidth and WindowHeight size the viewport. Zero uses the defaults.
	WindowWidth  int
	WindowHeight int

	// StartTimeout bounds how long Start waits for the CDP endpoint.
	// Zero uses DefaultStartTimeout.
	StartTimeout time.Duration
}

const (
	// DefaultWindowWidth and DefaultWindowHeight size screenshots when unset.
	DefaultWindowWidth  = 1280
	DefaultWindowHeight = 720

	// DefaultStartTimeout is how long Start waits for CDP to come up.
	DefaultStartTimeout = 30 * time.Second
)

// buildArgs constructs the Chrome command line arguments.
func buildArgs(opts LaunchOptions) []string {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width == 0 {
		width = DefaultWindowWidth
	}
	if height == 0 {
		height = DefaultWindowHeight
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", opts.Port),
		fmt.Sprintf("--window-size=%d,%d", width, height),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-popup-blocking",
		"--hide-scrollbars",
		"--mute-audio",
	}

	// Platform-specific flags to avoid system dialogs
	switch runtime.GOOS {
	case "darwin":
		args = append(args, "--use-mock-keychain")
	case "linux":
		args = append(args, "--password-store=basic")
	}

	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	if opts.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	if opts.UserDataDir != "" {
		args = append(args, fmt.Sprintf("--user-data-dir=%s", opts.UserDataDir))
	}

	// Open about:blank to avoid any default page loading
	args = append(args, "about:blank")

	return args
}

// freePort asks the kernel for an unused local TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// spawnProcess starts the browser process with the given binary and options.
// It does not wait for the process to exit. opts must already carry a
// concrete port and profile directory.
func spawnProcess(binPath string, opts LaunchOptions) (*exec.Cmd, error) {
	cmd := exec.Command(binPath, buildArgs(opts)...)

	// Detach from controlling terminal
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return cmd, nil
}

// prepareOptions fills in the port and profile directory.
// ownsData reports whether the caller must remove the directory.
func prepareOptions(opts LaunchOptions) (prepared LaunchOptions, ownsData bool, err error) {
	if opts.Port == 0 {
		if opts.Port, err = freePort(); err != nil {
			return opts, false, err
		}
	}
	if opts.UserDataDir == "" {
		dir, err := os.MkdirTemp("", "verifytitle-chrome-*")
		if err != nil {
			return opts, false, fmt.Errorf("create temp dir: %w", err)
		}
		opts.UserDataDir = dir
		ownsData = true
	}
	return opts, ownsData, nil
}
