//go:build integration

package browser

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func startHeadless(t *testing.T) *Browser {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := Start(ctx, LaunchOptions{
		Headless:  true,
		NoSandbox: os.Geteuid() == 0,
	})
	if err != nil {
		t.Fatalf("failed to start browser: %v", err)
	}
	return b
}

func TestStart_LaunchesBrowser(t *testing.T) {
	b := startHeadless(t)
	defer b.Close()

	if b.Port() == 0 {
		t.Error("expected a debugging port")
	}
	if b.PID() == 0 {
		t.Error("expected non-zero PID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := b.Version(ctx)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	t.Logf("Browser: %s", info.Browser)

	wsURL, err := b.WebSocketURL(ctx)
	if err != nil {
		t.Fatalf("failed to get WebSocket URL: %v", err)
	}
	if wsURL == "" {
		t.Error("expected non-empty WebSocket URL")
	}
}

func TestBrowser_CloseReleasesProcess(t *testing.T) {
	b := startHeadless(t)

	pid := b.PID()
	if pid == 0 {
		t.Fatal("expected non-zero PID before close")
	}
	dataDir := b.dataDir

	if err := b.Close(); err != nil {
		t.Errorf("unexpected error on close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("unexpected error on double close: %v", err)
	}

	// Signal 0 checks for existence without delivering anything
	if proc, err := os.FindProcess(pid); err == nil {
		if err := proc.Signal(syscall.Signal(0)); err == nil {
			t.Errorf("browser process %d still alive after close", pid)
		}
	}
	if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Errorf("expected temp profile %s to be removed", dataDir)
	}
}
