// Package browser provides Chrome detection, launch, and target discovery.
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ChromeEnvVar names the environment variable that overrides Chrome discovery.
const ChromeEnvVar = "VERIFYTITLE_CHROME"

// ErrChromeNotFound is returned when no Chrome binary can be located.
var ErrChromeNotFound = errors.New("chrome not found")

// chromePaths returns the list of paths to search for Chrome on the current platform.
func chromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"headless_shell",
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			"chrome.exe",
		}
	default:
		return nil
	}
}

// FindChrome searches for a Chrome or Chromium binary on the system.
// It first checks the VERIFYTITLE_CHROME environment variable, then searches
// common installation paths for the current platform.
func FindChrome() (string, error) {
	if envPath := os.Getenv(ChromeEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: %s=%s does not exist", ErrChromeNotFound, ChromeEnvVar, envPath)
	}

	for _, path := range chromePaths() {
		found, err := exec.LookPath(path)
		if err == nil {
			return found, nil
		}
	}

	return "", ErrChromeNotFound
}

// ResolveChrome returns explicit when it names an existing file, and
// otherwise falls back to FindChrome.
func ResolveChrome(explicit string) (string, error) {
	if explicit == "" {
		return FindChrome()
	}
	found, err := exec.LookPath(explicit)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrChromeNotFound, explicit)
	}
	return found, nil
}
