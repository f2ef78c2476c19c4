// Package browser finds, launches and inspects the Chrome instance a run drives.
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ChromeEnv names the environment variable that overrides Chrome discovery.
const ChromeEnv = "SITESNAP_CHROME"

// ErrChromeNotFound is returned when no Chrome binary can be located.
var ErrChromeNotFound = errors.New("chrome not found")

func chromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
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

// FindChrome resolves the Chrome binary. An explicit path wins, then
// $SITESNAP_CHROME, then the platform's usual install locations.
func FindChrome(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(ChromeEnv)} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s", ErrChromeNotFound, p)
		}
		return p, nil
	}

	for _, p := range chromePaths() {
		if found, err := exec.LookPath(p); err == nil {
			return found, nil
		}
	}
	return "", ErrChromeNotFound
}
