package browser

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// LaunchOptions configures a Chrome process started by sitesnap.
type LaunchOptions struct {
	// Binary overrides Chrome discovery.
	Binary string

	Headless bool

	// Port for remote debugging. Zero means DefaultPort.
	Port int

	// UserDataDir is the profile directory. Empty creates a temporary one
	// that is removed on Close.
	UserDataDir string

	// NoSandbox is needed when running as root inside containers.
	NoSandbox bool
}

// DefaultPort is Chrome's conventional remote debugging port.
const DefaultPort = 9222

func (o LaunchOptions) port() int {
	if o.Port == 0 {
		return DefaultPort
	}
	return o.Port
}

func buildArgs(opts LaunchOptions) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", opts.port()),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-extensions",
		// A cold HTTP cache is the point of a load measurement.
		"--disk-cache-size=1",
	}

	switch runtime.GOOS {
	case "darwin":
		args = append(args, "--use-mock-keychain")
	case "linux":
		args = append(args, "--password-store=basic")
	}

	if opts.Headless {
		args = append(args, "--headless=new", "--hide-scrollbars", "--mute-audio")
	}
	if opts.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	if opts.UserDataDir != "" {
		args = append(args, "--user-data-dir="+opts.UserDataDir)
	}

	return append(args, "about:blank")
}

func createTempDataDir() (string, error) {
	return os.MkdirTemp("", "sitesnap-chrome-*")
}

// spawnProcess starts Chrome without waiting for it. It returns the profile
// directory it created, or "" when the caller supplied one.
func spawnProcess(binPath string, opts LaunchOptions) (*exec.Cmd, string, error) {
	var tempDir string
	if opts.UserDataDir == "" {
		dir, err := createTempDataDir()
		if err != nil {
			return nil, "", fmt.Errorf("create profile dir: %w", err)
		}
		tempDir = dir
		opts.UserDataDir = dir
	}

	cmd := exec.Command(binPath, buildArgs(opts)...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		if tempDir != "" {
			_ = os.RemoveAll(tempDir)
		}
		return nil, "", fmt.Errorf("start %s: %w", binPath, err)
	}
	return cmd, tempDir, nil
}
