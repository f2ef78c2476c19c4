package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// ErrNoPageTarget is returned when the browser exposes no page to drive.
var ErrNoPageTarget = errors.New("no page target found")

// ErrStartTimeout is returned when Chrome's debugging endpoint never answers.
var ErrStartTimeout = errors.New("browser start timeout")

// startTimeout applies when Start's context carries no deadline.
const startTimeout = 30 * time.Second

// Browser is a Chrome instance reachable over the DevTools HTTP endpoint.
// It either owns the process (Start) or borrows one (Attach).
type Browser struct {
	cmd      *exec.Cmd
	endpoint string
	tempDir  string
	log      *slog.Logger
}

// Start launches Chrome and waits for its debugging endpoint.
func Start(ctx context.Context, opts LaunchOptions, log *slog.Logger) (*Browser, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	binPath, err := FindChrome(opts.Binary)
	if err != nil {
		return nil, err
	}

	cmd, tempDir, err := spawnProcess(binPath, opts)
	if err != nil {
		return nil, err
	}

	b := &Browser{
		cmd:      cmd,
		endpoint: fmt.Sprintf("127.0.0.1:%d", opts.port()),
		tempDir:  tempDir,
		log:      log,
	}
	log.Info("launched chrome", "binary", binPath, "pid", b.PID(), "endpoint", b.endpoint, "headless", opts.Headless)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, startTimeout)
		defer cancel()
	}
	if err := b.waitForEndpoint(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// Attach uses an already running Chrome listening on endpoint ("host:port").
// Close leaves that process alone.
func Attach(ctx context.Context, endpoint string, log *slog.Logger) (*Browser, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	b := &Browser{endpoint: endpoint, log: log}
	info, err := b.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("attach to %s: %w", endpoint, err)
	}
	log.Info("attached to chrome", "endpoint", endpoint, "browser", info.Browser)
	return b, nil
}

func (b *Browser) waitForEndpoint(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ErrStartTimeout
		case <-ticker.C:
			if _, err := FetchVersion(ctx, b.endpoint); err == nil {
				return nil
			}
		}
	}
}

// Endpoint returns the "host:port" of the debugging endpoint.
func (b *Browser) Endpoint() string {
	return b.endpoint
}

// PID returns the process id, or 0 for an attached browser.
func (b *Browser) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

func (b *Browser) Version(ctx context.Context) (*VersionInfo, error) {
	return FetchVersion(ctx, b.endpoint)
}

// PageTarget returns the first page target.
func (b *Browser) PageTarget(ctx context.Context) (*Target, error) {
	targets, err := FetchTargets(ctx, b.endpoint)
	if err != nil {
		return nil, err
	}
	target := FindPageTarget(targets)
	if target == nil {
		return nil, ErrNoPageTarget
	}
	if target.WebSocketURL == "" {
		return nil, fmt.Errorf("page target %s has no websocket url", target.ID)
	}
	return target, nil
}

// Close stops an owned Chrome process and removes its temporary profile.
// Safe to call more than once.
func (b *Browser) Close() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}

	if err := b.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = b.cmd.Process.Kill()
	}
	_ = b.cmd.Wait()

	if b.tempDir != "" {
		_ = os.RemoveAll(b.tempDir)
	}
	b.log.Debug("chrome stopped", "endpoint", b.endpoint)
	b.cmd = nil
	return nil
}
