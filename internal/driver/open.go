package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantcarthew/sitesnap/internal/browser"
	"github.com/grantcarthew/sitesnap/internal/cdp"
)

// Backend names accepted by Open.
const (
	BackendCDP = "cdp"
	BackendRod = "rod"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Chrome      string
	Headless    bool
	NoSandbox   bool
	Port        int
	RemoteURL   string
	LogCapacity int
}

// Open creates the driver for one run. The returned driver owns the browser
// it launched; closing the driver stops it.
func Open(ctx context.Context, opts Options, log *slog.Logger) (Driver, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	switch opts.Backend {
	case "", BackendCDP:
		return openCDP(ctx, opts, log)
	case BackendRod:
		return OpenRod(ctx, RodOptions{
			Bin:         opts.Chrome,
			RemoteURL:   opts.RemoteURL,
			Headless:    opts.Headless,
			NoSandbox:   opts.NoSandbox,
			LogCapacity: opts.LogCapacity,
			Logger:      log,
		})
	default:
		return nil, fmt.Errorf("unknown driver %q (want %s or %s)", opts.Backend, BackendCDP, BackendRod)
	}
}

func openCDP(ctx context.Context, opts Options, log *slog.Logger) (Driver, error) {
	var (
		b   *browser.Browser
		err error
	)
	if opts.RemoteURL != "" {
		b, err = browser.Attach(ctx, opts.RemoteURL, log)
	} else {
		b, err = browser.Start(ctx, browser.LaunchOptions{
			Binary:    opts.Chrome,
			Headless:  opts.Headless,
			Port:      opts.Port,
			NoSandbox: opts.NoSandbox,
		}, log)
	}
	if err != nil {
		return nil, err
	}

	target, err := b.PageTarget(ctx)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	client, err := cdp.Dial(ctx, target.WebSocketURL, log)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	d, err := NewCDP(ctx, client, CDPOptions{
		TargetID:    target.ID,
		LogCapacity: opts.LogCapacity,
		OnClose:     b.Close,
		Logger:      log,
	})
	if err != nil {
		_ = client.Close()
		_ = b.Close()
		return nil, err
	}
	return d, nil
}
