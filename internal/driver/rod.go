package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Rod drives a page through go-rod. It records the same Network and Page
// events as CDP by re-encoding rod's typed events.
type Rod struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	perf     *PerfLog
	log      *slog.Logger
	stop     context.CancelFunc
	done     chan struct{}
}

// RodOptions configures OpenRod.
type RodOptions struct {
	// Bin is the Chrome binary. Empty lets rod locate or download one.
	Bin string

	// RemoteURL attaches to a running browser ("host:port") instead of launching.
	RemoteURL string

	Headless    bool
	NoSandbox   bool
	LogCapacity int
	Logger      *slog.Logger
}

// OpenRod launches (or attaches to) a browser and opens a blank page with
// event capture running.
func OpenRod(ctx context.Context, opts RodOptions) (*Rod, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var (
		controlURL string
		l          *launcher.Launcher
		err        error
	)
	if opts.RemoteURL != "" {
		controlURL, err = launcher.ResolveURL(opts.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", opts.RemoteURL, err)
		}
	} else {
		l = launcher.New().Context(ctx).Headless(opts.Headless).NoSandbox(opts.NoSandbox)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		controlURL, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}
	log.Info("rod connected", "control", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		cleanupLauncher(l)
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		cleanupLauncher(l)
		return nil, fmt.Errorf("open page: %w", err)
	}

	evCtx, stop := context.WithCancel(context.Background())
	d := &Rod{
		browser:  b,
		page:     page,
		launcher: l,
		perf:     NewPerfLog(opts.LogCapacity),
		log:      log,
		stop:     stop,
		done:     make(chan struct{}),
	}

	target := string(page.TargetID)
	wait := page.Context(evCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) { d.record(target, e) },
		func(e *proto.NetworkResponseReceived) { d.record(target, e) },
		func(e *proto.NetworkLoadingFinished) { d.record(target, e) },
		func(e *proto.NetworkLoadingFailed) { d.record(target, e) },
		func(e *proto.PageFrameNavigated) { d.record(target, e) },
		func(e *proto.PageDomContentEventFired) { d.record(target, e) },
		func(e *proto.PageLoadEventFired) { d.record(target, e) },
	)
	go func() {
		defer close(d.done)
		wait()
	}()

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("Network.enable: %w", err)
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("Page.enable: %w", err)
	}
	return d, nil
}

func cleanupLauncher(l *launcher.Launcher) {
	if l != nil {
		l.Kill()
		l.Cleanup()
	}
}

func (d *Rod) record(target string, e proto.Event) {
	params, err := json.Marshal(e)
	if err != nil {
		d.log.Debug("event not recorded", "method", e.ProtoEvent(), "error", err)
		return
	}
	d.perf.Record(NewLogEntry(time.Now(), target, e.ProtoEvent(), params))
}

func (d *Rod) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

// eval runs a JS function in the page. Any failure inside the page surfaces
// as a ScriptError.
func (d *Rod) eval(ctx context.Context, fn string, args ...any) (*proto.RuntimeRemoteObject, error) {
	obj, err := d.page.Context(ctx).Eval(fn, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ScriptError{Expression: fn, Text: err.Error()}
	}
	return obj, nil
}

func (d *Rod) IsDocumentReady(ctx context.Context) (bool, error) {
	obj, err := d.eval(ctx, `() => document.readyState`)
	if err != nil {
		return false, err
	}
	return obj.Value.Str() == "complete", nil
}

func (d *Rod) HasElementByClassName(ctx context.Context, name string) (bool, error) {
	obj, err := d.eval(ctx, `(name) => document.getElementsByClassName(name).length > 0`, name)
	if err != nil {
		return false, err
	}
	return obj.Value.Bool(), nil
}

func (d *Rod) AjaxActivity(ctx context.Context, counter string) Activity {
	obj, err := d.eval(ctx, fmt.Sprintf(`() => %s`, ajaxExpression(counter)))
	if err != nil {
		d.log.Debug("ajax probe failed", "error", err)
		return ActivityUnknown
	}
	if obj.Type != proto.RuntimeRemoteObjectTypeBoolean {
		return ActivityUnknown
	}
	if obj.Value.Bool() {
		return ActivityInactive
	}
	return ActivityActive
}

func (d *Rod) PerformanceLog(ctx context.Context) ([]LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := d.perf.Dropped(); n > 0 {
		d.log.Warn("performance log overflowed", "dropped", n)
	}
	return d.perf.Drain(), nil
}

// Close stops event capture, closes the browser connection and, if rod
// launched the browser, kills it and removes its profile.
func (d *Rod) Close() error {
	d.stop()
	<-d.done

	var err error
	if d.launcher != nil {
		err = d.browser.Close()
		cleanupLauncher(d.launcher)
	} else {
		err = d.page.Close()
	}
	return err
}
