package wait

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantcarthew/sitesnap/internal/driver"
)

// Defaults for Options.
const (
	DefaultReadyTimeout  = 6 * time.Second
	DefaultSettleTimeout = 60 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultElementClass  = "metadata-view"
)

// Page is what the waiter needs from a driver.
type Page interface {
	Navigate(ctx context.Context, url string) error
	IsDocumentReady(ctx context.Context) (bool, error)
	HasElementByClassName(ctx context.Context, name string) (bool, error)
	AjaxActivity(ctx context.Context, counter string) driver.Activity
}

// Options tunes the waits. Zero durations take the defaults.
type Options struct {
	// ReadyTimeout bounds the document-ready and element waits, each.
	ReadyTimeout time.Duration

	// SettleTimeout is the soft cutoff, measured from navigation, for the ajax wait.
	SettleTimeout time.Duration

	PollInterval time.Duration

	// ElementClass must be present before ajax polling starts. Empty skips the check.
	ElementClass string

	// AjaxCounter is the in-page expression for outstanding requests.
	AjaxCounter string

	Clock Clock
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		ReadyTimeout:  DefaultReadyTimeout,
		SettleTimeout: DefaultSettleTimeout,
		PollInterval:  DefaultPollInterval,
		ElementClass:  DefaultElementClass,
		AjaxCounter:   driver.DefaultAjaxCounter,
	}
}

// Result describes a finished load.
type Result struct {
	Start   time.Time
	Elapsed time.Duration

	// Settled is false when the ajax wait hit SettleTimeout.
	Settled bool
}

// Waiter loads a URL and blocks until the page settles.
type Waiter struct {
	page Page
	opts Options
	log  *slog.Logger
}

func New(page Page, opts Options, log *slog.Logger) *Waiter {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.AjaxCounter == "" {
		opts.AjaxCounter = driver.DefaultAjaxCounter
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Waiter{page: page, opts: opts, log: log}
}

// Load navigates to url and waits for it to settle. Readiness and element
// timeouts are hard failures wrapping ErrTimeout; the ajax cutoff is not.
func (w *Waiter) Load(ctx context.Context, url string) (Result, error) {
	clock := w.opts.Clock

	w.log.Info("starting access", "url", url)
	start := clock.Now()
	if err := w.page.Navigate(ctx, url); err != nil {
		return Result{Start: start}, err
	}

	w.log.Info("waiting for readyState")
	if err := w.bounded(ctx, "document ready", w.documentReady); err != nil {
		return Result{Start: start, Elapsed: clock.Now().Sub(start)}, err
	}

	if w.opts.ElementClass != "" {
		w.log.Info("waiting for element", "class", w.opts.ElementClass)
		if err := w.bounded(ctx, "element ."+w.opts.ElementClass, w.elementPresent); err != nil {
			return Result{Start: start, Elapsed: clock.Now().Sub(start)}, err
		}
	}

	w.log.Info("waiting for ajax requests to finish")
	settled, err := w.settle(ctx, start)
	res := Result{Start: start, Elapsed: clock.Now().Sub(start), Settled: settled}
	if err != nil {
		return res, err
	}

	w.log.Info("end access", "url", url, "elapsed", res.Elapsed, "settled", settled)
	return res, nil
}

func (w *Waiter) bounded(ctx context.Context, what string, cond Condition) error {
	err := Poll(ctx, w.opts.Clock, w.opts.PollInterval, w.opts.ReadyTimeout, cond)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w after %s", what, err, w.opts.ReadyTimeout)
	}
	return nil
}

// Page-side exceptions (e.g. the execution context being replaced mid
// navigation) mean "not yet"; transport errors end the wait.
func (w *Waiter) documentReady(ctx context.Context) (bool, error) {
	ok, err := w.page.IsDocumentReady(ctx)
	if driver.IsScriptError(err) {
		w.log.Debug("readyState probe failed", "error", err)
		return false, nil
	}
	return ok, err
}

func (w *Waiter) elementPresent(ctx context.Context) (bool, error) {
	ok, err := w.page.HasElementByClassName(ctx, w.opts.ElementClass)
	if driver.IsScriptError(err) {
		w.log.Debug("element probe failed", "error", err)
		return false, nil
	}
	return ok, err
}

// settle polls the ajax counter with no bound other than SettleTimeout.
// Unknown activity counts as not ready. Elapsed time is logged once per
// whole second.
func (w *Waiter) settle(ctx context.Context, start time.Time) (bool, error) {
	clock := w.opts.Clock
	lastLogged := 0

	for {
		activity := w.page.AjaxActivity(ctx, w.opts.AjaxCounter)
		if activity == driver.ActivityInactive {
			return true, nil
		}

		elapsed := clock.Now().Sub(start)
		if err := clock.Sleep(ctx, w.opts.PollInterval); err != nil {
			return false, err
		}

		if sec := int(elapsed.Seconds()); sec != lastLogged {
			w.log.Info("still waiting", "elapsed", fmt.Sprintf("%.2f", elapsed.Seconds()), "ajax", activity.String())
			lastLogged = sec
		}

		if elapsed > w.opts.SettleTimeout {
			w.log.Error("page did not settle, giving up", "waited", elapsed.Round(time.Millisecond), "limit", w.opts.SettleTimeout)
			return false, nil
		}
	}
}
