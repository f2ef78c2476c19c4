package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/grantcarthew/sitesnap/internal/config"
	"github.com/grantcarthew/sitesnap/internal/logging"
	"github.com/grantcarthew/sitesnap/internal/report"
	"github.com/grantcarthew/sitesnap/internal/wait"
)

type reportWriter interface {
	Write(report.Report) error
}

// run performs one measurement: open a session, wait for the page, print
// the timings. The session is closed on every path once opened.
func (a *app) run(ctx context.Context, cfg config.Config) error {
	runID := uuid.NewString()
	log := logging.New(a.stderr, cfg.LogLevel).With("run_id", runID)

	if cfg.URL == "" {
		log.Warn("No URL provided.")
		return &printedError{err: ErrNoURL}
	}
	if err := cfg.Validate(); err != nil {
		return a.outputError(cfg, err)
	}
	ctx = logging.NewContext(ctx, log)

	drv, err := a.open(ctx, cfg.DriverOptions(), log)
	if err != nil {
		return a.outputError(cfg, fmt.Errorf("start browser: %w", err))
	}
	defer func() {
		if err := drv.Close(); err != nil {
			log.Warn("closing browser", "error", err)
		}
	}()

	opts := cfg.WaitOptions()
	opts.Clock = a.clock
	res, err := wait.New(drv, opts, log).Load(ctx, cfg.URL)
	if err != nil {
		return a.outputError(cfg, err)
	}

	entries, err := drv.PerformanceLog(ctx)
	if err != nil {
		return a.outputError(cfg, fmt.Errorf("read performance log: %w", err))
	}
	timings, skipped := report.Extract(entries, log)
	if skipped > 0 {
		log.Warn("skipped malformed log entries", "count", skipped)
	}

	rep := report.Report{
		RunID:     runID,
		URL:       cfg.URL,
		Elapsed:   res.Elapsed,
		Settled:   res.Settled,
		Skipped:   skipped,
		Resources: timings,
	}

	var w reportWriter = report.TextWriter{Out: a.stdout, Color: a.useColor(cfg, a.stdout)}
	if cfg.JSON {
		w = report.JSONWriter{Out: a.stdout, Indent: a.tty(a.stdout)}
	}
	if err := w.Write(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
