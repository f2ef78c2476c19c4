// Package cli implements the sitesnap command.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/grantcarthew/sitesnap/internal/config"
	"github.com/grantcarthew/sitesnap/internal/driver"
	"github.com/grantcarthew/sitesnap/internal/wait"
)

// Version is set at build time.
var Version = "dev"

// ErrNoURL is returned when neither the arguments nor the config name a page.
var ErrNoURL = errors.New("no URL provided")

// Opener starts a browser session for one run.
type Opener func(ctx context.Context, opts driver.Options, log *slog.Logger) (driver.Driver, error)

// app carries the dependencies of one invocation.
type app struct {
	open   Opener
	clock  wait.Clock
	stdout io.Writer
	stderr io.Writer

	// tty reports whether w is an interactive terminal.
	tty func(w io.Writer) bool

	configPath string
	flags      config.Config
}

func newApp() *app {
	return &app{
		open:   driver.Open,
		stdout: os.Stdout,
		stderr: os.Stderr,
		tty:    isTerminal,
		flags:  config.Default(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitesnap [url]",
		Short: "Measure how long a page takes to settle and report its resource timings",
		Long: `sitesnap loads a page in Chrome, waits for the document, a marker element
and outstanding ajax requests, then prints the elapsed time and one line per
network response: request time, connect duration, total duration, status, URL.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolve(cmd.Flags(), args)
			if err != nil {
				return a.outputError(cfg, err)
			}
			return a.run(cmd.Context(), cfg)
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.SetVersionTemplate(`sitesnap version {{.Version}}
`)

	f := cmd.Flags()
	f.SortFlags = false
	f.CountVarP(&a.flags.LogLevel, "log_level", "l", "Increase log verbosity (-l info, -ll debug)")
	f.StringVar(&a.configPath, "config", "", "Read settings from a YAML file")
	f.BoolVar(&a.flags.JSON, "json", a.flags.JSON, "Output in JSON format (default is text)")
	f.BoolVar(&a.flags.NoColor, "no-color", a.flags.NoColor, "Disable color output")

	f.StringVar(&a.flags.Driver, "driver", a.flags.Driver, "Browser driver: cdp or rod")
	f.BoolVar(&a.flags.Headless, "headless", a.flags.Headless, "Run Chrome without a window")
	f.BoolVar(&a.flags.NoSandbox, "no-sandbox", a.flags.NoSandbox, "Disable the Chrome sandbox (containers)")
	f.StringVar(&a.flags.Chrome, "chrome", a.flags.Chrome, "Chrome binary (default: $SITESNAP_CHROME or auto-detect)")
	f.IntVar(&a.flags.Port, "port", a.flags.Port, "Remote debugging port (default 9222)")
	f.StringVar(&a.flags.RemoteURL, "remote-url", a.flags.RemoteURL, "Attach to a running Chrome at host:port instead of launching")

	f.StringVar(&a.flags.ElementClass, "element-class", a.flags.ElementClass, "Class name to wait for; empty skips the element wait")
	f.StringVar(&a.flags.AjaxCounter, "ajax-counter", a.flags.AjaxCounter, "JS expression counting outstanding ajax requests")
	f.DurationVar(&a.flags.ReadyTimeout, "ready-timeout", a.flags.ReadyTimeout, "Window for the document and element waits")
	f.DurationVar(&a.flags.SettleTimeout, "settle-timeout", a.flags.SettleTimeout, "Give up waiting for ajax after this long")
	f.DurationVar(&a.flags.PollInterval, "poll-interval", a.flags.PollInterval, "Delay between ajax checks")
	f.IntVar(&a.flags.LogCapacity, "log-buffer", a.flags.LogCapacity, "Maximum performance log entries kept")

	return cmd
}

// resolve layers defaults, the config file and explicitly set flags.
func (a *app) resolve(flags *pflag.FlagSet, args []string) (config.Config, error) {
	cfg := a.flags
	if a.configPath != "" {
		fileCfg, err := config.Load(a.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
		flags.Visit(func(f *pflag.Flag) { overlay(&cfg, a.flags, f.Name) })
	}
	if len(args) == 1 {
		cfg.URL = args[0]
	}
	return cfg, nil
}

// overlay copies the field behind flag name from src to dst.
func overlay(dst *config.Config, src config.Config, name string) {
	switch name {
	case "log_level":
		dst.LogLevel = src.LogLevel
	case "json":
		dst.JSON = src.JSON
	case "no-color":
		dst.NoColor = src.NoColor
	case "driver":
		dst.Driver = src.Driver
	case "headless":
		dst.Headless = src.Headless
	case "no-sandbox":
		dst.NoSandbox = src.NoSandbox
	case "chrome":
		dst.Chrome = src.Chrome
	case "port":
		dst.Port = src.Port
	case "remote-url":
		dst.RemoteURL = src.RemoteURL
	case "element-class":
		dst.ElementClass = src.ElementClass
	case "ajax-counter":
		dst.AjaxCounter = src.AjaxCounter
	case "ready-timeout":
		dst.ReadyTimeout = src.ReadyTimeout
	case "settle-timeout":
		dst.SettleTimeout = src.SettleTimeout
	case "poll-interval":
		dst.PollInterval = src.PollInterval
	case "log-buffer":
		dst.LogCapacity = src.LogCapacity
	}
}

// Execute runs the root command. Interrupts cancel the run so the browser
// is still shut down.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(newApp()).ExecuteContext(ctx)
}
