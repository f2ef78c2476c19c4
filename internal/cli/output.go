package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/grantcarthew/sitesnap/internal/config"
)

// printedError marks an error whose message has already reached the user.
type printedError struct {
	err error
}

func (e *printedError) Error() string { return e.err.Error() }
func (e *printedError) Unwrap() error { return e.err }

// IsPrintedError reports whether err was already written to stderr.
func IsPrintedError(err error) bool {
	var pe *printedError
	return errors.As(err, &pe)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// useColor determines if w gets color based on flags and environment.
func (a *app) useColor(cfg config.Config, w io.Writer) bool {
	if cfg.JSON || cfg.NoColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return a.tty(w)
}

// outputError writes err to stderr, as JSON when --json is set, and marks
// it printed.
func (a *app) outputError(cfg config.Config, err error) error {
	if cfg.JSON {
		enc := json.NewEncoder(a.stderr)
		if a.tty(a.stderr) {
			enc.SetIndent("", "  ")
		}
		_ = enc.Encode(map[string]any{"ok": false, "error": err.Error()})
	} else if a.useColor(cfg, a.stderr) {
		c := color.New(color.FgRed)
		c.EnableColor()
		c.Fprint(a.stderr, "Error:")
		fmt.Fprintf(a.stderr, " %s\n", err)
	} else {
		fmt.Fprintf(a.stderr, "Error: %s\n", err)
	}
	return &printedError{err: err}
}
