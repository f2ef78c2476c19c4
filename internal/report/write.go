package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
)

// Report is everything one run prints.
type Report struct {
	RunID     string           `json:"run_id"`
	URL       string           `json:"url"`
	Elapsed   time.Duration    `json:"-"`
	Settled   bool             `json:"settled"`
	Skipped   int              `json:"skipped,omitempty"`
	Resources []ResourceTiming `json:"resources"`
}

// MarshalJSON reports elapsed as seconds rather than nanoseconds.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		OK bool `json:"ok"`
		plain
		ElapsedSeconds float64 `json:"elapsed"`
	}{OK: true, plain: plain(r), ElapsedSeconds: r.Elapsed.Seconds()})
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// TextWriter prints the plain report: an "Elapsed time" line then one line
// per resource.
type TextWriter struct {
	Out io.Writer

	// Color highlights status codes by class.
	Color bool
}

func (w TextWriter) Write(r Report) error {
	if _, err := fmt.Fprintf(w.Out, "Elapsed time %s\n", num(r.Elapsed.Seconds())); err != nil {
		return err
	}
	for _, rt := range r.Resources {
		if _, err := fmt.Fprintf(w.Out, "%s %s %s %s %s\n",
			num(rt.RequestTime), num(rt.ConnectDuration), num(rt.TotalDuration),
			w.status(rt.Status), rt.URL); err != nil {
			return err
		}
	}
	return nil
}

func (w TextWriter) status(code int) string {
	s := strconv.Itoa(code)
	if !w.Color {
		return s
	}

	var c *color.Color
	switch {
	case code >= 500:
		c = color.New(color.FgRed)
	case code >= 400:
		c = color.New(color.FgYellow)
	case code >= 300:
		c = color.New(color.FgCyan)
	case code >= 200:
		c = color.New(color.FgGreen)
	default:
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

// JSONWriter prints the report as a single JSON document.
type JSONWriter struct {
	Out    io.Writer
	Indent bool
}

func (w JSONWriter) Write(r Report) error {
	if r.Resources == nil {
		r.Resources = []ResourceTiming{}
	}
	enc := json.NewEncoder(w.Out)
	if w.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}
