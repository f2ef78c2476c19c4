package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantcarthew/sitesnap/internal/cdp"
)

// commander is the part of *cdp.Client the driver uses.
type commander interface {
	SendContext(ctx context.Context, method string, params any) (json.RawMessage, error)
	SubscribeAll(handler func(cdp.Event))
	Close() error
}

// CDP drives one page target through sitesnap's own DevTools client.
type CDP struct {
	client  commander
	target  string
	perf    *PerfLog
	log     *slog.Logger
	onClose func() error
	now     func() time.Time
}

// CDPOptions configures NewCDP.
type CDPOptions struct {
	// TargetID labels log entries (the "webview" field).
	TargetID string

	// LogCapacity bounds the performance log. Zero means DefaultLogCapacity.
	LogCapacity int

	// OnClose runs after the client closes, typically stopping the browser.
	OnClose func() error

	Logger *slog.Logger
}

// NewCDP starts recording Network and Page events and enables those domains.
func NewCDP(ctx context.Context, client commander, opts CDPOptions) (*CDP, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	d := &CDP{
		client:  client,
		target:  opts.TargetID,
		perf:    NewPerfLog(opts.LogCapacity),
		log:     log,
		onClose: opts.OnClose,
		now:     time.Now,
	}

	// Subscribe before enabling so the first events are not missed.
	client.SubscribeAll(d.record)

	for _, method := range []string{"Page.enable", "Network.enable", "Runtime.enable"} {
		if _, err := client.SendContext(ctx, method, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
	}
	return d, nil
}

func (d *CDP) record(evt cdp.Event) {
	switch evt.Domain() {
	case "Network", "Page":
		d.perf.Record(NewLogEntry(d.now(), d.target, evt.Method, evt.Params))
	}
}

func (d *CDP) Navigate(ctx context.Context, url string) error {
	result, err := d.client.SendContext(ctx, "Page.navigate", map[string]any{"url": url})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}

	var resp struct {
		FrameID   string `json:"frameId"`
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if resp.ErrorText != "" {
		return fmt.Errorf("%w: %s: %s", ErrNavigation, url, resp.ErrorText)
	}
	d.log.Debug("navigation started", "url", url, "frame", resp.FrameID)
	return nil
}

// evaluate runs expr in the page and decodes its by-value result into v.
func (d *CDP) evaluate(ctx context.Context, expr string, v any) error {
	result, err := d.client.SendContext(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	})
	if err != nil {
		return err
	}

	var resp struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}

	if ex := resp.ExceptionDetails; ex != nil {
		text := ex.Text
		if ex.Exception != nil && ex.Exception.Description != "" {
			text = ex.Exception.Description
		}
		return &ScriptError{Expression: expr, Text: text}
	}

	if len(resp.Result.Value) == 0 {
		return &ScriptError{Expression: expr, Text: "no value (" + resp.Result.Type + ")"}
	}
	if err := json.Unmarshal(resp.Result.Value, v); err != nil {
		return &ScriptError{Expression: expr, Text: fmt.Sprintf("unexpected %s result", resp.Result.Type)}
	}
	return nil
}

func (d *CDP) IsDocumentReady(ctx context.Context) (bool, error) {
	var state string
	if err := d.evaluate(ctx, "document.readyState", &state); err != nil {
		return false, err
	}
	d.log.Debug("document state", "readyState", state)
	return state == "complete", nil
}

func (d *CDP) HasElementByClassName(ctx context.Context, name string) (bool, error) {
	quoted, _ := json.Marshal(name)
	var found bool
	err := d.evaluate(ctx, fmt.Sprintf("document.getElementsByClassName(%s).length > 0", quoted), &found)
	return found, err
}

func (d *CDP) AjaxActivity(ctx context.Context, counter string) Activity {
	var idle bool
	if err := d.evaluate(ctx, ajaxExpression(counter), &idle); err != nil {
		d.log.Debug("ajax probe failed", "error", err)
		return ActivityUnknown
	}
	if idle {
		return ActivityInactive
	}
	return ActivityActive
}

func (d *CDP) PerformanceLog(ctx context.Context) ([]LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := d.perf.Dropped(); n > 0 {
		d.log.Warn("performance log overflowed", "dropped", n)
	}
	return d.perf.Drain(), nil
}

// Close disconnects from the page, then runs OnClose.
func (d *CDP) Close() error {
	err := d.client.Close()
	if d.onClose != nil {
		if cerr := d.onClose(); err == nil {
			err = cerr
		}
	}
	return err
}
