// Package driver exposes the narrow set of page capabilities a load
// measurement needs, implemented over sitesnap's CDP client or go-rod.
package driver

import (
	"context"
	"errors"
	"fmt"
)

// Activity is the outcome of probing the page's async request counter.
type Activity int

const (
	// ActivityUnknown means the probe could not be evaluated, e.g. the
	// counter is undefined because jQuery has not loaded.
	ActivityUnknown Activity = iota
	ActivityInactive
	ActivityActive
)

func (a Activity) String() string {
	switch a {
	case ActivityInactive:
		return "inactive"
	case ActivityActive:
		return "active"
	default:
		return "unknown"
	}
}

// DefaultAjaxCounter is the jQuery outstanding-request counter.
const DefaultAjaxCounter = "$.active"

// Driver is one browser page under sitesnap's control.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	IsDocumentReady(ctx context.Context) (bool, error)
	HasElementByClassName(ctx context.Context, name string) (bool, error)
	AjaxActivity(ctx context.Context, counter string) Activity

	// PerformanceLog drains the captured Network and Page events, oldest first.
	// A second call returns only events recorded since the first.
	PerformanceLog(ctx context.Context) ([]LogEntry, error)

	Close() error
}

// ScriptError is an exception thrown by an in-page expression.
type ScriptError struct {
	Expression string
	Text       string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %q threw: %s", e.Expression, e.Text)
}

// IsScriptError reports whether err came from the page rather than the transport.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}

// ErrNavigation wraps a navigation the browser refused, e.g. DNS failure.
var ErrNavigation = errors.New("navigation failed")

func ajaxExpression(counter string) string {
	if counter == "" {
		counter = DefaultAjaxCounter
	}
	return fmt.Sprintf("(%s) == 0", counter)
}
