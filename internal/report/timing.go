// Package report turns a drained performance log into per-resource timing.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/grantcarthew/sitesnap/internal/driver"
)

const (
	methodResponseReceived  = "Network.responseReceived"
	methodRequestWillBeSent = "Network.requestWillBeSent"
)

// ResourceTiming is the connect/response breakdown for one network response.
// Offsets and durations are milliseconds; RequestTime is seconds on the
// browser's monotonic clock.
type ResourceTiming struct {
	RequestTime     float64 `json:"request_time"`
	ConnectStart    float64 `json:"connect_start"`
	ConnectDuration float64 `json:"connect_duration"`
	TotalDuration   float64 `json:"total_duration"`
	Status          int     `json:"status"`
	URL             string  `json:"url"`
}

// ErrMalformedEntry marks a log entry whose message could not be understood.
var ErrMalformedEntry = errors.New("malformed performance log entry")

type envelope struct {
	Message struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	} `json:"message"`
}

type responseParams struct {
	Response *struct {
		URL    string `json:"url"`
		Status int    `json:"status"`
		Timing *struct {
			RequestTime       float64 `json:"requestTime"`
			ConnectStart      float64 `json:"connectStart"`
			ConnectEnd        float64 `json:"connectEnd"`
			ReceiveHeadersEnd float64 `json:"receiveHeadersEnd"`
		} `json:"timing"`
	} `json:"response"`
}

type requestParams struct {
	Request struct {
		URL    string `json:"url"`
		Method string `json:"method"`
	} `json:"request"`
}

// decodeMethod returns the method and params of an entry.
func decodeMethod(e driver.LogEntry) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal([]byte(e.Message), &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if env.Message.Method == "" {
		return "", nil, fmt.Errorf("%w: no method", ErrMalformedEntry)
	}
	return env.Message.Method, env.Message.Params, nil
}

// timingFrom builds a ResourceTiming from Network.responseReceived params.
// A response without a timing block (data: URLs, memory cache) gets zeros.
func timingFrom(params json.RawMessage) (ResourceTiming, error) {
	var p responseParams
	if err := json.Unmarshal(params, &p); err != nil {
		return ResourceTiming{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if p.Response == nil {
		return ResourceTiming{}, fmt.Errorf("%w: response missing", ErrMalformedEntry)
	}

	rt := ResourceTiming{Status: p.Response.Status, URL: p.Response.URL}
	if t := p.Response.Timing; t != nil {
		rt.RequestTime = t.RequestTime
		rt.ConnectStart = t.ConnectStart
		rt.ConnectDuration = t.ConnectEnd - t.ConnectStart
		rt.TotalDuration = t.ReceiveHeadersEnd - t.ConnectStart
	}
	return rt, nil
}

// Extract walks entries in order and returns one ResourceTiming per
// Network.responseReceived. Entries it cannot decode are logged and counted
// in skipped; they never abort the report.
func Extract(entries []driver.LogEntry, log *slog.Logger) (timings []ResourceTiming, skipped int) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	for i, e := range entries {
		method, params, err := decodeMethod(e)
		if err != nil {
			log.Warn("skipping log entry", "index", i, "error", err)
			skipped++
			continue
		}

		switch method {
		case methodResponseReceived:
			rt, err := timingFrom(params)
			if err != nil {
				log.Warn("skipping response entry", "index", i, "error", err)
				skipped++
				continue
			}
			timings = append(timings, rt)
		case methodRequestWillBeSent:
			var p requestParams
			if json.Unmarshal(params, &p) == nil {
				log.Debug("request", "method", p.Request.Method, "url", p.Request.URL)
			}
		}
	}
	return timings, skipped
}
