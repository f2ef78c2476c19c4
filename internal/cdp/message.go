package cdp

import (
	"encoding/json"
	"fmt"
)

// Request is a CDP command.
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response is the reply to a Request, matched by ID.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Event is an unsolicited CDP notification such as Network.responseReceived.
type Event struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Domain returns the part of the method before the dot ("Network" for
// "Network.responseReceived").
func (e Event) Domain() string {
	for i := 0; i < len(e.Method); i++ {
		if e.Method[i] == '.' {
			return e.Method[:i]
		}
	}
	return e.Method
}

// Error is a protocol-level error returned by the browser.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// frame is the union of every message shape the browser sends.
type frame struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// parseFrame classifies raw bytes as a command response or an event.
// Exactly one of the returned pointers is non-nil when err is nil.
func parseFrame(data []byte) (*Response, *Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse cdp frame: %w", err)
	}

	if f.ID != 0 {
		return &Response{ID: f.ID, Result: f.Result, Error: f.Error}, nil, nil
	}

	if f.Method != "" {
		params := f.Params
		if params == nil {
			params = json.RawMessage(`{}`)
		}
		return nil, &Event{Method: f.Method, Params: params}, nil
	}

	return nil, nil, fmt.Errorf("unrecognised cdp frame: %s", string(data))
}
