// Package cdp is the Chrome DevTools Protocol client sitesnap uses to drive
// a page target: id-correlated commands and method-keyed event dispatch.
package cdp

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is the subset of *websocket.Conn the client needs.
// Tests substitute an in-memory implementation.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}
