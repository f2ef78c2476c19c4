package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// DefaultTimeout bounds a single command when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// maxFrameSize lifts coder/websocket's 32KiB default; large response bodies
// and DOM snapshots routinely exceed it.
const maxFrameSize = 64 << 20

// wildcard is the listener key that receives every event.
const wildcard = "*"

// ErrClosed is returned by SendContext once the client has shut down.
var ErrClosed = errors.New("cdp client is closed")

// Client sends commands to a single CDP target and fans out its events.
type Client struct {
	conn    Conn
	log     *slog.Logger
	writeMu sync.Mutex
	nextID  atomic.Int64

	pending   sync.Map // int64 -> chan *Response
	listeners sync.Map // string -> *handlerList

	closed   atomic.Bool
	closedCh chan struct{}
	errMu    sync.Mutex
	err      error

	done chan struct{}
}

// NewClient wraps conn and starts the read loop. A nil logger discards.
func NewClient(conn Conn, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		conn:     conn,
		log:      log,
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial opens a websocket to a target's debugger URL.
func Dial(ctx context.Context, wsURL string, log *slog.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return NewClient(conn, log), nil
}

// SendContext issues method and blocks for its response.
// If ctx has no deadline, DefaultTimeout applies.
func (c *Client) SendContext(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	data, err := json.Marshal(Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	// Register before writing so a fast reply is never dropped.
	respCh := make(chan *Response, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	c.log.Debug("cdp send", "id", id, "method", method)

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.closedCh:
		return nil, fmt.Errorf("%s: %w", method, ErrClosed)
	}
}

// Subscribe registers handler for events named method.
// Handlers run on the read loop and must not block.
func (c *Client) Subscribe(method string, handler func(Event)) {
	actual, _ := c.listeners.LoadOrStore(method, &handlerList{})
	actual.(*handlerList).add(handler)
}

// SubscribeAll registers handler for every event, after method-specific handlers.
func (c *Client) SubscribeAll(handler func(Event)) {
	c.Subscribe(wildcard, handler)
}

// Close shuts the connection and waits for the read loop to exit. Safe to call twice.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.closedCh)

	err := c.conn.Close(websocket.StatusNormalClosure, "sitesnap done")
	<-c.done
	return err
}

// Err reports the read error that terminated the client, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	defer close(c.done)

	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !c.closed.Swap(true) {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
				close(c.closedCh)
			}
			return
		}

		resp, evt, err := parseFrame(data)
		if err != nil {
			c.log.Debug("cdp frame skipped", "error", err)
			continue
		}

		if resp != nil {
			c.deliver(resp)
		} else {
			c.dispatch(*evt)
		}
	}
}

func (c *Client) deliver(resp *Response) {
	ch, ok := c.pending.Load(resp.ID)
	if !ok {
		c.log.Debug("cdp response without caller", "id", resp.ID)
		return
	}
	select {
	case ch.(chan *Response) <- resp:
	default:
	}
}

func (c *Client) dispatch(evt Event) {
	if h, ok := c.listeners.Load(evt.Method); ok {
		h.(*handlerList).call(evt)
	}
	if h, ok := c.listeners.Load(wildcard); ok {
		h.(*handlerList).call(evt)
	}
}

type handlerList struct {
	mu       sync.RWMutex
	handlers []func(Event)
}

func (h *handlerList) add(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, fn)
}

func (h *handlerList) call(evt Event) {
	h.mu.RLock()
	handlers := h.handlers
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
}
