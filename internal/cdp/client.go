package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// DefaultReadLimit is the maximum message size accepted from the browser.
// Page.captureScreenshot returns the whole PNG base64-encoded in one frame.
const DefaultReadLimit = 64 << 20

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client is closed")

// DialOptions configures Dial.
type DialOptions struct {
	// ReadLimit caps the size of a single incoming message.
	// Zero means DefaultReadLimit.
	ReadLimit int64
}

// Client is a CDP protocol client.
type Client struct {
	conn    Conn
	writeMu sync.Mutex
	msgID   atomic.Int64

	// pending maps command IDs to response channels
	pending   sync.Map // map[int64]chan *Response
	listeners sync.Map // map[string]*eventHandlers

	// closed signals that the client is shutting down
	closed   atomic.Bool
	closedCh chan struct{}
	closeErr error
	closeMu  sync.Mutex

	// done signals that the read loop has exited
	done chan struct{}
}

// NewClient creates a new CDP client with the given connection.
func NewClient(conn Conn) *Client {
	c := &Client{
		conn:     conn,
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to a CDP endpoint and returns a new client.
func Dial(ctx context.Context, wsURL string, opts DialOptions) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CDP endpoint: %w", err)
	}

	limit := opts.ReadLimit
	if limit == 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	return NewClient(conn), nil
}

// SendContext sends a CDP command with a context for cancellation.
func (c *Client) SendContext(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	id := c.msgID.Add(1)
	data, err := json.Marshal(Request{
		ID:     id,
		Method: method,
		Params: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Register before writing so a fast reply is never dropped
	respCh := make(chan *Response, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s timed out: %w", method, ctx.Err())
	case <-c.closedCh:
		return nil, errors.New("client closed while waiting for response")
	}
}

// Call sends a command and decodes its result into out.
// A nil out discards the result.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	result, err := c.SendContext(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

// Subscribe registers a handler for CDP events matching the given method.
// Multiple handlers can be registered for the same method.
// The returned function removes the handler.
func (c *Client) Subscribe(method string, handler func(Event)) (unsubscribe func()) {
	actual, _ := c.listeners.LoadOrStore(method, &eventHandlers{})
	handlers := actual.(*eventHandlers)
	id := handlers.add(handler)
	return func() { handlers.remove(id) }
}

// WaitEventFunc registers for method, runs trigger (if any), then blocks
// until the event arrives, the context ends, or the client closes.
func (c *Client) WaitEventFunc(ctx context.Context, method string, trigger func() error) (Event, error) {
	ch := make(chan Event, 1)
	unsubscribe := c.Subscribe(method, func(evt Event) {
		select {
		case ch <- evt:
		default:
		}
	})
	defer unsubscribe()

	if trigger != nil {
		if err := trigger(); err != nil {
			return Event{}, err
		}
	}

	select {
	case evt := <-ch:
		return evt, nil
	case <-ctx.Done():
		return Event{}, fmt.Errorf("waiting for %s: %w", method, ctx.Err())
	case <-c.closedCh:
		return Event{}, ErrClosed
	}
}

// Close closes the client connection and stops the read loop.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.closedCh)

	c.closeMu.Lock()
	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	c.closeMu.Unlock()

	<-c.done

	return err
}

// Err returns the read error that closed the connection, or nil if the
// client is open or was closed by Close.
func (c *Client) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

// readLoop reads messages from the connection and dispatches them.
func (c *Client) readLoop() {
	defer close(c.done)

	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !c.closed.Swap(true) {
				c.closeMu.Lock()
				c.closeErr = err
				c.closeMu.Unlock()
				close(c.closedCh)
			}
			return
		}

		resp, evt, err := parseMessage(data)
		if err != nil {
			continue // Skip malformed messages
		}

		if resp != nil {
			c.dispatchResponse(resp)
		} else if evt != nil {
			c.dispatchEvent(evt)
		}
	}
}

// dispatchResponse sends a response to the waiting caller.
func (c *Client) dispatchResponse(resp *Response) {
	if ch, ok := c.pending.Load(resp.ID); ok {
		select {
		case ch.(chan *Response) <- resp:
		default:
		}
	}
}

// dispatchEvent calls all registered handlers for an event.
func (c *Client) dispatchEvent(evt *Event) {
	if actual, ok := c.listeners.Load(evt.Method); ok {
		actual.(*eventHandlers).call(*evt)
	}
}

// eventHandlers manages a thread-safe set of event handlers.
type eventHandlers struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

func (h *eventHandlers) add(handler func(Event)) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers == nil {
		h.handlers = make(map[int]func(Event))
	}
	h.nextID++
	h.handlers[h.nextID] = handler
	return h.nextID
}

func (h *eventHandlers) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, id)
}

func (h *eventHandlers) call(evt Event) {
	h.mu.RLock()
	handlers := make([]func(Event), 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(evt)
	}
}
