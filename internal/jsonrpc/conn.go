// Package jsonrpc implements the JSON-RPC 2.0 connection spoken over a
// language server's standard streams, framed with Content-Length headers.
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned for calls on a closed connection
var ErrClosed = errors.New("jsonrpc connection closed")

// NotificationHandler handles notifications sent by the server
type NotificationHandler func(method string, params json.RawMessage)

// Conn is a bidirectional JSON-RPC connection
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	writeMu  sync.Mutex
	mu       sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *Message
	handlers map[string]NotificationHandler

	closed   atomic.Bool
	done     chan struct{}
	closeErr error
}

// NewConn creates a connection reading from r and writing to w. closer, when
// non-nil, is closed together with the connection.
func NewConn(r io.Reader, w io.Writer, closer io.Closer) *Conn {
	return &Conn{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   closer,
		pending:  make(map[int64]chan *Message),
		handlers: make(map[string]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// Start begins reading messages in a background goroutine.
func (c *Conn) Start(ctx context.Context) {
	go c.readLoop(ctx)
}

// Done is closed when the connection is closed or the peer goes away
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the read loop ended, if it did
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Close closes the connection. Pending calls return ErrClosed.
func (c *Conn) Close() error {
	return c.shutdown(nil)
}

func (c *Conn) shutdown(reason error) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	c.closeErr = reason
	c.pending = make(map[int64]chan *Message)
	c.mu.Unlock()
	close(c.done)

	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Call sends a request and waits for its response.
func (c *Conn) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}

	id := c.nextID.Add(1)
	ch := make(chan *Message, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(outgoing{JSONRPC: Version, ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case resp := <-ch:
		if info := resp.ErrorInfo(); info != nil {
			return info
		}
		if result != nil && len(resp.Result()) > 0 {
			if err := json.Unmarshal(resp.Result(), result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification; no response is expected.
func (c *Conn) Notify(ctx context.Context, method string, params interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(outgoing{JSONRPC: Version, Method: method, Params: params})
}

// OnNotification registers a handler for a server notification method.
// The method "*" catches notifications without a dedicated handler.
func (c *Conn) OnNotification(method string, handler NotificationHandler) {
	c.mu.Lock()
	c.handlers[method] = handler
	c.mu.Unlock()
}

func (c *Conn) send(msg outgoing) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.writer, data)
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = c.shutdown(ctx.Err())
			return
		case <-c.done:
			return
		default:
		}

		body, err := ReadFrame(c.reader)
		if err != nil {
			if errors.Is(err, ErrMissingContentLength) {
				continue
			}
			_ = c.shutdown(err)
			return
		}

		msg, err := Parse(body)
		if err != nil {
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg *Message) {
	switch {
	case msg.IsResponse():
		id, ok := msg.IntID()
		if !ok {
			return
		}
		c.mu.Lock()
		ch, found := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if found {
			ch <- msg
		}

	case msg.IsNotification():
		c.mu.Lock()
		handler, ok := c.handlers[msg.Method()]
		if !ok {
			handler, ok = c.handlers["*"]
		}
		c.mu.Unlock()
		if ok && handler != nil {
			handler(msg.Method(), msg.Params())
		}

	case msg.IsRequest():
		// The client registers no server-to-client request handlers.
		reply := outgoing{
			JSONRPC: Version,
			ID:      json.RawMessage(msg.ID()),
			Error:   &ErrorInfo{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method()},
		}
		go func() { _ = c.send(reply) }()
	}
}
