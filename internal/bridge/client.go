package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds every bridge call. A poller that misses the window
// treats the failure like any other transient error.
const DefaultTimeout = 5 * time.Second

// Client is the worker-side end of the bridge. One Client per worker; a
// single dispatch goroutine matches replies to pending calls by id, so any
// number of calls may be outstanding at once and may resolve out of order.
type Client struct {
	requests  chan<- Request
	inbox     chan Reply
	timeout   time.Duration
	onTimeout func()

	mu      sync.Mutex
	pending map[string]chan Reply
	closed  bool
	done    chan struct{}
}

// NewClient builds a client that sends on the server's request channel.
func NewClient(requests chan<- Request) *Client {
	return NewClientTimeout(requests, DefaultTimeout)
}

// NewClientTimeout is NewClient with an explicit per-call deadline.
func NewClientTimeout(requests chan<- Request, timeout time.Duration) *Client {
	c := &Client{
		requests: requests,
		inbox:    make(chan Reply, 16),
		timeout:  timeout,
		pending:  map[string]chan Reply{},
		done:     make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// dispatch routes replies to their one-shot pending channel. Replies with no
// matching id (late after a timeout, or malformed) are dropped.
func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case reply := <-c.inbox:
			c.mu.Lock()
			ch, ok := c.pending[reply.ID]
			if ok {
				delete(c.pending, reply.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- reply
			}
		}
	}
}

// OnTimeout registers fn to run whenever a call times out; used for
// instrumentation. Set it before issuing calls.
func (c *Client) OnTimeout(fn func()) { c.onTimeout = fn }

func (c *Client) timedOut() error {
	if c.onTimeout != nil {
		c.onTimeout()
	}
	return ErrTimeout
}

// Get reads a key from the device store.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.call(ctx, Request{Op: OpGet, Key: key})
}

// Set writes a key to the device store.
func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.call(ctx, Request{Op: OpSet, Key: key, Value: value})
	return err
}

func (c *Client) call(ctx context.Context, req Request) (string, error) {
	req.ID = uuid.NewString()
	req.ReplyTo = c.inbox

	ch := make(chan Reply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", errors.New("bridge: client closed")
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.requests <- req:
	case <-timer.C:
		c.forget(req.ID)
		return "", c.timedOut()
	case <-ctx.Done():
		c.forget(req.ID)
		return "", ctx.Err()
	}

	select {
	case reply := <-ch:
		if reply.Err != "" {
			return "", errors.New(reply.Err)
		}
		return reply.Value, nil
	case <-timer.C:
		c.forget(req.ID)
		return "", c.timedOut()
	case <-ctx.Done():
		c.forget(req.ID)
		return "", ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// PendingCount reports in-flight calls; it must return to zero after every
// call resolves, rejects or times out.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops the dispatch goroutine. Outstanding calls time out normally.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}
