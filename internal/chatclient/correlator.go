package chatclient

import (
	"errors"
	"marketchat/backend/internal/models"
	"sync"
	"time"
)

var (
	// ErrAckTimeout resolves a waiter whose ack did not arrive in time.
	ErrAckTimeout = errors.New("chatclient: ack timeout")
	// ErrClosed resolves waiters when the connection goes away.
	ErrClosed = errors.New("chatclient: connection closed")
)

// AckResult is what a waiter receives: the ack, or why none came.
type AckResult struct {
	Ack models.MessageAckPayload
	Err error
}

// Correlator pairs outgoing requests with their acks by correlation id.
// Every registered id is resolved exactly once: by its ack, by its timeout
// or by FailAll.
type Correlator struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

type waiter struct {
	ch    chan AckResult
	timer *time.Timer
}

func NewCorrelator() *Correlator {
	return &Correlator{waiters: make(map[string]*waiter)}
}

// Register starts waiting for id. The returned channel yields one result.
func (c *Correlator) Register(id string, timeout time.Duration) <-chan AckResult {
	w := &waiter{ch: make(chan AckResult, 1)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[id] = w
	w.timer = time.AfterFunc(timeout, func() {
		c.finish(id, w, AckResult{Err: ErrAckTimeout})
	})
	return w.ch
}

// Resolve delivers ack to the waiter registered under id. It reports false
// when nobody is waiting, e.g. the waiter already timed out.
func (c *Correlator) Resolve(id string, ack models.MessageAckPayload) bool {
	c.mu.Lock()
	w := c.waiters[id]
	c.mu.Unlock()
	if w == nil {
		return false
	}
	return c.finish(id, w, AckResult{Ack: ack})
}

// Cancel resolves id with err.
func (c *Correlator) Cancel(id string, err error) bool {
	c.mu.Lock()
	w := c.waiters[id]
	c.mu.Unlock()
	if w == nil {
		return false
	}
	return c.finish(id, w, AckResult{Err: err})
}

// FailAll resolves every waiter with err.
func (c *Correlator) FailAll(err error) int {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]*waiter)
	c.mu.Unlock()

	for _, w := range waiters {
		w.timer.Stop()
		w.ch <- AckResult{Err: err}
	}
	return len(waiters)
}

// Pending returns the number of unresolved waiters.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Correlator) finish(id string, w *waiter, res AckResult) bool {
	c.mu.Lock()
	if c.waiters[id] != w {
		c.mu.Unlock()
		return false
	}
	delete(c.waiters, id)
	c.mu.Unlock()

	w.timer.Stop()
	w.ch <- res
	return true
}
