// Package pending correlates outstanding request ids with the callers
// waiting on them.
package pending

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/errors"
)

// Call is one outstanding request. Its completion slot is assigned exactly
// once; the first of Resolve, Fail, Expire or a drain wins.
type Call struct {
	ID       int64
	Method   string
	IssuedAt time.Time
	Timeout  time.Duration

	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newCall(id int64, method string, timeout time.Duration) *Call {
	return &Call{
		ID:       id,
		Method:   method,
		IssuedAt: time.Now(),
		Timeout:  timeout,
		done:     make(chan struct{}),
	}
}

// complete assigns the slot and reports whether this call won
func (c *Call) complete(result json.RawMessage, err error) bool {
	won := false
	c.once.Do(func() {
		c.result = result
		c.err = err
		close(c.done)
		won = true
	})
	return won
}

// Done is closed once the call has completed
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (c *Call) Result() (json.RawMessage, error) {
	return c.result, c.err
}

// Table maps request ids to pending calls. It is safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	calls  map[int64]*Call
	closed error
	logger *common.SafeLogger
}

// NewTable creates an empty table
func NewTable(logger *common.SafeLogger) *Table {
	if logger == nil {
		logger = common.LSPLogger
	}
	return &Table{
		calls:  make(map[int64]*Call),
		logger: logger,
	}
}

// Register creates the completion slot for id. It fails if id is already
// outstanding or the table was closed.
func (t *Table) Register(id int64, method string, timeout time.Duration) (*Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	if _, exists := t.calls[id]; exists {
		return nil, fmt.Errorf("request id %d is already pending", id)
	}
	call := newCall(id, method, timeout)
	t.calls[id] = call
	return call, nil
}

func (t *Table) take(id int64) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return call
}

// Resolve completes id with a result. Unknown ids are logged and discarded;
// servers answer after a client-side timeout all the time.
func (t *Table) Resolve(id int64, result json.RawMessage) bool {
	call := t.take(id)
	if call == nil {
		t.logger.Debug("Discarding response for unknown or expired request id %d", id)
		return false
	}
	return call.complete(result, nil)
}

// Fail completes id with err. Unknown ids are logged and discarded.
func (t *Table) Fail(id int64, err error) bool {
	call := t.take(id)
	if call == nil {
		t.logger.Debug("Discarding error for unknown or expired request id %d: %s", id, common.SanitizeErrorForLogging(err))
		return false
	}
	if pe, ok := err.(*errors.ProtocolError); ok && pe.Method == "" {
		pe.Method = call.Method
	}
	return call.complete(nil, err)
}

// Expire fails id with a TimeoutError
func (t *Table) Expire(id int64) bool {
	call := t.take(id)
	if call == nil {
		return false
	}
	t.logger.Debug("Request %d (%s) expired after %v", id, call.Method, call.Timeout)
	return call.complete(nil, errors.NewTimeoutError(call.Method, id, call.Timeout))
}

// DrainAll fails every pending call with err and empties the table. It
// returns the number of calls failed.
func (t *Table) DrainAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int64]*Call)
	t.mu.Unlock()

	for _, call := range calls {
		call.complete(nil, err)
	}
	if len(calls) > 0 {
		t.logger.Debug("Drained %d pending requests: %s", len(calls), common.SanitizeErrorForLogging(err))
	}
	return len(calls)
}

// Close drains the table and rejects every later Register with err. The
// first Close decides the error.
func (t *Table) Close(err error) int {
	t.mu.Lock()
	if t.closed == nil {
		t.closed = err
	}
	t.mu.Unlock()
	return t.DrainAll(err)
}

// Err returns the error the table was closed with, nil while open
func (t *Table) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Len returns the number of outstanding calls
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
