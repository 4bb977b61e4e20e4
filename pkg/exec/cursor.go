package exec

import (
	"io"
	"sync"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

// Cursor is a pull-based row stream over one execution.
//
// The protocol is HasNext then Next; Next without a preceding HasNext also
// works. Cancellation of the execution context is observed between rows.
// A failure is terminal: the cursor releases its resources immediately and
// every subsequent HasNext reports false, with Err and Next returning the
// same error. Close is idempotent and safe from a different goroutine than
// the one draining the cursor.
type Cursor struct {
	op     operator
	env    *execEnv
	schema plan.Schema

	mu       sync.Mutex
	buffered plan.Row
	err      error
	done     bool
	closed   bool
}

// Schema describes the rows the cursor produces.
func (c *Cursor) Schema() plan.Schema { return c.schema }

// HasNext reports whether another row is available, fetching it if
// needed. It returns false on exhaustion, failure, or after Close; Err
// distinguishes failure from the other two.
func (c *Cursor) HasNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchLocked()
}

// Next returns the next row. After exhaustion it returns io.EOF; after a
// failure it returns the terminal error.
func (c *Cursor) Next() (plan.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchLocked() {
		switch {
		case c.err != nil:
			return nil, c.err
		case c.closed:
			return nil, query.NewError(query.KindExecution, "cursor is closed")
		default:
			return nil, io.EOF
		}
	}
	row := c.buffered
	c.buffered = nil
	c.env.stats.rowsReturned.Add(1)
	return row, nil
}

// fetchLocked ensures a row is buffered, advancing the operator tree if
// necessary. Caller holds c.mu.
func (c *Cursor) fetchLocked() bool {
	if c.buffered != nil {
		return true
	}
	if c.err != nil || c.done || c.closed {
		return false
	}

	if err := c.env.ctx.Err(); err != nil {
		c.failLocked(query.WrapError(query.KindExecution, err, "execution canceled"))
		return false
	}

	row, err := c.op.next(c.env)
	if err == io.EOF {
		// Exhaustion releases resources; operators ignore a second close.
		c.done = true
		_ = c.op.close()
		return false
	}
	if err != nil {
		c.failLocked(err)
		return false
	}
	c.buffered = row
	return true
}

// failLocked records the terminal error and releases resources. Caller
// holds c.mu.
func (c *Cursor) failLocked(err error) {
	if _, ok := query.KindOf(err); !ok {
		err = query.WrapError(query.KindExecution, err, "execution failed")
	}
	c.err = err
	_ = c.op.close()
}

// Err returns the terminal failure, or nil if the cursor has not failed.
func (c *Cursor) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close releases the cursor's resources. It is idempotent; closing a
// failed or exhausted cursor is a no-op beyond releasing what remains.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.buffered = nil
	if c.err != nil {
		// Resources were already released on failure.
		return nil
	}
	return c.op.close()
}

// Stats snapshots the execution's resource counters. Safe to call while
// another goroutine drains the cursor.
func (c *Cursor) Stats() ResourceStats {
	return c.env.stats.snapshot()
}
