package db

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPoolClosed is returned by Acquire once Close has been called.
	ErrPoolClosed = errors.New("pool closed")
	// ErrInvalidConfig wraps every PoolConfig validation failure.
	ErrInvalidConfig = errors.New("invalid pool config")
)

// PoolExhaustedError is returned when no connection became available within
// the configured acquire timeout.
type PoolExhaustedError struct {
	Timeout time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("no connection available within %s", e.Timeout)
}

// PoolConnectionError reports a connection that failed to open or broke while
// sitting idle in the pool.
type PoolConnectionError struct {
	Err error
}

func (e *PoolConnectionError) Error() string {
	return fmt.Sprintf("pool connection: %v", e.Err)
}

func (e *PoolConnectionError) Unwrap() error { return e.Err }

// QueryError wraps any failure while running a statement, including failure
// to get a connection for it.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", e.SQL, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
