// Package dbtest provides an in-memory tasks table that satisfies db.Conn,
// for exercising the pool, the query path and the HTTP handlers without a
// running Postgres.
package dbtest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"greeting-service/internal/db"
)

// ErrConnClosed is returned by queries on a closed or broken connection.
var ErrConnClosed = errors.New("conn closed")

type failure struct {
	err  error
	drop bool
}

// Source is a fake database. Every connection it hands out reads the same
// rows.
type Source struct {
	// Delay makes every query wait before answering, or until its context
	// is done, whichever comes first.
	Delay time.Duration

	mu         sync.Mutex
	rows       []db.Row
	conns      []*Conn
	failures   []failure
	connectErr error
	closed     int
}

// New returns a Source seeded with rows, kept in the given order.
func New(rows ...db.Row) *Source {
	return &Source{rows: rows}
}

// Connect implements db.ConnectFunc.
func (s *Source) Connect(ctx context.Context) (db.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	c := &Conn{src: s, id: len(s.conns) + 1}
	s.conns = append(s.conns, c)
	return c, nil
}

// FailConnect makes Connect return err until called again with nil.
func (s *Source) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// FailNextQuery makes the next query on any connection return err. With drop
// set the connection is left closed, as after a network failure.
func (s *Source) FailNextQuery(err error, drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{err: err, drop: drop})
}

// Conns returns every connection opened so far, in opening order.
func (s *Source) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Conn(nil), s.conns...)
}

// Opened is the number of connections opened so far.
func (s *Source) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Closed is the number of Close calls received.
func (s *Source) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) nextFailure() (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) == 0 {
		return failure{}, false
	}
	f := s.failures[0]
	s.failures = s.failures[1:]
	return f, true
}

func (s *Source) selectRows(sql string, args []any) []db.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(sql) == "SELECT 1" {
		return []db.Row{{"?column?": int32(1)}}
	}

	out := []db.Row{}
	for _, r := range s.rows {
		if strings.Contains(sql, "is_completed = $1") && len(args) == 1 {
			if r["is_completed"] != args[0] {
				continue
			}
		}
		cp := make(db.Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Conn is a connection handed out by Source.
type Conn struct {
	src     *Source
	id      int
	closed  atomic.Bool
	queries atomic.Int64
}

// ID is the 1-based opening order of the connection.
func (c *Conn) ID() int { return c.id }

// Queries is the number of statements run on the connection.
func (c *Conn) Queries() int { return int(c.queries.Load()) }

// Break simulates the server dropping the session.
func (c *Conn) Break() { c.closed.Store(true) }

func (c *Conn) Query(ctx context.Context, sql string, args ...any) ([]db.Row, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	c.queries.Add(1)

	if d := c.src.Delay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			c.closed.Store(true)
			return nil, ctx.Err()
		}
	}

	if f, ok := c.src.nextFailure(); ok {
		if f.drop {
			c.closed.Store(true)
		}
		return nil, f.err
	}
	return c.src.selectRows(sql, args), nil
}

func (c *Conn) IsClosed() bool { return c.closed.Load() }

func (c *Conn) Close(ctx context.Context) error {
	c.closed.Store(true)
	c.src.mu.Lock()
	c.src.closed++
	c.src.mu.Unlock()
	return nil
}
