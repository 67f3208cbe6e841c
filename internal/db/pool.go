package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxConns    = 10
	DefaultIdleTimeout = 30 * time.Second

	minReapInterval = time.Second
	closeTimeout    = 5 * time.Second
)

var errBrokenWhileIdle = errors.New("connection closed while idle")

// Row is a single result row keyed by column name.
type Row = map[string]any

// Conn is a live database session owned by the pool.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	IsClosed() bool
	Close(ctx context.Context) error
}

// ConnectFunc opens a new session. It is called lazily by the pool.
type ConnectFunc func(ctx context.Context) (Conn, error)

// Acquirer hands out exclusively borrowed connections.
type Acquirer interface {
	Acquire(ctx context.Context) (*PooledConn, error)
}

// PoolConfig contains the fixed limits of a Pool.
type PoolConfig struct {
	// MaxConns bounds both open and borrowed connections.
	MaxConns int
	// IdleTimeout is how long a released connection may sit unused before the
	// reaper closes it. Zero closes connections as soon as they are released.
	IdleTimeout time.Duration
	// AcquireTimeout bounds the wait for a free connection. Zero waits until
	// the caller's context is done.
	AcquireTimeout time.Duration
	// QueryTimeout bounds a single statement. Zero means no bound.
	QueryTimeout time.Duration
	// ReapInterval is the period of the idle sweep. Defaults to half of
	// IdleTimeout, never less than a second.
	ReapInterval time.Duration
	// OnError receives connection errors that are not tied to a request.
	OnError func(error)
}

// DefaultPoolConfig returns the limits used when nothing is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:    DefaultMaxConns,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// Validate checks the invariants of the configuration.
func (c PoolConfig) Validate() error {
	if c.MaxConns < 1 {
		return fmt.Errorf("%w: max connections must be at least 1, got %d", ErrInvalidConfig, c.MaxConns)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: negative idle timeout %s", ErrInvalidConfig, c.IdleTimeout)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("%w: negative acquire timeout %s", ErrInvalidConfig, c.AcquireTimeout)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("%w: negative query timeout %s", ErrInvalidConfig, c.QueryTimeout)
	}
	if c.ReapInterval < 0 {
		return fmt.Errorf("%w: negative reap interval %s", ErrInvalidConfig, c.ReapInterval)
	}
	return nil
}

func (c PoolConfig) reapInterval() time.Duration {
	if c.ReapInterval > 0 {
		return c.ReapInterval
	}
	if d := c.IdleTimeout / 2; d > minReapInterval {
		return d
	}
	return minReapInterval
}

// Stat is a snapshot of the pool counters.
type Stat struct {
	MaxConns      int
	TotalConns    int
	IdleConns     int
	AcquiredConns int

	AcquireCount      int64
	ReleaseCount      int64
	DiscardCount      int64
	EvictCount        int64
	BrokenCount       int64
	EmptyAcquireCount int64
}

// Pool is a bounded set of reusable connections on top of a puddle resource
// pool. Connections are opened on demand up to MaxConns and closed once idle
// for longer than IdleTimeout.
type Pool struct {
	res *puddle.Pool[Conn]
	cfg PoolConfig

	closed       atomic.Bool
	acquireCount atomic.Int64
	releaseCount atomic.Int64
	discardCount atomic.Int64
	evictCount   atomic.Int64
	brokenCount  atomic.Int64

	closeCtx    context.Context
	cancelClose context.CancelFunc
	closeOnce   sync.Once
	reaperDone  chan struct{}
}

// NewPool validates cfg and starts the idle reaper. No connection is opened
// until the first Acquire.
func NewPool(connect ConnectFunc, cfg PoolConfig) (*Pool, error) {
	if connect == nil {
		return nil, fmt.Errorf("%w: nil connect func", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := puddle.NewPool(&puddle.Config[Conn]{
		Constructor: func(ctx context.Context) (Conn, error) {
			conn, err := connect(ctx)
			if err != nil {
				return nil, err
			}
			log.Debug("opened new pool connection")
			return conn, nil
		},
		Destructor: closeConn,
		MaxSize:    int32(cfg.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	closeCtx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		res:         res,
		cfg:         cfg,
		closeCtx:    closeCtx,
		cancelClose: cancel,
		reaperDone:  make(chan struct{}),
	}

	go p.reap(cfg.reapInterval())

	log.WithFields(log.Fields{
		"max_conns":       cfg.MaxConns,
		"idle_timeout":    cfg.IdleTimeout,
		"acquire_timeout": cfg.AcquireTimeout,
	}).Debug("connection pool created")

	return p, nil
}

// Acquire borrows a connection, waiting for one to be released when all of
// them are checked out.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if p.cfg.AcquireTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(waitCtx, p.cfg.AcquireTimeout)
		defer cancel()
	}
	// puddle only notices Close once a slot frees up
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	for {
		res, err := p.res.Acquire(waitCtx)
		if err != nil {
			return nil, p.acquireErr(ctx, waitCtx, err)
		}
		if res.Value().IsClosed() {
			p.brokenCount.Add(1)
			res.Destroy()
			p.report(&PoolConnectionError{Err: errBrokenWhileIdle})
			continue
		}
		p.acquireCount.Add(1)
		return &PooledConn{pool: p, res: res}, nil
	}
}

func (p *Pool) acquireErr(ctx, waitCtx context.Context, err error) error {
	switch {
	case p.closed.Load(), errors.Is(err, puddle.ErrClosedPool):
		return ErrPoolClosed
	case ctx.Err() != nil:
		return ctx.Err()
	case waitCtx.Err() != nil:
		return &PoolExhaustedError{Timeout: p.cfg.AcquireTimeout}
	default:
		return &PoolConnectionError{Err: err}
	}
}

func (p *Pool) release(res *puddle.Resource[Conn], discard bool) {
	if discard || res.Value().IsClosed() {
		p.discardCount.Add(1)
		res.Destroy()
		return
	}
	p.releaseCount.Add(1)
	if p.closed.Load() || p.cfg.IdleTimeout == 0 {
		res.Destroy()
		return
	}
	res.Release()
}

func (p *Pool) reap(interval time.Duration) {
	defer close(p.reaperDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCtx.Done():
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

// evictIdle closes idle connections past IdleTimeout and drops the ones that
// broke while nobody was using them.
func (p *Pool) evictIdle() {
	var evicted int
	for _, res := range p.res.AcquireAllIdle() {
		switch {
		case res.Value().IsClosed():
			p.brokenCount.Add(1)
			res.Destroy()
			p.report(&PoolConnectionError{Err: errBrokenWhileIdle})
		case res.IdleDuration() >= p.cfg.IdleTimeout:
			evicted++
			res.Destroy()
		default:
			res.ReleaseUnused()
		}
	}
	if evicted > 0 {
		p.evictCount.Add(int64(evicted))
		log.WithField("count", evicted).Debug("evicted idle connections")
	}
}

func closeConn(c Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		log.WithError(err).Debug("error closing pool connection")
	}
}

func (p *Pool) report(err error) {
	if p.cfg.OnError != nil {
		p.cfg.OnError(err)
		return
	}
	log.WithError(err).Warn("discarded broken pool connection")
}

// Stat returns a snapshot of the pool counters.
func (p *Pool) Stat() Stat {
	s := p.res.Stat()
	return Stat{
		MaxConns:          int(s.MaxResources()),
		TotalConns:        int(s.TotalResources()),
		IdleConns:         int(s.IdleResources()),
		AcquiredConns:     int(s.AcquiredResources()),
		AcquireCount:      p.acquireCount.Load(),
		ReleaseCount:      p.releaseCount.Load(),
		DiscardCount:      p.discardCount.Load(),
		EvictCount:        p.evictCount.Load(),
		BrokenCount:       p.brokenCount.Load(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
	}
}

// Close stops the reaper, rejects further Acquire calls and closes every
// connection. It blocks until borrowed connections have been released and
// closed. Close is idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.cancelClose()
		<-p.reaperDone

		p.res.Close()
		log.Debug("connection pool closed")
	})
}

// PooledConn is a connection borrowed from a Pool. It must be given back
// exactly once with Release or Discard; later calls are no-ops.
type PooledConn struct {
	pool *Pool
	res  *puddle.Resource[Conn]
	done atomic.Bool
}

// Query runs sql on the borrowed connection, bounded by the pool's
// QueryTimeout.
func (c *PooledConn) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	if c.done.Load() {
		return nil, errors.New("connection already returned to pool")
	}
	if t := c.pool.cfg.QueryTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return c.res.Value().Query(ctx, sql, args...)
}

// Release gives the connection back to the pool for reuse.
func (c *PooledConn) Release() {
	if c.done.CompareAndSwap(false, true) {
		c.pool.release(c.res, false)
	}
}

// Discard closes the connection instead of returning it to the idle set.
func (c *PooledConn) Discard() {
	if c.done.CompareAndSwap(false, true) {
		c.pool.release(c.res, true)
	}
}
