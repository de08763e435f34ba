package browser

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/insightx/models"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("browser pool closed")

// Handle wraps a pooled resource with health tracking metadata.
type Handle[T any] struct {
	ID    int64
	Value T

	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
}

// recordSuccess decreases the error score (min 0).
func (h *Handle[T]) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// recordFailure increases the error score.
func (h *Handle[T]) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// PoolConfig holds the sizing and retirement thresholds of a Pool.
type PoolConfig struct {
	Min           int
	Max           int
	MaxUses       int
	MaxAge        time.Duration
	MaxErrorScore float64

	// MaintainEvery is the interval of the background loop that retires
	// aged idle handles and tops the pool up to Min. 0 means 30s.
	MaintainEvery time.Duration
}

// Factory creates a new pooled resource.
type Factory[T any] func(ctx context.Context) (T, error)

// Destroyer releases a pooled resource.
type Destroyer[T any] func(T)

// Pool is a bounded pool of expensive resources (Chrome processes).
// At most Max resources are alive at once; Get blocks until one is free,
// a slot opens up, or ctx ends.
type Pool[T any] struct {
	cfg       PoolConfig
	factory   Factory[T]
	destroyer Destroyer[T]
	now       func() time.Time

	idle  chan *Handle[T]
	slots chan struct{} // one token per live handle

	mu     sync.Mutex
	all    map[int64]*Handle[T]
	nextID atomic.Int64

	inUse    atomic.Int32
	waiting  atomic.Int32
	retired  atomic.Int64
	launched atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPool creates a pool and pre-creates cfg.Min handles. Warm-up failures
// are logged, not returned: requests will retry creation on demand.
func NewPool[T any](ctx context.Context, cfg PoolConfig, factory Factory[T], destroyer Destroyer[T]) *Pool[T] {
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if cfg.Min < 0 {
		cfg.Min = 0
	}
	if cfg.Min > cfg.Max {
		cfg.Min = cfg.Max
	}
	if cfg.MaxErrorScore <= 0 {
		cfg.MaxErrorScore = 3
	}
	if cfg.MaintainEvery <= 0 {
		cfg.MaintainEvery = 30 * time.Second
	}

	p := &Pool[T]{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		now:       time.Now,
		idle:      make(chan *Handle[T], cfg.Max),
		slots:     make(chan struct{}, cfg.Max),
		all:       make(map[int64]*Handle[T]),
		closed:    make(chan struct{}),
	}

	p.fillToMin(ctx)
	go p.maintainLoop()
	return p
}

// Get acquires a handle. It prefers an idle handle, then creates one if a
// slot is free, and otherwise blocks.
func (p *Pool[T]) Get(ctx context.Context) (*Handle[T], error) {
	for {
		select {
		case <-p.closed:
			return nil, ErrPoolClosed
		default:
		}

		// Idle first.
		select {
		case h := <-p.idle:
			if p.shouldRetire(h) {
				p.destroy(h, "stale")
				continue
			}
			p.inUse.Add(1)
			return h, nil
		default:
		}

		// Free slot next.
		select {
		case p.slots <- struct{}{}:
			return p.create(ctx, true)
		default:
		}

		// Wait for either.
		p.waiting.Add(1)
		select {
		case h := <-p.idle:
			p.waiting.Add(-1)
			if p.shouldRetire(h) {
				p.destroy(h, "stale")
				continue
			}
			p.inUse.Add(1)
			return h, nil
		case p.slots <- struct{}{}:
			p.waiting.Add(-1)
			return p.create(ctx, true)
		case <-ctx.Done():
			p.waiting.Add(-1)
			return nil, ctx.Err()
		case <-p.closed:
			p.waiting.Add(-1)
			return nil, ErrPoolClosed
		}
	}
}

// Put returns a handle. The outcome feeds its health score; unhealthy or
// worn-out handles are destroyed instead of reused.
func (p *Pool[T]) Put(h *Handle[T], success bool) {
	p.inUse.Add(-1)

	if success {
		h.recordSuccess()
	} else {
		h.recordFailure()
	}

	if p.shouldRetire(h) {
		p.destroy(h, "unhealthy")
		go p.fillToMin(context.Background())
		return
	}
	p.park(h)
}

// park queues h as idle, or destroys it once the pool is closed. The
// closed check and the send share p.mu with Close, so a handle can never
// land in the queue after Close drained it. The send does not block: idle
// has room for every slot.
func (p *Pool[T]) park(h *Handle[T]) {
	p.mu.Lock()
	select {
	case <-p.closed:
		p.mu.Unlock()
		p.destroy(h, "pool closed")
		return
	default:
	}
	p.idle <- h
	p.mu.Unlock()
}

// Discard destroys a checked-out handle without returning it, for
// resources known to be dead (crashed process).
func (p *Pool[T]) Discard(h *Handle[T]) {
	p.inUse.Add(-1)
	p.destroy(h, "discarded")
	go p.fillToMin(context.Background())
}

// Stats returns a snapshot of the pool's state.
func (p *Pool[T]) Stats() models.PoolStats {
	p.mu.Lock()
	total := len(p.all)
	p.mu.Unlock()
	return models.PoolStats{
		MinSize:  p.cfg.Min,
		MaxSize:  p.cfg.Max,
		Total:    total,
		Idle:     len(p.idle),
		InUse:    int(p.inUse.Load()),
		Waiting:  int(p.waiting.Load()),
		Retired:  int(p.retired.Load()),
		Launched: int(p.launched.Load()),
	}
}

// Close stops maintenance and destroys idle handles. Handles still checked
// out are destroyed when they are Put back.
func (p *Pool[T]) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.closed)
		p.mu.Unlock()
		for {
			select {
			case h := <-p.idle:
				p.destroy(h, "pool closed")
			default:
				return
			}
		}
	})
}

// create builds a new handle for a slot the caller already holds.
// When checkout is false the handle goes to the idle queue instead.
func (p *Pool[T]) create(ctx context.Context, checkout bool) (*Handle[T], error) {
	v, err := p.factory(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}
	h := &Handle[T]{ID: p.nextID.Add(1), Value: v, created: p.now()}

	p.mu.Lock()
	p.all[h.ID] = h
	p.mu.Unlock()
	p.launched.Add(1)

	if checkout {
		p.inUse.Add(1)
	} else {
		p.park(h)
	}
	return h, nil
}

// destroy removes a handle from tracking, calls the destroyer and frees
// its slot.
func (p *Pool[T]) destroy(h *Handle[T], reason string) {
	p.mu.Lock()
	_, tracked := p.all[h.ID]
	delete(p.all, h.ID)
	p.mu.Unlock()
	if !tracked {
		return
	}

	h.mu.Lock()
	slog.Debug("browser pool: retiring handle", "id", h.ID, "reason", reason,
		"errScore", h.errScore, "useCount", h.useCount)
	h.mu.Unlock()

	p.destroyer(h.Value)
	p.retired.Add(1)
	<-p.slots
}

func (p *Pool[T]) shouldRetire(h *Handle[T]) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= p.cfg.MaxErrorScore {
		return true
	}
	if p.cfg.MaxUses > 0 && h.useCount >= p.cfg.MaxUses {
		return true
	}
	if p.cfg.MaxAge > 0 && p.now().Sub(h.created) >= p.cfg.MaxAge {
		return true
	}
	return false
}

// fillToMin creates idle handles until the pool holds cfg.Min, without
// blocking on slots held by in-flight requests.
func (p *Pool[T]) fillToMin(ctx context.Context) {
	for {
		p.mu.Lock()
		n := len(p.all)
		p.mu.Unlock()
		if n >= p.cfg.Min {
			return
		}
		select {
		case <-p.closed:
			return
		case p.slots <- struct{}{}:
		default:
			return
		}
		if _, err := p.create(ctx, false); err != nil {
			slog.Warn("browser pool: failed to pre-create handle", "error", err)
			return
		}
	}
}

// maintainLoop periodically retires aged idle handles and tops up to Min.
func (p *Pool[T]) maintainLoop() {
	ticker := time.NewTicker(p.cfg.MaintainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-p.closed:
			return
		case <-ticker.C:
			p.maintain()
		}
	}
}

func (p *Pool[T]) maintain() {
	for n := len(p.idle); n > 0; n-- {
		select {
		case h := <-p.idle:
			if p.shouldRetire(h) {
				p.destroy(h, "aged")
				continue
			}
			p.park(h)
		default:
		}
	}
	p.fillToMin(context.Background())
}
