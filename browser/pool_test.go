package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResource struct{ id int64 }

type fakeFactory struct {
	created   atomic.Int64
	destroyed atomic.Int64
	fail      atomic.Bool
}

func (f *fakeFactory) create(context.Context) (*fakeResource, error) {
	if f.fail.Load() {
		return nil, errors.New("launch failed")
	}
	return &fakeResource{id: f.created.Add(1)}, nil
}

func (f *fakeFactory) destroy(*fakeResource) { f.destroyed.Add(1) }

func newTestPool(t *testing.T, cfg PoolConfig) (*Pool[*fakeResource], *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	cfg.MaintainEvery = time.Hour
	p := NewPool(context.Background(), cfg, f.create, f.destroy)
	t.Cleanup(p.Close)
	return p, f
}

func TestPoolWarmsToMin(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 2, Max: 4})

	assert.Equal(t, int64(2), f.created.Load())
	stats := p.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Idle)
}

func TestPoolReusesIdle(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 1, Max: 2})

	h, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(h, true)

	h2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.ID, h2.ID)
	assert.Equal(t, int64(1), f.created.Load())
	p.Put(h2, true)
}

func TestPoolNeverExceedsMax(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 0, Max: 2})

	h1, err := p.Get(context.Background())
	require.NoError(t, err)
	h2, err := p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(2), f.created.Load())

	p.Put(h1, true)
	p.Put(h2, true)
}

func TestPoolWaiterGetsReturnedHandle(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{Min: 0, Max: 1})

	h, err := p.Get(context.Background())
	require.NoError(t, err)

	got := make(chan *Handle[*fakeResource], 1)
	go func() {
		h2, err := p.Get(context.Background())
		if err == nil {
			got <- h2
		}
	}()

	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)
	p.Put(h, true)

	select {
	case h2 := <-got:
		assert.Equal(t, h.ID, h2.ID)
		p.Put(h2, true)
	case <-time.After(time.Second):
		t.Fatal("waiter was not served")
	}
}

func TestPoolRetiresUnhealthy(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 0, Max: 1, MaxErrorScore: 2})

	h, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(h, false)

	h, err = p.Get(context.Background())
	require.NoError(t, err)
	p.Put(h, false) // score reaches 2

	assert.Equal(t, int64(1), f.destroyed.Load())
	assert.Zero(t, p.Stats().Total)

	h3, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, h.ID, h3.ID)
	p.Put(h3, true)
}

func TestPoolRetiresByUseCount(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 0, Max: 1, MaxUses: 2})

	for i := 0; i < 2; i++ {
		h, err := p.Get(context.Background())
		require.NoError(t, err)
		p.Put(h, true)
	}
	assert.Equal(t, int64(1), f.destroyed.Load())
}

func TestPoolRetiresStaleIdleOnGet(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 1, Max: 1, MaxAge: time.Minute})
	now := time.Now()
	p.now = func() time.Time { return now.Add(2 * time.Minute) }

	h, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.destroyed.Load())
	assert.Equal(t, int64(2), f.created.Load())
	p.Put(h, true)
}

func TestPoolFactoryErrorFreesSlot(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 0, Max: 1})

	f.fail.Store(true)
	_, err := p.Get(context.Background())
	require.Error(t, err)

	f.fail.Store(false)
	h, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(h, true)
}

func TestPoolClose(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 1, Max: 2})

	h, err := p.Get(context.Background())
	require.NoError(t, err)

	p.Close()
	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Put(h, true)
	assert.Equal(t, f.created.Load(), f.destroyed.Load())
}

func TestPoolConcurrentUse(t *testing.T) {
	p, f := newTestPool(t, PoolConfig{Min: 1, Max: 3})

	var wg sync.WaitGroup
	var peak, cur atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Get(context.Background())
			if err != nil {
				return
			}
			n := cur.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			cur.Add(-1)
			p.Put(h, true)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.LessOrEqual(t, f.created.Load(), int64(3))
}

func TestPoolPutRacingCloseLeaksNothing(t *testing.T) {
	for i := 0; i < 50; i++ {
		p, f := newTestPool(t, PoolConfig{Min: 0, Max: 4})

		handles := make([]*Handle[*fakeResource], 4)
		for j := range handles {
			h, err := p.Get(context.Background())
			require.NoError(t, err)
			handles[j] = h
		}

		var wg sync.WaitGroup
		for _, h := range handles {
			wg.Add(1)
			go func(h *Handle[*fakeResource]) {
				defer wg.Done()
				p.Put(h, true)
			}(h)
		}
		p.Close()
		wg.Wait()

		assert.Zero(t, p.Stats().Idle, "no handle parked after close")
		assert.Zero(t, p.Stats().Total)
		assert.Equal(t, f.created.Load(), f.destroyed.Load())
	}
}
