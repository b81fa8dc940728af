package bpfsverify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPool 记录 Find 的调用次数
type countingPool struct {
	PendingPool
	calls int32
}

func (p *countingPool) Find(ctx context.Context, hashes []chainhash.Hash) ([]*wire.Transaction, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.PendingPool.Find(ctx, hashes)
}

type failingStore struct{ err error }

func (s failingStore) GetOutputsByHashes(context.Context, []chainhash.Hash) ([]HashOutputs, error) {
	return nil, s.err
}

// cacheFixture 是一组共享事件分发器的待处理池和历史
type cacheFixture struct {
	events  *Notifier
	pool    *MemoryPool
	history *History
}

func newCacheFixture(t *testing.T) *cacheFixture {
	events := NewNotifier()
	return &cacheFixture{
		events:  events,
		pool:    newMemoryPool(events),
		history: newTestHistory(t, events),
	}
}

func (f *cacheFixture) cache(tx *wire.Transaction, timeout time.Duration) *InputResolutionCache {
	return NewInputResolutionCache(tx, f.pool, f.history, f.events, timeout)
}

func (f *cacheFixture) listeners(h chainhash.Hash) int {
	return f.events.ListenerCount(InputAddedEvent(h)) + f.events.ListenerCount(InputPersistedEvent(h))
}

func TestResolveFromPoolAndHistory(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	inPool := fundingTx(t, key, 1000)
	inHistory := fundingTx(t, key, 2000)
	f.pool.Add(inPool)
	saveAll(t, f.history, inHistory)

	poolHash, historyHash := inPool.Hash(), inHistory.Hash()
	tx := signAll(t, key, wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&poolHash, 0), nil)).
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&historyHash, 0), nil)).
		AddTxOut(wire.NewTxOut(2500, p2pkh(t, key))).
		Build(), p2pkh(t, key))

	c := f.cache(tx, time.Second)
	index, err := c.Resolve(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, index, 2)

	out, haveTx, haveOut := index.Lookup(tx.Input(0).PreviousOutPoint)
	require.True(t, haveTx)
	require.True(t, haveOut)
	assert.Equal(t, uint64(1000), out.Value)

	out, _, haveOut = index.Lookup(tx.Input(1).PreviousOutPoint)
	require.True(t, haveOut)
	assert.Equal(t, uint64(2000), out.Value)

	assert.Empty(t, c.Missing())
	assert.Equal(t, index, c.Index())
	assert.Zero(t, f.listeners(poolHash))
	assert.Zero(t, f.listeners(historyHash))
}

func TestResolveOutputOutOfRange(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	f.pool.Add(parent)

	h := parent.Hash()
	tx := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&h, 3), nil)).
		AddTxOut(wire.NewTxOut(10, p2pkh(t, key))).
		Build()

	index, err := f.cache(tx, time.Second).Resolve(context.Background(), true)
	require.NoError(t, err)
	_, haveTx, haveOut := index.Lookup(tx.Input(0).PreviousOutPoint)
	assert.True(t, haveTx)
	assert.False(t, haveOut)
}

func TestResolveNoWaitReportsMissing(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	tx := spendTx(t, key, parent, 0, 900)

	c := f.cache(tx, time.Second)
	index, err := c.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, index)
	assert.Equal(t, []chainhash.Hash{parent.Hash()}, c.Missing())
	assert.Zero(t, f.listeners(parent.Hash()))
}

func TestResolveWaitsForPoolArrival(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	tx := spendTx(t, key, parent, 0, 900)

	done := make(chan error, 1)
	c := f.cache(tx, 5*time.Second)
	c.Buffer(context.Background(), true, func(_ ResolvedIndex, err error) { done <- err })

	require.Eventually(t, func() bool { return f.listeners(parent.Hash()) == 2 }, time.Second, time.Millisecond)
	f.pool.Add(parent)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("resolution did not finish after the input arrived")
	}
	_, _, haveOut := c.Index().Lookup(tx.Input(0).PreviousOutPoint)
	assert.True(t, haveOut)
	assert.Zero(t, f.listeners(parent.Hash()))
}

func TestResolveWaitsForPersistedArrival(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	tx := spendTx(t, key, parent, 0, 900)

	done := make(chan error, 1)
	c := f.cache(tx, 5*time.Second)
	c.Buffer(context.Background(), true, func(_ ResolvedIndex, err error) { done <- err })

	require.Eventually(t, func() bool { return f.listeners(parent.Hash()) == 2 }, time.Second, time.Millisecond)
	saveAll(t, f.history, parent)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("resolution did not finish after the input was persisted")
	}
	assert.Empty(t, c.Missing())
}

func TestResolveTimeout(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	present := fundingTx(t, key, 1000)
	absent := fundingTx(t, key, 2000)
	f.pool.Add(present)

	presentHash, absentHash := present.Hash(), absent.Hash()
	tx := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&presentHash, 0), nil)).
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&absentHash, 0), nil)).
		AddTxOut(wire.NewTxOut(10, p2pkh(t, key))).
		Build()

	c := f.cache(tx, 50*time.Millisecond)
	index, err := c.Resolve(context.Background(), true)

	var timeout *ResolutionTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, []chainhash.Hash{absentHash}, timeout.Missing)
	assert.Contains(t, err.Error(), "missing inputs (timeout while searching): "+absentHash.String())

	// 部分结果仍然可用
	_, haveTx, _ := index.Lookup(tx.Input(0).PreviousOutPoint)
	assert.True(t, haveTx)
	assert.Equal(t, []chainhash.Hash{absentHash}, c.Missing())

	assert.Zero(t, f.listeners(absentHash))
	assert.Zero(t, f.listeners(presentHash))
}

func TestResolveContextCanceled(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	tx := spendTx(t, key, parent, 0, 900)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	f.cache(tx, 5*time.Second).Buffer(ctx, true, func(_ ResolvedIndex, err error) { done <- err })

	require.Eventually(t, func() bool { return f.listeners(parent.Hash()) == 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("resolution ignored cancellation")
	}
	assert.Zero(t, f.listeners(parent.Hash()))
}

func TestBufferCoalescesCallers(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	tx := spendTx(t, key, parent, 0, 900)

	pool := &countingPool{PendingPool: f.pool}
	c := NewInputResolutionCache(tx, pool, f.history, f.events, 5*time.Second)

	results := make(chan ResolvedIndex, 2)
	cb := func(index ResolvedIndex, err error) {
		assert.NoError(t, err)
		results <- index
	}
	c.Buffer(context.Background(), true, cb)
	require.Eventually(t, func() bool { return f.listeners(parent.Hash()) == 2 }, time.Second, time.Millisecond)
	c.Buffer(context.Background(), true, cb)

	f.pool.Add(parent)

	for i := 0; i < 2; i++ {
		select {
		case index := <-results:
			assert.Contains(t, index, parent.Hash())
		case <-time.After(2 * time.Second):
			t.Fatal("waiter was not notified")
		}
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&pool.calls))
}

func TestBufferReentrantCallback(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	f.pool.Add(parent)
	tx := spendTx(t, key, parent, 0, 900)

	c := f.cache(tx, time.Second)
	second := make(chan error, 1)
	c.Buffer(context.Background(), false, func(_ ResolvedIndex, err error) {
		assert.NoError(t, err)
		c.Buffer(context.Background(), false, func(_ ResolvedIndex, err error) { second <- err })
	})

	select {
	case err := <-second:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("nested resolution did not run")
	}
}

func TestResolveStoreError(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	tx := spendTx(t, key, parent, 0, 900)

	boom := errors.New("store unavailable")
	c := NewInputResolutionCache(tx, f.pool, failingStore{boom}, f.events, time.Second)
	_, err := c.Resolve(context.Background(), true)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.listeners(parent.Hash()))
}

func TestResolveNoInputsToFind(t *testing.T) {
	f := newCacheFixture(t)
	coinbase := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x01})).
		AddTxOut(wire.NewTxOut(50, p2pkh(t, testKey(t, 0)))).
		Build()

	index, err := f.cache(coinbase, time.Second).Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, index)
}

func TestResolveLaterCallerDeadline(t *testing.T) {
	f := newCacheFixture(t)
	key := testKey(t, 0)
	parent := fundingTx(t, key, 1000)
	tx := spendTx(t, key, parent, 0, 900)

	c := f.cache(tx, 5*time.Second)
	first := make(chan error, 1)
	c.Buffer(context.Background(), true, func(_ ResolvedIndex, err error) { first <- err })
	require.Eventually(t, func() bool { return f.listeners(parent.Hash()) == 2 }, time.Second, time.Millisecond)

	// 后来的调用者按自己的截止时间返回，不影响进行中的解析
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Resolve(ctx, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, f.listeners(parent.Hash()))

	f.pool.Add(parent)
	select {
	case err := <-first:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first caller was not notified")
	}
}
