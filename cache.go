package bpfsverify

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
)

// DefaultResolveTimeout 是等待模式下等待缺失先前交易的默认时长
const DefaultResolveTimeout = 10 * time.Second

// PendingPool 是待处理交易池
type PendingPool interface {
	Find(ctx context.Context, hashes []chainhash.Hash) ([]*wire.Transaction, error)
}

// OutputStore 是持久化历史中按交易哈希批量读取输出的部分
type OutputStore interface {
	GetOutputsByHashes(ctx context.Context, hashes []chainhash.Hash) ([]HashOutputs, error)
}

// ResolvedIndex 是先前交易哈希 -> 输出索引 -> 输出的映射。
// 存在某个哈希的条目表示该交易已找到，即使其中没有任何需要的输出。
type ResolvedIndex map[chainhash.Hash]map[uint32]wire.TxOut

// Lookup 返回输出点对应的输出，以及先前交易和该输出是否存在
func (idx ResolvedIndex) Lookup(op wire.OutPoint) (out wire.TxOut, haveTx, haveOut bool) {
	outs, ok := idx[op.Hash]
	if !ok {
		return wire.TxOut{}, false, false
	}
	out, ok = outs[op.Index]
	return out, true, ok
}

// ResolveCallback 在一次解析完成时被调用。超时时 index 为已解析的部分。
type ResolveCallback func(index ResolvedIndex, err error)

// InputResolutionCache 为一笔交易查找其输入引用的先前输出。
// 依次查询待处理池和持久化历史，等待模式下再订阅实时事件直到全部找到或超时。
type InputResolutionCache struct {
	tx      *wire.Transaction
	pool    PendingPool
	store   OutputStore
	events  EventSource
	timeout time.Duration

	mu        sync.Mutex
	callbacks []ResolveCallback
	running   bool
	index     ResolvedIndex
	missing   []chainhash.Hash
}

// NewInputResolutionCache 返回交易 tx 的解析缓存。timeout 不大于 0 时使用默认值。
func NewInputResolutionCache(tx *wire.Transaction, pool PendingPool, store OutputStore,
	events EventSource, timeout time.Duration) *InputResolutionCache {

	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &InputResolutionCache{
		tx:      tx,
		pool:    pool,
		store:   store,
		events:  events,
		timeout: timeout,
	}
}

// Buffer 请求一次解析，完成时调用 cb。
// 解析进行中时再次调用不会启动新的解析，所有等待者在同一次完成时一起被通知。
// 解析只受发起它的第一个调用者的 ctx 控制；后来者需要提前退出时使用 Resolve。
func (c *InputResolutionCache) Buffer(ctx context.Context, wait bool, cb ResolveCallback) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.run(ctx, wait)
}

// Resolve 是 Buffer 的同步形式。ctx 结束时立即返回，已在进行的解析继续为其他等待者运行。
func (c *InputResolutionCache) Resolve(ctx context.Context, wait bool) (ResolvedIndex, error) {
	type result struct {
		index ResolvedIndex
		err   error
	}
	done := make(chan result, 1)
	c.Buffer(ctx, wait, func(index ResolvedIndex, err error) {
		done <- result{index, err}
	})
	select {
	case r := <-done:
		return r.index, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Index 返回最近一次完成的解析结果
func (c *InputResolutionCache) Index() ResolvedIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Missing 返回最近一次完成的解析中仍未找到的先前交易
func (c *InputResolutionCache) Missing() []chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chainhash.Hash(nil), c.missing...)
}

// resolution 是一次解析的可变状态，只在 run 所在的 goroutine 中访问
type resolution struct {
	hashes   []chainhash.Hash
	required map[chainhash.Hash]map[uint32]struct{}
	index    ResolvedIndex
	pending  map[chainhash.Hash]struct{}
}

// add 为哈希 h 记录需要的输出，返回 h 是否此前未解析
func (r *resolution) add(h chainhash.Hash, outputs []wire.TxOut) bool {
	if _, ok := r.pending[h]; !ok {
		return false
	}
	delete(r.pending, h)

	outs := make(map[uint32]wire.TxOut)
	for idx := range r.required[h] {
		if int64(idx) < int64(len(outputs)) {
			outs[idx] = outputs[idx]
		}
	}
	r.index[h] = outs
	return true
}

// remaining 按引用顺序返回仍未解析的哈希
func (r *resolution) remaining() []chainhash.Hash {
	var missing []chainhash.Hash
	for _, h := range r.hashes {
		if _, ok := r.pending[h]; ok {
			missing = append(missing, h)
		}
	}
	return missing
}

func (c *InputResolutionCache) run(ctx context.Context, wait bool) {
	hashes, required := c.tx.PreviousHashes()
	r := &resolution{
		hashes:   hashes,
		required: required,
		index:    make(ResolvedIndex, len(hashes)),
		pending:  make(map[chainhash.Hash]struct{}, len(hashes)),
	}
	for _, h := range hashes {
		r.pending[h] = struct{}{}
	}

	err := c.resolve(ctx, wait, r)
	c.finish(r, err)
}

// resolve 填充 r，返回前注销本次注册的全部监听器
func (c *InputResolutionCache) resolve(ctx context.Context, wait bool, r *resolution) error {
	hashes := r.hashes

	// Listeners are registered before querying so that a transaction
	// arriving between the query and the wait is not lost.
	arrivals := make(chan *wire.Transaction, 2*len(hashes))
	done := make(chan struct{})
	subs := make(map[chainhash.Hash][2]uint64)
	unsubscribe := func(h chainhash.Hash) {
		ids, ok := subs[h]
		if !ok {
			return
		}
		delete(subs, h)
		c.events.Unsubscribe(InputAddedEvent(h), ids[0])
		c.events.Unsubscribe(InputPersistedEvent(h), ids[1])
	}
	defer func() {
		for h := range subs {
			unsubscribe(h)
		}
		close(done)
	}()

	if wait && c.events != nil {
		listener := func(tx *wire.Transaction) {
			select {
			case arrivals <- tx:
			case <-done:
			}
		}
		for _, h := range hashes {
			subs[h] = [2]uint64{
				c.events.Subscribe(InputAddedEvent(h), listener),
				c.events.Subscribe(InputPersistedEvent(h), listener),
			}
		}
	}

	// 1. 待处理池
	if len(r.pending) > 0 && c.pool != nil {
		txs, err := c.pool.Find(ctx, r.remaining())
		if err != nil {
			return err
		}
		for _, tx := range txs {
			h := tx.Hash()
			if r.add(h, tx.Outputs()) {
				unsubscribe(h)
			}
		}
	}

	// 2. 持久化历史
	if len(r.pending) > 0 && c.store != nil {
		found, err := c.store.GetOutputsByHashes(ctx, r.remaining())
		if err != nil {
			return err
		}
		for _, ho := range found {
			if r.add(ho.Hash, ho.Outputs) {
				unsubscribe(ho.Hash)
			}
		}
	}

	if len(r.pending) == 0 || !wait || c.events == nil {
		return nil
	}

	// 3. 等待实时事件
	logrus.Debugf("[InputResolutionCache] tx %s waiting for %d inputs", c.tx.Hash(), len(r.pending))
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for len(r.pending) > 0 {
		select {
		case tx := <-arrivals:
			h := tx.Hash()
			if r.add(h, tx.Outputs()) {
				unsubscribe(h)
			}

		case <-timer.C:
			return &ResolutionTimeoutError{Missing: r.remaining()}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// finish 交出当前的等待者列表后再逐个调用，等待者可以在回调中发起新的解析。
func (c *InputResolutionCache) finish(r *resolution, err error) {
	c.mu.Lock()
	cbs := c.callbacks
	c.callbacks = nil
	c.running = false
	c.index = r.index
	c.missing = r.remaining()
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(r.index, err)
	}
}
