package bpfsverify

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/wire"
	"go.uber.org/fx"
)

// queuedTx 是因缺少先前交易而排队等待的交易
type queuedTx struct {
	tx      *wire.Transaction
	missing chainhash.Hash // 等待的先前交易
}

// MemoryPool 待处理交易内存池
type MemoryPool struct {
	mu      sync.RWMutex
	Pending map[chainhash.Hash]*wire.Transaction // 已验证、等待持久化的交易
	Queued  map[chainhash.Hash]queuedTx          // 缺少先前交易的孤立交易

	events *Notifier // 交易加入时触发 input-added 事件
}

type NewMemoryPoolInput struct {
	fx.In

	Events *Notifier // 事件分发器
}

type NewMemoryPoolOutput struct {
	fx.Out
	Pool *MemoryPool // 交易内存池
}

// NewMemoryPool 初始化一个新的交易内存池
func NewMemoryPool(lc fx.Lifecycle, input NewMemoryPoolInput) (out NewMemoryPoolOutput, err error) {
	out.Pool = newMemoryPool(input.Events)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			out.Pool.ClearAll()
			return nil
		},
	})
	return out, nil
}

func newMemoryPool(events *Notifier) *MemoryPool {
	return &MemoryPool{
		Pending: map[chainhash.Hash]*wire.Transaction{},
		Queued:  map[chainhash.Hash]queuedTx{},
		events:  events,
	}
}

// Add 添加新的交易到挂起队列，并触发 input-added 事件
func (memo *MemoryPool) Add(tx *wire.Transaction) {
	hash := tx.Hash()

	memo.mu.Lock()
	delete(memo.Queued, hash)
	memo.Pending[hash] = tx
	memo.mu.Unlock()

	if memo.events != nil {
		memo.events.Emit(InputAddedEvent(hash), tx)
	}
}

// Find 返回挂起队列中存在的交易，不存在的哈希被忽略
func (memo *MemoryPool) Find(ctx context.Context, hashes []chainhash.Hash) ([]*wire.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	memo.mu.RLock()
	defer memo.mu.RUnlock()

	var txs []*wire.Transaction
	for _, h := range hashes {
		if tx, ok := memo.Pending[h]; ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// Has 报告交易是否在挂起或排队队列中
func (memo *MemoryPool) Has(hash chainhash.Hash) bool {
	memo.mu.RLock()
	defer memo.mu.RUnlock()

	if _, ok := memo.Pending[hash]; ok {
		return true
	}
	_, ok := memo.Queued[hash]
	return ok
}

// Queue 将缺少先前交易 missing 的交易放入排队队列
func (memo *MemoryPool) Queue(tx *wire.Transaction, missing chainhash.Hash) {
	memo.mu.Lock()
	defer memo.mu.Unlock()
	memo.Queued[tx.Hash()] = queuedTx{tx: tx, missing: missing}
}

// Dequeue 取出所有等待 parent 的排队交易
func (memo *MemoryPool) Dequeue(parent chainhash.Hash) []*wire.Transaction {
	memo.mu.Lock()
	defer memo.mu.Unlock()

	var txs []*wire.Transaction
	for h, q := range memo.Queued {
		if q.missing == parent {
			txs = append(txs, q.tx)
			delete(memo.Queued, h)
		}
	}
	return txs
}

// Remove 从挂起队列中删除交易
func (memo *MemoryPool) Remove(hash chainhash.Hash) {
	memo.mu.Lock()
	defer memo.mu.Unlock()
	delete(memo.Pending, hash)
}

// GetTransactions 从挂起交易队列中得到最多 count 个交易的哈希
func (memo *MemoryPool) GetTransactions(count int) (hashes []chainhash.Hash) {
	memo.mu.RLock()
	defer memo.mu.RUnlock()

	for h := range memo.Pending {
		if len(hashes) == count {
			break
		}
		hashes = append(hashes, h)
	}
	return hashes
}

// Count 返回挂起和排队队列中的交易数量
func (memo *MemoryPool) Count() (pending, queued int) {
	memo.mu.RLock()
	defer memo.mu.RUnlock()
	return len(memo.Pending), len(memo.Queued)
}

// RemoveFromAll 从挂起和排队队列中全部删除某个交易
func (memo *MemoryPool) RemoveFromAll(hash chainhash.Hash) {
	memo.mu.Lock()
	defer memo.mu.Unlock()
	delete(memo.Queued, hash)
	delete(memo.Pending, hash)
}

// ClearAll 从内存池中清除全部的交易
func (memo *MemoryPool) ClearAll() {
	memo.mu.Lock()
	defer memo.mu.Unlock()
	memo.Pending = map[chainhash.Hash]*wire.Transaction{}
	memo.Queued = map[chainhash.Hash]queuedTx{}
}
