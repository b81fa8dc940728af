package bpfsverify

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/wire"
)

// 事件名称前缀，完整事件名为 "<前缀>:<交易哈希>"
const (
	EventInputAdded     = "input-added"     // 交易加入待处理池
	EventInputPersisted = "input-persisted" // 交易写入持久化历史
)

// InputAddedEvent 返回某个交易加入待处理池时触发的事件名。
func InputAddedEvent(hash chainhash.Hash) string {
	return EventInputAdded + ":" + hash.String()
}

// InputPersistedEvent 返回某个交易写入历史时触发的事件名。
func InputPersistedEvent(hash chainhash.Hash) string {
	return EventInputPersisted + ":" + hash.String()
}

// Listener 在事件触发时接收新可用的交易。
type Listener func(tx *wire.Transaction)

// EventSource 是按事件名订阅和取消订阅的通知源。
type EventSource interface {
	Subscribe(event string, l Listener) uint64
	Unsubscribe(event string, id uint64)
}

// Notifier 是进程内的事件分发器。
type Notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string]map[uint64]Listener
	taps      []func(event string, tx *wire.Transaction)
}

// NewNotifier 返回一个空的事件分发器
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[string]map[uint64]Listener),
	}
}

// Subscribe 注册监听器并返回用于取消订阅的标识
func (n *Notifier) Subscribe(event string, l Listener) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	ls, ok := n.listeners[event]
	if !ok {
		ls = make(map[uint64]Listener)
		n.listeners[event] = ls
	}
	ls[n.nextID] = l
	return n.nextID
}

// Unsubscribe 移除监听器，重复调用无副作用
func (n *Notifier) Unsubscribe(event string, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ls, ok := n.listeners[event]
	if !ok {
		return
	}
	delete(ls, id)
	if len(ls) == 0 {
		delete(n.listeners, event)
	}
}

// OnEmit 注册一个在每次事件触发时调用的钩子，用于把事件转发到外部系统。
func (n *Notifier) OnEmit(tap func(event string, tx *wire.Transaction)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.taps = append(n.taps, tap)
}

// Emit 触发事件。监听器在锁外调用，因此监听器内部可以安全地订阅或取消订阅。
func (n *Notifier) Emit(event string, tx *wire.Transaction) {
	n.mu.Lock()
	ls := make([]Listener, 0, len(n.listeners[event]))
	for _, l := range n.listeners[event] {
		ls = append(ls, l)
	}
	taps := append([]func(string, *wire.Transaction){}, n.taps...)
	n.mu.Unlock()

	for _, l := range ls {
		l(tx)
	}
	for _, tap := range taps {
		tap(event, tx)
	}
}

// ListenerCount 返回某事件当前的监听器数量
func (n *Notifier) ListenerCount(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[event])
}
