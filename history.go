package bpfsverify

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dgraph-io/badger/v4"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
)

var (
	txPrefix    = []byte("tx-")    // 交易正文
	spentPrefix = []byte("spent-") // 输出点 -> 花费它的交易哈希
)

// ErrTxNotFound 表示历史中不存在该交易
var ErrTxNotFound = errors.New("transaction not found")

// HashOutputs 是某个已持久化交易的全部输出
type HashOutputs struct {
	Hash    chainhash.Hash
	Outputs []wire.TxOut
}

// History 是持久化的交易历史，保存交易正文和输出点花费索引
type History struct {
	db     *badger.DB
	events *Notifier // 交易写入时触发 input-persisted 事件
}

// OpenHistory 打开 path 下的历史数据库，path 为空时使用内存数据库。
func OpenHistory(path string, events *Notifier) (*History, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
		opts.ValueDir = path
	}
	opts = opts.WithLogger(logrus.WithField("component", "history")).WithLoggingLevel(badger.WARNING)

	db, err := openDB(path, opts)
	if err != nil {
		return nil, err
	}
	return &History{db: db, events: events}, nil
}

// Close 关闭历史数据库
func (h *History) Close() error {
	return h.db.Close()
}

func txKey(hash chainhash.Hash) []byte {
	return append(append([]byte{}, txPrefix...), hash[:]...)
}

func spentKey(op wire.OutPoint) []byte {
	key := make([]byte, 0, len(spentPrefix)+chainhash.HashSize+4)
	key = append(key, spentPrefix...)
	key = append(key, op.Hash[:]...)
	return binary.LittleEndian.AppendUint32(key, op.Index)
}

// SaveTransaction 持久化交易并为每个非 coinbase 输入记录花费索引。
// 若某个输出点已被其他交易花费，返回 *ConflictingSpendError 且不写入任何数据；
// 重复引用同一输出点的交易返回 *MalformedTransactionError。
func (h *History) SaveTransaction(ctx context.Context, tx *wire.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDuplicateInputs(tx.Inputs()); err != nil {
		return err
	}
	hash := tx.Hash()

	err := h.db.Update(func(txn *badger.Txn) error {
		for _, in := range tx.Inputs() {
			if in.IsCoinBase() {
				continue
			}
			key := spentKey(in.PreviousOutPoint)
			item, err := txn.Get(key)
			switch {
			case err == nil:
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if !bytes.Equal(v, hash[:]) {
					var conflicting chainhash.Hash
					copy(conflicting[:], v)
					return &ConflictingSpendError{Conflicting: conflicting}
				}
			case errors.Is(err, badger.ErrKeyNotFound):
			default:
				return err
			}
			if err := txn.Set(key, hash[:]); err != nil {
				return fmt.Errorf("存储花费索引失败: %w", err)
			}
		}
		if err := txn.Set(txKey(hash), tx.Bytes()); err != nil {
			return fmt.Errorf("存储交易失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if h.events != nil {
		h.events.Emit(InputPersistedEvent(hash), tx)
	}
	return nil
}

// GetTransaction 返回历史中的交易
func (h *History) GetTransaction(ctx context.Context, hash chainhash.Hash) (*wire.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tx *wire.Transaction
	err := h.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(txKey(hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrTxNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			tx, err = wire.FromBytes(val)
			return err
		})
	})
	return tx, err
}

// GetOutputsByHashes 批量返回给定交易的输出，不存在的哈希被忽略
func (h *History) GetOutputsByHashes(ctx context.Context, hashes []chainhash.Hash) ([]HashOutputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found []HashOutputs
	err := h.db.View(func(txn *badger.Txn) error {
		for _, hash := range hashes {
			item, err := txn.Get(txKey(hash))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			} else if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			tx, err := wire.FromBytes(v)
			if err != nil {
				return fmt.Errorf("交易 %s 解码失败: %w", hash, err)
			}
			found = append(found, HashOutputs{Hash: hash, Outputs: tx.Outputs()})
		}
		return nil
	})
	return found, err
}

// FindConflicting 查找花费了任一给定输出点的已持久化交易，exclude 本身不算冲突
func (h *History) FindConflicting(ctx context.Context, outpoints []wire.OutPoint, exclude chainhash.Hash) (chainhash.Hash, bool, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, false, err
	}

	var conflicting chainhash.Hash
	var found bool
	err := h.db.View(func(txn *badger.Txn) error {
		for _, op := range outpoints {
			item, err := txn.Get(spentKey(op))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			} else if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if bytes.Equal(v, exclude[:]) {
				continue
			}
			copy(conflicting[:], v)
			found = true
			return nil
		}
		return nil
	})
	return conflicting, found, err
}

// CountTransactions 返回历史中的交易数量
func (h *History) CountTransactions() int {
	var counter int
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		// 只需要键
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(txPrefix); it.ValidForPrefix(txPrefix); it.Next() {
			counter++
		}
		return nil
	})
	if err != nil {
		logrus.Errorf("[CountTransactions] 读取失败:\t%v", err)
	}
	return counter
}

// openDB 打开数据库，遇到残留的 LOCK 文件时尝试清理后重试
func openDB(path string, opts badger.Options) (*badger.DB, error) {
	db, err := badger.Open(opts)
	if err != nil && path != "" && strings.Contains(err.Error(), "LOCK") {
		db, err = retry(path, opts)
		if err != nil {
			return nil, fmt.Errorf("无法解锁数据库: %w", err)
		}
		return db, nil
	} else if err != nil {
		return nil, err
	}
	return db, nil
}

// retry 删除 lock 文件，并再次尝试打开数据库
func retry(path string, opts badger.Options) (*badger.DB, error) {
	lockPath := filepath.Join(path, "LOCK")

	// 检查锁文件是否可以安全删除
	if err := checkLock(lockPath); err != nil {
		return nil, err
	}

	if err := os.Remove(lockPath); err != nil {
		return nil, fmt.Errorf("移除 LOCK: %w", err)
	}

	var db *badger.DB
	var err error
	for i := 0; i < 3; i++ {
		db, err = badger.Open(opts)
		if err == nil {
			return db, nil
		}
		logrus.Errorf("打开数据库失败，%d 秒后重试", i+1)
		time.Sleep(time.Duration(i+1) * time.Second)
	}

	return nil, fmt.Errorf("打开数据库失败: %w", err)
}

// checkLock 检查锁文件是否可以安全删除
func checkLock(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开 LOCK 文件失败: %w", err)
	}
	defer file.Close()

	// 尝试获取文件锁
	err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		return fmt.Errorf("数据库正被其他进程使用: %w", err)
	}

	defer syscall.Flock(int(file.Fd()), syscall.LOCK_UN)

	return nil
}
