package bpfsverify

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
)

// Validator 串联输入解析、验证、入池和身份索引
type Validator struct {
	opt      *Options
	pool     *MemoryPool
	history  *History
	events   *Notifier
	affected *AffectedIndex // 可以为 nil
	flags    txscript.ScriptFlags
}

// NewValidator 返回交易处理服务
func NewValidator(opt *Options, pool *MemoryPool, history *History, events *Notifier, affected *AffectedIndex) *Validator {
	var flags txscript.ScriptFlags
	if opt.AllowDisabledOpcodes {
		flags |= txscript.ScriptAllowDisabledOpcodes
	}
	return &Validator{
		opt:      opt,
		pool:     pool,
		history:  history,
		events:   events,
		affected: affected,
		flags:    flags,
	}
}

// ProcessTransaction 解析并验证交易，成功时放入内存池并返回手续费。
// 缺少先前交易的交易被放入排队队列，在先前交易入池后自动重试。
func (v *Validator) ProcessTransaction(ctx context.Context, tx *wire.Transaction) (*big.Int, error) {
	hash := tx.Hash()
	if v.pool.Has(hash) {
		return nil, ErrAlreadyKnown
	}
	if _, err := v.history.GetTransaction(ctx, hash); err == nil {
		return nil, ErrAlreadyKnown
	} else if !errors.Is(err, ErrTxNotFound) {
		return nil, err
	}

	if v.opt.RequireStandard {
		if err := IsStandard(tx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotStandard, err)
		}
	}

	started := time.Now()
	cache := NewInputResolutionCache(tx, v.pool, v.history, v.events, v.opt.ResolveTimeout)
	index, err := cache.Resolve(ctx, v.opt.WaitForInputs)
	ObserveResolve(err, started)
	if err != nil {
		var timeout *ResolutionTimeoutError
		if errors.As(err, &timeout) && len(timeout.Missing) > 0 {
			v.queue(tx, timeout.Missing[0])
		}
		return nil, err
	}

	started = time.Now()
	res := <-NewTransactionVerifier(tx, v.history, v.flags).Verify(ctx, index)
	ObserveVerify(res.Err, started)
	if res.Err != nil {
		if missing, ok := IsMissingSource(res.Err); ok {
			v.queue(tx, missing)
		}
		return nil, res.Err
	}

	v.pool.Add(tx)
	observePool(v.pool)
	logrus.Debugf("[Validator] accepted tx %s fee %s", hash, wire.FormatBigValue(res.Fee))

	if v.affected != nil {
		if err := v.affected.Index(hash, AffectedIdentities(tx, index)); err != nil {
			logrus.Errorf("[Validator] 索引受影响身份失败:\t%v", err)
		}
	}

	v.processOrphans(ctx, hash)
	return res.Fee, nil
}

// Persist 将内存池中的交易写入历史并从内存池移除
func (v *Validator) Persist(ctx context.Context, hash chainhash.Hash) error {
	txs, err := v.pool.Find(ctx, []chainhash.Hash{hash})
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return fmt.Errorf("tx %s: %w", hash, ErrTxNotFound)
	}
	if err := v.history.SaveTransaction(ctx, txs[0]); err != nil {
		return err
	}
	v.pool.Remove(hash)
	observePool(v.pool)
	return nil
}

// queue 将缺少先前交易的交易放入排队队列
func (v *Validator) queue(tx *wire.Transaction, missing chainhash.Hash) {
	logrus.Debugf("[Validator] tx %s queued, waiting for %s", tx.Hash(), missing)
	v.pool.Queue(tx, missing)
	observePool(v.pool)
}

// processOrphans 重新处理等待 parent 的排队交易
func (v *Validator) processOrphans(ctx context.Context, parent chainhash.Hash) {
	for _, orphan := range v.pool.Dequeue(parent) {
		if _, err := v.ProcessTransaction(ctx, orphan); err != nil {
			logrus.Debugf("[Validator] orphan tx %s rejected: %v", orphan.Hash(), err)
		}
	}
}
