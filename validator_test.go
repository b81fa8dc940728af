package bpfsverify

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validatorFixture struct {
	*Validator
	events   *Notifier
	pool     *MemoryPool
	history  *History
	affected *AffectedIndex
}

func newValidatorFixture(t *testing.T, configure func(*Options)) *validatorFixture {
	t.Helper()

	opt := DefaultOptions()
	opt.WaitForInputs = false
	if configure != nil {
		configure(opt)
	}

	db, err := NewSqliteDB("", DbFile)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	affected, err := NewAffectedIndex(db)
	require.NoError(t, err)

	events := NewNotifier()
	pool := newMemoryPool(events)
	history := newTestHistory(t, events)
	return &validatorFixture{
		Validator: NewValidator(opt, pool, history, events, affected),
		events:    events,
		pool:      pool,
		history:   history,
		affected:  affected,
	}
}

func TestProcessTransaction(t *testing.T) {
	v := newValidatorFixture(t, nil)
	ctx := context.Background()
	sender, receiver := testKey(t, 0), testKey(t, 1)

	funding := fundingTx(t, sender, 5000)
	saveAll(t, v.history, funding)

	fh := funding.Hash()
	tx := signAll(t, sender, wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fh, 0), nil)).
		AddTxOut(wire.NewTxOut(4500, p2pkh(t, receiver))).
		Build(), p2pkh(t, sender))

	fee, err := v.ProcessTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), fee)
	assert.True(t, v.pool.Has(tx.Hash()))

	// 双方身份都被索引
	for _, key := range []interface{ SerializeCompressed() []byte }{sender.PubKey(), receiver.PubKey()} {
		ok, err := v.affected.Exists(identityOf(key), tx.Hash())
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = v.ProcessTransaction(ctx, tx)
	assert.ErrorIs(t, err, ErrAlreadyKnown)
	_, err = v.ProcessTransaction(ctx, funding)
	assert.ErrorIs(t, err, ErrAlreadyKnown)
}

func TestProcessTransactionRejects(t *testing.T) {
	v := newValidatorFixture(t, nil)
	ctx := context.Background()
	key := testKey(t, 0)

	funding := fundingTx(t, key, 5000)
	saveAll(t, v.history, funding)

	_, err := v.ProcessTransaction(ctx, spendTx(t, key, funding, 0, 6000))
	var vc *ValueConservationError
	assert.True(t, errors.As(err, &vc), "got %v", err)

	coinbase := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x01})).
		AddTxOut(wire.NewTxOut(50, p2pkh(t, key))).
		Build()
	_, err = v.ProcessTransaction(ctx, coinbase)
	assert.ErrorIs(t, err, ErrCoinbaseStandalone)

	pending, queued := v.pool.Count()
	assert.Zero(t, pending)
	assert.Zero(t, queued)
}

func TestProcessTransactionRequireStandard(t *testing.T) {
	v := newValidatorFixture(t, func(opt *Options) { opt.RequireStandard = true })
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	saveAll(t, v.history, funding)

	spend := spendTx(t, key, funding, 0, 4000)
	strange := signAll(t, key, spend.Builder().
		AddTxOut(wire.NewTxOut(1, []byte{txscript.OP_1, txscript.OP_ADD})).
		Build(), p2pkh(t, key))

	_, err := v.ProcessTransaction(context.Background(), strange)
	assert.ErrorIs(t, err, ErrNotStandard)

	_, err = v.ProcessTransaction(context.Background(), spend)
	assert.NoError(t, err)
}

func TestProcessTransactionOrphans(t *testing.T) {
	v := newValidatorFixture(t, nil)
	ctx := context.Background()
	key := testKey(t, 0)

	funding := fundingTx(t, key, 5000)
	saveAll(t, v.history, funding)
	parent := spendTx(t, key, funding, 0, 4000)
	child := spendTx(t, key, parent, 0, 3000)

	_, err := v.ProcessTransaction(ctx, child)
	missing, ok := IsMissingSource(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, parent.Hash(), missing)

	_, queued := v.pool.Count()
	assert.Equal(t, 1, queued)

	// 父交易入池后，排队的子交易被重新处理
	_, err = v.ProcessTransaction(ctx, parent)
	require.NoError(t, err)

	pending, queued := v.pool.Count()
	assert.Equal(t, 2, pending)
	assert.Zero(t, queued)

	txs, err := v.pool.Find(ctx, []chainhash.Hash{child.Hash()})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestProcessTransactionTimeoutQueues(t *testing.T) {
	v := newValidatorFixture(t, func(opt *Options) {
		opt.WaitForInputs = true
		opt.ResolveTimeout = 30 * time.Millisecond
	})
	key := testKey(t, 0)
	parent := fundingTx(t, key, 5000)
	child := spendTx(t, key, parent, 0, 4000)

	_, err := v.ProcessTransaction(context.Background(), child)
	var timeout *ResolutionTimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.Equal(t, []chainhash.Hash{parent.Hash()}, timeout.Missing)

	assert.True(t, v.pool.Has(child.Hash()))
	assert.Zero(t, v.events.ListenerCount(InputAddedEvent(parent.Hash())))
}

func TestProcessTransactionWaitsForParent(t *testing.T) {
	v := newValidatorFixture(t, func(opt *Options) {
		opt.WaitForInputs = true
		opt.ResolveTimeout = 5 * time.Second
	})
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	saveAll(t, v.history, funding)
	parent := spendTx(t, key, funding, 0, 4000)
	child := spendTx(t, key, parent, 0, 3000)

	done := make(chan error, 1)
	go func() {
		_, err := v.ProcessTransaction(context.Background(), child)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return v.events.ListenerCount(InputAddedEvent(parent.Hash())) == 1
	}, time.Second, time.Millisecond)
	_, err := v.ProcessTransaction(context.Background(), parent)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("child was not accepted after its parent arrived")
	}
	assert.True(t, v.pool.Has(child.Hash()))
}

func TestPersist(t *testing.T) {
	v := newValidatorFixture(t, nil)
	ctx := context.Background()
	key := testKey(t, 0)

	funding := fundingTx(t, key, 5000)
	saveAll(t, v.history, funding)
	spend := spendTx(t, key, funding, 0, 4000)
	_, err := v.ProcessTransaction(ctx, spend)
	require.NoError(t, err)

	require.NoError(t, v.Persist(ctx, spend.Hash()))
	assert.False(t, v.pool.Has(spend.Hash()))
	_, err = v.history.GetTransaction(ctx, spend.Hash())
	require.NoError(t, err)

	assert.ErrorIs(t, v.Persist(ctx, spend.Hash()), ErrTxNotFound)

	// 已持久化的输出不能再次花费
	_, err = v.ProcessTransaction(ctx, spendTx(t, key, funding, 0, 3000))
	var conflict *ConflictingSpendError
	assert.True(t, errors.As(err, &conflict), "got %v", err)
}
