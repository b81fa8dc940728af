package bpfsverify

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifySync(t *testing.T, tx *wire.Transaction, spends SpendIndex, index ResolvedIndex) VerifyResult {
	t.Helper()
	return <-NewTransactionVerifier(tx, spends, 0).Verify(context.Background(), index)
}

func TestVerifyAcceptsSignedSpend(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	spend := spendTx(t, key, funding, 0, 4000)

	res := verifySync(t, spend, newTestHistory(t, nil), indexOf(funding))
	require.NoError(t, res.Err)
	assert.Equal(t, big.NewInt(1000), res.Fee)
}

func TestVerifyMultipleInputs(t *testing.T) {
	key := testKey(t, 0)
	a := fundingTx(t, key, 3000)
	b := fundingTx(t, key, 2000)
	ah, bh := a.Hash(), b.Hash()

	tx := signAll(t, key, wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&ah, 0), nil)).
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&bh, 0), nil)).
		AddTxOut(wire.NewTxOut(4500, p2pkh(t, testKey(t, 1)))).
		Build(), p2pkh(t, key))

	res := verifySync(t, tx, nil, indexOf(a, b))
	require.NoError(t, res.Err)
	assert.Equal(t, big.NewInt(500), res.Fee)
}

func TestVerifyZeroFee(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	spend := spendTx(t, key, funding, 0, 5000)

	res := verifySync(t, spend, nil, indexOf(funding))
	require.NoError(t, res.Err)
	assert.Zero(t, res.Fee.Sign())
}

func TestVerifyRejectsCoinbase(t *testing.T) {
	coinbase := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x04, 0x01})).
		AddTxOut(wire.NewTxOut(50, p2pkh(t, testKey(t, 0)))).
		Build()

	res := verifySync(t, coinbase, nil, ResolvedIndex{})
	assert.ErrorIs(t, res.Err, ErrCoinbaseStandalone)
	assert.EqualError(t, res.Err, "coinbase tx are invalid unless part of a block")
}

func TestVerifyMissingSource(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	spend := spendTx(t, key, funding, 0, 4000)

	res := verifySync(t, spend, nil, ResolvedIndex{})
	hash, ok := IsMissingSource(res.Err)
	require.True(t, ok, "got %v", res.Err)
	assert.Equal(t, funding.Hash(), hash)

	var ms *MissingSourceError
	require.True(t, errors.As(res.Err, &ms))
	assert.Equal(t, 0, ms.Input)
}

// A coinbase-marked input inside a spending transaction has no source.
func TestVerifyCoinbaseInputAmongOthers(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	fh := funding.Hash()

	tx := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fh, 0), nil)).
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), nil)).
		AddTxOut(wire.NewTxOut(10, p2pkh(t, key))).
		Build()
	tx = signAll(t, key, tx, p2pkh(t, key))

	res := verifySync(t, tx, nil, indexOf(funding))
	var ms *MissingSourceError
	require.True(t, errors.As(res.Err, &ms), "got %v", res.Err)
	assert.Equal(t, 1, ms.Input)
}

func TestVerifyOutputIndexOutOfBounds(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	fh := funding.Hash()

	tx := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fh, 7), []byte{txscript.OP_TRUE})).
		AddTxOut(wire.NewTxOut(10, p2pkh(t, key))).
		Build()

	index := ResolvedIndex{fh: {}}
	res := verifySync(t, tx, nil, index)
	var malformed *MalformedTransactionError
	require.True(t, errors.As(res.Err, &malformed), "got %v", res.Err)
	assert.Equal(t, 0, malformed.Input)
	assert.Contains(t, malformed.Error(), "source output index 7 out of bounds")
}

func TestVerifyScriptFailure(t *testing.T) {
	owner := testKey(t, 0)
	thief := testKey(t, 1)
	funding := fundingTx(t, owner, 5000)
	fh := funding.Hash()

	// 用错误的私钥签名
	tx := signAll(t, thief, wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fh, 0), nil)).
		AddTxOut(wire.NewTxOut(4000, p2pkh(t, thief))).
		Build(), funding.Output(0).PkScript)

	res := verifySync(t, tx, nil, indexOf(funding))
	var sf *ScriptFailureError
	require.True(t, errors.As(res.Err, &sf), "got %v", res.Err)
	assert.Equal(t, 0, sf.Input)

	// 签名之后修改输出
	spend := spendTx(t, owner, funding, 0, 4000)
	tampered := spend.Builder().AddTxOut(wire.NewTxOut(1, p2pkh(t, thief))).Build()
	res = verifySync(t, tampered, nil, indexOf(funding))
	require.True(t, errors.As(res.Err, &sf), "got %v", res.Err)
}

func TestVerifyValueConservation(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	spend := spendTx(t, key, funding, 0, 5001)

	res := verifySync(t, spend, nil, indexOf(funding))
	var vc *ValueConservationError
	require.True(t, errors.As(res.Err, &vc), "got %v", res.Err)
	assert.Equal(t, big.NewInt(5000), vc.In)
	assert.Equal(t, big.NewInt(5001), vc.Out)
	assert.Nil(t, res.Fee)
}

func TestVerifyDoubleSpend(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	first := spendTx(t, key, funding, 0, 4000)
	second := spendTx(t, key, funding, 0, 3000)

	history := newTestHistory(t, nil)
	saveAll(t, history, funding, first)

	res := verifySync(t, second, history, indexOf(funding))
	var conflict *ConflictingSpendError
	require.True(t, errors.As(res.Err, &conflict), "got %v", res.Err)
	assert.Equal(t, first.Hash(), conflict.Conflicting)

	// 已持久化的交易本身不与自己冲突
	res = verifySync(t, first, history, indexOf(funding))
	require.NoError(t, res.Err)
}

// Input errors are reported ahead of a conflicting spend.
func TestVerifyInputErrorBeforeConflict(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	first := spendTx(t, key, funding, 0, 4000)
	second := spendTx(t, key, funding, 0, 3000)

	history := newTestHistory(t, nil)
	saveAll(t, history, funding, first)

	res := verifySync(t, second, history, ResolvedIndex{})
	_, ok := IsMissingSource(res.Err)
	assert.True(t, ok, "got %v", res.Err)
}

func TestVerifyDuplicateOutpoint(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	fh := funding.Hash()

	// 两个输入引用同一输出，输入总额会被重复计算
	tx := signAll(t, key, wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fh, 0), nil)).
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fh, 0), nil)).
		AddTxOut(wire.NewTxOut(10000, p2pkh(t, key))).
		Build(), p2pkh(t, key))

	history := newTestHistory(t, nil)
	saveAll(t, history, funding)

	res := verifySync(t, tx, history, indexOf(funding))
	var malformed *MalformedTransactionError
	require.True(t, errors.As(res.Err, &malformed), "got %v", res.Err)
	assert.Equal(t, 1, malformed.Input)
	assert.Equal(t, "duplicate outpoint", malformed.Reason)
	assert.Nil(t, res.Fee)

	err := history.SaveTransaction(context.Background(), tx)
	require.True(t, errors.As(err, &malformed), "got %v", err)
	_, err = history.GetTransaction(context.Background(), tx.Hash())
	assert.ErrorIs(t, err, ErrTxNotFound)
}

type panickingSpends struct{}

func (panickingSpends) FindConflicting(context.Context, []wire.OutPoint, chainhash.Hash) (chainhash.Hash, bool, error) {
	panic("index corrupted")
}

func TestVerifySpendIndexPanic(t *testing.T) {
	key := testKey(t, 0)
	funding := fundingTx(t, key, 5000)
	spend := spendTx(t, key, funding, 0, 4000)

	res := verifySync(t, spend, panickingSpends{}, indexOf(funding))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "index corrupted")
	assert.Nil(t, res.Fee)
}
