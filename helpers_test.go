package bpfsverify

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip32"
)

// fundingSeq 让每个测试资金交易引用不同的先前输出，从而拥有不同的哈希
var fundingSeq uint32

// testKey 从固定种子派生第 n 个私钥
func testKey(t *testing.T, n uint32) *btcec.PrivateKey {
	t.Helper()

	seed := bytes.Repeat([]byte{0x5c}, 32)
	master, err := bip32.NewMasterKey(seed)
	require.NoError(t, err)
	child, err := master.NewChildKey(bip32.FirstHardenedChild + n)
	require.NoError(t, err)

	priv, _ := btcec.PrivKeyFromBytes(child.Key)
	return priv
}

// p2pkh 返回压缩公钥的支付到公钥哈希锁定脚本
func p2pkh(t *testing.T, key *btcec.PrivateKey) []byte {
	t.Helper()

	script, err := txscript.PayToPubKeyHashScript(btcutil.Hash160(key.PubKey().SerializeCompressed()))
	require.NoError(t, err)
	return script
}

// fundingTx 返回一个向 key 支付 value 的非 coinbase 交易，它的输入不被验证
func fundingTx(t *testing.T, key *btcec.PrivateKey, value uint64) *wire.Transaction {
	t.Helper()

	seq := atomic.AddUint32(&fundingSeq, 1)
	prev := chainhash.DoubleHashH([]byte{byte(seq >> 24), byte(seq >> 16), byte(seq >> 8), byte(seq)})
	return wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), []byte{txscript.OP_TRUE})).
		AddTxOut(wire.NewTxOut(value, p2pkh(t, key))).
		Build()
}

// spendTx 返回花费 prev 第 idx 个输出、向 key 支付 value 的已签名交易
func spendTx(t *testing.T, key *btcec.PrivateKey, prev *wire.Transaction, idx uint32, value uint64) *wire.Transaction {
	t.Helper()

	hash := prev.Hash()
	unsigned := wire.NewBuilder().
		AddTxIn(wire.NewTxIn(wire.NewOutPoint(&hash, idx), nil)).
		AddTxOut(wire.NewTxOut(value, p2pkh(t, key))).
		Build()
	return signAll(t, key, unsigned, prev.Output(int(idx)).PkScript)
}

// signAll 用 key 为 tx 的每个输入签名，所有输入都锁定在 pkScript
func signAll(t *testing.T, key *btcec.PrivateKey, tx *wire.Transaction, pkScript []byte) *wire.Transaction {
	t.Helper()

	b := tx.Builder()
	for i := 0; i < tx.NumInputs(); i++ {
		sig, err := txscript.SignatureScript(tx, i, pkScript, txscript.SigHashAll, key, true)
		require.NoError(t, err, spew.Sdump(tx.Input(i)))
		b.SetSignatureScript(i, sig)
	}
	return b.Build()
}

// indexOf 返回包含给定交易全部输出的解析结果
func indexOf(txs ...*wire.Transaction) ResolvedIndex {
	index := make(ResolvedIndex)
	for _, tx := range txs {
		outs := make(map[uint32]wire.TxOut)
		for i, out := range tx.Outputs() {
			outs[uint32(i)] = out
		}
		index[tx.Hash()] = outs
	}
	return index
}

// newTestHistory 打开一个内存中的历史数据库
func newTestHistory(t *testing.T, events *Notifier) *History {
	t.Helper()

	h, err := OpenHistory("", events)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

// saveAll 依次持久化交易
func saveAll(t *testing.T, h *History, txs ...*wire.Transaction) {
	t.Helper()

	for _, tx := range txs {
		require.NoError(t, h.SaveTransaction(context.Background(), tx))
	}
}

// hexOf 返回交易序列化结果的十六进制编码
func hexOf(tx *wire.Transaction) string {
	return hex.EncodeToString(tx.Bytes())
}
