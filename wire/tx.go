// 交易的数据模型：输出点、输入、输出以及不可变的交易实体。

package wire

import (
	"math"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// MaxPrevOutIndex 是 coinbase 输入使用的输出索引。
	MaxPrevOutIndex uint32 = math.MaxUint32

	// MaxTxInSequenceNum 是输入的默认序列号。
	MaxTxInSequenceNum uint32 = math.MaxUint32

	// TxVersion 是新建交易的默认版本。
	TxVersion int32 = 1
)

// OutPoint 标识一个先前交易的特定输出。
type OutPoint struct {
	Hash  chainhash.Hash // 先前交易的哈希
	Index uint32         // 输出索引
}

// NewOutPoint 返回一个新的输出点。
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{Hash: *hash, Index: index}
}

// IsCoinBase 返回输出点是否为 coinbase 标记（全零哈希且索引为 0xFFFFFFFF）。
func (o OutPoint) IsCoinBase() bool {
	return o.Index == MaxPrevOutIndex && o.Hash == (chainhash.Hash{})
}

// String 以 "hash:index" 的形式返回输出点。
func (o OutPoint) String() string {
	return o.Hash.String() + ":" + strconv.FormatUint(uint64(o.Index), 10)
}

// TxIn 交易输入
type TxIn struct {
	PreviousOutPoint OutPoint // 引用的先前输出
	SignatureScript  []byte   // 解锁脚本
	Sequence         uint32   // 序列号
}

// NewTxIn 返回一个新的交易输入，序列号为默认最大值。
func NewTxIn(prevOut *OutPoint, signatureScript []byte) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		SignatureScript:  signatureScript,
		Sequence:         MaxTxInSequenceNum,
	}
}

// IsCoinBase 返回输入是否为 coinbase 输入。
func (t *TxIn) IsCoinBase() bool {
	return t.PreviousOutPoint.IsCoinBase()
}

// SerializeSize 返回序列化输入所需的字节数。
func (t *TxIn) SerializeSize() int {
	// Outpoint Hash 32 bytes + Outpoint Index 4 bytes + Sequence 4 bytes +
	// serialized varint size for the length of SignatureScript +
	// SignatureScript bytes.
	return 40 + varIntSize(uint64(len(t.SignatureScript))) + len(t.SignatureScript)
}

func (t TxIn) clone() TxIn {
	t.SignatureScript = cloneBytes(t.SignatureScript)
	return t
}

// TxOut 交易输出
type TxOut struct {
	Value    uint64 // 最小货币单位的金额
	PkScript []byte // 锁定脚本
}

// NewTxOut 返回一个新的交易输出。
func NewTxOut(value uint64, pkScript []byte) *TxOut {
	return &TxOut{Value: value, PkScript: pkScript}
}

// SerializeSize 返回序列化输出所需的字节数。
func (t *TxOut) SerializeSize() int {
	// Value 8 bytes + serialized varint size for the length of PkScript +
	// PkScript bytes.
	return 8 + varIntSize(uint64(len(t.PkScript))) + len(t.PkScript)
}

func (t TxOut) clone() TxOut {
	t.PkScript = cloneBytes(t.PkScript)
	return t
}

// Transaction 是构造完成后不可变的交易实体。
// 输入和输出只能通过 Builder 或 NewTransaction 设置，因此缓存的哈希永远不会失效。
type Transaction struct {
	version  int32
	lockTime uint32
	txIn     []TxIn
	txOut    []TxOut

	hashOnce sync.Once
	hash     chainhash.Hash

	affectedOnce sync.Once
	affected     [][]byte
}

// NewTransaction 深拷贝给定的输入和输出并返回不可变交易。
func NewTransaction(version int32, txIn []TxIn, txOut []TxOut, lockTime uint32) *Transaction {
	tx := &Transaction{
		version:  version,
		lockTime: lockTime,
		txIn:     make([]TxIn, len(txIn)),
		txOut:    make([]TxOut, len(txOut)),
	}
	for i := range txIn {
		tx.txIn[i] = txIn[i].clone()
	}
	for i := range txOut {
		tx.txOut[i] = txOut[i].clone()
	}
	return tx
}

// Version 返回交易版本。
func (tx *Transaction) Version() int32 { return tx.version }

// LockTime 返回交易锁定时间。
func (tx *Transaction) LockTime() uint32 { return tx.lockTime }

// NumInputs 返回输入数量。
func (tx *Transaction) NumInputs() int { return len(tx.txIn) }

// NumOutputs 返回输出数量。
func (tx *Transaction) NumOutputs() int { return len(tx.txOut) }

// Input 返回第 i 个输入的副本。
func (tx *Transaction) Input(i int) TxIn { return tx.txIn[i].clone() }

// Output 返回第 i 个输出的副本。
func (tx *Transaction) Output(i int) TxOut { return tx.txOut[i].clone() }

// Inputs 返回所有输入的副本。
func (tx *Transaction) Inputs() []TxIn {
	ins := make([]TxIn, len(tx.txIn))
	for i := range tx.txIn {
		ins[i] = tx.txIn[i].clone()
	}
	return ins
}

// Outputs 返回所有输出的副本。
func (tx *Transaction) Outputs() []TxOut {
	outs := make([]TxOut, len(tx.txOut))
	for i := range tx.txOut {
		outs[i] = tx.txOut[i].clone()
	}
	return outs
}

// IsCoinBase 当且仅当交易只有一个输入且该输入是 coinbase 输入时返回 true。
func (tx *Transaction) IsCoinBase() bool {
	return len(tx.txIn) == 1 && tx.txIn[0].IsCoinBase()
}

// Hash 返回交易序列化结果的双重 SHA256 哈希。首次计算后缓存。
func (tx *Transaction) Hash() chainhash.Hash {
	tx.hashOnce.Do(func() {
		tx.hash = chainhash.DoubleHashH(tx.Bytes())
	})
	return tx.hash
}

// Affected 返回受该交易影响的身份哈希集合。
// 第一次调用时使用 compute 计算，之后直接返回缓存结果。
func (tx *Transaction) Affected(compute func(*Transaction) [][]byte) [][]byte {
	tx.affectedOnce.Do(func() {
		tx.affected = compute(tx)
	})
	return tx.affected
}

// CheckHash 重新计算交易哈希并与声明的哈希进行比较。
func (tx *Transaction) CheckHash(expected chainhash.Hash) bool {
	return chainhash.DoubleHashH(tx.Bytes()) == expected
}

// SerializeSize 返回序列化交易所需的字节数。
func (tx *Transaction) SerializeSize() int {
	// Version 4 bytes + LockTime 4 bytes + Serialized varint size for the
	// number of transaction inputs and outputs.
	n := 8 + varIntSize(uint64(len(tx.txIn))) + varIntSize(uint64(len(tx.txOut)))
	for i := range tx.txIn {
		n += tx.txIn[i].SerializeSize()
	}
	for i := range tx.txOut {
		n += tx.txOut[i].SerializeSize()
	}
	return n
}

// PreviousHashes 返回所有非 coinbase 输入引用的先前交易哈希（去重，保持首次出现的顺序），
// 以及每个哈希需要的输出索引。
func (tx *Transaction) PreviousHashes() ([]chainhash.Hash, map[chainhash.Hash]map[uint32]struct{}) {
	var hashes []chainhash.Hash
	required := make(map[chainhash.Hash]map[uint32]struct{})
	for i := range tx.txIn {
		op := tx.txIn[i].PreviousOutPoint
		if op.IsCoinBase() {
			continue
		}
		outs, ok := required[op.Hash]
		if !ok {
			outs = make(map[uint32]struct{})
			required[op.Hash] = outs
			hashes = append(hashes, op.Hash)
		}
		outs[op.Index] = struct{}{}
	}
	return hashes, required
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
