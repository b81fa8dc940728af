// 交易的规范二进制编码：所有多字节整数均为小端序，计数和脚本长度为 varint。

package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	btcwire "github.com/btcsuite/btcd/wire"
)

const (
	// pver 传递给 btcd varint 辅助函数的协议版本，对编码无影响。
	pver = 0

	// MaxScriptSize 是反序列化时允许的最大脚本长度。
	MaxScriptSize = 10000

	// maxTxInOut 限制反序列化时的输入/输出数量，避免恶意计数导致的大量分配。
	maxTxInOut = 1 << 16
)

// ErrMalformed 表示交易字节无法解码。
var ErrMalformed = errors.New("malformed transaction")

func varIntSize(v uint64) int {
	return btcwire.VarIntSerializeSize(v)
}

// Serialize 将交易以规范格式写入 w。
func (tx *Transaction) Serialize(w io.Writer) error {
	var buf [8]byte

	binary.LittleEndian.PutUint32(buf[:4], uint32(tx.version))
	if _, err := w.Write(buf[:4]); err != nil {
		return err
	}

	if err := btcwire.WriteVarInt(w, pver, uint64(len(tx.txIn))); err != nil {
		return err
	}
	for i := range tx.txIn {
		if err := writeTxIn(w, &tx.txIn[i]); err != nil {
			return err
		}
	}

	if err := btcwire.WriteVarInt(w, pver, uint64(len(tx.txOut))); err != nil {
		return err
	}
	for i := range tx.txOut {
		if err := writeTxOut(w, &tx.txOut[i]); err != nil {
			return err
		}
	}

	binary.LittleEndian.PutUint32(buf[:4], tx.lockTime)
	_, err := w.Write(buf[:4])
	return err
}

// Bytes 返回交易的规范序列化字节。
func (tx *Transaction) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
	// Writes to a bytes.Buffer never fail.
	_ = tx.Serialize(buf)
	return buf.Bytes()
}

func writeTxIn(w io.Writer, ti *TxIn) error {
	if _, err := w.Write(ti.PreviousOutPoint.Hash[:]); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], ti.PreviousOutPoint.Index)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	if err := btcwire.WriteVarBytes(w, pver, ti.SignatureScript); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[:], ti.Sequence)
	_, err := w.Write(buf[:])
	return err
}

func writeTxOut(w io.Writer, to *TxOut) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], to.Value)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	return btcwire.WriteVarBytes(w, pver, to.PkScript)
}

// Deserialize 从 r 中读取一个规范格式的交易。
func Deserialize(r io.Reader) (*Transaction, error) {
	var buf [8]byte

	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrMalformed, err)
	}
	version := int32(binary.LittleEndian.Uint32(buf[:4]))

	count, err := btcwire.ReadVarInt(r, pver)
	if err != nil {
		return nil, fmt.Errorf("%w: input count: %v", ErrMalformed, err)
	}
	if count > maxTxInOut {
		return nil, fmt.Errorf("%w: too many inputs %d", ErrMalformed, count)
	}
	txIn := make([]TxIn, count)
	for i := range txIn {
		ti := &txIn[i]
		if _, err := io.ReadFull(r, ti.PreviousOutPoint.Hash[:]); err != nil {
			return nil, fmt.Errorf("%w: input %d outpoint: %v", ErrMalformed, i, err)
		}
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return nil, fmt.Errorf("%w: input %d index: %v", ErrMalformed, i, err)
		}
		ti.PreviousOutPoint.Index = binary.LittleEndian.Uint32(buf[:4])
		ti.SignatureScript, err = btcwire.ReadVarBytes(r, pver, MaxScriptSize, "signature script")
		if err != nil {
			return nil, fmt.Errorf("%w: input %d script: %v", ErrMalformed, i, err)
		}
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return nil, fmt.Errorf("%w: input %d sequence: %v", ErrMalformed, i, err)
		}
		ti.Sequence = binary.LittleEndian.Uint32(buf[:4])
	}

	count, err = btcwire.ReadVarInt(r, pver)
	if err != nil {
		return nil, fmt.Errorf("%w: output count: %v", ErrMalformed, err)
	}
	if count > maxTxInOut {
		return nil, fmt.Errorf("%w: too many outputs %d", ErrMalformed, count)
	}
	txOut := make([]TxOut, count)
	for i := range txOut {
		to := &txOut[i]
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return nil, fmt.Errorf("%w: output %d value: %v", ErrMalformed, i, err)
		}
		to.Value = binary.LittleEndian.Uint64(buf[:8])
		to.PkScript, err = btcwire.ReadVarBytes(r, pver, MaxScriptSize, "public key script")
		if err != nil {
			return nil, fmt.Errorf("%w: output %d script: %v", ErrMalformed, i, err)
		}
	}

	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		return nil, fmt.Errorf("%w: lock time: %v", ErrMalformed, err)
	}

	return &Transaction{
		version:  version,
		lockTime: binary.LittleEndian.Uint32(buf[:4]),
		txIn:     txIn,
		txOut:    txOut,
	}, nil
}

// FromBytes 解码完整的交易字节，不允许存在尾随数据。
func FromBytes(b []byte) (*Transaction, error) {
	r := bytes.NewReader(b)
	tx, err := Deserialize(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return tx, nil
}

// FromHex 解码十六进制编码的交易。
func FromHex(s string) (*Transaction, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromBytes(b)
}
