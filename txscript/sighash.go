// 签名哈希：按签名哈希类型屏蔽交易的部分内容后计算待签名摘要，并验证签名。

package txscript

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/wire"
)

// SigHashType 表示签名末尾的哈希类型位。
type SigHashType uint32

// 签名哈希类型。
const (
	SigHashAll          SigHashType = 0x1
	SigHashNone         SigHashType = 0x2
	SigHashSingle       SigHashType = 0x3
	SigHashAnyOneCanPay SigHashType = 0x80

	// sigHashMask 定义用于识别签名哈希基本类型的位数。
	sigHashMask = 0x1f
)

// String 返回签名哈希类型的可读名称。
func (t SigHashType) String() string {
	var name string
	switch t & sigHashMask {
	case SigHashAll:
		name = "ALL"
	case SigHashNone:
		name = "NONE"
	case SigHashSingle:
		name = "SINGLE"
	default:
		name = fmt.Sprintf("0x%x", uint32(t&sigHashMask))
	}
	if t&SigHashAnyOneCanPay != 0 {
		name += "|ANYONECANPAY"
	}
	return name
}

// CalcSignatureHash 计算交易第 idx 个输入在给定子脚本和签名哈希类型下的待签名摘要。
//
// 交易的副本中：子脚本去掉所有 OP_CODESEPARATOR 后作为第 idx 个输入的解锁脚本，其余输入的解锁脚本清空；
// 随后按哈希类型屏蔽输出与输入，序列化后追加 4 字节小端序的哈希类型，并返回双重 SHA256。
func CalcSignatureHash(script []byte, hashType SigHashType, tx *wire.Transaction, idx int) ([]byte, error) {
	if idx < 0 || idx >= tx.NumInputs() {
		str := fmt.Sprintf("transaction input index %d is negative or >= %d", idx, tx.NumInputs())
		return nil, scriptError(ErrInvalidIndex, str)
	}
	if hashType&sigHashMask == SigHashSingle && idx >= tx.NumOutputs() {
		str := fmt.Sprintf("attempt to sign single input at index %d >= %d outputs", idx, tx.NumOutputs())
		return nil, scriptError(ErrInvalidSigHashSingleIndex, str)
	}

	pops, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	subScript := unparseScript(removeOpcode(pops, OP_CODESEPARATOR))

	txIns := tx.Inputs()
	for i := range txIns {
		if i == idx {
			txIns[i].SignatureScript = subScript
		} else {
			txIns[i].SignatureScript = nil
		}
	}
	txOuts := tx.Outputs()

	switch hashType & sigHashMask {
	case SigHashNone:
		txOuts = txOuts[:0]
		for i := range txIns {
			if i != idx {
				txIns[i].Sequence = 0
			}
		}

	case SigHashSingle:
		txOuts = txOuts[:idx+1]
		for i := 0; i < idx; i++ {
			txOuts[i].Value = math.MaxUint64
			txOuts[i].PkScript = nil
		}
	}

	if hashType&SigHashAnyOneCanPay != 0 {
		txIns = txIns[idx : idx+1]
	}

	masked := wire.NewTransaction(tx.Version(), txIns, txOuts, tx.LockTime())
	preimage := make([]byte, 0, masked.SerializeSize()+4)
	preimage = append(preimage, masked.Bytes()...)
	preimage = binary.LittleEndian.AppendUint32(preimage, uint32(hashType))

	return chainhash.DoubleHashB(preimage), nil
}

// checkSignature 验证 sig 是否为 pkBytes 对交易第 idx 个输入的有效签名。
// sig 的最后一个字节为哈希类型；hashType 为 0 时直接采用该字节，否则两者必须一致。
// 签名或公钥无法解析时返回 false；只有计算签名哈希失败时返回错误。
func checkSignature(sig, pkBytes, subScript []byte, tx *wire.Transaction, idx int, hashType SigHashType) (bool, error) {
	if len(sig) == 0 || tx == nil {
		return false, nil
	}

	sigHashType := SigHashType(sig[len(sig)-1])
	if hashType != 0 && sigHashType != hashType {
		return false, nil
	}
	sig = sig[:len(sig)-1]

	hash, err := CalcSignatureHash(subScript, sigHashType, tx, idx)
	if err != nil {
		return false, err
	}

	pubKey, err := btcec.ParsePubKey(pkBytes)
	if err != nil {
		return false, nil
	}
	signature, err := ecdsa.ParseSignature(sig)
	if err != nil {
		return false, nil
	}

	return signature.Verify(hash, pubKey), nil
}
