package bpfsverify

import (
	"encoding/hex"

	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
)

// StandardizedPrevOut 是输入引用的先前输出
type StandardizedPrevOut struct {
	Hash string `json:"hash"` // 显示字节序
	N    uint32 `json:"n"`
}

// StandardizedInput 是输入的展示形式
type StandardizedInput struct {
	PrevOut   StandardizedPrevOut `json:"prev_out"`
	Coinbase  string              `json:"coinbase,omitempty"`
	ScriptSig string              `json:"scriptSig,omitempty"`
}

// StandardizedOutput 是输出的展示形式
type StandardizedOutput struct {
	Value        string `json:"value"`
	ScriptPubKey string `json:"scriptPubKey"`
}

// StandardizedTx 是交易的 JSON 展示形式
type StandardizedTx struct {
	Hash     string               `json:"hash"`
	Version  int32                `json:"version"`
	LockTime uint32               `json:"lock_time"`
	Size     int                  `json:"size"`
	In       []StandardizedInput  `json:"in"`
	Out      []StandardizedOutput `json:"out"`
}

// Standardized 返回交易的展示形式。哈希按序列化字节序编码，先前输出哈希按显示字节序编码。
func Standardized(tx *wire.Transaction) *StandardizedTx {
	hash := tx.Hash()
	s := &StandardizedTx{
		Hash:     hex.EncodeToString(hash[:]),
		Version:  tx.Version(),
		LockTime: tx.LockTime(),
		Size:     tx.SerializeSize(),
		In:       make([]StandardizedInput, 0, tx.NumInputs()),
		Out:      make([]StandardizedOutput, 0, tx.NumOutputs()),
	}

	for _, in := range tx.Inputs() {
		si := StandardizedInput{
			PrevOut: StandardizedPrevOut{
				Hash: in.PreviousOutPoint.Hash.String(),
				N:    in.PreviousOutPoint.Index,
			},
		}
		if in.IsCoinBase() {
			si.Coinbase = hex.EncodeToString(in.SignatureScript)
		} else {
			// A malformed script still renders up to the first bad opcode.
			si.ScriptSig, _ = txscript.DisasmString(in.SignatureScript)
		}
		s.In = append(s.In, si)
	}

	for _, out := range tx.Outputs() {
		disasm, _ := txscript.DisasmString(out.PkScript)
		s.Out = append(s.Out, StandardizedOutput{
			Value:        wire.FormatValue(out.Value),
			ScriptPubKey: disasm,
		})
	}
	return s
}
