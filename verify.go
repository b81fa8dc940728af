package bpfsverify

import (
	"context"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SpendIndex 是持久化历史中按输出点查找花费交易的部分
type SpendIndex interface {
	FindConflicting(ctx context.Context, outpoints []wire.OutPoint, exclude chainhash.Hash) (chainhash.Hash, bool, error)
}

// VerifyResult 是一次验证的结果，成功时 Err 为 nil 且 Fee 为手续费
type VerifyResult struct {
	Fee *big.Int
	Err error
}

// TransactionVerifier 验证一笔独立交易：脚本、双花和金额守恒
type TransactionVerifier struct {
	tx     *wire.Transaction
	spends SpendIndex
	flags  txscript.ScriptFlags
}

// NewTransactionVerifier 返回交易 tx 的验证器。spends 为 nil 时跳过双花检查。
func NewTransactionVerifier(tx *wire.Transaction, spends SpendIndex, flags txscript.ScriptFlags) *TransactionVerifier {
	return &TransactionVerifier{tx: tx, spends: spends, flags: flags}
}

// Verify 使用已解析的先前输出验证交易，结果通过返回的通道送达。
// 任何失败都以类型化错误的形式出现在结果中，不会 panic。
func (v *TransactionVerifier) Verify(ctx context.Context, index ResolvedIndex) <-chan VerifyResult {
	result := make(chan VerifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- VerifyResult{Err: fmt.Errorf("verification aborted: %v", r)}
			}
		}()
		fee, err := v.verify(ctx, index)
		result <- VerifyResult{Fee: fee, Err: err}
	}()
	return result
}

func (v *TransactionVerifier) verify(ctx context.Context, index ResolvedIndex) (*big.Int, error) {
	tx := v.tx
	if tx.IsCoinBase() {
		return nil, ErrCoinbaseStandalone
	}

	ins := tx.Inputs()
	if err := checkDuplicateInputs(ins); err != nil {
		return nil, err
	}

	// The spend index lookup runs while the inputs are checked.
	var g errgroup.Group
	if v.spends != nil {
		outpoints := make([]wire.OutPoint, 0, len(ins))
		for i := range ins {
			if !ins[i].IsCoinBase() {
				outpoints = append(outpoints, ins[i].PreviousOutPoint)
			}
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("查找冲突交易中止: %v", r)
				}
			}()
			conflicting, found, err := v.spends.FindConflicting(ctx, outpoints, tx.Hash())
			if err != nil {
				return fmt.Errorf("查找冲突交易失败: %w", err)
			}
			if found {
				return &ConflictingSpendError{Conflicting: conflicting}
			}
			return nil
		})
	}

	valueIn, inErr := v.checkInputs(ins, index)
	conflictErr := g.Wait()
	if inErr != nil {
		return nil, inErr
	}
	if conflictErr != nil {
		return nil, conflictErr
	}

	valueOut := new(big.Int)
	for _, out := range tx.Outputs() {
		valueOut.Add(valueOut, new(big.Int).SetUint64(out.Value))
	}

	if valueIn.Cmp(valueOut) < 0 {
		return nil, &ValueConservationError{In: valueIn, Out: valueOut}
	}
	return valueIn.Sub(valueIn, valueOut), nil
}

// checkDuplicateInputs 拒绝多次引用同一输出点的交易
func checkDuplicateInputs(ins []wire.TxIn) error {
	seen := make(map[wire.OutPoint]struct{}, len(ins))
	for n := range ins {
		op := ins[n].PreviousOutPoint
		if _, ok := seen[op]; ok {
			return &MalformedTransactionError{Input: n, Reason: "duplicate outpoint"}
		}
		seen[op] = struct{}{}
	}
	return nil
}

// checkInputs 验证每个输入的脚本并返回输入总额
func (v *TransactionVerifier) checkInputs(ins []wire.TxIn, index ResolvedIndex) (*big.Int, error) {
	valueIn := new(big.Int)
	for n := range ins {
		op := ins[n].PreviousOutPoint
		prev, haveTx, haveOut := index.Lookup(op)
		if !haveTx {
			return nil, &MissingSourceError{Hash: op.Hash, Input: n}
		}
		if !haveOut {
			return nil, &MalformedTransactionError{
				Input:  n,
				Reason: fmt.Sprintf("source output index %d out of bounds", op.Index),
			}
		}

		if !txscript.VerifyScript(ins[n].SignatureScript, prev.PkScript, v.tx, n, v.flags, txscript.SigHashAll) {
			logrus.Debugf("[TransactionVerifier] tx %s input %d: script did not evaluate to true", v.tx.Hash(), n)
			return nil, &ScriptFailureError{Input: n}
		}

		valueIn.Add(valueIn, new(big.Int).SetUint64(prev.Value))
	}
	return valueIn, nil
}
