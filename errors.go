package bpfsverify

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/bpfsverify/wire"
)

var (
	// ErrCoinbaseStandalone 表示 coinbase 交易只能作为区块的一部分出现，不能单独验证。
	ErrCoinbaseStandalone = errors.New("coinbase tx are invalid unless part of a block")

	// ErrAlreadyKnown 表示交易已在内存池或历史中
	ErrAlreadyKnown = errors.New("transaction already known")

	// ErrNotStandard 表示交易不符合中继策略
	ErrNotStandard = errors.New("transaction is not standard")
)

// MissingSourceError 表示输入引用的先前交易尚未解析。
// 调用方可以在该哈希可用后重试验证。
type MissingSourceError struct {
	Hash  chainhash.Hash // 缺失的先前交易哈希
	Input int            // 引用它的输入索引
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("source tx %s for input %d not found", e.Hash, e.Input)
}

// MalformedTransactionError 表示交易结构性错误，例如引用的输出索引越界。
type MalformedTransactionError struct {
	Input  int
	Reason string
}

func (e *MalformedTransactionError) Error() string {
	return fmt.Sprintf("input %d: %s", e.Input, e.Reason)
}

// ConflictingSpendError 表示已有其他交易花费了相同的输出点。
type ConflictingSpendError struct {
	Conflicting chainhash.Hash // 已持久化的冲突交易
}

func (e *ConflictingSpendError) Error() string {
	return fmt.Sprintf("at least one referenced output has already been spent in tx %s", e.Conflicting)
}

// ResolutionTimeoutError 表示等待模式在超时前仍有未解析的先前交易。
type ResolutionTimeoutError struct {
	Missing []chainhash.Hash
}

func (e *ResolutionTimeoutError) Error() string {
	hashes := make([]string, len(e.Missing))
	for i := range e.Missing {
		hashes[i] = e.Missing[i].String()
	}
	return "missing inputs (timeout while searching): " + strings.Join(hashes, ", ")
}

// ValueConservationError 表示输出总额超过输入总额。
type ValueConservationError struct {
	In  *big.Int
	Out *big.Int
}

func (e *ValueConservationError) Error() string {
	return fmt.Sprintf("tx output value (%s) exceeds input value (%s)",
		wire.FormatBigValue(e.Out), wire.FormatBigValue(e.In))
}

// ScriptFailureError 表示某个输入的脚本未求值为 true。
type ScriptFailureError struct {
	Input int
}

func (e *ScriptFailureError) Error() string {
	return fmt.Sprintf("script for input %d did not evaluate to true", e.Input)
}

// IsMissingSource 报告 err 是否为缺失先前交易错误，若是则返回缺失的哈希。
func IsMissingSource(err error) (chainhash.Hash, bool) {
	var ms *MissingSourceError
	if errors.As(err, &ms) {
		return ms.Hash, true
	}
	return chainhash.Hash{}, false
}
