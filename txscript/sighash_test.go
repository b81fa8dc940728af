// 包含签名哈希计算的测试代码。

package txscript

import (
	"testing"

	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/stretchr/testify/require"
)

// TestCalcSignatureHashDistinct 确保不同的哈希类型对同一交易产生不同的摘要。
func TestCalcSignatureHashDistinct(t *testing.T) {
	t.Parallel()

	tx := spendingTx(3, 3)
	script := mustParseShortForm("DUP HASH160 [0102030405060708090a0b0c0d0e0f1011121314] EQUALVERIFY CHECKSIG")

	hashTypes := []SigHashType{
		SigHashAll,
		SigHashNone,
		SigHashSingle,
		SigHashAll | SigHashAnyOneCanPay,
		SigHashNone | SigHashAnyOneCanPay,
		SigHashSingle | SigHashAnyOneCanPay,
	}

	seen := make(map[string]SigHashType)
	for _, hashType := range hashTypes {
		hash, err := CalcSignatureHash(script, hashType, tx, 1)
		require.NoError(t, err)
		require.Len(t, hash, 32)

		if prev, ok := seen[string(hash)]; ok {
			t.Fatalf("%v and %v produced the same digest", prev, hashType)
		}
		seen[string(hash)] = hashType
	}
}

// TestCalcSignatureHashMasking 确保被哈希类型屏蔽的字段不影响摘要，而未屏蔽的字段会影响摘要。
func TestCalcSignatureHashMasking(t *testing.T) {
	t.Parallel()

	tx := spendingTx(2, 2)
	script := mustParseShortForm("1")

	digest := func(tx *wire.Transaction, hashType SigHashType) []byte {
		t.Helper()
		hash, err := CalcSignatureHash(script, hashType, tx, 0)
		require.NoError(t, err)
		return hash
	}

	// Change the second output.
	outs := tx.Outputs()
	outs[1].Value++
	changedOut := wire.NewTransaction(tx.Version(), tx.Inputs(), outs, tx.LockTime())

	require.NotEqual(t, digest(tx, SigHashAll), digest(changedOut, SigHashAll))
	require.Equal(t, digest(tx, SigHashNone), digest(changedOut, SigHashNone))
	require.Equal(t, digest(tx, SigHashSingle), digest(changedOut, SigHashSingle))

	// Change the sequence of the second input.
	ins := tx.Inputs()
	ins[1].Sequence = 7
	changedSeq := wire.NewTransaction(tx.Version(), ins, tx.Outputs(), tx.LockTime())

	require.NotEqual(t, digest(tx, SigHashAll), digest(changedSeq, SigHashAll))
	require.Equal(t, digest(tx, SigHashNone), digest(changedSeq, SigHashNone))
	require.Equal(t, digest(tx, SigHashAll|SigHashAnyOneCanPay),
		digest(changedSeq, SigHashAll|SigHashAnyOneCanPay))

	// Other inputs' unlocking scripts are always blanked.
	changedSig := tx.Builder().SetSignatureScript(1, []byte{OP_TRUE}).Build()
	require.Equal(t, digest(tx, SigHashAll), digest(changedSig, SigHashAll))

	// Drop the second input entirely.
	single := wire.NewTransaction(tx.Version(), tx.Inputs()[:1], tx.Outputs(), tx.LockTime())
	require.NotEqual(t, digest(tx, SigHashAll), digest(single, SigHashAll))
	require.Equal(t, digest(tx, SigHashAll|SigHashAnyOneCanPay),
		digest(single, SigHashAll|SigHashAnyOneCanPay))
}

// TestCalcSignatureHashCodeSeparator 确保子脚本中的 OP_CODESEPARATOR 在计算摘要前被移除。
func TestCalcSignatureHashCodeSeparator(t *testing.T) {
	t.Parallel()

	tx := spendingTx(1, 1)
	with, err := CalcSignatureHash(mustParseShortForm("1 CODESEPARATOR 2 CODESEPARATOR"), SigHashAll, tx, 0)
	require.NoError(t, err)
	without, err := CalcSignatureHash(mustParseShortForm("1 2"), SigHashAll, tx, 0)
	require.NoError(t, err)
	require.Equal(t, with, without)
}

// TestCalcSignatureHashErrors 确保无效的输入索引被拒绝。
func TestCalcSignatureHashErrors(t *testing.T) {
	t.Parallel()

	tx := spendingTx(3, 2)
	script := mustParseShortForm("1")

	_, err := CalcSignatureHash(script, SigHashAll, tx, 3)
	require.True(t, IsErrorCode(err, ErrInvalidIndex), "got %v", err)

	_, err = CalcSignatureHash(script, SigHashAll, tx, -1)
	require.True(t, IsErrorCode(err, ErrInvalidIndex), "got %v", err)

	_, err = CalcSignatureHash(script, SigHashSingle, tx, 2)
	require.True(t, IsErrorCode(err, ErrInvalidSigHashSingleIndex), "got %v", err)

	_, err = CalcSignatureHash(script, SigHashSingle|SigHashAnyOneCanPay, tx, 2)
	require.True(t, IsErrorCode(err, ErrInvalidSigHashSingleIndex), "got %v", err)

	_, err = CalcSignatureHash(script, SigHashSingle, tx, 1)
	require.NoError(t, err)
}

// TestSigHashTypeString 确保哈希类型的名称可读。
func TestSigHashTypeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ALL", SigHashAll.String())
	require.Equal(t, "NONE|ANYONECANPAY", (SigHashNone | SigHashAnyOneCanPay).String())
	require.Equal(t, "SINGLE", SigHashSingle.String())
	require.Equal(t, "0x0", SigHashType(0).String())
}
