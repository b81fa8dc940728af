package bpfsverify

import (
	"fmt"

	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
)

const (
	// maxStandardMultiSigKeys 是多重签名交易输出脚本中允许的最大公钥数量，以便将其视为标准。
	maxStandardMultiSigKeys = 3
)

// IsStandard 检查交易的每个解锁脚本和锁定脚本都属于可识别的形式。
// 这是中继策略而不是有效性规则，coinbase 输入不参与检查。
func IsStandard(tx *wire.Transaction) error {
	for i, in := range tx.Inputs() {
		if in.IsCoinBase() {
			continue
		}
		if err := checkSigScriptStandard(in.SignatureScript); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	for i, out := range tx.Outputs() {
		if err := checkPkScriptStandard(out.PkScript, txscript.GetScriptClass(out.PkScript)); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	return nil
}

// checkSigScriptStandard 确保解锁脚本只包含推送操作，并且符合一种已知的解锁形式。
func checkSigScriptStandard(sigScript []byte) error {
	if !txscript.IsPushOnlyScript(sigScript) {
		return fmt.Errorf("signature script is not push only")
	}
	if txscript.GetSigScriptClass(sigScript) == txscript.NonStandardTy {
		return fmt.Errorf("non-standard signature script form")
	}
	return nil
}

// checkPkScriptStandard 对交易输出脚本（公钥脚本）执行一系列检查，以确保它是“标准”公钥脚本。
// 标准公钥脚本是一种可识别的形式，对于多重签名脚本，仅包含 1 到 maxStandardMultiSigKeys 个公钥。
func checkPkScriptStandard(pkScript []byte, scriptClass txscript.ScriptClass) error {
	switch scriptClass {
	case txscript.MultiSigTy:
		numPubKeys, numSigs, err := txscript.CalcMultiSigStats(pkScript)
		if err != nil {
			return fmt.Errorf("multi-signature script parse failure: %v", err)
		}

		// 标准多重签名公钥脚本必须包含 1 到 maxStandardMultiSigKeys 个公钥。
		if numPubKeys < 1 {
			return fmt.Errorf("multi-signature script with no pubkeys")
		}
		if numPubKeys > maxStandardMultiSigKeys {
			return fmt.Errorf("multi-signature script with %d public keys which is more than the allowed max of %d", numPubKeys, maxStandardMultiSigKeys)
		}

		// 标准多重签名公钥脚本必须至少有 1 个签名，且签名数量不得多于可用公钥。
		if numSigs < 1 {
			return fmt.Errorf("multi-signature script with no signatures")
		}
		if numSigs > numPubKeys {
			return fmt.Errorf("multi-signature script with %d signatures which is more than the available %d public keys", numSigs, numPubKeys)
		}

	case txscript.NonStandardTy:
		return fmt.Errorf("non-standard script form")
	}

	return nil
}
