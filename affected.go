package bpfsverify

import (
	"encoding/hex"

	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
)

// AffectedIdentities 返回交易涉及的身份哈希，键为十六进制编码。
// 输出直接识别锁定脚本，输入通过 index 找到引用的输出后再识别。
// 无法识别的脚本被跳过。结果在交易上缓存，之后的调用忽略 index。
func AffectedIdentities(tx *wire.Transaction, index ResolvedIndex) map[string][]byte {
	ids := tx.Affected(func(tx *wire.Transaction) [][]byte {
		return computeAffected(tx, index)
	})

	affected := make(map[string][]byte, len(ids))
	for _, id := range ids {
		affected[hex.EncodeToString(id)] = id
	}
	return affected
}

func computeAffected(tx *wire.Transaction, index ResolvedIndex) [][]byte {
	var ids [][]byte
	seen := make(map[string]struct{})
	add := func(id []byte) {
		k := string(id)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		ids = append(ids, id)
	}

	for i, out := range tx.Outputs() {
		id := txscript.ExtractPubKeyHash(out.PkScript)
		if id == nil {
			logrus.Debugf("unable to determine affected identity for output %d of tx %s", i, tx.Hash())
			continue
		}
		add(id)
	}

	for i, in := range tx.Inputs() {
		if in.IsCoinBase() {
			continue
		}
		// The unlocking script does not always carry the public key, so the
		// identity comes from the referenced output.
		prev, _, ok := index.Lookup(in.PreviousOutPoint)
		if !ok {
			logrus.Debugf("unable to determine affected identity for input %d of tx %s: source output not resolved", i, tx.Hash())
			continue
		}
		id := txscript.ExtractPubKeyHash(prev.PkScript)
		if id == nil {
			logrus.Debugf("unable to determine affected identity for input %d of tx %s", i, tx.Hash())
			continue
		}
		add(id)
	}
	return ids
}
