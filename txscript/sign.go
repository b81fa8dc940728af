// 签名辅助函数：为交易输入生成签名及解锁脚本。

package txscript

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/qinglongcn/bpfsverify/wire"
)

// RawTxInSignature 返回交易第 idx 个输入对 subScript 的 DER 签名，末尾附加哈希类型字节。
func RawTxInSignature(tx *wire.Transaction, idx int, subScript []byte,
	hashType SigHashType, key *btcec.PrivateKey) ([]byte, error) {

	hash, err := CalcSignatureHash(subScript, hashType, tx, idx)
	if err != nil {
		return nil, err
	}
	signature := ecdsa.Sign(key, hash)

	return append(signature.Serialize(), byte(hashType)), nil
}

// SignatureScript 为支付到公钥哈希的输出创建解锁脚本：<签名> <公钥>。
// compress 决定推送压缩还是未压缩的公钥，它必须与锁定脚本中哈希的公钥格式一致。
func SignatureScript(tx *wire.Transaction, idx int, subscript []byte,
	hashType SigHashType, privKey *btcec.PrivateKey, compress bool) ([]byte, error) {

	sig, err := RawTxInSignature(tx, idx, subscript, hashType, privKey)
	if err != nil {
		return nil, err
	}

	pk := privKey.PubKey()
	var pkData []byte
	if compress {
		pkData = pk.SerializeCompressed()
	} else {
		pkData = pk.SerializeUncompressed()
	}

	return NewScriptBuilder().AddData(sig).AddData(pkData).Script()
}

// p2pkSignatureScript 为支付到公钥的输出创建只包含签名的解锁脚本。
func p2pkSignatureScript(tx *wire.Transaction, idx int, subScript []byte,
	hashType SigHashType, privKey *btcec.PrivateKey) ([]byte, error) {

	sig, err := RawTxInSignature(tx, idx, subScript, hashType, privKey)
	if err != nil {
		return nil, err
	}

	return NewScriptBuilder().AddData(sig).Script()
}

// SignTxOutput 根据锁定脚本的类别为交易第 idx 个输入生成解锁脚本。
// 目前支持支付到公钥哈希与支付到公钥两种类别，其余类别返回 ErrUnsupportedAddress。
func SignTxOutput(tx *wire.Transaction, idx int, pkScript []byte,
	hashType SigHashType, privKey *btcec.PrivateKey, compress bool) ([]byte, error) {

	switch GetScriptClass(pkScript) {
	case PubKeyHashTy:
		return SignatureScript(tx, idx, pkScript, hashType, privKey, compress)
	case PubKeyTy:
		return p2pkSignatureScript(tx, idx, pkScript, hashType, privKey)
	}

	str := "unable to sign output with script class " + GetScriptClass(pkScript).String()
	return nil, scriptError(ErrUnsupportedAddress, str)
}
