// 包含识别和处理标准交易类型的函数。

package txscript

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// MaxDataCarrierSize 是 OP_RETURN 输出中推送数据允许的最大字节数。
const MaxDataCarrierSize = 80

// ScriptClass 是脚本标准类型列表的枚举。
type ScriptClass byte

// 已知的脚本类别。
const (
	NonStandardTy ScriptClass = iota // 没有任何公认的形式。
	PubKeyTy                         // 支付 pubkey。
	PubKeyHashTy                     // 支付公钥哈希值。
	ScriptHashTy                     // 支付脚本哈希。
	MultiSigTy                       // 多重签名。
	NullDataTy                       // 只有空数据（可证明可剪枝）。
)

// scriptClassToName 包含描述每个脚本类的字符串。
var scriptClassToName = []string{
	NonStandardTy: "nonstandard",
	PubKeyTy:      "pubkey",
	PubKeyHashTy:  "pubkeyhash",
	ScriptHashTy:  "scripthash",
	MultiSigTy:    "multisig",
	NullDataTy:    "nulldata",
}

// String 通过返回枚举脚本类的名称来实现 Stringer 接口。如果枚举无效，则返回 "Invalid"。
func (t ScriptClass) String() string {
	if int(t) >= len(scriptClassToName) {
		return "Invalid"
	}
	return scriptClassToName[t]
}

// extractCompressedPubKey 从传递的脚本中提取压缩公钥。 否则将返回 nil。
func extractCompressedPubKey(script []byte) []byte {
	// A pay-to-compressed-pubkey script is of the form:
	//  OP_DATA_33 <33-byte compressed pubkey> OP_CHECKSIG

	// All compressed secp256k1 public keys must start with 0x02 or 0x03.
	if len(script) == 35 &&
		script[34] == OP_CHECKSIG &&
		script[0] == OP_DATA_33 &&
		(script[1] == 0x02 || script[1] == 0x03) {

		return script[1:34]
	}

	return nil
}

// extractUncompressedPubKey 从传递的脚本中提取未压缩的公钥。 否则将返回 nil。
func extractUncompressedPubKey(script []byte) []byte {
	// A pay-to-uncompressed-pubkey script is of the form:
	//   OP_DATA_65 <65-byte uncompressed pubkey> OP_CHECKSIG
	//
	// All non-hybrid uncompressed secp256k1 public keys must start with 0x04.
	// Hybrid uncompressed secp256k1 public keys start with 0x06 or 0x07.
	if len(script) == 67 &&
		script[66] == OP_CHECKSIG &&
		script[0] == OP_DATA_65 &&
		(script[1] == 0x04 || script[1] == 0x06 || script[1] == 0x07) {

		return script[1:66]
	}
	return nil
}

// extractPubKey 从支付到公钥脚本中提取压缩或未压缩的公钥。 否则将返回 nil。
func extractPubKey(script []byte) []byte {
	if pubKey := extractCompressedPubKey(script); pubKey != nil {
		return pubKey
	}
	return extractUncompressedPubKey(script)
}

// extractPubKeyHash 从标准的支付到公钥哈希脚本中提取公钥哈希值。 否则将返回 nil。
func extractPubKeyHash(script []byte) []byte {
	// A pay-to-pubkey-hash script is of the form:
	//  OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG
	if len(script) == 25 &&
		script[0] == OP_DUP &&
		script[1] == OP_HASH160 &&
		script[2] == OP_DATA_20 &&
		script[23] == OP_EQUALVERIFY &&
		script[24] == OP_CHECKSIG {

		return script[3:23]
	}

	return nil
}

// extractScriptHash 从标准的支付到脚本哈希脚本中提取脚本哈希值。 否则将返回 nil。
func extractScriptHash(script []byte) []byte {
	// A pay-to-script-hash script is of the form:
	//  OP_HASH160 <20-byte scripthash> OP_EQUAL
	if len(script) == 23 &&
		script[0] == OP_HASH160 &&
		script[1] == OP_DATA_20 &&
		script[22] == OP_EQUAL {

		return script[2:22]
	}

	return nil
}

// isSmallInt 返回操作码是否为 OP_0 或 OP_1-OP_16。
func isSmallInt(op byte) bool {
	return op == OP_0 || (op >= OP_1 && op <= OP_16)
}

// asSmallInt 返回小整数操作码表示的值。
func asSmallInt(op byte) int {
	if op == OP_0 {
		return 0
	}
	return int(op - (OP_1 - 1))
}

// multiSigDetails 包含从标准多重签名脚本中提取的详细信息。
type multiSigDetails struct {
	requiredSigs int
	numPubKeys   int
	pubKeys      [][]byte
	valid        bool
}

// extractMultisigScriptDetails 尝试从标准多重签名脚本中提取所需签名数、公钥数以及公钥。
func extractMultisigScriptDetails(script []byte) multiSigDetails {
	// A multi-signature script is of the form:
	//  NUM_SIGS PUBKEY PUBKEY PUBKEY ... NUM_PUBKEYS OP_CHECKMULTISIG
	pops, err := parseScript(script)
	if err != nil || len(pops) < 4 {
		return multiSigDetails{}
	}

	first := pops[0].opcode.value
	if !isSmallInt(first) {
		return multiSigDetails{}
	}
	requiredSigs := asSmallInt(first)

	last := pops[len(pops)-1].opcode.value
	if last != OP_CHECKMULTISIG {
		return multiSigDetails{}
	}
	numOp := pops[len(pops)-2].opcode.value
	if !isSmallInt(numOp) {
		return multiSigDetails{}
	}
	numPubKeys := asSmallInt(numOp)

	keys := pops[1 : len(pops)-2]
	if len(keys) != numPubKeys || numPubKeys < requiredSigs {
		return multiSigDetails{}
	}
	pubKeys := make([][]byte, 0, len(keys))
	for _, pop := range keys {
		if len(pop.data) != 33 && len(pop.data) != 65 {
			return multiSigDetails{}
		}
		pubKeys = append(pubKeys, pop.data)
	}

	return multiSigDetails{
		requiredSigs: requiredSigs,
		numPubKeys:   numPubKeys,
		pubKeys:      pubKeys,
		valid:        true,
	}
}

// CalcMultiSigStats 返回多重签名脚本中的公钥数量和所需签名数量。
func CalcMultiSigStats(script []byte) (int, int, error) {
	details := extractMultisigScriptDetails(script)
	if !details.valid {
		str := fmt.Sprintf("script %x is not a multisig script", script)
		return 0, 0, scriptError(ErrNotMultisigScript, str)
	}
	return details.numPubKeys, details.requiredSigs, nil
}

// isNullDataScript 返回脚本是否为 OP_RETURN 后跟可选的一次数据推送。
func isNullDataScript(script []byte) bool {
	// The script can't possibly be a null data script if it doesn't start
	// with OP_RETURN.  Fail fast to avoid more work below.
	if len(script) < 1 || script[0] != OP_RETURN {
		return false
	}

	// Single OP_RETURN.
	if len(script) == 1 {
		return true
	}

	// OP_RETURN followed by data push up to MaxDataCarrierSize bytes.
	pops, err := parseScript(script[1:])
	return err == nil && len(pops) == 1 && pops[0].isPush() &&
		len(pops[0].data) <= MaxDataCarrierSize
}

// GetScriptClass 返回锁定脚本的类别。 当脚本无法解析时，将返回 NonStandardTy。
func GetScriptClass(script []byte) ScriptClass {
	switch {
	case extractPubKey(script) != nil:
		return PubKeyTy
	case extractPubKeyHash(script) != nil:
		return PubKeyHashTy
	case extractScriptHash(script) != nil:
		return ScriptHashTy
	case extractMultisigScriptDetails(script).valid:
		return MultiSigTy
	case isNullDataScript(script):
		return NullDataTy
	}
	return NonStandardTy
}

// GetSigScriptClass 返回解锁脚本的类别：
// 只推送签名的为 PubKeyTy，推送签名和公钥的为 PubKeyHashTy，以 OP_0 开头后跟签名的为 MultiSigTy。
// 其余形式均为 NonStandardTy。
func GetSigScriptClass(script []byte) ScriptClass {
	pops, err := parseScript(script)
	if err != nil || len(pops) == 0 || !isPushOnly(pops) {
		return NonStandardTy
	}

	switch {
	case pops[0].opcode.value == OP_0:
		if len(pops) < 2 {
			return NonStandardTy
		}
		for _, pop := range pops[1:] {
			if !pop.isDataPush() {
				return NonStandardTy
			}
		}
		return MultiSigTy

	case len(pops) == 1 && pops[0].isDataPush():
		return PubKeyTy

	case len(pops) == 2 && pops[0].isDataPush() &&
		(len(pops[1].data) == 33 || len(pops[1].data) == 65):
		return PubKeyHashTy
	}
	return NonStandardTy
}

// ExtractPubKeyHash 返回锁定脚本直接支付的 20 字节身份哈希：
// 支付到公钥哈希脚本返回其中的哈希，支付到公钥脚本返回该公钥的 Hash160。
// 其他脚本返回 nil。
func ExtractPubKeyHash(pkScript []byte) []byte {
	if hash := extractPubKeyHash(pkScript); hash != nil {
		return hash
	}
	if pubKey := extractPubKey(pkScript); pubKey != nil {
		return btcutil.Hash160(pubKey)
	}
	return nil
}

// PayToPubKeyHashScript 创建一个新脚本，用于将交易输出付给一个 20 字节的公钥哈希值。
func PayToPubKeyHashScript(pubKeyHash []byte) ([]byte, error) {
	return NewScriptBuilder().AddOp(OP_DUP).AddOp(OP_HASH160).
		AddData(pubKeyHash).AddOp(OP_EQUALVERIFY).AddOp(OP_CHECKSIG).
		Script()
}

// PayToPubKeyScript 创建一个新脚本，用于将交易输出付给公钥。
func PayToPubKeyScript(serializedPubKey []byte) ([]byte, error) {
	return NewScriptBuilder().AddData(serializedPubKey).
		AddOp(OP_CHECKSIG).Script()
}

// PayToAddrScript 创建一个新脚本，用于向指定地址支付交易输出。
func PayToAddrScript(addr btcutil.Address) ([]byte, error) {
	const nilAddrErrStr = "unable to generate payment script for nil address"

	switch addr := addr.(type) {
	case *btcutil.AddressPubKeyHash:
		if addr == nil {
			return nil, scriptError(ErrUnsupportedAddress, nilAddrErrStr)
		}
		return PayToPubKeyHashScript(addr.ScriptAddress())

	case *btcutil.AddressPubKey:
		if addr == nil {
			return nil, scriptError(ErrUnsupportedAddress, nilAddrErrStr)
		}
		return PayToPubKeyScript(addr.ScriptAddress())
	}

	str := "unable to generate payment script for unsupported address type"
	return nil, scriptError(ErrUnsupportedAddress, str)
}

// NullDataScript 创建一个 OP_RETURN 脚本携带 data。数据超过 MaxDataCarrierSize 时返回错误。
func NullDataScript(data []byte) ([]byte, error) {
	if len(data) > MaxDataCarrierSize {
		str := "data size exceeds max allowed size"
		return nil, scriptError(ErrOutOfBounds, str)
	}

	return NewScriptBuilder().AddOp(OP_RETURN).AddData(data).Script()
}

// MultiSigScript 返回需要 nrequired 个签名的多重签名锁定脚本。
func MultiSigScript(pubkeys []*btcutil.AddressPubKey, nrequired int) ([]byte, error) {
	if len(pubkeys) < nrequired {
		str := "unable to generate multisig script with more required signatures than pubkeys"
		return nil, scriptError(ErrTooManyRequiredSigs, str)
	}

	builder := NewScriptBuilder().AddInt64(int64(nrequired))
	for _, key := range pubkeys {
		builder.AddData(key.ScriptAddress())
	}
	builder.AddInt64(int64(len(pubkeys)))
	builder.AddOp(OP_CHECKMULTISIG)

	return builder.Script()
}

// ExtractPkScriptAddrs 返回锁定脚本的类别、地址和所需签名数。
// 它只适用于标准脚本类型，无效的公钥会被忽略。
func ExtractPkScriptAddrs(pkScript []byte, chainParams *chaincfg.Params) (ScriptClass, []btcutil.Address, int, error) {
	// Check for pay-to-pubkey-hash script.
	if hash := extractPubKeyHash(pkScript); hash != nil {
		var addrs []btcutil.Address
		if addr, err := btcutil.NewAddressPubKeyHash(hash, chainParams); err == nil {
			addrs = append(addrs, addr)
		}
		return PubKeyHashTy, addrs, 1, nil
	}

	// Check for pay-to-script-hash.
	if hash := extractScriptHash(pkScript); hash != nil {
		var addrs []btcutil.Address
		if addr, err := btcutil.NewAddressScriptHashFromHash(hash, chainParams); err == nil {
			addrs = append(addrs, addr)
		}
		return ScriptHashTy, addrs, 1, nil
	}

	// Check for pay-to-pubkey script.
	if data := extractPubKey(pkScript); data != nil {
		var addrs []btcutil.Address
		if addr, err := btcutil.NewAddressPubKey(data, chainParams); err == nil {
			addrs = append(addrs, addr)
		}
		return PubKeyTy, addrs, 1, nil
	}

	// Check for multi-signature script.
	if details := extractMultisigScriptDetails(pkScript); details.valid {
		// Convert the public keys while skipping any that are invalid.
		addrs := make([]btcutil.Address, 0, len(details.pubKeys))
		for _, pubkey := range details.pubKeys {
			if addr, err := btcutil.NewAddressPubKey(pubkey, chainParams); err == nil {
				addrs = append(addrs, addr)
			}
		}
		return MultiSigTy, addrs, details.requiredSigs, nil
	}

	// Null data transactions have no addresses or required signatures.
	if isNullDataScript(pkScript) {
		return NullDataTy, nil, 0, nil
	}

	// If none of the above passed, then the address must be non-standard.
	return NonStandardTy, nil, 0, nil
}
