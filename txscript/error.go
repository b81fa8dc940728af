// 脚本执行过程中可能出现的错误码及错误类型。

package txscript

import (
	"errors"
	"fmt"
)

// ErrorCode 标识一种脚本错误。
type ErrorCode int

// 脚本引擎可能返回的错误码。
const (
	// ErrInternal 表示不应发生的内部错误。
	ErrInternal ErrorCode = iota

	// ErrInvalidIndex 表示输入索引超出交易输入范围。
	ErrInvalidIndex

	// ErrMalformedPush 表示数据推送操作码声明的长度超出脚本剩余长度。
	ErrMalformedPush

	// ErrScriptTooBig 表示脚本超过 MaxScriptSize。
	ErrScriptTooBig

	// ErrEarlyReturn 表示执行了 OP_RETURN。
	ErrEarlyReturn

	// ErrEmptyStack 表示脚本执行结束时堆栈为空。
	ErrEmptyStack

	// ErrEvalFalse 表示脚本执行结束时栈顶元素为 false。
	ErrEvalFalse

	// ErrVerify 表示 OP_VERIFY 的栈顶元素为 false。
	ErrVerify

	// ErrEqualVerify 表示 OP_EQUALVERIFY 比较失败。
	ErrEqualVerify

	// ErrNumEqualVerify 表示 OP_NUMEQUALVERIFY 比较失败。
	ErrNumEqualVerify

	// ErrCheckSigVerify 表示 OP_CHECKSIGVERIFY 签名验证失败。
	ErrCheckSigVerify

	// ErrCheckMultiSigVerify 表示 OP_CHECKMULTISIGVERIFY 失败。
	ErrCheckMultiSigVerify

	// ErrDisabledOpcode 表示遇到了被禁用的操作码。
	ErrDisabledOpcode

	// ErrReservedOpcode 表示执行了保留操作码。
	ErrReservedOpcode

	// ErrUnsupportedOpcode 表示执行了未知或无效的操作码。
	ErrUnsupportedOpcode

	// ErrUnimplemented 表示操作码的语义尚未实现，执行时按失败处理。
	ErrUnimplemented

	// ErrUnbalancedConditional 表示 OP_ELSE/OP_ENDIF 没有对应的 OP_IF，或脚本结束时条件未闭合。
	ErrUnbalancedConditional

	// ErrInvalidStackOperation 表示堆栈元素不足。
	ErrInvalidStackOperation

	// ErrStackOverflow 表示主栈与备用栈的元素总数超过 MaxStackSize。
	ErrStackOverflow

	// ErrNumberTooBig 表示数值操作数无法表示为所需的整数范围。
	ErrNumberTooBig

	// ErrInvalidPubKeyCount 表示 OP_CHECKMULTISIG 的公钥数量超出 [0, MaxPubKeysPerMultiSig]。
	ErrInvalidPubKeyCount

	// ErrInvalidSignatureCount 表示 OP_CHECKMULTISIG 的签名数量超出范围。
	ErrInvalidSignatureCount

	// ErrInvalidSigHashSingleIndex 表示 SIGHASH_SINGLE 的输入索引没有对应的输出。
	ErrInvalidSigHashSingleIndex

	// ErrOutOfBounds 表示字符串或移位操作的参数越界。
	ErrOutOfBounds

	// ErrScriptPanic 表示脚本执行过程中出现了恢复的 panic。
	ErrScriptPanic

	// ErrUnsupportedAddress 表示无法为给定地址类型生成支付脚本。
	ErrUnsupportedAddress

	// ErrTooManyRequiredSigs 表示多重签名脚本要求的签名数超过公钥数。
	ErrTooManyRequiredSigs

	// ErrNotMultisigScript 表示脚本不是标准的多重签名脚本。
	ErrNotMultisigScript

	// numErrorCodes 是错误码的数量，仅用于测试。
	numErrorCodes
)

var errorCodeStrings = map[ErrorCode]string{
	ErrInternal:                  "ErrInternal",
	ErrInvalidIndex:              "ErrInvalidIndex",
	ErrMalformedPush:             "ErrMalformedPush",
	ErrScriptTooBig:              "ErrScriptTooBig",
	ErrEarlyReturn:               "ErrEarlyReturn",
	ErrEmptyStack:                "ErrEmptyStack",
	ErrEvalFalse:                 "ErrEvalFalse",
	ErrVerify:                    "ErrVerify",
	ErrEqualVerify:               "ErrEqualVerify",
	ErrNumEqualVerify:            "ErrNumEqualVerify",
	ErrCheckSigVerify:            "ErrCheckSigVerify",
	ErrCheckMultiSigVerify:       "ErrCheckMultiSigVerify",
	ErrDisabledOpcode:            "ErrDisabledOpcode",
	ErrReservedOpcode:            "ErrReservedOpcode",
	ErrUnsupportedOpcode:         "ErrUnsupportedOpcode",
	ErrUnimplemented:             "ErrUnimplemented",
	ErrUnbalancedConditional:     "ErrUnbalancedConditional",
	ErrInvalidStackOperation:     "ErrInvalidStackOperation",
	ErrStackOverflow:             "ErrStackOverflow",
	ErrNumberTooBig:              "ErrNumberTooBig",
	ErrInvalidPubKeyCount:        "ErrInvalidPubKeyCount",
	ErrInvalidSignatureCount:     "ErrInvalidSignatureCount",
	ErrInvalidSigHashSingleIndex: "ErrInvalidSigHashSingleIndex",
	ErrOutOfBounds:               "ErrOutOfBounds",
	ErrScriptPanic:               "ErrScriptPanic",
	ErrUnsupportedAddress:        "ErrUnsupportedAddress",
	ErrTooManyRequiredSigs:       "ErrTooManyRequiredSigs",
	ErrNotMultisigScript:         "ErrNotMultisigScript",
}

// String 返回错误码的可读名称。
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error 是脚本相关的错误，携带错误码和描述。
type Error struct {
	ErrorCode   ErrorCode
	Description string
}

// Error 实现 error 接口。
func (e Error) Error() string {
	return e.Description
}

// scriptError 使用给定的错误码和描述创建一个 Error。
func scriptError(c ErrorCode, desc string) Error {
	return Error{ErrorCode: c, Description: desc}
}

// IsErrorCode 返回 err 是否为具有给定错误码的脚本错误。
func IsErrorCode(err error, c ErrorCode) bool {
	var serr Error
	return errors.As(err, &serr) && serr.ErrorCode == c
}
