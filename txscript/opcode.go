// 脚本语言中所有操作码的定义、分发表及其实现。

package txscript

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160"
)

// opcode 定义与操作码相关的信息。
// length 为操作码连同其数据所占的字节数，负数表示长度由后续 1/2/4 字节给出。
// opfunc 是在引擎上执行该操作码的函数。
type opcode struct {
	value  byte
	name   string
	length int
	opfunc func(*opcode, []byte, *Engine) error
}

// 操作码的取值。未列出的 OP_DATA_N 与未知操作码由 init 填充到 opcodeArray。
const (
	OP_0                   = 0x00
	OP_FALSE               = 0x00
	OP_DATA_1              = 0x01
	OP_DATA_2              = 0x02
	OP_DATA_5              = 0x05
	OP_DATA_20             = 0x14
	OP_DATA_32             = 0x20
	OP_DATA_33             = 0x21
	OP_DATA_65             = 0x41
	OP_DATA_75             = 0x4b
	OP_PUSHDATA1           = 0x4c
	OP_PUSHDATA2           = 0x4d
	OP_PUSHDATA4           = 0x4e
	OP_1NEGATE             = 0x4f
	OP_RESERVED            = 0x50
	OP_1                   = 0x51
	OP_TRUE                = 0x51
	OP_2                   = 0x52
	OP_3                   = 0x53
	OP_4                   = 0x54
	OP_5                   = 0x55
	OP_6                   = 0x56
	OP_7                   = 0x57
	OP_8                   = 0x58
	OP_9                   = 0x59
	OP_10                  = 0x5a
	OP_11                  = 0x5b
	OP_12                  = 0x5c
	OP_13                  = 0x5d
	OP_14                  = 0x5e
	OP_15                  = 0x5f
	OP_16                  = 0x60
	OP_NOP                 = 0x61
	OP_VER                 = 0x62
	OP_IF                  = 0x63
	OP_NOTIF               = 0x64
	OP_VERIF               = 0x65
	OP_VERNOTIF            = 0x66
	OP_ELSE                = 0x67
	OP_ENDIF               = 0x68
	OP_VERIFY              = 0x69
	OP_RETURN              = 0x6a
	OP_TOALTSTACK          = 0x6b
	OP_FROMALTSTACK        = 0x6c
	OP_2DROP               = 0x6d
	OP_2DUP                = 0x6e
	OP_3DUP                = 0x6f
	OP_2OVER               = 0x70
	OP_2ROT                = 0x71
	OP_2SWAP               = 0x72
	OP_IFDUP               = 0x73
	OP_DEPTH               = 0x74
	OP_DROP                = 0x75
	OP_DUP                 = 0x76
	OP_NIP                 = 0x77
	OP_OVER                = 0x78
	OP_PICK                = 0x79
	OP_ROLL                = 0x7a
	OP_ROT                 = 0x7b
	OP_SWAP                = 0x7c
	OP_TUCK                = 0x7d
	OP_CAT                 = 0x7e
	OP_SUBSTR              = 0x7f
	OP_LEFT                = 0x80
	OP_RIGHT               = 0x81
	OP_SIZE                = 0x82
	OP_INVERT              = 0x83
	OP_AND                 = 0x84
	OP_OR                  = 0x85
	OP_XOR                 = 0x86
	OP_EQUAL               = 0x87
	OP_EQUALVERIFY         = 0x88
	OP_RESERVED1           = 0x89
	OP_RESERVED2           = 0x8a
	OP_1ADD                = 0x8b
	OP_1SUB                = 0x8c
	OP_2MUL                = 0x8d
	OP_2DIV                = 0x8e
	OP_NEGATE              = 0x8f
	OP_ABS                 = 0x90
	OP_NOT                 = 0x91
	OP_0NOTEQUAL           = 0x92
	OP_ADD                 = 0x93
	OP_SUB                 = 0x94
	OP_MUL                 = 0x95
	OP_DIV                 = 0x96
	OP_MOD                 = 0x97
	OP_LSHIFT              = 0x98
	OP_RSHIFT              = 0x99
	OP_BOOLAND             = 0x9a
	OP_BOOLOR              = 0x9b
	OP_NUMEQUAL            = 0x9c
	OP_NUMEQUALVERIFY      = 0x9d
	OP_NUMNOTEQUAL         = 0x9e
	OP_LESSTHAN            = 0x9f
	OP_GREATERTHAN         = 0xa0
	OP_LESSTHANOREQUAL     = 0xa1
	OP_GREATERTHANOREQUAL  = 0xa2
	OP_MIN                 = 0xa3
	OP_MAX                 = 0xa4
	OP_WITHIN              = 0xa5
	OP_RIPEMD160           = 0xa6
	OP_SHA1                = 0xa7
	OP_SHA256              = 0xa8
	OP_HASH160             = 0xa9
	OP_HASH256             = 0xaa
	OP_CODESEPARATOR       = 0xab
	OP_CHECKSIG            = 0xac
	OP_CHECKSIGVERIFY      = 0xad
	OP_CHECKMULTISIG       = 0xae
	OP_CHECKMULTISIGVERIFY = 0xaf
	OP_NOP1                = 0xb0
	OP_NOP2                = 0xb1
	OP_NOP3                = 0xb2
	OP_NOP4                = 0xb3
	OP_NOP5                = 0xb4
	OP_NOP6                = 0xb5
	OP_NOP7                = 0xb6
	OP_NOP8                = 0xb7
	OP_NOP9                = 0xb8
	OP_NOP10               = 0xb9
	OP_INVALIDOPCODE       = 0xff
)

const (
	// MaxPubKeysPerMultiSig 是 OP_CHECKMULTISIG 允许的最大公钥数量。
	MaxPubKeysPerMultiSig = 20

	// maxShiftBits 是 OP_LSHIFT/OP_RSHIFT 允许的最大移位位数。
	maxShiftBits = 2048
)

// opcodeArray 保存所有可能操作码的信息：长度、可读名称以及处理函数。
// 在 init 中赋值，因为部分处理函数会间接解析脚本并访问该表。
var opcodeArray [256]opcode

// OpcodeByName 通过可读名称（如 OP_CHECKSIG）查找操作码。
var OpcodeByName = make(map[string]byte)

func init() {
	opcodeArray = [256]opcode{
		OP_FALSE:     {OP_FALSE, "OP_0", 1, opcodeFalse},
		OP_PUSHDATA1: {OP_PUSHDATA1, "OP_PUSHDATA1", -1, opcodePushData},
		OP_PUSHDATA2: {OP_PUSHDATA2, "OP_PUSHDATA2", -2, opcodePushData},
		OP_PUSHDATA4: {OP_PUSHDATA4, "OP_PUSHDATA4", -4, opcodePushData},
		OP_1NEGATE:   {OP_1NEGATE, "OP_1NEGATE", 1, opcode1Negate},
		OP_RESERVED:  {OP_RESERVED, "OP_RESERVED", 1, opcodeReserved},

		// 常量
		OP_1:  {OP_1, "OP_1", 1, opcodeN},
		OP_2:  {OP_2, "OP_2", 1, opcodeN},
		OP_3:  {OP_3, "OP_3", 1, opcodeN},
		OP_4:  {OP_4, "OP_4", 1, opcodeN},
		OP_5:  {OP_5, "OP_5", 1, opcodeN},
		OP_6:  {OP_6, "OP_6", 1, opcodeN},
		OP_7:  {OP_7, "OP_7", 1, opcodeN},
		OP_8:  {OP_8, "OP_8", 1, opcodeN},
		OP_9:  {OP_9, "OP_9", 1, opcodeN},
		OP_10: {OP_10, "OP_10", 1, opcodeN},
		OP_11: {OP_11, "OP_11", 1, opcodeN},
		OP_12: {OP_12, "OP_12", 1, opcodeN},
		OP_13: {OP_13, "OP_13", 1, opcodeN},
		OP_14: {OP_14, "OP_14", 1, opcodeN},
		OP_15: {OP_15, "OP_15", 1, opcodeN},
		OP_16: {OP_16, "OP_16", 1, opcodeN},

		// 流程控制
		OP_NOP:      {OP_NOP, "OP_NOP", 1, opcodeNop},
		OP_VER:      {OP_VER, "OP_VER", 1, opcodeReserved},
		OP_IF:       {OP_IF, "OP_IF", 1, opcodeIf},
		OP_NOTIF:    {OP_NOTIF, "OP_NOTIF", 1, opcodeNotIf},
		OP_VERIF:    {OP_VERIF, "OP_VERIF", 1, opcodeReserved},
		OP_VERNOTIF: {OP_VERNOTIF, "OP_VERNOTIF", 1, opcodeReserved},
		OP_ELSE:     {OP_ELSE, "OP_ELSE", 1, opcodeElse},
		OP_ENDIF:    {OP_ENDIF, "OP_ENDIF", 1, opcodeEndif},
		OP_VERIFY:   {OP_VERIFY, "OP_VERIFY", 1, opcodeVerify},
		OP_RETURN:   {OP_RETURN, "OP_RETURN", 1, opcodeReturn},

		// 堆栈操作
		OP_TOALTSTACK:   {OP_TOALTSTACK, "OP_TOALTSTACK", 1, opcodeToAltStack},
		OP_FROMALTSTACK: {OP_FROMALTSTACK, "OP_FROMALTSTACK", 1, opcodeFromAltStack},
		OP_2DROP:        {OP_2DROP, "OP_2DROP", 1, opcode2Drop},
		OP_2DUP:         {OP_2DUP, "OP_2DUP", 1, opcode2Dup},
		OP_3DUP:         {OP_3DUP, "OP_3DUP", 1, opcode3Dup},
		OP_2OVER:        {OP_2OVER, "OP_2OVER", 1, opcode2Over},
		OP_2ROT:         {OP_2ROT, "OP_2ROT", 1, opcode2Rot},
		OP_2SWAP:        {OP_2SWAP, "OP_2SWAP", 1, opcode2Swap},
		OP_IFDUP:        {OP_IFDUP, "OP_IFDUP", 1, opcodeIfDup},
		OP_DEPTH:        {OP_DEPTH, "OP_DEPTH", 1, opcodeDepth},
		OP_DROP:         {OP_DROP, "OP_DROP", 1, opcodeDrop},
		OP_DUP:          {OP_DUP, "OP_DUP", 1, opcodeDup},
		OP_NIP:          {OP_NIP, "OP_NIP", 1, opcodeNip},
		OP_OVER:         {OP_OVER, "OP_OVER", 1, opcodeOver},
		OP_PICK:         {OP_PICK, "OP_PICK", 1, opcodePick},
		OP_ROLL:         {OP_ROLL, "OP_ROLL", 1, opcodeRoll},
		OP_ROT:          {OP_ROT, "OP_ROT", 1, opcodeRot},
		OP_SWAP:         {OP_SWAP, "OP_SWAP", 1, opcodeSwap},
		OP_TUCK:         {OP_TUCK, "OP_TUCK", 1, opcodeTuck},

		// 字符串与位运算
		OP_CAT:         {OP_CAT, "OP_CAT", 1, opcodeCat},
		OP_SUBSTR:      {OP_SUBSTR, "OP_SUBSTR", 1, opcodeSubstr},
		OP_LEFT:        {OP_LEFT, "OP_LEFT", 1, opcodeLeft},
		OP_RIGHT:       {OP_RIGHT, "OP_RIGHT", 1, opcodeRight},
		OP_SIZE:        {OP_SIZE, "OP_SIZE", 1, opcodeSize},
		OP_INVERT:      {OP_INVERT, "OP_INVERT", 1, opcodeInvert},
		OP_AND:         {OP_AND, "OP_AND", 1, opcodeBitwise},
		OP_OR:          {OP_OR, "OP_OR", 1, opcodeBitwise},
		OP_XOR:         {OP_XOR, "OP_XOR", 1, opcodeBitwise},
		OP_EQUAL:       {OP_EQUAL, "OP_EQUAL", 1, opcodeEqual},
		OP_EQUALVERIFY: {OP_EQUALVERIFY, "OP_EQUALVERIFY", 1, opcodeEqualVerify},
		OP_RESERVED1:   {OP_RESERVED1, "OP_RESERVED1", 1, opcodeReserved},
		OP_RESERVED2:   {OP_RESERVED2, "OP_RESERVED2", 1, opcodeReserved},

		// 数值运算
		OP_1ADD:               {OP_1ADD, "OP_1ADD", 1, opcodeUnaryNum},
		OP_1SUB:               {OP_1SUB, "OP_1SUB", 1, opcodeUnaryNum},
		OP_2MUL:               {OP_2MUL, "OP_2MUL", 1, opcodeUnaryNum},
		OP_2DIV:               {OP_2DIV, "OP_2DIV", 1, opcodeUnaryNum},
		OP_NEGATE:             {OP_NEGATE, "OP_NEGATE", 1, opcodeUnaryNum},
		OP_ABS:                {OP_ABS, "OP_ABS", 1, opcodeUnaryNum},
		OP_NOT:                {OP_NOT, "OP_NOT", 1, opcodeUnaryNum},
		OP_0NOTEQUAL:          {OP_0NOTEQUAL, "OP_0NOTEQUAL", 1, opcodeUnaryNum},
		OP_ADD:                {OP_ADD, "OP_ADD", 1, opcodeBinaryNum},
		OP_SUB:                {OP_SUB, "OP_SUB", 1, opcodeBinaryNum},
		OP_MUL:                {OP_MUL, "OP_MUL", 1, opcodeBinaryNum},
		OP_DIV:                {OP_DIV, "OP_DIV", 1, opcodeBinaryNum},
		OP_MOD:                {OP_MOD, "OP_MOD", 1, opcodeBinaryNum},
		OP_LSHIFT:             {OP_LSHIFT, "OP_LSHIFT", 1, opcodeBinaryNum},
		OP_RSHIFT:             {OP_RSHIFT, "OP_RSHIFT", 1, opcodeBinaryNum},
		OP_BOOLAND:            {OP_BOOLAND, "OP_BOOLAND", 1, opcodeCompareNum},
		OP_BOOLOR:             {OP_BOOLOR, "OP_BOOLOR", 1, opcodeCompareNum},
		OP_NUMEQUAL:           {OP_NUMEQUAL, "OP_NUMEQUAL", 1, opcodeCompareNum},
		OP_NUMEQUALVERIFY:     {OP_NUMEQUALVERIFY, "OP_NUMEQUALVERIFY", 1, opcodeNumEqualVerify},
		OP_NUMNOTEQUAL:        {OP_NUMNOTEQUAL, "OP_NUMNOTEQUAL", 1, opcodeCompareNum},
		OP_LESSTHAN:           {OP_LESSTHAN, "OP_LESSTHAN", 1, opcodeCompareNum},
		OP_GREATERTHAN:        {OP_GREATERTHAN, "OP_GREATERTHAN", 1, opcodeCompareNum},
		OP_LESSTHANOREQUAL:    {OP_LESSTHANOREQUAL, "OP_LESSTHANOREQUAL", 1, opcodeCompareNum},
		OP_GREATERTHANOREQUAL: {OP_GREATERTHANOREQUAL, "OP_GREATERTHANOREQUAL", 1, opcodeCompareNum},
		OP_MIN:                {OP_MIN, "OP_MIN", 1, opcodeBinaryNum},
		OP_MAX:                {OP_MAX, "OP_MAX", 1, opcodeBinaryNum},
		OP_WITHIN:             {OP_WITHIN, "OP_WITHIN", 1, opcodeWithin},

		// 密码学
		OP_RIPEMD160:           {OP_RIPEMD160, "OP_RIPEMD160", 1, opcodeHash},
		OP_SHA1:                {OP_SHA1, "OP_SHA1", 1, opcodeHash},
		OP_SHA256:              {OP_SHA256, "OP_SHA256", 1, opcodeHash},
		OP_HASH160:             {OP_HASH160, "OP_HASH160", 1, opcodeHash},
		OP_HASH256:             {OP_HASH256, "OP_HASH256", 1, opcodeHash},
		OP_CODESEPARATOR:       {OP_CODESEPARATOR, "OP_CODESEPARATOR", 1, opcodeCodeSeparator},
		OP_CHECKSIG:            {OP_CHECKSIG, "OP_CHECKSIG", 1, opcodeCheckSig},
		OP_CHECKSIGVERIFY:      {OP_CHECKSIGVERIFY, "OP_CHECKSIGVERIFY", 1, opcodeCheckSigVerify},
		OP_CHECKMULTISIG:       {OP_CHECKMULTISIG, "OP_CHECKMULTISIG", 1, opcodeCheckMultiSig},
		OP_CHECKMULTISIGVERIFY: {OP_CHECKMULTISIGVERIFY, "OP_CHECKMULTISIGVERIFY", 1, opcodeCheckMultiSig},

		// 保留的空操作
		OP_NOP1:  {OP_NOP1, "OP_NOP1", 1, opcodeNop},
		OP_NOP2:  {OP_NOP2, "OP_NOP2", 1, opcodeNop},
		OP_NOP3:  {OP_NOP3, "OP_NOP3", 1, opcodeNop},
		OP_NOP4:  {OP_NOP4, "OP_NOP4", 1, opcodeNop},
		OP_NOP5:  {OP_NOP5, "OP_NOP5", 1, opcodeNop},
		OP_NOP6:  {OP_NOP6, "OP_NOP6", 1, opcodeNop},
		OP_NOP7:  {OP_NOP7, "OP_NOP7", 1, opcodeNop},
		OP_NOP8:  {OP_NOP8, "OP_NOP8", 1, opcodeNop},
		OP_NOP9:  {OP_NOP9, "OP_NOP9", 1, opcodeNop},
		OP_NOP10: {OP_NOP10, "OP_NOP10", 1, opcodeNop},

		OP_INVALIDOPCODE: {OP_INVALIDOPCODE, "OP_INVALIDOPCODE", 1, opcodeInvalid},
	}

	// OP_DATA_1 through OP_DATA_75 push the next N bytes.
	for i := OP_DATA_1; i <= OP_DATA_75; i++ {
		opcodeArray[i] = opcode{byte(i), fmt.Sprintf("OP_DATA_%d", i), i + 1, opcodePushData}
	}
	for i := range opcodeArray {
		if opcodeArray[i].opfunc == nil {
			opcodeArray[i] = opcode{byte(i), fmt.Sprintf("OP_UNKNOWN%d", i), 1, opcodeInvalid}
		}
		OpcodeByName[opcodeArray[i].name] = byte(i)
	}
	OpcodeByName["OP_FALSE"] = OP_FALSE
	OpcodeByName["OP_TRUE"] = OP_TRUE
}

// isOpcodeDisabled 返回操作码是否属于被禁用的不安全操作码。
// 被禁用的操作码只要出现在指令流中就会导致失败，即使位于未执行的分支中。
func isOpcodeDisabled(op byte) bool {
	switch op {
	case OP_CAT, OP_SUBSTR, OP_LEFT, OP_RIGHT, OP_INVERT, OP_AND, OP_OR, OP_XOR,
		OP_2MUL, OP_2DIV, OP_MUL, OP_DIV, OP_MOD, OP_LSHIFT, OP_RSHIFT:
		return true
	}
	return false
}

// isOpcodeConditional 返回操作码是否在未执行的分支中也必须处理。
func isOpcodeConditional(op byte) bool {
	return op >= OP_IF && op <= OP_ENDIF
}

// *******************************************
// Opcode implementation functions start here.
// *******************************************

// opcodeReserved 执行保留操作码时总是失败。
func opcodeReserved(op *opcode, data []byte, vm *Engine) error {
	str := fmt.Sprintf("attempt to execute reserved opcode %s", op.name)
	return scriptError(ErrReservedOpcode, str)
}

// opcodeInvalid 执行未知或无效操作码时总是失败。
func opcodeInvalid(op *opcode, data []byte, vm *Engine) error {
	str := fmt.Sprintf("attempt to execute invalid opcode %s", op.name)
	return scriptError(ErrUnsupportedOpcode, str)
}

// opcodeFalse 压入一个空数组，它表示数值 0 和布尔 false。
//
// Stack transformation: [...] -> [... 0]
func opcodeFalse(op *opcode, data []byte, vm *Engine) error {
	vm.dstack.PushByteArray(nil)
	return nil
}

// opcodePushData 将操作码携带的数据压入栈顶。
func opcodePushData(op *opcode, data []byte, vm *Engine) error {
	vm.dstack.PushByteArray(data)
	return nil
}

// opcode1Negate 压入 -1。
//
// Stack transformation: [...] -> [... -1]
func opcode1Negate(op *opcode, data []byte, vm *Engine) error {
	vm.dstack.PushInt(big.NewInt(-1))
	return nil
}

// opcodeN 压入操作码对应的小整数 1-16。
//
// Stack transformation: [...] -> [... n]
func opcodeN(op *opcode, data []byte, vm *Engine) error {
	vm.dstack.PushInt(big.NewInt(int64(op.value - (OP_1 - 1))))
	return nil
}

// opcodeNop 什么也不做。
func opcodeNop(op *opcode, data []byte, vm *Engine) error {
	return nil
}

// opcodeIf 在分支执行时弹出栈顶元素作为条件压入条件栈；未执行时压入 false 以保持平衡。
//
// Stack transformation: [... bool] -> [...]
// Conditional stack transformation: [...] -> [... bool]
func opcodeIf(op *opcode, data []byte, vm *Engine) error {
	var cond bool
	if vm.isBranchExecuting() {
		ok, err := vm.dstack.PopBool()
		if err != nil {
			return err
		}
		cond = ok
		if op.value == OP_NOTIF {
			cond = !cond
		}
	}
	vm.condStack = append(vm.condStack, cond)
	return nil
}

// opcodeNotIf 与 opcodeIf 相同，但条件取反。
func opcodeNotIf(op *opcode, data []byte, vm *Engine) error {
	return opcodeIf(op, data, vm)
}

// opcodeElse 翻转条件栈顶的值。
func opcodeElse(op *opcode, data []byte, vm *Engine) error {
	if len(vm.condStack) == 0 {
		str := fmt.Sprintf("encountered opcode %s with no matching opcode to begin conditional execution", op.name)
		return scriptError(ErrUnbalancedConditional, str)
	}
	top := len(vm.condStack) - 1
	vm.condStack[top] = !vm.condStack[top]
	return nil
}

// opcodeEndif 弹出条件栈顶的值。
func opcodeEndif(op *opcode, data []byte, vm *Engine) error {
	if len(vm.condStack) == 0 {
		str := fmt.Sprintf("encountered opcode %s with no matching opcode to begin conditional execution", op.name)
		return scriptError(ErrUnbalancedConditional, str)
	}
	vm.condStack = vm.condStack[:len(vm.condStack)-1]
	return nil
}

// abstractVerify 检查栈顶元素：为 true 时弹出并继续，否则以给定错误码终止执行。
func abstractVerify(op *opcode, vm *Engine, c ErrorCode) error {
	verified, err := vm.dstack.PeekBool(0)
	if err != nil {
		return err
	}
	if !verified {
		str := fmt.Sprintf("%s failed", op.name)
		return scriptError(c, str)
	}
	_, err = vm.dstack.PopByteArray()
	return err
}

// opcodeVerify 要求栈顶元素为 true。
//
// Stack transformation: [... bool] -> [...]
func opcodeVerify(op *opcode, data []byte, vm *Engine) error {
	return abstractVerify(op, vm, ErrVerify)
}

// opcodeReturn 无条件终止执行。
func opcodeReturn(op *opcode, data []byte, vm *Engine) error {
	return scriptError(ErrEarlyReturn, "script returned early")
}

// opcodeToAltStack 将主栈顶元素移动到备用栈。
//
// Main data stack transformation: [... x1 x2 x3] -> [... x1 x2]
// Alt data stack transformation:  [... y1 y2 y3] -> [... y1 y2 y3 x3]
func opcodeToAltStack(op *opcode, data []byte, vm *Engine) error {
	so, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	vm.astack.PushByteArray(so)
	return nil
}

// opcodeFromAltStack 将备用栈顶元素移回主栈。
//
// Main data stack transformation: [... x1 x2 x3] -> [... x1 x2 x3 y3]
// Alt data stack transformation:  [... y1 y2 y3] -> [... y1 y2]
func opcodeFromAltStack(op *opcode, data []byte, vm *Engine) error {
	so, err := vm.astack.PopByteArray()
	if err != nil {
		return err
	}
	vm.dstack.PushByteArray(so)
	return nil
}

// Stack transformation: [... x1 x2] -> [...]
func opcode2Drop(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.DropN(2)
}

// Stack transformation: [... x1 x2] -> [... x1 x2 x1 x2]
func opcode2Dup(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.DupN(2)
}

// Stack transformation: [... x1 x2 x3] -> [... x1 x2 x3 x1 x2 x3]
func opcode3Dup(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.DupN(3)
}

// Stack transformation: [... x1 x2 x3 x4] -> [... x1 x2 x3 x4 x1 x2]
func opcode2Over(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.OverN(2)
}

// Stack transformation: [... x1 x2 x3 x4 x5 x6] -> [... x3 x4 x5 x6 x1 x2]
func opcode2Rot(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.RotN(2)
}

// Stack transformation: [... x1 x2 x3 x4] -> [... x3 x4 x1 x2]
func opcode2Swap(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.SwapN(2)
}

// opcodeIfDup 当栈顶元素为 true 时复制它。
//
// Stack transformation (x1==0): [... x1] -> [... x1]
// Stack transformation (x1!=0): [... x1] -> [... x1 x1]
func opcodeIfDup(op *opcode, data []byte, vm *Engine) error {
	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	if asBool(so) {
		vm.dstack.PushByteArray(so)
	}
	return nil
}

// opcodeDepth 压入执行前主栈的元素数量。
//
// Stack transformation: [...] -> [... <num of items on the stack>]
func opcodeDepth(op *opcode, data []byte, vm *Engine) error {
	vm.dstack.PushInt(big.NewInt(int64(vm.dstack.Depth())))
	return nil
}

// Stack transformation: [... x1 x2 x3] -> [... x1 x2]
func opcodeDrop(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.DropN(1)
}

// Stack transformation: [... x1 x2 x3] -> [... x1 x2 x3 x3]
func opcodeDup(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.DupN(1)
}

// Stack transformation: [... x1 x2 x3] -> [... x1 x3]
func opcodeNip(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.NipN(1)
}

// Stack transformation: [... x1 x2 x3] -> [... x1 x2 x3 x2]
func opcodeOver(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.OverN(1)
}

// popStackIndex 弹出栈顶元素作为索引 n，要求 0 <= n < 剩余深度。
func popStackIndex(op *opcode, vm *Engine) (int, error) {
	so, err := vm.dstack.PopByteArray()
	if err != nil {
		return 0, err
	}
	n, err := asInt(so)
	if err != nil {
		return 0, err
	}
	if n < 0 || n >= vm.dstack.Depth() {
		str := fmt.Sprintf("%s index %d out of range for stack size %d", op.name, n, vm.dstack.Depth())
		return 0, scriptError(ErrInvalidStackOperation, str)
	}
	return n, nil
}

// opcodePick 将栈中第 n 个元素复制到栈顶。
//
// Stack transformation: [xn ... x2 x1 x0 n] -> [xn ... x2 x1 x0 xn]
func opcodePick(op *opcode, data []byte, vm *Engine) error {
	n, err := popStackIndex(op, vm)
	if err != nil {
		return err
	}
	return vm.dstack.PickN(n)
}

// opcodeRoll 将栈中第 n 个元素移动到栈顶。
//
// Stack transformation: [xn ... x2 x1 x0 n] -> [... x2 x1 x0 xn]
func opcodeRoll(op *opcode, data []byte, vm *Engine) error {
	n, err := popStackIndex(op, vm)
	if err != nil {
		return err
	}
	return vm.dstack.RollN(n)
}

// Stack transformation: [... x1 x2 x3] -> [... x2 x3 x1]
func opcodeRot(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.RotN(1)
}

// Stack transformation: [... x1 x2] -> [... x2 x1]
func opcodeSwap(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.SwapN(1)
}

// Stack transformation: [... x1 x2] -> [... x2 x1 x2]
func opcodeTuck(op *opcode, data []byte, vm *Engine) error {
	return vm.dstack.Tuck()
}

// opcodeCat 连接栈顶两个元素。
//
// Stack transformation: [... x1 x2] -> [... x1||x2]
func opcodeCat(op *opcode, data []byte, vm *Engine) error {
	b, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	a, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	vm.dstack.PushByteArray(append(out, b...))
	return nil
}

// opcodeSubstr 取子串。
//
// Stack transformation: [... in begin size] -> [... in[begin:begin+size]]
func opcodeSubstr(op *opcode, data []byte, vm *Engine) error {
	so, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	size, err := asInt(so)
	if err != nil {
		return err
	}
	if so, err = vm.dstack.PopByteArray(); err != nil {
		return err
	}
	begin, err := asInt(so)
	if err != nil {
		return err
	}
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	if begin < 0 || size < 0 || begin+size > len(buf) {
		str := fmt.Sprintf("substring [%d:%d] out of bounds for length %d", begin, begin+size, len(buf))
		return scriptError(ErrOutOfBounds, str)
	}
	vm.dstack.PushByteArray(buf[begin : begin+size])
	return nil
}

// popSizeArg 弹出长度参数与源数组，长度超过数组时截断为数组长度。
func popSizeArg(op *opcode, vm *Engine) ([]byte, int, error) {
	so, err := vm.dstack.PopByteArray()
	if err != nil {
		return nil, 0, err
	}
	size, err := asInt(so)
	if err != nil {
		return nil, 0, err
	}
	if size < 0 {
		str := fmt.Sprintf("%s size %d < 0", op.name, size)
		return nil, 0, scriptError(ErrOutOfBounds, str)
	}
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return nil, 0, err
	}
	if size > len(buf) {
		size = len(buf)
	}
	return buf, size, nil
}

// Stack transformation: [... in size] -> [... in[:size]]
func opcodeLeft(op *opcode, data []byte, vm *Engine) error {
	buf, size, err := popSizeArg(op, vm)
	if err != nil {
		return err
	}
	vm.dstack.PushByteArray(buf[:size])
	return nil
}

// Stack transformation: [... in size] -> [... in[len-size:]]
func opcodeRight(op *opcode, data []byte, vm *Engine) error {
	buf, size, err := popSizeArg(op, vm)
	if err != nil {
		return err
	}
	vm.dstack.PushByteArray(buf[len(buf)-size:])
	return nil
}

// opcodeSize 压入栈顶元素的字节长度，不移除该元素。
//
// Stack transformation: [... x1] -> [... x1 len(x1)]
func opcodeSize(op *opcode, data []byte, vm *Engine) error {
	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	vm.dstack.PushInt(big.NewInt(int64(len(so))))
	return nil
}

// Stack transformation: [... x1] -> [... ^x1]
func opcodeInvert(op *opcode, data []byte, vm *Engine) error {
	so, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	out := make([]byte, len(so))
	for i := range so {
		out[i] = ^so[i]
	}
	vm.dstack.PushByteArray(out)
	return nil
}

// opcodeBitwise 对栈顶两个元素逐字节执行 AND/OR/XOR，较短的一方视为用零补齐。
//
// Stack transformation: [... x1 x2] -> [... x1 op x2]
func opcodeBitwise(op *opcode, data []byte, vm *Engine) error {
	b, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	a, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}

	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := range out {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch op.value {
		case OP_AND:
			out[i] = x & y
		case OP_OR:
			out[i] = x | y
		case OP_XOR:
			out[i] = x ^ y
		}
	}
	vm.dstack.PushByteArray(out)
	return nil
}

// opcodeEqual 按原始字节比较栈顶两个元素。
//
// Stack transformation: [... x1 x2] -> [... bool]
func opcodeEqual(op *opcode, data []byte, vm *Engine) error {
	a, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	b, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	vm.dstack.PushBool(bytes.Equal(a, b))
	return nil
}

// Stack transformation: [... x1 x2] -> [... bool] -> [...]
func opcodeEqualVerify(op *opcode, data []byte, vm *Engine) error {
	err := opcodeEqual(op, data, vm)
	if err == nil {
		err = abstractVerify(op, vm, ErrEqualVerify)
	}
	return err
}

// opcodeUnaryNum 对栈顶整数执行一元运算。
//
// Stack transformation: [... x1] -> [... f(x1)]
func opcodeUnaryNum(op *opcode, data []byte, vm *Engine) error {
	n, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}

	switch op.value {
	case OP_1ADD:
		n.Add(n, bigOne)
	case OP_1SUB:
		n.Sub(n, bigOne)
	case OP_2MUL:
		n.Lsh(n, 1)
	case OP_2DIV:
		n.Quo(n, big.NewInt(2))
	case OP_NEGATE:
		n.Neg(n)
	case OP_ABS:
		n.Abs(n)
	case OP_NOT:
		if n.Sign() == 0 {
			n.SetInt64(1)
		} else {
			n.SetInt64(0)
		}
	case OP_0NOTEQUAL:
		if n.Sign() != 0 {
			n.SetInt64(1)
		}
	}
	vm.dstack.PushInt(n)
	return nil
}

// popNumPair 弹出两个整数，返回 (x1, x2)，其中 x2 为原栈顶。
func popNumPair(vm *Engine) (*big.Int, *big.Int, error) {
	v2, err := vm.dstack.PopInt()
	if err != nil {
		return nil, nil, err
	}
	v1, err := vm.dstack.PopInt()
	if err != nil {
		return nil, nil, err
	}
	return v1, v2, nil
}

// opcodeBinaryNum 对栈顶两个整数执行算术运算。
//
// Stack transformation: [... x1 x2] -> [... f(x1, x2)]
func opcodeBinaryNum(op *opcode, data []byte, vm *Engine) error {
	v1, v2, err := popNumPair(vm)
	if err != nil {
		return err
	}

	n := new(big.Int)
	switch op.value {
	case OP_ADD:
		n.Add(v1, v2)
	case OP_SUB:
		n.Sub(v1, v2)
	case OP_MUL:
		n.Mul(v1, v2)
	case OP_DIV, OP_MOD:
		if v2.Sign() == 0 {
			return scriptError(ErrOutOfBounds, op.name+" division by zero")
		}
		if op.value == OP_DIV {
			n.Quo(v1, v2)
		} else {
			n.Rem(v1, v2)
		}
	case OP_LSHIFT, OP_RSHIFT:
		if v2.Sign() < 0 || v2.Cmp(big.NewInt(maxShiftBits)) > 0 {
			str := fmt.Sprintf("%s parameter %s out of bounds", op.name, v2)
			return scriptError(ErrOutOfBounds, str)
		}
		if op.value == OP_LSHIFT {
			n.Lsh(v1, uint(v2.Uint64()))
		} else {
			n.Rsh(v1, uint(v2.Uint64()))
		}
	case OP_MIN:
		n = v2
		if v1.Cmp(v2) < 0 {
			n = v1
		}
	case OP_MAX:
		n = v2
		if v1.Cmp(v2) > 0 {
			n = v1
		}
	}
	vm.dstack.PushInt(n)
	return nil
}

// opcodeCompareNum 对栈顶两个整数执行比较或布尔运算，结果编码为单字节布尔值。
//
// Stack transformation: [... x1 x2] -> [... bool]
func opcodeCompareNum(op *opcode, data []byte, vm *Engine) error {
	v1, v2, err := popNumPair(vm)
	if err != nil {
		return err
	}

	var result bool
	switch op.value {
	case OP_BOOLAND:
		result = v1.Sign() != 0 && v2.Sign() != 0
	case OP_BOOLOR:
		result = v1.Sign() != 0 || v2.Sign() != 0
	case OP_NUMEQUAL, OP_NUMEQUALVERIFY:
		result = v1.Cmp(v2) == 0
	case OP_NUMNOTEQUAL:
		result = v1.Cmp(v2) != 0
	case OP_LESSTHAN:
		result = v1.Cmp(v2) < 0
	case OP_GREATERTHAN:
		result = v1.Cmp(v2) > 0
	case OP_LESSTHANOREQUAL:
		result = v1.Cmp(v2) <= 0
	case OP_GREATERTHANOREQUAL:
		result = v1.Cmp(v2) >= 0
	}
	vm.dstack.PushBool(result)
	return nil
}

// Stack transformation: [... x1 x2] -> [... bool] -> [...]
func opcodeNumEqualVerify(op *opcode, data []byte, vm *Engine) error {
	err := opcodeCompareNum(op, data, vm)
	if err == nil {
		err = abstractVerify(op, vm, ErrNumEqualVerify)
	}
	return err
}

// opcodeWithin 判断 x 是否严格位于 (min, max) 之间。
//
// Stack transformation: [... x min max] -> [... bool]
func opcodeWithin(op *opcode, data []byte, vm *Engine) error {
	maxVal, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	minVal, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	x, err := vm.dstack.PopInt()
	if err != nil {
		return err
	}
	vm.dstack.PushBool(x.Cmp(minVal) > 0 && x.Cmp(maxVal) < 0)
	return nil
}

// opcodeHash 用对应的哈希函数替换栈顶元素。
//
// Stack transformation: [... x1] -> [... hash(x1)]
func opcodeHash(op *opcode, data []byte, vm *Engine) error {
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}

	var digest []byte
	switch op.value {
	case OP_RIPEMD160:
		h := ripemd160.New()
		h.Write(buf)
		digest = h.Sum(nil)
	case OP_SHA1:
		sum := sha1.Sum(buf)
		digest = sum[:]
	case OP_SHA256:
		sum := sha256.Sum256(buf)
		digest = sum[:]
	case OP_HASH160:
		digest = btcutil.Hash160(buf)
	case OP_HASH256:
		digest = chainhash.DoubleHashB(buf)
	}
	vm.dstack.PushByteArray(digest)
	return nil
}

// opcodeCodeSeparator 记录签名子脚本的起始位置为下一条指令。
func opcodeCodeSeparator(op *opcode, data []byte, vm *Engine) error {
	vm.lastCodeSep = vm.opcodeIdx + 1
	return nil
}

// opcodeCheckSig 使用栈上的签名与公钥验证交易签名。
// 签名子脚本为最后一个 OP_CODESEPARATOR 之后的部分，并移除其中对签名本身的推送。
//
// Stack transformation: [... signature pubkey] -> [... bool]
func opcodeCheckSig(op *opcode, data []byte, vm *Engine) error {
	pkBytes, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	sigBytes, err := vm.dstack.PeekByteArray(1)
	if err != nil {
		return err
	}

	subScript := removeOpcodeByData(vm.subScript(), sigBytes)
	valid, err := checkSignature(sigBytes, pkBytes, unparseScript(subScript), vm.tx, vm.txIdx, vm.hashType)
	if err != nil {
		return err
	}

	if err := vm.dstack.DropN(2); err != nil {
		return err
	}
	vm.dstack.PushBool(valid)
	return nil
}

// Stack transformation: [... signature pubkey] -> [... bool] -> [...]
func opcodeCheckSigVerify(op *opcode, data []byte, vm *Engine) error {
	err := opcodeCheckSig(op, data, vm)
	if err == nil {
		err = abstractVerify(op, vm, ErrCheckSigVerify)
	}
	return err
}

// opcodeCheckMultiSig 弹出公钥数量、公钥、签名数量和签名，然后失败。
// 多重签名匹配尚未实现，因此总是拒绝。
//
// Stack transformation:
// [... [sig ...] numsigs [pubkey ...] numpubkeys] -> failure
func opcodeCheckMultiSig(op *opcode, data []byte, vm *Engine) error {
	numKeys, err := popCount(vm, ErrInvalidPubKeyCount)
	if err != nil {
		return err
	}
	if numKeys > 0 {
		if err := vm.dstack.DropN(numKeys); err != nil {
			return err
		}
	}
	numSigs, err := popCount(vm, ErrInvalidSignatureCount)
	if err != nil {
		return err
	}
	if numSigs > 0 {
		if err := vm.dstack.DropN(numSigs); err != nil {
			return err
		}
	}

	// TODO: match signatures against keys in order and push the result
	// instead of failing closed.
	str := fmt.Sprintf("%s is not implemented (%d-of-%d)", op.name, numSigs, numKeys)
	return scriptError(ErrUnimplemented, str)
}

// popCount 弹出一个 [0, MaxPubKeysPerMultiSig] 范围内的计数。
func popCount(vm *Engine, c ErrorCode) (int, error) {
	n, err := vm.dstack.PopInt()
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.Cmp(big.NewInt(MaxPubKeysPerMultiSig)) > 0 {
		str := fmt.Sprintf("count %s out of range [0, %d]", n, MaxPubKeysPerMultiSig)
		return 0, scriptError(c, str)
	}
	return int(n.Int64()), nil
}
