// 包含脚本执行引擎的核心代码，负责按顺序执行解锁脚本与锁定脚本。

package txscript

import (
	"fmt"
	"strings"

	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
)

// ScriptFlags 是一个位掩码，定义执行脚本对时将完成的附加操作或测试。
type ScriptFlags uint32

const (
	// ScriptAllowDisabledOpcodes 允许执行字符串、位运算以及扩展算术操作码。
	// 未设置时，这些操作码只要出现在指令流中就会导致失败。
	ScriptAllowDisabledOpcodes ScriptFlags = 1 << iota
)

// MaxStackSize 是主栈与备用栈元素总数的上限，每个操作码执行后检查。
const MaxStackSize = 1000

// Engine 是执行脚本的虚拟机。每个输入的每次验证使用一个新实例，实例之间不共享任何状态。
type Engine struct {
	// 以下字段在创建引擎时设置，之后不得更改。
	//
	// tx 标识包含正在验证输入的交易，txIdx 为该输入的索引。
	// hashType 为 CHECKSIG 使用的签名哈希类型，为 0 时取签名的最后一个字节。
	flags    ScriptFlags
	tx       *wire.Transaction
	txIdx    int
	hashType SigHashType

	// 以下字段负责跟踪引擎的当前执行状态。
	//
	// scripts 依次为解锁脚本与锁定脚本，主栈在两者之间保留。
	//
	// opcodeIdx 为当前脚本中的块编号，lastCodeSep 为最后一个 OP_CODESEPARATOR 之后的块编号。
	//
	// condStack 每个未闭合的 OP_IF/OP_NOTIF 对应一项，值为该分支是否执行。
	scripts     [][]parsedOpcode
	scriptIdx   int
	opcodeIdx   int
	lastCodeSep int
	dstack      stack
	astack      stack
	condStack   []bool
}

// logClosure 用于延迟构造开销较大的日志内容，只有在对应级别启用时才会求值。
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

// hasFlag 返回脚本引擎实例是否设置了传递的标志。
func (vm *Engine) hasFlag(flag ScriptFlags) bool {
	return vm.flags&flag == flag
}

// isBranchExecuting 返回当前条件分支是否正在主动执行。
// 只要条件栈中存在任何 false，当前块就不执行，这样可以正确处理嵌套条件。
func (vm *Engine) isBranchExecuting() bool {
	for _, cond := range vm.condStack {
		if !cond {
			return false
		}
	}
	return true
}

// executeOpcode 执行传递的块。
// 它考虑到块是否被条件隐藏，但在这种情况下仍然必须检查被禁用的操作码以及条件操作码本身。
func (vm *Engine) executeOpcode(pop *parsedOpcode) error {
	// Disabled opcodes fail on program counter.
	if !vm.hasFlag(ScriptAllowDisabledOpcodes) && isOpcodeDisabled(pop.opcode.value) {
		str := fmt.Sprintf("attempt to execute disabled opcode %s", pop.opcode.name)
		return scriptError(ErrDisabledOpcode, str)
	}

	// Nothing left to do when this is not a conditional opcode and it is
	// not in an executing branch.
	if !vm.isBranchExecuting() && !isOpcodeConditional(pop.opcode.value) {
		return nil
	}

	return pop.opcode.opfunc(pop.opcode, pop.data, vm)
}

// DisasmPC 返回当前程序计数器处操作码的反汇编字符串。
func (vm *Engine) DisasmPC() (string, error) {
	if vm.scriptIdx >= len(vm.scripts) || vm.opcodeIdx >= len(vm.scripts[vm.scriptIdx]) {
		return "", scriptError(ErrInternal, "program counter beyond end of scripts")
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "%02x:%04x: ", vm.scriptIdx, vm.opcodeIdx)
	disasmOpcode(&buf, &vm.scripts[vm.scriptIdx][vm.opcodeIdx])
	return buf.String(), nil
}

// DisasmScript 返回给定索引处脚本的多行反汇编，每行一个块。
func (vm *Engine) DisasmScript(idx int) (string, error) {
	if idx < 0 || idx >= len(vm.scripts) {
		str := fmt.Sprintf("script index %d >= total scripts %d", idx, len(vm.scripts))
		return "", scriptError(ErrInvalidIndex, str)
	}

	var buf strings.Builder
	for i := range vm.scripts[idx] {
		fmt.Fprintf(&buf, "%02x:%04x: ", idx, i)
		disasmOpcode(&buf, &vm.scripts[idx][i])
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

// CheckErrorCondition 在脚本全部执行完毕后检查结果：栈必须非空且栈顶为 true。
// 栈顶元素保留在栈上，便于调用方通过 GetStack 查看。
func (vm *Engine) CheckErrorCondition() error {
	if vm.scriptIdx < len(vm.scripts) {
		return scriptError(ErrInternal, "error check when script unfinished")
	}

	if vm.dstack.Depth() < 1 {
		return scriptError(ErrEmptyStack, "stack empty at end of script execution")
	}

	v, err := vm.dstack.PeekBool(0)
	if err != nil {
		return err
	}
	if !v {
		// 记录有趣的数据。
		logrus.Tracef("%v", newLogClosure(func() string {
			var buf strings.Builder
			buf.WriteString("scripts failed:\n")
			for i := range vm.scripts {
				dis, _ := vm.DisasmScript(i)
				fmt.Fprintf(&buf, "script%d:\n", i)
				buf.WriteString(dis)
			}
			return buf.String()
		}))
		return scriptError(ErrEvalFalse, "false stack entry at end of script execution")
	}
	return nil
}

// Step 执行下一条指令，并将程序计数器移至脚本中的下一个块，如果当前脚本已结束，则移至下一个脚本。
// 最后一个脚本的最后一个块成功执行后返回 true。
//
// 如果返回错误，则再调用 Step 或任何其他方法的结果是未定义的。
func (vm *Engine) Step() (done bool, err error) {
	if vm.scriptIdx >= len(vm.scripts) {
		return true, scriptError(ErrInternal, "attempt to step beyond final script")
	}

	script := vm.scripts[vm.scriptIdx]
	if err := vm.executeOpcode(&script[vm.opcodeIdx]); err != nil {
		return true, err
	}

	// The number of elements in the combination of the data and alt stacks
	// must not exceed the maximum number of stack elements allowed.
	combinedStackSize := vm.dstack.Depth() + vm.astack.Depth()
	if combinedStackSize > MaxStackSize {
		str := fmt.Sprintf("combined stack size %d > max allowed %d", combinedStackSize, MaxStackSize)
		return true, scriptError(ErrStackOverflow, str)
	}

	// Prepare for next instruction.
	vm.opcodeIdx++
	if vm.opcodeIdx < len(script) {
		return false, nil
	}

	// Illegal to have a conditional that straddles two scripts.
	if len(vm.condStack) != 0 {
		return true, scriptError(ErrUnbalancedConditional, "end of script reached in conditional execution")
	}

	// Alt stack and code separator position don't persist between scripts.
	_ = vm.astack.DropN(vm.astack.Depth())
	vm.opcodeIdx = 0
	vm.lastCodeSep = 0
	vm.scriptIdx++
	vm.skipEmptyScripts()

	return vm.scriptIdx >= len(vm.scripts), nil
}

// skipEmptyScripts 将程序计数器移过没有任何块的脚本。
func (vm *Engine) skipEmptyScripts() {
	for vm.scriptIdx < len(vm.scripts) && len(vm.scripts[vm.scriptIdx]) == 0 {
		vm.scriptIdx++
	}
}

// Execute 执行脚本引擎中的所有脚本，如果验证成功则返回 nil，否则返回遇到的第一个错误。
func (vm *Engine) Execute() (err error) {
	done := vm.scriptIdx >= len(vm.scripts)
	for !done {
		logrus.Tracef("%v", newLogClosure(func() string {
			dis, err := vm.DisasmPC()
			if err != nil {
				return fmt.Sprintf("stepping - failed to disasm pc: %v", err)
			}
			return fmt.Sprintf("stepping %v", dis)
		}))

		done, err = vm.Step()
		if err != nil {
			return err
		}
		logrus.Tracef("%v", newLogClosure(func() string {
			var dstr, astr string

			// 跟踪时记录非空堆栈。
			if vm.dstack.Depth() != 0 {
				dstr = "Stack:\n" + vm.dstack.String()
			}
			if vm.astack.Depth() != 0 {
				astr = "AltStack:\n" + vm.astack.String()
			}

			return dstr + astr
		}))
	}

	return vm.CheckErrorCondition()
}

// subScript 返回当前脚本自最后一个 OP_CODESEPARATOR 以来的块。
func (vm *Engine) subScript() []parsedOpcode {
	return vm.scripts[vm.scriptIdx][vm.lastCodeSep:]
}

// getStack 以自下而上的字节数组形式返回堆栈的内容
func getStack(stack *stack) [][]byte {
	array := make([][]byte, stack.Depth())
	for i := range array {
		// PeekByteArray can't fail due to overflow, already checked
		array[len(array)-i-1], _ = stack.PeekByteArray(i)
	}
	return array
}

// GetStack 以数组形式返回主堆栈的内容。 其中数组中的最后一项是堆栈的顶部。
func (vm *Engine) GetStack() [][]byte {
	return getStack(&vm.dstack)
}

// GetAltStack 以数组形式返回备用堆栈的内容，其中数组中的最后一项是堆栈的顶部。
func (vm *Engine) GetAltStack() [][]byte {
	return getStack(&vm.astack)
}

// NewEngine 为解锁脚本、锁定脚本、交易和输入索引返回一个新的脚本引擎。
// tx 可以为 nil，此时任何签名检查都不成立。
func NewEngine(sigScript, pkScript []byte, tx *wire.Transaction, txIdx int,
	flags ScriptFlags, hashType SigHashType) (*Engine, error) {

	// 提供的交易输入索引必须引用有效的输入。
	if tx != nil && (txIdx < 0 || txIdx >= tx.NumInputs()) {
		str := fmt.Sprintf("transaction input index %d is negative or >= %d", txIdx, tx.NumInputs())
		return nil, scriptError(ErrInvalidIndex, str)
	}

	vm := Engine{
		flags:    flags,
		tx:       tx,
		txIdx:    txIdx,
		hashType: hashType,
	}

	for _, scr := range [][]byte{sigScript, pkScript} {
		pops, err := parseScript(scr)
		if err != nil {
			return nil, err
		}
		vm.scripts = append(vm.scripts, pops)
	}
	vm.skipEmptyScripts()

	return &vm, nil
}

// VerifyScript 依次执行解锁脚本和锁定脚本，两者共享同一个主栈，
// 执行完毕后栈非空且栈顶为 true 时返回 true。
// 任何执行错误（包括 panic）都不会传播给调用方，而是以 Debug 级别记录并返回 false。
func VerifyScript(sigScript, pkScript []byte, tx *wire.Transaction, txIdx int,
	flags ScriptFlags, hashType SigHashType) (ok bool) {

	defer func() {
		if r := recover(); r != nil {
			err := scriptError(ErrScriptPanic, fmt.Sprintf("%v", r))
			logrus.Debugf("script evaluation ended early: %v", err)
			ok = false
		}
	}()

	vm, err := NewEngine(sigScript, pkScript, tx, txIdx, flags, hashType)
	if err != nil {
		logrus.Debugf("script evaluation ended early: %v", err)
		return false
	}
	if err := vm.Execute(); err != nil {
		logrus.Debugf("script evaluation ended early: %v", err)
		return false
	}
	return true
}
