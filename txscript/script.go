// 脚本的块表示：解析、反解析、按数据删除以及反汇编。

package txscript

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxScriptSize 是单个脚本允许的最大字节数。
const MaxScriptSize = 10000

// parsedOpcode 表示脚本中的一个块：一个操作码及其携带的数据。
type parsedOpcode struct {
	opcode *opcode
	data   []byte
}

// isDataPush 返回该块是否为字面数据推送（OP_DATA_N 或 OP_PUSHDATAN）。
func (pop *parsedOpcode) isDataPush() bool {
	return pop.opcode.value >= OP_DATA_1 && pop.opcode.value <= OP_PUSHDATA4
}

// isPush 返回该块是否只向堆栈压入数据（包括 OP_0、OP_1NEGATE、OP_1-OP_16）。
func (pop *parsedOpcode) isPush() bool {
	return pop.opcode.value <= OP_16 && pop.opcode.value != OP_RESERVED
}

// bytes 返回该块的序列化字节。
func (pop *parsedOpcode) bytes() []byte {
	retbytes := make([]byte, 1, 1+5+len(pop.data))
	retbytes[0] = pop.opcode.value

	l := len(pop.data)
	switch pop.opcode.length {
	case 1:
		return retbytes
	case -1:
		retbytes = append(retbytes, byte(l))
	case -2:
		retbytes = binary.LittleEndian.AppendUint16(retbytes, uint16(l))
	case -4:
		retbytes = binary.LittleEndian.AppendUint32(retbytes, uint32(l))
	}
	return append(retbytes, pop.data...)
}

// parseScript 将原始脚本解析为块序列。数据推送长度超出脚本剩余部分时返回 ErrMalformedPush。
func parseScript(script []byte) ([]parsedOpcode, error) {
	if len(script) > MaxScriptSize {
		str := fmt.Sprintf("script size %d is larger than max allowed size %d", len(script), MaxScriptSize)
		return nil, scriptError(ErrScriptTooBig, str)
	}

	retScript := make([]parsedOpcode, 0, len(script))
	for i := 0; i < len(script); {
		instr := script[i]
		op := &opcodeArray[instr]
		pop := parsedOpcode{opcode: op}

		switch {
		// No additional data.  Note that some of the opcodes, notably
		// OP_1NEGATE, OP_0, and OP_[1-16] represent the data
		// themselves.
		case op.length == 1:
			i++

		// Data pushes of specific lengths -- OP_DATA_[1-75].
		case op.length > 1:
			if len(script[i:]) < op.length {
				str := fmt.Sprintf("opcode %s requires %d bytes, but script only has %d remaining",
					op.name, op.length, len(script[i:]))
				return retScript, scriptError(ErrMalformedPush, str)
			}

			// Slice out the data.
			pop.data = script[i+1 : i+op.length]
			i += op.length

		// Data pushes with parsed lengths -- OP_PUSHDATAP{1,2,4}.
		case op.length < 0:
			var l uint
			off := i + 1

			if len(script[off:]) < -op.length {
				str := fmt.Sprintf("opcode %s requires %d bytes, but script only has %d remaining",
					op.name, -op.length, len(script[off:]))
				return retScript, scriptError(ErrMalformedPush, str)
			}

			// Next -length bytes are little endian length of data.
			switch op.length {
			case -1:
				l = uint(script[off])
			case -2:
				l = uint(binary.LittleEndian.Uint16(script[off:]))
			case -4:
				l = uint(binary.LittleEndian.Uint32(script[off:]))
			}

			// Move offset to beginning of the data.
			off += -op.length

			// Disallow entries that do not fit script or were
			// sign extended.
			if int(l) > len(script[off:]) || int(l) < 0 {
				str := fmt.Sprintf("opcode %s pushes %d bytes, but script only has %d remaining",
					op.name, int(l), len(script[off:]))
				return retScript, scriptError(ErrMalformedPush, str)
			}

			pop.data = script[off : off+int(l)]
			i += 1 - op.length + int(l)
		}

		retScript = append(retScript, pop)
	}

	return retScript, nil
}

// unparseScript 将块序列重新序列化为原始脚本。
func unparseScript(pops []parsedOpcode) []byte {
	script := make([]byte, 0, len(pops))
	for i := range pops {
		script = append(script, pops[i].bytes()...)
	}
	return script
}

// removeOpcode 返回移除了所有给定操作码的块序列。
func removeOpcode(pkscript []parsedOpcode, opcode byte) []parsedOpcode {
	retScript := make([]parsedOpcode, 0, len(pkscript))
	for _, pop := range pkscript {
		if pop.opcode.value != opcode {
			retScript = append(retScript, pop)
		}
	}
	return retScript
}

// removeOpcodeByData 返回移除了所有数据等于 data 的推送块的序列。
// 签名不能对自身签名，因此在计算签名哈希前要先将其从子脚本中删除。
func removeOpcodeByData(pkscript []parsedOpcode, data []byte) []parsedOpcode {
	retScript := make([]parsedOpcode, 0, len(pkscript))
	for _, pop := range pkscript {
		if pop.isDataPush() && bytes.Equal(pop.data, data) {
			continue
		}
		retScript = append(retScript, pop)
	}
	return retScript
}

// FindAndDelete 从原始脚本中删除所有推送 data 的块并返回新脚本。
func FindAndDelete(script, data []byte) ([]byte, error) {
	pops, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return unparseScript(removeOpcodeByData(pops, data)), nil
}

// RemoveOpcode 从原始脚本中删除所有给定的操作码并返回新脚本。
func RemoveOpcode(script []byte, op byte) ([]byte, error) {
	pops, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return unparseScript(removeOpcode(pops, op)), nil
}

// isPushOnly 返回块序列是否只包含推送操作。
func isPushOnly(pops []parsedOpcode) bool {
	for i := range pops {
		if !pops[i].isPush() {
			return false
		}
	}
	return true
}

// IsPushOnlyScript 返回脚本是否只包含推送操作。无法解析的脚本返回 false。
func IsPushOnlyScript(script []byte) bool {
	pops, err := parseScript(script)
	if err != nil {
		return false
	}
	return isPushOnly(pops)
}

// PushedData 返回脚本中所有字面数据推送的内容。
func PushedData(script []byte) ([][]byte, error) {
	pops, err := parseScript(script)
	if err != nil {
		return nil, err
	}

	var data [][]byte
	for _, pop := range pops {
		if pop.isDataPush() {
			data = append(data, pop.data)
		} else if pop.opcode.value == OP_0 {
			data = append(data, nil)
		}
	}
	return data, nil
}

// disasmOpcode 将块的可读形式写入 buf。数据推送只输出十六进制数据。
func disasmOpcode(buf *strings.Builder, pop *parsedOpcode) {
	if pop.isDataPush() {
		buf.WriteString(hex.EncodeToString(pop.data))
		return
	}
	buf.WriteString(pop.opcode.name)
}

// DisasmString 返回脚本的单行反汇编字符串。
// 脚本无法完整解析时，已解析部分照常输出并追加 "[error]"，同时返回错误。
func DisasmString(script []byte) (string, error) {
	var disbuf strings.Builder
	pops, err := parseScript(script)
	for i := range pops {
		if i > 0 {
			disbuf.WriteByte(' ')
		}
		disasmOpcode(&disbuf, &pops[i])
	}
	if err != nil {
		if len(pops) > 0 {
			disbuf.WriteByte(' ')
		}
		disbuf.WriteString("[error]")
	}
	return disbuf.String(), err
}
