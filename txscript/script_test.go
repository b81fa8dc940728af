// 包含脚本解析与反汇编的测试代码。

package txscript

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// hexString 返回字节的十六进制表示，供简写脚本拼接使用。
func hexString(b []byte) string {
	return hex.EncodeToString(b)
}

// TestParseScriptRoundTrip 确保解析后重新序列化得到相同的字节。
func TestParseScriptRoundTrip(t *testing.T) {
	t.Parallel()

	scripts := []string{
		"",
		"0 1 16 -1",
		"[00] [81] [0102030405]",
		"0x4c01 0x07",
		"0x4d0200 0x0102",
		"0x4e00000000",
		"DUP HASH160 [0102030405060708090a0b0c0d0e0f1011121314] EQUALVERIFY CHECKSIG",
		"0xba 0xff",
	}
	for _, s := range scripts {
		script := mustParseShortForm(s)
		pops, err := parseScript(script)
		require.NoError(t, err, s)
		require.Equal(t, script, append([]byte{}, unparseScript(pops)...), s)
	}
}

// TestParseScriptMalformed 确保推送长度超出脚本剩余部分时解析失败。
func TestParseScriptMalformed(t *testing.T) {
	t.Parallel()

	tests := [][]byte{
		{OP_DATA_2, 0x01},
		{OP_PUSHDATA1},
		{OP_PUSHDATA1, 0x02, 0x01},
		{OP_PUSHDATA2, 0x01},
		{OP_PUSHDATA2, 0x03, 0x00, 0x01},
		{OP_PUSHDATA4, 0x01, 0x00, 0x00},
		{OP_PUSHDATA4, 0xff, 0xff, 0xff, 0xff, 0x01},
	}
	for _, script := range tests {
		_, err := parseScript(script)
		require.True(t, IsErrorCode(err, ErrMalformedPush), "%x: got %v", script, err)
	}

	_, err := parseScript(make([]byte, MaxScriptSize+1))
	require.True(t, IsErrorCode(err, ErrScriptTooBig), "got %v", err)
}

// TestDisasmString 确保反汇编输出可读，且解析错误时追加 [error]。
func TestDisasmString(t *testing.T) {
	t.Parallel()

	dis, err := DisasmString(mustParseShortForm("DUP HASH160 [0102] EQUALVERIFY CHECKSIG"))
	require.NoError(t, err)
	require.Equal(t, "OP_DUP OP_HASH160 0102 OP_EQUALVERIFY OP_CHECKSIG", dis)

	dis, err = DisasmString([]byte{OP_1, OP_DATA_2, 0x01})
	require.True(t, IsErrorCode(err, ErrMalformedPush), "got %v", err)
	require.Equal(t, "OP_1 [error]", dis)

	dis, err = DisasmString(nil)
	require.NoError(t, err)
	require.Equal(t, "", dis)
}

// TestFindAndDelete 确保只删除与数据完全相同的推送。
func TestFindAndDelete(t *testing.T) {
	t.Parallel()

	script := mustParseShortForm("[aabb] 1 [aabb] [aabbcc] CODESEPARATOR")
	got, err := FindAndDelete(script, hexToBytes("aabb"))
	require.NoError(t, err)
	require.Equal(t, mustParseShortForm("1 [aabbcc] CODESEPARATOR"), got)

	got, err = RemoveOpcode(script, OP_CODESEPARATOR)
	require.NoError(t, err)
	require.Equal(t, mustParseShortForm("[aabb] 1 [aabb] [aabbcc]"), got)

	_, err = FindAndDelete([]byte{OP_DATA_5}, nil)
	require.Error(t, err)
}

// TestPushOnly 确保只含推送操作的脚本被识别。
func TestPushOnly(t *testing.T) {
	t.Parallel()

	require.True(t, IsPushOnlyScript(mustParseShortForm("0 -1 16 [aabbcc]")))
	require.True(t, IsPushOnlyScript(nil))
	require.False(t, IsPushOnlyScript(mustParseShortForm("1 DUP")))
	require.False(t, IsPushOnlyScript(mustParseShortForm("RESERVED")))
	require.False(t, IsPushOnlyScript([]byte{OP_DATA_1}))

	data, err := PushedData(mustParseShortForm("0 [aabb] 1 [cc00]"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{nil, hexToBytes("aabb"), hexToBytes("cc00")}, data)
}
