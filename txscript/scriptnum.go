// 脚本数值：堆栈上的字节数组按小端序二进制补码解释为任意精度整数。

package txscript

import (
	"fmt"
	"math/big"
)

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
)

// makeScriptNum 将小端序二进制补码字节数组解释为整数。空数组表示 0。
// 符号位取自最高有效字节（即最后一个字节）的最高位。
func makeScriptNum(v []byte) *big.Int {
	if len(v) == 0 {
		return new(big.Int)
	}

	// Reverse into big-endian for math/big.
	be := make([]byte, len(v))
	for i := range v {
		be[len(v)-1-i] = v[i]
	}

	n := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		// Negative: subtract 2^(8*len).
		mod := new(big.Int).Lsh(bigOne, uint(8*len(v)))
		n.Sub(n, mod)
	}
	return n
}

// scriptNumBytes 以最短的小端序二进制补码形式编码 n。0 编码为空数组。
func scriptNumBytes(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{}
	}

	var be []byte
	if n.Sign() > 0 {
		be = n.Bytes()
		// A leading byte with the high bit set would read as negative.
		if be[0]&0x80 != 0 {
			be = append([]byte{0x00}, be...)
		}
	} else {
		// Two's complement of |n| in the smallest width that keeps the
		// sign bit set.
		abs := new(big.Int).Neg(n)
		size := (abs.BitLen() + 8) / 8
		mod := new(big.Int).Lsh(bigOne, uint(8*size))
		be = new(big.Int).Add(mod, n).Bytes()
		for len(be) < size {
			be = append([]byte{0x00}, be...)
		}
		// Trim redundant 0xff bytes, e.g. -128 is 0x80 not 0xff80.
		for len(be) > 1 && be[0] == 0xff && be[1]&0x80 != 0 {
			be = be[1:]
		}
	}

	le := make([]byte, len(be))
	for i := range be {
		le[len(be)-1-i] = be[i]
	}
	return le
}

// asBool 将字节数组解释为布尔值：数值非零即为 true。
func asBool(v []byte) bool {
	return makeScriptNum(v).Sign() != 0
}

// fromBool 将布尔值编码为单字节 0x01 或 0x00。
func fromBool(v bool) []byte {
	if v {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// asInt 将字节数组解释为 int32 范围内的整数，超出范围时返回 ErrNumberTooBig。
func asInt(v []byte) (int, error) {
	n := makeScriptNum(v)
	if !n.IsInt64() || n.Int64() > maxInt32 || n.Int64() < minInt32 {
		str := fmt.Sprintf("numeric value %s out of range", n)
		return 0, scriptError(ErrNumberTooBig, str)
	}
	return int(n.Int64()), nil
}

const (
	maxInt32 = 1<<31 - 1
	minInt32 = -1 << 31
)
