package wire

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// CoinExp 是最小货币单位相对一个完整币的十进制位数。
const CoinExp = 8

// FormatValue 将以最小单位表示的金额格式化为完整币的十进制字符串，例如 150000000 -> "1.5"。
func FormatValue(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -CoinExp).String()
}

// FormatBigValue 与 FormatValue 相同，但接受任意精度的金额。
func FormatBigValue(v *big.Int) string {
	return decimal.NewFromBigInt(v, -CoinExp).String()
}
