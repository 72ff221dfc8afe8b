package money

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount 金额，单位：分。落库与计算统一用整数，避免浮点误差。
type Amount int64

// FromDecimal 将元为单位的小数四舍五入到分。
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Round(2).Shift(2).IntPart())
}

// Parse 解析 "12.5" / "12.50" 形式的金额字符串。
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Decimal 返回以元为单位的 decimal 表示。
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String 固定两位小数，如 "14.00"、"-0.50"。
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// Float64 用于表格导出的数值单元格。
func (a Amount) Float64() float64 {
	return a.Decimal().InexactFloat64()
}

// MarshalJSON 输出 JSON number，保留两位小数。
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON 同时接受 JSON number 与字符串（"5.00"）。
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("invalid amount %s: %w", strconv.Quote(string(b)), err)
	}
	*a = FromDecimal(d)
	return nil
}

// Subtotal 行小计 = 单价 * 数量 - 折扣。
// 折扣超过行金额时结果为负，原样返回，不做截断。
func Subtotal(unitPrice Amount, quantity int, discount Amount) Amount {
	return unitPrice*Amount(quantity) - discount
}

// Sum 累加金额。
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}
