// Package export 把 sales.Row 写成 CSV 或 XLSX。
package export

import (
	"strconv"
	"time"

	"pos_report/internal/sales"
)

// TimeLayout 导出中下单时间的格式（按配置时区显示）。
const TimeLayout = "2006-01-02 15:04:05"

// 导出文件的 Content-Type。
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeGBK  = "text/csv; charset=gbk"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Record 将一行转换为与 sales.ExportColumns 对应的字符串列。
func Record(r sales.Row, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	return []string{
		strconv.FormatUint(uint64(r.OrderID), 10),
		r.Platform,
		r.CreatedAt.In(loc).Format(TimeLayout),
		r.ProductName,
		r.UnitPrice.String(),
		strconv.Itoa(r.Quantity),
		r.Discount.String(),
		r.Subtotal.String(),
	}
}
