package export

import (
	"io"
	"strconv"
	"time"

	"pos_report/internal/sales"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Orders"

// 金额列：Unit Price / Discount / Subtotal
var moneyColumns = []string{"E", "G", "H"}

// WriteXLSX 写单工作表的 xlsx，金额与数量为数值单元格。
func WriteXLSX(w io.Writer, rows []sales.Row, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(sales.ExportColumns))
	for i, c := range sales.ExportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.OrderID,
			r.Platform,
			r.CreatedAt.In(loc).Format(TimeLayout),
			r.ProductName,
			r.UnitPrice.Float64(),
			r.Quantity,
			r.Discount.Float64(),
			r.Subtotal.Float64(),
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	if len(rows) > 0 {
		style, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
		if err != nil {
			return err
		}
		// 单价、折扣、小计保留两位小数，数量列保持整数
		for _, col := range moneyColumns {
			if err := f.SetCellStyle(sheetName, col+"2", col+strconv.Itoa(len(rows)+1), style); err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}
