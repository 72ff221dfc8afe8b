package sales

import (
	"time"

	"pos_report/internal/model"
	"pos_report/internal/money"
)

// ExportColumns 导出表头，列集合与顺序需与历史导出文件保持一致。
var ExportColumns = []string{
	"Order ID",
	"Platform",
	"Created At",
	"Product",
	"Unit Price",
	"Quantity",
	"Discount",
	"Subtotal",
}

// Row 一个订单项对应的一行导出数据。
type Row struct {
	OrderID     uint         `json:"order_id"`
	Platform    string       `json:"platform"`
	CreatedAt   time.Time    `json:"created_at"`
	ProductName string       `json:"product_name"`
	UnitPrice   money.Amount `json:"unit_price"`
	Quantity    int          `json:"quantity"`
	Discount    money.Amount `json:"discount"`
	Subtotal    money.Amount `json:"subtotal"`
}

// Project 把订单项展平为行：最近的订单在前，同一订单内按插入顺序。
func Project(orders []model.Order, items []model.OrderItem, platformNames map[uint]string) []Row {
	if len(orders) == 0 {
		return []Row{}
	}
	rows := make([]Row, 0, len(items))
	for _, o := range buildTree(orders, items, platformNames) {
		for _, it := range o.Items {
			rows = append(rows, Row{
				OrderID:     o.ID,
				Platform:    o.PlatformName,
				CreatedAt:   o.CreatedAt,
				ProductName: it.ProductName,
				UnitPrice:   it.UnitPrice,
				Quantity:    it.Quantity,
				Discount:    it.Discount,
				Subtotal:    it.Subtotal,
			})
		}
	}
	return rows
}
