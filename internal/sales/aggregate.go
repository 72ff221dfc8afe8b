package sales

import (
	"sort"
	"time"

	"pos_report/internal/model"
	"pos_report/internal/money"
)

// Unspecified 订单未关联平台或平台已无法解析时的分组名。
const Unspecified = "unspecified"

// ProductTotal 单个商品的汇总。
type ProductTotal struct {
	ProductName string       `json:"product_name"`
	TotalQty    int          `json:"total_qty"`
	TotalAmount money.Amount `json:"total_amount"`
}

// ProductSummary 按 ProductName 字节序升序排列。
type ProductSummary []ProductTotal

// Get 按商品名精确查找（区分大小写）。
func (s ProductSummary) Get(name string) (ProductTotal, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].ProductName >= name })
	if i < len(s) && s[i].ProductName == name {
		return s[i], true
	}
	return ProductTotal{}, false
}

// PlatformProductTotal 平台 × 商品的汇总。
type PlatformProductTotal struct {
	PlatformName string       `json:"platform_name"`
	ProductName  string       `json:"product_name"`
	Qty          int          `json:"qty"`
	Amount       money.Amount `json:"amount"`
}

// PlatformProductSummary 按 (PlatformName, ProductName) 升序排列。
type PlatformProductSummary []PlatformProductTotal

// Get 按 (平台名, 商品名) 查找。
func (s PlatformProductSummary) Get(platform, product string) (PlatformProductTotal, bool) {
	i := sort.Search(len(s), func(i int) bool {
		return !platformProductLess(s[i].PlatformName, s[i].ProductName, platform, product)
	})
	if i < len(s) && s[i].PlatformName == platform && s[i].ProductName == product {
		return s[i], true
	}
	return PlatformProductTotal{}, false
}

func platformProductLess(p1, n1, p2, n2 string) bool {
	if p1 != p2 {
		return p1 < p2
	}
	return n1 < n2
}

// OrderDetail 订单头 + 订单项，Total 恒等于各项 Subtotal 之和。
type OrderDetail struct {
	ID           uint              `json:"id"`
	PlatformID   *uint             `json:"platform_id"`
	PlatformName string            `json:"platform_name"`
	CreatedAt    time.Time         `json:"created_at"`
	Total        money.Amount      `json:"total"`
	Items        []model.OrderItem `json:"items"`
}

// Summary 一个窗口内订单的聚合结果。
type Summary struct {
	OrderCount             int                    `json:"order_count"`
	TotalQuantity          int                    `json:"total_quantity"`
	TotalAmount            money.Amount           `json:"total_amount"`
	ProductSummary         ProductSummary         `json:"product_summary"`
	PlatformProductSummary PlatformProductSummary `json:"platform_product_summary"`
	Orders                 []OrderDetail          `json:"orders"`
}

func emptySummary() Summary {
	return Summary{
		ProductSummary:         ProductSummary{},
		PlatformProductSummary: PlatformProductSummary{},
		Orders:                 []OrderDetail{},
	}
}

// PlatformNames 将平台列表转换为 id → name 映射。
func PlatformNames(platforms []model.Platform) map[uint]string {
	out := make(map[uint]string, len(platforms))
	for _, p := range platforms {
		out[p.ID] = p.Name
	}
	return out
}

func platformName(names map[uint]string, id *uint) string {
	if id == nil {
		return Unspecified
	}
	if name, ok := names[*id]; ok && name != "" {
		return name
	}
	return Unspecified
}

// Aggregate 汇总订单与订单项。金额使用落库的 Subtotal，不按单价数量重算。
// 不属于 orders 的订单项被忽略；没有订单项的订单仍计入 OrderCount。
func Aggregate(orders []model.Order, items []model.OrderItem, platformNames map[uint]string) Summary {
	if len(orders) == 0 {
		return emptySummary()
	}

	tree := buildTree(orders, items, platformNames)

	out := Summary{
		OrderCount: len(tree),
		Orders:     tree,
	}
	byProduct := make(map[string]*ProductTotal)
	type pk struct{ platform, product string }
	byPlatformProduct := make(map[pk]*PlatformProductTotal)

	for _, o := range tree {
		for _, it := range o.Items {
			out.TotalQuantity += it.Quantity
			out.TotalAmount += it.Subtotal

			p, ok := byProduct[it.ProductName]
			if !ok {
				p = &ProductTotal{ProductName: it.ProductName}
				byProduct[it.ProductName] = p
			}
			p.TotalQty += it.Quantity
			p.TotalAmount += it.Subtotal

			key := pk{o.PlatformName, it.ProductName}
			pp, ok := byPlatformProduct[key]
			if !ok {
				pp = &PlatformProductTotal{PlatformName: o.PlatformName, ProductName: it.ProductName}
				byPlatformProduct[key] = pp
			}
			pp.Qty += it.Quantity
			pp.Amount += it.Subtotal
		}
	}

	out.ProductSummary = make(ProductSummary, 0, len(byProduct))
	for _, p := range byProduct {
		out.ProductSummary = append(out.ProductSummary, *p)
	}
	sort.Slice(out.ProductSummary, func(i, j int) bool {
		return out.ProductSummary[i].ProductName < out.ProductSummary[j].ProductName
	})

	out.PlatformProductSummary = make(PlatformProductSummary, 0, len(byPlatformProduct))
	for _, pp := range byPlatformProduct {
		out.PlatformProductSummary = append(out.PlatformProductSummary, *pp)
	}
	sort.Slice(out.PlatformProductSummary, func(i, j int) bool {
		a, b := out.PlatformProductSummary[i], out.PlatformProductSummary[j]
		return platformProductLess(a.PlatformName, a.ProductName, b.PlatformName, b.ProductName)
	})
	return out
}

// buildTree 重建订单树：订单按创建时间倒序（同一时刻按 id 倒序），
// 订单项按插入顺序（id 升序）。
func buildTree(orders []model.Order, items []model.OrderItem, platformNames map[uint]string) []OrderDetail {
	byOrder := make(map[uint][]model.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	sorted := make([]model.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})

	tree := make([]OrderDetail, 0, len(sorted))
	seen := make(map[uint]bool, len(sorted))
	for _, o := range sorted {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true

		its := byOrder[o.ID]
		sort.SliceStable(its, func(i, j int) bool { return its[i].ID < its[j].ID })
		if its == nil {
			its = []model.OrderItem{}
		}

		var total money.Amount
		for _, it := range its {
			total += it.Subtotal
		}
		tree = append(tree, OrderDetail{
			ID:           o.ID,
			PlatformID:   o.PlatformID,
			PlatformName: platformName(platformNames, o.PlatformID),
			CreatedAt:    o.CreatedAt,
			Total:        total,
			Items:        its,
		})
	}
	return tree
}
