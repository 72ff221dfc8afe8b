package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pos_report/internal/model"
	"pos_report/internal/money"

	"go.uber.org/zap"
)

// 订单变更事件类型。
const (
	EventOrderCreated  = "order_created"
	EventItemCorrected = "item_corrected"
)

// ChangeEvent 写入成功后对外通知的订单变更。
type ChangeEvent struct {
	Type       string       `json:"type"`
	OrderID    uint         `json:"order_id"`
	ItemID     uint         `json:"item_id,omitempty"`
	Total      money.Amount `json:"total"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// ChangeNotifier 接收已提交的订单变更（事件外发等）。
type ChangeNotifier interface {
	Notify(ctx context.Context, ev ChangeEvent) error
}

// SummaryCache 汇总结果缓存。Version 是全局数据版本，每次写入后 Bump。
type SummaryCache interface {
	Version(ctx context.Context) (int64, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Bump(ctx context.Context) error
}

// Params 引擎依赖。Cache / Notifier 可为空。
type Params struct {
	Store          Store
	Log            *zap.Logger
	Clock          func() time.Time
	Calendar       Calendar
	StrictDiscount bool
	Cache          SummaryCache
	CacheKey       func(w WindowKind, from, until time.Time, version int64) string
	Notifier       ChangeNotifier
}

// Engine 订单录入与报表聚合。
type Engine struct {
	store    Store
	log      *zap.Logger
	clock    func() time.Time
	calendar Calendar
	strict   bool
	cache    SummaryCache
	cacheKey func(w WindowKind, from, until time.Time, version int64) string
	notifier ChangeNotifier
}

func NewEngine(p Params) *Engine {
	e := &Engine{
		store:    p.Store,
		log:      p.Log,
		clock:    p.Clock,
		calendar: p.Calendar,
		strict:   p.StrictDiscount,
		cache:    p.Cache,
		cacheKey: p.CacheKey,
		notifier: p.Notifier,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.cacheKey == nil {
		e.cacheKey = defaultCacheKey
	}
	return e
}

func defaultCacheKey(w WindowKind, from, until time.Time, version int64) string {
	if w == WindowThisWeek {
		// 本周窗口的上界随 now 变化，版本号不变即数据不变
		until = time.Time{}
	}
	return fmt.Sprintf("summary:%s:%d:%d:v%d", w, from.Unix(), until.Unix(), version)
}

// Calendar 返回引擎使用的日历。
func (e *Engine) Calendar() Calendar { return e.calendar }

// Now 引擎时钟。
func (e *Engine) Now() time.Time { return e.clock() }

// ---- 商品 / 平台目录 ----

func (e *Engine) ListProducts(ctx context.Context) ([]model.Product, error) {
	list, err := e.store.ListProducts(ctx)
	return list, storageErr("list products", err)
}

// UpsertProduct 按名称登记商品；已存在时更新单价。
func (e *Engine) UpsertProduct(ctx context.Context, name string, price money.Amount) (model.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Product{}, validationf("product name is required")
	}
	if price < 0 {
		return model.Product{}, validationf("unit_price must be >= 0")
	}
	p, err := e.store.UpsertProduct(ctx, name, price)
	if err != nil {
		return model.Product{}, storageErr("upsert product", err)
	}
	e.bumpCache(ctx)
	return p, nil
}

func (e *Engine) DeleteProduct(ctx context.Context, id uint) error {
	if err := e.store.DeleteProduct(ctx, id); err != nil {
		return storageErr("delete product", err)
	}
	e.bumpCache(ctx)
	return nil
}

func (e *Engine) ListPlatforms(ctx context.Context) ([]model.Platform, error) {
	list, err := e.store.ListPlatforms(ctx)
	return list, storageErr("list platforms", err)
}

func (e *Engine) UpsertPlatform(ctx context.Context, name string) (model.Platform, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Platform{}, validationf("platform name is required")
	}
	p, err := e.store.UpsertPlatform(ctx, name)
	if err != nil {
		return model.Platform{}, storageErr("upsert platform", err)
	}
	// 平台名称在汇总时解析，删除或恢复平台都会改变已缓存的汇总
	e.bumpCache(ctx)
	return p, nil
}

func (e *Engine) DeletePlatform(ctx context.Context, id uint) error {
	if err := e.store.DeletePlatform(ctx, id); err != nil {
		return storageErr("delete platform", err)
	}
	e.bumpCache(ctx)
	return nil
}

// ---- 订单录入 ----

// ItemInput 订单行输入：引用商品目录（ProductID）或直接给出名称与单价。
// 引用目录时 UnitPrice 可覆盖目录价。
type ItemInput struct {
	ProductID   *uint         `json:"product_id"`
	ProductName string        `json:"product_name"`
	UnitPrice   *money.Amount `json:"unit_price"`
	Quantity    int           `json:"quantity"`
	Discount    money.Amount  `json:"discount"`
}

// CreateOrderInput 新订单。
type CreateOrderInput struct {
	PlatformID *uint       `json:"platform_id"`
	Items      []ItemInput `json:"items"`
}

func (in CreateOrderInput) validate() error {
	if len(in.Items) == 0 {
		return validationf("order must contain at least one item")
	}
	for i, it := range in.Items {
		if it.ProductID == nil && strings.TrimSpace(it.ProductName) == "" {
			return validationf("items[%d]: product_id or product_name is required", i)
		}
		if it.ProductID == nil && it.UnitPrice == nil {
			return validationf("items[%d]: unit_price is required for %q", i, it.ProductName)
		}
		if it.UnitPrice != nil && *it.UnitPrice < 0 {
			return validationf("items[%d]: unit_price must be >= 0", i)
		}
		if it.Quantity <= 0 {
			return validationf("items[%d]: quantity must be > 0", i)
		}
		if it.Discount < 0 {
			return validationf("items[%d]: discount must be >= 0", i)
		}
	}
	return nil
}

// CreateOrder 校验输入、快照商品名称与单价、计算小计，并原子写入订单。
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderDetail, error) {
	if err := in.validate(); err != nil {
		return OrderDetail{}, err
	}

	platformName := Unspecified
	if in.PlatformID != nil {
		pf, err := e.store.GetPlatform(ctx, *in.PlatformID)
		if err != nil {
			return OrderDetail{}, storageErr("get platform", err)
		}
		platformName = pf.Name
	}

	items := make([]model.OrderItem, 0, len(in.Items))
	for i, it := range in.Items {
		item := model.OrderItem{
			ProductName: strings.TrimSpace(it.ProductName),
			Quantity:    it.Quantity,
			Discount:    it.Discount,
		}
		if it.ProductID != nil {
			p, err := e.store.GetProduct(ctx, *it.ProductID)
			if err != nil {
				return OrderDetail{}, storageErr("get product", err)
			}
			id := p.ID
			item.ProductID = &id
			item.ProductName = p.Name
			item.UnitPrice = p.UnitPrice
		}
		if it.UnitPrice != nil {
			item.UnitPrice = *it.UnitPrice
		}
		item.Recalculate()
		if e.strict && item.Subtotal < 0 {
			return OrderDetail{}, validationf("items[%d]: discount %s exceeds line value %s",
				i, item.Discount, money.Subtotal(item.UnitPrice, item.Quantity, 0))
		}
		items = append(items, item)
	}

	createdAt := e.clock().UTC()
	id, err := e.store.CreateOrder(ctx, in.PlatformID, createdAt, items)
	if err != nil {
		return OrderDetail{}, storageErr("create order", err)
	}

	// 订单已提交：先失效缓存、外发事件，回读失败不再影响结果
	total := itemsTotal(items)
	e.afterWrite(ctx, ChangeEvent{
		Type:       EventOrderCreated,
		OrderID:    id,
		Total:      total,
		OccurredAt: createdAt,
	})

	detail, err := e.GetOrder(ctx, id)
	if err != nil {
		e.log.Warn("order read-back failed", zap.Uint("order_id", id), zap.Error(err))
		for i := range items {
			items[i].OrderID = id
		}
		detail = OrderDetail{
			ID:           id,
			PlatformID:   in.PlatformID,
			PlatformName: platformName,
			CreatedAt:    createdAt,
			Total:        total,
			Items:        items,
		}
	}
	e.log.Info("order created",
		zap.Uint("order_id", id),
		zap.Int("items", len(detail.Items)),
		zap.String("total", detail.Total.String()),
	)
	return detail, nil
}

// GetOrder 读取单个订单及其订单项。
func (e *Engine) GetOrder(ctx context.Context, id uint) (OrderDetail, error) {
	var detail OrderDetail
	err := e.store.Snapshot(ctx, func(s Store) error {
		orders, err := s.ListOrders(ctx, OrderFilter{IDs: []uint{id}})
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return notFoundf("order %d", id)
		}
		items, err := s.ListItems(ctx, []uint{id})
		if err != nil {
			return err
		}
		platforms, err := s.ListPlatforms(ctx)
		if err != nil {
			return err
		}
		detail = buildTree(orders, items, PlatformNames(platforms))[0]
		return nil
	})
	if err != nil {
		return OrderDetail{}, storageErr("get order", err)
	}
	return detail, nil
}

// UpdateItem 更正订单项的数量与折扣，小计按新值重算后落库。
func (e *Engine) UpdateItem(ctx context.Context, orderID, itemID uint, quantity int, discount money.Amount) (OrderDetail, error) {
	if quantity <= 0 {
		return OrderDetail{}, validationf("quantity must be > 0")
	}
	if discount < 0 {
		return OrderDetail{}, validationf("discount must be >= 0")
	}
	if e.strict {
		items, err := e.store.ListItems(ctx, []uint{orderID})
		if err != nil {
			return OrderDetail{}, storageErr("list items", err)
		}
		var found *model.OrderItem
		for i := range items {
			if items[i].ID == itemID {
				found = &items[i]
				break
			}
		}
		if found == nil {
			return OrderDetail{}, notFoundf("order %d item %d", orderID, itemID)
		}
		if money.Subtotal(found.UnitPrice, quantity, discount) < 0 {
			return OrderDetail{}, validationf("discount %s exceeds line value %s",
				discount, money.Subtotal(found.UnitPrice, quantity, 0))
		}
	}

	item, err := e.store.UpdateItem(ctx, orderID, itemID, quantity, discount)
	if err != nil {
		return OrderDetail{}, storageErr("update item", err)
	}

	// 更正已提交：回读失败时仍失效缓存并外发事件，更正按绝对值写入，客户端重试是安全的
	detail, readErr := e.GetOrder(ctx, orderID)
	total := detail.Total
	if readErr != nil {
		if items, err := e.store.ListItems(ctx, []uint{orderID}); err == nil {
			total = itemsTotal(items)
		}
	}
	e.afterWrite(ctx, ChangeEvent{
		Type:       EventItemCorrected,
		OrderID:    orderID,
		ItemID:     item.ID,
		Total:      total,
		OccurredAt: e.clock().UTC(),
	})
	if readErr != nil {
		return OrderDetail{}, readErr
	}
	return detail, nil
}

func itemsTotal(items []model.OrderItem) money.Amount {
	var total money.Amount
	for _, it := range items {
		total += it.Subtotal
	}
	return total
}

func (e *Engine) bumpCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Bump(ctx); err != nil {
		e.log.Warn("summary cache bump failed", zap.Error(err))
	}
}

// afterWrite 写入已提交：失效缓存并外发事件，失败只记录日志。
func (e *Engine) afterWrite(ctx context.Context, ev ChangeEvent) {
	e.bumpCache(ctx)
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, ev); err != nil {
			e.log.Warn("order event notify failed",
				zap.String("type", ev.Type),
				zap.Uint("order_id", ev.OrderID),
				zap.Error(err),
			)
		}
	}
}

// ---- 报表 ----

// OrdersInWindow 返回窗口内的订单 ID，最近的在前；无订单时返回空切片。
func (e *Engine) OrdersInWindow(ctx context.Context, w Window) ([]uint, error) {
	from, until, err := e.calendar.Bounds(w, e.clock())
	if err != nil {
		return nil, err
	}
	orders, err := e.store.ListOrders(ctx, OrderFilter{From: from, Until: until})
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	ids := make([]uint, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// load 在同一快照内读取窗口内的订单、订单项与平台。
func (e *Engine) load(ctx context.Context, from, until time.Time) (orders []model.Order, items []model.OrderItem, names map[uint]string, err error) {
	err = e.store.Snapshot(ctx, func(s Store) error {
		var err error
		orders, err = s.ListOrders(ctx, OrderFilter{From: from, Until: until})
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		if items, err = s.ListItems(ctx, ids); err != nil {
			return err
		}
		platforms, err := s.ListPlatforms(ctx)
		if err != nil {
			return err
		}
		names = PlatformNames(platforms)
		return nil
	})
	if err != nil {
		return nil, nil, nil, storageErr("load window", err)
	}
	return orders, items, names, nil
}

// Summary 计算窗口汇总；配置了缓存时先查缓存。
func (e *Engine) Summary(ctx context.Context, w Window) (Summary, error) {
	from, until, err := e.calendar.Bounds(w, e.clock())
	if err != nil {
		return Summary{}, err
	}

	// 先读版本再计算：并发写入只会让结果落在旧版本的键下
	var key string
	if e.cache != nil {
		if v, err := e.cache.Version(ctx); err != nil {
			e.log.Warn("summary cache version failed", zap.Error(err))
		} else {
			key = e.cacheKey(w.Kind, from, until, v)
			if b, ok, err := e.cache.Get(ctx, key); err != nil {
				e.log.Warn("summary cache get failed", zap.String("key", key), zap.Error(err))
			} else if ok {
				var s Summary
				if err := json.Unmarshal(b, &s); err == nil {
					return s, nil
				}
			}
		}
	}

	orders, items, names, err := e.load(ctx, from, until)
	if err != nil {
		return Summary{}, err
	}
	s := Aggregate(orders, items, names)

	if key != "" {
		if b, err := json.Marshal(s); err == nil {
			if err := e.cache.Set(ctx, key, b); err != nil {
				e.log.Warn("summary cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return s, nil
}

// Export 窗口内订单项的扁平行，供 CSV / 表格导出。
func (e *Engine) Export(ctx context.Context, w Window) ([]Row, error) {
	from, until, err := e.calendar.Bounds(w, e.clock())
	if err != nil {
		return nil, err
	}
	orders, items, names, err := e.load(ctx, from, until)
	if err != nil {
		return nil, err
	}
	return Project(orders, items, names), nil
}
