package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos_report/internal/model"
	"pos_report/internal/money"
	"pos_report/internal/sales"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm 的存储实现（默认 SQLite）。
type GormStore struct {
	db *gorm.DB
}

var _ sales.Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate 建表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Product{}, &model.Platform{}, &model.Order{}, &model.OrderItem{})
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", sales.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func (s *GormStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	var list []model.Product
	if err := s.db.WithContext(ctx).Order("name").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *GormStore) GetProduct(ctx context.Context, id uint) (model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return model.Product{}, notFound(err, "product %d", id)
	}
	return p, nil
}

// UpsertProduct 同名商品存在则更新单价；已软删除的同名商品会被恢复。
func (s *GormStore) UpsertProduct(ctx context.Context, name string, price money.Amount) (model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Unscoped().Where("name = ?", name).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = model.Product{Name: name, UnitPrice: price}
			return tx.Create(&p).Error
		}
		if err != nil {
			return err
		}
		p.UnitPrice = price
		p.DeletedAt = gorm.DeletedAt{}
		return tx.Unscoped().Save(&p).Error
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// DeleteProduct 软删除，历史订单项不受影响。
func (s *GormStore) DeleteProduct(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d", sales.ErrNotFound, id)
	}
	return nil
}

func (s *GormStore) ListPlatforms(ctx context.Context) ([]model.Platform, error) {
	var list []model.Platform
	if err := s.db.WithContext(ctx).Order("name").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *GormStore) GetPlatform(ctx context.Context, id uint) (model.Platform, error) {
	var p model.Platform
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return model.Platform{}, notFound(err, "platform %d", id)
	}
	return p, nil
}

func (s *GormStore) UpsertPlatform(ctx context.Context, name string) (model.Platform, error) {
	var p model.Platform
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Unscoped().Where("name = ?", name).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = model.Platform{Name: name}
			return tx.Create(&p).Error
		}
		if err != nil {
			return err
		}
		if !p.DeletedAt.Valid {
			return nil
		}
		p.DeletedAt = gorm.DeletedAt{}
		return tx.Unscoped().Save(&p).Error
	})
	if err != nil {
		return model.Platform{}, err
	}
	return p, nil
}

// DeletePlatform 软删除；引用它的历史订单在报表中归入 "unspecified"。
func (s *GormStore) DeletePlatform(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Platform{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: platform %d", sales.ErrNotFound, id)
	}
	return nil
}

// CreateOrder 在一个事务内写入订单头与全部订单项。
func (s *GormStore) CreateOrder(ctx context.Context, platformID *uint, createdAt time.Time, items []model.OrderItem) (uint, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: order has no items", sales.ErrValidation)
	}
	order := model.Order{
		CreatedAt:  createdAt.UTC(),
		PlatformID: platformID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return err
		}
		rows := make([]model.OrderItem, len(items))
		for i, it := range items {
			it.ID = 0
			it.OrderID = order.ID
			it.Recalculate()
			rows[i] = it
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, err
	}
	return order.ID, nil
}

// ListOrders 按创建时间倒序返回订单头。
func (s *GormStore) ListOrders(ctx context.Context, filter sales.OrderFilter) ([]model.Order, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []model.Order{}, nil
	}
	q := s.db.WithContext(ctx).Model(&model.Order{})
	if !filter.From.IsZero() {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at < ?", filter.Until.UTC())
	}
	if filter.IDs != nil {
		q = q.Where("id IN ?", filter.IDs)
	}
	var list []model.Order
	if err := q.Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListItems 返回指定订单的订单项，按订单、插入顺序排列。
func (s *GormStore) ListItems(ctx context.Context, orderIDs []uint) ([]model.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []model.OrderItem{}, nil
	}
	var list []model.OrderItem
	err := s.db.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Order("order_id, id").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateItem 更正数量与折扣并重算小计。
func (s *GormStore) UpdateItem(ctx context.Context, orderID, itemID uint, quantity int, discount money.Amount) (model.OrderItem, error) {
	var item model.OrderItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND order_id = ?", itemID, orderID).First(&item).Error; err != nil {
			return notFound(err, "order %d item %d", orderID, itemID)
		}
		item.Quantity = quantity
		item.Discount = discount
		item.Recalculate()
		return tx.Model(&model.OrderItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{
				"quantity": item.Quantity,
				"discount": item.Discount,
				"subtotal": item.Subtotal,
			}).Error
	})
	if err != nil {
		return model.OrderItem{}, err
	}
	return item, nil
}

// Snapshot 在一个事务内执行 fn，保证一次汇总读到的是同一时刻的数据。
func (s *GormStore) Snapshot(ctx context.Context, fn func(sales.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
