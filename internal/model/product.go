package model

import (
	"time"

	"pos_report/internal/money"

	"gorm.io/gorm"
)

// Product 商品目录：名称唯一，单价可被显式修改。
// 删除为软删除，历史订单项保留的是下单时的快照，不受影响。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name      string       `gorm:"size:128;uniqueIndex;not null" json:"name"`
	UnitPrice money.Amount `gorm:"not null;default:0" json:"unit_price"` // 单位：分
}

func (Product) TableName() string { return "products" }
