package model

import (
	"time"

	"gorm.io/gorm"
)

// Platform 销售渠道（堂食、外卖平台等）。
type Platform struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name string `gorm:"size:128;uniqueIndex;not null" json:"name"`
}

func (Platform) TableName() string { return "platforms" }
