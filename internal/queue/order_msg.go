package queue

import (
	"fmt"
	"time"

	"pos_report/internal/money"
)

// OrderEvent 是写入 Kafka 的订单变更事件。
type OrderEvent struct {
	EventID    string       `json:"event_id"`
	Type       string       `json:"type"`
	OrderID    uint         `json:"order_id"`
	ItemID     uint         `json:"item_id,omitempty"`
	Total      money.Amount `json:"total"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Validate 做最小字段校验，防止转发脏消息。
func (m OrderEvent) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if m.Type == "" {
		return fmt.Errorf("type is required")
	}
	if m.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}
