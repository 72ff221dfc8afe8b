package queue

import (
	"context"
	"strconv"
	"time"

	"pos_report/internal/sales"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// Outbox 订单写入提交后把事件追加到 Redis Stream，由 Relay 异步转发 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

var _ sales.ChangeNotifier = (*Outbox)(nil)

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream, maxLen: 100000}
}

// Notify 实现 sales.ChangeNotifier。
func (o *Outbox) Notify(ctx context.Context, ev sales.ChangeEvent) error {
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":    uuid.NewString(),
			"type":        ev.Type,
			"order_id":    strconv.FormatUint(uint64(ev.OrderID), 10),
			"item_id":     strconv.FormatUint(uint64(ev.ItemID), 10),
			"total":       strconv.FormatInt(int64(ev.Total), 10),
			"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}
