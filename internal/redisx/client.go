package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// FlowLock is a SetNX-based lock keyed per (product, buyer) purchase flow. It
// rejects concurrent duplicate starts of the same flow; the TTL covers a
// crashed holder.
type FlowLock struct {
	rdb *redis.Client
}

func NewFlowLock(rdb *redis.Client) *FlowLock {
	return &FlowLock{rdb: rdb}
}

func (l *FlowLock) Acquire(ctx context.Context, productID uint64, buyer string) (bool, error) {
	key := fmt.Sprintf(KeyPurchaseFlow, productID, buyer)
	return l.rdb.SetNX(ctx, key, "1", TTLFlowLock).Result()
}

func (l *FlowLock) Release(ctx context.Context, productID uint64, buyer string) error {
	key := fmt.Sprintf(KeyPurchaseFlow, productID, buyer)
	return l.rdb.Del(ctx, key).Err()
}
