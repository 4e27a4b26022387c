package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup short-circuits repeated peer acceptance callbacks. Redis is a
// fast path only; the order status in Postgres stays the source of truth.
type Dedup struct {
	C    *redis.Client
	Tier string
}

func (d *Dedup) Seen(ctx context.Context, orderNumber string) (bool, error) {
	return Exists(ctx, d.C, fmt.Sprintf(KeyAcceptDedup, d.Tier, orderNumber))
}

func (d *Dedup) Mark(ctx context.Context, orderNumber string) error {
	return d.C.Set(ctx, fmt.Sprintf(KeyAcceptDedup, d.Tier, orderNumber), "1", TTLDedup).Err()
}
