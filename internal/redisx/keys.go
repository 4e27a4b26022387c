package redisx

import "time"

const (
	// Dedup of peer acceptance callbacks: dedup:accept:{tier}:{order_number}
	KeyAcceptDedup = "dedup:accept:%s:%s"

	// Cache of order snapshots for GET: order_status:{order_id}
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
