package redisx

import "time"

const (
	// In-flight purchase flow lock: flow:purchase:{product_id}:{buyer}
	KeyPurchaseFlow = "flow:purchase:%d:%s"
)

var (
	TTLFlowLock = 10 * time.Minute
)
