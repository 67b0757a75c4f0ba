package model

import "time"

// IdempotencyStatus tracks an in-flight or completed deduplicated operation.
type IdempotencyStatus string

const (
	IdempotencyInFlight  IdempotencyStatus = "in_flight"
	IdempotencyCompleted IdempotencyStatus = "completed"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// IdempotencyKey deduplicates a mutating request carrying a client-supplied
// key. ResponseSnapshot holds the serialized response to replay on retry
// once Status is completed.
type IdempotencyKey struct {
	Key              string            `json:"key"`
	OperationType    string            `json:"operation_type"`
	ResourceID       uint64            `json:"resource_id"`
	UserID           uint64            `json:"user_id"`
	Status           IdempotencyStatus `json:"status"`
	ResponseSnapshot []byte            `json:"-"`
	ExpiresAt        time.Time         `json:"expires_at"`
}
