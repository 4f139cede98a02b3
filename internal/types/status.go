package types

// Status is a type for the lifecycle status of a persisted row.
// This is a soft-delete marker, not the billing status of a customer product.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)
