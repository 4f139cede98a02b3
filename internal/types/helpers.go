package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ToNillableString returns a pointer to s, or nil when s is empty.
func ToNillableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FromNillableString dereferences s, returning "" for nil.
func FromNillableString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ToNillableTime returns a pointer to t, or nil when t is the zero time.
func ToNillableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// FromNillableTime dereferences t, returning the zero time for nil.
func FromNillableTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// FromNillableDecimal dereferences d, returning zero for nil.
func FromNillableDecimal(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
