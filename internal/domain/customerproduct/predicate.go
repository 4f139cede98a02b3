package customerproduct

import (
	"github.com/entbill/entbill/internal/types"
	"github.com/samber/lo"
)

// Predicate is a pure classification over one customer product. Predicates
// compose with All so every rule stays unit-testable in isolation.
type Predicate func(cp *CustomerProduct) bool

// All returns a predicate that holds when every given predicate holds.
func All(predicates ...Predicate) Predicate {
	return func(cp *CustomerProduct) bool {
		for _, p := range predicates {
			if !p(cp) {
				return false
			}
		}
		return true
	}
}

// IsMain matches non-add-on attachments.
func IsMain(cp *CustomerProduct) bool {
	return !cp.IsAddOn
}

// IsAddOnProduct matches add-on attachments.
func IsAddOnProduct(cp *CustomerProduct) bool {
	return cp.IsAddOn
}

// IsRecurring matches attachments with at least one recurring price.
func IsRecurring(cp *CustomerProduct) bool {
	return !cp.OneOff
}

// IsOneOff matches attachments whose prices all charge once.
func IsOneOff(cp *CustomerProduct) bool {
	return cp.OneOff
}

// IsFree matches attachments with no paid price.
func IsFree(cp *CustomerProduct) bool {
	return cp.Free
}

// IsPaid matches attachments with at least one paid price.
func IsPaid(cp *CustomerProduct) bool {
	return !cp.Free
}

// HasActiveStatus matches attachments granting entitlements right now.
func HasActiveStatus(cp *CustomerProduct) bool {
	return lo.Contains(types.ActiveCustomerProductStatuses, cp.ProductStatus)
}

// HasRelevantStatus additionally matches scheduled attachments.
func HasRelevantStatus(cp *CustomerProduct) bool {
	return lo.Contains(types.RelevantCustomerProductStatuses, cp.ProductStatus)
}

// IsScheduled matches attachments that have not activated yet.
func IsScheduled(cp *CustomerProduct) bool {
	return cp.ProductStatus == types.CustomerProductStatusScheduled
}

// IsTrialing matches attachments inside their trial period.
func IsTrialing(cp *CustomerProduct) bool {
	return cp.ProductStatus == types.CustomerProductStatusTrialing
}

// IsCanceling matches soft-canceled attachments still inside their paid
// period.
func IsCanceling(cp *CustomerProduct) bool {
	return cp.CanceledAt != nil
}

// IsDefaultProduct matches attachments of a group's default product.
func IsDefaultProduct(cp *CustomerProduct) bool {
	return cp.IsDefault
}

// InGroup matches attachments in the given product group.
func InGroup(group string) Predicate {
	return func(cp *CustomerProduct) bool {
		return cp.ProductGroup == group
	}
}

// OnEntity matches attachments scoped to the given entity. An empty entity
// id matches customer-wide attachments.
func OnEntity(internalEntityID string) Predicate {
	return func(cp *CustomerProduct) bool {
		return cp.InternalEntityID == internalEntityID
	}
}

// OnSubscription matches attachments backed by the given processor
// subscription.
func OnSubscription(subscriptionID string) Predicate {
	return func(cp *CustomerProduct) bool {
		return subscriptionID != "" && cp.SubscriptionID == subscriptionID
	}
}

// OnSchedule matches attachments backed by the given processor schedule.
func OnSchedule(scheduleID string) Predicate {
	return func(cp *CustomerProduct) bool {
		return scheduleID != "" && cp.ScheduleID == scheduleID
	}
}

// WithProductID matches attachments of the given stable product id.
func WithProductID(productID string) Predicate {
	return func(cp *CustomerProduct) bool {
		return cp.ProductID == productID
	}
}

// Filter returns the customer products satisfying the predicate, keeping
// input order.
func Filter(cps []*CustomerProduct, p Predicate) []*CustomerProduct {
	return lo.Filter(cps, func(cp *CustomerProduct, _ int) bool {
		return p(cp)
	})
}

// First returns the first customer product satisfying the predicate.
func First(cps []*CustomerProduct, p Predicate) (*CustomerProduct, bool) {
	for _, cp := range cps {
		if p(cp) {
			return cp, true
		}
	}
	return nil, false
}
