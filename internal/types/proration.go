package types

import (
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/samber/lo"
)

// ProrationPolicy controls how a mid-cycle quantity or allowance change is
// billed. The caller sets one policy for increases and one for decreases.
type ProrationPolicy string

const (
	// ProrationPolicyProrateImmediately invoices the delta for the
	// remainder of the current period right away.
	ProrationPolicyProrateImmediately ProrationPolicy = "prorate_immediately"
	// ProrationPolicyNextCycle applies the new quantity at the next cycle
	// boundary with no mid-cycle charge or credit.
	ProrationPolicyNextCycle ProrationPolicy = "next_cycle"
	// ProrationPolicyNone changes the entitlement now without billing.
	ProrationPolicyNone ProrationPolicy = "none"
)

var ProrationPolicyValues = []ProrationPolicy{
	ProrationPolicyProrateImmediately,
	ProrationPolicyNextCycle,
	ProrationPolicyNone,
}

func (p ProrationPolicy) Validate() error {
	if !lo.Contains(ProrationPolicyValues, p) {
		return ierr.NewError("invalid proration policy").
			WithHint("Proration policy must be prorate_immediately, next_cycle or none").
			WithReportableDetails(map[string]any{
				"allowed_values": ProrationPolicyValues,
				"provided_value": p,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (p ProrationPolicy) String() string {
	return string(p)
}

// ProrationConfig pairs the increase and decrease policies for one item.
type ProrationConfig struct {
	OnIncrease ProrationPolicy `json:"on_increase"`
	OnDecrease ProrationPolicy `json:"on_decrease"`
}

// DefaultProrationConfig prorates increases immediately and defers
// decreases to the next cycle, matching processor defaults.
func DefaultProrationConfig() ProrationConfig {
	return ProrationConfig{
		OnIncrease: ProrationPolicyProrateImmediately,
		OnDecrease: ProrationPolicyNextCycle,
	}
}
