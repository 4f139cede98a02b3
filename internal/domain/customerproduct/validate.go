package customerproduct

import (
	"fmt"

	ierr "github.com/entbill/entbill/internal/errors"
)

// ValidateUniqueness checks that at most one ongoing main recurring
// product exists per (group, entity). Duplicates indicate a serialization
// bug in attach handling and must never be merged silently.
func ValidateUniqueness(cps []*CustomerProduct) error {
	seen := make(map[string]*CustomerProduct)
	ongoing := Filter(cps, All(IsMain, IsRecurring, HasActiveStatus))
	for _, cp := range ongoing {
		key := fmt.Sprintf("%s|%s", cp.ProductGroup, cp.InternalEntityID)
		if dup, ok := seen[key]; ok {
			return ierr.NewError("duplicate ongoing main product in group").
				WithHint("Only one active main product may exist per product group and entity").
				WithReportableDetails(map[string]any{
					"product_group":       cp.ProductGroup,
					"internal_entity_id":  cp.InternalEntityID,
					"customer_product_id": cp.ID,
					"duplicate_of":        dup.ID,
				}).
				Mark(ierr.ErrConflict)
		}
		seen[key] = cp
	}
	return nil
}

// ValidateNoOrphanSchedules checks that every scheduled product has a
// matching ongoing main product in the same group and entity.
func ValidateNoOrphanSchedules(cps []*CustomerProduct) error {
	scheduled := Filter(cps, All(IsMain, IsScheduled))
	for _, sp := range scheduled {
		if _, ok := FindOngoingMain(cps, sp.ProductGroup, sp.InternalEntityID); !ok {
			return ierr.NewError("scheduled product has no ongoing counterpart").
				WithHint("A scheduled product must supersede an ongoing product in the same group").
				WithReportableDetails(map[string]any{
					"customer_product_id": sp.ID,
					"product_group":       sp.ProductGroup,
					"internal_entity_id":  sp.InternalEntityID,
				}).
				Mark(ierr.ErrConflict)
		}
	}
	return nil
}
