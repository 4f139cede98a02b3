package customerproduct

// FindOngoingMain locates the currently ongoing (active, recurring,
// non-add-on, non-scheduled) product in a group for an entity. This is the
// slot the uniqueness invariant protects; at most one should exist.
func FindOngoingMain(cps []*CustomerProduct, group, internalEntityID string) (*CustomerProduct, bool) {
	return First(cps, All(
		IsMain,
		IsRecurring,
		HasActiveStatus,
		InGroup(group),
		OnEntity(internalEntityID),
	))
}

// FindScheduledMain locates the scheduled (not yet activated) main product
// in a group for an entity.
func FindScheduledMain(cps []*CustomerProduct, group, internalEntityID string) (*CustomerProduct, bool) {
	return First(cps, All(
		IsMain,
		IsScheduled,
		InGroup(group),
		OnEntity(internalEntityID),
	))
}

// MergeTarget describes the processor objects and product identity an
// incoming update refers to, used to locate the customer product it
// belongs to.
type MergeTarget struct {
	CustomerProductID string
	SubscriptionID    string
	ScheduleID        string
	InternalEntityID  string
	ProductID         string
	ProductGroup      string
}

// FindForMerge resolves which customer product an incoming change should
// merge into. Candidates must already match the target subscription or
// schedule; among those, priority is: exact id match, then entity match,
// then main over add-on, then same product id, then same product group.
// Ties keep the first candidate in list order so the result is stable.
func FindForMerge(cps []*CustomerProduct, target MergeTarget) (*CustomerProduct, bool) {
	candidates := Filter(cps, func(cp *CustomerProduct) bool {
		return OnSubscription(target.SubscriptionID)(cp) || OnSchedule(target.ScheduleID)(cp)
	})
	if len(candidates) == 0 {
		return nil, false
	}

	priorities := []Predicate{
		func(cp *CustomerProduct) bool {
			return target.CustomerProductID != "" && cp.ID == target.CustomerProductID
		},
		OnEntity(target.InternalEntityID),
		IsMain,
		WithProductID(target.ProductID),
		InGroup(target.ProductGroup),
	}

	for _, p := range priorities {
		if match, ok := First(candidates, p); ok {
			return match, true
		}
	}

	return candidates[0], true
}

// EntitlementsForProducts returns the entitlements belonging to the given
// customer products, keeping input order of products then entitlements.
func EntitlementsForProducts(cps []*CustomerProduct, ents []*CustomerEntitlement) []*CustomerEntitlement {
	ids := make(map[string]struct{}, len(cps))
	for _, cp := range cps {
		ids[cp.ID] = struct{}{}
	}
	var out []*CustomerEntitlement
	for _, ce := range ents {
		if _, ok := ids[ce.CustomerProductID]; ok {
			out = append(out, ce)
		}
	}
	return out
}
