package customerproduct

import (
	"testing"

	"github.com/entbill/entbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeMain(id, group, entityID string) *CustomerProduct {
	return &CustomerProduct{
		ID:               id,
		ProductGroup:     group,
		InternalEntityID: entityID,
		ProductStatus:    types.CustomerProductStatusActive,
	}
}

func TestFindOngoingMain(t *testing.T) {
	addOn := activeMain("cusprod_addon", "plan", "")
	addOn.IsAddOn = true
	oneOff := activeMain("cusprod_oneoff", "plan", "")
	oneOff.OneOff = true
	scheduled := activeMain("cusprod_sched", "plan", "")
	scheduled.ProductStatus = types.CustomerProductStatusScheduled
	otherGroup := activeMain("cusprod_storage", "storage", "")
	otherEntity := activeMain("cusprod_entity", "plan", "ent_1")
	main := activeMain("cusprod_main", "plan", "")

	cps := []*CustomerProduct{addOn, oneOff, scheduled, otherGroup, otherEntity, main}

	found, ok := FindOngoingMain(cps, "plan", "")
	require.True(t, ok)
	assert.Equal(t, "cusprod_main", found.ID)

	found, ok = FindOngoingMain(cps, "plan", "ent_1")
	require.True(t, ok)
	assert.Equal(t, "cusprod_entity", found.ID)

	_, ok = FindOngoingMain(cps, "storage", "ent_1")
	assert.False(t, ok)
}

func TestFindOngoingMainMatchesTrialing(t *testing.T) {
	trialing := activeMain("cusprod_trial", "plan", "")
	trialing.ProductStatus = types.CustomerProductStatusTrialing

	found, ok := FindOngoingMain([]*CustomerProduct{trialing}, "plan", "")
	require.True(t, ok)
	assert.Equal(t, "cusprod_trial", found.ID)
}

func TestFindScheduledMain(t *testing.T) {
	active := activeMain("cusprod_active", "plan", "")
	scheduled := activeMain("cusprod_sched", "plan", "")
	scheduled.ProductStatus = types.CustomerProductStatusScheduled
	scheduledAddOn := activeMain("cusprod_sched_addon", "plan", "")
	scheduledAddOn.ProductStatus = types.CustomerProductStatusScheduled
	scheduledAddOn.IsAddOn = true

	cps := []*CustomerProduct{active, scheduledAddOn, scheduled}

	found, ok := FindScheduledMain(cps, "plan", "")
	require.True(t, ok)
	assert.Equal(t, "cusprod_sched", found.ID)

	_, ok = FindScheduledMain(cps, "storage", "")
	assert.False(t, ok)
}

func TestFindForMergeRequiresProcessorMatch(t *testing.T) {
	cp := activeMain("cusprod_1", "plan", "")
	cp.SubscriptionID = "sub_1"

	_, ok := FindForMerge([]*CustomerProduct{cp}, MergeTarget{SubscriptionID: "sub_other"})
	assert.False(t, ok)

	// Empty processor ids never match anything, even rows with empty ids.
	bare := activeMain("cusprod_bare", "plan", "")
	_, ok = FindForMerge([]*CustomerProduct{bare}, MergeTarget{})
	assert.False(t, ok)
}

func TestFindForMergePriorities(t *testing.T) {
	addOn := activeMain("cusprod_addon", "plan", "")
	addOn.IsAddOn = true
	addOn.SubscriptionID = "sub_1"
	addOn.ProductID = "prod_addon"

	entityScoped := activeMain("cusprod_entity", "plan", "ent_1")
	entityScoped.IsAddOn = true
	entityScoped.SubscriptionID = "sub_1"

	main := activeMain("cusprod_main", "plan", "")
	main.SubscriptionID = "sub_1"
	main.ProductID = "prod_pro"

	cps := []*CustomerProduct{addOn, entityScoped, main}

	// Exact id wins over everything else.
	found, ok := FindForMerge(cps, MergeTarget{
		SubscriptionID:    "sub_1",
		CustomerProductID: "cusprod_addon",
	})
	require.True(t, ok)
	assert.Equal(t, "cusprod_addon", found.ID)

	// Entity match beats main.
	found, ok = FindForMerge(cps, MergeTarget{
		SubscriptionID:   "sub_1",
		InternalEntityID: "ent_1",
	})
	require.True(t, ok)
	assert.Equal(t, "cusprod_entity", found.ID)

	// Main beats a product id match on an add-on.
	found, ok = FindForMerge(cps, MergeTarget{
		SubscriptionID:   "sub_1",
		InternalEntityID: "ent_unknown",
		ProductID:        "prod_addon",
	})
	require.True(t, ok)
	assert.Equal(t, "cusprod_main", found.ID)
}

func TestFindForMergeProductAndGroupFallback(t *testing.T) {
	first := activeMain("cusprod_first", "storage", "ent_a")
	first.IsAddOn = true
	first.ScheduleID = "sched_1"
	first.ProductID = "prod_storage"

	second := activeMain("cusprod_second", "plan", "ent_b")
	second.IsAddOn = true
	second.ScheduleID = "sched_1"
	second.ProductID = "prod_pro"

	cps := []*CustomerProduct{first, second}

	// Product id match beats group match.
	found, ok := FindForMerge(cps, MergeTarget{
		ScheduleID:       "sched_1",
		InternalEntityID: "ent_unknown",
		ProductID:        "prod_pro",
		ProductGroup:     "storage",
	})
	require.True(t, ok)
	assert.Equal(t, "cusprod_second", found.ID)

	// Nothing above matches: fall back to the first candidate in order.
	found, ok = FindForMerge(cps, MergeTarget{
		ScheduleID:       "sched_1",
		InternalEntityID: "ent_unknown",
		ProductID:        "prod_unknown",
		ProductGroup:     "billing",
	})
	require.True(t, ok)
	assert.Equal(t, "cusprod_first", found.ID)
}

func TestEntitlementsForProducts(t *testing.T) {
	cps := []*CustomerProduct{
		{ID: "cusprod_1"},
		{ID: "cusprod_2"},
	}
	ents := []*CustomerEntitlement{
		{ID: "cusitem_a", CustomerProductID: "cusprod_2"},
		{ID: "cusitem_b", CustomerProductID: "cusprod_other"},
		{ID: "cusitem_c", CustomerProductID: "cusprod_1"},
	}

	got := EntitlementsForProducts(cps, ents)
	require.Len(t, got, 2)
	assert.Equal(t, "cusitem_a", got[0].ID)
	assert.Equal(t, "cusitem_c", got[1].ID)

	assert.Empty(t, EntitlementsForProducts(nil, ents))
}
