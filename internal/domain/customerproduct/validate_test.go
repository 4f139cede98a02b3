package customerproduct

import (
	"testing"

	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUniqueness(t *testing.T) {
	first := activeMain("cusprod_1", "plan", "")
	second := activeMain("cusprod_2", "plan", "")

	err := ValidateUniqueness([]*CustomerProduct{first, second})
	require.Error(t, err)
	assert.True(t, ierr.IsConflict(err))
}

func TestValidateUniquenessScopesByGroupAndEntity(t *testing.T) {
	cps := []*CustomerProduct{
		activeMain("cusprod_plan", "plan", ""),
		activeMain("cusprod_storage", "storage", ""),
		activeMain("cusprod_ent_a", "plan", "ent_a"),
		activeMain("cusprod_ent_b", "plan", "ent_b"),
	}
	assert.NoError(t, ValidateUniqueness(cps))
}

func TestValidateUniquenessIgnoresNonOngoing(t *testing.T) {
	main := activeMain("cusprod_main", "plan", "")
	addOn := activeMain("cusprod_addon", "plan", "")
	addOn.IsAddOn = true
	oneOff := activeMain("cusprod_oneoff", "plan", "")
	oneOff.OneOff = true
	scheduled := activeMain("cusprod_sched", "plan", "")
	scheduled.ProductStatus = types.CustomerProductStatusScheduled
	expired := activeMain("cusprod_expired", "plan", "")
	expired.ProductStatus = types.CustomerProductStatusExpired

	assert.NoError(t, ValidateUniqueness([]*CustomerProduct{main, addOn, oneOff, scheduled, expired}))
}

func TestValidateNoOrphanSchedules(t *testing.T) {
	scheduled := activeMain("cusprod_sched", "plan", "")
	scheduled.ProductStatus = types.CustomerProductStatusScheduled

	err := ValidateNoOrphanSchedules([]*CustomerProduct{scheduled})
	require.Error(t, err)
	assert.True(t, ierr.IsConflict(err))

	ongoing := activeMain("cusprod_main", "plan", "")
	assert.NoError(t, ValidateNoOrphanSchedules([]*CustomerProduct{scheduled, ongoing}))
}

func TestValidateNoOrphanSchedulesMatchesGroupAndEntity(t *testing.T) {
	scheduled := activeMain("cusprod_sched", "plan", "ent_1")
	scheduled.ProductStatus = types.CustomerProductStatusScheduled

	// An ongoing product in the same group but for the customer at large
	// does not cover an entity-scoped schedule.
	ongoing := activeMain("cusprod_main", "plan", "")
	err := ValidateNoOrphanSchedules([]*CustomerProduct{scheduled, ongoing})
	require.Error(t, err)
	assert.True(t, ierr.IsConflict(err))

	entityOngoing := activeMain("cusprod_ent", "plan", "ent_1")
	assert.NoError(t, ValidateNoOrphanSchedules([]*CustomerProduct{scheduled, ongoing, entityOngoing}))
}
