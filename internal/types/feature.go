package types

import (
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/samber/lo"
)

// FeatureType determines how a feature's entitlement is consumed.
type FeatureType string

const (
	// FeatureTypeBoolean is an on/off capability with no balance.
	FeatureTypeBoolean FeatureType = "boolean"
	// FeatureTypeMetered is a countable allowance that resets per interval.
	FeatureTypeMetered FeatureType = "metered"
	// FeatureTypeCreditSystem is a shared pool of credits consumed by
	// multiple metered features at different rates.
	FeatureTypeCreditSystem FeatureType = "credit_system"
)

var FeatureTypeValues = []FeatureType{
	FeatureTypeBoolean,
	FeatureTypeMetered,
	FeatureTypeCreditSystem,
}

func (t FeatureType) Validate() error {
	if !lo.Contains(FeatureTypeValues, t) {
		return ierr.NewError("invalid feature type").
			WithHint("Feature type must be boolean, metered or credit_system").
			WithReportableDetails(map[string]any{
				"allowed_values": FeatureTypeValues,
				"provided_value": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (t FeatureType) String() string {
	return string(t)
}

// AllowanceType determines whether an entitlement grants a finite balance.
type AllowanceType string

const (
	AllowanceTypeFixed     AllowanceType = "fixed"
	AllowanceTypeUnlimited AllowanceType = "unlimited"
)

var AllowanceTypeValues = []AllowanceType{
	AllowanceTypeFixed,
	AllowanceTypeUnlimited,
}

func (t AllowanceType) Validate() error {
	if !lo.Contains(AllowanceTypeValues, t) {
		return ierr.NewError("invalid allowance type").
			WithHint("Allowance type must be fixed or unlimited").
			WithReportableDetails(map[string]any{
				"allowed_values": AllowanceTypeValues,
				"provided_value": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
