package feature

import (
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// Feature is a billable or gateable capability of the application.
type Feature struct {
	ID string `db:"id" json:"id" gorm:"primaryKey"`

	// LookupKey is the stable, human-readable key callers reference.
	LookupKey string `db:"lookup_key" json:"lookup_key"`

	Name string `db:"name" json:"name"`

	Type types.FeatureType `db:"type" json:"type"`

	// CreditSchema maps metered features onto a credit_system feature:
	// consuming one unit of the metered feature costs CreditCost credits.
	// Only set when Type is credit_system.
	CreditSchema []CreditSchemaItem `db:"credit_schema" json:"credit_schema,omitempty" gorm:"serializer:json"`

	types.BaseModel
}

type CreditSchemaItem struct {
	MeteredFeatureID string          `json:"metered_feature_id"`
	CreditCost       decimal.Decimal `json:"credit_cost"`
}

func (Feature) TableName() string {
	return "features"
}
