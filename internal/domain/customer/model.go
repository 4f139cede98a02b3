package customer

import (
	"github.com/entbill/entbill/internal/types"
)

// Customer represents a customer in the system
type Customer struct {
	// ID is the unique identifier for the customer
	ID string `db:"id" json:"id" gorm:"primaryKey"`

	// ExternalID is the caller-supplied identifier for the customer
	ExternalID string `db:"external_id" json:"external_id"`

	// Name is the name of the customer
	Name string `db:"name" json:"name"`

	// Email is the email of the customer
	Email string `db:"email" json:"email"`

	// ProcessorCustomerID is the payment processor's id for this customer,
	// empty until the first paid attachment creates one.
	ProcessorCustomerID string `db:"processor_customer_id" json:"processor_customer_id"`

	// Metadata
	Metadata map[string]string `db:"metadata" json:"metadata" gorm:"serializer:json"`

	types.BaseModel
}

func (Customer) TableName() string {
	return "customers"
}

// Entity is an optional sub-scope of a customer (for example a seat or a
// workspace) that entitlements may be tracked against individually.
type Entity struct {
	ID string `db:"id" json:"id" gorm:"primaryKey"`

	CustomerID string `db:"customer_id" json:"customer_id"`

	// ExternalID is the caller-supplied identifier for the entity.
	ExternalID string `db:"external_id" json:"external_id"`

	Name string `db:"name" json:"name"`

	// FeatureID is the feature whose per-entity tracking this entity
	// belongs to (entities are scoped to one entity-feature).
	FeatureID string `db:"feature_id" json:"feature_id"`

	// Deleted marks a soft-removed entity whose allowance is retained
	// until the next cycle boundary.
	Deleted bool `db:"deleted" json:"deleted"`

	types.BaseModel
}

func (Entity) TableName() string {
	return "entities"
}
