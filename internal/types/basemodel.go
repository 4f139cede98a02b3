package types

import (
	"context"
	"time"
)

// BaseModel is embedded by all domain models that are persisted in the
// database. Any changes here need a corresponding migration.
type BaseModel struct {
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	EnvironmentID string    `db:"environment_id" json:"environment_id"`
	Status        Status    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	UpdatedBy     string    `db:"updated_by" json:"updated_by"`
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		TenantID:      GetTenantID(ctx),
		EnvironmentID: GetEnvironmentID(ctx),
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     GetUserID(ctx),
		UpdatedBy:     GetUserID(ctx),
	}
}
