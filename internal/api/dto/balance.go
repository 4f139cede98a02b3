package dto

import (
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/service"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// FeatureBalanceResponse is one feature's aggregated balance.
type FeatureBalanceResponse struct {
	FeatureID string `json:"feature_id"`

	// Balance is omitted for unlimited features.
	Balance *decimal.Decimal `json:"balance,omitempty"`

	Unlimited    bool `json:"unlimited"`
	UsageAllowed bool `json:"usage_allowed"`

	NextResetAt *time.Time `json:"next_reset_at,omitempty"`
}

// ListBalancesResponse wraps the per-feature balances of one customer.
type ListBalancesResponse struct {
	CustomerID string                    `json:"customer_id"`
	EntityID   string                    `json:"entity_id,omitempty"`
	Balances   []*FeatureBalanceResponse `json:"balances"`
}

// NewListBalancesResponse builds the API response from resolved balances.
func NewListBalancesResponse(customerID, entityID string, balances []*service.FeatureBalance) *ListBalancesResponse {
	return &ListBalancesResponse{
		CustomerID: customerID,
		EntityID:   entityID,
		Balances: lo.Map(balances, func(b *service.FeatureBalance, _ int) *FeatureBalanceResponse {
			return &FeatureBalanceResponse{
				FeatureID:    b.FeatureID,
				Balance:      b.Balance,
				Unlimited:    b.Unlimited,
				UsageAllowed: b.UsageAllowed,
				NextResetAt:  b.NextResetAt,
			}
		}),
	}
}

// ConsistencyReportResponse surfaces a verifier run.
type ConsistencyReportResponse struct {
	ID               string                  `json:"id"`
	CustomerID       string                  `json:"customer_id"`
	Clean            bool                    `json:"clean"`
	Mismatches       []billingplan.Mismatch  `json:"mismatches,omitempty"`
	RaceFlags        []billingplan.RaceFlag  `json:"race_flags,omitempty"`
	CacheInvalidated bool                    `json:"cache_invalidated"`
	CheckedAt        time.Time               `json:"checked_at"`
}

// NewConsistencyReportResponse builds the API response from a report.
func NewConsistencyReportResponse(report *billingplan.ConsistencyReport) *ConsistencyReportResponse {
	return &ConsistencyReportResponse{
		ID:               report.ID,
		CustomerID:       report.CustomerID,
		Clean:            report.Clean(),
		Mismatches:       report.Mismatches,
		RaceFlags:        report.RaceFlags,
		CacheInvalidated: report.CacheInvalidated,
		CheckedAt:        report.CheckedAt,
	}
}
