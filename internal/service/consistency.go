package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/entbill/entbill/internal/cache"
	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
)

// raceThreshold is the fraction of a concurrent grant that observed usage
// must reach before the movement is flagged as a read-after-write race.
// Real consumption landing at 99.5% of a fresh grant is statistically near
// impossible; a stale read that raced the grant is not.
var raceThreshold = decimal.NewFromFloat(0.995)

// ConsistencyService compares the cached customer projection against
// freshly computed truth after a mutation. It runs out of band and never
// blocks the triggering request.
type ConsistencyService interface {
	// VerifyCustomer checks one customer and returns the report. Cold
	// cache is not an error.
	VerifyCustomer(ctx context.Context, customerID string) (*billingplan.ConsistencyReport, error)
}

type consistencyService struct {
	ServiceParams
	balance BalanceService
}

func NewConsistencyService(params ServiceParams, balance BalanceService) ConsistencyService {
	return &consistencyService{ServiceParams: params, balance: balance}
}

func (s *consistencyService) VerifyCustomer(ctx context.Context, customerID string) (*billingplan.ConsistencyReport, error) {
	report := &billingplan.ConsistencyReport{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONSISTENCY_REPORT),
		CustomerID: customerID,
		CheckedAt:  time.Now().UTC(),
	}

	key := cache.GenerateKey(cache.PrefixProjection, customerID)
	cachedValue, found := s.Cache.Get(ctx, key)
	if !found {
		// Cold cache: recompute and warm it.
		fresh, err := s.buildFreshProjection(ctx, customerID)
		if err != nil {
			return nil, err
		}
		s.Cache.Set(ctx, key, fresh, s.Config.Cache.ProjectionTTL())
		return report, nil
	}

	cached, ok := cachedValue.(*billingplan.CustomerProjection)
	if !ok {
		s.Cache.Delete(ctx, key)
		report.CacheInvalidated = true
		return report, nil
	}

	// A mismatch may be a momentarily stale projection rather than real
	// divergence; re-read with backoff before concluding.
	var fresh *billingplan.CustomerProjection
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(s.Config.Verifier.RetryBaseDelay()),
		),
		uint64(s.Config.Verifier.MaxRetries),
	), ctx)

	err := backoff.Retry(func() error {
		var err error
		fresh, err = s.buildFreshProjection(ctx, customerID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(comparePlans(cached, fresh)) > 0 {
			return errProjectionMismatch
		}
		return nil
	}, policy)
	if err != nil && err != errProjectionMismatch {
		return nil, err
	}

	report.Mismatches = comparePlans(cached, fresh)
	report.RaceFlags = detectRaceFlags(cached, fresh)

	if len(report.Mismatches) > 0 {
		s.Cache.Delete(ctx, key)
		report.CacheInvalidated = true
		s.Logger.Errorw("customer projection mismatch",
			"customer_id", customerID,
			"mismatches", len(report.Mismatches))
	}
	for _, flag := range report.RaceFlags {
		s.Logger.Errorw("balance race condition suspected",
			"customer_id", customerID,
			"feature_id", flag.FeatureID,
			"usage_increase", flag.UsageIncrease,
			"granted_increase", flag.GrantedIncrease)
	}

	if report.Clean() {
		s.Cache.Set(ctx, key, fresh, s.Config.Cache.ProjectionTTL())
	}
	return report, nil
}

var errProjectionMismatch = &projectionMismatchError{}

type projectionMismatchError struct{}

func (e *projectionMismatchError) Error() string { return "projection mismatch" }

func (s *consistencyService) buildFreshProjection(ctx context.Context, customerID string) (*billingplan.CustomerProjection, error) {
	return s.balance.BuildProjection(ctx, customerID)
}

// comparePlans diffs subscription and schedule identifiers by stable plan
// id. A plan missing from the cache is a mismatch; the fresh side is the
// truth.
func comparePlans(cached, fresh *billingplan.CustomerProjection) []billingplan.Mismatch {
	var mismatches []billingplan.Mismatch

	for productID, freshPlan := range fresh.Plans {
		cachedPlan, ok := cached.Plans[productID]
		if !ok {
			mismatches = append(mismatches, billingplan.Mismatch{
				Kind:      billingplan.MismatchMissingPlan,
				ProductID: productID,
				Fresh:     freshPlan.SubscriptionID,
			})
			continue
		}
		if cachedPlan.SubscriptionID != freshPlan.SubscriptionID {
			mismatches = append(mismatches, billingplan.Mismatch{
				Kind:      billingplan.MismatchSubscriptionID,
				ProductID: productID,
				Cached:    cachedPlan.SubscriptionID,
				Fresh:     freshPlan.SubscriptionID,
			})
		}
		if cachedPlan.ScheduleID != freshPlan.ScheduleID {
			mismatches = append(mismatches, billingplan.Mismatch{
				Kind:      billingplan.MismatchScheduleID,
				ProductID: productID,
				Cached:    cachedPlan.ScheduleID,
				Fresh:     freshPlan.ScheduleID,
			})
		}
	}

	for productID, freshPlan := range fresh.ScheduledPlans {
		cachedPlan, ok := cached.ScheduledPlans[productID]
		if !ok {
			mismatches = append(mismatches, billingplan.Mismatch{
				Kind:      billingplan.MismatchMissingScheduled,
				ProductID: productID,
				Fresh:     freshPlan.ScheduleID,
			})
			continue
		}
		if cachedPlan.SubscriptionID != freshPlan.SubscriptionID {
			mismatches = append(mismatches, billingplan.Mismatch{
				Kind:      billingplan.MismatchScheduledSubID,
				ProductID: productID,
				Cached:    cachedPlan.SubscriptionID,
				Fresh:     freshPlan.SubscriptionID,
			})
		}
		if cachedPlan.ScheduleID != freshPlan.ScheduleID {
			mismatches = append(mismatches, billingplan.Mismatch{
				Kind:      billingplan.MismatchScheduledSchedule,
				ProductID: productID,
				Cached:    cachedPlan.ScheduleID,
				Fresh:     freshPlan.ScheduleID,
			})
		}
	}

	return mismatches
}

// IsSuspiciousBalanceMovement applies the race heuristic to one feature's
// movement: a positive grant increase whose usage increase consumed at
// least 99.5% of it indicates a read that raced a grant-increasing write.
func IsSuspiciousBalanceMovement(usageIncrease, grantedIncrease decimal.Decimal) bool {
	if !grantedIncrease.IsPositive() {
		return false
	}
	return usageIncrease.GreaterThanOrEqual(grantedIncrease.Mul(raceThreshold))
}

func detectRaceFlags(cached, fresh *billingplan.CustomerProjection) []billingplan.RaceFlag {
	var flags []billingplan.RaceFlag
	for featureID, freshFeature := range fresh.Features {
		cachedFeature, ok := cached.Features[featureID]
		if !ok {
			continue
		}
		usageIncrease := freshFeature.Usage.Sub(cachedFeature.Usage)
		grantedIncrease := freshFeature.GrantedBalance.Sub(cachedFeature.GrantedBalance)
		if IsSuspiciousBalanceMovement(usageIncrease, grantedIncrease) {
			flags = append(flags, billingplan.RaceFlag{
				FeatureID:       featureID,
				UsageIncrease:   usageIncrease,
				GrantedIncrease: grantedIncrease,
			})
		}
	}
	return flags
}
