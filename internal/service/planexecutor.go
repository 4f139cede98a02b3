package service

import (
	"context"

	"github.com/entbill/entbill/internal/cache"
	"github.com/entbill/entbill/internal/domain/billingplan"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
)

// ExecutorService applies a resolved billing plan: processor actions
// first, then local mutations, then cache invalidation. Local state must
// never claim a charge succeeded before the processor confirms it.
type ExecutorService interface {
	ExecutePlan(ctx context.Context, plan *billingplan.BillingPlan) error
}

type executorService struct {
	ServiceParams
}

func NewExecutorService(params ServiceParams) ExecutorService {
	return &executorService{ServiceParams: params}
}

func (s *executorService) ExecutePlan(ctx context.Context, plan *billingplan.BillingPlan) error {
	if err := s.applyProcessorActions(ctx, plan); err != nil {
		return err
	}

	if err := s.applyLocalMutations(ctx, plan); err != nil {
		// Processor actions already succeeded; this must not be silently
		// swallowed because local state is now behind.
		s.Logger.Errorw("local commit failed after processor actions succeeded",
			"customer_id", plan.CustomerID,
			"operation", plan.Operation,
			"error", err)
		return ierr.WithError(err).
			WithHint("Local commit failed after processor actions; state requires reconciliation").
			WithReportableDetails(map[string]any{
				"customer_id":   plan.CustomerID,
				"failed_action": "local_commit",
			}).
			Mark(ierr.ErrSystem)
	}

	// Dropping the projection is the cache contract: delete on mutation,
	// best-effort read on query.
	s.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixProjection, plan.CustomerID))

	s.Logger.Infow("executed billing plan",
		"customer_id", plan.CustomerID,
		"operation", plan.Operation,
		"timing", plan.Timing)
	return nil
}

// applyProcessorActions issues the plan's external side in order:
// subscription, schedule, invoices. A failure names the sub-action so
// compensation can be targeted; automatic rollback of a partially-charged
// invoice is not always safe.
func (s *executorService) applyProcessorActions(ctx context.Context, plan *billingplan.BillingPlan) error {
	if action := plan.Processor.Subscription; action != nil {
		sub, err := s.Gateway.ApplySubscriptionAction(ctx, action)
		if err != nil {
			return s.processorFailure(plan, "subscription", err)
		}
		s.propagateSubscriptionID(plan, sub.ID)
	}

	if action := plan.Processor.Schedule; action != nil {
		scheduleID, err := s.Gateway.ApplyScheduleAction(ctx, action)
		if err != nil {
			return s.processorFailure(plan, "schedule", err)
		}
		s.propagateScheduleID(plan, scheduleID)
	}

	for i, action := range plan.Processor.Invoices {
		if err := s.Gateway.ApplyInvoiceAction(ctx, action); err != nil {
			if i > 0 {
				s.Logger.Errorw("invoice action failed after earlier invoice actions succeeded",
					"customer_id", plan.CustomerID,
					"failed_index", i)
			}
			return s.processorFailure(plan, "invoice", err)
		}
	}

	return nil
}

func (s *executorService) processorFailure(plan *billingplan.BillingPlan, action string, err error) error {
	return ierr.WithError(err).
		WithHintf("Processor %s action failed; no local state was committed", action).
		WithReportableDetails(map[string]any{
			"customer_id":   plan.CustomerID,
			"operation":     plan.Operation,
			"failed_action": action,
		}).
		Mark(ierr.ErrIntegration)
}

// propagateSubscriptionID stamps the confirmed subscription id onto the
// plan's non-scheduled inserts and updates.
func (s *executorService) propagateSubscriptionID(plan *billingplan.BillingPlan, subscriptionID string) {
	for _, cp := range plan.Local.InsertCustomerProducts {
		if cp.ProductStatus != types.CustomerProductStatusScheduled && !cp.Free && cp.SubscriptionID == "" {
			cp.SubscriptionID = subscriptionID
		}
	}
}

func (s *executorService) propagateScheduleID(plan *billingplan.BillingPlan, scheduleID string) {
	for _, cp := range plan.Local.InsertCustomerProducts {
		if cp.ProductStatus == types.CustomerProductStatusScheduled && cp.ScheduleID == "" {
			cp.ScheduleID = scheduleID
		}
	}
}

func (s *executorService) applyLocalMutations(ctx context.Context, plan *billingplan.BillingPlan) error {
	local := &plan.Local

	for _, cp := range local.UpdateCustomerProducts {
		if err := s.CustomerProductRepo.Update(ctx, cp); err != nil {
			return err
		}
	}
	for _, cp := range local.InsertCustomerProducts {
		if err := s.CustomerProductRepo.Create(ctx, cp); err != nil {
			return err
		}
	}
	for _, id := range local.DeleteCustomerProducts {
		if err := s.CustomerProductRepo.Delete(ctx, id); err != nil {
			return err
		}
	}

	for _, ce := range local.UpdateEntitlements {
		if err := s.CustomerProductRepo.UpdateEntitlement(ctx, ce); err != nil {
			return err
		}
	}
	for _, ce := range local.InsertEntitlements {
		if err := s.CustomerProductRepo.CreateEntitlement(ctx, ce); err != nil {
			return err
		}
	}
	for _, id := range local.DeleteEntitlements {
		if err := s.CustomerProductRepo.DeleteEntitlement(ctx, id); err != nil {
			return err
		}
	}

	for _, cprice := range local.InsertCustomerPrices {
		if err := s.CustomerProductRepo.CreateCustomerPrice(ctx, cprice); err != nil {
			return err
		}
	}
	for _, id := range local.DeleteCustomerPrices {
		if err := s.CustomerProductRepo.DeleteCustomerPrice(ctx, id); err != nil {
			return err
		}
	}

	for _, r := range local.InsertReplaceables {
		if err := s.CustomerProductRepo.CreateReplaceable(ctx, r); err != nil {
			return err
		}
	}
	for _, id := range local.DeleteReplaceables {
		if err := s.CustomerProductRepo.DeleteReplaceable(ctx, id); err != nil {
			return err
		}
	}

	return nil
}
