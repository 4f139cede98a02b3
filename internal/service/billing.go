package service

import (
	"context"
	"sync"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
)

// BillingService orchestrates one billing operation end to end: context,
// plan, execution, cache invalidation, then asynchronous verification.
type BillingService interface {
	Attach(ctx context.Context, req *BillingRequest) (*billingplan.BillingPlan, error)
	Update(ctx context.Context, req *BillingRequest) (*billingplan.BillingPlan, error)
	Cancel(ctx context.Context, req *BillingRequest) (*billingplan.BillingPlan, error)

	// ExpireProduct ends an attachment immediately and activates the
	// group's default product when the customer is left without one.
	ExpireProduct(ctx context.Context, customerProductID string) error

	// ActivateScheduled flips a scheduled attachment to active once its
	// start time has passed.
	ActivateScheduled(ctx context.Context, customerProductID string) error
}

type billingService struct {
	ServiceParams
	contextSvc  ContextService
	planSvc     PlanService
	executorSvc ExecutorService
	consistency ConsistencyService

	// locks serializes operations per customer; concurrent attaches in the
	// same group would otherwise race the ongoing-product lookup.
	locks sync.Map
}

func NewBillingService(
	params ServiceParams,
	contextSvc ContextService,
	planSvc PlanService,
	executorSvc ExecutorService,
	consistency ConsistencyService,
) BillingService {
	return &billingService{
		ServiceParams: params,
		contextSvc:    contextSvc,
		planSvc:       planSvc,
		executorSvc:   executorSvc,
		consistency:   consistency,
	}
}

func (s *billingService) Attach(ctx context.Context, req *BillingRequest) (*billingplan.BillingPlan, error) {
	req.Operation = types.BillingOperationAttach
	return s.execute(ctx, req)
}

func (s *billingService) Update(ctx context.Context, req *BillingRequest) (*billingplan.BillingPlan, error) {
	req.Operation = types.BillingOperationUpdate
	return s.execute(ctx, req)
}

func (s *billingService) Cancel(ctx context.Context, req *BillingRequest) (*billingplan.BillingPlan, error) {
	req.Operation = types.BillingOperationCancel
	return s.execute(ctx, req)
}

func (s *billingService) execute(ctx context.Context, req *BillingRequest) (*billingplan.BillingPlan, error) {
	unlock := s.lockCustomer(req.CustomerID)
	defer unlock()

	bc, err := s.contextSvc.BuildContext(ctx, req)
	if err != nil {
		return nil, err
	}

	plan, err := s.planSvc.ResolvePlan(ctx, bc)
	if err != nil {
		return nil, err
	}

	if err := s.executorSvc.ExecutePlan(ctx, plan); err != nil {
		return nil, err
	}

	// Verification runs out of band; it must never sit on the critical
	// path of the user-visible request.
	go s.verifyAsync(context.WithoutCancel(ctx), req.CustomerID)

	return plan, nil
}

func (s *billingService) verifyAsync(ctx context.Context, customerID string) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Errorw("consistency verification panicked",
				"customer_id", customerID,
				"panic", r)
		}
	}()

	report, err := s.consistency.VerifyCustomer(ctx, customerID)
	if err != nil {
		s.Logger.Errorw("consistency verification failed",
			"customer_id", customerID,
			"error", err)
		return
	}
	if !report.Clean() {
		s.Logger.Warnw("consistency verification found divergence",
			"customer_id", customerID,
			"report_id", report.ID,
			"mismatches", len(report.Mismatches),
			"race_flags", len(report.RaceFlags))
	}
}

func (s *billingService) lockCustomer(customerID string) func() {
	mu, _ := s.locks.LoadOrStore(customerID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

func (s *billingService) ExpireProduct(ctx context.Context, customerProductID string) error {
	cp, err := s.CustomerProductRepo.Get(ctx, customerProductID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Customer product not found").
			WithReportableDetails(map[string]any{"customer_product_id": customerProductID}).
			Mark(ierr.ErrNotFound)
	}

	unlock := s.lockCustomer(cp.CustomerID)
	defer unlock()

	now := time.Now().UTC()
	cp.ProductStatus = types.CustomerProductStatusExpired
	cp.EndedAt = &now
	if err := s.CustomerProductRepo.Update(ctx, cp); err != nil {
		return err
	}

	s.Logger.Infow("expired customer product",
		"customer_product_id", cp.ID,
		"customer_id", cp.CustomerID,
		"product_id", cp.ProductID)

	if cp.IsAddOn {
		return nil
	}
	return s.activateDefaultIfNeeded(ctx, cp)
}

// activateDefaultIfNeeded attaches the group's default product when the
// expiry left the customer without an ongoing main product. Default
// products are free, so activation is purely local.
func (s *billingService) activateDefaultIfNeeded(ctx context.Context, expired *customerproduct.CustomerProduct) error {
	cps, err := s.CustomerProductRepo.ListByCustomer(ctx, expired.CustomerID)
	if err != nil {
		return err
	}
	if _, ok := customerproduct.FindOngoingMain(cps, expired.ProductGroup, expired.InternalEntityID); ok {
		return nil
	}

	defaults, err := s.ProductRepo.ListDefault(ctx)
	if err != nil {
		return err
	}
	for _, full := range defaults {
		if full.Product.Group != expired.ProductGroup {
			continue
		}
		req := &BillingRequest{
			Operation:        types.BillingOperationAttach,
			CustomerID:       expired.CustomerID,
			InternalEntityID: expired.InternalEntityID,
			Products:         []ProductRequest{{ProductID: full.Product.ID}},
		}
		bc, err := s.contextSvc.BuildContext(ctx, req)
		if err != nil {
			return err
		}
		plan, err := s.planSvc.ResolvePlan(ctx, bc)
		if err != nil {
			return err
		}
		if err := s.executorSvc.ExecutePlan(ctx, plan); err != nil {
			return err
		}
		s.Logger.Infow("activated default product after expiry",
			"customer_id", expired.CustomerID,
			"product_id", full.Product.ID,
			"product_group", expired.ProductGroup)
		return nil
	}
	return nil
}

func (s *billingService) ActivateScheduled(ctx context.Context, customerProductID string) error {
	cp, err := s.CustomerProductRepo.Get(ctx, customerProductID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Customer product not found").
			WithReportableDetails(map[string]any{"customer_product_id": customerProductID}).
			Mark(ierr.ErrNotFound)
	}
	if cp.ProductStatus != types.CustomerProductStatusScheduled {
		return ierr.NewError("customer product is not scheduled").
			WithHint("Only scheduled attachments can be activated").
			WithReportableDetails(map[string]any{
				"customer_product_id": cp.ID,
				"product_status":      cp.ProductStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	unlock := s.lockCustomer(cp.CustomerID)
	defer unlock()

	now := time.Now().UTC()
	if cp.StartsAt.After(now) {
		return ierr.NewError("scheduled product has not reached its start time").
			WithHint("Activation is only valid at or after the scheduled start").
			WithReportableDetails(map[string]any{
				"customer_product_id": cp.ID,
				"starts_at":           cp.StartsAt,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	// A schedule whose backing subscription was canceled before the phase
	// started never activates; the pending attachment is removed instead.
	if cp.ScheduleID != "" && cp.SubscriptionID != "" {
		sub, err := s.Gateway.GetSubscription(ctx, cp.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == "canceled" {
			return s.discardScheduled(ctx, cp)
		}
	}

	// The superseded ongoing product ends now that its paid period is over.
	cps, err := s.CustomerProductRepo.ListByCustomer(ctx, cp.CustomerID)
	if err != nil {
		return err
	}
	if ongoing, ok := customerproduct.FindOngoingMain(cps, cp.ProductGroup, cp.InternalEntityID); ok {
		ongoing.ProductStatus = types.CustomerProductStatusExpired
		ongoing.EndedAt = &now
		if err := s.CustomerProductRepo.Update(ctx, ongoing); err != nil {
			return err
		}
	}

	cp.ProductStatus = types.CustomerProductStatusActive
	if cp.TrialEndsAt != nil && cp.TrialEndsAt.After(now) {
		cp.ProductStatus = types.CustomerProductStatusTrialing
	}
	if err := s.CustomerProductRepo.Update(ctx, cp); err != nil {
		return err
	}

	s.Logger.Infow("activated scheduled product",
		"customer_product_id", cp.ID,
		"customer_id", cp.CustomerID,
		"product_id", cp.ProductID)
	return nil
}

func (s *billingService) discardScheduled(ctx context.Context, cp *customerproduct.CustomerProduct) error {
	ents, err := s.CustomerProductRepo.ListEntitlementsByProduct(ctx, cp.ID)
	if err != nil {
		return err
	}
	for _, ce := range ents {
		if err := s.CustomerProductRepo.DeleteEntitlement(ctx, ce.ID); err != nil {
			return err
		}
	}
	if err := s.CustomerProductRepo.Delete(ctx, cp.ID); err != nil {
		return err
	}
	s.Logger.Infow("discarded scheduled product after premature cancel",
		"customer_product_id", cp.ID,
		"customer_id", cp.CustomerID,
		"product_id", cp.ProductID)
	return nil
}
