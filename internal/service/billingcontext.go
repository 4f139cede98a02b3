package service

import (
	"context"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// FeatureQuantityRequest is a caller-chosen prepaid quantity, expressed in
// raw units before billing-unit rounding.
type FeatureQuantityRequest struct {
	FeatureID string          `json:"feature_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ProductRequest identifies one target product of an operation.
type ProductRequest struct {
	ProductID string `json:"product_id"`
	// Version 0 resolves to the latest version.
	Version int `json:"version"`

	FeatureQuantities []FeatureQuantityRequest `json:"feature_quantities,omitempty"`
}

// BillingRequest is the fully parsed, already authenticated operation the
// request layer hands to the engine.
type BillingRequest struct {
	Operation  types.BillingOperation `json:"operation"`
	CustomerID string                 `json:"customer_id"`

	// InternalEntityID scopes the operation to one sub-entity.
	InternalEntityID string `json:"internal_entity_id,omitempty"`

	Products []ProductRequest `json:"products"`

	// TrialEndsAt overrides the product's default trial when set.
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`

	// CarryUsage requests existing-usage carry-over for all entitlements.
	CarryUsage bool `json:"carry_usage,omitempty"`

	Proration *types.ProrationConfig `json:"proration,omitempty"`

	// ProcessorType defaults to stripe when unset.
	ProcessorType types.ProcessorType `json:"processor_type,omitempty"`
}

func (r *BillingRequest) Validate() error {
	if err := r.Operation.Validate(); err != nil {
		return err
	}
	if r.CustomerID == "" {
		return ierr.NewError("customer id is required").
			WithHint("Provide the customer id of the operation").
			Mark(ierr.ErrValidation)
	}
	if r.Operation != types.BillingOperationCancel && len(r.Products) == 0 {
		return ierr.NewError("at least one product is required").
			WithHint("Attach and update operations must name a target product").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ContextService assembles the immutable billing context for one
// operation. Building never mutates persisted state and fails fast when
// any referenced entity is missing.
type ContextService interface {
	BuildContext(ctx context.Context, req *BillingRequest) (*billingplan.BillingContext, error)
}

type contextService struct {
	ServiceParams
}

func NewContextService(params ServiceParams) ContextService {
	return &contextService{ServiceParams: params}
}

func (s *contextService) BuildContext(ctx context.Context, req *BillingRequest) (*billingplan.BillingContext, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Pin now once so the whole operation is internally time-consistent.
	now := time.Now().UTC()

	cust, err := s.CustomerRepo.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Customer not found").
			WithReportableDetails(map[string]any{"customer_id": req.CustomerID}).
			Mark(ierr.ErrCustomerNotFound)
	}

	// Read-only lookups fan out; the resolver itself stays sequential.
	var (
		entities []*customer.Entity
		cps      []*customerproduct.CustomerProduct
		cents    []*customerproduct.CustomerEntitlement
		targets  []*billingplan.ResolvedProduct
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		entities, err = s.CustomerRepo.ListAllEntities(ctx, req.CustomerID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		cps, err = s.CustomerProductRepo.ListByCustomer(ctx, req.CustomerID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		cents, err = s.CustomerProductRepo.ListEntitlementsByCustomer(ctx, req.CustomerID)
		return err
	})

	targets = make([]*billingplan.ResolvedProduct, len(req.Products))
	for i, pr := range req.Products {
		i, pr := i, pr
		p.Go(func(ctx context.Context) error {
			resolved, err := s.resolveProduct(ctx, &pr, req, now)
			if err != nil {
				return err
			}
			targets[i] = resolved
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	if err := validateTargets(targets); err != nil {
		return nil, err
	}

	var replaceables []*customerproduct.Replaceable
	for _, ce := range cents {
		reps, err := s.CustomerProductRepo.ListReplaceables(ctx, ce.ID)
		if err != nil {
			return nil, err
		}
		replaceables = append(replaceables, reps...)
	}

	// Current state must already satisfy the structural invariants; a
	// violation means a previous operation raced and the caller retries.
	if err := customerproduct.ValidateUniqueness(cps); err != nil {
		return nil, err
	}
	if err := customerproduct.ValidateNoOrphanSchedules(cps); err != nil {
		return nil, err
	}

	processorType := req.ProcessorType
	if processorType == "" {
		processorType = types.ProcessorTypeStripe
	}
	if err := s.checkProcessorConflict(cps, processorType); err != nil {
		return nil, err
	}

	bc := &billingplan.BillingContext{
		Operation:           req.Operation,
		Now:                 now,
		Customer:            cust,
		Entities:            entities,
		CurrentProducts:     cps,
		CurrentEntitlements: cents,
		CurrentReplaceables: replaceables,
		Products:            targets,
		InternalEntityID:    req.InternalEntityID,
		ProcessorCustomerID: cust.ProcessorCustomerID,
		Proration:           types.DefaultProrationConfig(),
		Base:                types.GetDefaultBaseModel(ctx),
	}
	if req.Proration != nil {
		bc.Proration = *req.Proration
	}

	if err := s.attachProcessorSnapshots(ctx, bc); err != nil {
		return nil, err
	}

	return bc, nil
}

func (s *contextService) resolveProduct(ctx context.Context, pr *ProductRequest, req *BillingRequest, now time.Time) (*billingplan.ResolvedProduct, error) {
	full, err := s.ProductRepo.GetFullByIDAndVersion(ctx, pr.ProductID, pr.Version)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Product not found").
			WithReportableDetails(map[string]any{
				"product_id": pr.ProductID,
				"version":    pr.Version,
			}).
			Mark(ierr.ErrProductNotFound)
	}

	options, err := s.resolveQuantities(ctx, full, pr.FeatureQuantities)
	if err != nil {
		return nil, err
	}

	return &billingplan.ResolvedProduct{
		Full:        full,
		Options:     options,
		TrialEndsAt: resolveTrialEnd(req.TrialEndsAt, full.FreeTrial, now),
		CarryUsage:  req.CarryUsage,
	}, nil
}

// resolveQuantities converts requested raw quantities into whole
// billing-unit packs via ceiling division, so a request for 150 units at a
// pack size of 100 purchases 200.
func (s *contextService) resolveQuantities(ctx context.Context, full *product.FullProduct, requests []FeatureQuantityRequest) ([]customerproduct.FeatureOption, error) {
	options := make([]customerproduct.FeatureOption, 0, len(requests))
	for _, fq := range requests {
		if _, err := s.FeatureRepo.Get(ctx, fq.FeatureID); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Feature not found").
				WithReportableDetails(map[string]any{"feature_id": fq.FeatureID}).
				Mark(ierr.ErrFeatureNotFound)
		}

		ent := full.EntitlementForFeature(fq.FeatureID)
		if ent == nil {
			return nil, ierr.NewError("product does not grant the requested feature").
				WithHint("Feature quantities can only be set for features the product entitles").
				WithReportableDetails(map[string]any{
					"product_id": full.Product.ID,
					"feature_id": fq.FeatureID,
				}).
				Mark(ierr.ErrValidation)
		}

		price := full.PriceForEntitlement(ent.InternalID)
		if price == nil || price.GetBillingType() != types.BillingTypeUsageInAdvance {
			return nil, ierr.NewError("no prepaid price for requested feature quantity").
				WithHint("Quantities apply only to features billed usage-in-advance").
				WithReportableDetails(map[string]any{
					"product_id": full.Product.ID,
					"feature_id": fq.FeatureID,
				}).
				Mark(ierr.ErrValidation)
		}

		units := price.GetBillingUnits()
		packs := fq.Quantity.Div(units).Ceil()
		options = append(options, customerproduct.FeatureOption{
			FeatureID: fq.FeatureID,
			Quantity:  packs.Mul(units),
		})
	}
	return options, nil
}

// validateTargets rejects request shapes that can never resolve to a valid
// plan: the same product twice, more than one free trial, or two main
// products competing for one group.
func validateTargets(targets []*billingplan.ResolvedProduct) error {
	seen := make(map[string]struct{}, len(targets))
	mainGroups := make(map[string]struct{}, len(targets))
	trials := 0

	for _, target := range targets {
		p := target.Full.Product
		if _, ok := seen[p.ID]; ok {
			return ierr.NewError("duplicate product in request").
				WithHint("Each product may appear at most once per operation").
				WithReportableDetails(map[string]any{"product_id": p.ID}).
				Mark(ierr.ErrValidation)
		}
		seen[p.ID] = struct{}{}

		if target.Full.FreeTrial != nil {
			trials++
			if trials > 1 {
				return ierr.NewError("multiple free trials in one request").
					WithHint("At most one product with a free trial may be attached at a time").
					WithReportableDetails(map[string]any{"product_id": p.ID}).
					Mark(ierr.ErrValidation)
			}
		}

		if p.IsAddOn {
			continue
		}
		if _, ok := mainGroups[p.Group]; ok {
			return ierr.NewError("multiple main products share a product group").
				WithHint("Only one main product per group may be attached at a time").
				WithReportableDetails(map[string]any{
					"product_id":    p.ID,
					"product_group": p.Group,
				}).
				Mark(ierr.ErrValidation)
		}
		mainGroups[p.Group] = struct{}{}
	}
	return nil
}

// resolveTrialEnd applies the precedence: explicit override, then product
// default, then none.
func resolveTrialEnd(override *time.Time, trial *product.FreeTrial, now time.Time) *time.Time {
	if override != nil {
		return override
	}
	if trial != nil && trial.DurationDays > 0 {
		end := now.AddDate(0, 0, trial.DurationDays)
		return &end
	}
	return nil
}

// checkProcessorConflict rejects operations implying a different payment
// processor than the one the customer's active products already use.
func (s *contextService) checkProcessorConflict(cps []*customerproduct.CustomerProduct, requested types.ProcessorType) error {
	active := customerproduct.Filter(cps, customerproduct.All(
		customerproduct.HasActiveStatus,
		customerproduct.IsPaid,
	))
	for _, cp := range active {
		if cp.ProcessorType != "" && cp.ProcessorType != requested {
			return ierr.NewError("customer is on a different payment processor").
				WithHint("Active products must all bill through one processor").
				WithReportableDetails(map[string]any{
					"customer_product_id": cp.ID,
					"current_processor":   cp.ProcessorType,
					"requested_processor": requested,
				}).
				Mark(ierr.ErrConflict)
		}
	}
	return nil
}

// attachProcessorSnapshots captures read-only processor state for the
// resolver: the backing subscription of the ongoing main product and the
// customer's default payment method.
func (s *contextService) attachProcessorSnapshots(ctx context.Context, bc *billingplan.BillingContext) error {
	if bc.ProcessorCustomerID != "" {
		pm, err := s.Gateway.GetDefaultPaymentMethod(ctx, bc.ProcessorCustomerID)
		if err != nil {
			return err
		}
		bc.PaymentMethod = pm
	}

	for _, target := range bc.Products {
		ongoing, ok := customerproduct.FindOngoingMain(
			bc.CurrentProducts,
			target.Full.Product.Group,
			bc.InternalEntityID,
		)
		if !ok || ongoing.SubscriptionID == "" {
			continue
		}
		sub, err := s.Gateway.GetSubscription(ctx, ongoing.SubscriptionID)
		if err != nil {
			return err
		}
		bc.Subscription = sub
		break
	}

	if bc.Subscription == nil && bc.Operation == types.BillingOperationCancel {
		// Cancel targets whatever subscription the customer holds.
		for _, cp := range bc.CurrentProducts {
			if cp.SubscriptionID == "" || !customerproduct.HasActiveStatus(cp) {
				continue
			}
			sub, err := s.Gateway.GetSubscription(ctx, cp.SubscriptionID)
			if err != nil {
				return err
			}
			bc.Subscription = sub
			break
		}
	}

	return nil
}
