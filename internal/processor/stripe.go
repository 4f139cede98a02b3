package processor

import (
	"context"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customer"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// StripeGateway implements Gateway against the Stripe API. All
// money-moving calls carry the plan's idempotency key so retries after a
// transport failure cannot double-charge.
type StripeGateway struct {
	client *stripe.Client
	logger *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) *StripeGateway {
	return &StripeGateway{
		client: stripe.NewClient(secretKey, nil),
		logger: log,
	}
}

func (g *StripeGateway) EnsureCustomer(ctx context.Context, cust *customer.Customer) (string, error) {
	if cust.ProcessorCustomerID != "" {
		return cust.ProcessorCustomerID, nil
	}

	params := &stripe.CustomerCreateParams{
		Name:  stripe.String(cust.Name),
		Email: stripe.String(cust.Email),
		Metadata: map[string]string{
			"customer_id": cust.ID,
			"external_id": cust.ExternalID,
		},
	}
	created, err := g.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to create processor customer").
			WithReportableDetails(map[string]any{"customer_id": cust.ID}).
			Mark(ierr.ErrIntegration)
	}

	g.logger.Infow("created processor customer",
		"customer_id", cust.ID,
		"processor_customer_id", created.ID)
	return created.ID, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*billingplan.ProcessorSubscription, error) {
	sub, err := g.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch processor subscription").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrIntegration)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) GetDefaultPaymentMethod(ctx context.Context, processorCustomerID string) (*billingplan.ProcessorPaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(processorCustomerID),
	}
	params.Limit = stripe.Int64(1)

	var (
		method  *billingplan.ProcessorPaymentMethod
		listErr error
	)
	g.client.V1PaymentMethods.List(ctx, params)(func(pm *stripe.PaymentMethod, err error) bool {
		if err != nil {
			listErr = err
			return false
		}
		method = &billingplan.ProcessorPaymentMethod{
			ID:   pm.ID,
			Type: string(pm.Type),
		}
		return false
	})
	if listErr != nil {
		return nil, ierr.WithError(listErr).
			WithHint("Failed to list processor payment methods").
			Mark(ierr.ErrIntegration)
	}
	if method != nil {
		return method, nil
	}
	return nil, nil
}

func (g *StripeGateway) ApplySubscriptionAction(ctx context.Context, action *billingplan.SubscriptionAction) (*billingplan.ProcessorSubscription, error) {
	switch action.Type {
	case billingplan.SubscriptionActionCreate:
		return g.createSubscription(ctx, action)
	case billingplan.SubscriptionActionUpdate:
		return g.updateSubscription(ctx, action)
	case billingplan.SubscriptionActionCancel:
		return g.cancelSubscription(ctx, action)
	default:
		return nil, ierr.NewErrorf("unknown subscription action %s", action.Type).
			Mark(ierr.ErrInvalidOperation)
	}
}

func (g *StripeGateway) createSubscription(ctx context.Context, action *billingplan.SubscriptionAction) (*billingplan.ProcessorSubscription, error) {
	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(action.ProcessorCustomerID),
	}
	for _, item := range action.Items {
		params.Items = append(params.Items, subscriptionCreateItem(item))
	}
	if action.TrialEnd != nil {
		params.TrialEnd = stripe.Int64(action.TrialEnd.Unix())
	}
	if action.IdempotencyKey != "" {
		params.SetIdempotencyKey(action.IdempotencyKey)
	}

	sub, err := g.client.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Processor subscription create failed").
			WithReportableDetails(map[string]any{
				"processor_customer_id": action.ProcessorCustomerID,
			}).
			Mark(ierr.ErrIntegration)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) updateSubscription(ctx context.Context, action *billingplan.SubscriptionAction) (*billingplan.ProcessorSubscription, error) {
	params := &stripe.SubscriptionUpdateParams{}
	for _, item := range action.Items {
		params.Items = append(params.Items, subscriptionUpdateItem(item))
	}
	params.ProrationBehavior = stripe.String(prorationBehavior(action.ProrationBehavior))
	if action.IdempotencyKey != "" {
		params.SetIdempotencyKey(action.IdempotencyKey)
	}

	sub, err := g.client.V1Subscriptions.Update(ctx, action.SubscriptionID, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Processor subscription update failed").
			WithReportableDetails(map[string]any{
				"subscription_id": action.SubscriptionID,
			}).
			Mark(ierr.ErrIntegration)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) cancelSubscription(ctx context.Context, action *billingplan.SubscriptionAction) (*billingplan.ProcessorSubscription, error) {
	if action.CancelAtPeriodEnd {
		params := &stripe.SubscriptionUpdateParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		if action.IdempotencyKey != "" {
			params.SetIdempotencyKey(action.IdempotencyKey)
		}
		sub, err := g.client.V1Subscriptions.Update(ctx, action.SubscriptionID, params)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Processor period-end cancel failed").
				WithReportableDetails(map[string]any{
					"subscription_id": action.SubscriptionID,
				}).
				Mark(ierr.ErrIntegration)
		}
		return fromStripeSubscription(sub), nil
	}

	params := &stripe.SubscriptionCancelParams{}
	if action.IdempotencyKey != "" {
		params.SetIdempotencyKey(action.IdempotencyKey)
	}
	sub, err := g.client.V1Subscriptions.Cancel(ctx, action.SubscriptionID, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Processor subscription cancel failed").
			WithReportableDetails(map[string]any{
				"subscription_id": action.SubscriptionID,
			}).
			Mark(ierr.ErrIntegration)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) ApplyScheduleAction(ctx context.Context, action *billingplan.ScheduleAction) (string, error) {
	switch action.Type {
	case billingplan.ScheduleActionCreate:
		params := &stripe.SubscriptionScheduleCreateParams{
			FromSubscription: stripe.String(action.SubscriptionID),
		}
		if action.IdempotencyKey != "" {
			params.SetIdempotencyKey(action.IdempotencyKey)
		}
		sched, err := g.client.V1SubscriptionSchedules.Create(ctx, params)
		if err != nil {
			return "", ierr.WithError(err).
				WithHint("Processor schedule create failed").
				WithReportableDetails(map[string]any{
					"subscription_id": action.SubscriptionID,
				}).
				Mark(ierr.ErrIntegration)
		}
		return sched.ID, nil

	case billingplan.ScheduleActionRelease:
		params := &stripe.SubscriptionScheduleReleaseParams{}
		if action.IdempotencyKey != "" {
			params.SetIdempotencyKey(action.IdempotencyKey)
		}
		sched, err := g.client.V1SubscriptionSchedules.Release(ctx, action.ScheduleID, params)
		if err != nil {
			return "", ierr.WithError(err).
				WithHint("Processor schedule release failed").
				WithReportableDetails(map[string]any{"schedule_id": action.ScheduleID}).
				Mark(ierr.ErrIntegration)
		}
		return sched.ID, nil

	case billingplan.ScheduleActionCancel:
		params := &stripe.SubscriptionScheduleCancelParams{}
		if action.IdempotencyKey != "" {
			params.SetIdempotencyKey(action.IdempotencyKey)
		}
		sched, err := g.client.V1SubscriptionSchedules.Cancel(ctx, action.ScheduleID, params)
		if err != nil {
			return "", ierr.WithError(err).
				WithHint("Processor schedule cancel failed").
				WithReportableDetails(map[string]any{"schedule_id": action.ScheduleID}).
				Mark(ierr.ErrIntegration)
		}
		return sched.ID, nil

	default:
		return "", ierr.NewErrorf("unknown schedule action %s", action.Type).
			Mark(ierr.ErrInvalidOperation)
	}
}

func (g *StripeGateway) ApplyInvoiceAction(ctx context.Context, action *billingplan.InvoiceAction) error {
	switch action.Type {
	case billingplan.InvoiceActionCreateItem:
		params := &stripe.InvoiceItemCreateParams{
			Customer:    stripe.String(action.ProcessorCustomerID),
			Description: stripe.String(action.Description),
			Amount:      stripe.Int64(toCents(action.Amount)),
			Currency:    stripe.String(action.Currency),
		}
		if action.IdempotencyKey != "" {
			params.SetIdempotencyKey(action.IdempotencyKey)
		}
		if _, err := g.client.V1InvoiceItems.Create(ctx, params); err != nil {
			return ierr.WithError(err).
				WithHint("Processor invoice item create failed").
				WithReportableDetails(map[string]any{
					"processor_customer_id": action.ProcessorCustomerID,
					"amount":                action.Amount,
				}).
				Mark(ierr.ErrIntegration)
		}
		return nil

	case billingplan.InvoiceActionFinalize:
		params := &stripe.InvoiceCreateParams{
			Customer:    stripe.String(action.ProcessorCustomerID),
			AutoAdvance: stripe.Bool(true),
		}
		if action.IdempotencyKey != "" {
			params.SetIdempotencyKey(action.IdempotencyKey)
		}
		if _, err := g.client.V1Invoices.Create(ctx, params); err != nil {
			return ierr.WithError(err).
				WithHint("Processor invoice finalize failed").
				WithReportableDetails(map[string]any{
					"processor_customer_id": action.ProcessorCustomerID,
				}).
				Mark(ierr.ErrIntegration)
		}
		return nil

	default:
		return ierr.NewErrorf("unknown invoice action %s", action.Type).
			Mark(ierr.ErrInvalidOperation)
	}
}

func subscriptionCreateItem(item billingplan.LineItem) *stripe.SubscriptionCreateItemParams {
	p := &stripe.SubscriptionCreateItemParams{}
	if item.ProcessorPriceID != "" {
		p.Price = stripe.String(item.ProcessorPriceID)
	}
	if !item.Quantity.IsZero() {
		p.Quantity = stripe.Int64(item.Quantity.IntPart())
	}
	return p
}

func subscriptionUpdateItem(item billingplan.LineItem) *stripe.SubscriptionUpdateItemParams {
	p := &stripe.SubscriptionUpdateItemParams{}
	if item.ProcessorPriceID != "" {
		p.Price = stripe.String(item.ProcessorPriceID)
	}
	if !item.Quantity.IsZero() {
		p.Quantity = stripe.Int64(item.Quantity.IntPart())
	}
	return p
}

func prorationBehavior(policy types.ProrationPolicy) string {
	switch policy {
	case types.ProrationPolicyNextCycle, types.ProrationPolicyNone:
		return "none"
	default:
		return "create_prorations"
	}
}

func fromStripeSubscription(sub *stripe.Subscription) *billingplan.ProcessorSubscription {
	snapshot := &billingplan.ProcessorSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		snapshot.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		snapshot.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		snapshot.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	return snapshot
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
