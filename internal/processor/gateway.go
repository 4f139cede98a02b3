package processor

import (
	"context"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customer"
)

// Gateway is the boundary to the external payment processor. The engine
// treats proration math, tax and payment collection as processor-owned and
// only issues declarative actions.
type Gateway interface {
	// EnsureCustomer returns the processor customer id, creating the
	// customer remotely when none exists yet.
	EnsureCustomer(ctx context.Context, cust *customer.Customer) (string, error)

	// GetSubscription fetches a subscription snapshot. Idempotent read,
	// safe to retry.
	GetSubscription(ctx context.Context, subscriptionID string) (*billingplan.ProcessorSubscription, error)

	// GetDefaultPaymentMethod returns the customer's default payment
	// method, or nil when none is on file.
	GetDefaultPaymentMethod(ctx context.Context, processorCustomerID string) (*billingplan.ProcessorPaymentMethod, error)

	// ApplySubscriptionAction issues a subscription create, update or
	// cancel and returns the resulting snapshot.
	ApplySubscriptionAction(ctx context.Context, action *billingplan.SubscriptionAction) (*billingplan.ProcessorSubscription, error)

	// ApplyScheduleAction stages, releases or cancels a schedule and
	// returns the schedule id.
	ApplyScheduleAction(ctx context.Context, action *billingplan.ScheduleAction) (string, error)

	// ApplyInvoiceAction issues a one-off invoice action.
	ApplyInvoiceAction(ctx context.Context, action *billingplan.InvoiceAction) error
}
