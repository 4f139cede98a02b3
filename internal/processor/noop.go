package processor

import (
	"context"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
)

// NoopGateway stands in when no processor is configured. Plans still
// resolve and local mutations apply; money-moving actions are logged and
// acknowledged without any external call.
type NoopGateway struct {
	Logger *logger.Logger
}

func NewNoopGateway(log *logger.Logger) *NoopGateway {
	return &NoopGateway{Logger: log}
}

func (g *NoopGateway) EnsureCustomer(_ context.Context, cust *customer.Customer) (string, error) {
	if cust.ProcessorCustomerID != "" {
		return cust.ProcessorCustomerID, nil
	}
	return types.GenerateUUIDWithPrefix("noopcus"), nil
}

func (g *NoopGateway) GetSubscription(_ context.Context, subscriptionID string) (*billingplan.ProcessorSubscription, error) {
	return &billingplan.ProcessorSubscription{ID: subscriptionID, Status: "active"}, nil
}

func (g *NoopGateway) GetDefaultPaymentMethod(_ context.Context, _ string) (*billingplan.ProcessorPaymentMethod, error) {
	return nil, nil
}

func (g *NoopGateway) ApplySubscriptionAction(_ context.Context, action *billingplan.SubscriptionAction) (*billingplan.ProcessorSubscription, error) {
	g.Logger.Infow("noop processor: subscription action acknowledged",
		"action_type", action.Type,
		"subscription_id", action.SubscriptionID)
	id := action.SubscriptionID
	if id == "" {
		id = types.GenerateUUIDWithPrefix("noopsub")
	}
	return &billingplan.ProcessorSubscription{ID: id, Status: "active"}, nil
}

func (g *NoopGateway) ApplyScheduleAction(_ context.Context, action *billingplan.ScheduleAction) (string, error) {
	g.Logger.Infow("noop processor: schedule action acknowledged",
		"action_type", action.Type,
		"schedule_id", action.ScheduleID)
	if action.ScheduleID != "" {
		return action.ScheduleID, nil
	}
	return types.GenerateUUIDWithPrefix("noopsched"), nil
}

func (g *NoopGateway) ApplyInvoiceAction(_ context.Context, action *billingplan.InvoiceAction) error {
	g.Logger.Infow("noop processor: invoice action acknowledged",
		"action_type", action.Type,
		"amount", action.Amount)
	return nil
}
