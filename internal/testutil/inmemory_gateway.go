package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customer"
	ierr "github.com/entbill/entbill/internal/errors"
)

// InMemoryGateway implements processor.Gateway, recording every action it
// receives so tests can assert on the exact processor calls a plan issued.
type InMemoryGateway struct {
	mu sync.Mutex

	subscriptions  map[string]*billingplan.ProcessorSubscription
	paymentMethods map[string]*billingplan.ProcessorPaymentMethod

	SubscriptionActions []*billingplan.SubscriptionAction
	ScheduleActions     []*billingplan.ScheduleAction
	InvoiceActions      []*billingplan.InvoiceAction

	// FailNext makes the next processor call fail, for testing
	// processor-before-local ordering.
	FailNext bool

	seq int
}

// NewInMemoryGateway creates a new recording gateway
func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{
		subscriptions:  make(map[string]*billingplan.ProcessorSubscription),
		paymentMethods: make(map[string]*billingplan.ProcessorPaymentMethod),
	}
}

// SeedSubscription registers a subscription snapshot for reads.
func (g *InMemoryGateway) SeedSubscription(sub *billingplan.ProcessorSubscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions[sub.ID] = sub
}

// SeedPaymentMethod registers a default payment method for a processor
// customer.
func (g *InMemoryGateway) SeedPaymentMethod(processorCustomerID string, pm *billingplan.ProcessorPaymentMethod) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paymentMethods[processorCustomerID] = pm
}

func (g *InMemoryGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_test_%d", prefix, g.seq)
}

func (g *InMemoryGateway) failIfRequested() error {
	if g.FailNext {
		g.FailNext = false
		return ierr.NewError("processor request failed").
			Mark(ierr.ErrIntegration)
	}
	return nil
}

func (g *InMemoryGateway) EnsureCustomer(ctx context.Context, cust *customer.Customer) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failIfRequested(); err != nil {
		return "", err
	}
	if cust.ProcessorCustomerID != "" {
		return cust.ProcessorCustomerID, nil
	}
	return g.nextID("cus"), nil
}

func (g *InMemoryGateway) GetSubscription(ctx context.Context, subscriptionID string) (*billingplan.ProcessorSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failIfRequested(); err != nil {
		return nil, err
	}
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, ierr.NewError("subscription not found").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrIntegration)
	}
	out := *sub
	return &out, nil
}

func (g *InMemoryGateway) GetDefaultPaymentMethod(ctx context.Context, processorCustomerID string) (*billingplan.ProcessorPaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failIfRequested(); err != nil {
		return nil, err
	}
	pm, ok := g.paymentMethods[processorCustomerID]
	if !ok {
		return nil, nil
	}
	out := *pm
	return &out, nil
}

func (g *InMemoryGateway) ApplySubscriptionAction(ctx context.Context, action *billingplan.SubscriptionAction) (*billingplan.ProcessorSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failIfRequested(); err != nil {
		return nil, err
	}
	g.SubscriptionActions = append(g.SubscriptionActions, action)

	switch action.Type {
	case billingplan.SubscriptionActionCreate:
		now := time.Now().UTC()
		sub := &billingplan.ProcessorSubscription{
			ID:                 g.nextID("sub"),
			Status:             "active",
			CustomerID:         action.ProcessorCustomerID,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		}
		g.subscriptions[sub.ID] = sub
		out := *sub
		return &out, nil
	case billingplan.SubscriptionActionUpdate, billingplan.SubscriptionActionCancel:
		sub, ok := g.subscriptions[action.SubscriptionID]
		if !ok {
			return nil, ierr.NewError("subscription not found").
				WithReportableDetails(map[string]any{"subscription_id": action.SubscriptionID}).
				Mark(ierr.ErrIntegration)
		}
		if action.Type == billingplan.SubscriptionActionCancel {
			sub.CancelAtPeriodEnd = action.CancelAtPeriodEnd
			if !action.CancelAtPeriodEnd {
				sub.Status = "canceled"
			}
		}
		out := *sub
		return &out, nil
	}
	return nil, ierr.NewError("unknown subscription action").
		Mark(ierr.ErrIntegration)
}

func (g *InMemoryGateway) ApplyScheduleAction(ctx context.Context, action *billingplan.ScheduleAction) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failIfRequested(); err != nil {
		return "", err
	}
	g.ScheduleActions = append(g.ScheduleActions, action)

	if action.Type == billingplan.ScheduleActionCreate {
		return g.nextID("sched"), nil
	}
	return action.ScheduleID, nil
}

func (g *InMemoryGateway) ApplyInvoiceAction(ctx context.Context, action *billingplan.InvoiceAction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failIfRequested(); err != nil {
		return err
	}
	g.InvoiceActions = append(g.InvoiceActions, action)
	return nil
}

// Clear resets recorded actions and seeded state.
func (g *InMemoryGateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions = make(map[string]*billingplan.ProcessorSubscription)
	g.paymentMethods = make(map[string]*billingplan.ProcessorPaymentMethod)
	g.SubscriptionActions = nil
	g.ScheduleActions = nil
	g.InvoiceActions = nil
	g.FailNext = false
	g.seq = 0
}
