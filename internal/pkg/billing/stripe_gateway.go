package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/stitchtrackhq/StitchTrack/internal/pkg/env"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	webhookSecret string
}

// NewStripeGateway creates a gateway with the given API key and webhook secret.
func NewStripeGateway(apiKey, webhookSecret string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

// NewStripeGatewayFromEnv creates a gateway from STRIPE_SECRET_KEY and
// STRIPE_WEBHOOK_SECRET.
func NewStripeGatewayFromEnv() *StripeGateway {
	return NewStripeGateway(
		env.GetEnv("STRIPE_SECRET_KEY", ""),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)
}

func (g *StripeGateway) GetSubscription(_ context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("items.data.price.product")
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr("retrieve subscription", err)
	}
	return normalizeSubscription(sub), nil
}

func (g *StripeGateway) ListSubscriptions(_ context.Context, customerID string) ([]*ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.AddExpand("data.items.data.price.product")

	var out []*ProviderSubscription
	iter := subscription.List(params)
	for iter.Next() {
		out = append(out, normalizeSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeErr("list subscriptions", err)
	}
	return out, nil
}

func (g *StripeGateway) GetCustomer(_ context.Context, customerID string) (*ProviderCustomer, error) {
	c, err := customer.Get(customerID, nil)
	if err != nil {
		return nil, wrapStripeErr("retrieve customer", err)
	}
	if c.Deleted {
		return nil, fmt.Errorf("%w: customer %s is deleted", ErrNotFound, customerID)
	}
	return &ProviderCustomer{ID: c.ID, Email: c.Email}, nil
}

func (g *StripeGateway) FindCustomerByEmail(_ context.Context, email string) (*ProviderCustomer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	iter := customer.List(params)
	for iter.Next() {
		c := iter.Customer()
		return &ProviderCustomer{ID: c.ID, Email: c.Email}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeErr("search customer by email", err)
	}
	return nil, fmt.Errorf("%w: customer with email %s", ErrNotFound, email)
}

func (g *StripeGateway) ScheduleCancel(_ context.Context, subscriptionID string, metadata map[string]string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
		Metadata:          metadata,
	}
	params.AddExpand("items.data.price.product")
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr("schedule cancel at period end", err)
	}
	return normalizeSubscription(sub), nil
}

func (g *StripeGateway) CreateSubscription(_ context.Context, customerID, priceID string, metadata map[string]string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		Metadata: metadata,
	}
	params.AddExpand("items.data.price.product")
	sub, err := subscription.New(params)
	if err != nil {
		return nil, wrapStripeErr("create subscription", err)
	}
	return normalizeSubscription(sub), nil
}

func (g *StripeGateway) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		Metadata:   p.Metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, wrapStripeErr("create checkout session", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// VerifyWebhook validates the Stripe-Signature header against the configured
// secret and parses the event envelope into the normalized shape.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*ProviderEvent, error) {
	if g.webhookSecret == "" {
		return nil, errors.New("billing: webhook secret not configured")
	}
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("billing: webhook signature verification failed: %w", err)
	}

	ev := &ProviderEvent{ID: event.ID, Type: string(event.Type)}

	switch ev.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("billing: parse checkout session event: %w", err)
		}
		co := &CheckoutCompleted{
			SessionID:     sess.ID,
			CustomerEmail: sess.CustomerEmail,
			Metadata:      sess.Metadata,
		}
		if co.CustomerEmail == "" && sess.CustomerDetails != nil {
			co.CustomerEmail = sess.CustomerDetails.Email
		}
		if sess.Customer != nil {
			co.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			co.SubscriptionID = sess.Subscription.ID
		}
		ev.Checkout = co

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("billing: parse subscription event: %w", err)
		}
		ev.Subscription = normalizeSubscription(&sub)

	case EventInvoiceFailed, EventInvoicePaid, EventInvoicePaidAlias:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("billing: parse invoice event: %w", err)
		}
		ie := &InvoiceEvent{InvoiceID: inv.ID}
		if inv.Customer != nil {
			ie.CustomerID = inv.Customer.ID
		}
		if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
			ie.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
		}
		ev.Invoice = ie
	}

	return ev, nil
}

func normalizeSubscription(s *stripe.Subscription) *ProviderSubscription {
	ps := &ProviderSubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
		Interval:          IntervalMonth,
	}
	if s.Customer != nil {
		ps.CustomerID = s.Customer.ID
	}
	if s.Items == nil || len(s.Items.Data) == 0 {
		return ps
	}
	ps.Items = len(s.Items.Data)
	item := s.Items.Data[0]
	if item.CurrentPeriodEnd > 0 {
		ps.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	if item.Price != nil {
		ps.PriceID = item.Price.ID
		if item.Price.Product != nil {
			ps.ProductID = item.Price.Product.ID
		}
		if item.Price.Recurring != nil && item.Price.Recurring.Interval == stripe.PriceRecurringIntervalYear {
			ps.Interval = IntervalYear
		}
	}
	return ps
}

func wrapStripeErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s: %s", ErrNotFound, op, stripeErr.Code)
		}
	}
	return fmt.Errorf("billing: %s: %w", op, err)
}
