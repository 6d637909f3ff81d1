package billing

import (
	"strings"
	"time"

	"github.com/stitchtrackhq/StitchTrack/app/models"
)

// Metadata keys stamped on provider objects to carry intent across the
// asynchronous checkout/webhook boundary.
const (
	MetaFactoryID       = "factory_id"
	MetaUserID          = "user_id"
	MetaTier            = "tier"
	MetaInterval        = "interval"
	MetaChangeType      = "change_type"
	MetaPendingTier     = "pending_tier"
	MetaPendingInterval = "pending_interval"
	MetaPendingPriceID  = "pending_price_id"
)

// ProviderSubscription is the provider-agnostic view of a live subscription.
// It always reflects the provider's current object, never local state.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	ProductID         string
	Interval          Interval
	Items             int
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	Metadata          map[string]string
}

// Meta returns a metadata value, tolerating a nil map.
func (s *ProviderSubscription) Meta(key string) string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(s.Metadata[key])
}

// ProviderCustomer is the provider-agnostic view of a billing customer.
type ProviderCustomer struct {
	ID    string
	Email string
}

// CheckoutSession is a hosted checkout redirect created for an upgrade or a
// first-time subscription.
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutParams describes the hosted checkout session to create.
type CheckoutParams struct {
	CustomerID    string
	CustomerEmail string
	PriceID       string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutCompleted is the normalized checkout.session.completed payload.
type CheckoutCompleted struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	CustomerEmail  string
	Metadata       map[string]string
}

// Meta returns a session metadata value, tolerating a nil map.
func (c *CheckoutCompleted) Meta(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(c.Metadata[key])
}

// InvoiceEvent is the normalized invoice.payment_failed / _succeeded payload.
type InvoiceEvent struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
}

// Provider event types dispatched by the reconciler.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoicePaidAlias    = "invoice.paid"
)

// ProviderEvent is a verified, parsed webhook event. Exactly one of the
// payload pointers is set for the event types the reconciler handles.
type ProviderEvent struct {
	ID           string
	Type         string
	Subscription *ProviderSubscription
	Checkout     *CheckoutCompleted
	Invoice      *InvoiceEvent
}

// MapProviderStatus converts a provider subscription status into the local
// billing-record vocabulary.
func MapProviderStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active":
		return models.BillingStatusActive
	case "trialing":
		return models.BillingStatusTrialing
	case "past_due":
		return models.BillingStatusPastDue
	case "canceled":
		return models.BillingStatusCanceled
	case "unpaid":
		return models.BillingStatusExpired
	default:
		return models.BillingStatusInactive
	}
}
