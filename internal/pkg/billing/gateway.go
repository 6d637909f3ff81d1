package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Gateway lookups when the provider reports the
// referenced object no longer exists. The plan-change service uses it to
// distinguish stale stored references from real provider failures.
var ErrNotFound = errors.New("billing: provider object not found")

// Gateway abstracts the subscription provider's API surface used by the
// plan-change service and the webhook reconciler.
type Gateway interface {
	// GetSubscription retrieves a subscription by provider reference.
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	// ListSubscriptions lists a customer's subscriptions, newest first.
	ListSubscriptions(ctx context.Context, customerID string) ([]*ProviderSubscription, error)
	// GetCustomer retrieves a customer by provider reference.
	GetCustomer(ctx context.Context, customerID string) (*ProviderCustomer, error)
	// FindCustomerByEmail resolves a customer by account email.
	FindCustomerByEmail(ctx context.Context, email string) (*ProviderCustomer, error)
	// ScheduleCancel marks a subscription to cancel at period end and merges
	// the given metadata onto it.
	ScheduleCancel(ctx context.Context, subscriptionID string, metadata map[string]string) (*ProviderSubscription, error)
	// CreateSubscription starts a new subscription for the customer at the
	// given price, tagged with metadata.
	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*ProviderSubscription, error)
	// CreateCheckoutSession creates a hosted checkout redirect.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	// VerifyWebhook checks the event signature and parses the envelope.
	VerifyWebhook(payload []byte, signature string) (*ProviderEvent, error)
}

// ---------- Mock implementation ----------

// MockGateway is a test double that serves canned provider state and records
// mutating calls.
type MockGateway struct {
	mu sync.Mutex

	// Subscriptions maps subscription ID -> subscription.
	Subscriptions map[string]*ProviderSubscription
	// Customers maps customer ID -> customer.
	Customers map[string]*ProviderCustomer

	// CheckoutCalls collects CreateCheckoutSession parameters.
	CheckoutCalls []CheckoutParams
	// CancelCalls collects (subscriptionID, metadata) pairs.
	CancelCalls []MockCancelCall
	// CreateCalls collects CreateSubscription parameters.
	CreateCalls []MockCreateCall

	// Error fields allow tests to inject failures.
	ListErr     error
	CancelErr   error
	CreateErr   error
	CheckoutErr error

	nextSubSeq int
}

// MockCancelCall records one ScheduleCancel invocation.
type MockCancelCall struct {
	SubscriptionID string
	Metadata       map[string]string
}

// MockCreateCall records one CreateSubscription invocation.
type MockCreateCall struct {
	CustomerID string
	PriceID    string
	Metadata   map[string]string
}

// NewMockGateway creates a MockGateway ready for use.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Subscriptions: make(map[string]*ProviderSubscription),
		Customers:     make(map[string]*ProviderCustomer),
	}
}

// AddCustomer registers a canned customer.
func (m *MockGateway) AddCustomer(c *ProviderCustomer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Customers[c.ID] = c
}

// AddSubscription registers a canned subscription.
func (m *MockGateway) AddSubscription(s *ProviderSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscriptions[s.ID] = s
}

func (m *MockGateway) GetSubscription(_ context.Context, subscriptionID string) (*ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, subscriptionID)
	}
	return s, nil
}

func (m *MockGateway) ListSubscriptions(_ context.Context, customerID string) ([]*ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*ProviderSubscription
	for _, s := range m.Subscriptions {
		if s.CustomerID == customerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockGateway) GetCustomer(_ context.Context, customerID string) (*ProviderCustomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Customers[customerID]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	return c, nil
}

func (m *MockGateway) FindCustomerByEmail(_ context.Context, email string) (*ProviderCustomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Customers {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: customer with email %s", ErrNotFound, email)
}

func (m *MockGateway) ScheduleCancel(_ context.Context, subscriptionID string, metadata map[string]string) (*ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	s, ok := m.Subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, subscriptionID)
	}
	s.CancelAtPeriodEnd = true
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	for k, v := range metadata {
		s.Metadata[k] = v
	}
	m.CancelCalls = append(m.CancelCalls, MockCancelCall{SubscriptionID: subscriptionID, Metadata: metadata})
	return s, nil
}

func (m *MockGateway) CreateSubscription(_ context.Context, customerID, priceID string, metadata map[string]string) (*ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if _, ok := m.Customers[customerID]; !ok {
		return nil, fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	m.nextSubSeq++
	s := &ProviderSubscription{
		ID:         fmt.Sprintf("sub_mock_%d", m.nextSubSeq),
		CustomerID: customerID,
		Status:     "active",
		PriceID:    priceID,
		Items:      1,
		Metadata:   metadata,
	}
	m.Subscriptions[s.ID] = s
	m.CreateCalls = append(m.CreateCalls, MockCreateCall{CustomerID: customerID, PriceID: priceID, Metadata: metadata})
	return s, nil
}

func (m *MockGateway) CreateCheckoutSession(_ context.Context, params CheckoutParams) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckoutErr != nil {
		return nil, m.CheckoutErr
	}
	m.CheckoutCalls = append(m.CheckoutCalls, params)
	return &CheckoutSession{
		ID:  fmt.Sprintf("cs_mock_%d", len(m.CheckoutCalls)),
		URL: "https://checkout.example.com/c/" + params.PriceID,
	}, nil
}

// VerifyWebhook on the mock accepts any signature and is not used by tests,
// which construct ProviderEvent values directly.
func (m *MockGateway) VerifyWebhook(_ []byte, _ string) (*ProviderEvent, error) {
	return nil, errors.New("billing: mock gateway does not parse webhooks")
}
