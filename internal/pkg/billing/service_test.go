package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchtrackhq/StitchTrack/app/models"
)

// fakeRepo is an in-memory Repository for service and reconciler tests.
type fakeRepo struct {
	records     map[uint]*models.BillingRecord
	ownerEmails map[uint]string
	usersByMail map[string]uint
	usersByID   map[uint]uint
	adminEmails map[uint][]string

	events      map[string]*models.BillingWebhookEvent
	nextEventID uint

	saveErr   error
	saveCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:     make(map[uint]*models.BillingRecord),
		ownerEmails: make(map[uint]string),
		usersByMail: make(map[string]uint),
		usersByID:   make(map[uint]uint),
		adminEmails: make(map[uint][]string),
		events:      make(map[string]*models.BillingWebhookEvent),
	}
}

func (f *fakeRepo) GetBillingRecord(factoryID uint) (*models.BillingRecord, error) {
	return f.records[factoryID], nil
}

func (f *fakeRepo) GetOrCreateBillingRecord(factoryID uint) (*models.BillingRecord, error) {
	if rec, ok := f.records[factoryID]; ok {
		return rec, nil
	}
	rec := &models.BillingRecord{
		ID:              uint(len(f.records) + 1),
		FactoryID:       factoryID,
		Tier:            "trial",
		BillingInterval: models.BillingIntervalMonth,
		Status:          models.BillingStatusTrial,
		MaxLines:        1,
	}
	f.records[factoryID] = rec
	return rec, nil
}

func (f *fakeRepo) GetBillingRecordBySubscription(subscriptionID string) (*models.BillingRecord, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	for _, rec := range f.records {
		if rec.StripeSubscriptionID == subscriptionID {
			return rec, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetBillingRecordByCustomer(customerID string) (*models.BillingRecord, error) {
	if customerID == "" {
		return nil, nil
	}
	for _, rec := range f.records {
		if rec.StripeCustomerID == customerID {
			return rec, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) SaveBillingRecord(record *models.BillingRecord) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[record.FactoryID] = record
	return nil
}

func (f *fakeRepo) OwnerEmail(factoryID uint) (string, error) {
	email, ok := f.ownerEmails[factoryID]
	if !ok {
		return "", fmt.Errorf("no owner for factory %d", factoryID)
	}
	return email, nil
}

func (f *fakeRepo) FactoryIDByUserEmail(email string) (uint, error) {
	return f.usersByMail[email], nil
}

func (f *fakeRepo) FactoryIDByUserID(userID uint) (uint, error) {
	return f.usersByID[userID], nil
}

func (f *fakeRepo) AdminEmails(factoryID uint) ([]string, error) {
	return f.adminEmails[factoryID], nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if _, ok := f.events[key]; ok {
		return false, nil
	}
	f.nextEventID++
	event.ID = f.nextEventID
	f.events[key] = event
	return true, nil
}

func (f *fakeRepo) MarkWebhookProcessed(eventID uint, processingError string) error {
	now := time.Now()
	for _, ev := range f.events {
		if ev.ID == eventID {
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

func newTestService() (*Service, *fakeRepo, *MockGateway) {
	repo := newFakeRepo()
	gw := NewMockGateway()
	return NewService(repo, gw, testCatalog()), repo, gw
}

func seedActiveFactory(repo *fakeRepo, gw *MockGateway, factoryID uint, tier string, interval Interval) *models.BillingRecord {
	custID := fmt.Sprintf("cus_%d", factoryID)
	subID := fmt.Sprintf("sub_%d", factoryID)
	gw.AddCustomer(&ProviderCustomer{ID: custID, Email: fmt.Sprintf("owner%d@example.com", factoryID)})
	priceID := fmt.Sprintf("price_%s_m", tier)
	if interval == IntervalYear {
		priceID = fmt.Sprintf("price_%s_y", tier)
	}
	gw.AddSubscription(&ProviderSubscription{
		ID:               subID,
		CustomerID:       custID,
		Status:           "active",
		PriceID:          priceID,
		ProductID:        "prod_" + tier,
		Interval:         interval,
		Items:            1,
		CurrentPeriodEnd: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	})

	tierDef, _ := testCatalog().TierByName(tier)
	rec := &models.BillingRecord{
		ID:                   factoryID,
		FactoryID:            factoryID,
		StripeCustomerID:     custID,
		StripeSubscriptionID: subID,
		Tier:                 tier,
		BillingInterval:      string(interval),
		Status:               models.BillingStatusActive,
		MaxLines:             tierDef.MaxLines,
	}
	repo.records[factoryID] = rec
	repo.ownerEmails[factoryID] = fmt.Sprintf("owner%d@example.com", factoryID)
	repo.usersByMail[fmt.Sprintf("owner%d@example.com", factoryID)] = factoryID
	return rec
}

func TestChangePlanValidation(t *testing.T) {
	svc, repo, gw := newTestService()
	seedActiveFactory(repo, gw, 1, "growth", IntervalMonth)

	_, err := svc.ChangePlan(context.Background(), 1, "platinum", "month")
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = svc.ChangePlan(context.Background(), 1, "scale", "weekly")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = svc.ChangePlan(context.Background(), 1, "growth", "month")
	assert.ErrorIs(t, err, ErrSamePlan)

	// Validation failures must not reach the provider.
	assert.Empty(t, gw.CheckoutCalls)
	assert.Empty(t, gw.CancelCalls)
}

func TestChangePlanNoBillingRecord(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.ChangePlan(context.Background(), 42, "growth", "month")
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestChangePlanUpgradeGoesThroughCheckout(t *testing.T) {
	svc, repo, gw := newTestService()
	rec := seedActiveFactory(repo, gw, 1, "starter", IntervalMonth)

	res, err := svc.ChangePlan(context.Background(), 1, "scale", "month")
	require.NoError(t, err)
	assert.Equal(t, ChangeUpgrade, res.ChangeType)
	assert.NotEmpty(t, res.CheckoutURL)

	// No synchronous tier mutation: checkout confirmation drives the change.
	assert.Equal(t, "starter", rec.Tier)
	assert.Equal(t, 5, rec.MaxLines)
	assert.Nil(t, rec.PendingPlanChange)

	require.Len(t, gw.CheckoutCalls, 1)
	call := gw.CheckoutCalls[0]
	assert.Equal(t, "price_scale_m", call.PriceID)
	assert.Equal(t, "cus_1", call.CustomerID)
	assert.Equal(t, "1", call.Metadata[MetaFactoryID])
	assert.Equal(t, "scale", call.Metadata[MetaTier])
	assert.Equal(t, "month", call.Metadata[MetaInterval])
	assert.Equal(t, string(ChangeUpgrade), call.Metadata[MetaChangeType])
}

func TestChangePlanIntervalSwitchMonthToYearIsUpgrade(t *testing.T) {
	svc, repo, gw := newTestService()
	seedActiveFactory(repo, gw, 1, "growth", IntervalMonth)

	res, err := svc.ChangePlan(context.Background(), 1, "growth", "year")
	require.NoError(t, err)
	assert.Equal(t, ChangeUpgrade, res.ChangeType)
	require.Len(t, gw.CheckoutCalls, 1)
	assert.Equal(t, "price_growth_y", gw.CheckoutCalls[0].PriceID)
}

func TestChangePlanDowngradeSchedulesCancel(t *testing.T) {
	svc, repo, gw := newTestService()
	rec := seedActiveFactory(repo, gw, 1, "scale", IntervalMonth)
	periodEnd := gw.Subscriptions["sub_1"].CurrentPeriodEnd

	res, err := svc.ChangePlan(context.Background(), 1, "starter", "month")
	require.NoError(t, err)
	assert.Equal(t, ChangeDowngrade, res.ChangeType)
	assert.Empty(t, res.CheckoutURL)
	assert.Equal(t, "starter", res.NewTier)
	assert.Equal(t, 5, res.MaxLines)
	require.NotNil(t, res.EffectiveAt)
	assert.True(t, res.EffectiveAt.Equal(periodEnd))

	// Current entitlements survive until the period ends.
	assert.Equal(t, "scale", rec.Tier)
	assert.Equal(t, 40, rec.MaxLines)
	assert.Equal(t, models.BillingStatusActive, rec.Status)

	require.NotNil(t, rec.PendingPlanChange)
	assert.Equal(t, models.PlanChangeTypeDowngrade, rec.PendingPlanChange.Type)
	assert.Equal(t, "starter", rec.PendingPlanChange.NewTier)
	assert.Equal(t, "price_starter_m", rec.PendingPlanChange.NewPriceID)
	assert.True(t, rec.PendingPlanChange.EffectiveAt.Equal(periodEnd))

	require.Len(t, gw.CancelCalls, 1)
	cancel := gw.CancelCalls[0]
	assert.Equal(t, "sub_1", cancel.SubscriptionID)
	assert.Equal(t, "starter", cancel.Metadata[MetaPendingTier])
	assert.Equal(t, "price_starter_m", cancel.Metadata[MetaPendingPriceID])
	assert.True(t, gw.Subscriptions["sub_1"].CancelAtPeriodEnd)
	assert.Empty(t, gw.CheckoutCalls)
}

func TestChangePlanRepairsStaleSubscriptionReference(t *testing.T) {
	svc, repo, gw := newTestService()
	rec := seedActiveFactory(repo, gw, 1, "starter", IntervalMonth)
	// Stored subscription reference no longer exists at the provider.
	delete(gw.Subscriptions, "sub_1")
	gw.AddSubscription(&ProviderSubscription{
		ID:         "sub_new",
		CustomerID: "cus_1",
		Status:     "active",
		PriceID:    "price_starter_m",
		Items:      1,
	})

	res, err := svc.ChangePlan(context.Background(), 1, "growth", "month")
	require.NoError(t, err)
	assert.Equal(t, ChangeUpgrade, res.ChangeType)

	// Self-healed reference persisted for the next call's fast path.
	assert.Equal(t, "sub_new", rec.StripeSubscriptionID)
	assert.Equal(t, "cus_1", rec.StripeCustomerID)
}

func TestChangePlanRecoversCustomerByOwnerEmail(t *testing.T) {
	svc, repo, gw := newTestService()
	rec := seedActiveFactory(repo, gw, 1, "starter", IntervalMonth)
	// Both stored references are stale; only the owner's email matches.
	delete(gw.Subscriptions, "sub_1")
	delete(gw.Customers, "cus_1")
	gw.AddCustomer(&ProviderCustomer{ID: "cus_fresh", Email: "owner1@example.com"})
	gw.AddSubscription(&ProviderSubscription{
		ID:         "sub_fresh",
		CustomerID: "cus_fresh",
		Status:     "active",
		PriceID:    "price_starter_m",
		Items:      1,
	})

	_, err := svc.ChangePlan(context.Background(), 1, "growth", "month")
	require.NoError(t, err)
	assert.Equal(t, "cus_fresh", rec.StripeCustomerID)
	assert.Equal(t, "sub_fresh", rec.StripeSubscriptionID)
}

func TestChangePlanPicksBestSubscriptionCandidate(t *testing.T) {
	svc, repo, gw := newTestService()
	rec := seedActiveFactory(repo, gw, 1, "starter", IntervalMonth)
	delete(gw.Subscriptions, "sub_1")
	gw.AddSubscription(&ProviderSubscription{ID: "sub_canceled", CustomerID: "cus_1", Status: "canceled", PriceID: "price_starter_m", Items: 1})
	gw.AddSubscription(&ProviderSubscription{ID: "sub_empty", CustomerID: "cus_1", Status: "active", PriceID: "price_starter_m"})
	gw.AddSubscription(&ProviderSubscription{ID: "sub_pastdue", CustomerID: "cus_1", Status: "past_due", PriceID: "price_starter_m", Items: 1})

	_, err := svc.ChangePlan(context.Background(), 1, "growth", "month")
	require.NoError(t, err)
	// canceled and item-less candidates are skipped.
	assert.Equal(t, "sub_pastdue", rec.StripeSubscriptionID)
}

func TestChangePlanNoLiveSubscription(t *testing.T) {
	svc, repo, gw := newTestService()
	seedActiveFactory(repo, gw, 1, "starter", IntervalMonth)
	delete(gw.Subscriptions, "sub_1")

	_, err := svc.ChangePlan(context.Background(), 1, "growth", "month")
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestChangePlanProviderFailureSurfacesSafely(t *testing.T) {
	svc, repo, gw := newTestService()
	seedActiveFactory(repo, gw, 1, "starter", IntervalMonth)
	delete(gw.Subscriptions, "sub_1")
	gw.ListErr = errors.New("rate limited")

	_, err := svc.ChangePlan(context.Background(), 1, "growth", "month")
	assert.ErrorIs(t, err, ErrProviderFailure)
}

func TestChangePlanCheckoutFailure(t *testing.T) {
	svc, repo, gw := newTestService()
	seedActiveFactory(repo, gw, 1, "starter", IntervalMonth)
	gw.CheckoutErr = errors.New("stripe is down")

	_, err := svc.ChangePlan(context.Background(), 1, "scale", "month")
	assert.ErrorIs(t, err, ErrProviderFailure)
}

func TestChangePlanCancelFailureLeavesNoPendingChange(t *testing.T) {
	svc, repo, gw := newTestService()
	rec := seedActiveFactory(repo, gw, 1, "scale", IntervalMonth)
	gw.CancelErr = errors.New("stripe is down")

	_, err := svc.ChangePlan(context.Background(), 1, "starter", "month")
	assert.ErrorIs(t, err, ErrProviderFailure)
	assert.Nil(t, rec.PendingPlanChange)
}
