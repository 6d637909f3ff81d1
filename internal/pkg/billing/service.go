package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/env"
)

// User-facing request errors. Controllers surface the message text verbatim;
// anything else is mapped to a generic failure message.
var (
	ErrUnknownTier     = errors.New("Unknown plan tier.")
	ErrInvalidInterval = errors.New("Billing interval must be 'month' or 'year'.")
	ErrSamePlan        = errors.New("You are already on this plan.")
	ErrNoSubscription  = errors.New("No active subscription found. Please subscribe first.")
	ErrProviderFailure = errors.New("The billing provider could not process the request. Please try again.")
)

// PlanChangeResult is the outcome of a plan-change request. Upgrades carry a
// checkout URL the caller must redirect to; downgrades take effect at
// EffectiveAt and are applied by the webhook reconciler.
type PlanChangeResult struct {
	ChangeType  ChangeType `json:"changeType"`
	CheckoutURL string     `json:"checkoutUrl,omitempty"`
	NewTier     string     `json:"newTier,omitempty"`
	NewInterval string     `json:"newInterval,omitempty"`
	MaxLines    int        `json:"maxLines,omitempty"`
	EffectiveAt *time.Time `json:"effectiveDate,omitempty"`
	Message     string     `json:"message"`
}

// Service implements the subscription plan-change workflow. Upgrades go
// through hosted checkout so the payment is collected before anything
// changes; downgrades are scheduled on the current subscription and executed
// by the reconciler when the period ends.
type Service struct {
	repo    Repository
	gateway Gateway
	catalog *Catalog
}

// NewService creates a plan-change service.
func NewService(repo Repository, gateway Gateway, catalog *Catalog) *Service {
	return &Service{repo: repo, gateway: gateway, catalog: catalog}
}

// ChangePlan moves the factory to the requested tier and interval.
func (s *Service) ChangePlan(ctx context.Context, factoryID uint, tierName, intervalRaw string) (*PlanChangeResult, error) {
	target, ok := s.catalog.TierByName(tierName)
	if !ok {
		return nil, ErrUnknownTier
	}
	targetInterval, ok := ParseInterval(intervalRaw)
	if !ok {
		return nil, ErrInvalidInterval
	}
	if target.PriceID(targetInterval) == "" {
		log.Printf("[Billing] tier %s has no %s price configured", target.Name, targetInterval)
		return nil, ErrProviderFailure
	}

	record, err := s.repo.GetBillingRecord(factoryID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNoSubscription
	}

	sub, err := s.resolveSubscription(ctx, record)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}

	current, currentInterval := s.currentPlan(record, sub)
	change := Classify(current, currentInterval, target, targetInterval)

	switch change {
	case ChangeNone:
		return nil, ErrSamePlan
	case ChangeUpgrade:
		return s.startCheckout(ctx, record, target, targetInterval, ChangeUpgrade)
	default:
		return s.scheduleDowngrade(ctx, record, sub, target, targetInterval)
	}
}

// resolveSubscription finds the factory's live provider subscription,
// tolerating stale stored references. Resolution order: stored subscription
// ID, then the customer's subscription list, with the customer itself
// recovered by owner email when the stored customer reference is stale too.
// Returns nil, nil when the factory has no live subscription.
func (s *Service) resolveSubscription(ctx context.Context, record *models.BillingRecord) (*ProviderSubscription, error) {
	if record.StripeSubscriptionID != "" {
		sub, err := s.gateway.GetSubscription(ctx, record.StripeSubscriptionID)
		if err == nil {
			if isLive(sub) {
				return sub, nil
			}
		} else if !errors.Is(err, ErrNotFound) {
			log.Printf("[Billing] retrieve subscription %s: %v", record.StripeSubscriptionID, err)
			return nil, ErrProviderFailure
		}
		log.Printf("[Billing] stored subscription %s for factory %d is stale, falling back to customer lookup", record.StripeSubscriptionID, record.FactoryID)
	}

	customerID := record.StripeCustomerID
	if customerID != "" {
		if _, err := s.gateway.GetCustomer(ctx, customerID); err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Printf("[Billing] retrieve customer %s: %v", customerID, err)
				return nil, ErrProviderFailure
			}
			customerID = ""
		}
	}
	if customerID == "" {
		email, err := s.repo.OwnerEmail(record.FactoryID)
		if err != nil {
			log.Printf("[Billing] resolve owner email for factory %d: %v", record.FactoryID, err)
			return nil, ErrNoSubscription
		}
		cust, err := s.gateway.FindCustomerByEmail(ctx, email)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			log.Printf("[Billing] search customer by email for factory %d: %v", record.FactoryID, err)
			return nil, ErrProviderFailure
		}
		customerID = cust.ID
	}

	subs, err := s.gateway.ListSubscriptions(ctx, customerID)
	if err != nil {
		log.Printf("[Billing] list subscriptions for customer %s: %v", customerID, err)
		return nil, ErrProviderFailure
	}
	sub := pickSubscription(subs)
	if sub == nil {
		return nil, nil
	}

	// Self-heal the stored references so the fast path works next time.
	if record.StripeSubscriptionID != sub.ID || record.StripeCustomerID != sub.CustomerID {
		record.StripeSubscriptionID = sub.ID
		record.StripeCustomerID = sub.CustomerID
		if err := s.repo.SaveBillingRecord(record); err != nil {
			// Repair is best effort; the change itself must not fail on it.
			log.Printf("[Billing] persist repaired references for factory %d: %v", record.FactoryID, err)
		} else {
			log.Printf("[Billing] repaired stale references for factory %d -> %s / %s", record.FactoryID, sub.CustomerID, sub.ID)
		}
	}
	return sub, nil
}

// currentPlan derives the factory's current tier and interval, preferring the
// live subscription's price over locally cached fields.
func (s *Service) currentPlan(record *models.BillingRecord, sub *ProviderSubscription) (Tier, Interval) {
	if tier, interval, ok := s.catalog.TierByPrice(sub.PriceID); ok {
		return tier, interval
	}
	if tier, ok := s.catalog.TierByProduct(sub.ProductID); ok {
		return tier, sub.Interval
	}
	// Unrecognized price (e.g. legacy or grandfathered plan): fall back to
	// the stored record so classification still works.
	interval, _ := ParseInterval(record.BillingInterval)
	if tier, ok := s.catalog.TierByName(record.Tier); ok {
		return tier, interval
	}
	return Tier{}, interval
}

func (s *Service) startCheckout(ctx context.Context, record *models.BillingRecord, target Tier, interval Interval, change ChangeType) (*PlanChangeResult, error) {
	base := env.GetEnv("APP_PUBLIC_URL", "http://localhost:3000")
	params := CheckoutParams{
		CustomerID: record.StripeCustomerID,
		PriceID:    target.PriceID(interval),
		SuccessURL: base + "/billing?checkout=success",
		CancelURL:  base + "/billing?checkout=canceled",
		Metadata: map[string]string{
			MetaFactoryID:  fmt.Sprintf("%d", record.FactoryID),
			MetaTier:       target.Name,
			MetaInterval:   string(interval),
			MetaChangeType: string(change),
		},
	}
	if params.CustomerID == "" {
		if email, err := s.repo.OwnerEmail(record.FactoryID); err == nil {
			params.CustomerEmail = email
		}
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		log.Printf("[Billing] create checkout session for factory %d: %v", record.FactoryID, err)
		return nil, ErrProviderFailure
	}

	// Nothing is written locally here: the tier only changes when the
	// checkout.session.completed webhook confirms payment.
	return &PlanChangeResult{
		ChangeType:  ChangeUpgrade,
		CheckoutURL: sess.URL,
		NewTier:     target.Name,
		NewInterval: string(interval),
		Message:     "Complete checkout to activate the new plan.",
	}, nil
}

func (s *Service) scheduleDowngrade(ctx context.Context, record *models.BillingRecord, sub *ProviderSubscription, target Tier, interval Interval) (*PlanChangeResult, error) {
	metadata := map[string]string{
		MetaFactoryID:       fmt.Sprintf("%d", record.FactoryID),
		MetaChangeType:      string(ChangeDowngrade),
		MetaPendingTier:     target.Name,
		MetaPendingInterval: string(interval),
		MetaPendingPriceID:  target.PriceID(interval),
	}
	updated, err := s.gateway.ScheduleCancel(ctx, sub.ID, metadata)
	if err != nil {
		log.Printf("[Billing] schedule cancel for subscription %s: %v", sub.ID, err)
		return nil, ErrProviderFailure
	}

	effectiveAt := updated.CurrentPeriodEnd
	if effectiveAt.IsZero() {
		effectiveAt = sub.CurrentPeriodEnd
	}
	record.PendingPlanChange = &models.PendingPlanChange{
		Type:        models.PlanChangeTypeDowngrade,
		NewTier:     target.Name,
		NewInterval: string(interval),
		EffectiveAt: effectiveAt,
		NewPriceID:  target.PriceID(interval),
	}
	if err := s.repo.SaveBillingRecord(record); err != nil {
		log.Printf("[Billing] persist pending downgrade for factory %d: %v", record.FactoryID, err)
		return nil, err
	}

	// The current tier and quota stay in force until the period ends; the
	// reconciler applies the new plan on customer.subscription.deleted.
	return &PlanChangeResult{
		ChangeType:  ChangeDowngrade,
		NewTier:     target.Name,
		NewInterval: string(interval),
		MaxLines:    target.MaxLines,
		EffectiveAt: &effectiveAt,
		Message:     fmt.Sprintf("Your plan changes to %s on %s. You keep your current plan until then.", target.Name, effectiveAt.Format("January 2, 2006")),
	}, nil
}

// isLive reports whether a subscription is usable as the current one.
func isLive(sub *ProviderSubscription) bool {
	if sub == nil || sub.Items == 0 {
		return false
	}
	switch sub.Status {
	case "canceled", "incomplete_expired":
		return false
	default:
		return true
	}
}

// pickSubscription chooses the best candidate from a customer's subscription
// list. Status priority mirrors how usable a subscription is for a plan
// change; canceled and item-less entries are skipped. When no candidate falls
// into a priority bucket, the first eligible one wins.
func pickSubscription(subs []*ProviderSubscription) *ProviderSubscription {
	priority := map[string]int{
		"active":     5,
		"trialing":   4,
		"past_due":   3,
		"unpaid":     2,
		"incomplete": 1,
	}
	var best, first *ProviderSubscription
	bestScore := 0
	for _, sub := range subs {
		if !isLive(sub) {
			continue
		}
		if first == nil {
			first = sub
		}
		if score := priority[sub.Status]; score > bestScore {
			best = sub
			bestScore = score
		}
	}
	if best != nil {
		return best
	}
	return first
}
