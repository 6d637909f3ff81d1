package billing

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/mail"
)

// Notifier delivers best-effort billing notifications to a factory's
// administrators. Failures are logged and swallowed; they never surface as a
// webhook-processing error.
type Notifier interface {
	NotifyAdmins(factoryID uint, subject, body string)
}

// MailNotifier sends admin notifications over SMTP.
type MailNotifier struct {
	repo Repository
}

// NewMailNotifier creates a MailNotifier.
func NewMailNotifier(repo Repository) *MailNotifier {
	return &MailNotifier{repo: repo}
}

func (n *MailNotifier) NotifyAdmins(factoryID uint, subject, body string) {
	emails, err := n.repo.AdminEmails(factoryID)
	if err != nil {
		log.Printf("[Billing] resolve admin emails for factory %d: %v", factoryID, err)
		return
	}
	for _, to := range emails {
		if err := mail.SendMail(to, subject, body); err != nil {
			log.Printf("[Billing] notify %s: %v", to, err)
		}
	}
}

// Reconciler applies verified provider webhook events to billing records.
// Every handler re-derives status/tier from the provider object carried by
// the event, so re-delivery converges instead of double-applying.
type Reconciler struct {
	repo     Repository
	gateway  Gateway
	catalog  *Catalog
	notifier Notifier
}

// NewReconciler creates a webhook reconciler.
func NewReconciler(repo Repository, gateway Gateway, catalog *Catalog, notifier Notifier) *Reconciler {
	return &Reconciler{repo: repo, gateway: gateway, catalog: catalog, notifier: notifier}
}

// HandleEvent dispatches one verified event. A nil error means the event was
// fully applied or deliberately acknowledged without state change.
func (r *Reconciler) HandleEvent(ctx context.Context, event *ProviderEvent) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return r.handleCheckoutCompleted(ctx, event.Checkout)
	case EventSubscriptionUpdated:
		return r.handleSubscriptionUpdated(ctx, event.Subscription)
	case EventSubscriptionDeleted:
		return r.handleSubscriptionDeleted(ctx, event.Subscription)
	case EventInvoiceFailed:
		return r.handleInvoiceFailed(ctx, event.Invoice)
	case EventInvoicePaid, EventInvoicePaidAlias:
		return r.handleInvoicePaid(ctx, event.Invoice)
	default:
		log.Printf("[Billing] ignoring webhook event type %s", event.Type)
		return nil
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, checkout *CheckoutCompleted) error {
	if checkout == nil {
		return fmt.Errorf("checkout event without session payload")
	}

	factoryID := parseFactoryID(checkout.Meta(MetaFactoryID))
	if factoryID == 0 {
		if userID, err := strconv.ParseUint(checkout.Meta(MetaUserID), 10, 64); err == nil && userID > 0 {
			id, err := r.repo.FactoryIDByUserID(uint(userID))
			if err != nil {
				return err
			}
			factoryID = id
		}
	}
	if factoryID == 0 {
		log.Printf("[Billing] checkout session %s carries no resolvable factory, acknowledging", checkout.SessionID)
		return nil
	}

	record, err := r.repo.GetOrCreateBillingRecord(factoryID)
	if err != nil {
		return err
	}

	// The session object does not carry the price; re-fetch the subscription
	// it produced so tier and interval come from provider truth.
	var sub *ProviderSubscription
	if checkout.SubscriptionID != "" {
		sub, err = r.gateway.GetSubscription(ctx, checkout.SubscriptionID)
		if err != nil {
			log.Printf("[Billing] re-fetch subscription %s after checkout: %v", checkout.SubscriptionID, err)
			sub = nil
		}
	}

	tier, interval, ok := r.deriveTier(sub)
	if !ok {
		// Last resort: trust the tier the checkout session was created with.
		tier, ok = r.catalog.TierByName(checkout.Meta(MetaTier))
		if !ok {
			log.Printf("[Billing] checkout session %s: cannot derive tier, acknowledging", checkout.SessionID)
			return nil
		}
		interval, _ = ParseInterval(checkout.Meta(MetaInterval))
	}

	if checkout.CustomerID != "" {
		record.StripeCustomerID = checkout.CustomerID
	}
	if checkout.SubscriptionID != "" {
		record.StripeSubscriptionID = checkout.SubscriptionID
	}
	record.Status = models.BillingStatusActive
	record.Tier = tier.Name
	record.BillingInterval = string(interval)
	record.MaxLines = tier.MaxLines
	record.PaymentFailedAt = nil
	// A completed checkout supersedes any scheduled downgrade.
	record.PendingPlanChange = nil

	if err := r.repo.SaveBillingRecord(record); err != nil {
		return err
	}
	log.Printf("[Billing] factory %d activated on %s/%s via checkout %s", factoryID, tier.Name, interval, checkout.SessionID)
	return nil
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, sub *ProviderSubscription) error {
	if sub == nil {
		return fmt.Errorf("subscription event without payload")
	}
	record, err := r.resolveRecord(ctx, sub.ID, sub.CustomerID, sub.Meta(MetaFactoryID))
	if err != nil {
		return err
	}
	if record == nil {
		log.Printf("[Billing] subscription %s updated but no factory resolves, acknowledging", sub.ID)
		return nil
	}

	record.Status = MapProviderStatus(sub.Status)
	record.StripeSubscriptionID = sub.ID
	if sub.CustomerID != "" {
		record.StripeCustomerID = sub.CustomerID
	}
	if tier, interval, ok := r.deriveTier(sub); ok {
		record.Tier = tier.Name
		record.BillingInterval = string(interval)
		record.MaxLines = tier.MaxLines
	}
	return r.repo.SaveBillingRecord(record)
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, sub *ProviderSubscription) error {
	if sub == nil {
		return fmt.Errorf("subscription event without payload")
	}
	record, err := r.resolveRecord(ctx, sub.ID, sub.CustomerID, sub.Meta(MetaFactoryID))
	if err != nil {
		return err
	}
	if record == nil {
		log.Printf("[Billing] subscription %s deleted but no factory resolves, acknowledging", sub.ID)
		return nil
	}

	pendingPrice := sub.Meta(MetaPendingPriceID)
	pendingTier, pendingOK := r.catalog.TierByName(sub.Meta(MetaPendingTier))
	if pendingPrice != "" && pendingOK {
		return r.applyPendingDowngrade(ctx, record, sub, pendingTier, pendingPrice)
	}

	// Genuine cancellation.
	record.Status = models.BillingStatusCanceled
	record.StripeSubscriptionID = ""
	record.PendingPlanChange = nil
	if err := r.repo.SaveBillingRecord(record); err != nil {
		return err
	}
	r.notifier.NotifyAdmins(record.FactoryID,
		"Your subscription has been canceled",
		"Your subscription has ended. Production tracking is read-only until you subscribe again.")
	log.Printf("[Billing] factory %d subscription %s canceled", record.FactoryID, sub.ID)
	return nil
}

// applyPendingDowngrade finishes a scheduled downgrade: the old subscription
// just ended, so start the replacement at the target price.
func (r *Reconciler) applyPendingDowngrade(ctx context.Context, record *models.BillingRecord, sub *ProviderSubscription, target Tier, targetPrice string) error {
	interval, _ := ParseInterval(sub.Meta(MetaPendingInterval))
	metadata := map[string]string{
		MetaFactoryID: fmt.Sprintf("%d", record.FactoryID),
		MetaTier:      target.Name,
		MetaInterval:  string(interval),
	}

	replacement, err := r.gateway.CreateSubscription(ctx, sub.CustomerID, targetPrice, metadata)
	if err != nil {
		// No inline retry: degrade to an explicit canceled state instead of
		// leaving a half-migrated pending flag behind.
		log.Printf("[Billing] replacement subscription for factory %d failed: %v", record.FactoryID, err)
		record.Status = models.BillingStatusCanceled
		record.StripeSubscriptionID = ""
		record.PendingPlanChange = nil
		if saveErr := r.repo.SaveBillingRecord(record); saveErr != nil {
			return saveErr
		}
		r.notifier.NotifyAdmins(record.FactoryID,
			"Action required: plan change could not be completed",
			fmt.Sprintf("Your scheduled change to the %s plan could not be completed and the subscription has been canceled. Please subscribe again from the billing page.", target.Name))
		return nil
	}

	record.StripeSubscriptionID = replacement.ID
	if replacement.CustomerID != "" {
		record.StripeCustomerID = replacement.CustomerID
	}
	record.Status = models.BillingStatusActive
	record.Tier = target.Name
	record.BillingInterval = string(interval)
	record.MaxLines = target.MaxLines
	record.PendingPlanChange = nil
	if err := r.repo.SaveBillingRecord(record); err != nil {
		return err
	}
	log.Printf("[Billing] factory %d downgraded to %s/%s, new subscription %s", record.FactoryID, target.Name, interval, replacement.ID)
	return nil
}

func (r *Reconciler) handleInvoiceFailed(ctx context.Context, invoice *InvoiceEvent) error {
	if invoice == nil {
		return fmt.Errorf("invoice event without payload")
	}
	record, err := r.resolveRecord(ctx, invoice.SubscriptionID, invoice.CustomerID, "")
	if err != nil {
		return err
	}
	if record == nil {
		log.Printf("[Billing] invoice %s failed but no factory resolves, acknowledging", invoice.InvoiceID)
		return nil
	}

	now := time.Now().UTC()
	record.Status = models.BillingStatusPastDue
	if record.PaymentFailedAt == nil {
		record.PaymentFailedAt = &now
	}
	if err := r.repo.SaveBillingRecord(record); err != nil {
		return err
	}
	r.notifier.NotifyAdmins(record.FactoryID,
		"Payment failed",
		fmt.Sprintf("A subscription payment failed. Please update your payment method within %d days to keep access.", models.PaymentGraceDays))
	return nil
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, invoice *InvoiceEvent) error {
	if invoice == nil {
		return fmt.Errorf("invoice event without payload")
	}
	record, err := r.resolveRecord(ctx, invoice.SubscriptionID, invoice.CustomerID, "")
	if err != nil {
		return err
	}
	if record == nil {
		log.Printf("[Billing] invoice %s paid but no factory resolves, acknowledging", invoice.InvoiceID)
		return nil
	}

	record.PaymentFailedAt = nil
	record.Status = models.BillingStatusActive
	// Opportunistic reference repair from the invoice's identifiers.
	if invoice.SubscriptionID != "" && record.StripeSubscriptionID != invoice.SubscriptionID {
		record.StripeSubscriptionID = invoice.SubscriptionID
	}
	if invoice.CustomerID != "" && record.StripeCustomerID != invoice.CustomerID {
		record.StripeCustomerID = invoice.CustomerID
	}
	return r.repo.SaveBillingRecord(record)
}

// deriveTier reads the authoritative tier off a live subscription, by
// product reference first, then by price reference.
func (r *Reconciler) deriveTier(sub *ProviderSubscription) (Tier, Interval, bool) {
	if sub == nil {
		return Tier{}, IntervalMonth, false
	}
	if tier, ok := r.catalog.TierByProduct(sub.ProductID); ok {
		return tier, sub.Interval, true
	}
	if tier, interval, ok := r.catalog.TierByPrice(sub.PriceID); ok {
		return tier, interval, true
	}
	return Tier{}, IntervalMonth, false
}

// resolveRecord finds the billing record an event belongs to. Order: explicit
// factory metadata, stored subscription reference, stored customer reference,
// then the customer's email matched against account owners. Returns nil, nil
// when nothing resolves; the caller acknowledges without state change.
func (r *Reconciler) resolveRecord(ctx context.Context, subscriptionID, customerID, factoryMeta string) (*models.BillingRecord, error) {
	if id := parseFactoryID(factoryMeta); id != 0 {
		record, err := r.repo.GetOrCreateBillingRecord(id)
		if err != nil {
			return nil, err
		}
		return record, nil
	}
	if record, err := r.repo.GetBillingRecordBySubscription(subscriptionID); err != nil {
		return nil, err
	} else if record != nil {
		return record, nil
	}
	if record, err := r.repo.GetBillingRecordByCustomer(customerID); err != nil {
		return nil, err
	} else if record != nil {
		return record, nil
	}
	if customerID == "" {
		return nil, nil
	}
	cust, err := r.gateway.GetCustomer(ctx, customerID)
	if err != nil || cust.Email == "" {
		return nil, nil
	}
	factoryID, err := r.repo.FactoryIDByUserEmail(cust.Email)
	if err != nil || factoryID == 0 {
		return nil, nil
	}
	return r.repo.GetOrCreateBillingRecord(factoryID)
}

func parseFactoryID(raw string) uint {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
