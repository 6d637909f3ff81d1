package models

import "time"

const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
)

const (
	BillingStatusTrial    = "trial"
	BillingStatusTrialing = "trialing"
	BillingStatusActive   = "active"
	BillingStatusPastDue  = "past_due"
	BillingStatusCanceled = "canceled"
	BillingStatusInactive = "inactive"
	BillingStatusExpired  = "expired"
)

const PlanChangeTypeDowngrade = "downgrade"

// PaymentGraceDays is how long a factory keeps entitlements after a failed
// payment before access is restricted.
const PaymentGraceDays = 7

// PendingPlanChange describes a committed future plan transition. A nil
// pointer on BillingRecord means no change is scheduled; every read site must
// handle both cases.
type PendingPlanChange struct {
	Type        string    `json:"type"`
	NewTier     string    `json:"new_tier"`
	NewInterval string    `json:"new_interval"`
	EffectiveAt time.Time `json:"effective_at"`
	NewPriceID  string    `json:"new_price_id"`
}

// BillingRecord caches provider-side subscription truth per factory. It is
// mutated only by the plan-change service and the webhook reconciler, and is
// never deleted, only updated.
type BillingRecord struct {
	ID                   uint               `gorm:"primaryKey" json:"id"`
	FactoryID            uint               `gorm:"not null;uniqueIndex" json:"factory_id"`
	StripeCustomerID     string             `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	StripeSubscriptionID string             `gorm:"type:varchar(191);default:'';index" json:"stripe_subscription_id"`
	Tier                 string             `gorm:"type:varchar(50);not null;default:'trial'" json:"tier"`
	BillingInterval      string             `gorm:"type:varchar(16);not null;default:'month'" json:"billing_interval"`
	Status               string             `gorm:"type:varchar(32);not null;default:'trial';index" json:"status"`
	MaxLines             int                `gorm:"not null;default:1" json:"max_lines"`
	PaymentFailedAt      *time.Time         `gorm:"type:timestamp;default:null" json:"payment_failed_at,omitempty"`
	PendingPlanChange    *PendingPlanChange `gorm:"serializer:json;type:json" json:"pending_plan_change,omitempty"`
	CreatedAt            time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitled reports whether the factory currently has access to paid
// features, honoring the post-payment-failure grace window.
func (r *BillingRecord) IsEntitled(now time.Time) bool {
	switch r.Status {
	case BillingStatusActive, BillingStatusTrial, BillingStatusTrialing:
		return true
	case BillingStatusPastDue:
		if r.PaymentFailedAt == nil {
			return true
		}
		return now.Before(r.PaymentFailedAt.AddDate(0, 0, PaymentGraceDays))
	default:
		return false
	}
}

// HasPendingDowngrade reports whether a downgrade is scheduled.
func (r *BillingRecord) HasPendingDowngrade() bool {
	return r.PendingPlanChange != nil && r.PendingPlanChange.Type == PlanChangeTypeDowngrade
}
