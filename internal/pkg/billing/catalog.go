package billing

import (
	"strings"
	"sync"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/env"
)

// Interval is a billing interval accepted by the plan-change API.
type Interval string

const (
	IntervalMonth Interval = models.BillingIntervalMonth
	IntervalYear  Interval = models.BillingIntervalYear
)

// Tier is one row of the ordered tier table. Rank is assigned by catalog
// position and increases strictly with price/capability.
type Tier struct {
	Name           string
	Rank           int
	MaxLines       int
	MonthlyPriceID string
	YearlyPriceID  string
	ProductID      string
}

// PriceID returns the provider price reference for the given interval.
func (t Tier) PriceID(interval Interval) string {
	if interval == IntervalYear {
		return t.YearlyPriceID
	}
	return t.MonthlyPriceID
}

type priceRef struct {
	tier     int
	interval Interval
}

// Catalog holds the ordered tier table plus bidirectional lookups built once
// from it, so tier→price and price→tier can never drift apart.
type Catalog struct {
	tiers     []Tier
	byName    map[string]int
	byPrice   map[string]priceRef
	byProduct map[string]int
}

// NewCatalog builds a catalog from tiers listed in ascending rank order.
func NewCatalog(tiers []Tier) *Catalog {
	c := &Catalog{
		tiers:     make([]Tier, len(tiers)),
		byName:    make(map[string]int, len(tiers)),
		byPrice:   make(map[string]priceRef, len(tiers)*2),
		byProduct: make(map[string]int, len(tiers)),
	}
	for i, t := range tiers {
		t.Rank = i + 1
		t.Name = strings.ToLower(strings.TrimSpace(t.Name))
		c.tiers[i] = t
		c.byName[t.Name] = i
		if t.MonthlyPriceID != "" {
			c.byPrice[t.MonthlyPriceID] = priceRef{tier: i, interval: IntervalMonth}
		}
		if t.YearlyPriceID != "" {
			c.byPrice[t.YearlyPriceID] = priceRef{tier: i, interval: IntervalYear}
		}
		if t.ProductID != "" {
			c.byProduct[t.ProductID] = i
		}
	}
	return c
}

// TierByName resolves a tier by its (case-insensitive) name.
func (c *Catalog) TierByName(name string) (Tier, bool) {
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Tier{}, false
	}
	return c.tiers[i], true
}

// TierByPrice resolves a tier and interval from a provider price reference.
func (c *Catalog) TierByPrice(priceID string) (Tier, Interval, bool) {
	ref, ok := c.byPrice[priceID]
	if !ok {
		return Tier{}, IntervalMonth, false
	}
	return c.tiers[ref.tier], ref.interval, true
}

// TierByProduct resolves a tier from a provider product reference.
func (c *Catalog) TierByProduct(productID string) (Tier, bool) {
	i, ok := c.byProduct[productID]
	if !ok {
		return Tier{}, false
	}
	return c.tiers[i], true
}

// Tiers returns the ordered tier table.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// ChangeType classifies a plan-change request.
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "upgrade"
	ChangeDowngrade ChangeType = "downgrade"
	ChangeNone      ChangeType = "none"
)

// Classify compares the current tier/interval against the requested one.
// Interval switches on the same tier follow billing policy: month→year is an
// upgrade (longer commitment, charged now), year→month a downgrade.
func Classify(current Tier, currentInterval Interval, target Tier, targetInterval Interval) ChangeType {
	switch {
	case target.Rank > current.Rank:
		return ChangeUpgrade
	case target.Rank < current.Rank:
		return ChangeDowngrade
	case currentInterval == IntervalMonth && targetInterval == IntervalYear:
		return ChangeUpgrade
	case currentInterval == IntervalYear && targetInterval == IntervalMonth:
		return ChangeDowngrade
	default:
		return ChangeNone
	}
}

// ParseInterval normalizes a request interval. Empty defaults to monthly.
func ParseInterval(raw string) (Interval, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(IntervalMonth):
		return IntervalMonth, true
	case string(IntervalYear):
		return IntervalYear, true
	default:
		return IntervalMonth, false
	}
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the catalog configured via environment variables.
// Price and product references must match the Stripe dashboard objects.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = NewCatalog([]Tier{
			{
				Name:           "starter",
				MaxLines:       5,
				MonthlyPriceID: env.GetEnv("STRIPE_PRICE_STARTER_MONTH", ""),
				YearlyPriceID:  env.GetEnv("STRIPE_PRICE_STARTER_YEAR", ""),
				ProductID:      env.GetEnv("STRIPE_PRODUCT_STARTER", ""),
			},
			{
				Name:           "growth",
				MaxLines:       15,
				MonthlyPriceID: env.GetEnv("STRIPE_PRICE_GROWTH_MONTH", ""),
				YearlyPriceID:  env.GetEnv("STRIPE_PRICE_GROWTH_YEAR", ""),
				ProductID:      env.GetEnv("STRIPE_PRODUCT_GROWTH", ""),
			},
			{
				Name:           "scale",
				MaxLines:       40,
				MonthlyPriceID: env.GetEnv("STRIPE_PRICE_SCALE_MONTH", ""),
				YearlyPriceID:  env.GetEnv("STRIPE_PRICE_SCALE_YEAR", ""),
				ProductID:      env.GetEnv("STRIPE_PRODUCT_SCALE", ""),
			},
		})
	})
	return defaultCatalog
}
