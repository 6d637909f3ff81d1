package billing

import (
	"testing"

	"github.com/stitchtrackhq/StitchTrack/app/models"
)

func testCatalog() *Catalog {
	return NewCatalog([]Tier{
		{Name: "starter", MaxLines: 5, MonthlyPriceID: "price_starter_m", YearlyPriceID: "price_starter_y", ProductID: "prod_starter"},
		{Name: "growth", MaxLines: 15, MonthlyPriceID: "price_growth_m", YearlyPriceID: "price_growth_y", ProductID: "prod_growth"},
		{Name: "scale", MaxLines: 40, MonthlyPriceID: "price_scale_m", YearlyPriceID: "price_scale_y", ProductID: "prod_scale"},
	})
}

func TestClassify(t *testing.T) {
	c := testCatalog()
	tier := func(name string) Tier {
		tr, ok := c.TierByName(name)
		if !ok {
			t.Fatalf("tier %s missing from test catalog", name)
		}
		return tr
	}

	tests := []struct {
		name             string
		current, target  string
		currentI, targetI Interval
		want             ChangeType
	}{
		{"starter to growth", "starter", "growth", IntervalMonth, IntervalMonth, ChangeUpgrade},
		{"starter to scale", "starter", "scale", IntervalMonth, IntervalMonth, ChangeUpgrade},
		{"growth to scale", "growth", "scale", IntervalYear, IntervalYear, ChangeUpgrade},
		{"scale to growth", "scale", "growth", IntervalMonth, IntervalMonth, ChangeDowngrade},
		{"scale to starter", "scale", "starter", IntervalYear, IntervalYear, ChangeDowngrade},
		{"growth to starter", "growth", "starter", IntervalMonth, IntervalMonth, ChangeDowngrade},
		{"same tier month to year", "growth", "growth", IntervalMonth, IntervalYear, ChangeUpgrade},
		{"same tier year to month", "growth", "growth", IntervalYear, IntervalMonth, ChangeDowngrade},
		{"identical plan", "growth", "growth", IntervalMonth, IntervalMonth, ChangeNone},
		{"higher tier wins over interval", "starter", "growth", IntervalYear, IntervalMonth, ChangeUpgrade},
		{"lower tier wins over interval", "scale", "growth", IntervalMonth, IntervalYear, ChangeDowngrade},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tier(tt.current), tt.currentI, tier(tt.target), tt.targetI)
			if got != tt.want {
				t.Fatalf("Classify(%s/%s -> %s/%s) = %s, want %s", tt.current, tt.currentI, tt.target, tt.targetI, got, tt.want)
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		raw  string
		want Interval
		ok   bool
	}{
		{"", IntervalMonth, true},
		{"month", IntervalMonth, true},
		{"MONTH", IntervalMonth, true},
		{" year ", IntervalYear, true},
		{"year", IntervalYear, true},
		{"weekly", IntervalMonth, false},
		{"annual", IntervalMonth, false},
	}
	for _, tt := range tests {
		got, ok := ParseInterval(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseInterval(%q) = %s, %v; want %s, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCatalogLookups(t *testing.T) {
	c := testCatalog()

	tier, interval, ok := c.TierByPrice("price_growth_y")
	if !ok || tier.Name != "growth" || interval != IntervalYear {
		t.Fatalf("TierByPrice(price_growth_y) = %s/%s/%v", tier.Name, interval, ok)
	}

	if _, _, ok := c.TierByPrice("price_unknown"); ok {
		t.Fatal("TierByPrice should miss on unknown price")
	}

	tier, ok = c.TierByProduct("prod_scale")
	if !ok || tier.Name != "scale" || tier.MaxLines != 40 {
		t.Fatalf("TierByProduct(prod_scale) = %+v/%v", tier, ok)
	}

	tier, ok = c.TierByName(" Growth ")
	if !ok || tier.Rank != 2 {
		t.Fatalf("TierByName should be case and space insensitive, got %+v/%v", tier, ok)
	}

	if tier.PriceID(IntervalMonth) != "price_growth_m" || tier.PriceID(IntervalYear) != "price_growth_y" {
		t.Fatalf("PriceID lookup wrong for %+v", tier)
	}
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"active", models.BillingStatusActive},
		{"trialing", models.BillingStatusTrialing},
		{"past_due", models.BillingStatusPastDue},
		{"canceled", models.BillingStatusCanceled},
		{"unpaid", models.BillingStatusExpired},
		{"incomplete", models.BillingStatusInactive},
		{"incomplete_expired", models.BillingStatusInactive},
		{"", models.BillingStatusInactive},
		{"ACTIVE", models.BillingStatusActive},
	}
	for _, tt := range tests {
		if got := MapProviderStatus(tt.in); got != tt.want {
			t.Fatalf("MapProviderStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
