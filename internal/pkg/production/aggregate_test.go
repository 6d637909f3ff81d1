package production

import (
	"testing"
	"time"

	"github.com/stitchtrackhq/StitchTrack/app/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func entry(stage string, workDate time.Time, target, actual, defect int) models.ProductionEntry {
	return models.ProductionEntry{
		Stage:     stage,
		WorkDate:  workDate,
		TargetQty: target,
		ActualQty: actual,
		DefectQty: defect,
	}
}

func TestAggregateTotalsAndCompletion(t *testing.T) {
	now := day(2026, 8, 20)
	po := &models.PurchaseOrder{
		ID:       1,
		PONumber: "PO-1001",
		OrderQty: 1000,
		ShipDate: day(2026, 9, 1),
		Status:   models.POStatusOpen,
	}
	entries := []models.ProductionEntry{
		entry(models.SectionCutting, day(2026, 8, 17), 300, 280, 5),
		entry(models.SectionCutting, day(2026, 8, 18), 300, 310, 2),
		entry(models.SectionSewing, day(2026, 8, 18), 250, 240, 10),
		entry(models.SectionFinishing, day(2026, 8, 18), 200, 150, 3),
		entry(models.SectionFinishing, day(2026, 8, 19), 200, 250, 1),
	}

	p := Aggregate(po, entries, now)

	if p.Cutting.Actual != 590 || p.Cutting.Target != 600 || p.Cutting.Defect != 7 {
		t.Fatalf("cutting totals = %+v", p.Cutting)
	}
	if p.Sewing.Actual != 240 {
		t.Fatalf("sewing actual = %d", p.Sewing.Actual)
	}
	if p.Finishing.Actual != 400 {
		t.Fatalf("finishing actual = %d", p.Finishing.Actual)
	}
	if p.CompletionPct != 40 {
		t.Fatalf("completion = %f, want 40", p.CompletionPct)
	}
	// 600 remaining over 12 days.
	if p.RequiredPerDay != 50 {
		t.Fatalf("required per day = %f, want 50", p.RequiredPerDay)
	}
	// 400 finished within the 7-day window.
	if p.RecentPerDay*recentPaceWindow != 400 {
		t.Fatalf("recent per day = %f", p.RecentPerDay)
	}
	if p.Health != HealthOnTrack {
		t.Fatalf("health = %s, want %s", p.Health, HealthOnTrack)
	}
}

func TestAggregateHealthStates(t *testing.T) {
	now := day(2026, 8, 20)

	tests := []struct {
		name     string
		orderQty int
		shipDate time.Time
		finished []models.ProductionEntry
		want     string
	}{
		{
			name:     "completed order is on track",
			orderQty: 100,
			shipDate: day(2026, 8, 25),
			finished: []models.ProductionEntry{entry(models.SectionFinishing, day(2026, 8, 15), 100, 100, 0)},
			want:     HealthOnTrack,
		},
		{
			name:     "ship date passed with pieces outstanding",
			orderQty: 100,
			shipDate: day(2026, 8, 19),
			finished: []models.ProductionEntry{entry(models.SectionFinishing, day(2026, 8, 15), 100, 40, 0)},
			want:     HealthBehind,
		},
		{
			// 620 remaining over 10 days needs 62/day; pace is 380/7, about 54/day.
			name:     "moderate shortfall is at risk",
			orderQty: 1000,
			shipDate: day(2026, 8, 30),
			finished: []models.ProductionEntry{entry(models.SectionFinishing, day(2026, 8, 19), 600, 380, 0)},
			want:     HealthAtRisk,
		},
		{
			// 990 remaining over 10 days needs 99/day; pace is 10/day.
			name:     "large shortfall is behind",
			orderQty: 1000,
			shipDate: day(2026, 8, 30),
			finished: []models.ProductionEntry{entry(models.SectionFinishing, day(2026, 8, 19), 600, 10, 0)},
			want:     HealthBehind,
		},
		{
			name:     "no entries at all",
			orderQty: 500,
			shipDate: day(2026, 8, 30),
			want:     HealthBehind,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			po := &models.PurchaseOrder{ID: 1, PONumber: "PO-X", OrderQty: tt.orderQty, ShipDate: tt.shipDate, Status: models.POStatusOpen}
			p := Aggregate(po, tt.finished, now)
			if p.Health != tt.want {
				t.Fatalf("health = %s, want %s (progress %+v)", p.Health, tt.want, p)
			}
		})
	}
}

func TestAggregateIgnoresUnknownStage(t *testing.T) {
	now := day(2026, 8, 20)
	po := &models.PurchaseOrder{ID: 1, OrderQty: 100, ShipDate: day(2026, 9, 1)}
	p := Aggregate(po, []models.ProductionEntry{entry("packing", day(2026, 8, 19), 10, 10, 0)}, now)
	if p.Cutting.Actual != 0 || p.Sewing.Actual != 0 || p.Finishing.Actual != 0 {
		t.Fatalf("unknown stage leaked into totals: %+v", p)
	}
}

func TestSummarize(t *testing.T) {
	now := day(2026, 8, 20)
	orders := []POProgress{
		{OrderQty: 100, Finishing: StageTotals{Actual: 100}, Health: HealthOnTrack},
		{OrderQty: 200, Finishing: StageTotals{Actual: 50}, Health: HealthAtRisk},
		{OrderQty: 300, Finishing: StageTotals{Actual: 10}, Health: HealthBehind},
	}

	s := Summarize(4, 6, 15, orders, now)
	if s.OpenOrders != 3 || s.TotalOrderQty != 600 || s.TotalFinished != 160 {
		t.Fatalf("summary totals = %+v", s)
	}
	if s.OrdersOnTrack != 1 || s.OrdersAtRisk != 1 || s.OrdersBehind != 1 {
		t.Fatalf("summary health counts = %+v", s)
	}
	if s.ActiveLines != 6 || s.MaxLines != 15 {
		t.Fatalf("summary lines = %+v", s)
	}
}
