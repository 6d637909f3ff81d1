package production

import (
	"time"

	"github.com/stitchtrackhq/StitchTrack/app/models"
)

// Health states for a purchase order's delivery outlook.
const (
	HealthOnTrack = "on_track"
	HealthAtRisk  = "at_risk"
	HealthBehind  = "behind"
)

// recentPaceWindow is how many trailing days feed the recent-pace average.
const recentPaceWindow = 7

// atRiskPaceRatio marks orders whose recent pace covers at least this share
// of the required pace as at-risk instead of behind.
const atRiskPaceRatio = 0.75

// StageTotals sums one production stage's figures across lines and days.
type StageTotals struct {
	Target int `json:"target"`
	Actual int `json:"actual"`
	Defect int `json:"defect"`
}

// POProgress is the per-purchase-order rollup shown on progress views and the
// factory dashboard. Completion follows the finishing stage, since only
// finished pieces can ship.
type POProgress struct {
	PurchaseOrderID uint        `json:"purchase_order_id"`
	PONumber        string      `json:"po_number"`
	BuyerName       string      `json:"buyer_name"`
	StyleNumber     string      `json:"style_number"`
	OrderQty        int         `json:"order_qty"`
	ShipDate        time.Time   `json:"ship_date"`
	Status          string      `json:"status"`
	Cutting         StageTotals `json:"cutting"`
	Sewing          StageTotals `json:"sewing"`
	Finishing       StageTotals `json:"finishing"`
	CompletionPct   float64     `json:"completion_pct"`
	RequiredPerDay  float64     `json:"required_per_day"`
	RecentPerDay    float64     `json:"recent_per_day"`
	Health          string      `json:"health"`
}

// Aggregate rolls the order's production entries up into a progress report
// as of now.
func Aggregate(po *models.PurchaseOrder, entries []models.ProductionEntry, now time.Time) POProgress {
	p := POProgress{
		PurchaseOrderID: po.ID,
		PONumber:        po.PONumber,
		BuyerName:       po.BuyerName,
		StyleNumber:     po.StyleNumber,
		OrderQty:        po.OrderQty,
		ShipDate:        po.ShipDate,
		Status:          po.Status,
	}

	windowStart := now.AddDate(0, 0, -recentPaceWindow)
	recentFinished := 0
	for _, e := range entries {
		totals := stageTotals(&p, e.Stage)
		if totals == nil {
			continue
		}
		totals.Target += e.TargetQty
		totals.Actual += e.ActualQty
		totals.Defect += e.DefectQty
		if e.Stage == models.SectionFinishing && !e.WorkDate.Before(windowStart) && !e.WorkDate.After(now) {
			recentFinished += e.ActualQty
		}
	}

	if po.OrderQty > 0 {
		p.CompletionPct = float64(p.Finishing.Actual) / float64(po.OrderQty) * 100
		if p.CompletionPct > 100 {
			p.CompletionPct = 100
		}
	}
	p.RecentPerDay = float64(recentFinished) / float64(recentPaceWindow)

	remaining := po.OrderQty - p.Finishing.Actual
	daysLeft := daysUntil(now, po.ShipDate)
	if remaining > 0 && daysLeft > 0 {
		p.RequiredPerDay = float64(remaining) / float64(daysLeft)
	}

	p.Health = classifyHealth(remaining, daysLeft, p.RequiredPerDay, p.RecentPerDay)
	return p
}

func stageTotals(p *POProgress, stage string) *StageTotals {
	switch stage {
	case models.SectionCutting:
		return &p.Cutting
	case models.SectionSewing:
		return &p.Sewing
	case models.SectionFinishing:
		return &p.Finishing
	default:
		return nil
	}
}

func classifyHealth(remaining, daysLeft int, requiredPerDay, recentPerDay float64) string {
	if remaining <= 0 {
		return HealthOnTrack
	}
	if daysLeft <= 0 {
		// Ship date reached with pieces outstanding.
		return HealthBehind
	}
	if recentPerDay >= requiredPerDay {
		return HealthOnTrack
	}
	if recentPerDay >= requiredPerDay*atRiskPaceRatio {
		return HealthAtRisk
	}
	return HealthBehind
}

// daysUntil counts whole days from now to the ship date, by calendar date.
func daysUntil(now, shipDate time.Time) int {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	shipDay := time.Date(shipDate.Year(), shipDate.Month(), shipDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(shipDay.Sub(nowDay) / (24 * time.Hour))
}
