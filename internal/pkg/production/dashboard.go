package production

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/stitchtrackhq/StitchTrack/internal/pkg/cache"
)

// dashboardTTL keeps dashboard reads cheap without showing figures older
// than a minute.
const dashboardTTL = 60 * time.Second

// DashboardSummary is the factory-level rollup served on the dashboard.
type DashboardSummary struct {
	FactoryID      uint         `json:"factory_id"`
	ActiveLines    int          `json:"active_lines"`
	MaxLines       int          `json:"max_lines"`
	OpenOrders     int          `json:"open_orders"`
	TotalOrderQty  int          `json:"total_order_qty"`
	TotalFinished  int          `json:"total_finished"`
	OrdersOnTrack  int          `json:"orders_on_track"`
	OrdersAtRisk   int          `json:"orders_at_risk"`
	OrdersBehind   int          `json:"orders_behind"`
	Orders         []POProgress `json:"orders"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// Summarize folds per-order progress into a factory summary.
func Summarize(factoryID uint, activeLines, maxLines int, orders []POProgress, now time.Time) *DashboardSummary {
	s := &DashboardSummary{
		FactoryID:   factoryID,
		ActiveLines: activeLines,
		MaxLines:    maxLines,
		Orders:      orders,
		GeneratedAt: now,
	}
	for _, o := range orders {
		s.OpenOrders++
		s.TotalOrderQty += o.OrderQty
		s.TotalFinished += o.Finishing.Actual
		switch o.Health {
		case HealthAtRisk:
			s.OrdersAtRisk++
		case HealthBehind:
			s.OrdersBehind++
		default:
			s.OrdersOnTrack++
		}
	}
	return s
}

func dashboardCacheKey(factoryID uint) string {
	return fmt.Sprintf("dashboard:factory:%d", factoryID)
}

// CachedDashboard returns the cached summary for a factory, or nil on miss.
func CachedDashboard(factoryID uint) *DashboardSummary {
	raw, err := cache.Get(dashboardCacheKey(factoryID))
	if err != nil {
		return nil
	}
	var s DashboardSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		log.Printf("[Production] corrupt dashboard cache for factory %d: %v", factoryID, err)
		return nil
	}
	return &s
}

// StoreDashboard caches the summary. Failures are logged and ignored; the
// dashboard is always recomputable.
func StoreDashboard(s *DashboardSummary) {
	raw, err := json.Marshal(s)
	if err != nil {
		log.Printf("[Production] marshal dashboard for factory %d: %v", s.FactoryID, err)
		return
	}
	if err := cache.Set(dashboardCacheKey(s.FactoryID), raw, dashboardTTL); err != nil {
		log.Printf("[Production] cache dashboard for factory %d: %v", s.FactoryID, err)
	}
}

// InvalidateDashboard drops the cached summary after a submit so the next
// read reflects the new figures.
func InvalidateDashboard(factoryID uint) {
	if err := cache.Delete(dashboardCacheKey(factoryID)); err != nil {
		log.Printf("[Production] invalidate dashboard for factory %d: %v", factoryID, err)
	}
}
