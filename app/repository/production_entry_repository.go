package repository

import (
	"time"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// productionEntryRepository implements the ProductionEntryRepository interface
type productionEntryRepository struct {
	db *gorm.DB
}

// NewProductionEntryRepository creates a new production entry repository instance
func NewProductionEntryRepository(db *gorm.DB) ProductionEntryRepository {
	return &productionEntryRepository{db: db}
}

// Upsert writes a day's figures for a line/PO/stage slot. Re-submitting the
// same slot overwrites the previous figures.
func (r *productionEntryRepository) Upsert(entry *models.ProductionEntry) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "line_id"},
			{Name: "purchase_order_id"},
			{Name: "work_date"},
			{Name: "stage"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"target_qty", "actual_qty", "defect_qty", "submitted_by", "updated_at"}),
	}).Create(entry).Error
}

// ListByPurchaseOrder returns all entries recorded against a purchase order
func (r *productionEntryRepository) ListByPurchaseOrder(factoryID, purchaseOrderID uint) ([]models.ProductionEntry, error) {
	var entries []models.ProductionEntry
	err := r.db.Where("factory_id = ? AND purchase_order_id = ?", factoryID, purchaseOrderID).
		Order("work_date ASC").Find(&entries).Error
	return entries, err
}

// ListByFactoryAndDate returns a factory's entries for one work date
func (r *productionEntryRepository) ListByFactoryAndDate(factoryID uint, workDate time.Time) ([]models.ProductionEntry, error) {
	day := workDate.Format("2006-01-02")
	var entries []models.ProductionEntry
	err := r.db.Where("factory_id = ? AND work_date = ?", factoryID, day).
		Order("line_id ASC").Find(&entries).Error
	return entries, err
}
