package repository

import (
	"github.com/stitchtrackhq/StitchTrack/app/models"
	"gorm.io/gorm"
)

// productionLineRepository implements the ProductionLineRepository interface
type productionLineRepository struct {
	db *gorm.DB
}

// NewProductionLineRepository creates a new production line repository instance
func NewProductionLineRepository(db *gorm.DB) ProductionLineRepository {
	return &productionLineRepository{db: db}
}

// Create creates a new production line in the database
func (r *productionLineRepository) Create(line *models.ProductionLine) error {
	return r.db.Create(line).Error
}

// GetByID retrieves a line by ID, scoped to the factory
func (r *productionLineRepository) GetByID(factoryID, id uint) (*models.ProductionLine, error) {
	var line models.ProductionLine
	err := r.db.Where("factory_id = ?", factoryID).First(&line, id).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// ListByFactory returns a factory's lines, optionally only active ones
func (r *productionLineRepository) ListByFactory(factoryID uint, activeOnly bool) ([]models.ProductionLine, error) {
	query := r.db.Where("factory_id = ?", factoryID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var lines []models.ProductionLine
	err := query.Order("name ASC").Find(&lines).Error
	return lines, err
}

// CountActive counts the factory's active lines, for quota enforcement
func (r *productionLineRepository) CountActive(factoryID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.ProductionLine{}).
		Where("factory_id = ? AND is_active = ?", factoryID, true).
		Count(&count).Error
	return count, err
}

// Update updates an existing line in the database
func (r *productionLineRepository) Update(line *models.ProductionLine) error {
	return r.db.Save(line).Error
}

// Deactivate marks a line inactive, freeing its quota slot
func (r *productionLineRepository) Deactivate(factoryID, id uint) error {
	return r.db.Model(&models.ProductionLine{}).
		Where("factory_id = ? AND id = ?", factoryID, id).
		Update("is_active", false).Error
}
