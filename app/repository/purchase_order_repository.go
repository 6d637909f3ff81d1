package repository

import (
	"strings"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"gorm.io/gorm"
)

// purchaseOrderRepository implements the PurchaseOrderRepository interface
type purchaseOrderRepository struct {
	db *gorm.DB
}

// NewPurchaseOrderRepository creates a new purchase order repository instance
func NewPurchaseOrderRepository(db *gorm.DB) PurchaseOrderRepository {
	return &purchaseOrderRepository{db: db}
}

// Create creates a new purchase order in the database
func (r *purchaseOrderRepository) Create(po *models.PurchaseOrder) error {
	return r.db.Create(po).Error
}

// GetByID retrieves a purchase order by ID, scoped to the factory
func (r *purchaseOrderRepository) GetByID(factoryID, id uint) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.Where("factory_id = ?", factoryID).First(&po, id).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// GetByViewToken retrieves a purchase order by its buyer view token
func (r *purchaseOrderRepository) GetByViewToken(token string) (*models.PurchaseOrder, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var po models.PurchaseOrder
	err := r.db.Where("view_token = ?", token).First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// ListByFactory returns a factory's purchase orders, optionally by status
func (r *purchaseOrderRepository) ListByFactory(factoryID uint, status string) ([]models.PurchaseOrder, error) {
	query := r.db.Where("factory_id = ?", factoryID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var orders []models.PurchaseOrder
	err := query.Order("ship_date ASC").Find(&orders).Error
	return orders, err
}

// Update updates an existing purchase order in the database
func (r *purchaseOrderRepository) Update(po *models.PurchaseOrder) error {
	return r.db.Save(po).Error
}
