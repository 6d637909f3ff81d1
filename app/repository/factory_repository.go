package repository

import (
	"github.com/stitchtrackhq/StitchTrack/app/models"
	"gorm.io/gorm"
)

// factoryRepository implements the FactoryRepository interface
type factoryRepository struct {
	db *gorm.DB
}

// NewFactoryRepository creates a new factory repository instance
func NewFactoryRepository(db *gorm.DB) FactoryRepository {
	return &factoryRepository{db: db}
}

// Create creates a new factory in the database
func (r *factoryRepository) Create(factory *models.Factory) error {
	return r.db.Create(factory).Error
}

// GetByID retrieves a factory by its ID
func (r *factoryRepository) GetByID(id uint) (*models.Factory, error) {
	var factory models.Factory
	err := r.db.First(&factory, id).Error
	if err != nil {
		return nil, err
	}
	return &factory, nil
}

// Update updates an existing factory in the database
func (r *factoryRepository) Update(factory *models.Factory) error {
	return r.db.Save(factory).Error
}
