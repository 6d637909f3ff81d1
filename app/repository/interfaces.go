package repository

import (
	"time"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPITokenHash(hash string) (*models.User, error)
	Update(user *models.User) error
	ListByFactory(factoryID uint) ([]models.User, error)
}

// FactoryRepository defines the interface for factory (tenant) operations
type FactoryRepository interface {
	Create(factory *models.Factory) error
	GetByID(id uint) (*models.Factory, error)
	Update(factory *models.Factory) error
}

// ProductionLineRepository defines the interface for production line operations
type ProductionLineRepository interface {
	Create(line *models.ProductionLine) error
	GetByID(factoryID, id uint) (*models.ProductionLine, error)
	ListByFactory(factoryID uint, activeOnly bool) ([]models.ProductionLine, error)
	CountActive(factoryID uint) (int64, error)
	Update(line *models.ProductionLine) error
	Deactivate(factoryID, id uint) error
}

// PurchaseOrderRepository defines the interface for purchase order operations
type PurchaseOrderRepository interface {
	Create(po *models.PurchaseOrder) error
	GetByID(factoryID, id uint) (*models.PurchaseOrder, error)
	GetByViewToken(token string) (*models.PurchaseOrder, error)
	ListByFactory(factoryID uint, status string) ([]models.PurchaseOrder, error)
	Update(po *models.PurchaseOrder) error
}

// ProductionEntryRepository defines the interface for daily entry operations
type ProductionEntryRepository interface {
	Upsert(entry *models.ProductionEntry) error
	ListByPurchaseOrder(factoryID, purchaseOrderID uint) ([]models.ProductionEntry, error)
	ListByFactoryAndDate(factoryID uint, workDate time.Time) ([]models.ProductionEntry, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User            UserRepository
	Factory         FactoryRepository
	ProductionLine  ProductionLineRepository
	PurchaseOrder   PurchaseOrderRepository
	ProductionEntry ProductionEntryRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:            NewUserRepository(db),
		Factory:         NewFactoryRepository(db),
		ProductionLine:  NewProductionLineRepository(db),
		PurchaseOrder:   NewPurchaseOrderRepository(db),
		ProductionEntry: NewProductionEntryRepository(db),
	}
}
