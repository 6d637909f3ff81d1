package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetFactoryRepository returns the factory repository instance
func (f *Factory) GetFactoryRepository() FactoryRepository {
	return f.GetRepositories().Factory
}

// GetProductionLineRepository returns the production line repository instance
func (f *Factory) GetProductionLineRepository() ProductionLineRepository {
	return f.GetRepositories().ProductionLine
}

// GetPurchaseOrderRepository returns the purchase order repository instance
func (f *Factory) GetPurchaseOrderRepository() PurchaseOrderRepository {
	return f.GetRepositories().PurchaseOrder
}

// GetProductionEntryRepository returns the production entry repository instance
func (f *Factory) GetProductionEntryRepository() ProductionEntryRepository {
	return f.GetRepositories().ProductionEntry
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
