package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Factory is a tenant: one garment factory with its own users, lines,
// purchase orders and billing record.
type Factory struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Country   string         `gorm:"type:varchar(100);default:''" json:"country" validate:"max=100"`
	OwnerID   uint           `gorm:"not null;index" json:"owner_id"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (f *Factory) Validate() error {
	v := validator.New()

	return v.Struct(f)
}
