package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	SectionCutting   = "cutting"
	SectionSewing    = "sewing"
	SectionFinishing = "finishing"
)

// ProductionLine is one physical line (or table/section) in a factory. The
// number of active lines per factory is capped by the billing tier.
type ProductionLine struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	FactoryID uint           `gorm:"not null;index:idx_production_lines_factory_name,priority:1" json:"factory_id"`
	Name      string         `gorm:"type:varchar(100);not null;index:idx_production_lines_factory_name,priority:2" json:"name" validate:"required,min=1,max=100"`
	Section   string         `gorm:"type:varchar(20);not null;default:'sewing'" json:"section" validate:"oneof=cutting sewing finishing"`
	IsActive  bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *ProductionLine) Validate() error {
	v := validator.New()

	return v.Struct(l)
}
