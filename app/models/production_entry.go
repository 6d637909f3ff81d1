package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// ProductionEntry is one day of target/actual figures for a line working a
// purchase order at a given stage. Re-submitting the same line/PO/date/stage
// overwrites the previous figures.
type ProductionEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	FactoryID       uint      `gorm:"not null;index" json:"factory_id"`
	LineID          uint      `gorm:"not null;index:ux_production_entries_slot,unique,priority:1" json:"line_id"`
	PurchaseOrderID uint      `gorm:"not null;index;index:ux_production_entries_slot,unique,priority:2" json:"purchase_order_id"`
	WorkDate        time.Time `gorm:"type:date;not null;index:ux_production_entries_slot,unique,priority:3" json:"work_date"`
	Stage           string    `gorm:"type:varchar(20);not null;index:ux_production_entries_slot,unique,priority:4" json:"stage" validate:"oneof=cutting sewing finishing"`
	TargetQty       int       `gorm:"not null;default:0" json:"target_qty" validate:"gte=0"`
	ActualQty       int       `gorm:"not null;default:0" json:"actual_qty" validate:"gte=0"`
	DefectQty       int       `gorm:"not null;default:0" json:"defect_qty" validate:"gte=0"`
	SubmittedBy     uint      `gorm:"not null" json:"submitted_by"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *ProductionEntry) Validate() error {
	v := validator.New()

	return v.Struct(e)
}
