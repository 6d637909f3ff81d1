package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	POStatusOpen     = "open"
	POStatusComplete = "complete"
	POStatusShipped  = "shipped"
	POStatusCanceled = "canceled"
)

// PurchaseOrder is a buyer order tracked through cutting, sewing and
// finishing. ViewToken grants read-only buyer access without a login.
type PurchaseOrder struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	FactoryID   uint           `gorm:"not null;index" json:"factory_id"`
	PONumber    string         `gorm:"type:varchar(100);not null;index" json:"po_number" validate:"required,min=1,max=100"`
	BuyerName   string         `gorm:"type:varchar(150);not null" json:"buyer_name" validate:"required,min=1,max=150"`
	StyleNumber string         `gorm:"type:varchar(100);default:''" json:"style_number" validate:"max=100"`
	OrderQty    int            `gorm:"not null" json:"order_qty" validate:"gt=0"`
	ShipDate    time.Time      `gorm:"type:date;not null" json:"ship_date"`
	Status      string         `gorm:"type:varchar(20);not null;default:'open';index" json:"status" validate:"oneof=open complete shipped canceled"`
	ViewToken   string         `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (po *PurchaseOrder) Validate() error {
	v := validator.New()

	return v.Struct(po)
}

// BeforeCreate assigns a buyer view token when none is set.
func (po *PurchaseOrder) BeforeCreate(_ *gorm.DB) error {
	if po.ViewToken == "" {
		po.ViewToken = uuid.NewString()
	}
	return nil
}
