// internal/models/purchase.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Purchase is an append-only inventory ledger entry: a merchant buying a
// quantity of certificates at one denomination. Available stock is never
// stored; it is derived as confirmed quantity minus issued certificates.
type Purchase struct {
	BaseModel
	MerchantID    uuid.UUID `json:"merchant_id" gorm:"type:uuid;not null;index"`
	Denomination  float64   `json:"denomination" gorm:"type:decimal(10,2);not null"`
	Quantity      int       `json:"quantity" gorm:"not null"`
	TotalCost     float64   `json:"total_cost" gorm:"type:decimal(10,2);not null"`
	IsTrial       bool      `json:"is_trial" gorm:"default:false"`
	PaymentMethod string    `json:"payment_method" gorm:"size:50"`
	// Stripe PaymentIntent id (or admin note for offline payments).
	PaymentReference string        `json:"payment_reference" gorm:"size:255"`
	PaymentStatus    PaymentStatus `json:"payment_status" gorm:"type:varchar(20);default:'pending';index"`
	ConfirmedAt      *time.Time    `json:"confirmed_at"`
	FailureReason    string        `json:"failure_reason,omitempty" gorm:"type:text"`

	// Relationships
	Merchant User `json:"merchant,omitempty" gorm:"foreignKey:MerchantID"`
}
