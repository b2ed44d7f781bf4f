// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserType string

const (
	UserTypeMember   UserType = "member"
	UserTypeMerchant UserType = "merchant"
	UserTypeAdmin    UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type CertificateStatus string

const (
	CertificateStatusPending   CertificateStatus = "pending"
	CertificateStatusActive    CertificateStatus = "active"
	CertificateStatusCompleted CertificateStatus = "completed"
	CertificateStatusExpired   CertificateStatus = "expired"
)

type PeriodStatus string

const (
	PeriodStatusInProgress       PeriodStatus = "in_progress"
	PeriodStatusReceiptsComplete PeriodStatus = "receipts_complete"
	PeriodStatusQualified        PeriodStatus = "qualified"
	PeriodStatusPendingReview    PeriodStatus = "pending_review"
	PeriodStatusForfeited        PeriodStatus = "forfeited"
)

type ReceiptStatus string

const (
	ReceiptStatusPending  ReceiptStatus = "pending"
	ReceiptStatusApproved ReceiptStatus = "approved"
	ReceiptStatusRejected ReceiptStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Program policy constants. A certificate's denomination is its total
// rebate value across the term, paid out as one fixed-value gift card
// per qualified month.
const (
	MonthlyTarget      = 100.00
	MonthlyRewardValue = 25.00
	ReuploadWindowDays = 7
	RetentionDays      = 365
)

// AllowedDenominations maps each sellable denomination to its term in
// months (denomination / MonthlyRewardValue).
var AllowedDenominations = map[float64]int{
	75:  3,
	150: 6,
	300: 12,
}

func TermMonths(denomination float64) (int, bool) {
	months, ok := AllowedDenominations[denomination]
	return months, ok
}
