// internal/models/receipt.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Receipt is a member-submitted grocery receipt counted toward one
// qualification period. Approved receipts are immutable contributors to
// the period's approved total.
type Receipt struct {
	BaseModel
	MemberID      uuid.UUID  `json:"member_id" gorm:"type:uuid;not null;index"`
	CertificateID uuid.UUID  `json:"certificate_id" gorm:"type:uuid;not null;index"`
	PeriodID      *uuid.UUID `json:"period_id" gorm:"type:uuid;index"`

	ImageURL string `json:"image_url" gorm:"size:512;not null"`
	// SHA-256 of the uploaded image bytes; one physical receipt may be
	// counted once per member.
	ImageHash string `json:"image_hash" gorm:"size:64;not null;index:idx_receipts_member_hash"`

	// OCR extraction; nil means the field could not be extracted and the
	// receipt routes to manual review.
	OCRAmount    *float64   `json:"ocr_amount" gorm:"type:decimal(10,2)"`
	OCRDate      *time.Time `json:"ocr_date"`
	OCRStoreName *string    `json:"ocr_store_name" gorm:"size:255"`
	OCRRaw       JSONB      `json:"ocr_raw,omitempty" gorm:"type:jsonb"`

	// Amount admitted toward the period; defaults to the OCR amount and
	// may be corrected by the reviewing admin.
	Amount float64 `json:"amount" gorm:"type:decimal(10,2)"`

	StoreMismatch  bool `json:"store_mismatch" gorm:"default:false"`
	DateMismatch   bool `json:"date_mismatch" gorm:"default:false"`
	MemberOverride bool `json:"member_override" gorm:"default:false"`

	// Calendar month the submission counts toward, resolved in the
	// member's local time zone at submission time.
	SubmittedMonth int `json:"submitted_month" gorm:"not null"`
	SubmittedYear  int `json:"submitted_year" gorm:"not null"`

	Status          ReceiptStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	RejectionReason string        `json:"rejection_reason,omitempty" gorm:"type:text"`
	Notes           string        `json:"notes,omitempty" gorm:"type:text"`
	// Set only on rejection; a replacement may be submitted strictly
	// before this instant.
	ReuploadAllowedUntil *time.Time `json:"reupload_allowed_until"`
	DecidedAt            *time.Time `json:"decided_at"`
	DecidedBy            *uuid.UUID `json:"decided_by" gorm:"type:uuid"`

	// Relationships
	Member      User                 `json:"member,omitempty" gorm:"foreignKey:MemberID"`
	Certificate Certificate          `json:"certificate,omitempty" gorm:"foreignKey:CertificateID"`
	Period      *QualificationPeriod `json:"period,omitempty" gorm:"foreignKey:PeriodID"`
}

// Flagged reports whether the validator raised any mismatch on this
// receipt.
func (r *Receipt) Flagged() bool {
	return r.StoreMismatch || r.DateMismatch
}
