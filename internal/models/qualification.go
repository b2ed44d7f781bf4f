// internal/models/qualification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// QualificationPeriod is one calendar month's progress record for one
// member/certificate pair. Unique per (certificate, month, year).
type QualificationPeriod struct {
	BaseModel
	MemberID      uuid.UUID `json:"member_id" gorm:"type:uuid;not null;index"`
	CertificateID uuid.UUID `json:"certificate_id" gorm:"type:uuid;not null;index:idx_periods_cert_month,unique"`
	Month         int       `json:"month" gorm:"not null;index:idx_periods_cert_month,unique"`
	Year          int       `json:"year" gorm:"not null;index:idx_periods_cert_month,unique"`

	// Running sum of approved receipt amounts; only ever increases.
	ApprovedTotal float64      `json:"approved_total" gorm:"type:decimal(10,2);default:0"`
	Status        PeriodStatus `json:"status" gorm:"type:varchar(20);default:'in_progress';index"`

	// ReviewFlag is set when a flagged/overridden receipt was approved
	// into this period; the period then needs an explicit admin
	// confirmation before it can advance to qualified.
	ReviewFlag bool `json:"review_flag" gorm:"default:false"`

	SurveyRequired    bool       `json:"survey_required" gorm:"default:false"`
	SurveyCompletedAt *time.Time `json:"survey_completed_at"`
	SurveyAnswers     JSONB      `json:"survey_answers,omitempty" gorm:"type:jsonb"`

	QualifiedAt *time.Time `json:"qualified_at"`
	ForfeitedAt *time.Time `json:"forfeited_at"`

	// Fulfillment: set once when the month's gift card is sent.
	RewardSentAt    *time.Time `json:"reward_sent_at"`
	FulfillmentCode string     `json:"fulfillment_code,omitempty" gorm:"size:255"`

	// Relationships
	Member      User        `json:"member,omitempty" gorm:"foreignKey:MemberID"`
	Certificate Certificate `json:"certificate,omitempty" gorm:"foreignKey:CertificateID"`
	Receipts    []Receipt   `json:"receipts,omitempty" gorm:"foreignKey:PeriodID"`
}

// IsClosed reports whether the period can no longer accept receipt
// approvals.
func (p *QualificationPeriod) IsClosed() bool {
	return p.Status == PeriodStatusQualified || p.Status == PeriodStatusForfeited
}

// SurveySatisfied reports whether the survey gate (if any) is met.
func (p *QualificationPeriod) SurveySatisfied() bool {
	return !p.SurveyRequired || p.SurveyCompletedAt != nil
}
