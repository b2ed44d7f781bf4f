// internal/models/certificate.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Certificate is a grocery-rebate certificate (GRC). It is created in
// pending state when a merchant issues it against confirmed inventory,
// becomes active when a member registers it against a grocery store, and
// completes when its final monthly qualification succeeds.
type Certificate struct {
	BaseModel
	MerchantID   uuid.UUID  `json:"merchant_id" gorm:"type:uuid;not null;index"`
	MemberID     *uuid.UUID `json:"member_id" gorm:"type:uuid;index"`
	Denomination float64    `json:"denomination" gorm:"type:decimal(10,2);not null"`
	// MonthsRemaining decrements by one per qualified period and is 0
	// exactly when the certificate is completed.
	MonthsRemaining int               `json:"months_remaining" gorm:"not null"`
	Status          CertificateStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`

	// Set at activation: the member's registered grocery store.
	GroceryStore string `json:"grocery_store" gorm:"size:255"`
	StorePlaceID string `json:"store_place_id" gorm:"size:255"`
	// Alternate names the registered store is known to print on
	// receipts; consulted by the store-mismatch matcher.
	StoreAliases pq.StringArray `json:"store_aliases" gorm:"type:text[]"`

	StartMonth int `json:"start_month"`
	StartYear  int `json:"start_year"`

	IssuedAt     time.Time  `json:"issued_at" gorm:"not null"`
	RegisteredAt *time.Time `json:"registered_at"`
	// Idempotency key supplied by the issuing caller so a retried
	// reservation cannot mint a second certificate.
	IdempotencyKey *string `json:"idempotency_key,omitempty" gorm:"size:64;uniqueIndex"`

	// Relationships
	Merchant User                  `json:"merchant,omitempty" gorm:"foreignKey:MerchantID"`
	Member   *User                 `json:"member,omitempty" gorm:"foreignKey:MemberID"`
	Periods  []QualificationPeriod `json:"periods,omitempty" gorm:"foreignKey:CertificateID"`
}

// IsTerminal reports whether no further operation may mutate the
// certificate.
func (c *Certificate) IsTerminal() bool {
	return c.Status == CertificateStatusCompleted || c.Status == CertificateStatusExpired
}

// StoreNames returns the registered store name plus any aliases.
func (c *Certificate) StoreNames() []string {
	names := make([]string, 0, len(c.StoreAliases)+1)
	if c.GroceryStore != "" {
		names = append(names, c.GroceryStore)
	}
	names = append(names, c.StoreAliases...)
	return names
}

// PendingQueueEntry orders a member's not-yet-activated certificates.
// The head of the order is the certificate promoted when the member's
// active certificate completes. Entries only exist for certificates
// still in pending state.
type PendingQueueEntry struct {
	BaseModel
	MemberID      uuid.UUID `json:"member_id" gorm:"type:uuid;not null;index"`
	CertificateID uuid.UUID `json:"certificate_id" gorm:"type:uuid;not null;uniqueIndex"`
	SortOrder     int       `json:"sort_order" gorm:"not null"`
	// Set by promotion: the head entry the member is invited to
	// register next.
	PromotedAt *time.Time `json:"promoted_at"`

	Certificate Certificate `json:"certificate,omitempty" gorm:"foreignKey:CertificateID"`
}
