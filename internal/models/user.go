// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	UserType     UserType   `json:"user_type" gorm:"type:varchar(20);not null"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	// IANA zone used to resolve "current calendar month" for this
	// member's receipt submissions.
	Timezone    string     `json:"timezone" gorm:"size:64;default:'America/New_York'"`
	ProfileData     JSONB      `json:"profile_data" gorm:"type:jsonb"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at"`

	// Relationships
	OwnedCertificates  []Certificate `json:"owned_certificates,omitempty" gorm:"foreignKey:MemberID"`
	IssuedCertificates []Certificate `json:"issued_certificates,omitempty" gorm:"foreignKey:MerchantID"`
	Purchases          []Purchase    `json:"purchases,omitempty" gorm:"foreignKey:MerchantID"`
	Receipts           []Receipt     `json:"receipts,omitempty" gorm:"foreignKey:MemberID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// Location resolves the member's time zone, falling back to UTC when the
// stored zone name is missing or invalid.
func (u *User) Location() *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}
