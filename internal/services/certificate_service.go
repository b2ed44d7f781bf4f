// internal/services/certificate_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/database"
	"github.com/freshrebate/grc-backend/internal/models"
	"github.com/freshrebate/grc-backend/internal/utils"
)

// CertificateService owns the GRC state machine:
//
//	pending --register--> active --last qualified month--> completed
//	pending --retention window lapses--> expired
//
// completed and expired are terminal. Registration is the only member
// action; month decrements arrive from the qualification tracker.
type CertificateService struct {
	db                  *gorm.DB
	locks               *utils.KeyedMutex
	queueService        *QueueService
	notificationService *NotificationService
}

type RegisterCertificateRequest struct {
	GroceryStore string   `json:"grocery_store" validate:"required,min=2,max=255"`
	StorePlaceID string   `json:"store_place_id" validate:"required,max=255"`
	StoreAliases []string `json:"store_aliases,omitempty" validate:"omitempty,max=10,dive,max=255"`
}

func NewCertificateService(db *gorm.DB, queueService *QueueService, notificationService *NotificationService) *CertificateService {
	return &CertificateService{
		db:                  db,
		locks:               utils.NewKeyedMutex(),
		queueService:        queueService,
		notificationService: notificationService,
	}
}

// Register activates a pending certificate for a member: sets the
// registered grocery store, stamps the start month, and claims
// ownership. The single-active-certificate invariant is enforced inside
// the transaction, serialized per member, with the partial unique index
// as the commit-time backstop.
func (s *CertificateService) Register(memberID, certificateID uuid.UUID, req *RegisterCertificateRequest, now time.Time) (*models.Certificate, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var member models.User
	if err := s.db.First(&member, memberID).Error; err != nil {
		return nil, fmt.Errorf("member not found: %w", err)
	}
	if member.Status != models.UserStatusActive {
		return nil, errors.New("member account is not active")
	}

	lockKey := "register:" + memberID.String()
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	var certificate models.Certificate
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&certificate, certificateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("certificate not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if certificate.IsTerminal() {
			logrus.WithFields(logrus.Fields{
				"certificate_id": certificateID,
				"status":         certificate.Status,
			}).Error("Invariant breach: register attempted on terminal certificate")
			return ErrTerminalCertificate
		}
		if certificate.Status != models.CertificateStatusPending {
			return errors.New("certificate is already activated")
		}

		// A certificate queued for another member cannot be claimed.
		var entry models.PendingQueueEntry
		if err := tx.Where("certificate_id = ?", certificateID).First(&entry).Error; err == nil {
			if entry.MemberID != memberID {
				return errors.New("certificate is reserved for another member")
			}
		}

		var activeCount int64
		if err := tx.Model(&models.Certificate{}).
			Where("member_id = ? AND status = ?", memberID, models.CertificateStatusActive).
			Count(&activeCount).Error; err != nil {
			return fmt.Errorf("failed to check active certificates: %w", err)
		}
		if activeCount > 0 {
			return ErrActiveCertificateExists
		}

		local := now.In(member.Location())
		certificate.MemberID = &memberID
		certificate.Status = models.CertificateStatusActive
		certificate.GroceryStore = req.GroceryStore
		certificate.StorePlaceID = req.StorePlaceID
		certificate.StoreAliases = req.StoreAliases
		certificate.StartMonth = int(local.Month())
		certificate.StartYear = local.Year()
		certificate.RegisteredAt = &now

		if err := tx.Save(&certificate).Error; err != nil {
			return fmt.Errorf("failed to activate certificate: %w", err)
		}

		return s.queueService.Remove(tx, certificateID)
	})
	if err != nil {
		return nil, err
	}

	go s.notificationService.NotifyCertificateActivated(&certificate)

	return &certificate, nil
}

// ApplyQualifiedMonth consumes one qualified period: decrement
// monthsRemaining by exactly one and, on reaching zero, complete the
// certificate and promote the member's next pending one. Runs inside
// the caller's qualification transaction. Returns the updated
// certificate and whether it completed.
func (s *CertificateService) ApplyQualifiedMonth(tx *gorm.DB, certificateID uuid.UUID, now time.Time) (*models.Certificate, bool, error) {
	// Conditional decrement: months_remaining can never go negative and
	// only active certificates advance.
	res := tx.Model(&models.Certificate{}).
		Where("id = ? AND status = ? AND months_remaining > 0",
			certificateID, models.CertificateStatusActive).
		UpdateColumn("months_remaining", gorm.Expr("months_remaining - 1"))
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to decrement months: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logrus.WithField("certificate_id", certificateID).
			Error("Invariant breach: qualified month applied to non-advanceable certificate")
		return nil, false, ErrTerminalCertificate
	}

	var certificate models.Certificate
	if err := tx.First(&certificate, certificateID).Error; err != nil {
		return nil, false, fmt.Errorf("failed to reload certificate: %w", err)
	}

	if certificate.MonthsRemaining > 0 {
		return &certificate, false, nil
	}

	certificate.Status = models.CertificateStatusCompleted
	if err := tx.Model(&certificate).
		Update("status", models.CertificateStatusCompleted).Error; err != nil {
		return nil, false, fmt.Errorf("failed to complete certificate: %w", err)
	}

	if certificate.MemberID != nil {
		if _, err := s.queueService.PromoteNext(tx, *certificate.MemberID, now); err != nil {
			return nil, false, err
		}
	}

	return &certificate, true, nil
}

// ExpireStalePending is the retention sweep: pending certificates older
// than the retention window expire and leave the activation queue.
// Inventory is not returned; issuance is final. Returns the number of
// certificates expired.
func (s *CertificateService) ExpireStalePending(now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -models.RetentionDays)

	var stale []models.Certificate
	if err := s.db.Where("status = ? AND issued_at < ?",
		models.CertificateStatusPending, cutoff).Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("failed to find stale certificates: %w", err)
	}

	expired := 0
	for i := range stale {
		certificate := &stale[i]
		err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
			res := tx.Model(&models.Certificate{}).
				Where("id = ? AND status = ?", certificate.ID, models.CertificateStatusPending).
				Update("status", models.CertificateStatusExpired)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Lost a race with a last-minute registration; skip.
				return nil
			}
			expired++
			return s.queueService.Remove(tx, certificate.ID)
		})
		if err != nil {
			return expired, fmt.Errorf("failed to expire certificate %s: %w", certificate.ID, err)
		}
	}

	if expired > 0 {
		logrus.WithField("count", expired).Info("Expired stale pending certificates")
	}
	return expired, nil
}

func (s *CertificateService) GetCertificate(certificateID uuid.UUID) (*models.Certificate, error) {
	var certificate models.Certificate
	if err := s.db.Preload("Merchant").Preload("Member").
		First(&certificate, certificateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("certificate not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &certificate, nil
}

// GetMemberCertificates lists certificates owned by or queued for a
// member.
func (s *CertificateService) GetMemberCertificates(memberID uuid.UUID, params utils.PaginationParams) ([]models.Certificate, int64, error) {
	query := s.db.Model(&models.Certificate{}).
		Where("member_id = ? OR id IN (SELECT certificate_id FROM pending_queue_entries WHERE member_id = ?)",
			memberID, memberID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count certificates: %w", err)
	}

	allowedSortFields := []string{"created_at", "issued_at", "registered_at", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var certificates []models.Certificate
	if err := query.Find(&certificates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch certificates: %w", err)
	}

	return certificates, total, nil
}

func (s *CertificateService) GetMerchantCertificates(merchantID uuid.UUID, params utils.PaginationParams) ([]models.Certificate, int64, error) {
	query := s.db.Model(&models.Certificate{}).Where("merchant_id = ?", merchantID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count certificates: %w", err)
	}

	allowedSortFields := []string{"created_at", "issued_at", "status", "denomination"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var certificates []models.Certificate
	if err := query.Preload("Member").Find(&certificates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch certificates: %w", err)
	}

	return certificates, total, nil
}
