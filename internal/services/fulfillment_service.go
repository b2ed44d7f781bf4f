// internal/services/fulfillment_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/database"
	"github.com/freshrebate/grc-backend/internal/models"
	"github.com/freshrebate/grc-backend/internal/utils"
)

// FulfillmentService tracks gift card delivery against qualified
// periods. Delivery itself happens outside the system; this records
// the fact and exposes the backlog to admins.
type FulfillmentService struct {
	db                  *gorm.DB
	locks               *utils.KeyedMutex
	notificationService *NotificationService
}

type MarkRewardSentRequest struct {
	// Gift card or shipment reference recorded for the member.
	FulfillmentCode string `json:"fulfillment_code" validate:"required,max=100"`
}

// FulfillmentStats is the admin backlog summary.
type FulfillmentStats struct {
	PendingCount      int64   `json:"pending_count"`
	PendingValue      float64 `json:"pending_value"`
	SentThisMonth     int64   `json:"sent_this_month"`
	SentTotal         int64   `json:"sent_total"`
	OldestPendingDays int     `json:"oldest_pending_days"`
}

func NewFulfillmentService(db *gorm.DB, notificationService *NotificationService) *FulfillmentService {
	return &FulfillmentService{
		db:                  db,
		locks:               utils.NewKeyedMutex(),
		notificationService: notificationService,
	}
}

// MarkRewardSent records gift card delivery for a qualified period.
// Calling it again for the same period is a no-op success, so a retry
// after a timeout cannot double-send.
func (s *FulfillmentService) MarkRewardSent(periodID, adminID uuid.UUID, req *MarkRewardSentRequest, now time.Time) (*models.QualificationPeriod, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	key := "fulfill:" + periodID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var period models.QualificationPeriod
	var recorded bool
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&period, periodID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("qualification period not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if period.RewardSentAt != nil {
			return nil
		}
		if period.Status != models.PeriodStatusQualified {
			return ErrPeriodNotQualified
		}

		period.RewardSentAt = &now
		period.FulfillmentCode = req.FulfillmentCode
		recorded = true
		return tx.Model(&period).Updates(map[string]interface{}{
			"reward_sent_at":   now,
			"fulfillment_code": req.FulfillmentCode,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	// The no-op retry path never re-notifies.
	if recorded {
		go s.notificationService.NotifyRewardSent(&period)
	}
	return &period, nil
}

// GetPendingFulfillments lists qualified periods still awaiting a gift
// card, oldest qualification first.
func (s *FulfillmentService) GetPendingFulfillments(params utils.PaginationParams) ([]models.QualificationPeriod, int64, error) {
	query := s.pendingQuery()

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count pending fulfillments: %w", err)
	}

	query = query.Order("qualified_at ASC")
	query = utils.ApplyPagination(query, params)

	var periods []models.QualificationPeriod
	if err := query.Preload("Member").Preload("Certificate").Find(&periods).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch pending fulfillments: %w", err)
	}

	return periods, total, nil
}

// GetStats summarizes the backlog. Pending value is derived as count
// times the per-month reward; it is never stored.
func (s *FulfillmentService) GetStats(now time.Time) (*FulfillmentStats, error) {
	stats := &FulfillmentStats{}

	if err := s.pendingQuery().Count(&stats.PendingCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending fulfillments: %w", err)
	}
	stats.PendingValue = float64(stats.PendingCount) * models.MonthlyRewardValue

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if err := s.db.Model(&models.QualificationPeriod{}).
		Where("reward_sent_at >= ?", monthStart).
		Count(&stats.SentThisMonth).Error; err != nil {
		return nil, fmt.Errorf("failed to count rewards sent this month: %w", err)
	}

	if err := s.db.Model(&models.QualificationPeriod{}).
		Where("reward_sent_at IS NOT NULL").
		Count(&stats.SentTotal).Error; err != nil {
		return nil, fmt.Errorf("failed to count rewards sent: %w", err)
	}

	var oldest models.QualificationPeriod
	err := s.pendingQuery().Order("qualified_at ASC").First(&oldest).Error
	if err == nil && oldest.QualifiedAt != nil {
		stats.OldestPendingDays = int(now.Sub(*oldest.QualifiedAt).Hours() / 24)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find oldest pending fulfillment: %w", err)
	}

	return stats, nil
}

func (s *FulfillmentService) pendingQuery() *gorm.DB {
	return s.db.Model(&models.QualificationPeriod{}).
		Where("status = ? AND reward_sent_at IS NULL", models.PeriodStatusQualified)
}
