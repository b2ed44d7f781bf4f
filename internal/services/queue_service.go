// internal/services/queue_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/database"
	"github.com/freshrebate/grc-backend/internal/models"
)

// QueueService orders a member's not-yet-activated certificates and
// decides which one is offered next when the active certificate
// completes. The order is advisory until consumed; entries only exist
// while the certificate is pending.
type QueueService struct {
	db                  *gorm.DB
	notificationService *NotificationService
}

type ReorderRequest struct {
	CertificateIDs []uuid.UUID `json:"certificate_ids" validate:"required,min=1"`
}

func NewQueueService(db *gorm.DB, notificationService *NotificationService) *QueueService {
	return &QueueService{
		db:                  db,
		notificationService: notificationService,
	}
}

// Enqueue appends a certificate to the tail of a member's activation
// queue. Called inside the issuance transaction.
func (s *QueueService) Enqueue(tx *gorm.DB, memberID, certificateID uuid.UUID) error {
	var maxOrder int64
	err := tx.Model(&models.PendingQueueEntry{}).
		Where("member_id = ?", memberID).
		Select("COALESCE(MAX(sort_order), 0)").
		Scan(&maxOrder).Error
	if err != nil {
		return fmt.Errorf("failed to read queue tail: %w", err)
	}

	entry := &models.PendingQueueEntry{
		MemberID:      memberID,
		CertificateID: certificateID,
		SortOrder:     int(maxOrder) + 1,
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to enqueue certificate: %w", err)
	}
	return nil
}

// Remove drops a certificate from the queue once it leaves pending
// state (registered or expired). Called inside the owning transaction.
func (s *QueueService) Remove(tx *gorm.DB, certificateID uuid.UUID) error {
	if err := tx.Unscoped().
		Where("certificate_id = ?", certificateID).
		Delete(&models.PendingQueueEntry{}).Error; err != nil {
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return nil
}

// Reorder persists the member's preferred activation order. Every id
// supplied must be one of the member's own pending certificates; ids
// left out keep their relative order after the supplied ones.
func (s *QueueService) Reorder(memberID uuid.UUID, req *ReorderRequest) ([]models.PendingQueueEntry, error) {
	if len(req.CertificateIDs) == 0 {
		return nil, errors.New("no certificate ids supplied")
	}

	seen := make(map[uuid.UUID]bool, len(req.CertificateIDs))
	for _, id := range req.CertificateIDs {
		if seen[id] {
			return nil, errors.New("duplicate certificate id in order")
		}
		seen[id] = true
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var entries []models.PendingQueueEntry
		if err := tx.Where("member_id = ?", memberID).
			Order("sort_order asc").
			Find(&entries).Error; err != nil {
			return fmt.Errorf("failed to load queue: %w", err)
		}

		byCertificate := make(map[uuid.UUID]*models.PendingQueueEntry, len(entries))
		for i := range entries {
			byCertificate[entries[i].CertificateID] = &entries[i]
		}

		for _, id := range req.CertificateIDs {
			if _, ok := byCertificate[id]; !ok {
				return fmt.Errorf("certificate %s is not in this member's queue", id)
			}
		}

		order := 1
		for _, id := range req.CertificateIDs {
			entry := byCertificate[id]
			if err := tx.Model(entry).Update("sort_order", order).Error; err != nil {
				return fmt.Errorf("failed to update queue order: %w", err)
			}
			order++
		}
		// Unlisted entries trail in their previous relative order.
		for i := range entries {
			if seen[entries[i].CertificateID] {
				continue
			}
			if err := tx.Model(&entries[i]).Update("sort_order", order).Error; err != nil {
				return fmt.Errorf("failed to update queue order: %w", err)
			}
			order++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.List(memberID)
}

// List returns the member's queue, head first, with certificates
// preloaded.
func (s *QueueService) List(memberID uuid.UUID) ([]models.PendingQueueEntry, error) {
	var entries []models.PendingQueueEntry
	if err := s.db.Where("member_id = ?", memberID).
		Preload("Certificate").
		Order("sort_order asc").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	return entries, nil
}

// PromoteNext marks the head of the member's queue as the certificate
// invited for self-service registration. It does not activate anything:
// activation still requires the member to choose a store. No-op when
// the queue is empty.
func (s *QueueService) PromoteNext(tx *gorm.DB, memberID uuid.UUID, now time.Time) (*models.PendingQueueEntry, error) {
	var head models.PendingQueueEntry
	err := tx.Where("member_id = ?", memberID).
		Order("sort_order asc").
		First(&head).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue head: %w", err)
	}

	if head.PromotedAt == nil {
		if err := tx.Model(&head).Update("promoted_at", now).Error; err != nil {
			return nil, fmt.Errorf("failed to promote queue head: %w", err)
		}
		head.PromotedAt = &now
	}

	return &head, nil
}
