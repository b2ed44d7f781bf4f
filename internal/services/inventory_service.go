// internal/services/inventory_service.go
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

// InventoryService owns the merchant certificate-stock ledger. Stock is
// derived on demand: confirmed purchase quantity minus certificates ever
// issued at that denomination. Nothing in this service stores an
// available count.
type InventoryService struct {
	db                  *gorm.DB
	locks               *utils.KeyedMutex
	notificationService *NotificationService
	queueService        *QueueService
}

type RecordPurchaseRequest struct {
	Denomination  float64 `json:"denomination" validate:"required,denomination"`
	Quantity      int     `json:"quantity" validate:"required,min=1,max=10000"`
	TotalCost     float64 `json:"total_cost" validate:"min=0"`
	PaymentMethod string  `json:"payment_method" validate:"required"`
	IsTrial       bool    `json:"is_trial,omitempty"`
}

type IssueRequest struct {
	Denomination   float64    `json:"denomination" validate:"required,denomination"`
	RecipientID    *uuid.UUID `json:"recipient_id,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty" validate:"omitempty,max=64"`
}

type BulkIssueRow struct {
	Denomination float64    `json:"denomination"`
	RecipientID  *uuid.UUID `json:"recipient_id,omitempty"`
}

type BulkIssueResult struct {
	Issued []models.Certificate `json:"issued"`
	Failed []BulkIssueFailure   `json:"failed"`
}

type BulkIssueFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func NewInventoryService(db *gorm.DB, queueService *QueueService, notificationService *NotificationService) *InventoryService {
	return &InventoryService{
		db:                  db,
		locks:               utils.NewKeyedMutex(),
		notificationService: notificationService,
		queueService:        queueService,
	}
}

// RecordPurchase appends a pending ledger entry for a merchant buying
// certificate stock. Trial purchases skip payment and are confirmed
// immediately.
func (s *InventoryService) RecordPurchase(merchantID uuid.UUID, req *RecordPurchaseRequest) (*models.Purchase, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var merchant models.User
	if err := s.db.First(&merchant, merchantID).Error; err != nil {
		return nil, fmt.Errorf("merchant not found: %w", err)
	}
	if merchant.UserType != models.UserTypeMerchant && merchant.UserType != models.UserTypeAdmin {
		return nil, errors.New("only merchants can purchase certificate inventory")
	}
	if merchant.Status != models.UserStatusActive {
		return nil, errors.New("merchant account is not active")
	}

	purchase := &models.Purchase{
		MerchantID:    merchantID,
		Denomination:  req.Denomination,
		Quantity:      req.Quantity,
		TotalCost:     req.TotalCost,
		PaymentMethod: req.PaymentMethod,
		IsTrial:       req.IsTrial,
		PaymentStatus: models.PaymentStatusPending,
	}

	if req.IsTrial {
		now := time.Now()
		purchase.PaymentStatus = models.PaymentStatusConfirmed
		purchase.ConfirmedAt = &now
		purchase.TotalCost = 0
	}

	if err := s.db.Create(purchase).Error; err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	return purchase, nil
}

// ConfirmPurchase records the externally supplied PurchaseConfirmed
// fact. Idempotent: confirming an already confirmed purchase is a
// no-op.
func (s *InventoryService) ConfirmPurchase(purchaseID uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := s.db.First(&purchase, purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("purchase not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if purchase.PaymentStatus == models.PaymentStatusConfirmed {
		return &purchase, nil
	}
	if purchase.PaymentStatus == models.PaymentStatusFailed {
		return nil, errors.New("cannot confirm a failed purchase")
	}

	now := time.Now()
	purchase.PaymentStatus = models.PaymentStatusConfirmed
	purchase.ConfirmedAt = &now

	if err := s.db.Save(&purchase).Error; err != nil {
		return nil, fmt.Errorf("failed to confirm purchase: %w", err)
	}

	go s.notificationService.NotifyPurchaseConfirmed(&purchase)

	return &purchase, nil
}

// RejectPurchase records the externally supplied PurchaseRejected fact.
func (s *InventoryService) RejectPurchase(purchaseID uuid.UUID, reason string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := s.db.First(&purchase, purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("purchase not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if purchase.PaymentStatus == models.PaymentStatusConfirmed {
		return nil, errors.New("cannot reject a confirmed purchase")
	}
	if purchase.PaymentStatus == models.PaymentStatusFailed {
		return &purchase, nil
	}

	purchase.PaymentStatus = models.PaymentStatusFailed
	purchase.FailureReason = reason

	if err := s.db.Save(&purchase).Error; err != nil {
		return nil, fmt.Errorf("failed to reject purchase: %w", err)
	}

	return &purchase, nil
}

// AvailableCount recomputes the derived stock for one merchant and
// denomination: confirmed purchased quantity minus certificates issued.
func (s *InventoryService) AvailableCount(merchantID uuid.UUID, denomination float64) (int, error) {
	return s.availableCount(s.db, merchantID, denomination)
}

func (s *InventoryService) availableCount(tx *gorm.DB, merchantID uuid.UUID, denomination float64) (int, error) {
	var confirmed int64
	err := tx.Model(&models.Purchase{}).
		Where("merchant_id = ? AND denomination = ? AND payment_status = ?",
			merchantID, denomination, models.PaymentStatusConfirmed).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&confirmed).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum confirmed purchases: %w", err)
	}

	// Issuance is final: completed and expired certificates still count
	// against stock.
	var issued int64
	err = tx.Model(&models.Certificate{}).
		Where("merchant_id = ? AND denomination = ?", merchantID, denomination).
		Count(&issued).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count issued certificates: %w", err)
	}

	return int(confirmed - issued), nil
}

// AvailableByDenomination returns the derived stock for every sellable
// denomination, used as a fast-fail hint by bulk flows.
func (s *InventoryService) AvailableByDenomination(merchantID uuid.UUID) (map[float64]int, error) {
	counts := make(map[float64]int, len(models.AllowedDenominations))
	for denomination := range models.AllowedDenominations {
		available, err := s.availableCount(s.db, merchantID, denomination)
		if err != nil {
			return nil, err
		}
		counts[denomination] = available
	}
	return counts, nil
}

// ReserveForIssuance atomically checks availability and mints exactly
// one pending certificate. The availability check and the insert share
// one transaction serialized per merchant/denomination, so two
// concurrent reservations cannot both take the last unit.
func (s *InventoryService) ReserveForIssuance(merchantID uuid.UUID, req *IssueRequest) (*models.Certificate, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	termMonths, ok := models.TermMonths(req.Denomination)
	if !ok {
		return nil, errors.New("invalid denomination")
	}

	// Fast path for a retry arriving after the first call committed.
	if req.IdempotencyKey != "" {
		var existing models.Certificate
		if err := s.db.Where("idempotency_key = ?", req.IdempotencyKey).First(&existing).Error; err == nil {
			return &existing, nil
		}
	}

	if req.RecipientID != nil {
		var recipient models.User
		if err := s.db.First(&recipient, *req.RecipientID).Error; err != nil {
			return nil, fmt.Errorf("recipient not found: %w", err)
		}
		if recipient.UserType != models.UserTypeMember {
			return nil, errors.New("recipient is not a member")
		}
	}

	lockKey := fmt.Sprintf("issue:%s:%.2f", merchantID, req.Denomination)
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	var certificate *models.Certificate
	var reused bool
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		// A concurrent retry with the same key may have minted the
		// certificate while this call waited on the lock.
		if req.IdempotencyKey != "" {
			var existing models.Certificate
			if err := tx.Where("idempotency_key = ?", req.IdempotencyKey).First(&existing).Error; err == nil {
				certificate = &existing
				reused = true
				return nil
			}
		}

		available, err := s.availableCount(tx, merchantID, req.Denomination)
		if err != nil {
			return err
		}
		if available <= 0 {
			return ErrInsufficientInventory
		}

		certificate = &models.Certificate{
			MerchantID:      merchantID,
			Denomination:    req.Denomination,
			MonthsRemaining: termMonths,
			Status:          models.CertificateStatusPending,
			IssuedAt:        time.Now(),
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			certificate.IdempotencyKey = &key
		}

		if err := tx.Create(certificate).Error; err != nil {
			return fmt.Errorf("failed to create certificate: %w", err)
		}

		// An issuance aimed at a member lands on that member's pending
		// activation queue.
		if req.RecipientID != nil {
			if err := s.queueService.Enqueue(tx, *req.RecipientID, certificate.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	if reused {
		return certificate, nil
	}

	go s.notificationService.NotifyCertificateIssued(certificate, req.RecipientID)

	return certificate, nil
}

// BulkIssue pushes every row through the atomic reservation. The
// availability snapshot is consulted only to fail fast with a friendly
// row count; it is never the authority.
func (s *InventoryService) BulkIssue(merchantID uuid.UUID, rows []BulkIssueRow) (*BulkIssueResult, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to issue")
	}

	hint, err := s.AvailableByDenomination(merchantID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[float64]int)
	for _, row := range rows {
		wanted[row.Denomination]++
	}
	for denomination, count := range wanted {
		if hint[denomination] < count {
			return nil, fmt.Errorf("%w: batch needs %d of $%.0f, %d available",
				ErrInsufficientInventory, count, denomination, hint[denomination])
		}
	}

	result := &BulkIssueResult{}
	for i, row := range rows {
		certificate, err := s.ReserveForIssuance(merchantID, &IssueRequest{
			Denomination: row.Denomination,
			RecipientID:  row.RecipientID,
		})
		if err != nil {
			result.Failed = append(result.Failed, BulkIssueFailure{Row: i, Reason: err.Error()})
			continue
		}
		result.Issued = append(result.Issued, *certificate)
	}

	return result, nil
}

// GetPurchases lists a merchant's ledger entries.
func (s *InventoryService) GetPurchases(merchantID uuid.UUID, params utils.PaginationParams) ([]models.Purchase, int64, error) {
	query := s.db.Model(&models.Purchase{}).Where("merchant_id = ?", merchantID)

	if params.Status != "" {
		query = query.Where("payment_status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count purchases: %w", err)
	}

	allowedSortFields := []string{"created_at", "confirmed_at", "quantity", "denomination"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var purchases []models.Purchase
	if err := query.Find(&purchases).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchases: %w", err)
	}

	return purchases, total, nil
}
