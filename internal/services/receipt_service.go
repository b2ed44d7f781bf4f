// internal/services/receipt_service.go
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

// ReceiptExtractor is the OCR contract the submission pipeline
// consumes. *OCRService is the production implementation.
type ReceiptExtractor interface {
	ExtractReceipt(imageData []byte) (*OCRResult, error)
}

// ReceiptService runs the submission pipeline (upload, hash, OCR,
// validation) and the admin decision flow. Approval hands off to the
// qualification tracker inside the same transaction.
type ReceiptService struct {
	db                   *gorm.DB
	storageService       *StorageService
	ocrService           ReceiptExtractor
	qualificationService *QualificationService
	notificationService  *NotificationService
}

type SubmitReceiptRequest struct {
	CertificateID uuid.UUID `json:"certificate_id" validate:"required"`
	// Declared purchase total, used when OCR cannot read an amount.
	DeclaredAmount float64 `json:"declared_amount" validate:"gte=0"`
	// Member's confirmation that a flagged receipt should be submitted
	// anyway; routes the period to manual review.
	MemberOverride bool `json:"member_override"`
	// Rejected receipt this submission replaces, subject to the
	// reupload window.
	ReplacesReceiptID *uuid.UUID `json:"replaces_receipt_id"`

	ImageData   []byte `json:"-"`
	Filename    string `json:"-"`
	ContentType string `json:"-"`
}

type ReceiptDecisionRequest struct {
	// Corrected amount admitted toward the period, overriding OCR.
	AmountOverride *float64 `json:"amount_override" validate:"omitempty,gt=0"`
	Reason         string   `json:"reason"`
	Notes          string   `json:"notes"`
}

// SubmitResult carries the stored receipt, or just the validation
// verdict when the member still has to confirm a flagged submission.
type SubmitResult struct {
	Receipt      *models.Receipt   `json:"receipt,omitempty"`
	Validation   *ValidationResult `json:"validation"`
	AutoApproved bool              `json:"auto_approved"`
}

func NewReceiptService(db *gorm.DB, storageService *StorageService, ocrService ReceiptExtractor, qualificationService *QualificationService, notificationService *NotificationService) *ReceiptService {
	return &ReceiptService{
		db:                   db,
		storageService:       storageService,
		ocrService:           ocrService,
		qualificationService: qualificationService,
		notificationService:  notificationService,
	}
}

// SubmitReceipt ingests one receipt image for an active certificate.
// Duplicate images are rejected by hash before any upload. A flagged
// submission without MemberOverride stores nothing and returns
// ErrNeedsConfirmation alongside the validation verdict so the client
// can re-prompt.
func (s *ReceiptService) SubmitReceipt(memberID uuid.UUID, req *SubmitReceiptRequest, now time.Time) (*SubmitResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if len(req.ImageData) == 0 {
		return nil, errors.New("receipt image is required")
	}

	var member models.User
	if err := s.db.First(&member, memberID).Error; err != nil {
		return nil, errors.New("member not found")
	}
	if member.Status != models.UserStatusActive {
		return nil, errors.New("member account is not active")
	}

	var certificate models.Certificate
	if err := s.db.First(&certificate, req.CertificateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("certificate not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if certificate.MemberID == nil || *certificate.MemberID != memberID {
		return nil, errors.New("certificate does not belong to this member")
	}
	if certificate.IsTerminal() {
		return nil, ErrTerminalCertificate
	}
	if certificate.Status != models.CertificateStatusActive {
		return nil, ErrCertificateNotActive
	}

	imageHash := utils.HashBytes(req.ImageData)
	var dupes int64
	if err := s.db.Model(&models.Receipt{}).
		Where("member_id = ? AND image_hash = ?", memberID, imageHash).
		Where("status IN ?", []models.ReceiptStatus{models.ReceiptStatusPending, models.ReceiptStatusApproved}).
		Count(&dupes).Error; err != nil {
		return nil, fmt.Errorf("failed to check duplicates: %w", err)
	}
	if dupes > 0 {
		return nil, ErrDuplicateReceipt
	}

	if req.ReplacesReceiptID != nil {
		if err := s.checkReuploadWindow(memberID, *req.ReplacesReceiptID, now); err != nil {
			return nil, err
		}
	}

	ocr, err := s.ocrService.ExtractReceipt(req.ImageData)
	if err != nil {
		// Extraction failure is not a rejection; the receipt is stored
		// with empty OCR fields and routed to manual review.
		logrus.WithError(err).WithField("member_id", memberID).Warn("OCR extraction failed")
		ocr = &OCRResult{}
	}

	loc := member.Location()
	validation := ValidateOCR(ocr, &certificate, now, loc)

	if (validation.StoreMismatch || validation.DateMismatch) && !req.MemberOverride {
		return &SubmitResult{Validation: validation}, ErrNeedsConfirmation
	}

	imageURL, err := s.storageService.UploadReceiptImage(req.ImageData, req.Filename, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt image: %w", err)
	}

	amount := req.DeclaredAmount
	if validation.Amount != nil {
		amount = *validation.Amount
	}

	localNow := now.In(loc)
	receipt := models.Receipt{
		MemberID:       memberID,
		CertificateID:  certificate.ID,
		ImageURL:       imageURL,
		ImageHash:      imageHash,
		OCRAmount:      ocr.Amount,
		OCRDate:        ocr.ReceiptDate,
		OCRStoreName:   ocr.StoreName,
		OCRRaw:         ocr.Raw,
		Amount:         amount,
		StoreMismatch:  validation.StoreMismatch,
		DateMismatch:   validation.DateMismatch,
		MemberOverride: req.MemberOverride,
		SubmittedMonth: int(localNow.Month()),
		SubmittedYear:  localNow.Year(),
		Status:         models.ReceiptStatusPending,
	}

	if err := s.db.Create(&receipt).Error; err != nil {
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	result := &SubmitResult{Receipt: &receipt, Validation: validation}

	if s.shouldAutoApprove(&receipt, validation) {
		outcome, err := s.decideApprove(&receipt, nil, nil, "", now)
		if err != nil {
			// The receipt stays pending for an admin; submission itself
			// succeeded.
			logrus.WithError(err).WithField("receipt_id", receipt.ID).Warn("Auto-approval failed, receipt left pending")
			return result, nil
		}
		result.Receipt = &outcome.receipt
		result.AutoApproved = true
	}

	go s.notificationService.NotifyReceiptSubmitted(&receipt)
	return result, nil
}

func (s *ReceiptService) checkReuploadWindow(memberID, originalID uuid.UUID, now time.Time) error {
	var original models.Receipt
	if err := s.db.First(&original, originalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("original receipt not found")
		}
		return fmt.Errorf("database error: %w", err)
	}
	if original.MemberID != memberID {
		return errors.New("original receipt does not belong to this member")
	}
	if original.Status != models.ReceiptStatusRejected {
		return errors.New("only rejected receipts can be replaced")
	}
	if original.ReuploadAllowedUntil == nil || !now.Before(*original.ReuploadAllowedUntil) {
		return ErrReuploadWindowClosed
	}
	return nil
}

func (s *ReceiptService) shouldAutoApprove(receipt *models.Receipt, validation *ValidationResult) bool {
	if receipt.Flagged() || receipt.MemberOverride || validation.NeedsManualReview {
		return false
	}
	var setting models.AdminSettings
	if err := s.db.Where("key = ?", "auto_approve_clean").First(&setting).Error; err != nil {
		return false
	}
	enabled, ok := setting.Value["value"].(bool)
	return ok && enabled
}

type decisionOutcome struct {
	receipt models.Receipt
	outcome *ApprovalOutcome
}

// ApproveReceipt is the admin path: the decided amount joins the
// period total and the period advances inside one transaction.
func (s *ReceiptService) ApproveReceipt(receiptID, adminID uuid.UUID, req *ReceiptDecisionRequest, now time.Time) (*models.Receipt, *ApprovalOutcome, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}

	var receipt models.Receipt
	if err := s.db.First(&receipt, receiptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errors.New("receipt not found")
		}
		return nil, nil, fmt.Errorf("database error: %w", err)
	}

	out, err := s.decideApprove(&receipt, &adminID, req.AmountOverride, req.Notes, now)
	if err != nil {
		return nil, nil, err
	}

	go s.notificationService.NotifyReceiptDecided(&out.receipt)
	if out.outcome != nil {
		if out.outcome.PeriodQualified {
			go s.notificationService.NotifyQualificationAchieved(out.outcome.Period)
		}
		if out.outcome.CertificateCompleted {
			go s.notificationService.NotifyCertificateCompleted(out.outcome.Certificate)
		}
	}
	return &out.receipt, out.outcome, nil
}

func (s *ReceiptService) decideApprove(receipt *models.Receipt, adminID *uuid.UUID, amountOverride *float64, notes string, now time.Time) (*decisionOutcome, error) {
	key := s.qualificationService.PeriodLockKey(receipt.CertificateID, receipt.SubmittedMonth, receipt.SubmittedYear)
	s.qualificationService.LockPeriod(key)
	defer s.qualificationService.UnlockPeriod(key)

	out := &decisionOutcome{}
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&out.receipt, receipt.ID).Error; err != nil {
			return fmt.Errorf("failed to reload receipt: %w", err)
		}
		if out.receipt.Status != models.ReceiptStatusPending {
			return fmt.Errorf("receipt is already %s", out.receipt.Status)
		}

		if amountOverride != nil {
			out.receipt.Amount = *amountOverride
		}
		updates := map[string]interface{}{
			"status":     models.ReceiptStatusApproved,
			"amount":     out.receipt.Amount,
			"decided_at": now,
		}
		if adminID != nil {
			updates["decided_by"] = *adminID
		}
		if notes != "" {
			updates["notes"] = notes
		}
		if err := tx.Model(&out.receipt).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to approve receipt: %w", err)
		}
		out.receipt.Status = models.ReceiptStatusApproved
		out.receipt.DecidedAt = &now
		out.receipt.DecidedBy = adminID

		outcome, err := s.qualificationService.RecordApproval(tx, &out.receipt, now)
		if err != nil {
			return err
		}
		out.outcome = outcome
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RejectReceipt rejects a pending receipt and opens the reupload
// window. A rejected receipt's image hash is free to be resubmitted.
func (s *ReceiptService) RejectReceipt(receiptID, adminID uuid.UUID, req *ReceiptDecisionRequest, now time.Time) (*models.Receipt, error) {
	if req.Reason == "" {
		return nil, errors.New("rejection reason is required")
	}

	var receipt models.Receipt
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&receipt, receiptID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("receipt not found")
			}
			return fmt.Errorf("database error: %w", err)
		}
		if receipt.Status != models.ReceiptStatusPending {
			return fmt.Errorf("receipt is already %s", receipt.Status)
		}

		window := now.AddDate(0, 0, models.ReuploadWindowDays)
		receipt.Status = models.ReceiptStatusRejected
		receipt.RejectionReason = req.Reason
		receipt.ReuploadAllowedUntil = &window
		receipt.DecidedAt = &now
		receipt.DecidedBy = &adminID
		return tx.Model(&receipt).Updates(map[string]interface{}{
			"status":                 models.ReceiptStatusRejected,
			"rejection_reason":       req.Reason,
			"reupload_allowed_until": window,
			"decided_at":             now,
			"decided_by":             adminID,
			"notes":                  req.Notes,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	go s.notificationService.NotifyReceiptDecided(&receipt)
	return &receipt, nil
}

func (s *ReceiptService) GetReceipt(receiptID uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := s.db.Preload("Member").Preload("Certificate").Preload("Period").
		First(&receipt, receiptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("receipt not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &receipt, nil
}

func (s *ReceiptService) GetMemberReceipts(memberID uuid.UUID, params utils.PaginationParams) ([]models.Receipt, int64, error) {
	query := s.db.Model(&models.Receipt{}).Where("member_id = ?", memberID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "status", "submitted_year", "submitted_month"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var receipts []models.Receipt
	if err := query.Find(&receipts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch receipts: %w", err)
	}

	return receipts, total, nil
}

// GetReviewQueue lists pending receipts, mismatch-flagged ones first.
func (s *ReceiptService) GetReviewQueue(params utils.PaginationParams) ([]models.Receipt, int64, error) {
	query := s.db.Model(&models.Receipt{}).
		Where("status = ?", models.ReceiptStatusPending)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	query = query.Order("(store_mismatch OR date_mismatch OR member_override) DESC").
		Order("created_at ASC")
	query = utils.ApplyPagination(query, params)

	var receipts []models.Receipt
	if err := query.Preload("Member").Preload("Certificate").Find(&receipts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch receipts: %w", err)
	}

	return receipts, total, nil
}
