// internal/services/qualification_service.go
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

// QualificationService aggregates approved receipt totals per
// certificate per calendar month and advances periods toward
// qualified. A qualified period is the only event that decrements a
// certificate's remaining months.
type QualificationService struct {
	db                  *gorm.DB
	locks               *utils.KeyedMutex
	certificateService  *CertificateService
	notificationService *NotificationService
}

// ApprovalOutcome reports what one receipt approval did to the period
// and, transitively, to the certificate.
type ApprovalOutcome struct {
	Period               *models.QualificationPeriod
	PeriodQualified      bool
	Certificate          *models.Certificate
	CertificateCompleted bool
}

type SurveyRequest struct {
	Answers map[string]interface{} `json:"answers" validate:"required"`
}

func NewQualificationService(db *gorm.DB, certificateService *CertificateService, notificationService *NotificationService) *QualificationService {
	return &QualificationService{
		db:                  db,
		locks:               utils.NewKeyedMutex(),
		certificateService:  certificateService,
		notificationService: notificationService,
	}
}

// PeriodLockKey serializes all mutations of one (certificate, month,
// year) period. Callers that mutate a period inside their own
// transaction must hold this lock around it.
func (s *QualificationService) PeriodLockKey(certificateID uuid.UUID, month, year int) string {
	return fmt.Sprintf("period:%s:%d-%02d", certificateID, year, month)
}

func (s *QualificationService) LockPeriod(key string)   { s.locks.Lock(key) }
func (s *QualificationService) UnlockPeriod(key string) { s.locks.Unlock(key) }

// RecordApproval folds an approved receipt into its qualification
// period, creating the period lazily on first touch. Runs inside the
// caller's transaction; the caller holds the period lock. The approved
// total moves via an atomic SQL increment, never read-modify-write.
func (s *QualificationService) RecordApproval(tx *gorm.DB, receipt *models.Receipt, now time.Time) (*ApprovalOutcome, error) {
	period, err := s.findOrCreatePeriod(tx, receipt)
	if err != nil {
		return nil, err
	}

	if period.IsClosed() {
		logrus.WithFields(logrus.Fields{
			"period_id": period.ID,
			"status":    period.Status,
		}).Error("Invariant breach: approval recorded against closed period")
		return nil, ErrPeriodClosed
	}

	if err := tx.Model(&models.QualificationPeriod{}).
		Where("id = ?", period.ID).
		UpdateColumn("approved_total", gorm.Expr("approved_total + ?", receipt.Amount)).Error; err != nil {
		return nil, fmt.Errorf("failed to add approved amount: %w", err)
	}

	if err := tx.Model(receipt).Update("period_id", period.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to link receipt to period: %w", err)
	}

	// Approving a flagged or overridden receipt parks the period in
	// manual review; it cannot advance until an admin confirms.
	if receipt.Flagged() || receipt.MemberOverride {
		updates := map[string]interface{}{"review_flag": true}
		if period.Status == models.PeriodStatusInProgress ||
			period.Status == models.PeriodStatusReceiptsComplete {
			updates["status"] = models.PeriodStatusPendingReview
		}
		if err := tx.Model(&models.QualificationPeriod{}).
			Where("id = ?", period.ID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to flag period for review: %w", err)
		}
	}

	if err := tx.First(period, period.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload period: %w", err)
	}

	return s.evaluate(tx, period, now)
}

func (s *QualificationService) findOrCreatePeriod(tx *gorm.DB, receipt *models.Receipt) (*models.QualificationPeriod, error) {
	var period models.QualificationPeriod
	err := tx.Where("certificate_id = ? AND month = ? AND year = ?",
		receipt.CertificateID, receipt.SubmittedMonth, receipt.SubmittedYear).
		First(&period).Error
	if err == nil {
		return &period, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}

	period = models.QualificationPeriod{
		MemberID:      receipt.MemberID,
		CertificateID: receipt.CertificateID,
		Month:         receipt.SubmittedMonth,
		Year:          receipt.SubmittedYear,
		Status:        models.PeriodStatusInProgress,
	}
	if err := tx.Create(&period).Error; err != nil {
		return nil, fmt.Errorf("failed to create period: %w", err)
	}
	return &period, nil
}

// evaluate moves the period forward as far as its gates allow: target
// met and no unresolved review flag yields receipts_complete; survey
// satisfied on top of that yields qualified, which consumes one
// certificate month.
func (s *QualificationService) evaluate(tx *gorm.DB, period *models.QualificationPeriod, now time.Time) (*ApprovalOutcome, error) {
	outcome := &ApprovalOutcome{Period: period}

	if period.IsClosed() {
		return outcome, nil
	}
	if period.ReviewFlag || period.ApprovedTotal < models.MonthlyTarget {
		return outcome, nil
	}

	if !period.SurveySatisfied() {
		if period.Status != models.PeriodStatusReceiptsComplete {
			period.Status = models.PeriodStatusReceiptsComplete
			if err := tx.Model(period).
				Update("status", models.PeriodStatusReceiptsComplete).Error; err != nil {
				return nil, fmt.Errorf("failed to mark receipts complete: %w", err)
			}
		}
		return outcome, nil
	}

	period.Status = models.PeriodStatusQualified
	period.QualifiedAt = &now
	if err := tx.Model(period).Updates(map[string]interface{}{
		"status":       models.PeriodStatusQualified,
		"qualified_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to qualify period: %w", err)
	}
	outcome.PeriodQualified = true

	certificate, completed, err := s.certificateService.ApplyQualifiedMonth(tx, period.CertificateID, now)
	if err != nil {
		return nil, err
	}
	outcome.Certificate = certificate
	outcome.CertificateCompleted = completed

	return outcome, nil
}

// ResolveReview is the admin confirmation that clears a period's
// review flag, after which the period advances as far as its totals
// allow.
func (s *QualificationService) ResolveReview(periodID, adminID uuid.UUID, now time.Time) (*ApprovalOutcome, error) {
	var period models.QualificationPeriod
	if err := s.db.First(&period, periodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("qualification period not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	key := s.PeriodLockKey(period.CertificateID, period.Month, period.Year)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var outcome *ApprovalOutcome
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&period, periodID).Error; err != nil {
			return fmt.Errorf("failed to reload period: %w", err)
		}
		if period.IsClosed() {
			return ErrPeriodClosed
		}

		updates := map[string]interface{}{"review_flag": false}
		if period.Status == models.PeriodStatusPendingReview {
			updates["status"] = models.PeriodStatusInProgress
		}
		if err := tx.Model(&period).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to clear review flag: %w", err)
		}
		period.ReviewFlag = false
		if period.Status == models.PeriodStatusPendingReview {
			period.Status = models.PeriodStatusInProgress
		}

		var err error
		outcome, err = s.evaluate(tx, &period, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyOutcome(outcome)
	return outcome, nil
}

// CompleteSurvey records the member's answers for a period and
// re-evaluates the survey gate.
func (s *QualificationService) CompleteSurvey(periodID, memberID uuid.UUID, req *SurveyRequest, now time.Time) (*ApprovalOutcome, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var period models.QualificationPeriod
	if err := s.db.First(&period, periodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("qualification period not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if period.MemberID != memberID {
		return nil, errors.New("period does not belong to this member")
	}

	key := s.PeriodLockKey(period.CertificateID, period.Month, period.Year)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var outcome *ApprovalOutcome
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&period, periodID).Error; err != nil {
			return fmt.Errorf("failed to reload period: %w", err)
		}
		if period.Status == models.PeriodStatusForfeited {
			return ErrPeriodClosed
		}
		if period.SurveyCompletedAt != nil {
			// Duplicate submission tolerated; answers are not replaced.
			var err error
			outcome, err = s.evaluate(tx, &period, now)
			return err
		}

		if err := tx.Model(&period).Updates(map[string]interface{}{
			"survey_completed_at": now,
			"survey_answers":      models.JSONB(req.Answers),
		}).Error; err != nil {
			return fmt.Errorf("failed to record survey: %w", err)
		}
		period.SurveyCompletedAt = &now

		var err error
		outcome, err = s.evaluate(tx, &period, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyOutcome(outcome)
	return outcome, nil
}

// Forfeit closes a period that failed to qualify. A forfeited month
// never decrements the certificate; the member loses the rebate and
// the timeline extends.
func (s *QualificationService) Forfeit(periodID uuid.UUID, now time.Time) (*models.QualificationPeriod, error) {
	var period models.QualificationPeriod
	if err := s.db.First(&period, periodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("qualification period not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	key := s.PeriodLockKey(period.CertificateID, period.Month, period.Year)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&period, periodID).Error; err != nil {
			return fmt.Errorf("failed to reload period: %w", err)
		}
		if period.IsClosed() {
			logrus.WithFields(logrus.Fields{
				"period_id": period.ID,
				"status":    period.Status,
			}).Error("Invariant breach: forfeit attempted on closed period")
			return ErrPeriodClosed
		}

		period.Status = models.PeriodStatusForfeited
		period.ForfeitedAt = &now
		return tx.Model(&period).Updates(map[string]interface{}{
			"status":       models.PeriodStatusForfeited,
			"forfeited_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	go s.notificationService.NotifyPeriodForfeited(&period)
	return &period, nil
}

// ForfeitExpiredPeriods is the scheduled month-close sweep: every
// period from a calendar month strictly before the current one (UTC)
// that neither qualified nor already forfeited is forfeited. Periods
// parked in pending_review are left for the reviewing admin. Returns
// the number of periods closed.
func (s *QualificationService) ForfeitExpiredPeriods(now time.Time) (int, error) {
	utc := now.UTC()
	currentYear, currentMonth := utc.Year(), int(utc.Month())

	var stale []models.QualificationPeriod
	err := s.db.Where("status IN ?", []models.PeriodStatus{
		models.PeriodStatusInProgress,
		models.PeriodStatusReceiptsComplete,
	}).Where("(year < ?) OR (year = ? AND month < ?)",
		currentYear, currentYear, currentMonth).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find expired periods: %w", err)
	}

	forfeited := 0
	for i := range stale {
		if _, err := s.Forfeit(stale[i].ID, now); err != nil {
			if errors.Is(err, ErrPeriodClosed) {
				continue
			}
			return forfeited, err
		}
		forfeited++
	}

	if forfeited > 0 {
		logrus.WithField("count", forfeited).Info("Forfeited expired qualification periods")
	}
	return forfeited, nil
}

func (s *QualificationService) GetPeriod(periodID uuid.UUID) (*models.QualificationPeriod, error) {
	var period models.QualificationPeriod
	if err := s.db.Preload("Certificate").Preload("Member").Preload("Receipts").
		First(&period, periodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("qualification period not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &period, nil
}

func (s *QualificationService) GetMemberPeriods(memberID uuid.UUID, params utils.PaginationParams) ([]models.QualificationPeriod, int64, error) {
	query := s.db.Model(&models.QualificationPeriod{}).Where("member_id = ?", memberID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count periods: %w", err)
	}

	allowedSortFields := []string{"created_at", "year", "month", "status", "approved_total"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var periods []models.QualificationPeriod
	if err := query.Preload("Certificate").Find(&periods).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch periods: %w", err)
	}

	return periods, total, nil
}

// GetPendingReview lists periods awaiting admin confirmation.
func (s *QualificationService) GetPendingReview(params utils.PaginationParams) ([]models.QualificationPeriod, int64, error) {
	query := s.db.Model(&models.QualificationPeriod{}).
		Where("status = ?", models.PeriodStatusPendingReview)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count periods: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "year", "month"})
	query = utils.ApplyPagination(query, params)

	var periods []models.QualificationPeriod
	if err := query.Preload("Member").Preload("Certificate").Find(&periods).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch periods: %w", err)
	}

	return periods, total, nil
}

func (s *QualificationService) notifyOutcome(outcome *ApprovalOutcome) {
	if outcome == nil {
		return
	}
	if outcome.PeriodQualified {
		go s.notificationService.NotifyQualificationAchieved(outcome.Period)
	}
	if outcome.CertificateCompleted {
		go s.notificationService.NotifyCertificateCompleted(outcome.Certificate)
	}
}
