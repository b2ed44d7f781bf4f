// internal/services/admin_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/models"
	"github.com/freshrebate/grc-backend/internal/utils"
)

type AdminService struct {
	db                  *gorm.DB
	notificationService *NotificationService
}

type AdminDashboardStats struct {
	TotalUsers          int64   `json:"total_users"`
	ActiveUsers         int64   `json:"active_users"`
	NewUsersThisMonth   int64   `json:"new_users_this_month"`
	TotalRevenue        float64 `json:"total_revenue"`
	MonthlyRevenue      float64 `json:"monthly_revenue"`
	ActiveCertificates  int64   `json:"active_certificates"`
	PendingCertificates int64   `json:"pending_certificates"`
	PendingReceipts     int64   `json:"pending_receipts"`
	FlaggedReceipts     int64   `json:"flagged_receipts"`
	QualifiedThisMonth  int64   `json:"qualified_this_month"`
	PendingFulfillments int64   `json:"pending_fulfillments"`
	UserGrowth          float64 `json:"user_growth"`
	RevenueGrowth       float64 `json:"revenue_growth"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	UserType      *models.UserType   `json:"user_type,omitempty"`
	Status        *models.UserStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time         `json:"created_after,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
}

type AdminCertificateFilter struct {
	utils.PaginationParams
	MerchantID    *uuid.UUID                `json:"merchant_id,omitempty"`
	MemberID      *uuid.UUID                `json:"member_id,omitempty"`
	Denomination  *float64                  `json:"denomination,omitempty"`
	CertStatus    *models.CertificateStatus `json:"cert_status,omitempty"`
	CreatedAfter  *time.Time                `json:"created_after,omitempty"`
	CreatedBefore *time.Time                `json:"created_before,omitempty"`
}

type AdminPurchaseFilter struct {
	utils.PaginationParams
	MerchantID    *uuid.UUID            `json:"merchant_id,omitempty"`
	PaymentStatus *models.PaymentStatus `json:"payment_status,omitempty"`
	Denomination  *float64              `json:"denomination,omitempty"`
	CreatedAfter  *time.Time            `json:"created_after,omitempty"`
	CreatedBefore *time.Time            `json:"created_before,omitempty"`
}

func NewAdminService(db *gorm.DB, notificationService *NotificationService) *AdminService {
	return &AdminService{
		db:                  db,
		notificationService: notificationService,
	}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats() (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	// User statistics
	s.db.Model(&models.User{}).Count(&stats.TotalUsers)
	s.db.Model(&models.User{}).Where("status = ?", models.UserStatusActive).Count(&stats.ActiveUsers)
	s.db.Model(&models.User{}).Where("created_at >= ?", monthStart).Count(&stats.NewUsersThisMonth)

	// Revenue statistics from confirmed certificate purchases
	s.db.Model(&models.Purchase{}).
		Where("payment_status = ?", models.PaymentStatusConfirmed).
		Select("COALESCE(SUM(total_cost), 0)").Scan(&stats.TotalRevenue)

	s.db.Model(&models.Purchase{}).
		Where("payment_status = ? AND created_at >= ?", models.PaymentStatusConfirmed, monthStart).
		Select("COALESCE(SUM(total_cost), 0)").Scan(&stats.MonthlyRevenue)

	// Certificate statistics
	s.db.Model(&models.Certificate{}).
		Where("status = ?", models.CertificateStatusActive).Count(&stats.ActiveCertificates)
	s.db.Model(&models.Certificate{}).
		Where("status = ?", models.CertificateStatusPending).Count(&stats.PendingCertificates)

	// Receipt review load
	s.db.Model(&models.Receipt{}).
		Where("status = ?", models.ReceiptStatusPending).Count(&stats.PendingReceipts)
	s.db.Model(&models.Receipt{}).
		Where("status = ? AND (store_mismatch OR date_mismatch OR member_override)",
			models.ReceiptStatusPending).
		Count(&stats.FlaggedReceipts)

	// Qualification and fulfillment
	s.db.Model(&models.QualificationPeriod{}).
		Where("status = ? AND qualified_at >= ?", models.PeriodStatusQualified, monthStart).
		Count(&stats.QualifiedThisMonth)
	s.db.Model(&models.QualificationPeriod{}).
		Where("status = ? AND reward_sent_at IS NULL", models.PeriodStatusQualified).
		Count(&stats.PendingFulfillments)

	// Growth calculations
	var lastMonthUsers int64
	s.db.Model(&models.User{}).
		Where("created_at >= ? AND created_at < ?", lastMonthStart, monthStart).
		Count(&lastMonthUsers)

	var lastMonthRevenueAmount float64
	s.db.Model(&models.Purchase{}).
		Where("payment_status = ? AND created_at >= ? AND created_at < ?",
			models.PaymentStatusConfirmed, lastMonthStart, monthStart).
		Select("COALESCE(SUM(total_cost), 0)").Scan(&lastMonthRevenueAmount)

	if lastMonthUsers > 0 {
		stats.UserGrowth = float64(stats.NewUsersThisMonth-lastMonthUsers) / float64(lastMonthUsers) * 100
	}

	if lastMonthRevenueAmount > 0 {
		stats.RevenueGrowth = (stats.MonthlyRevenue - lastMonthRevenueAmount) / lastMonthRevenueAmount * 100
	}

	return stats, nil
}

// User Management
func (s *AdminService) GetUsers(filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})

	if filter.UserType != nil {
		query = query.Where("user_type = ?", *filter.UserType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		searchTerm := "%" + filter.Search + "%"
		query = query.Where("username ILIKE ? OR email ILIKE ?", searchTerm, searchTerm)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "username", "email", "user_type", "status"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

func (s *AdminService) UpdateUserStatus(userID uuid.UUID, status models.UserStatus, adminID uuid.UUID, reason string) error {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("user not found")
		}
		return fmt.Errorf("database error: %w", err)
	}

	// Admins cannot suspend each other.
	if user.UserType == models.UserTypeAdmin && user.ID != adminID {
		return errors.New("cannot modify admin user status")
	}

	oldStatus := user.Status
	user.Status = status

	if err := s.db.Save(&user).Error; err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}

	go s.createAuditLog(adminID, "UPDATE_USER_STATUS", "user", &userID,
		map[string]interface{}{"status": oldStatus},
		map[string]interface{}{"status": status, "reason": reason})

	go s.sendUserStatusNotification(&user, oldStatus, reason)

	return nil
}

// Certificate Management
func (s *AdminService) GetCertificates(filter AdminCertificateFilter) ([]models.Certificate, int64, error) {
	query := s.db.Model(&models.Certificate{}).Preload("Merchant").Preload("Member")

	if filter.MerchantID != nil {
		query = query.Where("merchant_id = ?", *filter.MerchantID)
	}
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.Denomination != nil {
		query = query.Where("denomination = ?", *filter.Denomination)
	}
	if filter.CertStatus != nil {
		query = query.Where("status = ?", *filter.CertStatus)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count certificates: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "denomination", "status", "issued_at", "registered_at"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var certificates []models.Certificate
	if err := query.Find(&certificates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch certificates: %w", err)
	}

	return certificates, total, nil
}

// Purchase Management
func (s *AdminService) GetPurchases(filter AdminPurchaseFilter) ([]models.Purchase, int64, error) {
	query := s.db.Model(&models.Purchase{}).Preload("Merchant")

	if filter.MerchantID != nil {
		query = query.Where("merchant_id = ?", *filter.MerchantID)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.Denomination != nil {
		query = query.Where("denomination = ?", *filter.Denomination)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count purchases: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "total_cost", "payment_status", "confirmed_at"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var purchases []models.Purchase
	if err := query.Find(&purchases).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchases: %w", err)
	}

	return purchases, total, nil
}

// Settings Management
func (s *AdminService) GetSettings() (map[string]models.AdminSettings, error) {
	var settings []models.AdminSettings
	if err := s.db.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	settingsMap := make(map[string]models.AdminSettings)
	for _, setting := range settings {
		key := fmt.Sprintf("%s.%s", setting.Category, setting.Key)
		settingsMap[key] = setting
	}

	return settingsMap, nil
}

func (s *AdminService) UpdateSetting(category, key string, value interface{}, dataType string, adminID uuid.UUID) error {
	var setting models.AdminSettings
	err := s.db.Where("category = ? AND key = ?", category, key).First(&setting).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.AdminSettings{
			Category:  category,
			Key:       key,
			Value:     models.JSONB{"value": value},
			DataType:  dataType,
			UpdatedBy: adminID,
		}
		if err := s.db.Create(&setting).Error; err != nil {
			return fmt.Errorf("failed to create setting: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	} else {
		oldValue := setting.Value
		setting.Value = models.JSONB{"value": value}
		setting.DataType = dataType
		setting.UpdatedBy = adminID

		if err := s.db.Save(&setting).Error; err != nil {
			return fmt.Errorf("failed to update setting: %w", err)
		}

		go s.createAuditLog(adminID, "UPDATE_SETTING", "admin_setting", &setting.ID,
			map[string]interface{}{"value": oldValue},
			map[string]interface{}{"value": setting.Value})
	}

	return nil
}

// Analytics and Reporting
func (s *AdminService) GetAnalytics(startDate, endDate time.Time, metrics []string) (map[string]interface{}, error) {
	analytics := make(map[string]interface{})

	for _, metric := range metrics {
		switch metric {
		case "user_registrations":
			var count int64
			s.db.Model(&models.User{}).
				Where("created_at BETWEEN ? AND ?", startDate, endDate).
				Count(&count)
			analytics["user_registrations"] = count

		case "certificates_issued":
			var count int64
			s.db.Model(&models.Certificate{}).
				Where("issued_at BETWEEN ? AND ?", startDate, endDate).
				Count(&count)
			analytics["certificates_issued"] = count

		case "certificates_registered":
			var count int64
			s.db.Model(&models.Certificate{}).
				Where("registered_at BETWEEN ? AND ?", startDate, endDate).
				Count(&count)
			analytics["certificates_registered"] = count

		case "receipts_submitted":
			var count int64
			s.db.Model(&models.Receipt{}).
				Where("created_at BETWEEN ? AND ?", startDate, endDate).
				Count(&count)
			analytics["receipts_submitted"] = count

		case "months_qualified":
			var count int64
			s.db.Model(&models.QualificationPeriod{}).
				Where("qualified_at BETWEEN ? AND ?", startDate, endDate).
				Count(&count)
			analytics["months_qualified"] = count

		case "rewards_sent":
			var count int64
			s.db.Model(&models.QualificationPeriod{}).
				Where("reward_sent_at BETWEEN ? AND ?", startDate, endDate).
				Count(&count)
			analytics["rewards_sent"] = count
			analytics["rewards_value"] = float64(count) * models.MonthlyRewardValue

		case "revenue":
			var revenue float64
			s.db.Model(&models.Purchase{}).
				Where("payment_status = ? AND created_at BETWEEN ? AND ?",
					models.PaymentStatusConfirmed, startDate, endDate).
				Select("COALESCE(SUM(total_cost), 0)").Scan(&revenue)
			analytics["revenue"] = revenue
		}
	}

	return analytics, nil
}

// Audit Logs
func (s *AdminService) GetAuditLogs(params utils.PaginationParams) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{}).Preload("User")

	if params.Search != "" {
		searchTerm := "%" + params.Search + "%"
		query = query.Where("action ILIKE ? OR resource_type ILIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "action", "resource_type"})
	query = utils.ApplyPagination(query, params)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	return logs, total, nil
}

// Notifications
func (s *AdminService) GetNotifications(params utils.PaginationParams) ([]models.AdminNotification, int64, error) {
	query := s.db.Model(&models.AdminNotification{})

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "priority", "type"})
	query = utils.ApplyPagination(query, params)

	var notifications []models.AdminNotification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

func (s *AdminService) MarkNotificationRead(notificationID uuid.UUID) error {
	now := time.Now()
	result := s.db.Model(&models.AdminNotification{}).
		Where("id = ?", notificationID).
		Updates(map[string]interface{}{"status": "read", "read_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("notification not found")
	}
	return nil
}

// Helper methods
func (s *AdminService) createAuditLog(userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, oldValues, newValues map[string]interface{}) {
	auditLog := &models.AuditLog{
		UserID:       &userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    models.JSONB(oldValues),
		NewValues:    models.JSONB(newValues),
	}

	s.db.Create(auditLog)
}

func (s *AdminService) sendUserStatusNotification(user *models.User, oldStatus models.UserStatus, reason string) {
	if s.notificationService != nil {
		s.notificationService.SendUserStatusChangeNotification(user, oldStatus, reason)
	}
}
