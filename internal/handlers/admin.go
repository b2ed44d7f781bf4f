// internal/handlers/admin.go
package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshrebate/grc-backend/internal/i18n"
	"github.com/freshrebate/grc-backend/internal/models"
	"github.com/freshrebate/grc-backend/internal/services"
	"github.com/freshrebate/grc-backend/internal/utils"
)

type AdminHandler struct {
	adminService       *services.AdminService
	certificateService *services.CertificateService
	paymentService     *services.PaymentService
}

func NewAdminHandler(adminService *services.AdminService, certificateService *services.CertificateService, paymentService *services.PaymentService) *AdminHandler {
	return &AdminHandler{
		adminService:       adminService,
		certificateService: certificateService,
		paymentService:     paymentService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats()
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminUserFilter{
		PaginationParams: params,
	}

	if userType := c.Query("user_type"); userType != "" {
		uType := models.UserType(userType)
		filter.UserType = &uType
	}

	if status := c.Query("status"); status != "" {
		uStatus := models.UserStatus(status)
		filter.Status = &uStatus
	}

	if createdAfter := c.Query("created_after"); createdAfter != "" {
		if t, err := time.Parse("2006-01-02", createdAfter); err == nil {
			filter.CreatedAfter = &t
		}
	}

	if createdBefore := c.Query("created_before"); createdBefore != "" {
		if t, err := time.Parse("2006-01-02", createdBefore); err == nil {
			filter.CreatedBefore = &t
		}
	}

	users, total, err := h.adminService.GetUsers(filter)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(users, total, params)
	utils.PaginatedResponse(c, result)
}

// PUT /admin/users/:id/status
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return
	}

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Status models.UserStatus `json:"status" validate:"required"`
		Reason string            `json:"reason,omitempty"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if req.Status != models.UserStatusActive && req.Status != models.UserStatusSuspended {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "status"), nil)
		return
	}

	if err := h.adminService.UpdateUserStatus(userID, req.Status, adminID, req.Reason); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminActionSuccess),
	})
}

// GET /admin/certificates
func (h *AdminHandler) GetCertificates(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminCertificateFilter{
		PaginationParams: params,
	}

	if merchantID := c.Query("merchant_id"); merchantID != "" {
		if id, err := uuid.Parse(merchantID); err == nil {
			filter.MerchantID = &id
		}
	}
	if memberID := c.Query("member_id"); memberID != "" {
		if id, err := uuid.Parse(memberID); err == nil {
			filter.MemberID = &id
		}
	}
	if status := c.Query("cert_status"); status != "" {
		certStatus := models.CertificateStatus(status)
		filter.CertStatus = &certStatus
	}

	certificates, total, err := h.adminService.GetCertificates(filter)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(certificates, total, params))
}

// POST /admin/certificates/expire-stale
// Month-close housekeeping: expires pending certificates past the
// retention window.
func (h *AdminHandler) ExpireStaleCertificates(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	count, err := h.certificateService.ExpireStalePending(time.Now())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminActionSuccess),
		"expired": count,
	})
}

// GET /admin/purchases
func (h *AdminHandler) GetPurchases(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminPurchaseFilter{
		PaginationParams: params,
	}

	if merchantID := c.Query("merchant_id"); merchantID != "" {
		if id, err := uuid.Parse(merchantID); err == nil {
			filter.MerchantID = &id
		}
	}
	if status := c.Query("payment_status"); status != "" {
		paymentStatus := models.PaymentStatus(status)
		filter.PaymentStatus = &paymentStatus
	}

	purchases, total, err := h.adminService.GetPurchases(filter)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(purchases, total, params))
}

// POST /admin/purchases/:id/refund
func (h *AdminHandler) RefundPurchase(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid purchase ID", nil)
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	purchase, err := h.paymentService.RefundPurchase(purchaseID, req.Reason, adminID)
	if err != nil {
		if services.IsConflict(err) {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyAdminActionSuccess),
		"purchase": purchase,
	})
}

// GET /admin/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.adminService.GetSettings()
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"settings": settings})
}

// PUT /admin/settings/:category/:key
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	category := c.Param("category")
	key := c.Param("key")

	var req struct {
		Value    interface{} `json:"value" validate:"required"`
		DataType string      `json:"data_type" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if err := h.adminService.UpdateSetting(category, key, req.Value, req.DataType, adminID); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminSettingsUpdated),
	})
}

// GET /admin/analytics?start=2026-01-01&end=2026-02-01&metrics=revenue,rewards_sent
func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	start, err := time.Parse("2006-01-02", c.DefaultQuery("start", time.Now().AddDate(0, -1, 0).Format("2006-01-02")))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "start"), nil)
		return
	}
	end, err := time.Parse("2006-01-02", c.DefaultQuery("end", time.Now().Format("2006-01-02")))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "end"), nil)
		return
	}

	metrics := strings.Split(c.DefaultQuery("metrics",
		"user_registrations,certificates_issued,receipts_submitted,months_qualified,rewards_sent,revenue"), ",")

	analytics, err := h.adminService.GetAnalytics(start, end, metrics)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"analytics": analytics})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	logs, total, err := h.adminService.GetAuditLogs(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}

// GET /admin/notifications
func (h *AdminHandler) GetNotifications(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	notifications, total, err := h.adminService.GetNotifications(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(notifications, total, params))
}

// PUT /admin/notifications/:id/read
func (h *AdminHandler) MarkNotificationRead(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid notification ID", nil)
		return
	}

	if err := h.adminService.MarkNotificationRead(notificationID); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminActionSuccess),
	})
}
