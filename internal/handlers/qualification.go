// internal/handlers/qualification.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshrebate/grc-backend/internal/i18n"
	"github.com/freshrebate/grc-backend/internal/services"
	"github.com/freshrebate/grc-backend/internal/utils"
)

type QualificationHandler struct {
	qualificationService *services.QualificationService
	fulfillmentService   *services.FulfillmentService
}

func NewQualificationHandler(qualificationService *services.QualificationService, fulfillmentService *services.FulfillmentService) *QualificationHandler {
	return &QualificationHandler{
		qualificationService: qualificationService,
		fulfillmentService:   fulfillmentService,
	}
}

// GET /periods
func (h *QualificationHandler) GetMyPeriods(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	periods, total, err := h.qualificationService.GetMemberPeriods(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(periods, total, params))
}

// GET /periods/:id
func (h *QualificationHandler) GetPeriod(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "period id"), nil)
		return
	}

	period, err := h.qualificationService.GetPeriod(periodID)
	if err != nil {
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeyPeriodNotFound))
		return
	}

	userType, _ := utils.GetUserTypeFromContext(c)
	if userType != "admin" {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		if period.MemberID != userID {
			utils.ForbiddenResponse(c, "")
			return
		}
	}

	utils.SuccessResponse(c, gin.H{"period": period})
}

// POST /periods/:id/survey
func (h *QualificationHandler) CompleteSurvey(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "period id"), nil)
		return
	}

	var req services.SurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	outcome, err := h.qualificationService.CompleteSurvey(periodID, userID, &req, time.Now())
	if err != nil {
		if services.IsStateViolation(err) {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPeriodSurveySaved),
		"outcome": outcome,
	})
}

// GET /admin/periods/pending-review
func (h *QualificationHandler) GetPendingReview(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	periods, total, err := h.qualificationService.GetPendingReview(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(periods, total, params))
}

// POST /admin/periods/:id/resolve-review
func (h *QualificationHandler) ResolveReview(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "period id"), nil)
		return
	}

	outcome, err := h.qualificationService.ResolveReview(periodID, adminID, time.Now())
	if err != nil {
		if services.IsStateViolation(err) {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminActionSuccess),
		"outcome": outcome,
	})
}

// POST /admin/periods/:id/forfeit
func (h *QualificationHandler) ForfeitPeriod(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "period id"), nil)
		return
	}

	period, err := h.qualificationService.Forfeit(periodID, time.Now())
	if err != nil {
		if services.IsStateViolation(err) {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPeriodForfeited),
		"period":  period,
	})
}

// POST /admin/periods/forfeit-expired
func (h *QualificationHandler) ForfeitExpired(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	count, err := h.qualificationService.ForfeitExpiredPeriods(time.Now())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyAdminActionSuccess),
		"forfeited": count,
	})
}

// GET /admin/fulfillments
func (h *QualificationHandler) GetPendingFulfillments(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	periods, total, err := h.fulfillmentService.GetPendingFulfillments(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(periods, total, params))
}

// GET /admin/fulfillments/stats
func (h *QualificationHandler) GetFulfillmentStats(c *gin.Context) {
	stats, err := h.fulfillmentService.GetStats(time.Now())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"stats": stats})
}

// POST /admin/fulfillments/:id/mark-sent
func (h *QualificationHandler) MarkRewardSent(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "period id"), nil)
		return
	}

	var req services.MarkRewardSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	period, err := h.fulfillmentService.MarkRewardSent(periodID, adminID, &req, time.Now())
	if err != nil {
		if services.IsStateViolation(err) {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyRewardSent),
		"period":  period,
	})
}
