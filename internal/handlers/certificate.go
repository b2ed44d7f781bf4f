// internal/handlers/certificate.go
package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshrebate/grc-backend/internal/i18n"
	"github.com/freshrebate/grc-backend/internal/services"
	"github.com/freshrebate/grc-backend/internal/utils"
)

type CertificateHandler struct {
	certificateService *services.CertificateService
	queueService       *services.QueueService
}

func NewCertificateHandler(certificateService *services.CertificateService, queueService *services.QueueService) *CertificateHandler {
	return &CertificateHandler{
		certificateService: certificateService,
		queueService:       queueService,
	}
}

// GET /certificates/:id
func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	certificateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "certificate id"), nil)
		return
	}

	certificate, err := h.certificateService.GetCertificate(certificateID)
	if err != nil {
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeyCertificateNotFound))
		return
	}

	utils.SuccessResponse(c, gin.H{"certificate": certificate})
}

// GET /certificates
func (h *CertificateHandler) GetMyCertificates(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	certificates, total, err := h.certificateService.GetMemberCertificates(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(certificates, total, params))
}

// POST /certificates/:id/register
func (h *CertificateHandler) Register(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	certificateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "certificate id"), nil)
		return
	}

	var req services.RegisterCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	certificate, err := h.certificateService.Register(userID, certificateID, &req, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrActiveCertificateExists):
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyCertificateTerminal))
		case services.IsStateViolation(err):
			utils.ConflictResponse(c, err.Error())
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyCertificateActivated),
		"certificate": certificate,
	})
}

// GET /certificates/queue
func (h *CertificateHandler) GetQueue(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	entries, err := h.queueService.List(userID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"queue": entries})
}

// PUT /certificates/queue
func (h *CertificateHandler) ReorderQueue(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	entries, err := h.queueService.Reorder(userID, &req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyCertificateQueueSaved),
		"queue":   entries,
	})
}

// currentUserID reads and parses the authenticated user id, writing
// the error response on failure.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}
