// internal/handlers/receipt.go
package handlers

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshrebate/grc-backend/internal/i18n"
	"github.com/freshrebate/grc-backend/internal/services"
	"github.com/freshrebate/grc-backend/internal/utils"
)

type ReceiptHandler struct {
	receiptService *services.ReceiptService
}

func NewReceiptHandler(receiptService *services.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

// POST /receipts
// Multipart form: image file plus certificate_id, declared_amount,
// member_override, replaces_receipt_id fields.
func (h *ReceiptHandler) SubmitReceipt(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	certificateID, err := uuid.Parse(c.PostForm("certificate_id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "certificate_id"), nil)
		return
	}

	req := services.SubmitReceiptRequest{CertificateID: certificateID}

	if v := c.PostForm("declared_amount"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil || amount < 0 {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "declared_amount"), nil)
			return
		}
		req.DeclaredAmount = amount
	}
	req.MemberOverride = c.PostForm("member_override") == "true"
	if v := c.PostForm("replaces_receipt_id"); v != "" {
		replacesID, err := uuid.Parse(v)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "replaces_receipt_id"), nil)
			return
		}
		req.ReplacesReceiptID = &replacesID
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "image"), nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed))
		return
	}
	req.ImageData = data
	req.Filename = header.Filename
	req.ContentType = header.Header.Get("Content-Type")

	result, err := h.receiptService.SubmitReceipt(userID, &req, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNeedsConfirmation):
			// The client re-prompts with the mismatch details; resubmit
			// with member_override=true to proceed.
			utils.ErrorResponse(c, 422, "NEEDS_CONFIRMATION",
				i18n.T(lang, i18n.KeyReceiptNeedsConfirmation), result.Validation)
		case errors.Is(err, services.ErrDuplicateReceipt):
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyReceiptDuplicate))
		case errors.Is(err, services.ErrReuploadWindowClosed):
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyReceiptReuploadClosed))
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":       i18n.T(lang, i18n.KeyReceiptSubmitted),
		"receipt":       result.Receipt,
		"validation":    result.Validation,
		"auto_approved": result.AutoApproved,
	})
}

// GET /receipts
func (h *ReceiptHandler) GetMyReceipts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	receipts, total, err := h.receiptService.GetMemberReceipts(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(receipts, total, params))
}

// GET /receipts/:id
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "receipt id"), nil)
		return
	}

	receipt, err := h.receiptService.GetReceipt(receiptID)
	if err != nil {
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeyReceiptNotFound))
		return
	}

	// Members can only see their own receipts.
	userType, _ := utils.GetUserTypeFromContext(c)
	if userType != "admin" {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		if receipt.MemberID != userID {
			utils.ForbiddenResponse(c, "")
			return
		}
	}

	utils.SuccessResponse(c, gin.H{"receipt": receipt})
}

// GET /admin/receipts/review-queue
func (h *ReceiptHandler) GetReviewQueue(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	receipts, total, err := h.receiptService.GetReviewQueue(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(receipts, total, params))
}

// POST /admin/receipts/:id/approve
func (h *ReceiptHandler) ApproveReceipt(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "receipt id"), nil)
		return
	}

	var req services.ReceiptDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	receipt, outcome, err := h.receiptService.ApproveReceipt(receiptID, adminID, &req, time.Now())
	if err != nil {
		if services.IsStateViolation(err) {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyReceiptApproved),
		"receipt": receipt,
		"outcome": outcome,
	})
}

// POST /admin/receipts/:id/reject
func (h *ReceiptHandler) RejectReceipt(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "receipt id"), nil)
		return
	}

	var req services.ReceiptDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	receipt, err := h.receiptService.RejectReceipt(receiptID, adminID, &req, time.Now())
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyReceiptRejected),
		"receipt": receipt,
	})
}
