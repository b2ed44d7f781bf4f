// internal/handlers/purchase.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshrebate/grc-backend/internal/i18n"
	"github.com/freshrebate/grc-backend/internal/services"
	"github.com/freshrebate/grc-backend/internal/utils"
)

// PurchaseHandler covers the merchant surface: buying certificate
// inventory, checking availability, and issuing certificates.
type PurchaseHandler struct {
	inventoryService   *services.InventoryService
	paymentService     *services.PaymentService
	certificateService *services.CertificateService
}

func NewPurchaseHandler(inventoryService *services.InventoryService, paymentService *services.PaymentService, certificateService *services.CertificateService) *PurchaseHandler {
	return &PurchaseHandler{
		inventoryService:   inventoryService,
		paymentService:     paymentService,
		certificateService: certificateService,
	}
}

// POST /merchant/purchases
func (h *PurchaseHandler) RecordPurchase(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	merchantID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.RecordPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	purchase, err := h.inventoryService.RecordPurchase(merchantID, &req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyInventoryPurchased),
		"purchase": purchase,
	})
}

// POST /merchant/purchases/:id/payment-intent
func (h *PurchaseHandler) CreatePaymentIntent(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	merchantID, ok := currentUserID(c)
	if !ok {
		return
	}

	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "purchase id"), nil)
		return
	}

	intent, err := h.paymentService.CreatePurchaseIntent(merchantID, purchaseID)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"payment_intent": intent})
}

// POST /merchant/purchases/confirm-payment
func (h *PurchaseHandler) ConfirmPayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	purchase, err := h.paymentService.ConfirmPayment(&req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyInventoryConfirmed),
		"purchase": purchase,
	})
}

// GET /merchant/purchases
func (h *PurchaseHandler) GetPurchases(c *gin.Context) {
	merchantID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	purchases, total, err := h.inventoryService.GetPurchases(merchantID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(purchases, total, params))
}

// GET /merchant/inventory
func (h *PurchaseHandler) GetInventory(c *gin.Context) {
	merchantID, ok := currentUserID(c)
	if !ok {
		return
	}

	available, err := h.inventoryService.AvailableByDenomination(merchantID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"available": available})
}

// POST /merchant/certificates/issue
func (h *PurchaseHandler) IssueCertificate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	merchantID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	certificate, err := h.inventoryService.ReserveForIssuance(merchantID, &req)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientInventory) {
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyInventoryInsufficient))
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyCertificateIssued),
		"certificate": certificate,
	})
}

// POST /merchant/certificates/bulk-issue
func (h *PurchaseHandler) BulkIssue(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	merchantID, ok := currentUserID(c)
	if !ok {
		return
	}

	var rows []services.BulkIssueRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	result, err := h.inventoryService.BulkIssue(merchantID, rows)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientInventory) {
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyInventoryInsufficient))
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"result": result})
}

// GET /merchant/certificates
func (h *PurchaseHandler) GetIssuedCertificates(c *gin.Context) {
	merchantID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	certificates, total, err := h.certificateService.GetMerchantCertificates(merchantID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(certificates, total, params))
}
