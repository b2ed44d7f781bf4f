// internal/services/payment_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/config"
	"github.com/freshrebate/grc-backend/internal/models"
)

// PaymentService charges merchants for certificate purchases through
// Stripe. A purchase enters inventory only after its payment intent
// succeeds.
type PaymentService struct {
	db               *gorm.DB
	config           *config.Config
	inventoryService *InventoryService
}

type PaymentIntentResponse struct {
	ClientSecret string `json:"client_secret"`
	PaymentID    string `json:"payment_id"`
	Status       string `json:"status"`
}

type ConfirmPaymentRequest struct {
	PaymentIntentID string    `json:"payment_intent_id" validate:"required"`
	PurchaseID      uuid.UUID `json:"purchase_id" validate:"required"`
}

func NewPaymentService(db *gorm.DB, config *config.Config, inventoryService *InventoryService) *PaymentService {
	// Initialize Stripe
	stripe.Key = config.Payment.StripeSecretKey

	return &PaymentService{
		db:               db,
		config:           config,
		inventoryService: inventoryService,
	}
}

// CreatePurchaseIntent opens a Stripe payment intent for a pending
// purchase. The purchase stays pending until ConfirmPayment sees the
// intent succeed.
func (s *PaymentService) CreatePurchaseIntent(merchantID uuid.UUID, purchaseID uuid.UUID) (*PaymentIntentResponse, error) {
	var purchase models.Purchase
	if err := s.db.First(&purchase, purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("purchase not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if purchase.MerchantID != merchantID {
		return nil, errors.New("purchase does not belong to this merchant")
	}
	if purchase.PaymentStatus != models.PaymentStatusPending {
		return nil, fmt.Errorf("purchase payment is already %s", purchase.PaymentStatus)
	}
	if purchase.IsTrial {
		return nil, errors.New("trial purchases are not charged")
	}

	amountInCents := int64(purchase.TotalCost * 100)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String("usd"),
	}
	params.AddMetadata("purchase_id", purchase.ID.String())
	params.AddMetadata("merchant_id", merchantID.String())
	params.AddMetadata("denomination", fmt.Sprintf("%.0f", purchase.Denomination))
	params.AddMetadata("quantity", fmt.Sprintf("%d", purchase.Quantity))

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	if err := s.db.Model(&purchase).Update("payment_reference", pi.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to record payment reference: %w", err)
	}

	return &PaymentIntentResponse{
		ClientSecret: pi.ClientSecret,
		PaymentID:    pi.ID,
		Status:       string(pi.Status),
	}, nil
}

// ConfirmPayment reconciles the purchase with its Stripe intent. A
// succeeded intent confirms the purchase into inventory; a dead intent
// rejects it. In-flight statuses leave the purchase pending.
func (s *PaymentService) ConfirmPayment(req *ConfirmPaymentRequest) (*models.Purchase, error) {
	pi, err := paymentintent.Get(req.PaymentIntentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	var purchase models.Purchase
	if err := s.db.First(&purchase, req.PurchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("purchase not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if purchase.PaymentReference != pi.ID {
		return nil, errors.New("payment intent does not match this purchase")
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return s.inventoryService.ConfirmPurchase(purchase.ID)

	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusProcessing:
		return &purchase, nil

	default:
		return s.inventoryService.RejectPurchase(purchase.ID, fmt.Sprintf("payment %s", pi.Status))
	}
}

// RefundPurchase reverses a confirmed purchase, allowed only while
// every certificate it funded is still unissued so the inventory count
// cannot go negative.
func (s *PaymentService) RefundPurchase(purchaseID uuid.UUID, reason string, adminID uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := s.db.First(&purchase, purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("purchase not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if purchase.PaymentStatus != models.PaymentStatusConfirmed {
		return nil, errors.New("only confirmed purchases can be refunded")
	}

	available, err := s.inventoryService.AvailableCount(purchase.MerchantID, purchase.Denomination)
	if err != nil {
		return nil, err
	}
	if available < purchase.Quantity {
		return nil, ErrInsufficientInventory
	}

	if purchase.PaymentReference != "" && !purchase.IsTrial {
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(purchase.PaymentReference),
			Amount:        stripe.Int64(int64(purchase.TotalCost * 100)),
			Reason:        stripe.String("requested_by_customer"),
		}
		if _, err := refund.New(params); err != nil {
			return nil, fmt.Errorf("failed to process refund: %w", err)
		}
	}

	if err := s.db.Model(&purchase).Updates(map[string]interface{}{
		"payment_status": models.PaymentStatusFailed,
		"failure_reason": fmt.Sprintf("refunded: %s", reason),
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update purchase: %w", err)
	}
	purchase.PaymentStatus = models.PaymentStatusFailed
	purchase.FailureReason = fmt.Sprintf("refunded: %s", reason)

	logrus.WithFields(logrus.Fields{
		"purchase_id": purchase.ID,
		"admin_id":    adminID,
		"amount":      purchase.TotalCost,
	}).Info("Purchase refunded")

	return &purchase, nil
}
