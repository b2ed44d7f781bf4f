// internal/services/receipt_validator_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/freshrebate/grc-backend/internal/models"
)

func validatorCertificate() *models.Certificate {
	return &models.Certificate{
		GroceryStore: "Trader Joe's",
		StoreAliases: []string{"TJ's Market"},
	}
}

func TestStoreNameMatching(t *testing.T) {
	cert := validatorCertificate()
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		extracted string
		mismatch  bool
	}{
		{"exact match", "Trader Joe's", false},
		{"case and punctuation ignored", "TRADER JOES", false},
		{"receipt prints extra suffix", "Trader Joe's #512 Oakland", false},
		{"registered name longer than printed", "Trader Joe", false},
		{"alias match", "TJs Market", false},
		{"different store", "Whole Foods", true},
		{"empty extraction", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := 50.0
			date := now
			result := ValidateOCR(&OCRResult{
				Amount:      &amount,
				StoreName:   &tt.extracted,
				ReceiptDate: &date,
			}, cert, now, time.UTC)

			assert.Equal(t, tt.mismatch, result.StoreMismatch)
		})
	}
}

func TestDateMismatchUsesCalendarMonth(t *testing.T) {
	cert := validatorCertificate()
	submitted := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	amount := 50.0
	store := "Trader Joe's"

	sameMonth := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	result := ValidateOCR(&OCRResult{Amount: &amount, StoreName: &store, ReceiptDate: &sameMonth}, cert, submitted, time.UTC)
	assert.False(t, result.DateMismatch)

	previousMonth := time.Date(2026, time.February, 28, 23, 59, 0, 0, time.UTC)
	result = ValidateOCR(&OCRResult{Amount: &amount, StoreName: &store, ReceiptDate: &previousMonth}, cert, submitted, time.UTC)
	assert.True(t, result.DateMismatch)

	previousYear := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	result = ValidateOCR(&OCRResult{Amount: &amount, StoreName: &store, ReceiptDate: &previousYear}, cert, submitted, time.UTC)
	assert.True(t, result.DateMismatch)
}

func TestDateComparisonRespectsMemberZone(t *testing.T) {
	cert := validatorCertificate()
	pacific, err := time.LoadLocation("America/Los_Angeles")
	assert.NoError(t, err)

	// 06:00 UTC on March 1 is still the evening of February 28 on the
	// US west coast, so for a Pacific member the receipt is last month.
	submitted := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	receiptDate := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)
	amount := 50.0
	store := "Trader Joe's"

	result := ValidateOCR(&OCRResult{Amount: &amount, StoreName: &store, ReceiptDate: &receiptDate}, cert, submitted, pacific)
	assert.True(t, result.DateMismatch)

	result = ValidateOCR(&OCRResult{Amount: &amount, StoreName: &store, ReceiptDate: &receiptDate}, cert, submitted, time.UTC)
	assert.False(t, result.DateMismatch)
}

func TestMissingFieldsRouteToManualReview(t *testing.T) {
	cert := validatorCertificate()
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	amount := 50.0
	store := "Trader Joe's"

	tests := []struct {
		name string
		ocr  *OCRResult
	}{
		{"nothing extracted", &OCRResult{}},
		{"missing amount", &OCRResult{StoreName: &store, ReceiptDate: &now}},
		{"missing store", &OCRResult{Amount: &amount, ReceiptDate: &now}},
		{"missing date", &OCRResult{Amount: &amount, StoreName: &store}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateOCR(tt.ocr, cert, now, time.UTC)
			assert.True(t, result.NeedsManualReview)
			// Missing fields are not treated as mismatches.
			assert.False(t, result.StoreMismatch && tt.ocr.StoreName == nil)
			assert.False(t, result.DateMismatch && tt.ocr.ReceiptDate == nil)
		})
	}
}

func TestFullExtractionNeedsNoReview(t *testing.T) {
	cert := validatorCertificate()
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	amount := 87.12
	store := "Trader Joe's"
	date := now

	result := ValidateOCR(&OCRResult{Amount: &amount, StoreName: &store, ReceiptDate: &date}, cert, now, time.UTC)

	assert.False(t, result.NeedsManualReview)
	assert.NotNil(t, result.Amount)
	assert.InDelta(t, 87.12, *result.Amount, 0.001)
	assert.Equal(t, "Trader Joe's", result.ExtractedStoreName)
}
