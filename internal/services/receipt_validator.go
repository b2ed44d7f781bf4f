// internal/services/receipt_validator.go
package services

import (
	"strings"
	"time"

	"github.com/freshrebate/grc-backend/internal/models"
)

// OCRResult is the contract consumed from the document OCR service. A
// nil field means the extractor could not read it; such receipts route
// to manual review instead of being auto-rejected.
type OCRResult struct {
	Amount      *float64     `json:"amount"`
	ReceiptDate *time.Time   `json:"receipt_date"`
	StoreName   *string      `json:"store_name"`
	Raw         models.JSONB `json:"raw,omitempty"`
}

// ValidationResult carries the validator's flags for one submission.
type ValidationResult struct {
	// Amount is the OCR-extracted total; nil when it could not be read
	// and the caller falls back to the member's declared amount.
	Amount             *float64   `json:"amount"`
	ReceiptDate        *time.Time `json:"receipt_date"`
	ExtractedStoreName string     `json:"extracted_store_name"`
	StoreMismatch      bool       `json:"store_mismatch"`
	DateMismatch       bool       `json:"date_mismatch"`
	// NeedsManualReview is set when OCR could not extract a field the
	// rules depend on.
	NeedsManualReview bool `json:"needs_manual_review"`
}

// ValidateOCR normalizes OCR output against the certificate's
// registered grocery store and the calendar month current at
// submission time in the member's zone. Pure function: no storage or
// network side effects.
func ValidateOCR(ocr *OCRResult, certificate *models.Certificate, submittedAt time.Time, loc *time.Location) *ValidationResult {
	result := &ValidationResult{}

	if ocr.Amount != nil {
		result.Amount = ocr.Amount
	} else {
		result.NeedsManualReview = true
	}

	if ocr.StoreName != nil {
		result.ExtractedStoreName = *ocr.StoreName
		result.StoreMismatch = !storeNameMatches(*ocr.StoreName, certificate.StoreNames())
	} else {
		result.NeedsManualReview = true
	}

	if ocr.ReceiptDate != nil {
		result.ReceiptDate = ocr.ReceiptDate
		local := submittedAt.In(loc)
		receiptLocal := ocr.ReceiptDate.In(loc)
		result.DateMismatch = receiptLocal.Year() != local.Year() ||
			receiptLocal.Month() != local.Month()
	} else {
		result.NeedsManualReview = true
	}

	return result
}

// storeNameMatches applies the loose matching rule: case and whitespace
// insensitive, substring in either direction, against the registered
// name and its aliases.
func storeNameMatches(extracted string, registered []string) bool {
	normalizedExtracted := normalizeStoreName(extracted)
	if normalizedExtracted == "" {
		return false
	}

	for _, name := range registered {
		normalized := normalizeStoreName(name)
		if normalized == "" {
			continue
		}
		if strings.Contains(normalizedExtracted, normalized) ||
			strings.Contains(normalized, normalizedExtracted) {
			return true
		}
	}
	return false
}

func normalizeStoreName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
