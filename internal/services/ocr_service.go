// internal/services/ocr_service.go
package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/textract"
	"github.com/sirupsen/logrus"

	"github.com/freshrebate/grc-backend/internal/config"
	"github.com/freshrebate/grc-backend/internal/models"
)

// OCRService extracts the purchase total, receipt date, and store name
// from receipt images via Textract expense analysis. Extraction is
// best effort; any field Textract cannot read comes back nil and
// routes the receipt to manual review.
type OCRService struct {
	textractClient *textract.Textract
	config         *config.Config
}

var ErrOCRUnavailable = errors.New("OCR is not configured")

func NewOCRService(config *config.Config) (*OCRService, error) {
	if config.AWS.AccessKeyID == "" {
		// Extraction disabled; receipts go straight to manual review.
		return &OCRService{config: config}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &OCRService{
		textractClient: textract.New(sess),
		config:         config,
	}, nil
}

// ExtractReceipt runs expense analysis over the image bytes and maps
// the summary fields into an OCRResult.
func (s *OCRService) ExtractReceipt(imageData []byte) (*OCRResult, error) {
	if s.textractClient == nil {
		return nil, ErrOCRUnavailable
	}

	output, err := s.textractClient.AnalyzeExpense(&textract.AnalyzeExpenseInput{
		Document: &textract.Document{Bytes: imageData},
	})
	if err != nil {
		return nil, fmt.Errorf("expense analysis failed: %w", err)
	}

	result := &OCRResult{Raw: models.JSONB{}}
	for _, doc := range output.ExpenseDocuments {
		for _, field := range doc.SummaryFields {
			if field.Type == nil || field.Type.Text == nil ||
				field.ValueDetection == nil || field.ValueDetection.Text == nil {
				continue
			}
			fieldType := aws.StringValue(field.Type.Text)
			value := strings.TrimSpace(aws.StringValue(field.ValueDetection.Text))
			if value == "" {
				continue
			}
			result.Raw[strings.ToLower(fieldType)] = value

			switch fieldType {
			case "TOTAL", "AMOUNT_PAID":
				if result.Amount == nil {
					if amount, ok := parseAmount(value); ok {
						result.Amount = &amount
					}
				}
			case "INVOICE_RECEIPT_DATE":
				if result.ReceiptDate == nil {
					if date, ok := parseReceiptDate(value); ok {
						result.ReceiptDate = &date
					}
				}
			case "VENDOR_NAME", "NAME":
				if result.StoreName == nil {
					name := value
					result.StoreName = &name
				}
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"has_amount": result.Amount != nil,
		"has_date":   result.ReceiptDate != nil,
		"has_store":  result.StoreName != nil,
	}).Debug("Receipt OCR extraction finished")

	return result, nil
}

func parseAmount(value string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.':
			return r
		case r == ',':
			return -1
		default:
			return -1
		}
	}, value)
	if cleaned == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

// Receipt printers are inconsistent about date formats; try the
// common North American layouts.
var receiptDateLayouts = []string{
	"01/02/2006",
	"01/02/06",
	"1/2/2006",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-01-2006",
}

func parseReceiptDate(value string) (time.Time, bool) {
	for _, layout := range receiptDateLayouts {
		if date, err := time.Parse(layout, value); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}
