// internal/services/ocr_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$124.56", 124.56, true},
		{"124.56", 124.56, true},
		{"1,234.00", 1234.00, true},
		{"TOTAL 19.99", 19.99, true},
		{"0.00", 0, false},
		{"free", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestParseReceiptDate(t *testing.T) {
	want := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		in string
		ok bool
	}{
		{"03/05/2026", true},
		{"3/5/2026", true},
		{"2026-03-05", true},
		{"Mar 5, 2026", true},
		{"March 5, 2026", true},
		{"last tuesday", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseReceiptDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, want.Year(), got.Year())
				assert.Equal(t, want.Month(), got.Month())
				assert.Equal(t, want.Day(), got.Day())
			}
		})
	}
}

func TestExtractorDisabledWithoutCredentials(t *testing.T) {
	service, err := NewOCRService(newTestConfig())
	assert.NoError(t, err)

	_, err = service.ExtractReceipt([]byte{0x01})
	assert.ErrorIs(t, err, ErrOCRUnavailable)
}
