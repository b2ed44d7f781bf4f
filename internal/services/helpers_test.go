// internal/services/helpers_test.go
package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/freshrebate/grc-backend/internal/config"
	"github.com/freshrebate/grc-backend/internal/models"
	"github.com/freshrebate/grc-backend/internal/utils"
)

func testPagination() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 50, Sort: "created_at", Order: "desc"}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps the in-memory database alive and
	// serializes access the way the keyed locks expect.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Purchase{},
		&models.Certificate{},
		&models.PendingQueueEntry{},
		&models.QualificationPeriod{},
		&models.Receipt{},
		&models.AdminSettings{},
		&models.AuditLog{},
		&models.AdminNotification{},
	))

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Frontend:    config.FrontendConfig{BaseURL: "http://localhost:3000"},
		Email: config.EmailConfig{
			FromEmail: "noreply@freshrebate.test",
			FromName:  "FreshRebate",
		},
	}
}

// serviceSet wires the full service graph against one test database.
type serviceSet struct {
	db            *gorm.DB
	notifications *NotificationService
	queue         *QueueService
	certificates  *CertificateService
	inventory     *InventoryService
	qualification *QualificationService
	fulfillment   *FulfillmentService
	storage       *StorageService
}

func newServiceSet(t *testing.T) *serviceSet {
	t.Helper()

	db := newTestDB(t)
	cfg := newTestConfig()

	notifications := NewNotificationService(db, cfg)
	queue := NewQueueService(db, notifications)
	certificates := NewCertificateService(db, queue, notifications)
	inventory := NewInventoryService(db, queue, notifications)
	qualification := NewQualificationService(db, certificates, notifications)
	fulfillment := NewFulfillmentService(db, notifications)

	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	return &serviceSet{
		db:            db,
		notifications: notifications,
		queue:         queue,
		certificates:  certificates,
		inventory:     inventory,
		qualification: qualification,
		fulfillment:   fulfillment,
		storage:       storage,
	}
}

func (s *serviceSet) receipts(extractor ReceiptExtractor) *ReceiptService {
	return NewReceiptService(s.db, s.storage, extractor, s.qualification, s.notifications)
}

func createUser(t *testing.T, db *gorm.DB, userType models.UserType) *models.User {
	t.Helper()

	id := uuid.NewString()[:8]
	user := &models.User{
		Username: "user_" + id,
		Email:    id + "@example.com",
		UserType: userType,
		Status:   models.UserStatusActive,
		Timezone: "UTC",
	}
	require.NoError(t, user.SetPassword("Sup3r$ecret"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createMember(t *testing.T, db *gorm.DB) *models.User {
	return createUser(t, db, models.UserTypeMember)
}

func createMerchant(t *testing.T, db *gorm.DB) *models.User {
	return createUser(t, db, models.UserTypeMerchant)
}

// grantStock seeds a confirmed inventory ledger entry.
func grantStock(t *testing.T, db *gorm.DB, merchantID uuid.UUID, denomination float64, quantity int) {
	t.Helper()

	now := time.Now()
	require.NoError(t, db.Create(&models.Purchase{
		MerchantID:    merchantID,
		Denomination:  denomination,
		Quantity:      quantity,
		TotalCost:     denomination * float64(quantity),
		PaymentMethod: "stripe",
		PaymentStatus: models.PaymentStatusConfirmed,
		ConfirmedAt:   &now,
	}).Error)
}

func createPendingCertificate(t *testing.T, db *gorm.DB, merchantID uuid.UUID, denomination float64) *models.Certificate {
	t.Helper()

	months, ok := models.TermMonths(denomination)
	require.True(t, ok)

	cert := &models.Certificate{
		MerchantID:      merchantID,
		Denomination:    denomination,
		MonthsRemaining: months,
		Status:          models.CertificateStatusPending,
		IssuedAt:        time.Now(),
	}
	require.NoError(t, db.Create(cert).Error)
	return cert
}

func createActiveCertificate(t *testing.T, db *gorm.DB, merchantID, memberID uuid.UUID, denomination float64, store string) *models.Certificate {
	t.Helper()

	months, ok := models.TermMonths(denomination)
	require.True(t, ok)

	now := time.Now()
	cert := &models.Certificate{
		MerchantID:      merchantID,
		MemberID:        &memberID,
		Denomination:    denomination,
		MonthsRemaining: months,
		Status:          models.CertificateStatusActive,
		GroceryStore:    store,
		StorePlaceID:    "place-" + uuid.NewString()[:8],
		StartMonth:      int(now.Month()),
		StartYear:       now.Year(),
		IssuedAt:        now,
		RegisteredAt:    &now,
	}
	require.NoError(t, db.Create(cert).Error)
	return cert
}

// createApprovedReceipt builds the post-decision receipt RecordApproval
// consumes.
func createApprovedReceipt(t *testing.T, db *gorm.DB, memberID, certificateID uuid.UUID, amount float64, month, year int) *models.Receipt {
	t.Helper()

	now := time.Now()
	receipt := &models.Receipt{
		MemberID:       memberID,
		CertificateID:  certificateID,
		ImageURL:       "http://localhost:8080/uploads/receipts/" + uuid.NewString()[:8] + ".jpg",
		ImageHash:      uuid.NewString(),
		Amount:         amount,
		SubmittedMonth: month,
		SubmittedYear:  year,
		Status:         models.ReceiptStatusApproved,
		DecidedAt:      &now,
	}
	require.NoError(t, db.Create(receipt).Error)
	return receipt
}

func setAutoApprove(t *testing.T, db *gorm.DB, enabled bool) {
	t.Helper()

	require.NoError(t, db.Create(&models.AdminSettings{
		Category:  "receipts",
		Key:       "auto_approve_clean",
		Value:     models.JSONB{"value": enabled},
		DataType:  "boolean",
		UpdatedBy: uuid.New(),
	}).Error)
}

// stubExtractor stands in for Textract with a fixed verdict.
type stubExtractor struct {
	result *OCRResult
	err    error
}

func (s *stubExtractor) ExtractReceipt([]byte) (*OCRResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func cleanOCR(amount float64, store string, date time.Time) *OCRResult {
	return &OCRResult{
		Amount:      &amount,
		StoreName:   &store,
		ReceiptDate: &date,
	}
}

// jpegBytes returns a unique payload carrying the JPEG magic bytes so
// the upload validator accepts it.
func jpegBytes(seed byte) []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, seed}
}
