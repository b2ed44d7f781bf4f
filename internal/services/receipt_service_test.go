// internal/services/receipt_service_test.go
package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/freshrebate/grc-backend/internal/models"
)

type ReceiptServiceTestSuite struct {
	suite.Suite
	services *serviceSet
	merchant *models.User
	member   *models.User
	admin    *models.User
	cert     *models.Certificate
	now      time.Time
}

func (suite *ReceiptServiceTestSuite) SetupTest() {
	suite.services = newServiceSet(suite.T())
	suite.merchant = createMerchant(suite.T(), suite.services.db)
	suite.member = createMember(suite.T(), suite.services.db)
	suite.admin = createUser(suite.T(), suite.services.db, models.UserTypeAdmin)
	suite.cert = createActiveCertificate(suite.T(), suite.services.db, suite.merchant.ID, suite.member.ID, 75, "Kroger")
	suite.now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
}

func (suite *ReceiptServiceTestSuite) submit(service *ReceiptService, image []byte, override bool) (*SubmitResult, error) {
	return service.SubmitReceipt(suite.member.ID, &SubmitReceiptRequest{
		CertificateID:  suite.cert.ID,
		MemberOverride: override,
		ImageData:      image,
		Filename:       "receipt.jpg",
		ContentType:    "image/jpeg",
	}, suite.now)
}

func (suite *ReceiptServiceTestSuite) TestCleanSubmissionStoredPending() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(42.50, "Kroger", suite.now)})

	result, err := suite.submit(service, jpegBytes(1), false)

	assert.NoError(suite.T(), err)
	assert.False(suite.T(), result.AutoApproved)
	assert.Equal(suite.T(), models.ReceiptStatusPending, result.Receipt.Status)
	assert.InDelta(suite.T(), 42.50, result.Receipt.Amount, 0.001)
	assert.Equal(suite.T(), 3, result.Receipt.SubmittedMonth)
	assert.Equal(suite.T(), 2026, result.Receipt.SubmittedYear)
	assert.False(suite.T(), result.Receipt.Flagged())
	assert.NotEmpty(suite.T(), result.Receipt.ImageURL)
}

func (suite *ReceiptServiceTestSuite) TestAutoApproveCleanReceipt() {
	setAutoApprove(suite.T(), suite.services.db, true)
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(120, "Kroger", suite.now)})

	result, err := suite.submit(service, jpegBytes(2), false)

	assert.NoError(suite.T(), err)
	assert.True(suite.T(), result.AutoApproved)
	assert.Equal(suite.T(), models.ReceiptStatusApproved, result.Receipt.Status)
	// Auto-approval carries no admin identity.
	assert.Nil(suite.T(), result.Receipt.DecidedBy)

	// The approval cascaded into qualification.
	var period models.QualificationPeriod
	assert.NoError(suite.T(), suite.services.db.
		Where("certificate_id = ?", suite.cert.ID).First(&period).Error)
	assert.Equal(suite.T(), models.PeriodStatusQualified, period.Status)

	var cert models.Certificate
	assert.NoError(suite.T(), suite.services.db.First(&cert, suite.cert.ID).Error)
	assert.Equal(suite.T(), 2, cert.MonthsRemaining)
}

func (suite *ReceiptServiceTestSuite) TestAutoApproveDisabledBySetting() {
	setAutoApprove(suite.T(), suite.services.db, false)
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(120, "Kroger", suite.now)})

	result, err := suite.submit(service, jpegBytes(3), false)

	assert.NoError(suite.T(), err)
	assert.False(suite.T(), result.AutoApproved)
	assert.Equal(suite.T(), models.ReceiptStatusPending, result.Receipt.Status)
}

func (suite *ReceiptServiceTestSuite) TestStoreMismatchNeedsConfirmation() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(50, "Safeway", suite.now)})

	result, err := suite.submit(service, jpegBytes(4), false)

	assert.ErrorIs(suite.T(), err, ErrNeedsConfirmation)
	assert.Nil(suite.T(), result.Receipt)
	assert.True(suite.T(), result.Validation.StoreMismatch)

	// Nothing was stored; the member must confirm first.
	var count int64
	suite.services.db.Model(&models.Receipt{}).Count(&count)
	assert.Zero(suite.T(), count)
}

func (suite *ReceiptServiceTestSuite) TestMemberOverrideStoresFlaggedReceipt() {
	setAutoApprove(suite.T(), suite.services.db, true)
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(50, "Safeway", suite.now)})

	result, err := suite.submit(service, jpegBytes(5), true)

	assert.NoError(suite.T(), err)
	assert.True(suite.T(), result.Receipt.StoreMismatch)
	assert.True(suite.T(), result.Receipt.MemberOverride)
	// Overridden receipts never auto-approve.
	assert.False(suite.T(), result.AutoApproved)
	assert.Equal(suite.T(), models.ReceiptStatusPending, result.Receipt.Status)
}

func (suite *ReceiptServiceTestSuite) TestWrongMonthDateFlagged() {
	lastMonth := suite.now.AddDate(0, -1, 0)
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(50, "Kroger", lastMonth)})

	result, err := suite.submit(service, jpegBytes(6), false)

	assert.ErrorIs(suite.T(), err, ErrNeedsConfirmation)
	assert.True(suite.T(), result.Validation.DateMismatch)
}

func (suite *ReceiptServiceTestSuite) TestOCRFailureRoutesToManualReview() {
	setAutoApprove(suite.T(), suite.services.db, true)
	service := suite.services.receipts(&stubExtractor{err: errors.New("textract unavailable")})

	result, err := service.SubmitReceipt(suite.member.ID, &SubmitReceiptRequest{
		CertificateID:  suite.cert.ID,
		DeclaredAmount: 63.20,
		ImageData:      jpegBytes(7),
		Filename:       "receipt.jpg",
		ContentType:    "image/jpeg",
	}, suite.now)

	assert.NoError(suite.T(), err)
	assert.False(suite.T(), result.AutoApproved)
	assert.Equal(suite.T(), models.ReceiptStatusPending, result.Receipt.Status)
	assert.True(suite.T(), result.Validation.NeedsManualReview)
	// The declared amount stands in for the unreadable OCR total.
	assert.InDelta(suite.T(), 63.20, result.Receipt.Amount, 0.001)
}

func (suite *ReceiptServiceTestSuite) TestDuplicateImageRejected() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	_, err := suite.submit(service, jpegBytes(8), false)
	assert.NoError(suite.T(), err)

	_, err = suite.submit(service, jpegBytes(8), false)
	assert.ErrorIs(suite.T(), err, ErrDuplicateReceipt)
	assert.True(suite.T(), IsConflict(err))
}

func (suite *ReceiptServiceTestSuite) TestRejectedImageHashFreedForResubmission() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	first, err := suite.submit(service, jpegBytes(9), false)
	assert.NoError(suite.T(), err)

	_, err = service.RejectReceipt(first.Receipt.ID, suite.admin.ID, &ReceiptDecisionRequest{
		Reason: "illegible total",
	}, suite.now)
	assert.NoError(suite.T(), err)

	_, err = suite.submit(service, jpegBytes(9), false)
	assert.NoError(suite.T(), err)
}

func (suite *ReceiptServiceTestSuite) TestRejectOpensReuploadWindow() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	first, err := suite.submit(service, jpegBytes(10), false)
	assert.NoError(suite.T(), err)

	rejected, err := service.RejectReceipt(first.Receipt.ID, suite.admin.ID, &ReceiptDecisionRequest{
		Reason: "blurry photo",
	}, suite.now)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ReceiptStatusRejected, rejected.Status)
	assert.Equal(suite.T(), "blurry photo", rejected.RejectionReason)
	wantWindow := suite.now.AddDate(0, 0, models.ReuploadWindowDays)
	assert.Equal(suite.T(), wantWindow.Unix(), rejected.ReuploadAllowedUntil.Unix())

	// Inside the window the replacement is accepted.
	_, err = service.SubmitReceipt(suite.member.ID, &SubmitReceiptRequest{
		CertificateID:     suite.cert.ID,
		ReplacesReceiptID: &rejected.ID,
		ImageData:         jpegBytes(11),
		Filename:          "receipt.jpg",
		ContentType:       "image/jpeg",
	}, suite.now.AddDate(0, 0, 3))
	assert.NoError(suite.T(), err)
}

func (suite *ReceiptServiceTestSuite) TestReuploadWindowCloses() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	first, err := suite.submit(service, jpegBytes(12), false)
	assert.NoError(suite.T(), err)

	rejected, err := service.RejectReceipt(first.Receipt.ID, suite.admin.ID, &ReceiptDecisionRequest{
		Reason: "wrong store",
	}, suite.now)
	assert.NoError(suite.T(), err)

	_, err = service.SubmitReceipt(suite.member.ID, &SubmitReceiptRequest{
		CertificateID:     suite.cert.ID,
		ReplacesReceiptID: &rejected.ID,
		ImageData:         jpegBytes(13),
		Filename:          "receipt.jpg",
		ContentType:       "image/jpeg",
	}, suite.now.AddDate(0, 0, models.ReuploadWindowDays+1))
	assert.ErrorIs(suite.T(), err, ErrReuploadWindowClosed)
}

func (suite *ReceiptServiceTestSuite) TestSubmitOnCompletedCertificateRejected() {
	assert.NoError(suite.T(), suite.services.db.Model(suite.cert).
		Update("status", models.CertificateStatusCompleted).Error)
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	_, err := suite.submit(service, jpegBytes(14), false)
	assert.ErrorIs(suite.T(), err, ErrTerminalCertificate)
}

func (suite *ReceiptServiceTestSuite) TestSubmitOnPendingCertificateIsNotTerminal() {
	assert.NoError(suite.T(), suite.services.db.Model(suite.cert).
		Updates(map[string]interface{}{
			"status":        models.CertificateStatusPending,
			"member_id":     suite.member.ID,
			"registered_at": nil,
		}).Error)
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	// An unregistered certificate is an input error, not an invariant
	// breach.
	_, err := suite.submit(service, jpegBytes(23), false)
	assert.ErrorIs(suite.T(), err, ErrCertificateNotActive)
	assert.False(suite.T(), IsStateViolation(err))
}

func (suite *ReceiptServiceTestSuite) TestSubmitForAnotherMembersCertificateRejected() {
	other := createMember(suite.T(), suite.services.db)
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	_, err := service.SubmitReceipt(other.ID, &SubmitReceiptRequest{
		CertificateID: suite.cert.ID,
		ImageData:     jpegBytes(15),
		Filename:      "receipt.jpg",
		ContentType:   "image/jpeg",
	}, suite.now)
	assert.Error(suite.T(), err)
}

func (suite *ReceiptServiceTestSuite) TestApproveWithAmountOverride() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	result, err := suite.submit(service, jpegBytes(16), false)
	assert.NoError(suite.T(), err)

	corrected := 47.80
	receipt, outcome, err := service.ApproveReceipt(result.Receipt.ID, suite.admin.ID, &ReceiptDecisionRequest{
		AmountOverride: &corrected,
		Notes:          "OCR misread the total",
	}, suite.now)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ReceiptStatusApproved, receipt.Status)
	assert.InDelta(suite.T(), 47.80, receipt.Amount, 0.001)
	assert.Equal(suite.T(), suite.admin.ID, *receipt.DecidedBy)
	assert.InDelta(suite.T(), 47.80, outcome.Period.ApprovedTotal, 0.001)
}

func (suite *ReceiptServiceTestSuite) TestApproveTwiceFails() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})

	result, err := suite.submit(service, jpegBytes(17), false)
	assert.NoError(suite.T(), err)

	_, _, err = service.ApproveReceipt(result.Receipt.ID, suite.admin.ID, &ReceiptDecisionRequest{}, suite.now)
	assert.NoError(suite.T(), err)

	_, _, err = service.ApproveReceipt(result.Receipt.ID, suite.admin.ID, &ReceiptDecisionRequest{}, suite.now)
	assert.Error(suite.T(), err)
}

func (suite *ReceiptServiceTestSuite) TestReviewQueueFlaggedFirst() {
	service := suite.services.receipts(&stubExtractor{result: cleanOCR(40, "Kroger", suite.now)})
	clean, err := suite.submit(service, jpegBytes(18), false)
	assert.NoError(suite.T(), err)

	flaggedService := suite.services.receipts(&stubExtractor{result: cleanOCR(50, "Safeway", suite.now)})
	flagged, err := suite.submit(flaggedService, jpegBytes(19), true)
	assert.NoError(suite.T(), err)

	queue, total, err := service.GetReviewQueue(testPagination())
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, total)
	assert.Equal(suite.T(), flagged.Receipt.ID, queue[0].ID)
	assert.Equal(suite.T(), clean.Receipt.ID, queue[1].ID)
}

func TestReceiptServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ReceiptServiceTestSuite))
}
