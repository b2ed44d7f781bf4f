// internal/services/inventory_service_test.go
package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/freshrebate/grc-backend/internal/models"
)

type InventoryServiceTestSuite struct {
	suite.Suite
	services *serviceSet
	merchant *models.User
}

func (suite *InventoryServiceTestSuite) SetupTest() {
	suite.services = newServiceSet(suite.T())
	suite.merchant = createMerchant(suite.T(), suite.services.db)
}

func (suite *InventoryServiceTestSuite) TestTrialPurchaseConfirmsImmediately() {
	purchase, err := suite.services.inventory.RecordPurchase(suite.merchant.ID, &RecordPurchaseRequest{
		Denomination:  75,
		Quantity:      5,
		TotalCost:     375,
		PaymentMethod: "trial",
		IsTrial:       true,
	})

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.PaymentStatusConfirmed, purchase.PaymentStatus)
	assert.NotNil(suite.T(), purchase.ConfirmedAt)
	assert.Zero(suite.T(), purchase.TotalCost)

	available, err := suite.services.inventory.AvailableCount(suite.merchant.ID, 75)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 5, available)
}

func (suite *InventoryServiceTestSuite) TestPendingPurchaseDoesNotAddStock() {
	_, err := suite.services.inventory.RecordPurchase(suite.merchant.ID, &RecordPurchaseRequest{
		Denomination:  150,
		Quantity:      10,
		TotalCost:     1500,
		PaymentMethod: "stripe",
	})
	assert.NoError(suite.T(), err)

	available, err := suite.services.inventory.AvailableCount(suite.merchant.ID, 150)
	assert.NoError(suite.T(), err)
	assert.Zero(suite.T(), available)
}

func (suite *InventoryServiceTestSuite) TestConfirmPurchaseIsIdempotent() {
	purchase, err := suite.services.inventory.RecordPurchase(suite.merchant.ID, &RecordPurchaseRequest{
		Denomination:  75,
		Quantity:      2,
		TotalCost:     150,
		PaymentMethod: "stripe",
	})
	assert.NoError(suite.T(), err)

	confirmed, err := suite.services.inventory.ConfirmPurchase(purchase.ID)
	assert.NoError(suite.T(), err)
	firstConfirmedAt := confirmed.ConfirmedAt

	again, err := suite.services.inventory.ConfirmPurchase(purchase.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), firstConfirmedAt.Unix(), again.ConfirmedAt.Unix())

	available, err := suite.services.inventory.AvailableCount(suite.merchant.ID, 75)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, available)
}

func (suite *InventoryServiceTestSuite) TestCannotRejectConfirmedPurchase() {
	purchase, err := suite.services.inventory.RecordPurchase(suite.merchant.ID, &RecordPurchaseRequest{
		Denomination:  75,
		Quantity:      1,
		TotalCost:     75,
		PaymentMethod: "stripe",
	})
	assert.NoError(suite.T(), err)

	_, err = suite.services.inventory.ConfirmPurchase(purchase.ID)
	assert.NoError(suite.T(), err)

	_, err = suite.services.inventory.RejectPurchase(purchase.ID, "card declined")
	assert.Error(suite.T(), err)
}

func (suite *InventoryServiceTestSuite) TestReserveForIssuanceConsumesStock() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 75, 2)

	for i := 0; i < 2; i++ {
		cert, err := suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{Denomination: 75})
		assert.NoError(suite.T(), err)
		assert.Equal(suite.T(), models.CertificateStatusPending, cert.Status)
		assert.Equal(suite.T(), 3, cert.MonthsRemaining)
	}

	_, err := suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{Denomination: 75})
	assert.ErrorIs(suite.T(), err, ErrInsufficientInventory)
	assert.True(suite.T(), IsConflict(err))

	available, err := suite.services.inventory.AvailableCount(suite.merchant.ID, 75)
	assert.NoError(suite.T(), err)
	assert.Zero(suite.T(), available)
}

func (suite *InventoryServiceTestSuite) TestTerminalCertificatesStayCountedAgainstStock() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 75, 1)

	cert, err := suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{Denomination: 75})
	assert.NoError(suite.T(), err)

	// Expiry does not return the unit to the shelf.
	assert.NoError(suite.T(), suite.services.db.Model(cert).
		Update("status", models.CertificateStatusExpired).Error)

	available, err := suite.services.inventory.AvailableCount(suite.merchant.ID, 75)
	assert.NoError(suite.T(), err)
	assert.Zero(suite.T(), available)
}

func (suite *InventoryServiceTestSuite) TestConcurrentReservationsCannotOversell() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 300, 1)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{Denomination: 300})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(suite.T(), err, ErrInsufficientInventory)
		}
	}
	assert.Equal(suite.T(), 1, succeeded)

	var issued int64
	suite.services.db.Model(&models.Certificate{}).
		Where("merchant_id = ? AND denomination = ?", suite.merchant.ID, 300.0).
		Count(&issued)
	assert.EqualValues(suite.T(), 1, issued)
}

func (suite *InventoryServiceTestSuite) TestIdempotencyKeyReturnsExistingCertificate() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 75, 1)

	first, err := suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{
		Denomination:   75,
		IdempotencyKey: "retry-abc",
	})
	assert.NoError(suite.T(), err)

	// A retry with the same key must not mint a second certificate even
	// though stock is exhausted.
	second, err := suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{
		Denomination:   75,
		IdempotencyKey: "retry-abc",
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), first.ID, second.ID)
}

func (suite *InventoryServiceTestSuite) TestConfirmPurchaseNotifiesOnce() {
	purchase, err := suite.services.inventory.RecordPurchase(suite.merchant.ID, &RecordPurchaseRequest{
		Denomination:  75,
		Quantity:      3,
		TotalCost:     225,
		PaymentMethod: "stripe",
	})
	assert.NoError(suite.T(), err)

	_, err = suite.services.inventory.ConfirmPurchase(purchase.ID)
	assert.NoError(suite.T(), err)

	countNotifications := func() int64 {
		var count int64
		suite.services.db.Model(&models.AdminNotification{}).
			Where("type = ? AND related_resource_id = ?", "purchase_confirmed", purchase.ID).
			Count(&count)
		return count
	}
	suite.Require().Eventually(func() bool { return countNotifications() == 1 },
		time.Second, 10*time.Millisecond)

	// The idempotent retry path stays silent.
	_, err = suite.services.inventory.ConfirmPurchase(purchase.ID)
	assert.NoError(suite.T(), err)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(suite.T(), 1, countNotifications())
}

func (suite *InventoryServiceTestSuite) TestConcurrentRetriesWithSameKeyShareOneCertificate() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 75, 1)

	const attempts = 2
	var wg sync.WaitGroup
	certs := make([]*models.Certificate, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			certs[i], errs[i] = suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{
				Denomination:   75,
				IdempotencyKey: "retry-race",
			})
		}(i)
	}
	wg.Wait()

	// Both retries succeed and agree on the one minted certificate.
	assert.NoError(suite.T(), errs[0])
	assert.NoError(suite.T(), errs[1])
	assert.Equal(suite.T(), certs[0].ID, certs[1].ID)

	available, err := suite.services.inventory.AvailableCount(suite.merchant.ID, 75)
	assert.NoError(suite.T(), err)
	assert.Zero(suite.T(), available)
}

func (suite *InventoryServiceTestSuite) TestReserveForRecipientEnqueues() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 75, 1)
	member := createMember(suite.T(), suite.services.db)

	cert, err := suite.services.inventory.ReserveForIssuance(suite.merchant.ID, &IssueRequest{
		Denomination: 75,
		RecipientID:  &member.ID,
	})
	assert.NoError(suite.T(), err)

	entries, err := suite.services.queue.List(member.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 1)
	assert.Equal(suite.T(), cert.ID, entries[0].CertificateID)

	// Issuance to a recipient still raises the admin notification.
	suite.Require().Eventually(func() bool {
		var count int64
		suite.services.db.Model(&models.AdminNotification{}).
			Where("type = ? AND related_resource_id = ?", "certificate_issued", cert.ID).
			Count(&count)
		return count == 1
	}, time.Second, 10*time.Millisecond)
}

func (suite *InventoryServiceTestSuite) TestBulkIssueFailsFastWhenBatchExceedsStock() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 75, 1)

	_, err := suite.services.inventory.BulkIssue(suite.merchant.ID, []BulkIssueRow{
		{Denomination: 75},
		{Denomination: 75},
	})
	assert.ErrorIs(suite.T(), err, ErrInsufficientInventory)

	// Fast fail is all or nothing: no partial issuance happened.
	var issued int64
	suite.services.db.Model(&models.Certificate{}).
		Where("merchant_id = ?", suite.merchant.ID).
		Count(&issued)
	assert.Zero(suite.T(), issued)
}

func (suite *InventoryServiceTestSuite) TestBulkIssueWithinStock() {
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 75, 2)
	grantStock(suite.T(), suite.services.db, suite.merchant.ID, 150, 1)

	result, err := suite.services.inventory.BulkIssue(suite.merchant.ID, []BulkIssueRow{
		{Denomination: 75},
		{Denomination: 75},
		{Denomination: 150},
	})
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), result.Issued, 3)
	assert.Empty(suite.T(), result.Failed)
}

func TestInventoryServiceTestSuite(t *testing.T) {
	suite.Run(t, new(InventoryServiceTestSuite))
}
