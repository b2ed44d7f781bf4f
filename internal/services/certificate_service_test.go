// internal/services/certificate_service_test.go
package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/database"
	"github.com/freshrebate/grc-backend/internal/models"
)

type CertificateServiceTestSuite struct {
	suite.Suite
	services *serviceSet
	merchant *models.User
	member   *models.User
}

func (suite *CertificateServiceTestSuite) SetupTest() {
	suite.services = newServiceSet(suite.T())
	suite.merchant = createMerchant(suite.T(), suite.services.db)
	suite.member = createMember(suite.T(), suite.services.db)
}

func (suite *CertificateServiceTestSuite) registerRequest() *RegisterCertificateRequest {
	return &RegisterCertificateRequest{
		GroceryStore: "Kroger",
		StorePlaceID: "place-123",
		StoreAliases: []string{"Kroger Marketplace"},
	}
}

func (suite *CertificateServiceTestSuite) TestRegisterActivatesPendingCertificate() {
	cert := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 150)
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	activated, err := suite.services.certificates.Register(suite.member.ID, cert.ID, suite.registerRequest(), now)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.CertificateStatusActive, activated.Status)
	assert.Equal(suite.T(), suite.member.ID, *activated.MemberID)
	assert.Equal(suite.T(), "Kroger", activated.GroceryStore)
	assert.Equal(suite.T(), 3, activated.StartMonth)
	assert.Equal(suite.T(), 2026, activated.StartYear)
	assert.Equal(suite.T(), 6, activated.MonthsRemaining)
	assert.NotNil(suite.T(), activated.RegisteredAt)
}

func (suite *CertificateServiceTestSuite) TestRegisterRemovesQueueEntry() {
	cert := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		return suite.services.queue.Enqueue(tx, suite.member.ID, cert.ID)
	})
	assert.NoError(suite.T(), err)

	_, err = suite.services.certificates.Register(suite.member.ID, cert.ID, suite.registerRequest(), time.Now())
	assert.NoError(suite.T(), err)

	entries, err := suite.services.queue.List(suite.member.ID)
	assert.NoError(suite.T(), err)
	assert.Empty(suite.T(), entries)
}

func (suite *CertificateServiceTestSuite) TestSecondActiveCertificateRejected() {
	createActiveCertificate(suite.T(), suite.services.db, suite.merchant.ID, suite.member.ID, 75, "Kroger")
	second := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 150)

	_, err := suite.services.certificates.Register(suite.member.ID, second.ID, suite.registerRequest(), time.Now())

	assert.ErrorIs(suite.T(), err, ErrActiveCertificateExists)
	assert.True(suite.T(), IsConflict(err))
}

func (suite *CertificateServiceTestSuite) TestConcurrentRegistersAllowOnlyOneActive() {
	const attempts = 8
	certs := make([]*models.Certificate, attempts)
	for i := range certs {
		certs[i] = createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = suite.services.certificates.Register(suite.member.ID, certs[i].ID, suite.registerRequest(), time.Now())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(suite.T(), err, ErrActiveCertificateExists)
		}
	}
	assert.Equal(suite.T(), 1, succeeded)

	var active int64
	suite.services.db.Model(&models.Certificate{}).
		Where("member_id = ? AND status = ?", suite.member.ID, models.CertificateStatusActive).
		Count(&active)
	assert.EqualValues(suite.T(), 1, active)
}

func (suite *CertificateServiceTestSuite) TestRegisterTerminalCertificateRejected() {
	cert := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	assert.NoError(suite.T(), suite.services.db.Model(cert).
		Update("status", models.CertificateStatusExpired).Error)

	_, err := suite.services.certificates.Register(suite.member.ID, cert.ID, suite.registerRequest(), time.Now())

	assert.ErrorIs(suite.T(), err, ErrTerminalCertificate)
	assert.True(suite.T(), IsStateViolation(err))
}

func (suite *CertificateServiceTestSuite) TestRegisterCertificateReservedForAnotherMember() {
	other := createMember(suite.T(), suite.services.db)
	cert := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		return suite.services.queue.Enqueue(tx, other.ID, cert.ID)
	})
	assert.NoError(suite.T(), err)

	_, err = suite.services.certificates.Register(suite.member.ID, cert.ID, suite.registerRequest(), time.Now())
	assert.Error(suite.T(), err)
}

func (suite *CertificateServiceTestSuite) TestApplyQualifiedMonthDecrements() {
	cert := createActiveCertificate(suite.T(), suite.services.db, suite.merchant.ID, suite.member.ID, 75, "Kroger")

	var completed bool
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		updated, done, err := suite.services.certificates.ApplyQualifiedMonth(tx, cert.ID, time.Now())
		if err != nil {
			return err
		}
		completed = done
		assert.Equal(suite.T(), 2, updated.MonthsRemaining)
		return nil
	})

	assert.NoError(suite.T(), err)
	assert.False(suite.T(), completed)
}

func (suite *CertificateServiceTestSuite) TestFinalQualifiedMonthCompletesAndPromotesQueue() {
	cert := createActiveCertificate(suite.T(), suite.services.db, suite.merchant.ID, suite.member.ID, 75, "Kroger")
	assert.NoError(suite.T(), suite.services.db.Model(cert).
		Update("months_remaining", 1).Error)

	queued := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 150)
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		return suite.services.queue.Enqueue(tx, suite.member.ID, queued.ID)
	})
	assert.NoError(suite.T(), err)

	err = database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		updated, done, err := suite.services.certificates.ApplyQualifiedMonth(tx, cert.ID, time.Now())
		if err != nil {
			return err
		}
		assert.True(suite.T(), done)
		assert.Zero(suite.T(), updated.MonthsRemaining)
		assert.Equal(suite.T(), models.CertificateStatusCompleted, updated.Status)
		return nil
	})
	assert.NoError(suite.T(), err)

	// The queue head is invited, not activated.
	entries, err := suite.services.queue.List(suite.member.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 1)
	assert.NotNil(suite.T(), entries[0].PromotedAt)

	var stillPending models.Certificate
	assert.NoError(suite.T(), suite.services.db.First(&stillPending, queued.ID).Error)
	assert.Equal(suite.T(), models.CertificateStatusPending, stillPending.Status)
}

func (suite *CertificateServiceTestSuite) TestApplyQualifiedMonthOnPendingCertificateFails() {
	cert := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)

	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		_, _, err := suite.services.certificates.ApplyQualifiedMonth(tx, cert.ID, time.Now())
		return err
	})

	assert.ErrorIs(suite.T(), err, ErrTerminalCertificate)
}

func (suite *CertificateServiceTestSuite) TestExpireStalePending() {
	stale := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	oldIssue := time.Now().AddDate(0, 0, -(models.RetentionDays + 1))
	assert.NoError(suite.T(), suite.services.db.Model(stale).
		Update("issued_at", oldIssue).Error)
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		return suite.services.queue.Enqueue(tx, suite.member.ID, stale.ID)
	})
	assert.NoError(suite.T(), err)

	fresh := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)

	expired, err := suite.services.certificates.ExpireStalePending(time.Now())
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, expired)

	var staleReloaded models.Certificate
	assert.NoError(suite.T(), suite.services.db.First(&staleReloaded, stale.ID).Error)
	assert.Equal(suite.T(), models.CertificateStatusExpired, staleReloaded.Status)

	var freshReloaded models.Certificate
	assert.NoError(suite.T(), suite.services.db.First(&freshReloaded, fresh.ID).Error)
	assert.Equal(suite.T(), models.CertificateStatusPending, freshReloaded.Status)

	entries, err := suite.services.queue.List(suite.member.ID)
	assert.NoError(suite.T(), err)
	assert.Empty(suite.T(), entries)
}

func TestCertificateServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CertificateServiceTestSuite))
}
