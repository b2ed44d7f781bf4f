// internal/services/queue_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/database"
	"github.com/freshrebate/grc-backend/internal/models"
)

type QueueServiceTestSuite struct {
	suite.Suite
	services *serviceSet
	merchant *models.User
	member   *models.User
}

func (suite *QueueServiceTestSuite) SetupTest() {
	suite.services = newServiceSet(suite.T())
	suite.merchant = createMerchant(suite.T(), suite.services.db)
	suite.member = createMember(suite.T(), suite.services.db)
}

func (suite *QueueServiceTestSuite) enqueue(certificateID uuid.UUID) {
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		return suite.services.queue.Enqueue(tx, suite.member.ID, certificateID)
	})
	assert.NoError(suite.T(), err)
}

func (suite *QueueServiceTestSuite) TestEnqueueAppendsToTail() {
	first := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	second := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 150)
	suite.enqueue(first.ID)
	suite.enqueue(second.ID)

	entries, err := suite.services.queue.List(suite.member.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 2)
	assert.Equal(suite.T(), first.ID, entries[0].CertificateID)
	assert.Equal(suite.T(), second.ID, entries[1].CertificateID)
	assert.Less(suite.T(), entries[0].SortOrder, entries[1].SortOrder)
}

func (suite *QueueServiceTestSuite) TestReorderMovesListedToFront() {
	a := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	b := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	c := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	suite.enqueue(a.ID)
	suite.enqueue(b.ID)
	suite.enqueue(c.ID)

	// Only c is listed; a and b trail in their previous relative order.
	entries, err := suite.services.queue.Reorder(suite.member.ID, &ReorderRequest{
		CertificateIDs: []uuid.UUID{c.ID},
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), c.ID, entries[0].CertificateID)
	assert.Equal(suite.T(), a.ID, entries[1].CertificateID)
	assert.Equal(suite.T(), b.ID, entries[2].CertificateID)
}

func (suite *QueueServiceTestSuite) TestReorderRejectsForeignCertificate() {
	a := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	suite.enqueue(a.ID)

	_, err := suite.services.queue.Reorder(suite.member.ID, &ReorderRequest{
		CertificateIDs: []uuid.UUID{uuid.New()},
	})
	assert.Error(suite.T(), err)
}

func (suite *QueueServiceTestSuite) TestReorderRejectsDuplicateIDs() {
	a := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	suite.enqueue(a.ID)

	_, err := suite.services.queue.Reorder(suite.member.ID, &ReorderRequest{
		CertificateIDs: []uuid.UUID{a.ID, a.ID},
	})
	assert.Error(suite.T(), err)
}

func (suite *QueueServiceTestSuite) TestPromoteNextIsNoOpOnEmptyQueue() {
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		head, err := suite.services.queue.PromoteNext(tx, suite.member.ID, time.Now())
		assert.Nil(suite.T(), head)
		return err
	})
	assert.NoError(suite.T(), err)
}

func (suite *QueueServiceTestSuite) TestPromoteNextStampsHeadOnce() {
	a := createPendingCertificate(suite.T(), suite.services.db, suite.merchant.ID, 75)
	suite.enqueue(a.ID)

	first := time.Now()
	err := database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		head, err := suite.services.queue.PromoteNext(tx, suite.member.ID, first)
		assert.NotNil(suite.T(), head)
		assert.NotNil(suite.T(), head.PromotedAt)
		return err
	})
	assert.NoError(suite.T(), err)

	// Promoting again keeps the original timestamp.
	err = database.WithTransaction(suite.services.db, func(tx *gorm.DB) error {
		head, err := suite.services.queue.PromoteNext(tx, suite.member.ID, first.Add(time.Hour))
		assert.Equal(suite.T(), first.Unix(), head.PromotedAt.Unix())
		return err
	})
	assert.NoError(suite.T(), err)
}

func TestQueueServiceTestSuite(t *testing.T) {
	suite.Run(t, new(QueueServiceTestSuite))
}
