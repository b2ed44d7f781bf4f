// internal/services/fulfillment_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/freshrebate/grc-backend/internal/models"
)

type FulfillmentServiceTestSuite struct {
	suite.Suite
	services *serviceSet
	merchant *models.User
	member   *models.User
	admin    *models.User
	cert     *models.Certificate
	now      time.Time
}

func (suite *FulfillmentServiceTestSuite) SetupTest() {
	suite.services = newServiceSet(suite.T())
	suite.merchant = createMerchant(suite.T(), suite.services.db)
	suite.member = createMember(suite.T(), suite.services.db)
	suite.admin = createUser(suite.T(), suite.services.db, models.UserTypeAdmin)
	suite.cert = createActiveCertificate(suite.T(), suite.services.db, suite.merchant.ID, suite.member.ID, 300, "Kroger")
	suite.now = time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC)
}

func (suite *FulfillmentServiceTestSuite) createPeriod(month int, status models.PeriodStatus, qualifiedAt *time.Time) *models.QualificationPeriod {
	period := &models.QualificationPeriod{
		MemberID:      suite.member.ID,
		CertificateID: suite.cert.ID,
		Month:         month,
		Year:          2026,
		ApprovedTotal: 110,
		Status:        status,
		QualifiedAt:   qualifiedAt,
	}
	assert.NoError(suite.T(), suite.services.db.Create(period).Error)
	return period
}

func (suite *FulfillmentServiceTestSuite) TestMarkRewardSent() {
	qualifiedAt := suite.now.AddDate(0, 0, -2)
	period := suite.createPeriod(3, models.PeriodStatusQualified, &qualifiedAt)

	updated, err := suite.services.fulfillment.MarkRewardSent(period.ID, suite.admin.ID, &MarkRewardSentRequest{
		FulfillmentCode: "GC-2026-0342",
	}, suite.now)

	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), updated.RewardSentAt)
	assert.Equal(suite.T(), "GC-2026-0342", updated.FulfillmentCode)
}

func (suite *FulfillmentServiceTestSuite) TestMarkRewardSentIsIdempotent() {
	qualifiedAt := suite.now.AddDate(0, 0, -2)
	period := suite.createPeriod(3, models.PeriodStatusQualified, &qualifiedAt)

	_, err := suite.services.fulfillment.MarkRewardSent(period.ID, suite.admin.ID, &MarkRewardSentRequest{
		FulfillmentCode: "GC-FIRST",
	}, suite.now)
	assert.NoError(suite.T(), err)

	// A retry must not overwrite the recorded delivery.
	_, err = suite.services.fulfillment.MarkRewardSent(period.ID, suite.admin.ID, &MarkRewardSentRequest{
		FulfillmentCode: "GC-SECOND",
	}, suite.now.Add(time.Hour))
	assert.NoError(suite.T(), err)

	var reloaded models.QualificationPeriod
	assert.NoError(suite.T(), suite.services.db.First(&reloaded, period.ID).Error)
	assert.Equal(suite.T(), "GC-FIRST", reloaded.FulfillmentCode)
	assert.Equal(suite.T(), suite.now.Unix(), reloaded.RewardSentAt.Unix())
}

func (suite *FulfillmentServiceTestSuite) TestMarkRewardSentNotifiesOnlyOnFirstDelivery() {
	qualifiedAt := suite.now.AddDate(0, 0, -2)
	period := suite.createPeriod(3, models.PeriodStatusQualified, &qualifiedAt)

	_, err := suite.services.fulfillment.MarkRewardSent(period.ID, suite.admin.ID, &MarkRewardSentRequest{
		FulfillmentCode: "GC-ONCE",
	}, suite.now)
	assert.NoError(suite.T(), err)

	countNotifications := func() int64 {
		var count int64
		suite.services.db.Model(&models.AdminNotification{}).
			Where("type = ? AND related_resource_id = ?", "reward_sent", period.ID).
			Count(&count)
		return count
	}
	suite.Require().Eventually(func() bool { return countNotifications() == 1 },
		time.Second, 10*time.Millisecond)

	// A duplicate admin click records nothing new and stays silent.
	_, err = suite.services.fulfillment.MarkRewardSent(period.ID, suite.admin.ID, &MarkRewardSentRequest{
		FulfillmentCode: "GC-AGAIN",
	}, suite.now.Add(time.Hour))
	assert.NoError(suite.T(), err)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(suite.T(), 1, countNotifications())
}

func (suite *FulfillmentServiceTestSuite) TestMarkRewardSentRequiresQualifiedPeriod() {
	period := suite.createPeriod(3, models.PeriodStatusInProgress, nil)

	_, err := suite.services.fulfillment.MarkRewardSent(period.ID, suite.admin.ID, &MarkRewardSentRequest{
		FulfillmentCode: "GC-NOPE",
	}, suite.now)

	assert.ErrorIs(suite.T(), err, ErrPeriodNotQualified)
	assert.True(suite.T(), IsStateViolation(err))
}

func (suite *FulfillmentServiceTestSuite) TestPendingFulfillmentsOldestFirst() {
	older := suite.now.AddDate(0, -1, 0)
	newer := suite.now.AddDate(0, 0, -1)
	first := suite.createPeriod(1, models.PeriodStatusQualified, &older)
	second := suite.createPeriod(2, models.PeriodStatusQualified, &newer)

	periods, total, err := suite.services.fulfillment.GetPendingFulfillments(testPagination())
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, total)
	assert.Equal(suite.T(), first.ID, periods[0].ID)
	assert.Equal(suite.T(), second.ID, periods[1].ID)
}

func (suite *FulfillmentServiceTestSuite) TestStatsDeriveValueFromCount() {
	q1 := suite.now.AddDate(0, 0, -10)
	q2 := suite.now.AddDate(0, 0, -5)
	q3 := suite.now.AddDate(0, 0, -1)
	suite.createPeriod(1, models.PeriodStatusQualified, &q1)
	suite.createPeriod(2, models.PeriodStatusQualified, &q2)
	sent := suite.createPeriod(3, models.PeriodStatusQualified, &q3)

	_, err := suite.services.fulfillment.MarkRewardSent(sent.ID, suite.admin.ID, &MarkRewardSentRequest{
		FulfillmentCode: "GC-OK",
	}, suite.now)
	assert.NoError(suite.T(), err)

	stats, err := suite.services.fulfillment.GetStats(suite.now)
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, stats.PendingCount)
	assert.InDelta(suite.T(), 2*models.MonthlyRewardValue, stats.PendingValue, 0.001)
	assert.EqualValues(suite.T(), 1, stats.SentThisMonth)
	assert.EqualValues(suite.T(), 1, stats.SentTotal)
	assert.Equal(suite.T(), 10, stats.OldestPendingDays)
}

func TestFulfillmentServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FulfillmentServiceTestSuite))
}
