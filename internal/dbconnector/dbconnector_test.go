package dbconnector_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

type StorageTestSuite struct {
	suite.Suite
	db       *dbconnector.DBConnector
	postgres testcontainers.Container
	ctx      context.Context
}

var _ service.Storage = (*dbconnector.DBConnector)(nil)

func (suite *StorageTestSuite) SetupSuite() {
	if testing.Short() {
		suite.T().Skip("Skipping integration test")
	}
	suite.ctx = context.Background()

	ctx, cancel := context.WithTimeout(suite.ctx, 60*time.Second)
	defer cancel()

	postgresContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:16-alpine"),
		tcpostgres.WithDatabase("cafe"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("example"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(suite.T(), err)
	suite.postgres = postgresContainer

	host, err := postgresContainer.Host(ctx)
	require.NoError(suite.T(), err)
	port, err := postgresContainer.MappedPort(ctx, "5432")
	require.NoError(suite.T(), err)
	dsn := fmt.Sprintf("host=%s port=%s user=postgres password=example dbname=cafe sslmode=disable", host, port.Port())

	db, err := dbconnector.OpenDBConnect(dsn)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), db.DBInitialize())
	suite.db = db
}

func (suite *StorageTestSuite) TearDownSuite() {
	if suite.postgres == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(suite.T(), suite.postgres.Terminate(ctx))
}

func (suite *StorageTestSuite) SetupTest() {
	require.NoError(suite.T(), suite.db.DeleteAllData(suite.ctx))
}

func (suite *StorageTestSuite) addUser(phone string) dbconnector.User {
	user := dbconnector.User{Name: "Ayesha", PhoneNumber: &phone}
	suite.Require().NoError(suite.db.AddUser(suite.ctx, &user))
	return user
}

func (suite *StorageTestSuite) addTierWithReward(name string, requirement int, rewardType dbconnector.RewardType) (dbconnector.Tier, dbconnector.Reward) {
	tier := dbconnector.Tier{Name: name, VisitRequirement: requirement, IsActive: true}
	suite.Require().NoError(suite.db.AddTier(suite.ctx, &tier))
	reward := dbconnector.Reward{TierID: tier.ID, Name: name + " reward", RewardType: rewardType, IsActive: true}
	if rewardType == dbconnector.RewardDiscount {
		reward.Value = decimal.NewNullDecimal(decimal.NewFromInt(15))
	}
	suite.Require().NoError(suite.db.AddReward(suite.ctx, &reward))
	return tier, reward
}

func (suite *StorageTestSuite) TestUserUniqueness() {
	suite.addUser("+923001234567")

	dup := dbconnector.User{Name: "Other", PhoneNumber: ptr("+923001234567")}
	err := suite.db.AddUser(suite.ctx, &dup)
	suite.Equal(loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))

	var user dbconnector.User
	err = suite.db.GetUserByUserID(suite.ctx, 999, &user)
	suite.Equal(loyaltyerrors.KindNotFound, loyaltyerrors.KindOf(err))
}

func (suite *StorageTestSuite) TestRecordVisitIdempotency() {
	user := suite.addUser("+923001234567")

	var visit dbconnector.Visit
	var stored dbconnector.User
	created, err := suite.db.RecordVisit(suite.ctx, user.ID, "key-1", &visit, &stored)
	suite.Require().NoError(err)
	suite.True(created)
	suite.Equal(1, visit.VisitNumber)
	suite.Equal(dbconnector.RewardStatusPending, visit.RewardStatus)

	var again dbconnector.Visit
	created, err = suite.db.RecordVisit(suite.ctx, user.ID, "key-1", &again, &stored)
	suite.Require().NoError(err)
	suite.False(created)
	suite.Equal(visit.ID, again.ID)

	suite.Require().NoError(suite.db.GetUserByUserID(suite.ctx, user.ID, &stored))
	suite.Equal(1, stored.VisitCount)

	_, err = suite.db.RecordVisit(suite.ctx, 999, "key-2", &again, &stored)
	suite.Equal(loyaltyerrors.KindNotFound, loyaltyerrors.KindOf(err))
}

func (suite *StorageTestSuite) TestConcurrentVisitsGetDistinctNumbers() {
	user := suite.addUser("+923001234567")

	const n = 10
	var wg sync.WaitGroup
	numbers := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var visit dbconnector.Visit
			var stored dbconnector.User
			_, err := suite.db.RecordVisit(suite.ctx, user.ID, fmt.Sprintf("key-%d", i), &visit, &stored)
			if err == nil {
				numbers <- visit.VisitNumber
			}
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := map[int]bool{}
	for number := range numbers {
		suite.False(seen[number], "visit number %d handed out twice", number)
		seen[number] = true
	}
	suite.Len(seen, n)

	var stored dbconnector.User
	suite.Require().NoError(suite.db.GetUserByUserID(suite.ctx, user.ID, &stored))
	suite.Equal(n, stored.VisitCount)
}

func (suite *StorageTestSuite) TestSettleVisitOnce() {
	user := suite.addUser("+923001234567")
	_, reward := suite.addTierWithReward("Bronze", 1, dbconnector.RewardFreeCoffee)

	var visit dbconnector.Visit
	var stored dbconnector.User
	_, err := suite.db.RecordVisit(suite.ctx, user.ID, "key-1", &visit, &stored)
	suite.Require().NoError(err)

	grant := dbconnector.UserReward{UserID: user.ID, RewardID: reward.ID, VisitID: visit.ID, RewardType: reward.RewardType}
	err = suite.db.SettleVisit(suite.ctx, visit.ID, []dbconnector.RewardStatus{dbconnector.RewardStatusPending}, dbconnector.RewardStatusGranted, nil, &grant)
	suite.Require().NoError(err)
	suite.NotZero(grant.ID)

	second := dbconnector.UserReward{UserID: user.ID, RewardID: reward.ID, VisitID: visit.ID, RewardType: reward.RewardType}
	err = suite.db.SettleVisit(suite.ctx, visit.ID, []dbconnector.RewardStatus{dbconnector.RewardStatusPending}, dbconnector.RewardStatusGranted, nil, &second)
	suite.Equal(loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))

	var rewards []dbconnector.UserReward
	suite.Require().NoError(suite.db.GetUserRewardsByUserID(suite.ctx, user.ID, 0, 100, &rewards))
	suite.Len(rewards, 1)

	var unsettled []dbconnector.Visit
	suite.Require().NoError(suite.db.GetUnsettledVisits(suite.ctx, time.Now().Add(time.Hour), &unsettled))
	suite.Empty(unsettled)
}

func (suite *StorageTestSuite) TestMarkUserRewardUsedOnce() {
	user := suite.addUser("+923001234567")
	_, reward := suite.addTierWithReward("Bronze", 1, dbconnector.RewardFreeCoffee)

	var visit dbconnector.Visit
	var stored dbconnector.User
	_, err := suite.db.RecordVisit(suite.ctx, user.ID, "", &visit, &stored)
	suite.Require().NoError(err)
	grant := dbconnector.UserReward{UserID: user.ID, RewardID: reward.ID, VisitID: visit.ID, RewardType: reward.RewardType}
	suite.Require().NoError(suite.db.SettleVisit(suite.ctx, visit.ID, []dbconnector.RewardStatus{dbconnector.RewardStatusPending}, dbconnector.RewardStatusGranted, nil, &grant))

	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var used dbconnector.UserReward
	suite.Require().NoError(suite.db.MarkUserRewardUsed(suite.ctx, grant.ID, first, &used))
	suite.True(used.IsUsed)
	suite.Require().NotNil(used.UsedAt)

	err = suite.db.MarkUserRewardUsed(suite.ctx, grant.ID, first.Add(time.Hour), &used)
	suite.Equal(loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))
	suite.True(used.UsedAt.Equal(first))

	err = suite.db.MarkUserRewardUsed(suite.ctx, 999, first, &used)
	suite.Equal(loyaltyerrors.KindNotFound, loyaltyerrors.KindOf(err))
}

func (suite *StorageTestSuite) TestCatalogDeletePolicies() {
	tier, reward := suite.addTierWithReward("Gold", 10, dbconnector.RewardSpinner)
	option := dbconnector.SpinnerOption{RewardID: reward.ID, Name: "Cookie", RewardType: dbconnector.RewardFreeCoffee, Probability: 1, IsActive: true}
	suite.Require().NoError(suite.db.AddSpinnerOption(suite.ctx, &option))

	err := suite.db.DeleteTier(suite.ctx, tier.ID)
	suite.Equal(loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))

	suite.Require().NoError(suite.db.DeleteReward(suite.ctx, reward.ID))
	var options []dbconnector.SpinnerOption
	suite.Require().NoError(suite.db.GetSpinnerOptions(suite.ctx, reward.ID, &options))
	suite.Empty(options)

	suite.Require().NoError(suite.db.DeleteTier(suite.ctx, tier.ID))
	err = suite.db.DeleteTier(suite.ctx, tier.ID)
	suite.Equal(loyaltyerrors.KindNotFound, loyaltyerrors.KindOf(err))
}

func (suite *StorageTestSuite) TestDeleteRewardWithHistory() {
	user := suite.addUser("+923001234567")
	_, reward := suite.addTierWithReward("Bronze", 1, dbconnector.RewardFreeCoffee)

	var visit dbconnector.Visit
	var stored dbconnector.User
	_, err := suite.db.RecordVisit(suite.ctx, user.ID, "", &visit, &stored)
	suite.Require().NoError(err)
	grant := dbconnector.UserReward{UserID: user.ID, RewardID: reward.ID, VisitID: visit.ID, RewardType: reward.RewardType}
	suite.Require().NoError(suite.db.SettleVisit(suite.ctx, visit.ID, []dbconnector.RewardStatus{dbconnector.RewardStatusPending}, dbconnector.RewardStatusGranted, nil, &grant))

	err = suite.db.DeleteReward(suite.ctx, reward.ID)
	suite.Equal(loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))

	suite.Require().NoError(suite.db.DeleteUser(suite.ctx, user.ID))
	suite.Require().NoError(suite.db.DeleteReward(suite.ctx, reward.ID))
}

func (suite *StorageTestSuite) TestDeleteRewardWithPendingSpin() {
	user := suite.addUser("+923001234567")
	_, wheel := suite.addTierWithReward("Gold", 1, dbconnector.RewardSpinner)
	option := dbconnector.SpinnerOption{RewardID: wheel.ID, Name: "Cookie", RewardType: dbconnector.RewardFreeCoffee, Probability: 1, IsActive: true}
	suite.Require().NoError(suite.db.AddSpinnerOption(suite.ctx, &option))

	res, err := service.CheckoutLogic(suite.ctx, suite.db, service.NopNotifier{}, user.ID, "k1")
	suite.Require().NoError(err)
	suite.Require().Equal(models.StateAwaitingSpin, res.State)

	var pending int64
	suite.Require().NoError(suite.db.CountPendingSpins(suite.ctx, wheel.ID, &pending))
	suite.Equal(int64(1), pending)

	err = suite.db.DeleteReward(suite.ctx, wheel.ID)
	suite.Equal(loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))
	suite.ErrorIs(err, loyaltyerrors.ErrRewardHasPendingSpins)

	_, err = service.UpdateRewardLogic(suite.ctx, suite.db, wheel.ID, models.RewardRequest{TierID: wheel.TierID, Name: "Coffee", RewardType: dbconnector.RewardFreeCoffee})
	suite.ErrorIs(err, loyaltyerrors.ErrRewardHasPendingSpins)

	spin, err := service.SpinLogic(suite.ctx, suite.db, service.NewRandomSource(1), service.NopNotifier{}, models.SpinRequest{UserID: user.ID, RewardID: wheel.ID, VisitID: res.Visit.ID})
	suite.Require().NoError(err)
	suite.Equal(option.ID, spin.SelectedOption.ID)

	suite.Require().NoError(suite.db.CountPendingSpins(suite.ctx, wheel.ID, &pending))
	suite.Zero(pending)
}

func (suite *StorageTestSuite) TestCheckoutAgainstPostgres() {
	user := suite.addUser("+923001234567")
	suite.addTierWithReward("Bronze", 2, dbconnector.RewardFreeCoffee)
	suite.addTierWithReward("Silver", 4, dbconnector.RewardDiscount)

	var last models.CheckoutResult
	for i := 1; i <= 4; i++ {
		result, err := service.CheckoutLogic(suite.ctx, suite.db, service.NopNotifier{}, user.ID, fmt.Sprintf("visit-%d", i))
		suite.Require().NoError(err)
		last = result
	}
	suite.Require().NotNil(last.RewardEarned)
	// both tiers divide 4, the lower one wins
	suite.Equal(dbconnector.RewardFreeCoffee, last.RewardEarned.Type)
	suite.Equal("Bronze", last.RewardEarned.TierName)
	suite.Equal(4, last.User.CurrentTier)

	var rewards []dbconnector.UserReward
	suite.Require().NoError(suite.db.GetUserRewardsByUserID(suite.ctx, user.ID, 0, 100, &rewards))
	suite.Len(rewards, 2)
}

func (suite *StorageTestSuite) TestAppSettingsLatestActive() {
	var settings dbconnector.AppSettings
	err := suite.db.GetAppSettings(suite.ctx, &settings)
	suite.Equal(loyaltyerrors.KindNotFound, loyaltyerrors.KindOf(err))

	first := dbconnector.AppSettings{CafeName: "One", IsActive: true}
	second := dbconnector.AppSettings{CafeName: "Two", IsActive: true}
	suite.Require().NoError(suite.db.SaveAppSettings(suite.ctx, &first))
	suite.Require().NoError(suite.db.SaveAppSettings(suite.ctx, &second))

	suite.Require().NoError(suite.db.GetAppSettings(suite.ctx, &settings))
	suite.Equal("Two", settings.CafeName)
}

func ptr(s string) *string { return &s }

func TestDecimalValuesMarshalAsNumbers(t *testing.T) {
	reward := dbconnector.Reward{Name: "Half off", RewardType: dbconnector.RewardDiscount, Value: decimal.NewNullDecimal(decimal.RequireFromString("12.5"))}
	body, err := json.Marshal(reward)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"value":12.5`)

	body, err = json.Marshal(dbconnector.SpinnerOption{Name: "Coffee", RewardType: dbconnector.RewardFreeCoffee})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"value":null`)
}

func TestStorageTestSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}
