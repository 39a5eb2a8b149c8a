package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

// coffeeCafe grants a free coffee every fifth visit.
func coffeeCafe(t *testing.T) (*cafe, dbconnector.Tier, dbconnector.Reward) {
	c := newCafe()
	bronze := c.addTier(t, "Bronze", 5)
	coffee := c.addReward(t, bronze.ID, dbconnector.RewardFreeCoffee, "")
	return c, bronze, coffee
}

func TestCheckoutGrantsFreeCoffeeOnFifthVisit(t *testing.T) {
	ctx := context.Background()
	c, _, coffee := coffeeCafe(t)
	user := c.addUser(t, 4)

	res, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "visit-5")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.StateFinalized, res.State)
	assert.Equal(t, 5, res.Visit.VisitNumber)
	assert.Equal(t, 5, res.User.VisitCount)
	assert.Equal(t, 5, res.User.CurrentTier)
	assert.Equal(t, dbconnector.RewardStatusGranted, res.Visit.RewardStatus)
	require.NotNil(t, res.RewardEarned)
	assert.Equal(t, dbconnector.RewardFreeCoffee, res.RewardEarned.Type)
	assert.Equal(t, coffee.ID, res.RewardEarned.RewardID)
	assert.Equal(t, "Bronze", res.RewardEarned.TierName)
	assert.Contains(t, res.Message, "FREE COFFEE at Bronze tier (visit #5)")

	var rewards []dbconnector.UserReward
	require.NoError(t, c.storage.GetUserRewardsByUserID(ctx, user.ID, 0, 10, &rewards))
	require.Len(t, rewards, 1)
	assert.False(t, rewards[0].IsUsed)
	assert.Nil(t, rewards[0].UsedAt)
	assert.Equal(t, res.Visit.ID, rewards[0].VisitID)
	assert.Equal(t, *res.RewardEarned.UserRewardID, rewards[0].ID)

	sent := c.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, *user.PhoneNumber, sent[0].Phone)
	assert.Contains(t, sent[0].Body, "FREE COFFEE")
}

func TestCheckoutWithoutRewardReportsProgress(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 0)

	res, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StateFinalized, res.State)
	assert.Nil(t, res.RewardEarned)
	assert.Equal(t, dbconnector.RewardStatusNone, res.Visit.RewardStatus)
	assert.Equal(t, "Visit recorded successfully for Ayesha. You need 4 more visits to reach Bronze tier.", res.Message)

	sent := c.notifier.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Just 4 more visits to reach Bronze tier")
}

func TestCheckoutAtHighestTier(t *testing.T) {
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 5)

	res, err := CheckoutLogic(context.Background(), c.storage, nil, user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Visit recorded successfully for Ayesha. You've reached the highest tier!", res.Message)
}

func TestCheckoutDiscount(t *testing.T) {
	c := newCafe()
	silver := c.addTier(t, "Silver", 2)
	c.addReward(t, silver.ID, dbconnector.RewardDiscount, "15")
	user := c.addUser(t, 1)

	res, err := CheckoutLogic(context.Background(), c.storage, c.notifier, user.ID, "")
	require.NoError(t, err)
	require.NotNil(t, res.RewardEarned)
	require.NotNil(t, res.RewardEarned.DiscountPercentage)
	assert.Equal(t, "15", res.RewardEarned.DiscountPercentage.String())
	assert.Contains(t, res.Message, "15% DISCOUNT at Silver tier")
}

func TestCheckoutRetryDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 4)

	first, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "same-key")
	require.NoError(t, err)
	second, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "same-key")
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Visit.ID, second.Visit.ID)
	assert.Equal(t, first.RewardEarned.UserRewardID, second.RewardEarned.UserRewardID)
	assert.Equal(t, models.StateFinalized, second.State)

	var stored dbconnector.User
	require.NoError(t, c.storage.GetUserByUserID(ctx, user.ID, &stored))
	assert.Equal(t, 5, stored.VisitCount)

	var rewards []dbconnector.UserReward
	require.NoError(t, c.storage.GetUserRewardsByUserID(ctx, user.ID, 0, 10, &rewards))
	assert.Len(t, rewards, 1)
	// replays do not notify again
	assert.Len(t, c.notifier.messages(), 1)

	third, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "other-key")
	require.NoError(t, err)
	assert.Equal(t, 6, third.Visit.VisitNumber)
}

func TestCheckoutUnknownUser(t *testing.T) {
	c, _, _ := coffeeCafe(t)
	res, err := CheckoutLogic(context.Background(), c.storage, c.notifier, 999, "")
	assert.Equal(t, loyaltyerrors.KindNotFound, loyaltyerrors.KindOf(err))
	assert.ErrorIs(t, err, loyaltyerrors.ErrUserNotFound)
	assert.Equal(t, models.StateInitiated, res.State)
}

func TestCheckoutGrantFailureIsRecoverable(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 4)

	c.storage.FailNext("SettleVisit", errors.New("connection reset"))
	res, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "k")
	require.Error(t, err)
	assert.Equal(t, loyaltyerrors.KindConsistency, loyaltyerrors.KindOf(err))
	assert.ErrorIs(t, err, loyaltyerrors.ErrRewardGrantFailed)
	assert.False(t, res.Success)
	assert.Equal(t, dbconnector.RewardStatusFailed, res.Visit.RewardStatus)

	// the visit itself is durable
	var stored dbconnector.User
	require.NoError(t, c.storage.GetUserByUserID(ctx, user.ID, &stored))
	assert.Equal(t, 5, stored.VisitCount)

	settled, err := ReconcileVisitsLogic(ctx, c.storage, c.notifier, time.Minute, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	var rewards []dbconnector.UserReward
	require.NoError(t, c.storage.GetUserRewardsByUserID(ctx, user.ID, 0, 10, &rewards))
	require.Len(t, rewards, 1)

	var visit dbconnector.Visit
	require.NoError(t, c.storage.GetVisit(ctx, res.Visit.ID, &visit))
	assert.Equal(t, dbconnector.RewardStatusGranted, visit.RewardStatus)

	// nothing left to do
	settled, err = ReconcileVisitsLogic(ctx, c.storage, c.notifier, time.Minute, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, settled)
}

func TestCheckoutRetryCompletesFailedVisit(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 4)

	c.storage.FailNext("GetActiveRewardsByTier", errors.New("timeout"))
	_, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "k")
	require.Error(t, err)

	res, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "k")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, 5, res.Visit.VisitNumber)
	require.NotNil(t, res.RewardEarned)
	assert.Equal(t, dbconnector.RewardFreeCoffee, res.RewardEarned.Type)

	// the retry that granted the reward sends the sms, later replays do not
	require.Len(t, c.notifier.messages(), 1)
	assert.Contains(t, c.notifier.messages()[0].Body, "FREE COFFEE")

	_, err = CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "k")
	require.NoError(t, err)
	assert.Len(t, c.notifier.messages(), 1)
}

func TestReconcileRespectsGracePeriod(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 4)

	c.storage.FailNext("SettleVisit", errors.New("boom"))
	_, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "")
	require.Error(t, err)

	settled, err := ReconcileVisitsLogic(ctx, c.storage, c.notifier, time.Hour, time.Now())
	require.NoError(t, err)
	assert.Zero(t, settled)
}

func TestCheckoutRetriesLockConflictOnce(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 0)

	c.storage.FailNext("RecordVisit", loyaltyerrors.Concurrency("record visit", loyaltyerrors.ErrVisitLockConflict))
	res, err := CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Visit.VisitNumber)

	c.storage.FailNext("RecordVisit", loyaltyerrors.Concurrency("record visit", loyaltyerrors.ErrVisitLockConflict))
	c.storage.FailNext("RecordVisit", loyaltyerrors.Concurrency("record visit", loyaltyerrors.ErrVisitLockConflict))
	_, err = CheckoutLogic(ctx, c.storage, c.notifier, user.ID, "")
	assert.Equal(t, loyaltyerrors.KindConcurrency, loyaltyerrors.KindOf(err))
}

func TestCheckoutTierUpdateFailureIsNotFatal(t *testing.T) {
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 4)

	c.storage.FailNext("UpdateUserTier", errors.New("read only"))
	res, err := CheckoutLogic(context.Background(), c.storage, c.notifier, user.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotNil(t, res.RewardEarned)
}

func TestCheckoutConcurrentVisitsAreSerialized(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 0)

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := CheckoutLogic(ctx, c.storage, nil, user.ID, "")
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	var visits []dbconnector.Visit
	require.NoError(t, c.storage.GetVisitsByUserID(ctx, user.ID, 0, 100, &visits))
	require.Len(t, visits, n)
	seen := map[int]bool{}
	for _, v := range visits {
		assert.False(t, seen[v.VisitNumber], "visit number %d repeated", v.VisitNumber)
		seen[v.VisitNumber] = true
	}

	var rewards []dbconnector.UserReward
	require.NoError(t, c.storage.GetUserRewardsByUserID(ctx, user.ID, 0, 100, &rewards))
	assert.Len(t, rewards, n/5)
}
