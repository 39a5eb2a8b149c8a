package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

var unsettled = []dbconnector.RewardStatus{dbconnector.RewardStatusPending, dbconnector.RewardStatusFailed}

// CheckoutLogic records a visit for the user and settles its reward.
//
// The visit is durable as soon as it is recorded: a failure afterwards is
// returned as a consistency error and the visit stays PENDING or FAILED
// until a retry with the same idempotency key or the reconciler settles it.
// A spinner reward leaves the checkout in AWAITING_SPIN.
func CheckoutLogic(ctx context.Context, storage Storage, notifier Notifier, userID uint, idempotencyKey string) (models.CheckoutResult, error) {
	result := models.CheckoutResult{State: models.StateInitiated}

	var (
		visit dbconnector.Visit
		user  dbconnector.User
	)
	created, err := recordVisit(ctx, storage, userID, idempotencyKey, &visit, &user)
	if err != nil {
		return result, err
	}
	result.State = models.StateVisitRecorded
	result.Visit = visit
	result.User = user

	if created {
		log.Info().Uint("user_id", userID).Uint("visit_id", visit.ID).Int("visit_number", visit.VisitNumber).Msg("visit recorded")
	} else {
		result.Replayed = true
		log.Info().Uint("user_id", userID).Uint("visit_id", visit.ID).Str("reward_status", string(visit.RewardStatus)).Msg("checkout replayed for idempotency key")
	}

	return settleVisit(ctx, storage, notifier, result)
}

// recordVisit retries once when the visit increment lost a race.
func recordVisit(ctx context.Context, storage Storage, userID uint, idempotencyKey string, visit *dbconnector.Visit, user *dbconnector.User) (bool, error) {
	created, err := storage.RecordVisit(ctx, userID, idempotencyKey, visit, user)
	if loyaltyerrors.KindOf(err) == loyaltyerrors.KindConcurrency {
		log.Warn().Err(err).Uint("user_id", userID).Msg("visit increment conflicted, retrying once")
		created, err = storage.RecordVisit(ctx, userID, idempotencyKey, visit, user)
	}
	return created, err
}

// settleVisit evaluates and grants the reward of a recorded visit. A visit
// that is already settled is only described. The customer is notified by the
// call that moves the visit out of PENDING or FAILED, whichever caller it is.
func settleVisit(ctx context.Context, storage Storage, notifier Notifier, result models.CheckoutResult) (models.CheckoutResult, error) {
	visit, user := result.Visit, result.User

	var tiers []dbconnector.Tier
	if err := storage.GetActiveTiers(ctx, &tiers); err != nil {
		return failSettle(ctx, storage, result, err)
	}

	if visit.RewardStatus.Settled() {
		return describeSettled(ctx, storage, result, tiers)
	}

	rewards, err := activeRewards(ctx, storage, tiers)
	if err != nil {
		return failSettle(ctx, storage, result, err)
	}

	updateCurrentTier(ctx, storage, &result.User, tiers)

	eligibility, err := Evaluate(visit.VisitNumber-1, tiers, rewards)
	if err != nil {
		return failSettle(ctx, storage, result, err)
	}
	result.State = models.StateEvaluated
	result.Message = fmt.Sprintf("Visit recorded successfully for %s", user.Name)

	if !eligibility.Granted() {
		if err := storage.SettleVisit(ctx, visit.ID, unsettled, dbconnector.RewardStatusNone, nil, nil); err != nil {
			return settleConflictOrFail(ctx, storage, result, tiers, err)
		}
		result.Visit.RewardStatus = dbconnector.RewardStatusNone
		result.State = models.StateFinalized
		result.Success = true

		next, remaining, ok := NextTier(visit.VisitNumber, tiers)
		if ok {
			result.Message += fmt.Sprintf(". You need %d more %s to reach %s tier.", remaining, plural(remaining, "visit"), next.Name)
			notifyUser(notifier, user, TierProgressText(user.Name, visit.VisitNumber, next.Name, remaining))
		} else if len(tiers) > 0 {
			result.Message += ". You've reached the highest tier!"
		}
		return result, nil
	}

	reward, tier := *eligibility.Reward, *eligibility.Tier
	switch prize := eligibility.Prize.(type) {
	case Spinner:
		rewardID := reward.ID
		if err := storage.SettleVisit(ctx, visit.ID, unsettled, dbconnector.RewardStatusAwaitingSpin, &rewardID, nil); err != nil {
			return settleConflictOrFail(ctx, storage, result, tiers, err)
		}
		result.Visit.RewardStatus = dbconnector.RewardStatusAwaitingSpin
		result.Visit.PendingRewardID = &rewardID
		result.State = models.StateAwaitingSpin
		log.Info().Uint("visit_id", visit.ID).Uint("reward_id", rewardID).Msg("awaiting spin")

	case FreeCoffee, Discount:
		userReward := dbconnector.UserReward{
			UserID:     user.ID,
			RewardID:   reward.ID,
			VisitID:    visit.ID,
			RewardType: prize.Type(),
			Value:      prizeValue(prize),
		}
		if err := storage.SettleVisit(ctx, visit.ID, unsettled, dbconnector.RewardStatusGranted, nil, &userReward); err != nil {
			return settleConflictOrFail(ctx, storage, result, tiers, err)
		}
		result.Visit.RewardStatus = dbconnector.RewardStatusGranted
		result.State = models.StateRewardGranted
		log.Info().Uint("visit_id", visit.ID).Uint("user_reward_id", userReward.ID).Str("reward_type", string(prize.Type())).Msg("reward granted")
		result.State = models.StateFinalized
		result.RewardEarned = rewardEarned(eligibility.Prize, reward, tier, visit, &userReward)
		result.Message += checkoutRewardMessage(eligibility.Prize, tier, visit.VisitNumber)
		result.Success = true
		notifyUser(notifier, user, RewardNotificationText(user.Name, prize.Type(), tier.Name, visit.VisitNumber))
		return result, nil

	default:
		return failSettle(ctx, storage, result, loyaltyerrors.Validation("checkout", loyaltyerrors.ErrInvalidRewardType))
	}

	result.RewardEarned = rewardEarned(eligibility.Prize, reward, tier, visit, nil)
	result.Message += checkoutRewardMessage(eligibility.Prize, tier, visit.VisitNumber)
	result.Success = true
	notifyUser(notifier, user, RewardNotificationText(user.Name, dbconnector.RewardSpinner, tier.Name, visit.VisitNumber))
	return result, nil
}

func activeRewards(ctx context.Context, storage Storage, tiers []dbconnector.Tier) ([]dbconnector.Reward, error) {
	var all []dbconnector.Reward
	for _, t := range tiers {
		var rewards []dbconnector.Reward
		if err := storage.GetActiveRewardsByTier(ctx, t.ID, &rewards); err != nil {
			return nil, err
		}
		all = append(all, rewards...)
	}
	return all, nil
}

// updateCurrentTier refreshes the cached tier of the user. The cache is
// recomputed on every checkout, so a failed write is only logged.
func updateCurrentTier(ctx context.Context, storage Storage, user *dbconnector.User, tiers []dbconnector.Tier) {
	tier, err := TierFor(user.VisitCount, tiers)
	if err != nil || tier == user.CurrentTier {
		return
	}
	if err := storage.UpdateUserTier(ctx, user.ID, tier); err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to update current tier")
		return
	}
	log.Info().Uint("user_id", user.ID).Int("from", user.CurrentTier).Int("to", tier).Msg("tier changed")
	user.CurrentTier = tier
}

// failSettle marks the visit FAILED and reports the inconsistency.
func failSettle(ctx context.Context, storage Storage, result models.CheckoutResult, cause error) (models.CheckoutResult, error) {
	visitID := result.Visit.ID
	if result.Visit.RewardStatus == dbconnector.RewardStatusPending {
		if err := storage.SettleVisit(ctx, visitID, []dbconnector.RewardStatus{dbconnector.RewardStatusPending}, dbconnector.RewardStatusFailed, nil, nil); err != nil {
			log.Warn().Err(err).Uint("visit_id", visitID).Msg("failed to mark visit as failed")
		} else {
			result.Visit.RewardStatus = dbconnector.RewardStatusFailed
		}
	}
	log.Error().Err(cause).Uint("visit_id", visitID).Uint("user_id", result.User.ID).Msg("visit recorded but reward not settled")
	result.Success = false
	return result, loyaltyerrors.Consistency("checkout", fmt.Errorf("%w (visit %d): %w", loyaltyerrors.ErrRewardGrantFailed, visitID, cause))
}

// settleConflictOrFail handles a failed settle write. A conflict means the
// visit was settled concurrently, so the stored outcome is described instead.
func settleConflictOrFail(ctx context.Context, storage Storage, result models.CheckoutResult, tiers []dbconnector.Tier, err error) (models.CheckoutResult, error) {
	if loyaltyerrors.KindOf(err) != loyaltyerrors.KindConflict {
		return failSettle(ctx, storage, result, err)
	}
	var visit dbconnector.Visit
	if getErr := storage.GetVisit(ctx, result.Visit.ID, &visit); getErr != nil {
		return failSettle(ctx, storage, result, getErr)
	}
	result.Visit = visit
	if !visit.RewardStatus.Settled() {
		return failSettle(ctx, storage, result, err)
	}
	return describeSettled(ctx, storage, result, tiers)
}

// describeSettled rebuilds the checkout result of a visit whose reward was
// settled earlier.
func describeSettled(ctx context.Context, storage Storage, result models.CheckoutResult, tiers []dbconnector.Tier) (models.CheckoutResult, error) {
	visit, user := result.Visit, result.User
	result.Message = fmt.Sprintf("Visit recorded successfully for %s", user.Name)
	result.State = models.StateFinalized
	result.Success = true

	var rewardID uint
	var userReward *dbconnector.UserReward
	switch visit.RewardStatus {
	case dbconnector.RewardStatusNone:
		return result, nil
	case dbconnector.RewardStatusAwaitingSpin:
		if visit.PendingRewardID == nil {
			return result, loyaltyerrors.Consistency("checkout", fmt.Errorf("visit %d awaits a spin without reward", visit.ID))
		}
		rewardID = *visit.PendingRewardID
		result.State = models.StateAwaitingSpin
	case dbconnector.RewardStatusGranted, dbconnector.RewardStatusSpun:
		var ur dbconnector.UserReward
		if err := storage.GetUserRewardByVisit(ctx, visit.ID, &ur); err != nil {
			return result, loyaltyerrors.Consistency("checkout", fmt.Errorf("visit %d settled without reward: %w", visit.ID, err))
		}
		userReward = &ur
		rewardID = ur.RewardID
	}

	var reward dbconnector.Reward
	if err := storage.GetReward(ctx, rewardID, &reward); err != nil {
		return result, err
	}
	tier := tierByID(reward.TierID, tiers)
	if tier.ID == 0 {
		if err := storage.GetTier(ctx, reward.TierID, &tier); err != nil {
			return result, err
		}
	}

	var prize Prize = Spinner{RewardID: reward.ID}
	if userReward != nil {
		p, err := userRewardPrize(*userReward)
		if err != nil {
			return result, loyaltyerrors.Consistency("checkout", err)
		}
		prize = p
	}
	result.RewardEarned = rewardEarned(prize, reward, tier, visit, userReward)
	result.Message += checkoutRewardMessage(prize, tier, visit.VisitNumber)
	return result, nil
}

// userRewardPrize reads the prize back from a granted user reward.
func userRewardPrize(ur dbconnector.UserReward) (Prize, error) {
	switch ur.RewardType {
	case dbconnector.RewardFreeCoffee:
		return FreeCoffee{}, nil
	case dbconnector.RewardDiscount:
		d, err := discountOf(ur.Value)
		if err != nil {
			return nil, fmt.Errorf("user reward %d: %w", ur.ID, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("user reward %d: %w", ur.ID, loyaltyerrors.ErrInvalidRewardType)
	}
}

func tierByID(tierID uint, tiers []dbconnector.Tier) dbconnector.Tier {
	for _, t := range tiers {
		if t.ID == tierID {
			return t
		}
	}
	return dbconnector.Tier{}
}

func rewardEarned(prize Prize, reward dbconnector.Reward, tier dbconnector.Tier, visit dbconnector.Visit, userReward *dbconnector.UserReward) *models.RewardEarned {
	earned := &models.RewardEarned{
		Type:     prize.Type(),
		RewardID: reward.ID,
		VisitID:  visit.ID,
		TierName: tier.Name,
	}
	if userReward != nil {
		id := userReward.ID
		earned.UserRewardID = &id
	}
	switch p := prize.(type) {
	case FreeCoffee:
		earned.Message = fmt.Sprintf("Free coffee earned at %s tier!", tier.Name)
	case Discount:
		pct := p.Percentage
		earned.DiscountPercentage = &pct
		earned.Message = fmt.Sprintf("%s%% discount earned at %s tier!", pct.String(), tier.Name)
	case Spinner:
		earned.Message = fmt.Sprintf("Spin the wheel to get your %s tier reward!", tier.Name)
	}
	return earned
}

func checkoutRewardMessage(prize Prize, tier dbconnector.Tier, visitNumber int) string {
	switch p := prize.(type) {
	case FreeCoffee:
		return fmt.Sprintf("! 🎉 Congratulations! You've earned a FREE COFFEE at %s tier (visit #%d)!", tier.Name, visitNumber)
	case Discount:
		return fmt.Sprintf("! 🎉 Congratulations! You've earned a %s%% DISCOUNT at %s tier (visit #%d)!", p.Percentage.String(), tier.Name, visitNumber)
	case Spinner:
		return fmt.Sprintf("! 🎉 Congratulations! You've reached %d visits! Spin the wheel to get your %s tier reward!", visitNumber, tier.Name)
	}
	return ""
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
