package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() float64
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomSource returns a seeded source that is safe for concurrent use.
func NewRandomSource(seed int64) RandomSource {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func validWeight(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// SelectOption draws one option with probability proportional to its weight.
// Options are walked in creation order; inactive options and options with a
// non-positive or non-finite weight are never selected.
func SelectOption(options []dbconnector.SpinnerOption, rnd RandomSource) (dbconnector.SpinnerOption, error) {
	candidates := make([]dbconnector.SpinnerOption, 0, len(options))
	total := 0.0
	for _, o := range options {
		if !o.IsActive || !validWeight(o.Probability) {
			continue
		}
		candidates = append(candidates, o)
		total += o.Probability
	}
	if len(candidates) == 0 {
		return dbconnector.SpinnerOption{}, loyaltyerrors.Validation("spin", loyaltyerrors.ErrNoSpinnerOptions)
	}
	if math.IsInf(total, 0) {
		return dbconnector.SpinnerOption{}, loyaltyerrors.Validation("spin", loyaltyerrors.ErrInvalidProbability)
	}
	slices.SortStableFunc(candidates, func(a, b dbconnector.SpinnerOption) int {
		return cmp.Compare(a.ID, b.ID)
	})

	r := rnd.Float64() * total
	acc := 0.0
	for _, o := range candidates {
		acc += o.Probability
		if acc > r {
			return o, nil
		}
	}
	// rounding can leave r at the very top of the range
	return candidates[len(candidates)-1], nil
}

// SpinLogic resolves the spinner reward earned on a visit into a concrete
// option and grants it. Each visit can be spun once.
func SpinLogic(ctx context.Context, storage Storage, rnd RandomSource, notifier Notifier, req models.SpinRequest) (models.SpinResult, error) {
	var result models.SpinResult

	var user dbconnector.User
	if err := storage.GetUserByUserID(ctx, req.UserID, &user); err != nil {
		return result, err
	}
	var reward dbconnector.Reward
	if err := storage.GetReward(ctx, req.RewardID, &reward); err != nil {
		return result, err
	}
	if reward.RewardType != dbconnector.RewardSpinner {
		return result, loyaltyerrors.Validation("spin", loyaltyerrors.ErrNotSpinnerReward)
	}
	var visit dbconnector.Visit
	if err := storage.GetVisit(ctx, req.VisitID, &visit); err != nil {
		return result, err
	}
	if visit.UserID != user.ID {
		return result, loyaltyerrors.NotFound("spin", loyaltyerrors.ErrVisitNotFound)
	}

	switch visit.RewardStatus {
	case dbconnector.RewardStatusSpun:
		return result, loyaltyerrors.Conflict("spin", loyaltyerrors.ErrAlreadySpun)
	case dbconnector.RewardStatusAwaitingSpin:
		if visit.PendingRewardID == nil || *visit.PendingRewardID != reward.ID {
			return result, loyaltyerrors.Validation("spin", loyaltyerrors.ErrNoSpinPending)
		}
	default:
		return result, loyaltyerrors.Validation("spin", loyaltyerrors.ErrNoSpinPending)
	}

	var options []dbconnector.SpinnerOption
	if err := storage.GetActiveSpinnerOptions(ctx, reward.ID, &options); err != nil {
		return result, err
	}
	options = slices.DeleteFunc(options, func(o dbconnector.SpinnerOption) bool {
		if _, err := OptionPrize(o); err != nil {
			log.Warn().Err(err).Uint("reward_id", reward.ID).Msg("skipping malformed spinner option")
			return true
		}
		return false
	})

	option, err := SelectOption(options, rnd)
	if err != nil {
		log.Warn().Err(err).Uint("visit_id", visit.ID).Uint("reward_id", reward.ID).Msg("spin failed")
		return result, err
	}
	prize, err := OptionPrize(option)
	if err != nil {
		return result, err
	}

	optionID := option.ID
	userReward := dbconnector.UserReward{
		UserID:          user.ID,
		RewardID:        reward.ID,
		VisitID:         visit.ID,
		SpinnerOptionID: &optionID,
		RewardType:      prize.Type(),
		Value:           prizeValue(prize),
	}
	err = storage.SettleVisit(ctx, visit.ID, []dbconnector.RewardStatus{dbconnector.RewardStatusAwaitingSpin}, dbconnector.RewardStatusSpun, nil, &userReward)
	if loyaltyerrors.KindOf(err) == loyaltyerrors.KindConflict {
		return result, loyaltyerrors.Conflict("spin", loyaltyerrors.ErrAlreadySpun)
	}
	if err != nil {
		return result, err
	}
	log.Info().Uint("visit_id", visit.ID).Uint("option_id", option.ID).Uint("user_reward_id", userReward.ID).Msg("spin resolved")

	result.Success = true
	result.SelectedOption = option
	result.UserReward = userReward
	result.Message = fmt.Sprintf("🎉 Congratulations! You won: %s!", option.Name)
	if d, ok := prize.(Discount); ok {
		result.Message += fmt.Sprintf(" (%s%% discount)", d.Percentage.String())
	}
	notifyUser(notifier, user, SpinWonText(user.Name, option.Name))
	return result, nil
}
