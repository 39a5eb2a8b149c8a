package service

import (
	"context"
	"strings"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func ValidateTier(tier dbconnector.Tier) error {
	if strings.TrimSpace(tier.Name) == "" {
		return loyaltyerrors.Validation("tier", loyaltyerrors.ErrMissingName)
	}
	if tier.VisitRequirement <= 0 {
		return loyaltyerrors.Validation("tier", loyaltyerrors.ErrInvalidVisitRequirement)
	}
	return nil
}

func ValidateReward(reward dbconnector.Reward) error {
	if strings.TrimSpace(reward.Name) == "" {
		return loyaltyerrors.Validation("reward", loyaltyerrors.ErrMissingName)
	}
	_, err := RewardPrize(reward)
	return err
}

func ValidateSpinnerOption(option dbconnector.SpinnerOption) error {
	if strings.TrimSpace(option.Name) == "" {
		return loyaltyerrors.Validation("spinner option", loyaltyerrors.ErrMissingName)
	}
	if !validWeight(option.Probability) {
		return loyaltyerrors.Validation("spinner option", loyaltyerrors.ErrInvalidProbability)
	}
	_, err := OptionPrize(option)
	return err
}

// Tiers

func CreateTierLogic(ctx context.Context, storage Storage, req models.TierRequest) (dbconnector.Tier, error) {
	tier := dbconnector.Tier{
		Name:             strings.TrimSpace(req.Name),
		VisitRequirement: req.VisitRequirement,
		Description:      req.Description,
		IsActive:         boolOr(req.IsActive, true),
	}
	if err := ValidateTier(tier); err != nil {
		return tier, err
	}
	err := storage.AddTier(ctx, &tier)
	return tier, err
}

func UpdateTierLogic(ctx context.Context, storage Storage, tierID uint, req models.TierRequest) (dbconnector.Tier, error) {
	var tier dbconnector.Tier
	if err := storage.GetTier(ctx, tierID, &tier); err != nil {
		return tier, err
	}
	tier.Name = strings.TrimSpace(req.Name)
	tier.VisitRequirement = req.VisitRequirement
	tier.Description = req.Description
	tier.IsActive = boolOr(req.IsActive, tier.IsActive)
	if err := ValidateTier(tier); err != nil {
		return tier, err
	}
	err := storage.UpdateTier(ctx, &tier)
	return tier, err
}

// Rewards

func CreateRewardLogic(ctx context.Context, storage Storage, req models.RewardRequest) (dbconnector.Reward, error) {
	reward := dbconnector.Reward{
		TierID:      req.TierID,
		Name:        strings.TrimSpace(req.Name),
		RewardType:  req.RewardType,
		Value:       req.Value,
		Description: req.Description,
		IsActive:    boolOr(req.IsActive, true),
	}
	if err := ValidateReward(reward); err != nil {
		return reward, err
	}
	var tier dbconnector.Tier
	if err := storage.GetTier(ctx, req.TierID, &tier); err != nil {
		return reward, err
	}
	err := storage.AddReward(ctx, &reward)
	return reward, err
}

func UpdateRewardLogic(ctx context.Context, storage Storage, rewardID uint, req models.RewardRequest) (dbconnector.Reward, error) {
	var reward dbconnector.Reward
	if err := storage.GetReward(ctx, rewardID, &reward); err != nil {
		return reward, err
	}
	// visits awaiting a spin resolve against this reward as a spinner of its tier
	if reward.RewardType == dbconnector.RewardSpinner && (req.RewardType != dbconnector.RewardSpinner || req.TierID != reward.TierID) {
		var pending int64
		if err := storage.CountPendingSpins(ctx, rewardID, &pending); err != nil {
			return reward, err
		}
		if pending > 0 {
			return reward, loyaltyerrors.Conflict("update reward", loyaltyerrors.ErrRewardHasPendingSpins)
		}
	}
	reward.TierID = req.TierID
	reward.Name = strings.TrimSpace(req.Name)
	reward.RewardType = req.RewardType
	reward.Value = req.Value
	reward.Description = req.Description
	reward.IsActive = boolOr(req.IsActive, reward.IsActive)
	if err := ValidateReward(reward); err != nil {
		return reward, err
	}
	var tier dbconnector.Tier
	if err := storage.GetTier(ctx, req.TierID, &tier); err != nil {
		return reward, err
	}
	err := storage.UpdateReward(ctx, &reward)
	return reward, err
}

// Spinner options

func spinnerOptionFromRequest(option *dbconnector.SpinnerOption, req models.SpinnerOptionRequest) {
	option.Name = strings.TrimSpace(req.Name)
	option.RewardType = req.RewardType
	option.Value = req.Value
	option.Description = req.Description
	if req.Probability != nil {
		option.Probability = *req.Probability
	} else if option.Probability == 0 {
		option.Probability = 1.0
	}
}

func CreateSpinnerOptionLogic(ctx context.Context, storage Storage, rewardID uint, req models.SpinnerOptionRequest) (dbconnector.SpinnerOption, error) {
	option := dbconnector.SpinnerOption{RewardID: rewardID, IsActive: boolOr(req.IsActive, true)}
	spinnerOptionFromRequest(&option, req)
	if err := ValidateSpinnerOption(option); err != nil {
		return option, err
	}
	var reward dbconnector.Reward
	if err := storage.GetReward(ctx, rewardID, &reward); err != nil {
		return option, err
	}
	if reward.RewardType != dbconnector.RewardSpinner {
		return option, loyaltyerrors.Validation("spinner option", loyaltyerrors.ErrNotSpinnerReward)
	}
	err := storage.AddSpinnerOption(ctx, &option)
	return option, err
}

func UpdateSpinnerOptionLogic(ctx context.Context, storage Storage, optionID uint, req models.SpinnerOptionRequest) (dbconnector.SpinnerOption, error) {
	var option dbconnector.SpinnerOption
	if err := storage.GetSpinnerOption(ctx, optionID, &option); err != nil {
		return option, err
	}
	spinnerOptionFromRequest(&option, req)
	option.IsActive = boolOr(req.IsActive, option.IsActive)
	if err := ValidateSpinnerOption(option); err != nil {
		return option, err
	}
	err := storage.UpdateSpinnerOption(ctx, &option)
	return option, err
}
