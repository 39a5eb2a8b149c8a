package service

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
)

// EligibilityResult describes what the next visit earns.
type EligibilityResult struct {
	NextVisitCount int
	// Eligible is true when some active tier requirement divides
	// NextVisitCount, even if that tier has no active reward.
	Eligible bool
	Tier     *dbconnector.Tier
	Reward   *dbconnector.Reward
	Prize    Prize
}

// Granted reports whether a reward is actually handed out.
func (r EligibilityResult) Granted() bool {
	return r.Reward != nil
}

// sortedActiveTiers filters inactive tiers and orders the rest by visit
// requirement, then by id.
func sortedActiveTiers(tiers []dbconnector.Tier) ([]dbconnector.Tier, error) {
	active := make([]dbconnector.Tier, 0, len(tiers))
	for _, t := range tiers {
		if !t.IsActive {
			continue
		}
		if t.VisitRequirement <= 0 {
			return nil, loyaltyerrors.Validation(fmt.Sprintf("tier %d", t.ID), loyaltyerrors.ErrInvalidVisitRequirement)
		}
		active = append(active, t)
	}
	slices.SortStableFunc(active, func(a, b dbconnector.Tier) int {
		if c := cmp.Compare(a.VisitRequirement, b.VisitRequirement); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return active, nil
}

// Evaluate decides whether the visit following priorVisitCount earns a reward.
// The first active tier, in ascending requirement order, whose requirement
// divides the next visit count wins. Its first active reward (lowest id) is
// granted; a matching tier without active rewards grants nothing.
func Evaluate(priorVisitCount int, tiers []dbconnector.Tier, rewards []dbconnector.Reward) (EligibilityResult, error) {
	if priorVisitCount < 0 {
		return EligibilityResult{}, loyaltyerrors.Validation("evaluate", fmt.Errorf("negative visit count %d", priorVisitCount))
	}
	result := EligibilityResult{NextVisitCount: priorVisitCount + 1}

	active, err := sortedActiveTiers(tiers)
	if err != nil {
		return EligibilityResult{}, err
	}

	for i := range active {
		t := active[i]
		if result.NextVisitCount%t.VisitRequirement != 0 {
			continue
		}
		result.Eligible = true
		result.Tier = &t

		reward, ok := firstActiveReward(t.ID, rewards)
		if !ok {
			return result, nil
		}
		prize, err := RewardPrize(reward)
		if err != nil {
			return EligibilityResult{}, err
		}
		result.Reward = &reward
		result.Prize = prize
		return result, nil
	}
	return result, nil
}

func firstActiveReward(tierID uint, rewards []dbconnector.Reward) (dbconnector.Reward, bool) {
	var (
		best  dbconnector.Reward
		found bool
	)
	for _, r := range rewards {
		if r.TierID != tierID || !r.IsActive {
			continue
		}
		if !found || r.ID < best.ID {
			best = r
			found = true
		}
	}
	return best, found
}

// TierFor returns the visit requirement of the highest active tier reached by
// visitCount, or of the lowest active tier when none is reached yet. Zero
// means no active tiers exist.
func TierFor(visitCount int, tiers []dbconnector.Tier) (int, error) {
	active, err := sortedActiveTiers(tiers)
	if err != nil {
		return 0, err
	}
	if len(active) == 0 {
		return 0, nil
	}
	current := active[0].VisitRequirement
	for _, t := range active {
		if visitCount >= t.VisitRequirement {
			current = t.VisitRequirement
		}
	}
	return current, nil
}

// NextTier returns the next active tier above visitCount and how many visits
// are missing to reach it. ok is false when the highest tier is reached.
func NextTier(visitCount int, tiers []dbconnector.Tier) (tier dbconnector.Tier, remaining int, ok bool) {
	active, err := sortedActiveTiers(tiers)
	if err != nil {
		return dbconnector.Tier{}, 0, false
	}
	for _, t := range active {
		if t.VisitRequirement > visitCount {
			return t, t.VisitRequirement - visitCount, true
		}
	}
	return dbconnector.Tier{}, 0, false
}
