package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
)

// Prize is what a reward or a spinner option hands out. The set of
// implementations is closed: FreeCoffee, Discount and Spinner.
type Prize interface {
	Type() dbconnector.RewardType
	isPrize()
}

type FreeCoffee struct{}

type Discount struct {
	Percentage decimal.Decimal
}

// Spinner defers the concrete prize to a spin over the reward's options.
type Spinner struct {
	RewardID uint
}

func (FreeCoffee) Type() dbconnector.RewardType { return dbconnector.RewardFreeCoffee }
func (Discount) Type() dbconnector.RewardType   { return dbconnector.RewardDiscount }
func (Spinner) Type() dbconnector.RewardType    { return dbconnector.RewardSpinner }

func (FreeCoffee) isPrize() {}
func (Discount) isPrize()   {}
func (Spinner) isPrize()    {}

var (
	minDiscount = decimal.NewFromInt(1)
	maxDiscount = decimal.NewFromInt(100)
)

func discountOf(value decimal.NullDecimal) (Discount, error) {
	if !value.Valid || value.Decimal.LessThan(minDiscount) || value.Decimal.GreaterThan(maxDiscount) {
		return Discount{}, loyaltyerrors.ErrMissingDiscountValue
	}
	return Discount{Percentage: value.Decimal}, nil
}

// RewardPrize converts a catalog reward into its prize.
func RewardPrize(reward dbconnector.Reward) (Prize, error) {
	switch reward.RewardType {
	case dbconnector.RewardFreeCoffee:
		return FreeCoffee{}, nil
	case dbconnector.RewardDiscount:
		d, err := discountOf(reward.Value)
		if err != nil {
			return nil, loyaltyerrors.Validation(fmt.Sprintf("reward %d", reward.ID), err)
		}
		return d, nil
	case dbconnector.RewardSpinner:
		return Spinner{RewardID: reward.ID}, nil
	default:
		return nil, loyaltyerrors.Validation(fmt.Sprintf("reward %d", reward.ID), loyaltyerrors.ErrInvalidRewardType)
	}
}

// OptionPrize converts a spinner option into its prize. Options cannot nest
// another spinner.
func OptionPrize(option dbconnector.SpinnerOption) (Prize, error) {
	switch option.RewardType {
	case dbconnector.RewardFreeCoffee:
		return FreeCoffee{}, nil
	case dbconnector.RewardDiscount:
		d, err := discountOf(option.Value)
		if err != nil {
			return nil, loyaltyerrors.Validation(fmt.Sprintf("spinner option %d", option.ID), err)
		}
		return d, nil
	default:
		return nil, loyaltyerrors.Validation(fmt.Sprintf("spinner option %d", option.ID), loyaltyerrors.ErrInvalidRewardType)
	}
}

// prizeValue is the value stored on the granted user reward.
func prizeValue(p Prize) decimal.NullDecimal {
	switch p := p.(type) {
	case Discount:
		return decimal.NewNullDecimal(p.Percentage)
	default:
		return decimal.NullDecimal{}
	}
}
