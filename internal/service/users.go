package service

import (
	"context"
	"strings"
	"time"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

// NormalizePhone keeps the digits of a phone number and a leading plus.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizedPtr(s *string, normalize func(string) string) *string {
	if s == nil {
		return nil
	}
	v := normalize(*s)
	if v == "" {
		return nil
	}
	return &v
}

func RegisterUserLogic(ctx context.Context, storage Storage, req models.UserRequest) (dbconnector.User, error) {
	user := dbconnector.User{
		Name:        strings.TrimSpace(req.Name),
		PhoneNumber: normalizedPtr(req.PhoneNumber, NormalizePhone),
		Email:       normalizedPtr(req.Email, NormalizeEmail),
		Address:     strings.TrimSpace(req.Address),
	}
	if user.Name == "" {
		return user, loyaltyerrors.Validation("register user", loyaltyerrors.ErrMissingName)
	}
	if user.PhoneNumber == nil && user.Email == nil {
		return user, loyaltyerrors.Validation("register user", loyaltyerrors.ErrMissingContact)
	}
	err := storage.AddUser(ctx, &user)
	return user, err
}

func UpdateUserLogic(ctx context.Context, storage Storage, userID uint, req models.UserUpdateRequest) (dbconnector.User, error) {
	var user dbconnector.User
	if err := storage.GetUserByUserID(ctx, userID, &user); err != nil {
		return user, err
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = normalizedPtr(req.PhoneNumber, NormalizePhone)
	}
	if req.Email != nil {
		user.Email = normalizedPtr(req.Email, NormalizeEmail)
	}
	if req.Address != nil {
		user.Address = strings.TrimSpace(*req.Address)
	}
	if user.Name == "" {
		return user, loyaltyerrors.Validation("update user", loyaltyerrors.ErrMissingName)
	}
	if user.PhoneNumber == nil && user.Email == nil {
		return user, loyaltyerrors.Validation("update user", loyaltyerrors.ErrMissingContact)
	}
	err := storage.UpdateUser(ctx, &user)
	return user, err
}

func FindUserByPhoneLogic(ctx context.Context, storage Storage, phone string) (dbconnector.User, error) {
	var user dbconnector.User
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return user, loyaltyerrors.Validation("find user", loyaltyerrors.ErrMissingContact)
	}
	err := storage.GetUserByPhone(ctx, normalized, &user)
	return user, err
}

func FindUserByEmailLogic(ctx context.Context, storage Storage, email string) (dbconnector.User, error) {
	var user dbconnector.User
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return user, loyaltyerrors.Validation("find user", loyaltyerrors.ErrMissingContact)
	}
	err := storage.GetUserByEmail(ctx, normalized, &user)
	return user, err
}

// RedeemUserRewardLogic marks an earned reward as used. A second call for the
// same reward fails with a conflict and leaves used_at untouched.
func RedeemUserRewardLogic(ctx context.Context, storage Storage, userRewardID uint, now time.Time) (dbconnector.UserReward, error) {
	var userReward dbconnector.UserReward
	err := storage.MarkUserRewardUsed(ctx, userRewardID, now.UTC(), &userReward)
	return userReward, err
}
