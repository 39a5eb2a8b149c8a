package service

import (
	"context"
	"time"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
)

type Storage interface {
	AddUser(ctx context.Context, newUser *dbconnector.User) error
	GetUserByUserID(ctx context.Context, userID uint, user *dbconnector.User) error
	GetUserByPhone(ctx context.Context, phone string, user *dbconnector.User) error
	GetUserByEmail(ctx context.Context, email string, user *dbconnector.User) error
	GetUsers(ctx context.Context, offset, limit int, users *[]dbconnector.User) error
	UpdateUser(ctx context.Context, updUser *dbconnector.User) error
	UpdateUserTier(ctx context.Context, userID uint, tier int) error
	DeleteUser(ctx context.Context, userID uint) error

	RecordVisit(ctx context.Context, userID uint, idempotencyKey string, visit *dbconnector.Visit, user *dbconnector.User) (bool, error)
	GetVisit(ctx context.Context, visitID uint, visit *dbconnector.Visit) error
	GetVisitsByUserID(ctx context.Context, userID uint, offset, limit int, visits *[]dbconnector.Visit) error
	GetUnsettledVisits(ctx context.Context, before time.Time, visits *[]dbconnector.Visit) error
	SettleVisit(ctx context.Context, visitID uint, from []dbconnector.RewardStatus, to dbconnector.RewardStatus, pendingRewardID *uint, userReward *dbconnector.UserReward) error

	GetActiveTiers(ctx context.Context, tiers *[]dbconnector.Tier) error
	GetTiers(ctx context.Context, offset, limit int, tiers *[]dbconnector.Tier) error
	GetTier(ctx context.Context, tierID uint, tier *dbconnector.Tier) error
	AddTier(ctx context.Context, tier *dbconnector.Tier) error
	UpdateTier(ctx context.Context, tier *dbconnector.Tier) error
	DeleteTier(ctx context.Context, tierID uint) error

	GetActiveRewardsByTier(ctx context.Context, tierID uint, rewards *[]dbconnector.Reward) error
	GetRewards(ctx context.Context, offset, limit int, rewards *[]dbconnector.Reward) error
	GetReward(ctx context.Context, rewardID uint, reward *dbconnector.Reward) error
	AddReward(ctx context.Context, reward *dbconnector.Reward) error
	UpdateReward(ctx context.Context, reward *dbconnector.Reward) error
	DeleteReward(ctx context.Context, rewardID uint) error
	CountPendingSpins(ctx context.Context, rewardID uint, count *int64) error

	GetActiveSpinnerOptions(ctx context.Context, rewardID uint, options *[]dbconnector.SpinnerOption) error
	GetSpinnerOptions(ctx context.Context, rewardID uint, options *[]dbconnector.SpinnerOption) error
	GetSpinnerOption(ctx context.Context, optionID uint, option *dbconnector.SpinnerOption) error
	AddSpinnerOption(ctx context.Context, option *dbconnector.SpinnerOption) error
	UpdateSpinnerOption(ctx context.Context, option *dbconnector.SpinnerOption) error
	DeleteSpinnerOption(ctx context.Context, optionID uint) error

	GetUserRewardsByUserID(ctx context.Context, userID uint, offset, limit int, userRewards *[]dbconnector.UserReward) error
	GetUserRewardByVisit(ctx context.Context, visitID uint, userReward *dbconnector.UserReward) error
	MarkUserRewardUsed(ctx context.Context, userRewardID uint, usedAt time.Time, userReward *dbconnector.UserReward) error

	GetAppSettings(ctx context.Context, settings *dbconnector.AppSettings) error
	SaveAppSettings(ctx context.Context, settings *dbconnector.AppSettings) error
	DeleteAppSettings(ctx context.Context, settingsID uint) error

	AddAdminUser(ctx context.Context, admin *dbconnector.AdminUser) error
	GetAdminByUsername(ctx context.Context, username string, admin *dbconnector.AdminUser) error
	GetAdminByID(ctx context.Context, adminID uint, admin *dbconnector.AdminUser) error
	GetAdminUsers(ctx context.Context, admins *[]dbconnector.AdminUser) error
	UpdateAdminUser(ctx context.Context, admin *dbconnector.AdminUser) error
	DeleteAdminUser(ctx context.Context, adminID uint) error
	CountAdminUsers(ctx context.Context, count *int64) error
}

var _ Storage = (*dbconnector.DBConnector)(nil)
