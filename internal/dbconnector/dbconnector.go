package dbconnector

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
)

// lockTimeout bounds how long a checkout waits for another checkout of the
// same user before giving up with a concurrency error.
const lockTimeout = "5s"

type DBConnector struct {
	DB *gorm.DB
}

func OpenDBConnect(dsn string) (*DBConnector, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	return &DBConnector{DB: db}, err
}

func (dbConnector *DBConnector) DBInitialize() error {
	return dbConnector.DB.AutoMigrate(
		&User{}, &Visit{}, &Tier{}, &Reward{}, &SpinnerOption{},
		&UserReward{}, &AdminUser{}, &AppSettings{},
	)
}

// translate maps gorm and postgres errors onto the loyalty error kinds.
func translate(op string, err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return loyaltyerrors.NotFound(op, notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		if conflict == nil {
			conflict = err
		}
		return loyaltyerrors.Conflict(op, conflict)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return loyaltyerrors.Concurrency(op, loyaltyerrors.ErrVisitLockConflict)
		}
	}
	return err
}

// Users

func (dbConnector *DBConnector) AddUser(ctx context.Context, newUser *User) error {
	result := dbConnector.DB.WithContext(ctx).Create(newUser)
	return translate("add user", result.Error, nil, loyaltyerrors.ErrDuplicateUser)
}

func (dbConnector *DBConnector) GetUserByUserID(ctx context.Context, userID uint, user *User) error {
	result := dbConnector.DB.WithContext(ctx).First(user, userID)
	return translate("get user", result.Error, loyaltyerrors.ErrUserNotFound, nil)
}

func (dbConnector *DBConnector) GetUserByPhone(ctx context.Context, phone string, user *User) error {
	result := dbConnector.DB.WithContext(ctx).Where("phone_number = ?", phone).First(user)
	return translate("get user by phone", result.Error, loyaltyerrors.ErrUserNotFound, nil)
}

func (dbConnector *DBConnector) GetUserByEmail(ctx context.Context, email string, user *User) error {
	result := dbConnector.DB.WithContext(ctx).Where("email = ?", email).First(user)
	return translate("get user by email", result.Error, loyaltyerrors.ErrUserNotFound, nil)
}

func (dbConnector *DBConnector) GetUsers(ctx context.Context, offset, limit int, users *[]User) error {
	result := dbConnector.DB.WithContext(ctx).Order("id").Offset(offset).Limit(limit).Find(users)
	return result.Error
}

func (dbConnector *DBConnector) UpdateUser(ctx context.Context, updUser *User) error {
	result := dbConnector.DB.WithContext(ctx).Save(updUser)
	return translate("update user", result.Error, loyaltyerrors.ErrUserNotFound, loyaltyerrors.ErrDuplicateUser)
}

func (dbConnector *DBConnector) UpdateUserTier(ctx context.Context, userID uint, tier int) error {
	result := dbConnector.DB.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("current_tier", tier)
	return result.Error
}

// DeleteUser removes the user together with their visits and earned rewards.
func (dbConnector *DBConnector) DeleteUser(ctx context.Context, userID uint) error {
	return dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&UserReward{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&Visit{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&User{}, userID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return loyaltyerrors.NotFound("delete user", loyaltyerrors.ErrUserNotFound)
		}
		return nil
	})
}

// Visits

// RecordVisit increments the visit count of the user and appends a visit in
// one transaction, holding the user row lock so that no two checkouts observe
// the same count. When idempotencyKey matches an earlier visit of the user,
// that visit is loaded instead and created is false.
func (dbConnector *DBConnector) RecordVisit(ctx context.Context, userID uint, idempotencyKey string, visit *Visit, user *User) (bool, error) {
	created := false
	err := dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SET LOCAL lock_timeout = '" + lockTimeout + "'").Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(user, userID).Error; err != nil {
			return err
		}

		if idempotencyKey != "" {
			result := tx.Where("user_id = ? AND idempotency_key = ?", userID, idempotencyKey).Limit(1).Find(visit)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				return nil
			}
		}

		user.VisitCount++
		if err := tx.Model(user).Update("visit_count", user.VisitCount).Error; err != nil {
			return err
		}

		*visit = Visit{
			UserID:        userID,
			VisitNumber:   user.VisitCount,
			RewardStatus:  RewardStatusPending,
			VisitDatetime: time.Now().UTC(),
		}
		if idempotencyKey != "" {
			key := idempotencyKey
			visit.IdempotencyKey = &key
		}
		if err := tx.Create(visit).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, translate("record visit", err, loyaltyerrors.ErrUserNotFound, nil)
	}
	return created, nil
}

func (dbConnector *DBConnector) GetVisit(ctx context.Context, visitID uint, visit *Visit) error {
	result := dbConnector.DB.WithContext(ctx).First(visit, visitID)
	return translate("get visit", result.Error, loyaltyerrors.ErrVisitNotFound, nil)
}

func (dbConnector *DBConnector) GetVisitsByUserID(ctx context.Context, userID uint, offset, limit int, visits *[]Visit) error {
	result := dbConnector.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id").Offset(offset).Limit(limit).Find(visits)
	return result.Error
}

// GetUnsettledVisits returns visits whose reward processing never completed
// and that were recorded before the given moment.
func (dbConnector *DBConnector) GetUnsettledVisits(ctx context.Context, before time.Time, visits *[]Visit) error {
	result := dbConnector.DB.WithContext(ctx).
		Where("reward_status IN ? AND created_at < ?", []RewardStatus{RewardStatusPending, RewardStatusFailed}, before).
		Order("id").
		Find(visits)
	return result.Error
}

// SettleVisit moves the reward status of a visit from one of the expected
// states to the next one and stores the granted reward, atomically. A visit
// that is no longer in an expected state yields a conflict.
func (dbConnector *DBConnector) SettleVisit(ctx context.Context, visitID uint, from []RewardStatus, to RewardStatus, pendingRewardID *uint, userReward *UserReward) error {
	err := dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"reward_status": to}
		if pendingRewardID != nil {
			updates["pending_reward_id"] = *pendingRewardID
		}
		result := tx.Model(&Visit{}).Where("id = ? AND reward_status IN ?", visitID, from).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return loyaltyerrors.Conflict("settle visit", loyaltyerrors.ErrVisitAlreadySettled)
		}
		if userReward != nil {
			if err := tx.Create(userReward).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if loyaltyerrors.KindOf(err) != loyaltyerrors.KindUnknown {
		return err
	}
	return translate("settle visit", err, loyaltyerrors.ErrVisitNotFound, loyaltyerrors.ErrVisitAlreadySettled)
}

// Tiers

func (dbConnector *DBConnector) GetActiveTiers(ctx context.Context, tiers *[]Tier) error {
	result := dbConnector.DB.WithContext(ctx).Where("is_active = ?", true).Order("visit_requirement, id").Find(tiers)
	return result.Error
}

func (dbConnector *DBConnector) GetTiers(ctx context.Context, offset, limit int, tiers *[]Tier) error {
	result := dbConnector.DB.WithContext(ctx).Order("visit_requirement, id").Offset(offset).Limit(limit).Find(tiers)
	return result.Error
}

func (dbConnector *DBConnector) GetTier(ctx context.Context, tierID uint, tier *Tier) error {
	result := dbConnector.DB.WithContext(ctx).First(tier, tierID)
	return translate("get tier", result.Error, loyaltyerrors.ErrTierNotFound, nil)
}

func (dbConnector *DBConnector) AddTier(ctx context.Context, tier *Tier) error {
	result := dbConnector.DB.WithContext(ctx).Create(tier)
	return translate("add tier", result.Error, nil, loyaltyerrors.ErrDuplicateTier)
}

func (dbConnector *DBConnector) UpdateTier(ctx context.Context, tier *Tier) error {
	result := dbConnector.DB.WithContext(ctx).Save(tier)
	return translate("update tier", result.Error, loyaltyerrors.ErrTierNotFound, loyaltyerrors.ErrDuplicateTier)
}

// DeleteTier refuses to delete a tier that still owns rewards.
func (dbConnector *DBConnector) DeleteTier(ctx context.Context, tierID uint) error {
	return dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rewards int64
		if err := tx.Model(&Reward{}).Where("tier_id = ?", tierID).Count(&rewards).Error; err != nil {
			return err
		}
		if rewards > 0 {
			return loyaltyerrors.Conflict("delete tier", loyaltyerrors.ErrTierHasRewards)
		}
		result := tx.Delete(&Tier{}, tierID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return loyaltyerrors.NotFound("delete tier", loyaltyerrors.ErrTierNotFound)
		}
		return nil
	})
}

// Rewards

func (dbConnector *DBConnector) GetActiveRewardsByTier(ctx context.Context, tierID uint, rewards *[]Reward) error {
	result := dbConnector.DB.WithContext(ctx).Where("tier_id = ? AND is_active = ?", tierID, true).Order("id").Find(rewards)
	return result.Error
}

func (dbConnector *DBConnector) GetRewards(ctx context.Context, offset, limit int, rewards *[]Reward) error {
	result := dbConnector.DB.WithContext(ctx).
		Preload("SpinnerOptions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("id").Offset(offset).Limit(limit).Find(rewards)
	return result.Error
}

func (dbConnector *DBConnector) GetReward(ctx context.Context, rewardID uint, reward *Reward) error {
	result := dbConnector.DB.WithContext(ctx).First(reward, rewardID)
	return translate("get reward", result.Error, loyaltyerrors.ErrRewardNotFound, nil)
}

func (dbConnector *DBConnector) AddReward(ctx context.Context, reward *Reward) error {
	result := dbConnector.DB.WithContext(ctx).Omit("Tier", "SpinnerOptions").Create(reward)
	return translate("add reward", result.Error, nil, loyaltyerrors.ErrTierNotFound)
}

func (dbConnector *DBConnector) UpdateReward(ctx context.Context, reward *Reward) error {
	result := dbConnector.DB.WithContext(ctx).Omit("Tier", "SpinnerOptions").Save(reward)
	return translate("update reward", result.Error, loyaltyerrors.ErrRewardNotFound, loyaltyerrors.ErrTierNotFound)
}

// DeleteReward removes the reward and its spinner options. Rewards that were
// already granted to someone stay, so that the ledger keeps its references.
func (dbConnector *DBConnector) DeleteReward(ctx context.Context, rewardID uint) error {
	return dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var granted int64
		if err := tx.Model(&UserReward{}).Where("reward_id = ?", rewardID).Count(&granted).Error; err != nil {
			return err
		}
		if granted > 0 {
			return loyaltyerrors.Conflict("delete reward", loyaltyerrors.ErrRewardHasHistory)
		}
		var pending int64
		if err := pendingSpins(tx, rewardID).Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return loyaltyerrors.Conflict("delete reward", loyaltyerrors.ErrRewardHasPendingSpins)
		}
		if err := tx.Where("reward_id = ?", rewardID).Delete(&SpinnerOption{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&Reward{}, rewardID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return loyaltyerrors.NotFound("delete reward", loyaltyerrors.ErrRewardNotFound)
		}
		return nil
	})
}

func pendingSpins(db *gorm.DB, rewardID uint) *gorm.DB {
	return db.Model(&Visit{}).Where("pending_reward_id = ? AND reward_status = ?", rewardID, RewardStatusAwaitingSpin)
}

// CountPendingSpins counts visits that earned the spinner reward but were not
// spun yet.
func (dbConnector *DBConnector) CountPendingSpins(ctx context.Context, rewardID uint, count *int64) error {
	return pendingSpins(dbConnector.DB.WithContext(ctx), rewardID).Count(count).Error
}

// Spinner options

// GetActiveSpinnerOptions returns the active options of a reward in creation
// order.
func (dbConnector *DBConnector) GetActiveSpinnerOptions(ctx context.Context, rewardID uint, options *[]SpinnerOption) error {
	result := dbConnector.DB.WithContext(ctx).Where("reward_id = ? AND is_active = ?", rewardID, true).Order("id").Find(options)
	return result.Error
}

func (dbConnector *DBConnector) GetSpinnerOptions(ctx context.Context, rewardID uint, options *[]SpinnerOption) error {
	result := dbConnector.DB.WithContext(ctx).Where("reward_id = ?", rewardID).Order("id").Find(options)
	return result.Error
}

func (dbConnector *DBConnector) GetSpinnerOption(ctx context.Context, optionID uint, option *SpinnerOption) error {
	result := dbConnector.DB.WithContext(ctx).First(option, optionID)
	return translate("get spinner option", result.Error, loyaltyerrors.ErrSpinnerOptionNotFound, nil)
}

func (dbConnector *DBConnector) AddSpinnerOption(ctx context.Context, option *SpinnerOption) error {
	result := dbConnector.DB.WithContext(ctx).Create(option)
	return translate("add spinner option", result.Error, nil, loyaltyerrors.ErrRewardNotFound)
}

func (dbConnector *DBConnector) UpdateSpinnerOption(ctx context.Context, option *SpinnerOption) error {
	result := dbConnector.DB.WithContext(ctx).Save(option)
	return translate("update spinner option", result.Error, loyaltyerrors.ErrSpinnerOptionNotFound, nil)
}

func (dbConnector *DBConnector) DeleteSpinnerOption(ctx context.Context, optionID uint) error {
	result := dbConnector.DB.WithContext(ctx).Delete(&SpinnerOption{}, optionID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return loyaltyerrors.NotFound("delete spinner option", loyaltyerrors.ErrSpinnerOptionNotFound)
	}
	return nil
}

// User rewards

func (dbConnector *DBConnector) GetUserRewardsByUserID(ctx context.Context, userID uint, offset, limit int, userRewards *[]UserReward) error {
	result := dbConnector.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id").Offset(offset).Limit(limit).Find(userRewards)
	return result.Error
}

func (dbConnector *DBConnector) GetUserRewardByVisit(ctx context.Context, visitID uint, userReward *UserReward) error {
	result := dbConnector.DB.WithContext(ctx).Where("visit_id = ?", visitID).Order("id").First(userReward)
	return translate("get user reward", result.Error, loyaltyerrors.ErrUserRewardNotFound, nil)
}

// MarkUserRewardUsed flips is_used once; used_at is never overwritten.
func (dbConnector *DBConnector) MarkUserRewardUsed(ctx context.Context, userRewardID uint, usedAt time.Time, userReward *UserReward) error {
	db := dbConnector.DB.WithContext(ctx)
	result := db.Model(&UserReward{}).
		Where("id = ? AND is_used = ?", userRewardID, false).
		Updates(map[string]any{"is_used": true, "used_at": usedAt})
	if result.Error != nil {
		return result.Error
	}
	if err := db.First(userReward, userRewardID).Error; err != nil {
		return translate("use reward", err, loyaltyerrors.ErrUserRewardNotFound, nil)
	}
	if result.RowsAffected == 0 {
		return loyaltyerrors.Conflict("use reward", loyaltyerrors.ErrRewardAlreadyUsed)
	}
	return nil
}

// App settings

func (dbConnector *DBConnector) GetAppSettings(ctx context.Context, settings *AppSettings) error {
	result := dbConnector.DB.WithContext(ctx).Where("is_active = ?", true).Order("id DESC").First(settings)
	return translate("get app settings", result.Error, loyaltyerrors.ErrSettingsNotFound, nil)
}

func (dbConnector *DBConnector) SaveAppSettings(ctx context.Context, settings *AppSettings) error {
	result := dbConnector.DB.WithContext(ctx).Save(settings)
	return result.Error
}

func (dbConnector *DBConnector) DeleteAppSettings(ctx context.Context, settingsID uint) error {
	result := dbConnector.DB.WithContext(ctx).Delete(&AppSettings{}, settingsID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return loyaltyerrors.NotFound("delete app settings", loyaltyerrors.ErrSettingsNotFound)
	}
	return nil
}

// Admin users

func (dbConnector *DBConnector) AddAdminUser(ctx context.Context, admin *AdminUser) error {
	result := dbConnector.DB.WithContext(ctx).Create(admin)
	return translate("add admin", result.Error, nil, loyaltyerrors.ErrDuplicateAdmin)
}

func (dbConnector *DBConnector) GetAdminByUsername(ctx context.Context, username string, admin *AdminUser) error {
	result := dbConnector.DB.WithContext(ctx).Where("username = ?", username).First(admin)
	return translate("get admin", result.Error, loyaltyerrors.ErrAdminNotFound, nil)
}

func (dbConnector *DBConnector) GetAdminByID(ctx context.Context, adminID uint, admin *AdminUser) error {
	result := dbConnector.DB.WithContext(ctx).First(admin, adminID)
	return translate("get admin", result.Error, loyaltyerrors.ErrAdminNotFound, nil)
}

func (dbConnector *DBConnector) GetAdminUsers(ctx context.Context, admins *[]AdminUser) error {
	result := dbConnector.DB.WithContext(ctx).Order("id").Find(admins)
	return result.Error
}

func (dbConnector *DBConnector) UpdateAdminUser(ctx context.Context, admin *AdminUser) error {
	result := dbConnector.DB.WithContext(ctx).Save(admin)
	return translate("update admin", result.Error, loyaltyerrors.ErrAdminNotFound, loyaltyerrors.ErrDuplicateAdmin)
}

func (dbConnector *DBConnector) DeleteAdminUser(ctx context.Context, adminID uint) error {
	result := dbConnector.DB.WithContext(ctx).Delete(&AdminUser{}, adminID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return loyaltyerrors.NotFound("delete admin", loyaltyerrors.ErrAdminNotFound)
	}
	return nil
}

func (dbConnector *DBConnector) CountAdminUsers(ctx context.Context, count *int64) error {
	result := dbConnector.DB.WithContext(ctx).Model(&AdminUser{}).Count(count)
	return result.Error
}

// DeleteAllData empties every table; used by the integration tests.
func (dbConnector *DBConnector) DeleteAllData(ctx context.Context) error {
	return dbConnector.DB.WithContext(ctx).Exec(
		"TRUNCATE user_rewards, spinner_options, rewards, tiers, visits, users, admin_users, app_settings RESTART IDENTITY CASCADE",
	).Error
}
