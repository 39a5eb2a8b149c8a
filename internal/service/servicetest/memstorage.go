// Package servicetest provides an in-memory storage for tests of the loyalty
// services and handlers.
package servicetest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
)

// MemStorage keeps every table in maps guarded by one mutex. It follows the
// same conflict and not-found rules as the postgres connector.
type MemStorage struct {
	mu sync.Mutex

	nextID uint
	Now    func() time.Time

	users       map[uint]dbconnector.User
	visits      map[uint]dbconnector.Visit
	tiers       map[uint]dbconnector.Tier
	rewards     map[uint]dbconnector.Reward
	options     map[uint]dbconnector.SpinnerOption
	userRewards map[uint]dbconnector.UserReward
	admins      map[uint]dbconnector.AdminUser
	settings    map[uint]dbconnector.AppSettings

	failures map[string][]error
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		Now:         time.Now,
		users:       map[uint]dbconnector.User{},
		visits:      map[uint]dbconnector.Visit{},
		tiers:       map[uint]dbconnector.Tier{},
		rewards:     map[uint]dbconnector.Reward{},
		options:     map[uint]dbconnector.SpinnerOption{},
		userRewards: map[uint]dbconnector.UserReward{},
		admins:      map[uint]dbconnector.AdminUser{},
		settings:    map[uint]dbconnector.AppSettings{},
		failures:    map[string][]error{},
	}
}

// FailNext makes the next call of the named method return err.
func (m *MemStorage) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = append(m.failures[method], err)
}

func (m *MemStorage) injected(method string) error {
	queue := m.failures[method]
	if len(queue) == 0 {
		return nil
	}
	m.failures[method] = queue[1:]
	return queue[0]
}

func (m *MemStorage) id() uint {
	m.nextID++
	return m.nextID
}

func sortedValues[T any](items map[uint]T) []T {
	keys := make([]uint, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, items[k])
	}
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func sameString(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// Users

func (m *MemStorage) userConflict(u dbconnector.User) bool {
	for _, other := range m.users {
		if other.ID != u.ID && (sameString(other.PhoneNumber, u.PhoneNumber) || sameString(other.Email, u.Email)) {
			return true
		}
	}
	return false
}

func (m *MemStorage) AddUser(_ context.Context, newUser *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userConflict(*newUser) {
		return loyaltyerrors.Conflict("add user", loyaltyerrors.ErrDuplicateUser)
	}
	newUser.ID = m.id()
	newUser.CreatedAt = m.Now()
	m.users[newUser.ID] = *newUser
	return nil
}

func (m *MemStorage) GetUserByUserID(_ context.Context, userID uint, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return loyaltyerrors.NotFound("get user", loyaltyerrors.ErrUserNotFound)
	}
	*user = u
	return nil
}

func (m *MemStorage) findUser(match func(dbconnector.User) bool, user *dbconnector.User) error {
	for _, u := range sortedValues(m.users) {
		if match(u) {
			*user = u
			return nil
		}
	}
	return loyaltyerrors.NotFound("get user", loyaltyerrors.ErrUserNotFound)
}

func (m *MemStorage) GetUserByPhone(_ context.Context, phone string, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findUser(func(u dbconnector.User) bool { return sameString(u.PhoneNumber, &phone) }, user)
}

func (m *MemStorage) GetUserByEmail(_ context.Context, email string, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findUser(func(u dbconnector.User) bool { return sameString(u.Email, &email) }, user)
}

func (m *MemStorage) GetUsers(_ context.Context, offset, limit int, users *[]dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*users = page(sortedValues(m.users), offset, limit)
	return nil
}

func (m *MemStorage) UpdateUser(_ context.Context, updUser *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[updUser.ID]; !ok {
		return loyaltyerrors.NotFound("update user", loyaltyerrors.ErrUserNotFound)
	}
	if m.userConflict(*updUser) {
		return loyaltyerrors.Conflict("update user", loyaltyerrors.ErrDuplicateUser)
	}
	m.users[updUser.ID] = *updUser
	return nil
}

func (m *MemStorage) UpdateUserTier(_ context.Context, userID uint, tier int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpdateUserTier"); err != nil {
		return err
	}
	if u, ok := m.users[userID]; ok {
		u.CurrentTier = tier
		m.users[userID] = u
	}
	return nil
}

func (m *MemStorage) DeleteUser(_ context.Context, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return loyaltyerrors.NotFound("delete user", loyaltyerrors.ErrUserNotFound)
	}
	for id, ur := range m.userRewards {
		if ur.UserID == userID {
			delete(m.userRewards, id)
		}
	}
	for id, v := range m.visits {
		if v.UserID == userID {
			delete(m.visits, id)
		}
	}
	delete(m.users, userID)
	return nil
}

// Visits

func (m *MemStorage) RecordVisit(_ context.Context, userID uint, idempotencyKey string, visit *dbconnector.Visit, user *dbconnector.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RecordVisit"); err != nil {
		return false, err
	}
	u, ok := m.users[userID]
	if !ok {
		return false, loyaltyerrors.NotFound("record visit", loyaltyerrors.ErrUserNotFound)
	}
	*user = u
	if idempotencyKey != "" {
		for _, v := range sortedValues(m.visits) {
			if v.UserID == userID && sameString(v.IdempotencyKey, &idempotencyKey) {
				*visit = v
				return false, nil
			}
		}
	}

	u.VisitCount++
	m.users[userID] = u
	*user = u

	now := m.Now()
	*visit = dbconnector.Visit{
		ID:            m.id(),
		UserID:        userID,
		VisitNumber:   u.VisitCount,
		RewardStatus:  dbconnector.RewardStatusPending,
		VisitDatetime: now.UTC(),
		CreatedAt:     now,
	}
	if idempotencyKey != "" {
		key := idempotencyKey
		visit.IdempotencyKey = &key
	}
	m.visits[visit.ID] = *visit
	return true, nil
}

func (m *MemStorage) GetVisit(_ context.Context, visitID uint, visit *dbconnector.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[visitID]
	if !ok {
		return loyaltyerrors.NotFound("get visit", loyaltyerrors.ErrVisitNotFound)
	}
	*visit = v
	return nil
}

func (m *MemStorage) GetVisitsByUserID(_ context.Context, userID uint, offset, limit int, visits *[]dbconnector.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := slices.DeleteFunc(sortedValues(m.visits), func(v dbconnector.Visit) bool { return v.UserID != userID })
	*visits = page(all, offset, limit)
	return nil
}

func (m *MemStorage) GetUnsettledVisits(_ context.Context, before time.Time, visits *[]dbconnector.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*visits = slices.DeleteFunc(sortedValues(m.visits), func(v dbconnector.Visit) bool {
		return v.RewardStatus.Settled() || !v.CreatedAt.Before(before)
	})
	return nil
}

func (m *MemStorage) SettleVisit(_ context.Context, visitID uint, from []dbconnector.RewardStatus, to dbconnector.RewardStatus, pendingRewardID *uint, userReward *dbconnector.UserReward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SettleVisit"); err != nil {
		return err
	}
	v, ok := m.visits[visitID]
	if !ok || !slices.Contains(from, v.RewardStatus) {
		return loyaltyerrors.Conflict("settle visit", loyaltyerrors.ErrVisitAlreadySettled)
	}
	if userReward != nil {
		for _, ur := range m.userRewards {
			if ur.UserID == userReward.UserID && ur.RewardID == userReward.RewardID && ur.VisitID == userReward.VisitID {
				return loyaltyerrors.Conflict("settle visit", loyaltyerrors.ErrVisitAlreadySettled)
			}
		}
		userReward.ID = m.id()
		userReward.CreatedAt = m.Now()
		m.userRewards[userReward.ID] = *userReward
	}
	v.RewardStatus = to
	if pendingRewardID != nil {
		id := *pendingRewardID
		v.PendingRewardID = &id
	}
	m.visits[visitID] = v
	return nil
}

// Tiers

func (m *MemStorage) GetActiveTiers(_ context.Context, tiers *[]dbconnector.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetActiveTiers"); err != nil {
		return err
	}
	all := slices.DeleteFunc(sortedValues(m.tiers), func(t dbconnector.Tier) bool { return !t.IsActive })
	sortTiers(all)
	*tiers = all
	return nil
}

func sortTiers(tiers []dbconnector.Tier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].VisitRequirement != tiers[j].VisitRequirement {
			return tiers[i].VisitRequirement < tiers[j].VisitRequirement
		}
		return tiers[i].ID < tiers[j].ID
	})
}

func (m *MemStorage) GetTiers(_ context.Context, offset, limit int, tiers *[]dbconnector.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := sortedValues(m.tiers)
	sortTiers(all)
	*tiers = page(all, offset, limit)
	return nil
}

func (m *MemStorage) GetTier(_ context.Context, tierID uint, tier *dbconnector.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiers[tierID]
	if !ok {
		return loyaltyerrors.NotFound("get tier", loyaltyerrors.ErrTierNotFound)
	}
	*tier = t
	return nil
}

func (m *MemStorage) tierConflict(t dbconnector.Tier) bool {
	for _, other := range m.tiers {
		if other.ID != t.ID && (other.Name == t.Name || other.VisitRequirement == t.VisitRequirement) {
			return true
		}
	}
	return false
}

func (m *MemStorage) AddTier(_ context.Context, tier *dbconnector.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tierConflict(*tier) {
		return loyaltyerrors.Conflict("add tier", loyaltyerrors.ErrDuplicateTier)
	}
	tier.ID = m.id()
	tier.CreatedAt = m.Now()
	m.tiers[tier.ID] = *tier
	return nil
}

func (m *MemStorage) UpdateTier(_ context.Context, tier *dbconnector.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tiers[tier.ID]; !ok {
		return loyaltyerrors.NotFound("update tier", loyaltyerrors.ErrTierNotFound)
	}
	if m.tierConflict(*tier) {
		return loyaltyerrors.Conflict("update tier", loyaltyerrors.ErrDuplicateTier)
	}
	m.tiers[tier.ID] = *tier
	return nil
}

func (m *MemStorage) DeleteTier(_ context.Context, tierID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rewards {
		if r.TierID == tierID {
			return loyaltyerrors.Conflict("delete tier", loyaltyerrors.ErrTierHasRewards)
		}
	}
	if _, ok := m.tiers[tierID]; !ok {
		return loyaltyerrors.NotFound("delete tier", loyaltyerrors.ErrTierNotFound)
	}
	delete(m.tiers, tierID)
	return nil
}

// Rewards

func (m *MemStorage) GetActiveRewardsByTier(_ context.Context, tierID uint, rewards *[]dbconnector.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetActiveRewardsByTier"); err != nil {
		return err
	}
	*rewards = slices.DeleteFunc(sortedValues(m.rewards), func(r dbconnector.Reward) bool {
		return r.TierID != tierID || !r.IsActive
	})
	return nil
}

func (m *MemStorage) GetRewards(_ context.Context, offset, limit int, rewards *[]dbconnector.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := sortedValues(m.rewards)
	for i := range all {
		all[i].SpinnerOptions = m.optionsOf(all[i].ID, false)
	}
	*rewards = page(all, offset, limit)
	return nil
}

func (m *MemStorage) GetReward(_ context.Context, rewardID uint, reward *dbconnector.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rewards[rewardID]
	if !ok {
		return loyaltyerrors.NotFound("get reward", loyaltyerrors.ErrRewardNotFound)
	}
	*reward = r
	return nil
}

func (m *MemStorage) AddReward(_ context.Context, reward *dbconnector.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tiers[reward.TierID]; !ok {
		return loyaltyerrors.Conflict("add reward", loyaltyerrors.ErrTierNotFound)
	}
	reward.ID = m.id()
	reward.CreatedAt = m.Now()
	m.rewards[reward.ID] = *reward
	return nil
}

func (m *MemStorage) UpdateReward(_ context.Context, reward *dbconnector.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rewards[reward.ID]; !ok {
		return loyaltyerrors.NotFound("update reward", loyaltyerrors.ErrRewardNotFound)
	}
	m.rewards[reward.ID] = *reward
	return nil
}

func (m *MemStorage) pendingSpins(rewardID uint) int64 {
	var n int64
	for _, v := range m.visits {
		if v.RewardStatus == dbconnector.RewardStatusAwaitingSpin && v.PendingRewardID != nil && *v.PendingRewardID == rewardID {
			n++
		}
	}
	return n
}

func (m *MemStorage) CountPendingSpins(_ context.Context, rewardID uint, count *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*count = m.pendingSpins(rewardID)
	return nil
}

func (m *MemStorage) DeleteReward(_ context.Context, rewardID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ur := range m.userRewards {
		if ur.RewardID == rewardID {
			return loyaltyerrors.Conflict("delete reward", loyaltyerrors.ErrRewardHasHistory)
		}
	}
	if m.pendingSpins(rewardID) > 0 {
		return loyaltyerrors.Conflict("delete reward", loyaltyerrors.ErrRewardHasPendingSpins)
	}
	if _, ok := m.rewards[rewardID]; !ok {
		return loyaltyerrors.NotFound("delete reward", loyaltyerrors.ErrRewardNotFound)
	}
	for id, o := range m.options {
		if o.RewardID == rewardID {
			delete(m.options, id)
		}
	}
	delete(m.rewards, rewardID)
	return nil
}

// Spinner options

func (m *MemStorage) optionsOf(rewardID uint, activeOnly bool) []dbconnector.SpinnerOption {
	return slices.DeleteFunc(sortedValues(m.options), func(o dbconnector.SpinnerOption) bool {
		return o.RewardID != rewardID || (activeOnly && !o.IsActive)
	})
}

func (m *MemStorage) GetActiveSpinnerOptions(_ context.Context, rewardID uint, options *[]dbconnector.SpinnerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*options = m.optionsOf(rewardID, true)
	return nil
}

func (m *MemStorage) GetSpinnerOptions(_ context.Context, rewardID uint, options *[]dbconnector.SpinnerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*options = m.optionsOf(rewardID, false)
	return nil
}

func (m *MemStorage) GetSpinnerOption(_ context.Context, optionID uint, option *dbconnector.SpinnerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.options[optionID]
	if !ok {
		return loyaltyerrors.NotFound("get spinner option", loyaltyerrors.ErrSpinnerOptionNotFound)
	}
	*option = o
	return nil
}

func (m *MemStorage) AddSpinnerOption(_ context.Context, option *dbconnector.SpinnerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rewards[option.RewardID]; !ok {
		return loyaltyerrors.Conflict("add spinner option", loyaltyerrors.ErrRewardNotFound)
	}
	option.ID = m.id()
	option.CreatedAt = m.Now()
	m.options[option.ID] = *option
	return nil
}

func (m *MemStorage) UpdateSpinnerOption(_ context.Context, option *dbconnector.SpinnerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.options[option.ID]; !ok {
		return loyaltyerrors.NotFound("update spinner option", loyaltyerrors.ErrSpinnerOptionNotFound)
	}
	m.options[option.ID] = *option
	return nil
}

func (m *MemStorage) DeleteSpinnerOption(_ context.Context, optionID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.options[optionID]; !ok {
		return loyaltyerrors.NotFound("delete spinner option", loyaltyerrors.ErrSpinnerOptionNotFound)
	}
	delete(m.options, optionID)
	return nil
}

// User rewards

func (m *MemStorage) GetUserRewardsByUserID(_ context.Context, userID uint, offset, limit int, userRewards *[]dbconnector.UserReward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := slices.DeleteFunc(sortedValues(m.userRewards), func(ur dbconnector.UserReward) bool { return ur.UserID != userID })
	*userRewards = page(all, offset, limit)
	return nil
}

func (m *MemStorage) GetUserRewardByVisit(_ context.Context, visitID uint, userReward *dbconnector.UserReward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ur := range sortedValues(m.userRewards) {
		if ur.VisitID == visitID {
			*userReward = ur
			return nil
		}
	}
	return loyaltyerrors.NotFound("get user reward", loyaltyerrors.ErrUserRewardNotFound)
}

func (m *MemStorage) MarkUserRewardUsed(_ context.Context, userRewardID uint, usedAt time.Time, userReward *dbconnector.UserReward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ur, ok := m.userRewards[userRewardID]
	if !ok {
		return loyaltyerrors.NotFound("use reward", loyaltyerrors.ErrUserRewardNotFound)
	}
	if ur.IsUsed {
		*userReward = ur
		return loyaltyerrors.Conflict("use reward", loyaltyerrors.ErrRewardAlreadyUsed)
	}
	ur.IsUsed = true
	ur.UsedAt = &usedAt
	m.userRewards[userRewardID] = ur
	*userReward = ur
	return nil
}

// App settings

func (m *MemStorage) GetAppSettings(_ context.Context, settings *dbconnector.AppSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := sortedValues(m.settings)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].IsActive {
			*settings = all[i]
			return nil
		}
	}
	return loyaltyerrors.NotFound("get app settings", loyaltyerrors.ErrSettingsNotFound)
}

func (m *MemStorage) SaveAppSettings(_ context.Context, settings *dbconnector.AppSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if settings.ID == 0 {
		settings.ID = m.id()
		settings.CreatedAt = m.Now()
	}
	settings.UpdatedAt = m.Now()
	m.settings[settings.ID] = *settings
	return nil
}

func (m *MemStorage) DeleteAppSettings(_ context.Context, settingsID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[settingsID]; !ok {
		return loyaltyerrors.NotFound("delete app settings", loyaltyerrors.ErrSettingsNotFound)
	}
	delete(m.settings, settingsID)
	return nil
}

// Admin users

func (m *MemStorage) adminConflict(a dbconnector.AdminUser) bool {
	for _, other := range m.admins {
		if other.ID != a.ID && (other.Username == a.Username || other.Email == a.Email) {
			return true
		}
	}
	return false
}

func (m *MemStorage) AddAdminUser(_ context.Context, admin *dbconnector.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adminConflict(*admin) {
		return loyaltyerrors.Conflict("add admin", loyaltyerrors.ErrDuplicateAdmin)
	}
	admin.ID = m.id()
	admin.CreatedAt = m.Now()
	m.admins[admin.ID] = *admin
	return nil
}

func (m *MemStorage) GetAdminByUsername(_ context.Context, username string, admin *dbconnector.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range sortedValues(m.admins) {
		if a.Username == username {
			*admin = a
			return nil
		}
	}
	return loyaltyerrors.NotFound("get admin", loyaltyerrors.ErrAdminNotFound)
}

func (m *MemStorage) GetAdminByID(_ context.Context, adminID uint, admin *dbconnector.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[adminID]
	if !ok {
		return loyaltyerrors.NotFound("get admin", loyaltyerrors.ErrAdminNotFound)
	}
	*admin = a
	return nil
}

func (m *MemStorage) GetAdminUsers(_ context.Context, admins *[]dbconnector.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*admins = sortedValues(m.admins)
	return nil
}

func (m *MemStorage) UpdateAdminUser(_ context.Context, admin *dbconnector.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[admin.ID]; !ok {
		return loyaltyerrors.NotFound("update admin", loyaltyerrors.ErrAdminNotFound)
	}
	if m.adminConflict(*admin) {
		return loyaltyerrors.Conflict("update admin", loyaltyerrors.ErrDuplicateAdmin)
	}
	m.admins[admin.ID] = *admin
	return nil
}

func (m *MemStorage) DeleteAdminUser(_ context.Context, adminID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[adminID]; !ok {
		return loyaltyerrors.NotFound("delete admin", loyaltyerrors.ErrAdminNotFound)
	}
	delete(m.admins, adminID)
	return nil
}

func (m *MemStorage) CountAdminUsers(_ context.Context, count *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*count = int64(len(m.admins))
	return nil
}
