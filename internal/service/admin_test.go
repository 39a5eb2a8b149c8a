package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
	"github.com/theheadmen/cafeloyalty/internal/security"
	"github.com/theheadmen/cafeloyalty/internal/service/servicetest"
)

func boolPtr(b bool) *bool { return &b }

func TestRegisterSuperAdminNeedsConfiguredEmail(t *testing.T) {
	ctx := context.Background()
	storage := servicetest.NewMemStorage()
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	req := models.AdminUserRequest{Username: "owner", Email: "Owner@Cafe.test", Password: "s3cret"}

	_, err := RegisterSuperAdminLogic(ctx, storage, hasher, "", req)
	assert.Equal(t, loyaltyerrors.KindForbidden, loyaltyerrors.KindOf(err))

	_, err = RegisterSuperAdminLogic(ctx, storage, hasher, "someone@cafe.test", req)
	assert.Equal(t, loyaltyerrors.KindForbidden, loyaltyerrors.KindOf(err))

	admin, err := RegisterSuperAdminLogic(ctx, storage, hasher, "owner@cafe.test", req)
	require.NoError(t, err)
	assert.Equal(t, dbconnector.RoleSuperAdmin, admin.Role)
	assert.Equal(t, "owner@cafe.test", admin.Email)
	assert.True(t, admin.IsActive)
	assert.NotEqual(t, "s3cret", admin.HashedPassword)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	storage := servicetest.NewMemStorage()
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	tokens := security.NewTokenManager("secret", 30*time.Minute)

	_, err := createAdmin(ctx, storage, hasher, models.AdminUserRequest{Username: "till", Email: "till@cafe.test", Password: "pw", Role: dbconnector.RolePOS})
	require.NoError(t, err)

	resp, err := LoginLogic(ctx, storage, hasher, tokens, models.LoginRequest{Username: "till", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	claims, err := tokens.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "till", claims.Subject)
	assert.Equal(t, "pos", claims.Role)

	_, err = LoginLogic(ctx, storage, hasher, tokens, models.LoginRequest{Username: "till", Password: "wrong"})
	assert.Equal(t, loyaltyerrors.KindUnauthorized, loyaltyerrors.KindOf(err))
	_, err = LoginLogic(ctx, storage, hasher, tokens, models.LoginRequest{Username: "ghost", Password: "pw"})
	assert.Equal(t, loyaltyerrors.KindUnauthorized, loyaltyerrors.KindOf(err))

	_, err = UpdateAdminLogic(ctx, storage, hasher, dbconnector.RoleAdmin, resp.User.ID, models.AdminUserRequest{IsActive: boolPtr(false)})
	require.NoError(t, err)
	_, err = LoginLogic(ctx, storage, hasher, tokens, models.LoginRequest{Username: "till", Password: "pw"})
	assert.ErrorIs(t, err, loyaltyerrors.ErrInactiveAdmin)
}

func TestOnlySuperAdminHandsOutSuperAdmin(t *testing.T) {
	ctx := context.Background()
	storage := servicetest.NewMemStorage()
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	req := models.AdminUserRequest{Username: "boss", Email: "boss@cafe.test", Password: "pw", Role: dbconnector.RoleSuperAdmin}

	_, err := CreateAdminLogic(ctx, storage, hasher, dbconnector.RoleAdmin, req)
	assert.Equal(t, loyaltyerrors.KindForbidden, loyaltyerrors.KindOf(err))

	boss, err := CreateAdminLogic(ctx, storage, hasher, dbconnector.RoleSuperAdmin, req)
	require.NoError(t, err)

	err = DeleteAdminLogic(ctx, storage, dbconnector.RoleAdmin, boss.ID)
	assert.Equal(t, loyaltyerrors.KindForbidden, loyaltyerrors.KindOf(err))

	manager, err := CreateAdminLogic(ctx, storage, hasher, dbconnector.RoleAdmin, models.AdminUserRequest{Username: "m", Email: "m@cafe.test", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, dbconnector.RoleAdmin, manager.Role)

	_, err = CreateAdminLogic(ctx, storage, hasher, dbconnector.RoleAdmin, models.AdminUserRequest{Username: "m", Email: "other@cafe.test", Password: "pw"})
	assert.Equal(t, loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))

	_, err = CreateAdminLogic(ctx, storage, hasher, dbconnector.RoleAdmin, models.AdminUserRequest{Username: "x", Email: "x@cafe.test", Password: "pw", Role: "barista"})
	assert.Equal(t, loyaltyerrors.KindValidation, loyaltyerrors.KindOf(err))

	require.NoError(t, DeleteAdminLogic(ctx, storage, dbconnector.RoleSuperAdmin, boss.ID))
}

func TestRegisterAndFindUsers(t *testing.T) {
	ctx := context.Background()
	storage := servicetest.NewMemStorage()
	phone, email := " 0300-123 4567 ", " Sara@Example.COM "

	user, err := RegisterUserLogic(ctx, storage, models.UserRequest{Name: " Sara ", PhoneNumber: &phone, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Sara", user.Name)
	assert.Equal(t, "03001234567", *user.PhoneNumber)
	assert.Equal(t, "sara@example.com", *user.Email)
	assert.Zero(t, user.VisitCount)

	found, err := FindUserByPhoneLogic(ctx, storage, "0300 1234567")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	found, err = FindUserByEmailLogic(ctx, storage, "SARA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = RegisterUserLogic(ctx, storage, models.UserRequest{Name: "Copy", PhoneNumber: &phone})
	assert.Equal(t, loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))

	_, err = RegisterUserLogic(ctx, storage, models.UserRequest{Name: "Nobody"})
	assert.ErrorIs(t, err, loyaltyerrors.ErrMissingContact)
	_, err = RegisterUserLogic(ctx, storage, models.UserRequest{PhoneNumber: &phone})
	assert.ErrorIs(t, err, loyaltyerrors.ErrMissingName)

	address := "12 Mall Road"
	updated, err := UpdateUserLogic(ctx, storage, user.ID, models.UserUpdateRequest{Address: &address})
	require.NoError(t, err)
	assert.Equal(t, address, updated.Address)
	assert.Equal(t, "03001234567", *updated.PhoneNumber)

	empty := ""
	_, err = UpdateUserLogic(ctx, storage, user.ID, models.UserUpdateRequest{PhoneNumber: &empty, Email: &empty})
	assert.ErrorIs(t, err, loyaltyerrors.ErrMissingContact)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+923001234567", NormalizePhone("+92 300 1234567"))
	assert.Equal(t, "03001234567", NormalizePhone("(0300) 123-4567"))
	assert.Equal(t, "", NormalizePhone(" - "))
}

func TestRedeemUserRewardOnce(t *testing.T) {
	ctx := context.Background()
	c, _, _ := coffeeCafe(t)
	user := c.addUser(t, 4)
	res, err := CheckoutLogic(ctx, c.storage, nil, user.ID, "")
	require.NoError(t, err)
	id := *res.RewardEarned.UserRewardID

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	used, err := RedeemUserRewardLogic(ctx, c.storage, id, first)
	require.NoError(t, err)
	assert.True(t, used.IsUsed)
	require.NotNil(t, used.UsedAt)
	assert.True(t, first.Equal(*used.UsedAt))

	again, err := RedeemUserRewardLogic(ctx, c.storage, id, first.Add(time.Hour))
	assert.Equal(t, loyaltyerrors.KindConflict, loyaltyerrors.KindOf(err))
	assert.ErrorIs(t, err, loyaltyerrors.ErrRewardAlreadyUsed)
	assert.True(t, first.Equal(*again.UsedAt))

	_, err = RedeemUserRewardLogic(ctx, c.storage, 9999, first)
	assert.Equal(t, loyaltyerrors.KindNotFound, loyaltyerrors.KindOf(err))
}

func TestAppSettingsDefaultsAndSave(t *testing.T) {
	ctx := context.Background()
	storage := servicetest.NewMemStorage()

	settings, err := GetAppSettingsLogic(ctx, storage)
	require.NoError(t, err)
	assert.Equal(t, DefaultCafeName, settings.CafeName)
	assert.Equal(t, DefaultCafeTagline, settings.CafeTagline)
	assert.Zero(t, settings.ID)

	name := "Chai Corner"
	saved, err := SaveAppSettingsLogic(ctx, storage, models.AppSettingsRequest{CafeName: &name})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, DefaultCafeTagline, saved.CafeTagline)

	logo := "data:image/png;base64,AAAA"
	saved2, err := SaveAppSettingsLogic(ctx, storage, models.AppSettingsRequest{CafeLogoBase64: &logo})
	require.NoError(t, err)
	assert.Equal(t, saved.ID, saved2.ID)
	assert.Equal(t, "Chai Corner", saved2.CafeName)
	assert.Equal(t, logo, *saved2.CafeLogoBase64)

	blank := ""
	_, err = SaveAppSettingsLogic(ctx, storage, models.AppSettingsRequest{CafeName: &blank})
	assert.ErrorIs(t, err, loyaltyerrors.ErrMissingName)
}
