package service

import (
	"context"
	"strings"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenIssuer interface {
	Generate(username, role string) (string, error)
}

func validRole(role dbconnector.AdminRole) bool {
	switch role {
	case dbconnector.RoleSuperAdmin, dbconnector.RoleAdmin, dbconnector.RolePOS:
		return true
	}
	return false
}

// CanManage reports whether role may manage the catalog and admin users.
func CanManage(role dbconnector.AdminRole) bool {
	return role == dbconnector.RoleAdmin || role == dbconnector.RoleSuperAdmin
}

func LoginLogic(ctx context.Context, storage Storage, hasher PasswordHasher, tokens TokenIssuer, req models.LoginRequest) (models.TokenResponse, error) {
	var resp models.TokenResponse
	var admin dbconnector.AdminUser
	err := storage.GetAdminByUsername(ctx, strings.TrimSpace(req.Username), &admin)
	if loyaltyerrors.KindOf(err) == loyaltyerrors.KindNotFound {
		return resp, loyaltyerrors.E(loyaltyerrors.KindUnauthorized, "login", loyaltyerrors.ErrInvalidCredentials)
	}
	if err != nil {
		return resp, err
	}
	if err := hasher.Compare(admin.HashedPassword, req.Password); err != nil {
		return resp, loyaltyerrors.E(loyaltyerrors.KindUnauthorized, "login", loyaltyerrors.ErrInvalidCredentials)
	}
	if !admin.IsActive {
		return resp, loyaltyerrors.E(loyaltyerrors.KindForbidden, "login", loyaltyerrors.ErrInactiveAdmin)
	}
	token, err := tokens.Generate(admin.Username, string(admin.Role))
	if err != nil {
		return resp, err
	}
	return models.TokenResponse{AccessToken: token, TokenType: "bearer", User: admin}, nil
}

// CreateAdminLogic creates an admin user on behalf of actor. Only a
// super-admin can hand out the super-admin role.
func CreateAdminLogic(ctx context.Context, storage Storage, hasher PasswordHasher, actor dbconnector.AdminRole, req models.AdminUserRequest) (dbconnector.AdminUser, error) {
	if req.Role == "" {
		req.Role = dbconnector.RoleAdmin
	}
	if req.Role == dbconnector.RoleSuperAdmin && actor != dbconnector.RoleSuperAdmin {
		return dbconnector.AdminUser{}, loyaltyerrors.E(loyaltyerrors.KindForbidden, "create admin", loyaltyerrors.ErrForbidden)
	}
	return createAdmin(ctx, storage, hasher, req)
}

// RegisterSuperAdminLogic bootstraps a super-admin; only the configured email
// is accepted.
func RegisterSuperAdminLogic(ctx context.Context, storage Storage, hasher PasswordHasher, allowedEmail string, req models.AdminUserRequest) (dbconnector.AdminUser, error) {
	if allowedEmail == "" || !strings.EqualFold(strings.TrimSpace(req.Email), allowedEmail) {
		return dbconnector.AdminUser{}, loyaltyerrors.E(loyaltyerrors.KindForbidden, "register super admin", loyaltyerrors.ErrForbidden)
	}
	req.Role = dbconnector.RoleSuperAdmin
	return createAdmin(ctx, storage, hasher, req)
}

func createAdmin(ctx context.Context, storage Storage, hasher PasswordHasher, req models.AdminUserRequest) (dbconnector.AdminUser, error) {
	admin := dbconnector.AdminUser{
		Username: strings.TrimSpace(req.Username),
		Email:    NormalizeEmail(req.Email),
		Role:     req.Role,
		IsActive: boolOr(req.IsActive, true),
	}
	if admin.Username == "" || admin.Email == "" || req.Password == "" {
		return admin, loyaltyerrors.Validation("create admin", loyaltyerrors.ErrInvalidCredentials)
	}
	if !validRole(admin.Role) {
		return admin, loyaltyerrors.Validation("create admin", loyaltyerrors.ErrForbidden)
	}
	hash, err := hasher.Hash(req.Password)
	if err != nil {
		return admin, err
	}
	admin.HashedPassword = hash
	err = storage.AddAdminUser(ctx, &admin)
	return admin, err
}

// UpdateAdminLogic applies the non-empty fields of req.
func UpdateAdminLogic(ctx context.Context, storage Storage, hasher PasswordHasher, actor dbconnector.AdminRole, adminID uint, req models.AdminUserRequest) (dbconnector.AdminUser, error) {
	var admin dbconnector.AdminUser
	if err := storage.GetAdminByID(ctx, adminID, &admin); err != nil {
		return admin, err
	}
	if (admin.Role == dbconnector.RoleSuperAdmin || req.Role == dbconnector.RoleSuperAdmin) && actor != dbconnector.RoleSuperAdmin {
		return admin, loyaltyerrors.E(loyaltyerrors.KindForbidden, "update admin", loyaltyerrors.ErrForbidden)
	}
	if req.Username != "" {
		admin.Username = strings.TrimSpace(req.Username)
	}
	if req.Email != "" {
		admin.Email = NormalizeEmail(req.Email)
	}
	if req.Role != "" {
		if !validRole(req.Role) {
			return admin, loyaltyerrors.Validation("update admin", loyaltyerrors.ErrForbidden)
		}
		admin.Role = req.Role
	}
	if req.IsActive != nil {
		admin.IsActive = *req.IsActive
	}
	if req.Password != "" {
		hash, err := hasher.Hash(req.Password)
		if err != nil {
			return admin, err
		}
		admin.HashedPassword = hash
	}
	err := storage.UpdateAdminUser(ctx, &admin)
	return admin, err
}

func DeleteAdminLogic(ctx context.Context, storage Storage, actor dbconnector.AdminRole, adminID uint) error {
	var admin dbconnector.AdminUser
	if err := storage.GetAdminByID(ctx, adminID, &admin); err != nil {
		return err
	}
	if admin.Role == dbconnector.RoleSuperAdmin && actor != dbconnector.RoleSuperAdmin {
		return loyaltyerrors.E(loyaltyerrors.KindForbidden, "delete admin", loyaltyerrors.ErrForbidden)
	}
	return storage.DeleteAdminUser(ctx, adminID)
}
