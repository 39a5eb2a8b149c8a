package service

import (
	"context"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

const (
	DefaultCafeName    = "Yavro Cafe"
	DefaultCafeTagline = "Brewing Connections, One Cup at a Time"
)

func DefaultAppSettings() dbconnector.AppSettings {
	return dbconnector.AppSettings{CafeName: DefaultCafeName, CafeTagline: DefaultCafeTagline, IsActive: true}
}

// GetAppSettingsLogic returns the active settings, or the defaults when none
// were saved yet.
func GetAppSettingsLogic(ctx context.Context, storage Storage) (dbconnector.AppSettings, error) {
	var settings dbconnector.AppSettings
	err := storage.GetAppSettings(ctx, &settings)
	if loyaltyerrors.KindOf(err) == loyaltyerrors.KindNotFound {
		return DefaultAppSettings(), nil
	}
	return settings, err
}

// SaveAppSettingsLogic applies the given fields on top of the active settings,
// creating them on first use.
func SaveAppSettingsLogic(ctx context.Context, storage Storage, req models.AppSettingsRequest) (dbconnector.AppSettings, error) {
	settings, err := GetAppSettingsLogic(ctx, storage)
	if err != nil {
		return settings, err
	}
	if req.CafeName != nil {
		settings.CafeName = *req.CafeName
	}
	if req.CafeTagline != nil {
		settings.CafeTagline = *req.CafeTagline
	}
	if req.CafeLogoBase64 != nil {
		if *req.CafeLogoBase64 == "" {
			settings.CafeLogoBase64 = nil
		} else {
			logo := *req.CafeLogoBase64
			settings.CafeLogoBase64 = &logo
		}
	}
	if settings.CafeName == "" {
		return settings, loyaltyerrors.Validation("app settings", loyaltyerrors.ErrMissingName)
	}
	err = storage.SaveAppSettings(ctx, &settings)
	return settings, err
}
