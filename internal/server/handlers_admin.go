package server

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	"github.com/theheadmen/cafeloyalty/internal/models"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

const maxLogoSize = 2 << 20

// Auth

func (ls *ServerSystem) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := service.LoginLogic(r.Context(), ls.Storage, ls.Hasher, ls.Tokens, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentAdmin(r.Context()))
}

func (ls *ServerSystem) RegisterSuperAdminHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AdminUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	admin, err := service.RegisterSuperAdminLogic(r.Context(), ls.Storage, ls.Hasher, ls.SuperAdminEmail, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

// Admin users

func (ls *ServerSystem) ListAdminsHandler(w http.ResponseWriter, r *http.Request) {
	var admins []dbconnector.AdminUser
	if err := ls.Storage.GetAdminUsers(r.Context(), &admins); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, admins)
}

func (ls *ServerSystem) CreateAdminHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AdminUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	admin, err := service.CreateAdminLogic(r.Context(), ls.Storage, ls.Hasher, currentAdmin(r.Context()).Role, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

func (ls *ServerSystem) UpdateAdminHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AdminUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	admin, err := service.UpdateAdminLogic(r.Context(), ls.Storage, ls.Hasher, currentAdmin(r.Context()).Role, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

func (ls *ServerSystem) DeleteAdminHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor := currentAdmin(r.Context())
	if actor.ID == id {
		writeBadRequest(w, "cannot delete your own account")
		return
	}
	if err := service.DeleteAdminLogic(r.Context(), ls.Storage, actor.Role, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Admin user deleted successfully"})
}

// App settings

func (ls *ServerSystem) GetAppSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := service.GetAppSettingsLogic(r.Context(), ls.Storage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (ls *ServerSystem) SaveAppSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AppSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := service.SaveAppSettingsLogic(r.Context(), ls.Storage, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UploadLogoHandler stores an uploaded image as a base64 data URL.
func (ls *ServerSystem) UploadLogoHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLogoSize+1<<10)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxLogoSize+1))
	if err != nil {
		writeBadRequest(w, "failed to read file")
		return
	}
	if len(data) > maxLogoSize {
		writeBadRequest(w, "logo is too large")
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		writeBadRequest(w, "File must be an image")
		return
	}

	logo := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	settings, err := service.SaveAppSettingsLogic(r.Context(), ls.Storage, models.AppSettingsRequest{CafeLogoBase64: &logo})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (ls *ServerSystem) DeleteAppSettingsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := ls.Storage.DeleteAppSettings(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "App settings deleted successfully"})
}
