package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	adminKey
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with an id and logs it once served.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))

		event := log.Info()
		if rec.status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func currentAdmin(ctx context.Context) dbconnector.AdminUser {
	admin, _ := ctx.Value(adminKey).(dbconnector.AdminUser)
	return admin
}

// authenticate resolves the bearer token into an active admin user.
func (ls *ServerSystem) authenticate(r *http.Request) (dbconnector.AdminUser, error) {
	var admin dbconnector.AdminUser
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return admin, loyaltyerrors.E(loyaltyerrors.KindUnauthorized, "authenticate", loyaltyerrors.ErrInvalidCredentials)
	}
	claims, err := ls.Tokens.Validate(token)
	if err != nil {
		return admin, loyaltyerrors.E(loyaltyerrors.KindUnauthorized, "authenticate", err)
	}
	err = ls.Storage.GetAdminByUsername(r.Context(), claims.Subject, &admin)
	if loyaltyerrors.KindOf(err) == loyaltyerrors.KindNotFound {
		return admin, loyaltyerrors.E(loyaltyerrors.KindUnauthorized, "authenticate", loyaltyerrors.ErrInvalidCredentials)
	}
	if err != nil {
		return admin, err
	}
	if !admin.IsActive {
		return admin, loyaltyerrors.E(loyaltyerrors.KindForbidden, "authenticate", loyaltyerrors.ErrInactiveAdmin)
	}
	return admin, nil
}

func (ls *ServerSystem) withRole(allowed func(dbconnector.AdminRole) bool, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, err := ls.authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !allowed(admin.Role) {
			writeError(w, r, loyaltyerrors.E(loyaltyerrors.KindForbidden, "authorize", loyaltyerrors.ErrForbidden))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), adminKey, admin)))
	})
}

// staff admits every active admin user, the POS role included.
func (ls *ServerSystem) staff(next http.HandlerFunc) http.Handler {
	return ls.withRole(func(dbconnector.AdminRole) bool { return true }, next)
}

// manager admits admins and super-admins.
func (ls *ServerSystem) manager(next http.HandlerFunc) http.Handler {
	return ls.withRole(service.CanManage, next)
}
