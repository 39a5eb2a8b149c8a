package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	loyaltyerrors "github.com/theheadmen/cafeloyalty/internal/errors"
	"github.com/theheadmen/cafeloyalty/internal/models"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func statusOf(kind loyaltyerrors.Kind) int {
	switch kind {
	case loyaltyerrors.KindValidation:
		return http.StatusUnprocessableEntity
	case loyaltyerrors.KindNotFound:
		return http.StatusNotFound
	case loyaltyerrors.KindConflict:
		return http.StatusConflict
	case loyaltyerrors.KindConcurrency:
		return http.StatusServiceUnavailable
	case loyaltyerrors.KindUnauthorized:
		return http.StatusUnauthorized
	case loyaltyerrors.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps an error kind onto a status code and a stable body code.
// Internal errors never leak their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := loyaltyerrors.KindOf(err)
	status := statusOf(kind)
	message := err.Error()
	if kind == loyaltyerrors.KindUnknown {
		message = "internal server error"
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID(r.Context())).Str("kind", kind.String()).Msg("request failed")
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, models.ErrorResponse{Success: false, Code: kind.String(), Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Success: false, Code: "bad_request", Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || id == 0 {
		writeBadRequest(w, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// pagination reads skip and limit query parameters.
func pagination(r *http.Request) (offset, limit int) {
	limit = defaultPageLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("skip")); err == nil && v > 0 {
		offset = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxPageLimit)
	}
	return offset, limit
}

func reconcileOnce(ctx context.Context, ls *ServerSystem, grace time.Duration) {
	if _, err := service.ReconcileVisitsLogic(ctx, ls.Storage, ls.Notifier, grace, ls.Now()); err != nil {
		log.Error().Err(err).Msg("reconcile failed")
	}
}

// MakeGorutineToReconcileVisits periodically settles visits whose reward was
// left unsettled. The ticker is paused while a pass runs.
func MakeGorutineToReconcileVisits(ctx context.Context, ls *ServerSystem, interval, grace time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ticker.Stop()
				reconcileOnce(ctx, ls, grace)
				ticker.Reset(interval)
			}
		}
	}()
}
