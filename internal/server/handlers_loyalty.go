package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/theheadmen/cafeloyalty/internal/models"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

// CheckoutHandler records a visit. Clients should send an Idempotency-Key so
// that a retried request never counts twice; one is generated and echoed
// back when absent.
func (ls *ServerSystem) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = uuid.NewString()
	}
	w.Header().Set("Idempotency-Key", key)

	result, err := service.CheckoutLogic(r.Context(), ls.Storage, ls.Notifier, userID, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("request_id", requestID(r.Context())).Uint("user_id", userID).Str("state", string(result.State)).Msg("checkout done")
	writeJSON(w, http.StatusOK, result)
}

func (ls *ServerSystem) SpinHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SpinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == 0 || req.RewardID == 0 || req.VisitID == 0 {
		writeBadRequest(w, "user_id, reward_id and visit_id are required")
		return
	}
	result, err := service.SpinLogic(r.Context(), ls.Storage, ls.Random, ls.Notifier, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (ls *ServerSystem) UseRewardHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userReward, err := service.RedeemUserRewardLogic(r.Context(), ls.Storage, id, ls.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userReward)
}
