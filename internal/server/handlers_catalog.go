package server

import (
	"net/http"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	"github.com/theheadmen/cafeloyalty/internal/models"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

// Tiers

func (ls *ServerSystem) ListTiersHandler(w http.ResponseWriter, r *http.Request) {
	var tiers []dbconnector.Tier
	var err error
	if r.URL.Query().Get("active") == "true" {
		err = ls.Storage.GetActiveTiers(r.Context(), &tiers)
	} else {
		offset, limit := pagination(r)
		err = ls.Storage.GetTiers(r.Context(), offset, limit, &tiers)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

func (ls *ServerSystem) GetTierHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var tier dbconnector.Tier
	if err := ls.Storage.GetTier(r.Context(), id, &tier); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tier)
}

func (ls *ServerSystem) CreateTierHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TierRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tier, err := service.CreateTierLogic(r.Context(), ls.Storage, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tier)
}

func (ls *ServerSystem) UpdateTierHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.TierRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tier, err := service.UpdateTierLogic(r.Context(), ls.Storage, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tier)
}

func (ls *ServerSystem) DeleteTierHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := ls.Storage.DeleteTier(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Tier deleted successfully"})
}

func (ls *ServerSystem) GetTierRewardsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var tier dbconnector.Tier
	if err := ls.Storage.GetTier(r.Context(), id, &tier); err != nil {
		writeError(w, r, err)
		return
	}
	var rewards []dbconnector.Reward
	if err := ls.Storage.GetActiveRewardsByTier(r.Context(), id, &rewards); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

// Rewards

func (ls *ServerSystem) ListRewardsHandler(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	var rewards []dbconnector.Reward
	if err := ls.Storage.GetRewards(r.Context(), offset, limit, &rewards); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (ls *ServerSystem) GetRewardHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var reward dbconnector.Reward
	if err := ls.Storage.GetReward(r.Context(), id, &reward); err != nil {
		writeError(w, r, err)
		return
	}
	if err := ls.Storage.GetSpinnerOptions(r.Context(), id, &reward.SpinnerOptions); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (ls *ServerSystem) CreateRewardHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RewardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reward, err := service.CreateRewardLogic(r.Context(), ls.Storage, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (ls *ServerSystem) UpdateRewardHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.RewardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reward, err := service.UpdateRewardLogic(r.Context(), ls.Storage, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (ls *ServerSystem) DeleteRewardHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := ls.Storage.DeleteReward(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Reward deleted successfully"})
}

// Spinner options

func (ls *ServerSystem) ListSpinnerOptionsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var reward dbconnector.Reward
	if err := ls.Storage.GetReward(r.Context(), id, &reward); err != nil {
		writeError(w, r, err)
		return
	}
	var options []dbconnector.SpinnerOption
	if err := ls.Storage.GetSpinnerOptions(r.Context(), id, &options); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (ls *ServerSystem) CreateSpinnerOptionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.SpinnerOptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	option, err := service.CreateSpinnerOptionLogic(r.Context(), ls.Storage, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, option)
}

func (ls *ServerSystem) UpdateSpinnerOptionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.SpinnerOptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	option, err := service.UpdateSpinnerOptionLogic(r.Context(), ls.Storage, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, option)
}

func (ls *ServerSystem) DeleteSpinnerOptionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := ls.Storage.DeleteSpinnerOption(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Spinner option deleted successfully"})
}
