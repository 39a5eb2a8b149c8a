package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	"github.com/theheadmen/cafeloyalty/internal/models"
	"github.com/theheadmen/cafeloyalty/internal/service"
)

func (ls *ServerSystem) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := service.RegisterUserLogic(r.Context(), ls.Storage, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (ls *ServerSystem) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	var users []dbconnector.User
	if err := ls.Storage.GetUsers(r.Context(), offset, limit, &users); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (ls *ServerSystem) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var user dbconnector.User
	if err := ls.Storage.GetUserByUserID(r.Context(), id, &user); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (ls *ServerSystem) GetUserByPhoneHandler(w http.ResponseWriter, r *http.Request) {
	user, err := service.FindUserByPhoneLogic(r.Context(), ls.Storage, mux.Vars(r)["phone"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (ls *ServerSystem) GetUserByEmailHandler(w http.ResponseWriter, r *http.Request) {
	user, err := service.FindUserByEmailLogic(r.Context(), ls.Storage, mux.Vars(r)["email"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (ls *ServerSystem) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.UserUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := service.UpdateUserLogic(r.Context(), ls.Storage, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (ls *ServerSystem) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := ls.Storage.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "User deleted successfully"})
}

func (ls *ServerSystem) GetUserVisitsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var user dbconnector.User
	if err := ls.Storage.GetUserByUserID(r.Context(), id, &user); err != nil {
		writeError(w, r, err)
		return
	}
	offset, limit := pagination(r)
	var visits []dbconnector.Visit
	if err := ls.Storage.GetVisitsByUserID(r.Context(), id, offset, limit, &visits); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visits)
}

func (ls *ServerSystem) GetUserRewardsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var user dbconnector.User
	if err := ls.Storage.GetUserByUserID(r.Context(), id, &user); err != nil {
		writeError(w, r, err)
		return
	}
	offset, limit := pagination(r)
	var userRewards []dbconnector.UserReward
	if err := ls.Storage.GetUserRewardsByUserID(r.Context(), id, offset, limit, &userRewards); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userRewards)
}
