package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/store"
)

type createUserRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        string `json:"role" validate:"required,user_role"`
	Credits     int    `json:"credits" validate:"gte=0,lte=10000"`
}

type creditsRequest struct {
	Amount int `json:"amount" validate:"required,gt=0,lte=10000"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		internalError(w, r, "failed to list users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		internalError(w, r, "failed to look up user", err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "username taken", Code: "InvalidRequest", Fields: []string{"username"}})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         model.UserRole(req.Role),
		Active:       true,
		Credits:      req.Credits,
	})
	if err != nil {
		internalError(w, r, "failed to create user", err)
		return
	}

	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		internalError(w, r, "failed to reload user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func userIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	return id, err == nil
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if self := model.UserFromContext(r.Context()); self != nil && self.ID == id {
		// Admins cannot deactivate themselves.
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "NotFound")
			return
		}
		internalError(w, r, "failed to toggle user active", err)
		return
	}

	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		internalError(w, r, "failed to reload user", err)
		return
	}
	slog.Info("toggled user", "user_id", id, "active", u.Active)
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) handleAddCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	var req creditsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	balance, err := h.store.AddCredits(id, req.Amount)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "NotFound")
			return
		}
		internalError(w, r, "failed to add credits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}
