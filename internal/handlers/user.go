package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Hunterkip/learnaisimply-sub000/internal/middleware"
	"github.com/Hunterkip/learnaisimply-sub000/internal/services"
)

type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullname"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		log.Printf("Failed to register %s: %v", req.Email, err)
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID.Hex(), "email": user.Email})
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, `{"error":"Invalid email or password"}`, http.StatusUnauthorized)
		return
	}

	token, err := middleware.GenerateJWT(user.Email)
	if err != nil {
		log.Printf("Failed to sign token for %s: %v", user.Email, err)
		http.Error(w, `{"error":"Failed to create session"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"email":      user.Email,
		"has_access": user.HasAccess,
		"plan":       user.Plan,
	})
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.CallerEmail(r)
	if !ok {
		http.Error(w, `{"error":"Authentication required"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetByEmail(r.Context(), email)
	if err != nil {
		http.Error(w, `{"error":"Failed to fetch profile"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
