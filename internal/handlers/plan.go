package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
	"github.com/Hunterkip/learnaisimply-sub000/internal/services"
)

type PlanHandler struct {
	service *services.PlanService
}

func NewPlanHandler(service *services.PlanService) *PlanHandler {
	return &PlanHandler{service: service}
}

func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		log.Printf("Failed to fetch plans: %v", err)
		http.Error(w, `{"error":"Failed to fetch plans"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *PlanHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var plan models.Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	id, err := h.service.CreatePlan(r.Context(), &plan)
	if err != nil {
		log.Printf("Failed to create plan: %v", err)
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *PlanHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	var plan models.Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	err := h.service.UpdatePlan(r.Context(), mux.Vars(r)["planID"], &plan)
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			http.Error(w, `{"error":"Plan not found"}`, http.StatusNotFound)
			return
		}
		log.Printf("Failed to update plan: %v", err)
		http.Error(w, `{"error":"Failed to update plan"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Plan updated"})
}

func (h *PlanHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeletePlan(r.Context(), mux.Vars(r)["planID"])
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			http.Error(w, `{"error":"Plan not found"}`, http.StatusNotFound)
			return
		}
		log.Printf("Failed to delete plan: %v", err)
		http.Error(w, `{"error":"Failed to delete plan"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Plan deleted"})
}
