// Copyright 2025 Certen Protocol
//
// Status API Handlers
// Provides HTTP endpoints for contract registration and task status

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/certen/exec-orchestrator/pkg/status"
)

// Registrar is the subset of *orchestrator.Orchestrator the status API
// depends on, kept narrow so this package doesn't import orchestrator
// directly and tests can fake it.
type Registrar interface {
	RegisterContract(address string, info map[string]interface{}) bool
	UnregisterContract(address string) bool
	GetAllTaskStatus() map[string]status.TaskStatus
}

// StatusHandlers provides HTTP handlers for contract registration and
// status queries.
type StatusHandlers struct {
	orch Registrar
}

// NewStatusHandlers creates status/registration handlers backed by
// orch.
func NewStatusHandlers(orch Registrar) *StatusHandlers {
	return &StatusHandlers{orch: orch}
}

type registerRequest struct {
	Address         string `json:"address"`
	UseExistingData bool   `json:"use_existing_data"`
}

// HandleRegisterContract handles POST /contracts requests.
func (h *StatusHandlers) HandleRegisterContract(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Address == "" {
		http.Error(w, `{"error":"address is required"}`, http.StatusBadRequest)
		return
	}

	ok := h.orch.RegisterContract(req.Address, map[string]interface{}{
		"use_existing_data": req.UseExistingData,
	})
	if !ok {
		http.Error(w, `{"error":"contract already registered"}`, http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"address": req.Address, "status": "REGISTERING"})
}

// HandleUnregisterContract handles DELETE /contracts/{addr} requests.
func (h *StatusHandlers) HandleUnregisterContract(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodDelete {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	address := strings.TrimPrefix(r.URL.Path, "/contracts/")
	if address == "" || address == r.URL.Path {
		http.Error(w, `{"error":"address is required"}`, http.StatusBadRequest)
		return
	}

	if ok := h.orch.UnregisterContract(address); !ok {
		http.Error(w, `{"error":"contract not registered"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleStatus handles GET /status requests: the full task-status
// snapshot across every registered contract.
func (h *StatusHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.orch.GetAllTaskStatus()
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		errMsg := fmt.Sprintf(`{"error":"failed to encode status: %s"}`, err.Error())
		http.Error(w, errMsg, http.StatusInternalServerError)
	}
}
