package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/brokerage-sync/internal/api/request"
	"github.com/ndewijer/brokerage-sync/internal/api/response"
	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/service"
)

// SyncHandler handles HTTP requests for sync runs.
type SyncHandler struct {
	syncService *service.SyncService
	coordinator *service.Coordinator
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService *service.SyncService, coordinator *service.Coordinator) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		coordinator: coordinator,
	}
}

// TriggerResponse is returned when a run has been started.
type TriggerResponse struct {
	Status string `json:"status"`
}

// Latest handles GET requests for the most recent run.
//
// Endpoint: GET /api/sync/latest
// Response: 200 OK with model.SyncRun
// Error: 404 Not Found if no run has happened yet
func (h *SyncHandler) Latest(w http.ResponseWriter, r *http.Request) {
	run, err := h.syncService.LatestRun(r.Context())
	if err != nil {
		response.RespondServiceError(w, "failed to retrieve latest sync run", err)
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// History handles GET requests for past runs, newest first.
//
// Endpoint: GET /api/sync/history?limit=20
// Response: 200 OK with []model.SyncRun
// Error: 400 Bad Request if limit is not a positive integer
func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := request.ParseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid limit parameter", err.Error())
		return
	}

	runs, err := h.syncService.RunHistory(r.Context(), limit)
	if err != nil {
		response.RespondServiceError(w, "failed to retrieve sync history", err)
		return
	}

	response.RespondJSON(w, http.StatusOK, runs)
}

// Run handles GET requests for one run.
//
// Endpoint: GET /api/sync/{uuid}
// Response: 200 OK with model.SyncRun
// Error: 404 Not Found if the run does not exist
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.syncService.GetRun(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		response.RespondServiceError(w, "failed to retrieve sync run", err)
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// Trigger handles POST requests that start a run in the background.
//
// Endpoint: POST /api/sync
// Response: 202 Accepted with TriggerResponse
// Error: 409 Conflict if a run is already in progress
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Start(r.Context()); err != nil {
		if errors.Is(err, apperrors.ErrRunInProgress) {
			response.RespondError(w, http.StatusConflict, "sync already in progress", err.Error())
			return
		}
		response.RespondServiceError(w, "failed to start sync", err)
		return
	}

	response.RespondJSON(w, http.StatusAccepted, TriggerResponse{Status: "started"})
}
