package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/platform"
	"github.com/gorilla/mux"
)

func (s *Server) handleGetContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := s.db.GetContainersByUser(requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get containers: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, containers)
}

// handleRefreshContainers runs a reconciliation pass over the user's
// platforms before responding, so the subsequent listing is current
func (s *Server) handleRefreshContainers(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.RunForUser(r.Context(), requestUserID(r)); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to refresh containers: "+err.Error())
		return
	}

	containers, err := s.db.GetContainersByUser(requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get containers: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, containers)
}

func (s *Server) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	container, _, ok := s.userContainer(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, container)
}

func (s *Server) handleStartContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(w, r, "start", models.StatusRunning,
		func(ctx context.Context, a platform.Adapter, remoteID string) error {
			return a.StartContainer(ctx, remoteID)
		})
}

func (s *Server) handleStopContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(w, r, "stop", models.StatusStopped,
		func(ctx context.Context, a platform.Adapter, remoteID string) error {
			return a.StopContainer(ctx, remoteID)
		})
}

func (s *Server) handleRestartContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(w, r, "restart", models.StatusRunning,
		func(ctx context.Context, a platform.Adapter, remoteID string) error {
			return a.RestartContainer(ctx, remoteID)
		})
}

func (s *Server) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	container, p, ok := s.userContainer(w, r)
	if !ok {
		return
	}

	adapter, ok := s.platformAdapter(w, p)
	if !ok {
		return
	}
	if err := adapter.DeleteContainer(r.Context(), container.RemoteID); err != nil {
		respondError(w, http.StatusBadGateway, "Failed to delete container: "+err.Error())
		return
	}

	if err := s.db.DeleteContainer(container.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete container record: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetContainerLogs(w http.ResponseWriter, r *http.Request) {
	container, p, ok := s.userContainer(w, r)
	if !ok {
		return
	}

	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid lines parameter")
			return
		}
		lines = parsed
	}

	adapter, ok := s.platformAdapter(w, p)
	if !ok {
		return
	}
	logs, err := adapter.GetContainerLogs(r.Context(), container.RemoteID, lines)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to get logs: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

type batchContainerRequest struct {
	IDs    []int64 `json:"ids"`
	Action string  `json:"action"`
}

type batchResult struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleBatchContainerAction applies one action to many containers. Each
// id is processed independently; a failure on one is reported in its
// result entry and never aborts the rest.
func (s *Server) handleBatchContainerAction(w http.ResponseWriter, r *http.Request) {
	var req batchContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "No container IDs given")
		return
	}
	if req.Action != "restart" && req.Action != "stop" && req.Action != "delete" {
		respondError(w, http.StatusBadRequest, "Unknown batch action: "+req.Action)
		return
	}

	userID := requestUserID(r)
	results := make([]batchResult, 0, len(req.IDs))
	for _, id := range req.IDs {
		if err := s.applyBatchAction(r.Context(), id, userID, req.Action); err != nil {
			results = append(results, batchResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, batchResult{ID: id, Success: true})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) applyBatchAction(ctx context.Context, id, userID int64, action string) error {
	container, p, err := s.db.GetUserContainer(id, userID)
	if err != nil {
		return err
	}
	if container == nil {
		return fmt.Errorf("container not found")
	}

	apiKey, err := s.cipher.Decrypt(p.APIKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt API key: %w", err)
	}
	adapter, err := platform.New(p.PlatformType, apiKey, p.ExtraConfig)
	if err != nil {
		return err
	}

	switch action {
	case "restart":
		if err := adapter.RestartContainer(ctx, container.RemoteID); err != nil {
			return err
		}
		return s.db.UpdateContainerStatus(container.ID, models.StatusRunning)
	case "stop":
		if err := adapter.StopContainer(ctx, container.RemoteID); err != nil {
			return err
		}
		return s.db.UpdateContainerStatus(container.ID, models.StatusStopped)
	default:
		if err := adapter.DeleteContainer(ctx, container.RemoteID); err != nil {
			return err
		}
		return s.db.DeleteContainer(container.ID)
	}
}

// containerAction runs a lifecycle operation against the remote platform
// and records the expected resulting status locally
func (s *Server) containerAction(w http.ResponseWriter, r *http.Request, action, resultStatus string,
	op func(context.Context, platform.Adapter, string) error) {

	container, p, ok := s.userContainer(w, r)
	if !ok {
		return
	}

	adapter, ok := s.platformAdapter(w, p)
	if !ok {
		return
	}
	if err := op(r.Context(), adapter, container.RemoteID); err != nil {
		respondError(w, http.StatusBadGateway, "Failed to "+action+" container: "+err.Error())
		return
	}

	if err := s.db.UpdateContainerStatus(container.ID, resultStatus); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update container status: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": resultStatus})
}

// userContainer resolves the {id} path variable to a container owned by
// the requesting user, writing the error response itself on failure
func (s *Server) userContainer(w http.ResponseWriter, r *http.Request) (*models.Container, *models.Platform, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid container ID")
		return nil, nil, false
	}

	container, p, err := s.db.GetUserContainer(id, requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get container: "+err.Error())
		return nil, nil, false
	}
	if container == nil {
		respondError(w, http.StatusNotFound, "Container not found")
		return nil, nil, false
	}
	return container, p, true
}

// platformAdapter decrypts the platform credential and builds its adapter
func (s *Server) platformAdapter(w http.ResponseWriter, p *models.Platform) (platform.Adapter, bool) {
	apiKey, err := s.cipher.Decrypt(p.APIKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decrypt API key")
		return nil, false
	}
	adapter, err := platform.New(p.PlatformType, apiKey, p.ExtraConfig)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return adapter, true
}
