package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/watcher"
	"github.com/gorilla/mux"
)

type watchTaskRequest struct {
	Name     string `json:"name"`
	CronExpr string `json:"cron_expr"`
	Enabled  *bool  `json:"enabled"`
}

func (s *Server) handleGetWatchTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.db.GetWatchTasksByUser(requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get watch tasks: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleAddWatchTask(w http.ResponseWriter, r *http.Request) {
	var req watchTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if err := watcher.ValidateCronExpr(req.CronExpr); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cron expression: "+err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	task := models.WatchTask{
		UserID:   requestUserID(r),
		Name:     req.Name,
		CronExpr: req.CronExpr,
		Enabled:  enabled,
	}
	id, err := s.db.AddWatchTask(task)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to add watch task: "+err.Error())
		return
	}
	task.ID = id
	s.scheduler.Schedule(task)

	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdateWatchTask(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userWatchTask(w, r)
	if !ok {
		return
	}

	var req watchTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.CronExpr != "" {
		if err := watcher.ValidateCronExpr(req.CronExpr); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid cron expression: "+err.Error())
			return
		}
		existing.CronExpr = req.CronExpr
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.db.UpdateWatchTask(*existing); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update watch task: "+err.Error())
		return
	}
	s.scheduler.Schedule(*existing)

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteWatchTask(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userWatchTask(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteWatchTask(existing.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete watch task: "+err.Error())
		return
	}
	s.scheduler.Unschedule(existing.ID)

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleSetWatchContainers replaces the task's container bindings with the
// given set. Containers not owned by the user are silently skipped.
func (s *Server) handleSetWatchContainers(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userWatchTask(w, r)
	if !ok {
		return
	}

	var req struct {
		ContainerIDs []int64 `json:"container_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.db.ClearTaskContainers(existing.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear bindings: "+err.Error())
		return
	}

	bound := 0
	for _, containerID := range req.ContainerIDs {
		created, err := s.db.BindContainer(existing.ID, containerID, requestUserID(r))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to bind container: "+err.Error())
			return
		}
		if created {
			bound++
		}
	}

	respondJSON(w, http.StatusOK, map[string]int{"bound": bound})
}

func (s *Server) handleGetWatchLogs(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userWatchTask(w, r)
	if !ok {
		return
	}

	page, pageSize := paginationParams(r)
	logs, total, err := s.db.GetWatchLogs(existing.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get watch logs: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":      logs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) userWatchTask(w http.ResponseWriter, r *http.Request) (*models.WatchTask, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid task ID")
		return nil, false
	}

	task, err := s.db.GetUserWatchTask(id, requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get watch task: "+err.Error())
		return nil, false
	}
	if task == nil {
		respondError(w, http.StatusNotFound, "Watch task not found")
		return nil, false
	}
	return task, true
}
