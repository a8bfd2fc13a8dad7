package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/gorilla/mux"
)

// handleGetAlerts returns a page of the user's alert history, newest first
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := paginationParams(r)

	alerts, total, err := s.db.GetAlertsByUser(requestUserID(r), pageSize, (page-1)*pageSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get alerts: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":    alerts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// handleMarkAlertRead marks one of the user's alerts as read
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	marked, err := s.db.MarkAlertRead(id, requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to mark alert read: "+err.Error())
		return
	}
	if !marked {
		respondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type alertChannelRequest struct {
	Type    string            `json:"type"`
	Config  map[string]string `json:"config"`
	Enabled *bool             `json:"enabled"`
}

func (s *Server) handleGetAlertChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.db.GetAlertChannelsByUser(requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get alert channels: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, channels)
}

func (s *Server) handleAddAlertChannel(w http.ResponseWriter, r *http.Request) {
	var req alertChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Type != models.ChannelTypeEmail && req.Type != models.ChannelTypeWebhook {
		respondError(w, http.StatusBadRequest, "Unknown channel type: "+req.Type)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	id, err := s.db.AddAlertChannel(models.AlertChannel{
		UserID:  requestUserID(r),
		Type:    req.Type,
		Config:  req.Config,
		Enabled: enabled,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to add alert channel: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdateAlertChannel(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userAlertChannel(w, r)
	if !ok {
		return
	}

	var req alertChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Config != nil {
		existing.Config = req.Config
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.db.UpdateAlertChannel(*existing); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update alert channel: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteAlertChannel(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userAlertChannel(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteAlertChannel(existing.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete alert channel: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) userAlertChannel(w http.ResponseWriter, r *http.Request) (*models.AlertChannel, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid channel ID")
		return nil, false
	}

	ch, err := s.db.GetUserAlertChannel(id, requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get alert channel: "+err.Error())
		return nil, false
	}
	if ch == nil {
		respondError(w, http.StatusNotFound, "Alert channel not found")
		return nil, false
	}
	return ch, true
}

// paginationParams reads page and page_size query parameters with sane
// bounds
func paginationParams(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20

	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			pageSize = parsed
		}
	}
	return page, pageSize
}
