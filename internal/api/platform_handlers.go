package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/platform"
	"github.com/gorilla/mux"
)

type platformRequest struct {
	PlatformType string            `json:"platform_type"`
	Name         string            `json:"name"`
	APIKey       string            `json:"api_key"`
	ExtraConfig  map[string]string `json:"extra_config"`
	Enabled      *bool             `json:"enabled"`
}

func (s *Server) handleGetPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := s.db.GetPlatformsByUser(requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get platforms: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, platforms)
}

func (s *Server) handleAddPlatform(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.APIKey == "" {
		respondError(w, http.StatusBadRequest, "Name and API key are required")
		return
	}
	if _, err := platform.New(req.PlatformType, req.APIKey, req.ExtraConfig); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	encrypted, err := s.cipher.Encrypt(req.APIKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encrypt API key")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	id, err := s.db.AddPlatform(models.Platform{
		UserID:       requestUserID(r),
		PlatformType: req.PlatformType,
		Name:         req.Name,
		APIKey:       encrypted,
		ExtraConfig:  req.ExtraConfig,
		Enabled:      enabled,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to add platform: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdatePlatform(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userPlatform(w, r)
	if !ok {
		return
	}

	var req platformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.ExtraConfig != nil {
		existing.ExtraConfig = req.ExtraConfig
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	// An empty api_key keeps the stored credential
	if req.APIKey != "" {
		encrypted, err := s.cipher.Encrypt(req.APIKey)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to encrypt API key")
			return
		}
		existing.APIKey = encrypted
	}

	if err := s.db.UpdatePlatform(*existing); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update platform: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeletePlatform(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userPlatform(w, r)
	if !ok {
		return
	}
	if err := s.db.DeletePlatform(existing.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete platform: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleRevealAPIKey returns the decrypted credential to its owner
func (s *Server) handleRevealAPIKey(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userPlatform(w, r)
	if !ok {
		return
	}
	apiKey, err := s.cipher.Decrypt(existing.APIKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decrypt API key")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"api_key": apiKey})
}

// handleTestPlatform validates the stored credential against the live API
func (s *Server) handleTestPlatform(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.userPlatform(w, r)
	if !ok {
		return
	}

	apiKey, err := s.cipher.Decrypt(existing.APIKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decrypt API key")
		return
	}
	adapter, err := platform.New(existing.PlatformType, apiKey, existing.ExtraConfig)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := adapter.TestConnection(r.Context()); err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// userPlatform resolves the {id} path variable to a platform owned by the
// requesting user, writing the error response itself on failure
func (s *Server) userPlatform(w http.ResponseWriter, r *http.Request) (*models.Platform, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid platform ID")
		return nil, false
	}

	p, err := s.db.GetUserPlatform(id, requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get platform: "+err.Error())
		return nil, false
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "Platform not found")
		return nil, false
	}
	return p, true
}
