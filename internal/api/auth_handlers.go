package api

import (
	"encoding/json"
	"net/http"

	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/models"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// handleRegister creates a new login account
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	existing, err := s.db.GetUserByUsername(req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to check username: "+err.Error())
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "Username is already taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	id, err := s.db.CreateUser(models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create user: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "username": req.Username})
}

// handleLogin validates credentials and issues a session cookie. Attempts
// are rate limited per client address.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.Allow(clientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.db.GetUserByUsername(req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to look up user: "+err.Error())
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := auth.CreateSession(w, r, user.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	s.loginLimiter.Reset(clientIP(r))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":                   user.ID,
		"username":             user.Username,
		"must_change_password": user.MustChangePassword,
	})
}

// handleLogout destroys the current session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := auth.DestroySession(w, r); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to destroy session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.db.GetUserByID(requestUserID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load user: "+err.Error())
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "New password is required")
		return
	}

	user, err := s.db.GetUserByID(requestUserID(r))
	if err != nil || user == nil {
		respondError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.OldPassword) {
		respondError(w, http.StatusUnauthorized, "Old password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	if err := s.db.UpdateUserPassword(user.ID, hash); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update password: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
