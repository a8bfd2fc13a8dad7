package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/alerter"
	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/monitor"
	"github.com/fleetwatch/fleetwatch/internal/storage"
	"github.com/fleetwatch/fleetwatch/internal/watcher"
)

func setupTestServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "fleetwatch-api-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp db file: %v", err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	db, err := storage.New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	auth.InitSessionStore("test-session-secret")
	cipher := crypto.New("test-encryption-key")

	dispatcher := alerter.New(db, models.SMTPConfig{})
	mon := monitor.New(db, cipher, dispatcher, 30)
	sched := watcher.New(db, cipher, 30)
	t.Cleanup(sched.Stop)

	return New(db, cipher, mon, sched), db
}

// doJSON runs a request against the router, carrying session cookies
func doJSON(t *testing.T, server *Server, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, server *Server, username string) []*http.Cookie {
	t.Helper()

	rec := doJSON(t, server, "POST", "/api/auth/register", map[string]string{
		"username": username, "password": "hunter2",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Register failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, "POST", "/api/auth/login", map[string]string{
		"username": username, "password": "hunter2",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Login failed: %d %s", rec.Code, rec.Body.String())
	}

	return rec.Result().Cookies()
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doJSON(t, server, "GET", "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("Unexpected status: %s", resp["status"])
	}
}

func TestAuthFlow(t *testing.T) {
	server, _ := setupTestServer(t)

	// Protected routes reject anonymous requests
	rec := doJSON(t, server, "GET", "/api/auth/profile", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without session, got %d", rec.Code)
	}

	cookies := registerAndLogin(t, server, "alice")

	rec = doJSON(t, server, "GET", "/api/auth/profile", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with session, got %d: %s", rec.Code, rec.Body.String())
	}
	var user models.User
	if err := json.NewDecoder(rec.Body).Decode(&user); err != nil {
		t.Fatalf("Failed to decode profile: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Unexpected username: %s", user.Username)
	}

	// Duplicate registration is rejected
	rec = doJSON(t, server, "POST", "/api/auth/register", map[string]string{
		"username": "alice", "password": "other",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate username, got %d", rec.Code)
	}

	// Wrong password is rejected
	rec = doJSON(t, server, "POST", "/api/auth/login", map[string]string{
		"username": "alice", "password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	server, _ := setupTestServer(t)
	cookies := registerAndLogin(t, server, "alice")

	rec := doJSON(t, server, "POST", "/api/auth/change-password", map[string]string{
		"old_password": "wrong", "new_password": "next",
	}, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong old password, got %d", rec.Code)
	}

	rec = doJSON(t, server, "POST", "/api/auth/change-password", map[string]string{
		"old_password": "hunter2", "new_password": "correcthorse",
	}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, "POST", "/api/auth/login", map[string]string{
		"username": "alice", "password": "correcthorse",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected login with new password to succeed, got %d", rec.Code)
	}
}

func TestPlatformHandlers(t *testing.T) {
	server, db := setupTestServer(t)
	cookies := registerAndLogin(t, server, "alice")

	rec := doJSON(t, server, "POST", "/api/platforms", map[string]interface{}{
		"platform_type": models.PlatformVercel,
		"name":          "my vercel",
		"api_key":       "vercel-token",
		"extra_config":  map[string]string{"teamId": "team-1"},
	}, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Unsupported platform types are rejected up front
	rec = doJSON(t, server, "POST", "/api/platforms", map[string]interface{}{
		"platform_type": "heroku", "name": "x", "api_key": "y",
	}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsupported type, got %d", rec.Code)
	}

	rec = doJSON(t, server, "GET", "/api/platforms", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	listing := rec.Body.Bytes()
	var platforms []models.Platform
	if err := json.Unmarshal(listing, &platforms); err != nil {
		t.Fatalf("Failed to decode platforms: %v", err)
	}
	if len(platforms) != 1 {
		t.Fatalf("Expected 1 platform, got %d", len(platforms))
	}
	// The credential must never appear in listings
	if bytes.Contains(listing, []byte("vercel-token")) {
		t.Error("Plaintext credential leaked into listing")
	}

	// The stored credential is encrypted at rest
	stored, _ := db.GetUserPlatform(platforms[0].ID, platforms[0].UserID)
	if stored.APIKey == "vercel-token" {
		t.Error("Credential stored in plaintext")
	}

	// The reveal endpoint returns the decrypted credential
	rec = doJSON(t, server, "GET", "/api/platforms/1/apikey", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var reveal map[string]string
	json.NewDecoder(rec.Body).Decode(&reveal)
	if reveal["api_key"] != "vercel-token" {
		t.Errorf("Expected decrypted credential, got %q", reveal["api_key"])
	}

	// Other users cannot reach the platform
	otherCookies := registerAndLogin(t, server, "bob")
	rec = doJSON(t, server, "GET", "/api/platforms/1/apikey", nil, otherCookies)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for another user's platform, got %d", rec.Code)
	}

	rec = doJSON(t, server, "DELETE", "/api/platforms/1", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}

func TestBatchContainerAction(t *testing.T) {
	server, _ := setupTestServer(t)
	cookies := registerAndLogin(t, server, "alice")

	rec := doJSON(t, server, "POST", "/api/containers/batch", map[string]interface{}{
		"ids": []int64{1}, "action": "explode",
	}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", rec.Code)
	}

	rec = doJSON(t, server, "POST", "/api/containers/batch", map[string]interface{}{
		"ids": []int64{}, "action": "restart",
	}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty id list, got %d", rec.Code)
	}

	// Unknown containers are reported per id, not as a request failure
	rec = doJSON(t, server, "POST", "/api/containers/batch", map[string]interface{}{
		"ids": []int64{41, 42}, "action": "restart",
	}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Results []struct {
			ID      int64  `json:"id"`
			Success bool   `json:"success"`
			Error   string `json:"error"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resp.Results))
	}
	for _, res := range resp.Results {
		if res.Success || res.Error != "container not found" {
			t.Errorf("Unexpected result for container %d: %+v", res.ID, res)
		}
	}
}

func TestWatchTaskValidation(t *testing.T) {
	server, _ := setupTestServer(t)
	cookies := registerAndLogin(t, server, "alice")

	rec := doJSON(t, server, "POST", "/api/watch", map[string]interface{}{
		"name": "bad", "cron_expr": "not a cron",
	}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid cron, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, "POST", "/api/watch", map[string]interface{}{
		"name": "keep web up", "cron_expr": "*/5 * * * *",
	}, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, "GET", "/api/watch", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var tasks []models.WatchTask
	json.NewDecoder(rec.Body).Decode(&tasks)
	if len(tasks) != 1 || tasks[0].CronExpr != "*/5 * * * *" {
		t.Errorf("Unexpected tasks: %+v", tasks)
	}

	// Updating to an invalid expression is rejected and leaves the task alone
	rec = doJSON(t, server, "PUT", "/api/watch/1", map[string]interface{}{
		"cron_expr": "99 * * * *",
	}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid cron on update, got %d", rec.Code)
	}
}

func TestAlertChannelHandlers(t *testing.T) {
	server, _ := setupTestServer(t)
	cookies := registerAndLogin(t, server, "alice")

	rec := doJSON(t, server, "POST", "/api/alerts/channels", map[string]interface{}{
		"type": "pager", "config": map[string]string{},
	}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown channel type, got %d", rec.Code)
	}

	rec = doJSON(t, server, "POST", "/api/alerts/channels", map[string]interface{}{
		"type":   models.ChannelTypeWebhook,
		"config": map[string]string{"url": "https://hooks.example.com/x"},
	}, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, "GET", "/api/alerts", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var page map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&page)
	if page["total"] != float64(0) {
		t.Errorf("Expected empty alert history, got %v", page["total"])
	}

	rec = doJSON(t, server, "PUT", "/api/alerts/999/read", nil, cookies)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 marking a nonexistent alert read, got %d", rec.Code)
	}
}
