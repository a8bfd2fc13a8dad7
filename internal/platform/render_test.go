package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

func newRenderTestAdapter(handler http.Handler) (*RenderAdapter, *httptest.Server) {
	ts := httptest.NewServer(handler)
	adapter := NewRenderAdapter("test-key")
	adapter.api.baseURL = ts.URL
	return adapter, ts
}

func TestRenderListContainers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header: %s", auth)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"service": map[string]interface{}{
				"id": "srv-1", "name": "web", "type": "web_service", "suspended": "not_suspended",
				"serviceDetails": map[string]interface{}{
					"status": "live", "region": "oregon", "url": "https://web.onrender.com",
				},
			}},
			{"service": map[string]interface{}{
				"id": "srv-2", "name": "worker", "type": "background_worker", "suspended": "suspended",
				"serviceDetails": map[string]interface{}{"status": "suspended"},
			}},
		})
	})
	mux.HandleFunc("/services/srv-1/custom-domains", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"customDomain": map[string]interface{}{"domainName": "example.com"}},
		})
	})
	mux.HandleFunc("/services/srv-2/custom-domains", func(w http.ResponseWriter, r *http.Request) {
		// Lookup failure must not drop the service from the listing
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	adapter, ts := newRenderTestAdapter(mux)
	defer ts.Close()

	containers, err := adapter.ListContainers(context.Background())
	if err != nil {
		t.Fatalf("ListContainers failed: %v", err)
	}
	if len(containers) != 2 {
		t.Fatalf("Expected 2 containers, got %d", len(containers))
	}

	if containers[0].Status != models.StatusRunning {
		t.Errorf("Expected running for live service, got %s", containers[0].Status)
	}
	domains, _ := containers[0].Metadata["domains"].([]string)
	if len(domains) != 1 || domains[0] != "example.com" {
		t.Errorf("Expected custom domain example.com, got %v", containers[0].Metadata["domains"])
	}

	if containers[1].Status != models.StatusStopped {
		t.Errorf("Expected stopped for suspended service, got %s", containers[1].Status)
	}
}

func TestRenderDefaultDomainFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"service": map[string]interface{}{
				"id": "srv-1", "name": "web",
				"serviceDetails": map[string]interface{}{
					"status": "live", "url": "https://web.onrender.com",
				},
			}},
		})
	})
	mux.HandleFunc("/services/srv-1/custom-domains", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	})

	adapter, ts := newRenderTestAdapter(mux)
	defer ts.Close()

	containers, err := adapter.ListContainers(context.Background())
	if err != nil {
		t.Fatalf("ListContainers failed: %v", err)
	}

	domains, _ := containers[0].Metadata["domains"].([]string)
	if len(domains) != 1 || domains[0] != "web.onrender.com" {
		t.Errorf("Expected default domain without scheme, got %v", domains)
	}
}

func TestRenderNormalize(t *testing.T) {
	adapter := NewRenderAdapter("test-key")

	testCases := []struct {
		name     string
		status   string
		suspend  string
		expected string
	}{
		{"live", "live", "", models.StatusRunning},
		{"build failed", "build_failed", "", models.StatusError},
		{"deactivated", "deactivated", "", models.StatusStopped},
		{"unrecognized detail status", "something_new", "", models.StatusUnknown},
		{"suspended fallback", "", "suspended", models.StatusStopped},
		{"not suspended fallback", "", "not_suspended", models.StatusRunning},
		{"no information", "", "", models.StatusUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := renderService{Suspended: tc.suspend}
			svc.ServiceDetails.Status = tc.status
			if got := adapter.normalize(svc); got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestRenderLifecycleEndpoints(t *testing.T) {
	var gotPaths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	adapter, ts := newRenderTestAdapter(mux)
	defer ts.Close()

	ctx := context.Background()
	if err := adapter.RestartContainer(ctx, "srv-1"); err != nil {
		t.Fatalf("RestartContainer failed: %v", err)
	}
	if err := adapter.StopContainer(ctx, "srv-1"); err != nil {
		t.Fatalf("StopContainer failed: %v", err)
	}
	if err := adapter.StartContainer(ctx, "srv-1"); err != nil {
		t.Fatalf("StartContainer failed: %v", err)
	}
	if err := adapter.DeleteContainer(ctx, "srv-1"); err != nil {
		t.Fatalf("DeleteContainer failed: %v", err)
	}

	expected := []string{
		"POST /services/srv-1/restart",
		"POST /services/srv-1/suspend",
		"POST /services/srv-1/resume",
		"DELETE /services/srv-1",
	}
	if len(gotPaths) != len(expected) {
		t.Fatalf("Expected %d requests, got %d: %v", len(expected), len(gotPaths), gotPaths)
	}
	for i, want := range expected {
		if gotPaths[i] != want {
			t.Errorf("Request %d: expected %q, got %q", i, want, gotPaths[i])
		}
	}
}
