package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

func TestKoyebListContainers(t *testing.T) {
	domainLookups := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"services": []map[string]interface{}{
				{"id": "svc-1", "name": "api", "status": "HEALTHY", "app_id": "app-1"},
				{"id": "svc-2", "name": "worker", "status": "DEGRADED", "app_id": "app-1"},
				{"id": "svc-3", "name": "cron", "status": "PAUSED", "app_id": "app-2"},
			},
		})
	})
	mux.HandleFunc("/domains", func(w http.ResponseWriter, r *http.Request) {
		domainLookups++
		if r.URL.Query().Get("app_id") == "app-1" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"domains": []map[string]interface{}{
					{"name": "api.koyeb.app", "status": "ACTIVE"},
					{"name": "pending.koyeb.app", "status": "PENDING"},
				},
			})
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()
	adapter := NewKoyebAdapter("test-token")
	adapter.api.baseURL = ts.URL

	containers, err := adapter.ListContainers(context.Background())
	if err != nil {
		t.Fatalf("ListContainers failed: %v", err)
	}
	if len(containers) != 3 {
		t.Fatalf("Expected 3 containers, got %d", len(containers))
	}

	// Domains are looked up once per distinct app
	if domainLookups != 2 {
		t.Errorf("Expected 2 domain lookups, got %d", domainLookups)
	}

	if containers[0].Status != models.StatusRunning {
		t.Errorf("Expected running for HEALTHY, got %s", containers[0].Status)
	}
	if containers[1].Status != models.StatusError {
		t.Errorf("Expected error for DEGRADED, got %s", containers[1].Status)
	}
	if containers[2].Status != models.StatusStopped {
		t.Errorf("Expected stopped for PAUSED, got %s", containers[2].Status)
	}

	domains, _ := containers[0].Metadata["domains"].([]string)
	if len(domains) != 1 || domains[0] != "api.koyeb.app" {
		t.Errorf("Expected only ACTIVE domains, got %v", domains)
	}

	// Failed lookup degrades to no domains but keeps the service
	if d, _ := containers[2].Metadata["domains"].([]string); len(d) != 0 {
		t.Errorf("Expected no domains for failed lookup, got %v", d)
	}
}

func TestKoyebGetContainerUnknownStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services/svc-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"service": map[string]interface{}{
				"id": "svc-1", "name": "api", "status": "STOPPING", "app_id": "app-1",
			},
		})
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()
	adapter := NewKoyebAdapter("test-token")
	adapter.api.baseURL = ts.URL

	container, err := adapter.GetContainer(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("GetContainer failed: %v", err)
	}
	if container.Status != models.StatusUnknown {
		t.Errorf("Expected unknown for unrecognized vendor status, got %s", container.Status)
	}
}
