package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

const koyebBaseURL = "https://app.koyeb.com/v1"

// koyebStatusTable maps Koyeb service statuses to canonical statuses
var koyebStatusTable = map[string]string{
	"STARTING":  models.StatusDeploying,
	"HEALTHY":   models.StatusRunning,
	"DEGRADED":  models.StatusError,
	"UNHEALTHY": models.StatusError,
	"PAUSING":   models.StatusStopped,
	"PAUSED":    models.StatusStopped,
	"RESUMING":  models.StatusDeploying,
	"UPDATING":  models.StatusDeploying,
	"DELETING":  models.StatusStopped,
	"DELETED":   models.StatusStopped,
	"ERROR":     models.StatusError,
}

// KoyebAdapter talks to the Koyeb REST API
type KoyebAdapter struct {
	api *apiClient
}

// NewKoyebAdapter creates an adapter for a Koyeb API token
func NewKoyebAdapter(apiKey string) *KoyebAdapter {
	return &KoyebAdapter{api: newAPIClient(koyebBaseURL, apiKey)}
}

type koyebService struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	AppID     string `json:"app_id"`
	CreatedAt string `json:"created_at"`
}

// TestConnection lists a single service to verify the token
func (a *KoyebAdapter) TestConnection(ctx context.Context) error {
	var resp struct {
		Services []koyebService `json:"services"`
	}
	return a.api.do(ctx, "GET", "/services", url.Values{"limit": {"1"}}, nil, &resp)
}

// ListContainers lists all services. Active domains are looked up once per
// distinct app; a failed domain lookup leaves those services without
// domains but keeps them in the result.
func (a *KoyebAdapter) ListContainers(ctx context.Context) ([]RemoteContainer, error) {
	var resp struct {
		Services []koyebService `json:"services"`
	}
	if err := a.api.do(ctx, "GET", "/services", url.Values{"limit": {"100"}}, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	domainsByApp := make(map[string][]string)
	for _, svc := range resp.Services {
		if svc.AppID == "" {
			continue
		}
		if _, done := domainsByApp[svc.AppID]; done {
			continue
		}
		domainsByApp[svc.AppID] = a.appDomains(ctx, svc.AppID)
	}

	containers := make([]RemoteContainer, 0, len(resp.Services))
	for _, svc := range resp.Services {
		containers = append(containers, RemoteContainer{
			ID:     svc.ID,
			Name:   svc.Name,
			Status: normalizeStatus(koyebStatusTable, svc.Status),
			Metadata: map[string]interface{}{
				"app_id":     svc.AppID,
				"created_at": svc.CreatedAt,
				"domains":    domainsByApp[svc.AppID],
			},
		})
	}

	return containers, nil
}

// GetContainer fetches a single service
func (a *KoyebAdapter) GetContainer(ctx context.Context, remoteID string) (*RemoteContainer, error) {
	var resp struct {
		Service koyebService `json:"service"`
	}
	if err := a.api.do(ctx, "GET", "/services/"+remoteID, nil, nil, &resp); err != nil {
		return nil, err
	}

	return &RemoteContainer{
		ID:     resp.Service.ID,
		Name:   resp.Service.Name,
		Status: normalizeStatus(koyebStatusTable, resp.Service.Status),
		Metadata: map[string]interface{}{
			"app_id": resp.Service.AppID,
		},
	}, nil
}

// RestartContainer redeploys a service
func (a *KoyebAdapter) RestartContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "POST", "/services/"+remoteID+"/redeploy", nil, nil, nil)
}

// StopContainer pauses a service
func (a *KoyebAdapter) StopContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "POST", "/services/"+remoteID+"/pause", nil, nil, nil)
}

// StartContainer resumes a paused service
func (a *KoyebAdapter) StartContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "POST", "/services/"+remoteID+"/resume", nil, nil, nil)
}

// DeleteContainer deletes a service
func (a *KoyebAdapter) DeleteContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "DELETE", "/services/"+remoteID, nil, nil, nil)
}

// GetContainerLogs fetches recent runtime logs for a service
func (a *KoyebAdapter) GetContainerLogs(ctx context.Context, remoteID string, lines int) ([]LogEntry, error) {
	var resp struct {
		Data []struct {
			CreatedAt string `json:"created_at"`
			Msg       string `json:"msg"`
			Labels    struct {
				Stream string `json:"stream"`
			} `json:"labels"`
		} `json:"data"`
	}
	query := url.Values{
		"service_id": {remoteID},
		"type":       {"runtime"},
		"limit":      {strconv.Itoa(lines)},
	}
	if err := a.api.do(ctx, "GET", "/streams/logs/query", query, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]LogEntry, 0, len(resp.Data))
	for _, entry := range resp.Data {
		entries = append(entries, LogEntry{
			Timestamp: entry.CreatedAt,
			Message:   entry.Msg,
			Stream:    entry.Labels.Stream,
		})
	}
	return entries, nil
}

// appDomains returns the active domain names for an app. Errors degrade to
// an empty list.
func (a *KoyebAdapter) appDomains(ctx context.Context, appID string) []string {
	var resp struct {
		Domains []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"domains"`
	}
	query := url.Values{"app_id": {appID}, "limit": {"50"}}
	if err := a.api.do(ctx, "GET", "/domains", query, nil, &resp); err != nil {
		slog.Debug("koyeb: domain lookup failed", "app_id", appID, "error", err)
		return nil
	}

	var domains []string
	for _, d := range resp.Domains {
		if d.Status == "ACTIVE" {
			domains = append(domains, d.Name)
		}
	}
	return domains
}
