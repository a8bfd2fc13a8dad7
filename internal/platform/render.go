package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

const renderBaseURL = "https://api.render.com/v1"

// renderStatusTable maps serviceDetails.status values to canonical statuses
var renderStatusTable = map[string]string{
	"live":         models.StatusRunning,
	"build_failed": models.StatusError,
	"suspended":    models.StatusStopped,
	"not_found":    models.StatusError,
	"deactivated":  models.StatusStopped,
	"unknown":      models.StatusUnknown,
}

// RenderAdapter talks to the Render REST API
type RenderAdapter struct {
	api *apiClient
}

// NewRenderAdapter creates an adapter for a Render API key
func NewRenderAdapter(apiKey string) *RenderAdapter {
	return &RenderAdapter{api: newAPIClient(renderBaseURL, apiKey)}
}

type renderService struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Suspended      string `json:"suspended"`
	ServiceDetails struct {
		Status string `json:"status"`
		Region string `json:"region"`
		URL    string `json:"url"`
	} `json:"serviceDetails"`
}

// renderServiceItem handles both listing shapes: {"service": {...}} cursor
// envelopes and bare service objects.
type renderServiceItem struct {
	Service *renderService `json:"service"`
	renderService
}

func (i renderServiceItem) unwrap() renderService {
	if i.Service != nil {
		return *i.Service
	}
	return i.renderService
}

type renderDomainItem struct {
	CustomDomain *struct {
		DomainName string `json:"domainName"`
		Name       string `json:"name"`
	} `json:"customDomain"`
	DomainName string `json:"domainName"`
	Name       string `json:"name"`
}

func (d renderDomainItem) domain() string {
	if d.CustomDomain != nil {
		if d.CustomDomain.DomainName != "" {
			return d.CustomDomain.DomainName
		}
		return d.CustomDomain.Name
	}
	if d.DomainName != "" {
		return d.DomainName
	}
	return d.Name
}

// TestConnection lists a single service to verify the key
func (a *RenderAdapter) TestConnection(ctx context.Context) error {
	return a.api.do(ctx, "GET", "/services", url.Values{"limit": {"1"}}, nil, &json.RawMessage{})
}

// ListContainers lists all services with their custom domains. A failed
// domain lookup leaves that service without custom domains but keeps it in
// the result.
func (a *RenderAdapter) ListContainers(ctx context.Context) ([]RemoteContainer, error) {
	var items []renderServiceItem
	if err := a.api.do(ctx, "GET", "/services", url.Values{"limit": {"100"}}, nil, &items); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	containers := make([]RemoteContainer, 0, len(items))
	for _, item := range items {
		svc := item.unwrap()
		domains := a.customDomains(ctx, svc.ID)

		// Fall back to the default Render domain when no custom domain is set
		if len(domains) == 0 && svc.ServiceDetails.URL != "" {
			domains = []string{stripScheme(svc.ServiceDetails.URL)}
		}

		containers = append(containers, RemoteContainer{
			ID:     svc.ID,
			Name:   svc.Name,
			Status: a.normalize(svc),
			Metadata: map[string]interface{}{
				"type":      svc.Type,
				"region":    svc.ServiceDetails.Region,
				"url":       svc.ServiceDetails.URL,
				"domains":   domains,
				"suspended": svc.Suspended,
			},
		})
	}

	return containers, nil
}

// GetContainer fetches a single service
func (a *RenderAdapter) GetContainer(ctx context.Context, remoteID string) (*RemoteContainer, error) {
	var svc renderService
	if err := a.api.do(ctx, "GET", "/services/"+remoteID, nil, nil, &svc); err != nil {
		return nil, err
	}

	domains := a.customDomains(ctx, remoteID)
	if len(domains) == 0 && svc.ServiceDetails.URL != "" {
		domains = []string{stripScheme(svc.ServiceDetails.URL)}
	}

	return &RemoteContainer{
		ID:     svc.ID,
		Name:   svc.Name,
		Status: a.normalize(svc),
		Metadata: map[string]interface{}{
			"type":    svc.Type,
			"url":     svc.ServiceDetails.URL,
			"domains": domains,
		},
	}, nil
}

// RestartContainer restarts a service
func (a *RenderAdapter) RestartContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "POST", "/services/"+remoteID+"/restart", nil, nil, nil)
}

// StopContainer suspends a service
func (a *RenderAdapter) StopContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "POST", "/services/"+remoteID+"/suspend", nil, nil, nil)
}

// StartContainer resumes a suspended service
func (a *RenderAdapter) StartContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "POST", "/services/"+remoteID+"/resume", nil, nil, nil)
}

// DeleteContainer deletes a service
func (a *RenderAdapter) DeleteContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "DELETE", "/services/"+remoteID, nil, nil, nil)
}

// GetContainerLogs fetches recent logs for a service
func (a *RenderAdapter) GetContainerLogs(ctx context.Context, remoteID string, lines int) ([]LogEntry, error) {
	var resp struct {
		Logs []struct {
			Timestamp string `json:"timestamp"`
			Message   string `json:"message"`
		} `json:"logs"`
	}
	query := url.Values{
		"resourceIds[]": {remoteID},
		"limit":         {strconv.Itoa(lines)},
		"direction":     {"backward"},
	}
	if err := a.api.do(ctx, "GET", "/logs", query, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]LogEntry, 0, len(resp.Logs))
	for _, l := range resp.Logs {
		entries = append(entries, LogEntry{Timestamp: l.Timestamp, Message: l.Message})
	}
	return entries, nil
}

// customDomains returns the active custom domain names for a service.
// Errors degrade to an empty list.
func (a *RenderAdapter) customDomains(ctx context.Context, serviceID string) []string {
	var items []renderDomainItem
	if err := a.api.do(ctx, "GET", "/services/"+serviceID+"/custom-domains", nil, nil, &items); err != nil {
		slog.Debug("render: custom domain lookup failed", "service", serviceID, "error", err)
		return nil
	}

	var domains []string
	for _, item := range items {
		if d := item.domain(); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// normalize prefers the detailed status and falls back to the top-level
// suspended flag when the details are missing.
func (a *RenderAdapter) normalize(svc renderService) string {
	if svc.ServiceDetails.Status != "" {
		return normalizeStatus(renderStatusTable, svc.ServiceDetails.Status)
	}
	switch svc.Suspended {
	case "suspended":
		return models.StatusStopped
	case "not_suspended":
		return models.StatusRunning
	}
	return models.StatusUnknown
}

func stripScheme(u string) string {
	u = strings.TrimPrefix(u, "https://")
	return strings.TrimPrefix(u, "http://")
}
