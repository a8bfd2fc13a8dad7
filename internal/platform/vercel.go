package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

const vercelBaseURL = "https://api.vercel.com"

// vercelStatusTable maps deployment readyState values to canonical statuses
var vercelStatusTable = map[string]string{
	"READY":        models.StatusRunning,
	"ERROR":        models.StatusError,
	"BUILDING":     models.StatusDeploying,
	"INITIALIZING": models.StatusDeploying,
	"QUEUED":       models.StatusDeploying,
	"CANCELED":     models.StatusStopped,
}

// VercelAdapter talks to the Vercel REST API. A "container" here is a
// project together with its latest production deployment.
type VercelAdapter struct {
	api    *apiClient
	teamID string
}

// NewVercelAdapter creates an adapter for a Vercel token. extraConfig may
// carry a teamId to scope every call to a team.
func NewVercelAdapter(apiKey string, extraConfig map[string]string) *VercelAdapter {
	return &VercelAdapter{
		api:    newAPIClient(vercelBaseURL, apiKey),
		teamID: extraConfig["teamId"],
	}
}

// params returns query values with the team scope applied
func (a *VercelAdapter) params(extra url.Values) url.Values {
	query := url.Values{}
	for k, vs := range extra {
		query[k] = vs
	}
	if a.teamID != "" {
		query.Set("teamId", a.teamID)
	}
	return query
}

type vercelProject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework"`
}

type vercelDeployment struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

// TestConnection fetches the account profile to verify the token
func (a *VercelAdapter) TestConnection(ctx context.Context) error {
	return a.api.do(ctx, "GET", "/v2/user", nil, nil, &json.RawMessage{})
}

// ListContainers lists all projects with the status of their latest
// production deployment. A project whose deployment or domain lookup fails
// is reported with unknown status rather than dropped.
func (a *VercelAdapter) ListContainers(ctx context.Context) ([]RemoteContainer, error) {
	var resp struct {
		Projects []vercelProject `json:"projects"`
	}
	if err := a.api.do(ctx, "GET", "/v9/projects", a.params(nil), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	containers := make([]RemoteContainer, 0, len(resp.Projects))
	for _, project := range resp.Projects {
		latest, err := a.latestDeployment(ctx, project.ID, "production")
		if err != nil {
			slog.Debug("vercel: deployment lookup failed", "project", project.Name, "error", err)
			containers = append(containers, RemoteContainer{
				ID:     project.ID,
				Name:   project.Name,
				Status: models.StatusUnknown,
				Metadata: map[string]interface{}{
					"framework": project.Framework,
				},
			})
			continue
		}

		status := models.StatusUnknown
		metadata := map[string]interface{}{
			"framework": project.Framework,
			"domains":   a.projectDomains(ctx, project.ID),
		}
		if latest != nil {
			status = normalizeStatus(vercelStatusTable, latest.ReadyState)
			metadata["latestDeploymentId"] = latest.UID
			if latest.URL != "" {
				metadata["url"] = "https://" + latest.URL
			}
		}

		containers = append(containers, RemoteContainer{
			ID:       project.ID,
			Name:     project.Name,
			Status:   status,
			Metadata: metadata,
		})
	}

	return containers, nil
}

// GetContainer fetches a single project with its latest production
// deployment status
func (a *VercelAdapter) GetContainer(ctx context.Context, remoteID string) (*RemoteContainer, error) {
	var project vercelProject
	if err := a.api.do(ctx, "GET", "/v9/projects/"+remoteID, a.params(nil), nil, &project); err != nil {
		return nil, err
	}

	latest, err := a.latestDeployment(ctx, remoteID, "production")
	if err != nil {
		return &RemoteContainer{
			ID:     project.ID,
			Name:   project.Name,
			Status: models.StatusUnknown,
			Metadata: map[string]interface{}{
				"framework": project.Framework,
				"domains":   []string{},
			},
		}, nil
	}

	status := models.StatusUnknown
	metadata := map[string]interface{}{
		"framework": project.Framework,
		"domains":   a.projectDomains(ctx, remoteID),
	}
	if latest != nil {
		status = normalizeStatus(vercelStatusTable, latest.ReadyState)
		if latest.URL != "" {
			metadata["url"] = "https://" + latest.URL
		}
	}

	return &RemoteContainer{
		ID:       project.ID,
		Name:     project.Name,
		Status:   status,
		Metadata: metadata,
	}, nil
}

// RestartContainer redeploys the latest deployment of a project
func (a *VercelAdapter) RestartContainer(ctx context.Context, remoteID string) error {
	latest, err := a.latestDeployment(ctx, remoteID, "")
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("no deployment available to redeploy")
	}

	body := map[string]interface{}{
		"name":         latest.Name,
		"deploymentId": latest.UID,
	}
	query := url.Values{"forceNew": {"1"}}
	if a.teamID != "" {
		query.Set("teamId", a.teamID)
	}
	return a.api.do(ctx, "POST", "/v13/deployments?"+query.Encode(), nil, body, nil)
}

// StopContainer cancels the deployment currently building. Only a BUILDING
// deployment can be canceled.
func (a *VercelAdapter) StopContainer(ctx context.Context, remoteID string) error {
	query := a.params(url.Values{
		"projectId": {remoteID},
		"limit":     {"1"},
		"state":     {"BUILDING"},
	})
	var resp struct {
		Deployments []vercelDeployment `json:"deployments"`
	}
	if err := a.api.do(ctx, "GET", "/v6/deployments", query, nil, &resp); err != nil {
		return err
	}
	if len(resp.Deployments) == 0 {
		return fmt.Errorf("no building deployment to cancel")
	}

	path := "/v12/deployments/" + resp.Deployments[0].UID + "/cancel"
	if a.teamID != "" {
		path += "?teamId=" + url.QueryEscape(a.teamID)
	}
	return a.api.do(ctx, "PATCH", path, nil, nil, nil)
}

// StartContainer re-triggers the latest deployment
func (a *VercelAdapter) StartContainer(ctx context.Context, remoteID string) error {
	return a.RestartContainer(ctx, remoteID)
}

// DeleteContainer deletes a project
func (a *VercelAdapter) DeleteContainer(ctx context.Context, remoteID string) error {
	return a.api.do(ctx, "DELETE", "/v9/projects/"+remoteID, a.params(nil), nil, nil)
}

// GetContainerLogs fetches build/runtime events of the latest deployment
func (a *VercelAdapter) GetContainerLogs(ctx context.Context, remoteID string, lines int) ([]LogEntry, error) {
	latest, err := a.latestDeployment(ctx, remoteID, "")
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	var events []struct {
		Created int64 `json:"created"`
		Payload struct {
			Text string `json:"text"`
		} `json:"payload"`
		Text string `json:"text"`
	}
	query := url.Values{"direction": {"backward"}, "builds": {"1"}}
	if err := a.api.do(ctx, "GET", "/v2/deployments/"+latest.UID+"/events", query, nil, &events); err != nil {
		return nil, err
	}

	if lines > 0 && len(events) > lines {
		events = events[len(events)-lines:]
	}

	entries := make([]LogEntry, 0, len(events))
	for _, ev := range events {
		text := ev.Text
		if text == "" {
			text = ev.Payload.Text
		}
		entries = append(entries, LogEntry{Message: text})
	}
	return entries, nil
}

// latestDeployment returns the most recent deployment for a project, or
// nil when the project has none. target narrows to production when set.
func (a *VercelAdapter) latestDeployment(ctx context.Context, projectID, target string) (*vercelDeployment, error) {
	extra := url.Values{"projectId": {projectID}, "limit": {"1"}}
	if target != "" {
		extra.Set("target", target)
	}

	var resp struct {
		Deployments []vercelDeployment `json:"deployments"`
	}
	if err := a.api.do(ctx, "GET", "/v6/deployments", a.params(extra), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Deployments) == 0 {
		return nil, nil
	}
	return &resp.Deployments[0], nil
}

// projectDomains returns the domain names assigned to a project. Errors
// degrade to an empty list.
func (a *VercelAdapter) projectDomains(ctx context.Context, projectID string) []string {
	var resp struct {
		Domains []struct {
			Name string `json:"name"`
		} `json:"domains"`
	}
	if err := a.api.do(ctx, "GET", "/v9/projects/"+projectID+"/domains", a.params(nil), nil, &resp); err != nil {
		slog.Debug("vercel: domain lookup failed", "project", projectID, "error", err)
		return []string{}
	}

	domains := make([]string, 0, len(resp.Domains))
	for _, d := range resp.Domains {
		if d.Name != "" {
			domains = append(domains, d.Name)
		}
	}
	return domains
}
