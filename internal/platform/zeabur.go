package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

const zeaburGraphQLURL = "https://api.zeabur.com/graphql"

// zeaburStatusTable maps Zeabur service statuses to canonical statuses
var zeaburStatusTable = map[string]string{
	"RUNNING":   models.StatusRunning,
	"STOPPED":   models.StatusStopped,
	"DEPLOYING": models.StatusDeploying,
	"SUSPENDED": models.StatusStopped,
	"ERROR":     models.StatusError,
}

// ZeaburAdapter talks to the Zeabur GraphQL API. Zeabur scopes a service's
// status to an environment, so remote ids carry both halves as
// "serviceID:environmentID".
type ZeaburAdapter struct {
	api *apiClient
}

// NewZeaburAdapter creates an adapter for a Zeabur API token
func NewZeaburAdapter(apiKey string) *ZeaburAdapter {
	return &ZeaburAdapter{api: newAPIClient(zeaburGraphQLURL, apiKey)}
}

type zeaburResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query runs a GraphQL query and decodes the data payload into out
func (a *ZeaburAdapter) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body := map[string]interface{}{"query": query}
	if len(variables) > 0 {
		body["variables"] = variables
	}

	var resp zeaburResponse
	if err := a.api.do(ctx, "POST", "", nil, body, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}

// TestConnection verifies the token by fetching the account profile
func (a *ZeaburAdapter) TestConnection(ctx context.Context) error {
	return a.query(ctx, `query { me { username } }`, nil, nil)
}

type zeaburProject struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Environments []struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
	} `json:"environments"`
}

func (a *ZeaburAdapter) listProjects(ctx context.Context) ([]zeaburProject, error) {
	var data struct {
		Projects struct {
			Edges []struct {
				Node zeaburProject `json:"node"`
			} `json:"edges"`
		} `json:"projects"`
	}

	query := `
		query {
			projects(limit: 100) {
				edges {
					node {
						_id
						name
						environments {
							_id
							name
						}
					}
				}
			}
		}`
	if err := a.query(ctx, query, nil, &data); err != nil {
		return nil, err
	}

	projects := make([]zeaburProject, 0, len(data.Projects.Edges))
	for _, edge := range data.Projects.Edges {
		projects = append(projects, edge.Node)
	}
	return projects, nil
}

// ListContainers enumerates services across all projects. Services are
// queried per project in the project's first environment.
func (a *ZeaburAdapter) ListContainers(ctx context.Context) ([]RemoteContainer, error) {
	projects, err := a.listProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var containers []RemoteContainer
	for _, project := range projects {
		if len(project.Environments) == 0 {
			continue
		}
		envID := project.Environments[0].ID

		var data struct {
			Services struct {
				Edges []struct {
					Node struct {
						ID      string `json:"_id"`
						Name    string `json:"name"`
						Status  string `json:"status"`
						Domains []struct {
							Domain string `json:"domain"`
						} `json:"domains"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"services"`
		}

		query := `
			query($projectID: ObjectID!, $environmentID: ObjectID!) {
				services(projectID: $projectID, limit: 100) {
					edges {
						node {
							_id
							name
							status(environmentID: $environmentID)
							domains(environmentID: $environmentID) {
								domain
							}
						}
					}
				}
			}`
		err := a.query(ctx, query, map[string]interface{}{
			"projectID":     project.ID,
			"environmentID": envID,
		}, &data)
		if err != nil {
			return nil, fmt.Errorf("failed to list services for project %s: %w", project.Name, err)
		}

		for _, edge := range data.Services.Edges {
			svc := edge.Node
			domains := make([]string, 0, len(svc.Domains))
			for _, d := range svc.Domains {
				domains = append(domains, d.Domain)
			}

			containers = append(containers, RemoteContainer{
				ID:     encodeZeaburID(svc.ID, envID),
				Name:   svc.Name,
				Status: normalizeStatus(zeaburStatusTable, svc.Status),
				Metadata: map[string]interface{}{
					"projectId":     project.ID,
					"projectName":   project.Name,
					"environmentId": envID,
					"domains":       domains,
				},
			})
		}
	}

	return containers, nil
}

// GetContainer fetches a single service's status
func (a *ZeaburAdapter) GetContainer(ctx context.Context, remoteID string) (*RemoteContainer, error) {
	svcID, envID, err := decodeZeaburID(remoteID)
	if err != nil {
		return nil, err
	}

	var data struct {
		Service struct {
			ID     string `json:"_id"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"service"`
	}

	query := `
		query($id: ObjectID!, $environmentID: ObjectID!) {
			service(_id: $id) {
				_id
				name
				status(environmentID: $environmentID)
			}
		}`
	err = a.query(ctx, query, map[string]interface{}{
		"id":            svcID,
		"environmentID": envID,
	}, &data)
	if err != nil {
		return nil, err
	}

	return &RemoteContainer{
		ID:     remoteID,
		Name:   data.Service.Name,
		Status: normalizeStatus(zeaburStatusTable, data.Service.Status),
	}, nil
}

// RestartContainer restarts a service in its environment
func (a *ZeaburAdapter) RestartContainer(ctx context.Context, remoteID string) error {
	svcID, envID, err := decodeZeaburID(remoteID)
	if err != nil {
		return err
	}
	mutation := `
		mutation($serviceID: ObjectID!, $environmentID: ObjectID!) {
			restartService(serviceID: $serviceID, environmentID: $environmentID)
		}`
	return a.query(ctx, mutation, map[string]interface{}{
		"serviceID":     svcID,
		"environmentID": envID,
	}, nil)
}

// StopContainer suspends a service
func (a *ZeaburAdapter) StopContainer(ctx context.Context, remoteID string) error {
	svcID, envID, err := decodeZeaburID(remoteID)
	if err != nil {
		return err
	}
	mutation := `
		mutation($serviceID: ObjectID!, $environmentID: ObjectID!) {
			suspendService(serviceID: $serviceID, environmentID: $environmentID)
		}`
	return a.query(ctx, mutation, map[string]interface{}{
		"serviceID":     svcID,
		"environmentID": envID,
	}, nil)
}

// StartContainer resumes a suspended service. Zeabur has no dedicated
// resume call; restarting brings a suspended service back up.
func (a *ZeaburAdapter) StartContainer(ctx context.Context, remoteID string) error {
	return a.RestartContainer(ctx, remoteID)
}

// DeleteContainer deletes a service
func (a *ZeaburAdapter) DeleteContainer(ctx context.Context, remoteID string) error {
	svcID, envID, err := decodeZeaburID(remoteID)
	if err != nil {
		return err
	}
	mutation := `
		mutation($id: ObjectID!, $environmentID: ObjectID!) {
			deleteService(_id: $id, environmentID: $environmentID)
		}`
	return a.query(ctx, mutation, map[string]interface{}{
		"id":            svcID,
		"environmentID": envID,
	}, nil)
}

// GetContainerLogs fetches recent runtime logs for a service
func (a *ZeaburAdapter) GetContainerLogs(ctx context.Context, remoteID string, lines int) ([]LogEntry, error) {
	svcID, envID, err := decodeZeaburID(remoteID)
	if err != nil {
		return nil, err
	}

	// Runtime logs are scoped to the project, which is not part of the
	// remote id; look it up through the service first.
	var svcData struct {
		Service struct {
			Project struct {
				ID string `json:"_id"`
			} `json:"project"`
		} `json:"service"`
	}
	err = a.query(ctx, `
		query($id: ObjectID!) {
			service(_id: $id) { project { _id } }
		}`, map[string]interface{}{"id": svcID}, &svcData)
	if err != nil {
		return nil, err
	}

	var logData struct {
		RuntimeLogs []struct {
			Timestamp string `json:"timestamp"`
			Message   string `json:"message"`
		} `json:"runtimeLogs"`
	}
	err = a.query(ctx, `
		query($projectID: ObjectID!, $serviceID: ObjectID!, $environmentID: ObjectID!) {
			runtimeLogs(projectID: $projectID, serviceID: $serviceID, environmentID: $environmentID) {
				timestamp
				message
			}
		}`, map[string]interface{}{
		"projectID":     svcData.Service.Project.ID,
		"serviceID":     svcID,
		"environmentID": envID,
	}, &logData)
	if err != nil {
		return nil, err
	}

	logs := logData.RuntimeLogs
	if lines > 0 && len(logs) > lines {
		logs = logs[len(logs)-lines:]
	}

	entries := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, LogEntry{Timestamp: l.Timestamp, Message: l.Message})
	}
	return entries, nil
}

func encodeZeaburID(serviceID, environmentID string) string {
	return serviceID + ":" + environmentID
}

func decodeZeaburID(remoteID string) (serviceID, environmentID string, err error) {
	serviceID, environmentID, ok := strings.Cut(remoteID, ":")
	if !ok || serviceID == "" || environmentID == "" {
		return "", "", fmt.Errorf("invalid zeabur remote id: %q", remoteID)
	}
	return serviceID, environmentID, nil
}
