package platform

import (
	"context"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// RemoteContainer is a workload as reported by a platform API, normalized
// into the shape the rest of the system understands. ID is opaque to
// callers; adapters that need composite identifiers (service+environment)
// encode them into this single string.
type RemoteContainer struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// LogEntry is a single runtime log line from a remote workload
type LogEntry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message"`
	Stream    string `json:"stream,omitempty"`
}

// Adapter is the capability contract every platform implements.
// Adapters surface vendor errors faithfully and never retry; retry policy
// belongs to the caller.
type Adapter interface {
	// ListContainers returns every workload visible to the credential.
	// Auxiliary lookup failures (custom domains, latest deployment)
	// degrade the affected item's metadata, not the whole listing.
	ListContainers(ctx context.Context) ([]RemoteContainer, error)

	// GetContainer fetches the live state of a single workload
	GetContainer(ctx context.Context, remoteID string) (*RemoteContainer, error)

	StartContainer(ctx context.Context, remoteID string) error
	StopContainer(ctx context.Context, remoteID string) error
	RestartContainer(ctx context.Context, remoteID string) error
	DeleteContainer(ctx context.Context, remoteID string) error

	// GetContainerLogs returns up to lines recent runtime log entries
	GetContainerLogs(ctx context.Context, remoteID string, lines int) ([]LogEntry, error)

	// TestConnection performs the cheapest authenticated call and returns
	// an error on any failure. Used for credential validation only.
	TestConnection(ctx context.Context) error
}

// New resolves a platform type tag plus credentials into a live adapter
func New(platformType, apiKey string, extraConfig map[string]string) (Adapter, error) {
	switch platformType {
	case models.PlatformZeabur:
		return NewZeaburAdapter(apiKey), nil
	case models.PlatformRender:
		return NewRenderAdapter(apiKey), nil
	case models.PlatformKoyeb:
		return NewKoyebAdapter(apiKey), nil
	case models.PlatformVercel:
		return NewVercelAdapter(apiKey, extraConfig), nil
	default:
		return nil, fmt.Errorf("unsupported platform type: %s", platformType)
	}
}

// normalizeStatus maps a vendor status string into the canonical set via
// the adapter's lookup table. Unrecognized values map to unknown.
func normalizeStatus(table map[string]string, vendorStatus string) string {
	if status, ok := table[vendorStatus]; ok {
		return status
	}
	return models.StatusUnknown
}
