package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/platform"
	"github.com/fleetwatch/fleetwatch/internal/storage"
	"github.com/google/uuid"
)

// AdapterFactory resolves a platform into a live adapter. Swappable for
// tests; defaults to platform.New.
type AdapterFactory func(platformType, apiKey string, extraConfig map[string]string) (platform.Adapter, error)

// AlertSink receives detected abnormal transitions
type AlertSink interface {
	TriggerAlert(ctx context.Context, containerID int64, alertType, message string, userID int64) error
}

// Monitor is the reconciliation loop: it synchronizes the local container
// mirror with each platform's authoritative listing and raises alerts on
// abnormal status transitions.
type Monitor struct {
	db      *storage.DB
	cipher  *crypto.Cipher
	alerts  AlertSink
	resolve AdapterFactory
	timeout time.Duration
}

// New creates a Monitor
func New(db *storage.DB, cipher *crypto.Cipher, alerts AlertSink, timeoutSeconds int) *Monitor {
	return &Monitor{
		db:      db,
		cipher:  cipher,
		alerts:  alerts,
		resolve: platform.New,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// Run reconciles every enabled platform across all users. Platforms are
// processed one at a time; a failure on one platform is logged and never
// aborts the rest of the pass.
func (m *Monitor) Run(ctx context.Context) {
	platforms, err := m.db.GetEnabledPlatforms()
	if err != nil {
		slog.Error("failed to load platforms", "error", err)
		return
	}
	m.runPlatforms(ctx, platforms)
}

// RunForUser reconciles only one user's enabled platforms; backs the
// manual refresh endpoint.
func (m *Monitor) RunForUser(ctx context.Context, userID int64) error {
	platforms, err := m.db.GetEnabledPlatformsByUser(userID)
	if err != nil {
		return fmt.Errorf("failed to load platforms: %w", err)
	}
	m.runPlatforms(ctx, platforms)
	return nil
}

func (m *Monitor) runPlatforms(ctx context.Context, platforms []models.Platform) {
	runID := uuid.NewString()[:8]
	log := slog.With("run", runID)

	for _, p := range platforms {
		if err := m.reconcilePlatform(ctx, p); err != nil {
			log.Error("platform reconciliation failed", "platform", p.Name, "error", err)
			continue
		}
		log.Debug("platform reconciled", "platform", p.Name)
	}
}

// reconcilePlatform performs one reconciliation pass for a single
// platform: upsert every remote container, alert on abnormal transitions,
// then tombstone local records the remote listing no longer contains.
func (m *Monitor) reconcilePlatform(ctx context.Context, p models.Platform) error {
	apiKey, err := m.cipher.Decrypt(p.APIKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt credential: %w", err)
	}

	adapter, err := m.resolve(p.PlatformType, apiKey, p.ExtraConfig)
	if err != nil {
		return err
	}

	listCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	remotes, err := adapter.ListContainers(listCtx)
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	remoteIDs := make(map[string]bool, len(remotes))
	for _, remote := range remotes {
		remoteIDs[remote.ID] = true

		existing, err := m.db.GetContainerByRemoteID(p.ID, remote.ID)
		if err != nil {
			return fmt.Errorf("failed to look up container %s: %w", remote.ID, err)
		}

		if existing == nil {
			// First discovery is silent: record the observed status, no alert
			if _, err := m.db.InsertContainer(models.Container{
				PlatformID: p.ID,
				RemoteID:   remote.ID,
				Name:       remote.Name,
				Status:     remote.Status,
				Metadata:   remote.Metadata,
			}); err != nil {
				return fmt.Errorf("failed to insert container %s: %w", remote.ID, err)
			}
			continue
		}

		prevStatus := existing.Status
		if err := m.db.UpdateContainerObserved(existing.ID, remote.Name, remote.Status, remote.Metadata); err != nil {
			return fmt.Errorf("failed to update container %s: %w", remote.ID, err)
		}

		if prevStatus != remote.Status && isAbnormal(remote.Status) {
			message := fmt.Sprintf("Container %q changed status from %s to %s",
				remote.Name, prevStatus, remote.Status)
			if err := m.alerts.TriggerAlert(ctx, existing.ID, models.AlertTypeStatusChange, message, p.UserID); err != nil {
				slog.Error("failed to dispatch alert", "container_id", existing.ID, "error", err)
			}
		}
	}

	// Tombstone step: drop local records whose remote id disappeared
	locals, err := m.db.GetContainersByPlatform(p.ID)
	if err != nil {
		return fmt.Errorf("failed to list local containers: %w", err)
	}
	for _, local := range locals {
		if !remoteIDs[local.RemoteID] {
			if err := m.db.DeleteContainer(local.ID); err != nil {
				return fmt.Errorf("failed to delete container %d: %w", local.ID, err)
			}
			slog.Info("container removed remotely, record deleted",
				"platform", p.Name, "container", local.Name)
		}
	}

	return nil
}

// isAbnormal reports whether a status transition into this state should
// raise an alert
func isAbnormal(status string) bool {
	return status == models.StatusError || status == models.StatusStopped
}
