package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/platform"
	"github.com/fleetwatch/fleetwatch/internal/storage"
	"github.com/robfig/cron/v3"
)

// AdapterFactory resolves a platform into a live adapter; swappable for
// tests
type AdapterFactory func(platformType, apiKey string, extraConfig map[string]string) (platform.Adapter, error)

// cronParser accepts standard five-field expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr reports whether expr is a valid five-field cron
// expression
func ValidateCronExpr(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// Scheduler owns the cron runner and the mapping from watch task ids to
// scheduled entries. Each firing runs the task's check-and-remediate pass.
type Scheduler struct {
	db      *storage.DB
	cipher  *crypto.Cipher
	resolve AdapterFactory
	timeout time.Duration

	cron *cron.Cron

	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

// New creates a Scheduler and starts its cron runner
func New(db *storage.DB, cipher *crypto.Cipher, timeoutSeconds int) *Scheduler {
	s := &Scheduler{
		db:      db,
		cipher:  cipher,
		resolve: platform.New,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		cron:    cron.New(cron.WithParser(cronParser)),
		entries: make(map[int64]cron.EntryID),
	}
	s.cron.Start()
	return s
}

// Stop halts the cron runner; running task passes finish on their own
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// LoadAll schedules every enabled watch task; called once at startup
func (s *Scheduler) LoadAll() error {
	tasks, err := s.db.GetEnabledWatchTasks()
	if err != nil {
		return fmt.Errorf("failed to load watch tasks: %w", err)
	}
	for _, task := range tasks {
		s.Schedule(task)
	}
	slog.Info("watch tasks loaded", "count", len(tasks))
	return nil
}

// Schedule registers a task with the cron runner, replacing any existing
// entry for the same task id. A disabled task is unscheduled. An invalid
// cron expression is logged and leaves the task without a scheduled
// entry; callers validate expressions before persisting them.
func (s *Scheduler) Schedule(task models.WatchTask) {
	s.Unschedule(task.ID)

	if !task.Enabled {
		return
	}

	taskID := task.ID
	entryID, err := s.cron.AddFunc(task.CronExpr, func() {
		s.runTask(context.Background(), taskID)
	})
	if err != nil {
		slog.Warn("invalid cron expression, task not scheduled",
			"task_id", task.ID, "cron", task.CronExpr, "error", err)
		return
	}

	s.mu.Lock()
	s.entries[task.ID] = entryID
	s.mu.Unlock()

	slog.Info("watch task scheduled", "task_id", task.ID, "name", task.Name, "cron", task.CronExpr)
}

// Unschedule removes a task's cron entry; no-op when the task has none
func (s *Scheduler) Unschedule(taskID int64) {
	s.mu.Lock()
	entryID, ok := s.entries[taskID]
	if ok {
		delete(s.entries, taskID)
	}
	s.mu.Unlock()

	if ok {
		s.cron.Remove(entryID)
	}
}

// runTask executes one watch pass: re-fetch live status for every bound
// container and restart the stopped or errored ones. Each container is
// processed independently; one failure never aborts the rest.
func (s *Scheduler) runTask(ctx context.Context, taskID int64) {
	// Re-check at fire time; the task may have been disabled or deleted
	// since it was scheduled
	task, err := s.db.GetEnabledWatchTask(taskID)
	if err != nil {
		slog.Error("failed to load watch task", "task_id", taskID, "error", err)
		return
	}
	if task == nil {
		return
	}

	targets, err := s.db.GetWatchTargets(taskID)
	if err != nil {
		slog.Error("failed to load watch targets", "task_id", taskID, "error", err)
		return
	}

	log := slog.With("task_id", taskID, "task", task.Name)
	log.Debug("watch run started", "targets", len(targets))

	for _, target := range targets {
		if err := s.checkTarget(ctx, taskID, target); err != nil {
			log.Error("watch check failed", "container", target.Name, "error", err)
			s.logResult(taskID, target.ContainerID, models.WatchActionCheck,
				models.WatchResultError, err.Error())
		}
	}
}

// checkTarget inspects one container and restarts it when it is stopped
// or errored. Success writes its own audit entry; any error is returned
// for the caller to record.
func (s *Scheduler) checkTarget(ctx context.Context, taskID int64, target storage.WatchTarget) error {
	apiKey, err := s.cipher.Decrypt(target.APIKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt credential: %w", err)
	}

	adapter, err := s.resolve(target.PlatformType, apiKey, target.ExtraConfig)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remote, err := adapter.GetContainer(opCtx, target.RemoteID)
	if err != nil {
		return fmt.Errorf("failed to fetch container state: %w", err)
	}

	status := remote.Status
	if status == "" {
		// Some platforms report no status for a quiescent workload;
		// keep the last stored one
		status = target.Status
	}

	if err := s.db.UpdateContainerStatus(target.ContainerID, status); err != nil {
		return fmt.Errorf("failed to update container status: %w", err)
	}

	if status == models.StatusStopped || status == models.StatusError {
		if err := adapter.StartContainer(opCtx, target.RemoteID); err != nil {
			return fmt.Errorf("failed to restart container: %w", err)
		}
		s.logResult(taskID, target.ContainerID, models.WatchActionRestart,
			models.WatchResultSuccess,
			fmt.Sprintf("container was %s, restart requested", status))
		slog.Info("container restarted by watch task",
			"task_id", taskID, "container", target.Name, "status", status)
		return nil
	}

	s.logResult(taskID, target.ContainerID, models.WatchActionCheck, models.WatchResultOK,
		fmt.Sprintf("container healthy: %s", status))
	return nil
}

func (s *Scheduler) logResult(taskID, containerID int64, action, result, message string) {
	err := s.db.InsertWatchLog(models.WatchLog{
		TaskID:      taskID,
		ContainerID: containerID,
		Action:      action,
		Result:      result,
		Message:     message,
	})
	if err != nil {
		slog.Error("failed to write watch log", "task_id", taskID, "error", err)
	}
}
