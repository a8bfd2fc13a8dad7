package watcher

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/platform"
	"github.com/fleetwatch/fleetwatch/internal/storage"
)

type fakeAdapter struct {
	statuses  map[string]string
	getErrs   map[string]error
	restarted []string
}

func (f *fakeAdapter) GetContainer(ctx context.Context, remoteID string) (*platform.RemoteContainer, error) {
	if err := f.getErrs[remoteID]; err != nil {
		return nil, err
	}
	return &platform.RemoteContainer{ID: remoteID, Status: f.statuses[remoteID]}, nil
}

func (f *fakeAdapter) StartContainer(ctx context.Context, remoteID string) error {
	f.restarted = append(f.restarted, remoteID)
	return nil
}

func (f *fakeAdapter) ListContainers(ctx context.Context) ([]platform.RemoteContainer, error) {
	return nil, nil
}
func (f *fakeAdapter) StopContainer(ctx context.Context, remoteID string) error    { return nil }
func (f *fakeAdapter) RestartContainer(ctx context.Context, remoteID string) error { return nil }
func (f *fakeAdapter) DeleteContainer(ctx context.Context, remoteID string) error  { return nil }
func (f *fakeAdapter) GetContainerLogs(ctx context.Context, remoteID string, lines int) ([]platform.LogEntry, error) {
	return nil, nil
}
func (f *fakeAdapter) TestConnection(ctx context.Context) error { return nil }

type watcherFixture struct {
	db        *storage.DB
	scheduler *Scheduler
	adapter   *fakeAdapter
	userID    int64
	taskID    int64

	containerIDs map[string]int64
}

func setupWatcher(t *testing.T, remoteStatuses map[string]string) *watcherFixture {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "fleetwatch-watcher-test-*.db")
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

	cipher := crypto.New("test-secret")
	sched := New(db, cipher, 30)
	t.Cleanup(sched.Stop)

	adapter := &fakeAdapter{statuses: remoteStatuses, getErrs: make(map[string]error)}
	sched.resolve = func(platformType, apiKey string, extraConfig map[string]string) (platform.Adapter, error) {
		return adapter, nil
	}

	userID, err := db.CreateUser(models.User{Username: "alice", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	encrypted, err := cipher.Encrypt("api-key")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	platformID, err := db.AddPlatform(models.Platform{
		UserID:       userID,
		PlatformType: models.PlatformKoyeb,
		Name:         "koyeb",
		APIKey:       encrypted,
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("AddPlatform failed: %v", err)
	}

	taskID, err := db.AddWatchTask(models.WatchTask{
		UserID: userID, Name: "keep up", CronExpr: "*/5 * * * *", Enabled: true,
	})
	if err != nil {
		t.Fatalf("AddWatchTask failed: %v", err)
	}

	fx := &watcherFixture{
		db:           db,
		scheduler:    sched,
		adapter:      adapter,
		userID:       userID,
		taskID:       taskID,
		containerIDs: make(map[string]int64),
	}

	for remoteID := range remoteStatuses {
		containerID, err := db.InsertContainer(models.Container{
			PlatformID: platformID,
			RemoteID:   remoteID,
			Name:       remoteID,
			Status:     models.StatusRunning,
		})
		if err != nil {
			t.Fatalf("InsertContainer failed: %v", err)
		}
		fx.containerIDs[remoteID] = containerID
		if _, err := db.BindContainer(taskID, containerID, userID); err != nil {
			t.Fatalf("BindContainer failed: %v", err)
		}
	}

	return fx
}

func (fx *watcherFixture) logs(t *testing.T) []models.WatchLog {
	t.Helper()
	logs, _, err := fx.db.GetWatchLogs(fx.taskID, 100, 0)
	if err != nil {
		t.Fatalf("GetWatchLogs failed: %v", err)
	}
	return logs
}

func TestRunTaskRestartsStoppedContainer(t *testing.T) {
	fx := setupWatcher(t, map[string]string{"svc-1": models.StatusStopped})

	fx.scheduler.runTask(context.Background(), fx.taskID)

	if len(fx.adapter.restarted) != 1 || fx.adapter.restarted[0] != "svc-1" {
		t.Fatalf("Expected svc-1 to be restarted, got %v", fx.adapter.restarted)
	}

	logs := fx.logs(t)
	if len(logs) != 1 {
		t.Fatalf("Expected 1 watch log, got %d", len(logs))
	}
	if logs[0].Action != models.WatchActionRestart || logs[0].Result != models.WatchResultSuccess {
		t.Errorf("Unexpected log entry: %+v", logs[0])
	}
}

func TestRunTaskRestartsErroredContainer(t *testing.T) {
	fx := setupWatcher(t, map[string]string{"svc-1": models.StatusError})

	fx.scheduler.runTask(context.Background(), fx.taskID)

	if len(fx.adapter.restarted) != 1 {
		t.Fatalf("Expected restart for errored container, got %v", fx.adapter.restarted)
	}
}

func TestRunTaskChecksHealthyContainer(t *testing.T) {
	fx := setupWatcher(t, map[string]string{"svc-1": models.StatusRunning})

	fx.scheduler.runTask(context.Background(), fx.taskID)

	if len(fx.adapter.restarted) != 0 {
		t.Errorf("Healthy container must not be restarted: %v", fx.adapter.restarted)
	}

	logs := fx.logs(t)
	if len(logs) != 1 || logs[0].Action != models.WatchActionCheck || logs[0].Result != models.WatchResultOK {
		t.Fatalf("Expected a check/ok log entry, got %+v", logs)
	}
	if logs[0].Message != "container healthy: running" {
		t.Errorf("Expected status-bearing check message, got %q", logs[0].Message)
	}
}

func TestRunTaskEmptyStatusKeepsStored(t *testing.T) {
	// The platform reports no status; the stored one (running) wins and no
	// restart happens
	fx := setupWatcher(t, map[string]string{"svc-1": ""})

	fx.scheduler.runTask(context.Background(), fx.taskID)

	if len(fx.adapter.restarted) != 0 {
		t.Errorf("Expected no restart when status is unreported: %v", fx.adapter.restarted)
	}

	c, _, err := fx.db.GetUserContainer(fx.containerIDs["svc-1"], fx.userID)
	if err != nil || c == nil {
		t.Fatalf("GetUserContainer failed: %v", err)
	}
	if c.Status != models.StatusRunning {
		t.Errorf("Expected stored status to survive, got %s", c.Status)
	}
}

func TestRunTaskContainerFailureIsIsolated(t *testing.T) {
	fx := setupWatcher(t, map[string]string{
		"svc-bad":  models.StatusRunning,
		"svc-good": models.StatusStopped,
	})
	fx.adapter.getErrs["svc-bad"] = errors.New("boom")

	fx.scheduler.runTask(context.Background(), fx.taskID)

	// The healthy target is still remediated
	if len(fx.adapter.restarted) != 1 || fx.adapter.restarted[0] != "svc-good" {
		t.Errorf("Expected svc-good to be restarted despite svc-bad failing, got %v", fx.adapter.restarted)
	}

	var sawError bool
	for _, entry := range fx.logs(t) {
		if entry.Result == models.WatchResultError {
			sawError = true
			if entry.Message == "" {
				t.Error("Error log entries must carry a message")
			}
		}
	}
	if !sawError {
		t.Error("Expected an error log entry for the failed target")
	}
}

func TestRunTaskSkipsDisabledTask(t *testing.T) {
	fx := setupWatcher(t, map[string]string{"svc-1": models.StatusStopped})

	task, _ := fx.db.GetWatchTask(fx.taskID)
	task.Enabled = false
	if err := fx.db.UpdateWatchTask(*task); err != nil {
		t.Fatalf("UpdateWatchTask failed: %v", err)
	}

	fx.scheduler.runTask(context.Background(), fx.taskID)

	if len(fx.adapter.restarted) != 0 {
		t.Errorf("Disabled task must not act, got restarts: %v", fx.adapter.restarted)
	}
	if logs := fx.logs(t); len(logs) != 0 {
		t.Errorf("Disabled task must not log, got %d entries", len(logs))
	}
}

func TestScheduleAndUnschedule(t *testing.T) {
	fx := setupWatcher(t, nil)

	task := models.WatchTask{ID: 42, Name: "t", CronExpr: "*/5 * * * *", Enabled: true}
	fx.scheduler.Schedule(task)
	fx.scheduler.Schedule(task) // replacing is safe

	fx.scheduler.mu.Lock()
	entries := len(fx.scheduler.entries)
	fx.scheduler.mu.Unlock()
	if entries != 1 {
		t.Errorf("Expected exactly one entry after rescheduling, got %d", entries)
	}

	fx.scheduler.Unschedule(42)
	fx.scheduler.Unschedule(42) // no-op when absent

	fx.scheduler.mu.Lock()
	entries = len(fx.scheduler.entries)
	fx.scheduler.mu.Unlock()
	if entries != 0 {
		t.Errorf("Expected no entries after unscheduling, got %d", entries)
	}
}

func TestScheduleDisabledTaskRemovesEntry(t *testing.T) {
	fx := setupWatcher(t, nil)

	task := models.WatchTask{ID: 7, Name: "t", CronExpr: "0 * * * *", Enabled: true}
	fx.scheduler.Schedule(task)

	task.Enabled = false
	fx.scheduler.Schedule(task)

	fx.scheduler.mu.Lock()
	defer fx.scheduler.mu.Unlock()
	if len(fx.scheduler.entries) != 0 {
		t.Error("Expected disabled task to be unscheduled")
	}
}

func TestScheduleInvalidCronExpr(t *testing.T) {
	fx := setupWatcher(t, nil)

	fx.scheduler.Schedule(models.WatchTask{ID: 9, Name: "t", CronExpr: "not a cron", Enabled: true})

	fx.scheduler.mu.Lock()
	defer fx.scheduler.mu.Unlock()
	if len(fx.scheduler.entries) != 0 {
		t.Error("Invalid cron expression must not produce an entry")
	}
}

func TestValidateCronExpr(t *testing.T) {
	for _, valid := range []string{"* * * * *", "*/5 * * * *", "0 3 * * 1"} {
		if err := ValidateCronExpr(valid); err != nil {
			t.Errorf("Expected %q to validate, got %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "not a cron", "61 * * * *", "* * * *"} {
		if err := ValidateCronExpr(invalid); err == nil {
			t.Errorf("Expected %q to be rejected", invalid)
		}
	}
}
