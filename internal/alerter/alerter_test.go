package alerter

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/alerter/channels"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/storage"
)

type fakeChannel struct {
	channelType string
	sendErr     error
	sent        *int
}

func (f *fakeChannel) Send(ctx context.Context, n channels.Notification) error {
	*f.sent++
	return f.sendErr
}

func (f *fakeChannel) Type() string { return f.channelType }

type alerterFixture struct {
	db          *storage.DB
	dispatcher  *Dispatcher
	userID      int64
	containerID int64
	sendCount   int
}

func setupAlerter(t *testing.T) *alerterFixture {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "fleetwatch-alerter-test-*.db")
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

	userID, err := db.CreateUser(models.User{Username: "alice", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	platformID, err := db.AddPlatform(models.Platform{
		UserID: userID, PlatformType: models.PlatformRender, Name: "render",
		APIKey: "encrypted", Enabled: true,
	})
	if err != nil {
		t.Fatalf("AddPlatform failed: %v", err)
	}
	containerID, err := db.InsertContainer(models.Container{
		PlatformID: platformID, RemoteID: "srv-1", Name: "web", Status: models.StatusError,
	})
	if err != nil {
		t.Fatalf("InsertContainer failed: %v", err)
	}

	return &alerterFixture{
		db:          db,
		dispatcher:  New(db, models.SMTPConfig{}),
		userID:      userID,
		containerID: containerID,
	}
}

// addChannel registers a stored channel config whose fake delivery either
// succeeds or fails
func (fx *alerterFixture) addChannel(t *testing.T, failing bool) {
	t.Helper()
	config := map[string]string{"url": "https://hooks.example.com/ok"}
	if failing {
		config["url"] = "https://hooks.example.com/fail"
	}
	_, err := fx.db.AddAlertChannel(models.AlertChannel{
		UserID: fx.userID, Type: models.ChannelTypeWebhook, Config: config, Enabled: true,
	})
	if err != nil {
		t.Fatalf("AddAlertChannel failed: %v", err)
	}

	fx.dispatcher.newChannel = func(ch models.AlertChannel, smtp models.SMTPConfig) (channels.Channel, error) {
		fc := &fakeChannel{channelType: ch.Type, sent: &fx.sendCount}
		if ch.Config["url"] == "https://hooks.example.com/fail" {
			fc.sendErr = errors.New("delivery refused")
		}
		return fc, nil
	}
}

func (fx *alerterFixture) latestAlert(t *testing.T) models.Alert {
	t.Helper()
	alerts, _, err := fx.db.GetAlertsByUser(fx.userID, 10, 0)
	if err != nil || len(alerts) == 0 {
		t.Fatalf("Expected a persisted alert, got %v err=%v", alerts, err)
	}
	return alerts[0]
}

func TestTriggerAlertPersistsWithoutChannels(t *testing.T) {
	fx := setupAlerter(t)

	err := fx.dispatcher.TriggerAlert(context.Background(), fx.containerID,
		models.AlertTypeStatusChange, "web went down", fx.userID)
	if err != nil {
		t.Fatalf("TriggerAlert failed: %v", err)
	}

	alert := fx.latestAlert(t)
	if alert.Message != "web went down" {
		t.Errorf("Unexpected message: %s", alert.Message)
	}
	if alert.Notified {
		t.Error("Alert with no channels must not be marked notified")
	}
}

func TestTriggerAlertMarksNotifiedOnFirstSuccess(t *testing.T) {
	fx := setupAlerter(t)
	fx.addChannel(t, true)  // failing channel
	fx.addChannel(t, false) // succeeding channel

	err := fx.dispatcher.TriggerAlert(context.Background(), fx.containerID,
		models.AlertTypeStatusChange, "web went down", fx.userID)
	if err != nil {
		t.Fatalf("TriggerAlert failed: %v", err)
	}

	// Both channels get a delivery attempt
	if fx.sendCount != 2 {
		t.Errorf("Expected 2 delivery attempts, got %d", fx.sendCount)
	}
	if !fx.latestAlert(t).Notified {
		t.Error("Expected alert to be notified after one successful delivery")
	}
}

func TestTriggerAlertAllDeliveriesFail(t *testing.T) {
	fx := setupAlerter(t)
	fx.addChannel(t, true)

	err := fx.dispatcher.TriggerAlert(context.Background(), fx.containerID,
		models.AlertTypeStatusChange, "web went down", fx.userID)
	if err != nil {
		t.Fatalf("TriggerAlert must not fail on delivery errors: %v", err)
	}

	if fx.latestAlert(t).Notified {
		t.Error("Alert must stay unnotified when every delivery fails")
	}
}
