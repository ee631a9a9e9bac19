package addonmgr_test

import (
	"testing"
	"time"

	"github.com/glizzus/adsp-host/internal/addonmgr"
	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := t.Context()
	redisContainer, err := tcredis.Run(ctx, "redis:7")
	testcontainers.CleanupContainer(t, redisContainer)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	uri, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStateStore(t *testing.T) {
	client := newRedisClient(t)
	ctx := t.Context()
	store := addonmgr.NewRedisStateStore(client)

	for _, id := range []string{"adsp.b", "adsp.a"} {
		if err := store.SetDisabled(ctx, id, true); err != nil {
			t.Fatalf("failed to disable %s: %v", id, err)
		}
	}
	if err := store.SetDisabled(ctx, "adsp.b", false); err != nil {
		t.Fatalf("failed to enable adsp.b: %v", err)
	}

	disabled, err := store.Disabled(ctx)
	if err != nil {
		t.Fatalf("failed to list disabled addons: %v", err)
	}
	if diff := cmp.Diff([]string{"adsp.a"}, disabled); diff != "" {
		t.Errorf("disabled addons mismatch (-want +got):\n%s", diff)
	}

	isDisabled, err := store.IsDisabled(ctx, "adsp.b")
	if err != nil {
		t.Fatalf("failed to check adsp.b: %v", err)
	}
	if isDisabled {
		t.Error("expected adsp.b to be enabled")
	}
}

func TestRedisEvents(t *testing.T) {
	client := newRedisClient(t)
	ctx := t.Context()

	receiver, err := addonmgr.NewRedisEventReceiver(ctx, client, "adspctl", "test")
	if err != nil {
		t.Fatalf("failed to create receiver: %v", err)
	}
	// A second receiver on the same group must not fail.
	if _, err := addonmgr.NewRedisEventReceiver(ctx, client, "adspctl", "test-2"); err != nil {
		t.Fatalf("failed to create second receiver: %v", err)
	}

	publisher := addonmgr.NewRedisEventPublisher(client)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []addonmgr.Event{
		{Type: addonmgr.EventAddonDisabled, AddonID: "adsp.a", Time: ts},
		{Type: addonmgr.EventAddonsUpdated, Time: ts},
	}
	if err := publisher.Publish(ctx, want...); err != nil {
		t.Fatalf("failed to publish events: %v", err)
	}

	got, err := receiver.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("failed to receive events: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	t.Run("Exception dialogs are queued", func(t *testing.T) {
		notifier := addonmgr.NewRedisNotifier(client)
		if err := notifier.ShowExceptionErrorDialog(ctx, adsp.AddonInfo{ID: "adsp.a", Name: "A"}); err != nil {
			t.Fatalf("failed to queue dialog: %v", err)
		}
		n, err := client.XLen(ctx, "adsp:notifications").Result()
		if err != nil {
			t.Fatalf("failed to read notifications length: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 notification, got %d", n)
		}
	})
}
