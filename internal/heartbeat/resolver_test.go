package heartbeat_test

import (
	"context"
	"testing"
	"time"

	"tpv-fleet/internal/catalog"
	"tpv-fleet/internal/di"
	"tpv-fleet/internal/dispatch"
	"tpv-fleet/internal/heartbeat"
	"tpv-fleet/internal/models"

	rediskeys "tpv-fleet/internal/common/redis"
)

type resolverEnv struct {
	container *di.Container
	cache     *di.MockCacheService
	publisher *di.MockMessagePublisher
}

func newResolverEnv(t *testing.T) *resolverEnv {
	t.Helper()
	c := di.NewMockContainer()
	return &resolverEnv{
		container: c,
		cache:     c.Cache.(*di.MockCacheService),
		publisher: c.Publisher.(*di.MockMessagePublisher),
	}
}

func TestStartSubscribes(t *testing.T) {
	env := newResolverEnv(t)

	if err := env.container.Resolver.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for _, topic := range []string{
		heartbeat.StatusTopicFilter,
		heartbeat.ConnectionTopicFilter,
		heartbeat.ResultTopicFilter,
	} {
		if _, ok := env.publisher.Subscriptions[topic]; !ok {
			t.Errorf("expected subscription on %s", topic)
		}
	}
}

func TestApplyStatusRefreshesPresenceAndReleases(t *testing.T) {
	env := newResolverEnv(t)
	ctx := context.Background()

	// Seed presence so the dispatch passes the offline guard, then put a
	// command into the awaiting state.
	if err := env.cache.Set(ctx, rediskeys.TerminalPresence("term-1"), "1", time.Minute); err != nil {
		t.Fatalf("failed to seed presence: %v", err)
	}
	if _, err := env.container.Dispatcher.Dispatch(ctx, dispatch.Request{
		TerminalID:  "term-1",
		VenueID:     "venue-1",
		CommandType: catalog.CommandUnlock,
	}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if got := len(env.container.Dispatcher.Awaiting("term-1")); got != 1 {
		t.Fatalf("expected 1 awaiting control, got %d", got)
	}

	env.container.Resolver.ApplyStatus(models.StatusMessage{
		TerminalID: "term-1",
		Locked:     false,
		AppVersion: "2.4.1",
	})

	if got := env.container.Dispatcher.Awaiting("term-1"); len(got) != 0 {
		t.Errorf("status push must release awaiting controls, got %v", got)
	}
	if ok, _ := env.cache.Exists(ctx, rediskeys.TerminalPresence("term-1")); !ok {
		t.Error("status push must refresh the presence key")
	}
	if ok, _ := env.cache.Exists(ctx, rediskeys.TerminalStatus("term-1")); !ok {
		t.Error("status push must store the status snapshot")
	}
}

func TestApplyConnection(t *testing.T) {
	env := newResolverEnv(t)
	ctx := context.Background()

	t.Run("online marks presence", func(t *testing.T) {
		env.container.Resolver.ApplyConnection(models.ConnectionMessage{
			TerminalID:      "term-1",
			ConnectionState: models.ConnectionStateOnline,
		})
		if ok, _ := env.cache.Exists(ctx, rediskeys.TerminalPresence("term-1")); !ok {
			t.Error("ONLINE must set the presence key")
		}
	})

	t.Run("offline clears presence", func(t *testing.T) {
		env.container.Resolver.ApplyConnection(models.ConnectionMessage{
			TerminalID:      "term-1",
			ConnectionState: models.ConnectionStateOffline,
		})
		if ok, _ := env.cache.Exists(ctx, rediskeys.TerminalPresence("term-1")); ok {
			t.Error("OFFLINE must delete the presence key")
		}
	})
}

func TestOfflineTerminalRefusesNextDispatch(t *testing.T) {
	env := newResolverEnv(t)
	ctx := context.Background()

	env.container.Resolver.ApplyConnection(models.ConnectionMessage{
		TerminalID:      "term-1",
		ConnectionState: models.ConnectionStateOnline,
	})
	if !env.container.Dispatcher.IsOnline(ctx, "term-1") {
		t.Fatal("terminal should be online after the connection message")
	}

	env.container.Resolver.ApplyConnection(models.ConnectionMessage{
		TerminalID:      "term-1",
		ConnectionState: models.ConnectionStateOffline,
	})
	if _, err := env.container.Dispatcher.Dispatch(ctx, dispatch.Request{
		TerminalID:  "term-1",
		VenueID:     "venue-1",
		CommandType: catalog.CommandSyncData,
	}); err == nil {
		t.Error("dispatch to an offline terminal must be refused")
	}
}
