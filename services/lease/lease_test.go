package lease

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/testutil"
	"github.com/customeros/mailintake/internal/utils"
)

func TestDBLeaseManager(t *testing.T) {
	ctx := context.Background()
	repos := repository.InitRepositories(testutil.NewTestDB(t))
	manager := NewDBLeaseManager(repos.MailboxLeaseRepository, time.Minute)

	require.NoError(t, manager.Acquire(ctx, "support", "pod-a"))
	assert.ErrorIs(t, manager.Acquire(ctx, "support", "pod-b"), repository.ErrLeaseHeld)
	require.NoError(t, manager.Acquire(ctx, "billing", "pod-b"))

	require.NoError(t, manager.Release(ctx, "support", "pod-a"))
	require.NoError(t, manager.Acquire(ctx, "support", "pod-b"))
}

func TestDBLeaseManager_SameHolderIsNotReentrant(t *testing.T) {
	ctx := context.Background()
	repos := repository.InitRepositories(testutil.NewTestDB(t))
	manager := NewDBLeaseManager(repos.MailboxLeaseRepository, time.Minute)

	require.NoError(t, manager.Acquire(ctx, "support", "mailintake/irun_a"))
	assert.ErrorIs(t, manager.Acquire(ctx, "support", "mailintake/irun_a"), repository.ErrLeaseHeld)
	assert.ErrorIs(t, manager.Acquire(ctx, "support", "mailintake/irun_b"), repository.ErrLeaseHeld)

	// Releasing with another run's token leaves the lease in place.
	require.NoError(t, manager.Release(ctx, "support", "mailintake/irun_b"))
	assert.ErrorIs(t, manager.Acquire(ctx, "support", "pod-b/irun_c"), repository.ErrLeaseHeld)

	require.NoError(t, manager.Release(ctx, "support", "mailintake/irun_a"))
	require.NoError(t, manager.Acquire(ctx, "support", "pod-b/irun_c"))
}

func TestDBLeaseManager_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	repos := repository.InitRepositories(testutil.NewTestDB(t))

	crashed := NewDBLeaseManager(repos.MailboxLeaseRepository, time.Millisecond)
	require.NoError(t, crashed.Acquire(ctx, "support", "pod-a"))
	time.Sleep(10 * time.Millisecond)

	manager := NewDBLeaseManager(repos.MailboxLeaseRepository, time.Minute)
	assert.NoError(t, manager.Acquire(ctx, "support", "pod-b"))
}

func TestNewLeaseManager_UnknownBackend(t *testing.T) {
	_, err := NewLeaseManager(&config.IngestConfig{LeaseBackend: "zookeeper"}, &config.RedisConfig{}, nil)
	assert.Error(t, err)
}

func TestRedisLeaseManager(t *testing.T) {
	addr := os.Getenv("MAILINTAKE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MAILINTAKE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	mailbox := "support-" + utils.GenerateNanoIDWithPrefix("", 8)
	manager := NewRedisLeaseManager(client, 200*time.Millisecond)

	require.NoError(t, manager.Acquire(ctx, mailbox, "pod-a"))
	assert.ErrorIs(t, manager.Acquire(ctx, mailbox, "pod-a"), repository.ErrLeaseHeld)
	assert.ErrorIs(t, manager.Acquire(ctx, mailbox, "pod-b"), repository.ErrLeaseHeld)

	// releasing someone else's lease is a no-op
	require.NoError(t, manager.Release(ctx, mailbox, "pod-b"))
	assert.ErrorIs(t, manager.Acquire(ctx, mailbox, "pod-b"), repository.ErrLeaseHeld)

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, manager.Acquire(ctx, mailbox, "pod-b"))
	require.NoError(t, manager.Release(ctx, mailbox, "pod-b"))
	require.NoError(t, manager.Acquire(ctx, mailbox, "pod-a"))
	require.NoError(t, manager.Release(ctx, mailbox, "pod-a"))
}
