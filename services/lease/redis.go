package lease

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/tracing"
)

const redisKeyPrefix = "mailintake:lease:"

// releaseScript deletes the lease only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLeaseManager struct {
	client redis.UniversalClient
	maxAge time.Duration
}

// NewRedisLeaseManager stores leases as expiring keys, for deployments that
// run pollers against more than one database replica.
func NewRedisLeaseManager(client redis.UniversalClient, maxAge time.Duration) interfaces.LeaseManager {
	return &redisLeaseManager{client: client, maxAge: maxAge}
}

func (m *redisLeaseManager) Acquire(ctx context.Context, mailbox, holder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RedisLeaseManager.Acquire")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, mailbox)

	key := redisKeyPrefix + mailbox
	ok, err := m.client.SetNX(ctx, key, holder, m.maxAge).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "acquire redis lease")
	}
	if !ok {
		return repository.ErrLeaseHeld
	}
	return nil
}

func (m *redisLeaseManager) Release(ctx context.Context, mailbox, holder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RedisLeaseManager.Release")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, mailbox)

	err := releaseScript.Run(ctx, m.client, []string{redisKeyPrefix + mailbox}, holder).Err()
	if err != nil && err != redis.Nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "release redis lease")
	}
	return nil
}
