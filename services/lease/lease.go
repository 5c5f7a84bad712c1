package lease

import (
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
)

// NewLeaseManager builds the lease backend named by the ingest config.
func NewLeaseManager(ingest *config.IngestConfig, redisConfig *config.RedisConfig, repo interfaces.MailboxLeaseRepository) (interfaces.LeaseManager, error) {
	switch ingest.LeaseBackend {
	case "", enum.LeaseDatabase:
		return NewDBLeaseManager(repo, ingest.LeaseMaxAge), nil
	case enum.LeaseRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     redisConfig.Addr,
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		})
		return NewRedisLeaseManager(client, ingest.LeaseMaxAge), nil
	default:
		return nil, errors.Errorf("unknown lease backend %q", ingest.LeaseBackend)
	}
}
