package redisinfra

import (
	"github.com/genclean-otp/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient returns a cluster client when REDIS_CLUSTER is set and more than one
// address is configured, otherwise a single-node client.
func NewClient(cfg *config.Config) redis.UniversalClient {
	if cfg.RedisCluster && len(cfg.RedisAddrs) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
		})
	}
	addr := "localhost:6379"
	if len(cfg.RedisAddrs) > 0 {
		addr = cfg.RedisAddrs[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
}
