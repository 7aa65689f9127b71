// Package redis builds the redis.ClusterOptions shared by every Redis
// consumer in fatorch (hot-path channel allocation locks and the event
// bus overflow DLQ). Kept apart from clients/redis, which only owns the
// driver lifecycle.
package redis

import (
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

type ClusterOptions struct {
	TLSConfig  *tls.Config
	Addresses  []string
	ClientName string
	Username   string
	Password   string
}

func BuildClusterOptions(options ClusterOptions) *redis.ClusterOptions {
	return &redis.ClusterOptions{
		TLSConfig:  options.TLSConfig,
		Addrs:      options.Addresses,
		ClientName: options.ClientName,
		Username:   options.Username,
		Password:   options.Password,
		NewClient: func(opt *redis.Options) *redis.Client {
			opt.DB = 0
			opt.MaxRetries = 5
			opt.ReadTimeout = 2 * time.Second
			opt.WriteTimeout = 2 * time.Second
			opt.ContextTimeoutEnabled = true
			opt.PoolFIFO = true
			opt.MinIdleConns = 10
			opt.MaxIdleConns = 50
			opt.ConnMaxLifetime = 1 * time.Hour

			return redis.NewClient(opt)
		},
		ReadOnly:       true,
		RouteByLatency: true,
	}
}

func CreateClusterClient(options ClusterOptions) *redis.ClusterClient {
	return redis.NewClusterClient(BuildClusterOptions(options))
}
