package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	rawredis "fatorch/src/redis"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Client struct {
	logger  zerolog.Logger
	options *goredis.ClusterOptions
	Driver  *goredis.ClusterClient
}

type ClientOptions struct {
	TLSConfig  *tls.Config
	Addresses  []string
	ClientName string
	Username   string
	Password   string
	Logger     zerolog.Logger
}

func NewClient(options ClientOptions) *Client {
	return &Client{
		logger: options.Logger,
		options: rawredis.BuildClusterOptions(rawredis.ClusterOptions{
			TLSConfig:  options.TLSConfig,
			Addresses:  options.Addresses,
			ClientName: options.ClientName,
			Username:   options.Username,
			Password:   options.Password,
		}),
		Driver: nil,
	}
}

func (c *Client) Start(_ context.Context) error {
	if c.Driver != nil {
		return fmt.Errorf("redis driver already started")
	}

	c.Driver = goredis.NewClusterClient(c.options)
	return nil
}

func (c *Client) Stop(_ context.Context) {
	if c.Driver == nil {
		c.logger.Warn().Msg("Redis client already stopped")
		return
	}

	err := c.Driver.Close()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to close Redis client")
	}
}
