package postgresql

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"fatorch/src/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type Client struct {
	logger zerolog.Logger
	config *pgxpool.Config
	Driver *pgxpool.Pool
}

type ClientOptions struct {
	URL                     string
	ApplicationInstanceName string
	PreparedStatements      *map[string]string
	TLSConfig               *tls.Config
	Logger                  zerolog.Logger
}

func NewClient(options ClientOptions) (*Client, error) {
	config, err := postgres.BuildPoolConfig(postgres.PoolOptions{
		URL:                     options.URL,
		ApplicationInstanceName: options.ApplicationInstanceName,
		PreparedStatements:      options.PreparedStatements,
		TLSConfig:               options.TLSConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build postgresql pool config: %w", err)
	}

	return &Client{
		logger: options.Logger,
		config: config,
		Driver: nil,
	}, nil
}

func (c *Client) Start(ctx context.Context) error {
	if c.Driver != nil {
		return errors.New("postgresql client already started")
	}

	pool, err := pgxpool.NewWithConfig(ctx, c.config)
	if err != nil {
		return fmt.Errorf("failed to start postgresql client: %w", err)
	}

	c.Driver = pool
	return nil
}

func (c *Client) Stop(_ context.Context) {
	if c.Driver == nil {
		c.logger.Warn().Msg("PostgreSQL client already stopped")
		return
	}

	c.Driver.Close()
	c.Driver = nil
}
