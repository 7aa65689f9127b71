// Package postgres builds the pgxpool.Config shared by every Postgres
// consumer in fatorch (the persistence store's ledger tables). Kept
// separate from clients/postgresql so the pool-tuning knobs and type
// registrations live in one place regardless of which lifecycle wrapper
// opens the pool.
package postgres

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pgxuuid "github.com/jackc/pgx-gofrs-uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	pgxgoogleuuid "github.com/vgarvardt/pgx-google-uuid/v5"
)

type PoolOptions struct {
	URL                     string
	ApplicationInstanceName string
	PreparedStatements      *map[string]string
	TLSConfig               *tls.Config
}

func BuildPoolConfig(options PoolOptions) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(options.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	config.MaxConns = int32(100)
	config.MinIdleConns = int32(20)
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnLifetimeJitter = 5 * time.Minute
	config.MaxConnIdleTime = 10 * time.Minute
	config.ConnConfig.ConnectTimeout = 5 * time.Second
	config.ConnConfig.TLSConfig = options.TLSConfig
	config.ConnConfig.RuntimeParams["application_name"] = options.ApplicationInstanceName
	config.ConnConfig.RuntimeParams["timezone"] = "UTC"
	config.ConnConfig.RuntimeParams["datestyle"] = "ISO"
	config.ConnConfig.RuntimeParams["statement_timeout"] = "5s"
	config.ConnConfig.RuntimeParams["lock_timeout"] = "2s"
	config.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = "2s"
	config.AfterConnect = func(connectionCtx context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		pgxgoogleuuid.Register(conn.TypeMap())
		pgxdecimal.Register(conn.TypeMap())

		if options.PreparedStatements != nil {
			for name, sql := range *options.PreparedStatements {
				if _, err := conn.Prepare(connectionCtx, name, sql); err != nil {
					return fmt.Errorf("failed to prepare statement '%s' on pgx connection 'postgres://%s@%s:%d/%s' with id '%d': %w",
						name, conn.Config().User, conn.Config().Host, conn.Config().Port, conn.Config().Database, conn.PgConn().PID(), err,
					)
				}
			}
		}
		return nil
	}

	return config, nil
}

func CreatePool(sessionCtx context.Context, options PoolOptions) (*pgxpool.Pool, error) {
	config, err := BuildPoolConfig(options)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(sessionCtx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgxpool: %w", err)
	}

	return pool, nil
}
