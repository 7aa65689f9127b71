package scylla

import (
	"context"
	"fmt"
	"strings"

	rawscylla "fatorch/src/scylla"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
)

type Client struct {
	logger zerolog.Logger
	config *gocql.ClusterConfig
	Driver *gocql.Session
}

type ClientLoggerOptions struct {
	Client zerolog.Logger
	Driver zerolog.Logger
}

type ClientOptions struct {
	Hosts             []string
	ShardAwarePort    uint16
	LocalDC           string
	Keyspace          string
	Username          string
	Password          string
	AddressTranslator gocql.AddressTranslator
	Logger            ClientLoggerOptions
}

func NewClient(options ClientOptions) *Client {
	clusterConfig := rawscylla.BuildClusterConfig(rawscylla.ClusterOptions{
		Hosts:          options.Hosts,
		ShardAwarePort: int(options.ShardAwarePort),
		LocalDC:        options.LocalDC,
		Keyspace:       options.Keyspace,
		Authenticator: gocql.PasswordAuthenticator{
			Username: options.Username,
			Password: options.Password,
		},
		AddressTranslator: options.AddressTranslator,
		Logger:            &zerologAdapter{logger: options.Logger.Driver},
	})

	return &Client{
		logger: options.Logger.Client,
		config: clusterConfig,
		Driver: nil,
	}
}

func (c *Client) Start(_ context.Context) error {
	if c.Driver != nil {
		return fmt.Errorf("scylla driver already started")
	}

	session, err := c.config.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create scylla session: %w", err)
	}

	c.Driver = session
	return nil
}

func (c *Client) Stop(_ context.Context) {
	if c.Driver == nil {
		c.logger.Warn().Msg("ScyllaDB client already stopped")
		return
	}

	c.Driver.Close()
	c.Driver = nil
}

type zerologAdapter struct {
	logger zerolog.Logger
}

func (a *zerologAdapter) Print(v ...interface{}) {
	a.detectLevel(v).Msg(fmt.Sprint(v...))
}

func (a *zerologAdapter) Printf(format string, v ...interface{}) {
	a.detectLevel(v).Msgf(format, v...)
}

func (a *zerologAdapter) Println(v ...interface{}) {
	a.Print(v...)
}

func (a *zerologAdapter) detectLevel(v []interface{}) *zerolog.Event {
	if len(v) == 0 {
		return a.logger.Info()
	}

	first, ok := v[0].(string)
	if !ok {
		first = fmt.Sprint(v[0])
	}

	switch {
	case strings.HasPrefix(first, "trace"):
		return a.logger.Trace()
	case strings.HasPrefix(first, "debug"):
		return a.logger.Debug()
	case strings.HasPrefix(first, "info"):
		return a.logger.Info()
	case strings.HasPrefix(first, "warn"):
		return a.logger.Warn()
	case strings.HasPrefix(first, "error"),
		strings.HasPrefix(first, "gocql"):
		return a.logger.Error()
	case strings.HasPrefix(first, "fatal"),
		strings.HasPrefix(first, "panic"):
		return a.logger.Fatal()
	default:
		return a.logger.Info()
	}
}
