package kafka

import (
	"fatorch/src/platform/ferr"
	"fatorch/src/util"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"github.com/twmb/franz-go/pkg/kgo"
)

const closeCommitTimeout = 5 * time.Second

var ErrAlreadyStarted = errors.New("kafka client already started")

const (
	AdminClientName = "kafka.admin"
	DataClientName  = "kafka.data"
)

type Client struct {
	logger  zerolog.Logger
	options []kgo.Opt
	Driver  *kgo.Client
}

func NewClient(config ConfigurationBuilder) (*Client, error) {
	options, err := config.getOptions()
	if err != nil {
		return nil, oops.
			In(util.GetFunctionName()).
			Code(ferr.ConfigurationInvalid).
			Wrapf(err, "can't create a new Kafka client because configuration is broken")
	}

	return &Client{
		logger:  config.logger.Client,
		options: options,
		Driver:  nil,
	}, nil
}

func (c *Client) Start(_ context.Context) error {
	if c.Driver != nil {
		return ErrAlreadyStarted
	}

	client, err := kgo.NewClient(c.options...)
	if err != nil {
		return oops.
			In(util.GetFunctionName()).
			Code(ferr.ConnectError).
			Wrapf(err, "can't create a new Kafka client")
	}

	c.Driver = client
	return nil
}

func (c *Client) Stop(_ context.Context) {
	if c.Driver == nil {
		c.logger.Warn().Msg("Kafka client already stopped")
		return
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), closeCommitTimeout)
	defer cancel()
	if err := c.Driver.CommitUncommittedOffsets(commitCtx); err != nil {
		c.logger.Error().Err(err).Msg("final synchronous offset commit failed")
	}

	c.Driver.Close()
	c.Driver = nil
}
