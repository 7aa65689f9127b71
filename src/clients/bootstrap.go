package clients

import (
	"crypto/tls"
	"fmt"

	"fatorch/src/clients/elasticsearch"
	"fatorch/src/clients/email"
	"fatorch/src/clients/etcd"
	"fatorch/src/clients/kafka"
	"fatorch/src/clients/nats"
	"fatorch/src/clients/neo4j"
	"fatorch/src/clients/postgresql"
	"fatorch/src/clients/redis"
	"fatorch/src/clients/scylla"
	"fatorch/src/platform/config"
	"fatorch/src/platform/lifecycle"
	"fatorch/src/platform/logging"
	"fatorch/src/util"

	"github.com/emersion/go-sasl"
	"github.com/samber/oops"
)

// Clients collects every external-system client the facade's collaborators
// are built from. Each one already implements lifecycle.ServiceLifecycle;
// BootstrapClients only constructs them and hands back the lifecycle
// services map alongside typed access to the concrete clients.
type Clients struct {
	Elasticsearch *elasticsearch.Client
	Neo4j         *neo4j.Client
	PostgreSQL    *postgresql.Client
	Redis         *redis.Client
	ScyllaDB      *scylla.Client
	Etcd          *etcd.Client
	Nats          *nats.Client
	Kafka         *kafka.Client
	Email         *email.Client

	Services map[string]lifecycle.ServiceLifecycle
}

func BootstrapClients(cfg *config.Config, loggerFactory *logging.LoggerFactory) (*Clients, error) {
	errorb := oops.In(util.GetFunctionName())

	esTLS, err := util.CreateTLSConfigWithRootCA(cfg.Elasticsearch.CACertFilePath)
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create tls config for elasticsearch client")
	}
	esClient := elasticsearch.NewClient(&elasticsearch.ClientOptions{
		Logger: elasticsearch.ClientLoggerOptions{
			Client: loggerFactory.Child("client.elasticsearch"),
			Driver: loggerFactory.Child("client.elasticsearch.driver"),
		},
		TLSConfig:    esTLS,
		Username:     cfg.Elasticsearch.Username,
		Password:     string(cfg.Elasticsearch.Password),
		Addresses:    cfg.Elasticsearch.Addresses,
		ShouldLogReq: cfg.Elasticsearch.ShouldLogReq,
		ShouldLogRes: cfg.Elasticsearch.ShouldLogRes,
	})

	neo4jTLS, err := util.CreateTLSConfigWithRootCA(cfg.Neo4j.CACertFilePath)
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create tls config for neo4j client")
	}
	neo4jClient := neo4j.NewClient(&neo4j.ClientOptions{
		Logger: neo4j.ClientLoggerOptions{
			Client:  loggerFactory.Child("client.neo4j"),
			Driver:  loggerFactory.Child("client.neo4j.driver"),
			Session: loggerFactory.Child("client.neo4j.session"),
		},
		URI:          cfg.Neo4j.URI,
		TLSConfig:    neo4jTLS,
		Username:     cfg.Neo4j.Username,
		Password:     string(cfg.Neo4j.Password),
		DatabaseName: cfg.Neo4j.DatabaseName,
	})

	postgresClient, err := postgresql.NewClient(postgresql.ClientOptions{
		URL: fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s sslrootcert=%s sslmode=verify-full",
			cfg.PostgreSQL.Username,
			string(cfg.PostgreSQL.Password),
			cfg.PostgreSQL.Host,
			cfg.PostgreSQL.Port,
			cfg.PostgreSQL.DBName,
			cfg.PostgreSQL.CACertFilePath,
		),
		ApplicationInstanceName: cfg.Application.InstanceName,
		PreparedStatements:      nil,
		Logger:                  loggerFactory.Child("client.postgresql"),
	})
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create postgresql client")
	}

	redisTLS, err := util.CreateTLSConfigWithRootCA(cfg.Redis.CACertFilePath)
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create tls config for redis client")
	}
	if cfg.Redis.MTLSCertFilePath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Redis.MTLSCertFilePath, cfg.Redis.MTLSKeyFilePath)
		if err != nil {
			return nil, errorb.Wrapf(err, "failed to load X509 key pair for redis client")
		}
		redisTLS.Certificates = []tls.Certificate{cert}
		redisTLS.MinVersion = tls.VersionTLS13
	}
	redisClient := redis.NewClient(redis.ClientOptions{
		Addresses:  cfg.Redis.Addresses,
		TLSConfig:  redisTLS,
		ClientName: cfg.Application.InstanceName,
		Username:   cfg.Redis.Username,
		Password:   string(cfg.Redis.Password),
		Logger:     loggerFactory.Child("client.redis"),
	})

	scyllaClient := scylla.NewClient(scylla.ClientOptions{
		Hosts:          cfg.ScyllaDB.Hosts,
		ShardAwarePort: cfg.ScyllaDB.ShardAwarePort,
		LocalDC:        cfg.ScyllaDB.LocalDC,
		Keyspace:       cfg.ScyllaDB.Keyspace,
		Username:       cfg.ScyllaDB.Username,
		Password:       string(cfg.ScyllaDB.Password),
		Logger: scylla.ClientLoggerOptions{
			Client: loggerFactory.Child("client.scylladb"),
			Driver: loggerFactory.Child("client.scylladb.driver"),
		},
	})

	etcdTLS, err := util.CreateTLSConfigWithRootCA(cfg.Etcd.CACertFilePath)
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create tls config for etcd client")
	}
	etcdClient := etcd.NewClient(etcd.ClientOptions{
		Endpoints: cfg.Etcd.Endpoints,
		TLSConfig: etcdTLS,
		Logger: etcd.ClientLoggerOptions{
			Client: loggerFactory.Child("client.etcd"),
			Driver: loggerFactory.Child("client.etcd.driver"),
		},
	})

	natsTLS, err := util.CreateTLSConfigWithRootCA(cfg.Nats.CACertFilePath)
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create tls config for nats client")
	}
	natsClient := nats.NewClient(&nats.ClientOptions{
		Servers:    cfg.Nats.Servers,
		TLSConfig:  natsTLS,
		ClientName: cfg.Application.InstanceName,
		Username:   cfg.Nats.Username,
		Password:   string(cfg.Nats.Password),
		Logger:     loggerFactory.Child("client.nats"),
	})

	kafkaTLS, err := util.CreateTLSConfigWithRootCA(cfg.Kafka.CACertFilePath)
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create tls config for kafka client")
	}
	kafkaBuilder := kafka.NewConfigurationBuilder(&kafka.ConfigurationLoggers{
		Client: loggerFactory.Child("client.kafka"),
		Driver: loggerFactory.Child("client.kafka.driver"),
	})
	kafkaBuilder.SetGeneralConfig(&kafka.GeneralConfig{
		ClientID:       "fatorchkafkaproducer",
		ServiceName:    cfg.Application.Name,
		ServiceVersion: cfg.Application.Version,
		SeedBrokers:    cfg.Kafka.SeedBrokers,
		TLSConfig:      kafkaTLS,
		Username:       cfg.Kafka.Users.Data.Username,
		Password:       string(cfg.Kafka.Users.Data.Password),
	})
	kafkaBuilder.SetProducerConfig(&kafka.ProducerConfig{})
	kafkaClient, err := kafka.NewClient(kafkaBuilder)
	if err != nil {
		return nil, errorb.Wrapf(err, "failed to create kafka client")
	}

	emailLogger := loggerFactory.Child("client.email")
	emailClient := email.NewClient(&email.ClientOptions{
		WorkerPoolOptions: email.WorkerPoolOptions{
			SMTPClientOptions: &email.SMTPClientOptions{
				Host: cfg.Email.SMTPHost,
				Port: uint16(cfg.Email.SMTPPort),
				TLSConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				Auth: sasl.NewPlainClient("", cfg.Email.Username, string(cfg.Email.Password)),
			},
			Logger:     &emailLogger,
			NumWorkers: uint8(cfg.Email.NumWorkers),
			QueueSize:  uint16(cfg.Email.QueueSize),
		},
	})

	services := map[string]lifecycle.ServiceLifecycle{
		"elasticsearch": esClient,
		"neo4j":         neo4jClient,
		"postgresql":    postgresClient,
		"redis":         redisClient,
		"scylladb":      scyllaClient,
		"etcd":          etcdClient,
		"nats":          natsClient,
		"kafka":         kafkaClient,
		"email":         emailClient,
	}

	return &Clients{
		Elasticsearch: esClient,
		Neo4j:         neo4jClient,
		PostgreSQL:    postgresClient,
		Redis:         redisClient,
		ScyllaDB:      scyllaClient,
		Etcd:          etcdClient,
		Nats:          natsClient,
		Kafka:         kafkaClient,
		Email:         emailClient,
		Services:      services,
	}, nil
}
