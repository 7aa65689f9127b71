package config

import (
	"time"

	"fatorch/src/util"
)

type CredentialsConfig struct {
	Username string      `koanf:"username" validate:"required,min=4,max=64"`
	Password util.Secret `koanf:"password" validate:"required,min=4,max=64"`
}

// PlcEndpointConfig describes one PLC connection pool — either the
// target (device under test) or the test-rig side. Address format is
// opaque to the core; it is passed through verbatim to the configured
// driver (Modbus-TCP / S7 / OPC-UA).
type PlcEndpointConfig struct {
	Name           string        `koanf:"name" validate:"required,min=1,max=64"`
	Protocol       string        `koanf:"protocol" validate:"required,oneof=modbus-tcp s7 opcua"`
	Address        string        `koanf:"address" validate:"required,hostname_port|uri"`
	CACertFilePath string        `koanf:"ca_cert_file_path" validate:"omitempty,filepath"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" default:"5s" validate:"required,min=500000000,max=30000000000"`
	ReadTimeout    time.Duration `koanf:"read_timeout" default:"3s" validate:"required,min=500000000,max=30000000000"`
	WriteTimeout   time.Duration `koanf:"write_timeout" default:"3s" validate:"required,min=500000000,max=30000000000"`
}

type PlcConfig struct {
	Target   PlcEndpointConfig `koanf:"target" validate:"required"`
	TestRig  PlcEndpointConfig `koanf:"test_rig" validate:"required"`
}

// SchedulerConfig holds the tunables §9's Open Questions left to the
// implementer: concurrency cap, tolerances, stabilization window, retry
// budget and per-step/per-sub-test timeouts.
type SchedulerConfig struct {
	ConcurrencyLimit     int64         `koanf:"concurrency_limit" default:"4" validate:"required,min=1,max=64"`
	StabilizationWindow  time.Duration `koanf:"stabilization_window" default:"2500ms" validate:"required,min=100000000,max=30000000000"`
	ToleranceAbs         float64       `koanf:"tolerance_abs" default:"0.5" validate:"gte=0"`
	ToleranceRel         float64       `koanf:"tolerance_rel" default:"0.005" validate:"gte=0"`
	HardpointRetryBudget int           `koanf:"hardpoint_retry_budget" default:"0" validate:"gte=0,max=10"`
	StepTimeout          time.Duration `koanf:"step_timeout" default:"30s" validate:"required,min=1000000000,max=300000000000"`
	PlcReadWriteTimeout  time.Duration `koanf:"plc_read_write_timeout" default:"4s" validate:"required,min=500000000,max=30000000000"`
	DiDoSettleDelay      time.Duration `koanf:"di_do_settle_delay" default:"3s" validate:"required,min=500000000,max=30000000000"`
	MonitorPollInterval  time.Duration `koanf:"monitor_poll_interval" default:"350ms" validate:"required,min=100000000,max=5000000000"`
}

type PostgreSQLConfig struct {
	CredentialsConfig `koanf:",squash"`
	Host              string            `koanf:"host" validate:"required,hostname|ip"`
	Port              uint16            `koanf:"port" validate:"required,port"`
	DBName            string            `koanf:"dbname" validate:"required,min=4,max=64"`
	CACertFilePath    string            `koanf:"ca_cert_file_path" validate:"required,filepath"`
	Options           map[string]string `koanf:"options" validate:"dive,keys,required,min=4,max=64,endkeys,required,min=1,max=64"`
}

type ScyllaDBConfig struct {
	CredentialsConfig `koanf:",squash"`
	Hosts             []string `koanf:"hosts" validate:"required,min=1,max=10,unique,dive,required,hostname|ip"`
	ShardAwarePort    uint16   `koanf:"shard_aware_port" validate:"required,port"`
	LocalDC           string   `koanf:"local_dc" validate:"omitempty,min=3,max=64,alphanum"`
	Keyspace          string   `koanf:"keyspace" validate:"required,min=4,max=64"`
}

type RedisConfig struct {
	CredentialsConfig `koanf:",squash"`
	Addresses         []string `koanf:"addresses" validate:"required,min=1,max=10,unique,dive,required,hostname_port"`
	CACertFilePath    string   `koanf:"ca_cert_file_path" validate:"omitempty,filepath"`
	MTLSCertFilePath  string   `koanf:"mtls_cert_file_path" validate:"omitempty,filepath"`
	MTLSKeyFilePath   string   `koanf:"mtls_key_file_path" validate:"omitempty,filepath"`
}

type ElasticsearchConfig struct {
	CredentialsConfig `koanf:",squash"`
	Addresses         []string `koanf:"addresses" validate:"required,min=1,max=10,unique,dive,required,http_url|https_url"`
	CACertFilePath    string   `koanf:"ca_cert_file_path" validate:"omitempty,filepath"`
	IndexPrefix       string   `koanf:"index_prefix" default:"fatorch" validate:"required,min=3,max=64,alphanum"`
	ShouldLogReq      bool     `koanf:"should_log_req"`
	ShouldLogRes      bool     `koanf:"should_log_res"`
}

type Neo4jConfig struct {
	CredentialsConfig `koanf:",squash"`
	URI               string `koanf:"uri" validate:"required,uri,startswith=neo4j"`
	CACertFilePath    string `koanf:"ca_cert_file_path" validate:"omitempty,filepath"`
	DatabaseName      string `koanf:"database_name" validate:"required,min=4,max=64,alphanum"`
}

type EtcdConfig struct {
	Endpoints      []string      `koanf:"endpoints" validate:"required,min=1,max=10,unique,dive,required,hostname_port"`
	CACertFilePath string        `koanf:"ca_cert_file_path" validate:"omitempty,filepath"`
	LeaseTTL       time.Duration `koanf:"lease_ttl" default:"10s" validate:"required,min=3000000000,max=60000000000"`
	LeaderKey      string        `koanf:"leader_key" default:"/fatorch/orchestrator/leader" validate:"required,min=1,max=256"`
}

type NatsConfig struct {
	CredentialsConfig  `koanf:",squash"`
	Servers            []string `koanf:"servers" validate:"required,min=1,max=10,unique,dive,required,hostname_port"`
	CACertFilePath     string   `koanf:"ca_cert_file_path" validate:"omitempty,filepath"`
	ManualStatusSubj   string   `koanf:"manual_status_subject" default:"fatorch.manual.status" validate:"required,min=4,max=128"`
	MonitoringDataSubj string   `koanf:"monitoring_data_subject" default:"fatorch.monitoring.data" validate:"required,min=4,max=128"`
}

type KafkaConfig struct {
	SeedBrokers     []string          `koanf:"seed_brokers" validate:"required,min=1,max=10,unique,dive,required,hostname_port"`
	CACertFilePath  string            `koanf:"ca_cert_file_path" validate:"omitempty,filepath"`
	Users           KafkaUsers        `koanf:"users" validate:"required"`
	Topics          KafkaConfigTopics `koanf:"topics" validate:"required"`
	GroupID         string            `koanf:"group_id" default:"fatorch-orchestrator" validate:"required,min=4,max=64,alphanum"`
}

type KafkaUsers struct {
	Admin CredentialsConfig `koanf:"admin" validate:"required"`
	Data  CredentialsConfig `koanf:"data" validate:"required"`
}

type KafkaConfigTopics struct {
	TestProgress   string `koanf:"test_progress" default:"fatorch.test.progress" validate:"required,min=4,max=128"`
	BatchSummaries string `koanf:"batch_summaries" default:"fatorch.batch.summaries" validate:"required,min=4,max=128"`
}

type EmailConfig struct {
	CredentialsConfig `koanf:",squash"`
	SMTPHost          string   `koanf:"smtp_host" validate:"required,hostname|ip"`
	SMTPPort          int      `koanf:"smtp_port" validate:"required,min=1,max=65535"`
	FromAddress       string   `koanf:"from_address" validate:"required,email"`
	Organization      string   `koanf:"organization" default:"fatorch" validate:"required,min=1,max=128"`
	TemplatesLocation string   `koanf:"templates_location" default:"/app/templates" validate:"required,filepath"`
	NotifyRecipients  []string `koanf:"notify_recipients" validate:"required,min=1,max=20,dive,required,email"`
	NumWorkers        int      `koanf:"num_workers" default:"2" validate:"required,min=1,max=32"`
	QueueSize         int      `koanf:"queue_size" default:"64" validate:"required,min=1,max=10000"`
}

type LoggingConfig struct {
	RootLevel     string            `koanf:"root_level" validate:"required,oneof=trace debug info warn error fatal panic disabled"`
	LiteralLevels map[string]string `koanf:"literal_levels" validate:"max=100,dive,keys,required,min=1,max=100,endkeys,required,oneof=trace debug info warn error fatal panic disabled"`
	RegexLevels   map[string]string `koanf:"regex_levels" validate:"max=100,dive,keys,required,min=1,max=100,endkeys,required,oneof=trace debug info warn error fatal panic disabled"`
	PrettyPrint   bool              `koanf:"pretty_print"`
}

type ApplicationConfig struct {
	Name         string
	InstanceName string
	Version      string
	Commit       string
	BuildTime    string
}

type Config struct {
	Application   ApplicationConfig
	Plc           PlcConfig           `koanf:"plc" validate:"required"`
	Scheduler     SchedulerConfig     `koanf:"scheduler" validate:"required"`
	PostgreSQL    PostgreSQLConfig    `koanf:"postgresql" validate:"required"`
	ScyllaDB      ScyllaDBConfig      `koanf:"scylladb" validate:"required"`
	Redis         RedisConfig         `koanf:"redis" validate:"required"`
	Elasticsearch ElasticsearchConfig `koanf:"elasticsearch" validate:"required"`
	Neo4j         Neo4jConfig         `koanf:"neo4j" validate:"required"`
	Etcd          EtcdConfig          `koanf:"etcd" validate:"required"`
	Nats          NatsConfig          `koanf:"nats" validate:"required"`
	Kafka         KafkaConfig         `koanf:"kafka" validate:"required"`
	Email         EmailConfig         `koanf:"email" validate:"required"`
	Logging       LoggingConfig       `koanf:"logging" validate:"required"`
}
