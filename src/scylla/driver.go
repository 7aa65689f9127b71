// Package scylla builds the gocql.ClusterConfig shared by every ScyllaDB
// consumer in fatorch (the append-only ledger tables backing the
// persistence store), token-aware and DC-aware the same way regardless
// of which lifecycle wrapper opens the session.
package scylla

import (
	"time"

	"github.com/gocql/gocql"
)

// Aim for a single query per read path; ScyllaDB is not performant under
// multi-partition IN queries or BATCH used for anything but atomicity.

type ClusterOptions struct {
	Hosts             []string
	ShardAwarePort    int
	LocalDC           string
	Keyspace          string
	Authenticator     gocql.Authenticator
	AddressTranslator gocql.AddressTranslator
	Logger            gocql.StdLogger
}

func BuildClusterConfig(options ClusterOptions) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(options.Hosts...)

	var fallback gocql.HostSelectionPolicy
	if options.LocalDC != "" {
		fallback = gocql.DCAwareRoundRobinPolicy(options.LocalDC)
	} else {
		fallback = gocql.RoundRobinHostPolicy()
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(fallback)

	cluster.Port = options.ShardAwarePort

	if options.LocalDC != "" {
		cluster.Consistency = gocql.LocalQuorum
		cluster.SerialConsistency = gocql.LocalSerial
	} else {
		cluster.Consistency = gocql.Quorum
		cluster.SerialConsistency = gocql.Serial
	}

	cluster.Keyspace = options.Keyspace
	cluster.Compressor = &gocql.SnappyCompressor{}
	cluster.Authenticator = options.Authenticator
	cluster.AddressTranslator = options.AddressTranslator

	cluster.DefaultIdempotence = true
	cluster.Timeout = 3 * time.Second
	cluster.WriteTimeout = 3 * time.Second
	cluster.ReadTimeout = 4 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.DisableSkipMetadata = false

	if options.Logger != nil {
		cluster.Logger = options.Logger
	}

	return cluster
}

func CreateSession(options ClusterOptions) (*gocql.Session, error) {
	return BuildClusterConfig(options).CreateSession()
}
