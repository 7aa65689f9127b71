// Package plc defines the PLC driver contract (C1, spec.md §6) and a
// connection-health wrapper shared by the target and test-rig endpoints.
// The wire-level protocol (Modbus-TCP / S7 / OPC-UA) is an external
// collaborator; this package only depends on the contract below.
package plc

import (
	"context"
	"time"
)

type IntWidth int

const (
	IntWidth16 IntWidth = 16
	IntWidth32 IntWidth = 32
	IntWidth64 IntWidth = 64
)

// Driver is the PLC driver contract from spec.md §6. All calls are
// cancellable via ctx and must serialize concurrent transactions on the
// same connection internally — the allocator guarantees no two instances
// ever target the same address within a batch, but health pings and
// StepExecutors share one connection per endpoint.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	ReadBool(ctx context.Context, address string) (bool, error)
	ReadFloat(ctx context.Context, address string) (float32, error)
	ReadInt(ctx context.Context, address string, width IntWidth) (int64, error)

	WriteBool(ctx context.Context, address string, value bool) error
	WriteFloat(ctx context.Context, address string, value float32) error
	WriteInt(ctx context.Context, address string, value int64, width IntWidth) error
}

// EndpointRole distinguishes the device-under-test from the rig that
// stimulates/observes it — every StepExecutor takes one of each.
type EndpointRole string

const (
	EndpointTarget  EndpointRole = "target"
	EndpointTestRig EndpointRole = "test_rig"
)

// EndpointConfig is the subset of platform/config.PlcEndpointConfig a
// Driver constructor needs; kept here so plc does not import config and
// create an import cycle with the composition root.
type EndpointConfig struct {
	Name           string
	Protocol       string
	Address        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}
