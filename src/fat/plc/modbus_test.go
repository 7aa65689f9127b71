package plc

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAddress_ParsesUnitAndRegister(t *testing.T) {
	unit, reg, err := splitAddress("1:40001")
	require.NoError(t, err)
	assert.Equal(t, byte(1), unit)
	assert.Equal(t, uint16(40001), reg)
}

func TestSplitAddress_RejectsMalformedInput(t *testing.T) {
	_, _, err := splitAddress("not-an-address")
	assert.Error(t, err)

	_, _, err = splitAddress("256:1") // unit id overflows a byte
	assert.Error(t, err)

	_, _, err = splitAddress("1:999999") // register overflows uint16
	assert.Error(t, err)
}

func TestNewDriver_UnknownProtocolReturnsError(t *testing.T) {
	_, err := NewDriver(EndpointConfig{Protocol: "s7"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewDriver(EndpointConfig{Protocol: "opcua"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewDriver_ModbusTCPReturnsConcreteDriver(t *testing.T) {
	driver, err := NewDriver(EndpointConfig{Protocol: "modbus-tcp", Name: "target", Address: "127.0.0.1:1502"}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, driver.IsConnected())
}

// serveOneModbusFrame accepts a single connection, reads one MBAP-framed
// request and replies with a fixed coil-read response (one byte, value 1).
func serveOneModbusFrame(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, mbapHeaderLen+5)
		if _, err := readFull(conn, header); err != nil {
			return
		}

		txID := binary.BigEndian.Uint16(header[0:2])
		resp := make([]byte, mbapHeaderLen+1+2)
		binary.BigEndian.PutUint16(resp[0:2], txID)
		binary.BigEndian.PutUint16(resp[2:4], 0)
		binary.BigEndian.PutUint16(resp[4:6], 4) // unit id + function + byte count + data
		resp[6] = header[6]                      // echo unit id
		resp[7] = funcReadCoils
		resp[8] = 1 // byte count
		resp[9] = 1 // coil value: on
		conn.Write(resp[:len(resp)])
	}()
}

func TestModbusTCPDriver_ReadBool_RoundTripsOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serveOneModbusFrame(t, ln)

	driver := NewModbusTCPDriver(EndpointConfig{
		Name:           "target",
		Protocol:       "modbus-tcp",
		Address:        ln.Addr().String(),
		ConnectTimeout: time.Second,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, driver.Connect(ctx))
	assert.True(t, driver.IsConnected())

	value, err := driver.ReadBool(ctx, "1:100")
	require.NoError(t, err)
	assert.True(t, value)

	require.NoError(t, driver.Disconnect(ctx))
	assert.False(t, driver.IsConnected())
}

func TestModbusTCPDriver_OperationsFailWhenNotConnected(t *testing.T) {
	driver := NewModbusTCPDriver(EndpointConfig{Name: "target", Protocol: "modbus-tcp", Address: "127.0.0.1:1"}, zerolog.Nop())

	_, err := driver.ReadBool(context.Background(), "1:100")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestModbusTCPDriver_Connect_FailsOnUnreachableAddress(t *testing.T) {
	driver := NewModbusTCPDriver(EndpointConfig{
		Name:           "target",
		Protocol:       "modbus-tcp",
		Address:        "127.0.0.1:1", // nothing listens on port 1
		ConnectTimeout: 200 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := driver.Connect(ctx)
	assert.Error(t, err)
	assert.False(t, driver.IsConnected())
}
