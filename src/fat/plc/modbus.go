package plc

// ModbusTCPDriver is the one concrete Driver wired at the composition root
// for EndpointConfig.Protocol == "modbus-tcp". No Modbus/S7/OPC-UA client
// library is present anywhere in the stack this module was built from, so
// this talks raw MBAP framing over a TCP socket rather than fabricate a
// dependency on an unverified import. "s7" and "opcua" have no driver here
// yet — NewDriver returns an error for them until one is wired.
//
// Address strings are "<unit>:<register>", e.g. "1:40001" — the unit id and
// a zero-based register/coil address, kept opaque to everything above this
// package per the Driver contract.

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	mbapHeaderLen  = 7
	funcReadCoils  = 0x01
	funcReadHRegs  = 0x03
	funcWriteCoil  = 0x05
	funcWriteHReg  = 0x06
	funcWriteHRegs = 0x10
)

var ErrNotConnected = errors.New("plc driver not connected")

// NewDriver resolves the concrete Driver for one endpoint's configured
// protocol. It is the seam a future S7/OPC-UA implementation plugs into.
func NewDriver(cfg EndpointConfig, logger zerolog.Logger) (Driver, error) {
	switch cfg.Protocol {
	case "modbus-tcp":
		return NewModbusTCPDriver(cfg, logger), nil
	default:
		return nil, fmt.Errorf("no driver implementation wired for protocol '%s'", cfg.Protocol)
	}
}

type ModbusTCPDriver struct {
	cfg    EndpointConfig
	logger zerolog.Logger

	mutex       sync.Mutex
	conn        net.Conn
	connected   atomic.Bool
	transaction uint16
}

func NewModbusTCPDriver(cfg EndpointConfig, logger zerolog.Logger) *ModbusTCPDriver {
	return &ModbusTCPDriver{cfg: cfg, logger: logger}
}

func (d *ModbusTCPDriver) Connect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.cfg.Address)
	if err != nil {
		return fmt.Errorf("connect to '%s' (%s) failed: %w", d.cfg.Name, d.cfg.Address, err)
	}

	d.conn = conn
	d.connected.Store(true)
	d.logger.Info().Str("endpoint", d.cfg.Name).Str("address", d.cfg.Address).Msg("modbus-tcp driver connected")
	return nil
}

func (d *ModbusTCPDriver) Disconnect(_ context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.connected.Store(false)
	return err
}

func (d *ModbusTCPDriver) IsConnected() bool {
	return d.connected.Load()
}

func (d *ModbusTCPDriver) ReadBool(ctx context.Context, address string) (bool, error) {
	unit, reg, err := splitAddress(address)
	if err != nil {
		return false, err
	}

	resp, err := d.roundTrip(ctx, unit, funcReadCoils, reg, 1, nil)
	if err != nil {
		return false, err
	}
	if len(resp) < 1 {
		return false, fmt.Errorf("short coil read response for '%s'", address)
	}
	return resp[0]&0x01 == 1, nil
}

func (d *ModbusTCPDriver) WriteBool(ctx context.Context, address string, value bool) error {
	unit, reg, err := splitAddress(address)
	if err != nil {
		return err
	}

	payload := uint16(0x0000)
	if value {
		payload = 0xFF00
	}
	_, err = d.roundTrip(ctx, unit, funcWriteCoil, reg, payload, nil)
	return err
}

func (d *ModbusTCPDriver) ReadInt(ctx context.Context, address string, width IntWidth) (int64, error) {
	unit, reg, err := splitAddress(address)
	if err != nil {
		return 0, err
	}

	count := uint16(width) / 16
	resp, err := d.roundTrip(ctx, unit, funcReadHRegs, reg, count, nil)
	if err != nil {
		return 0, err
	}
	if len(resp) < int(count)*2 {
		return 0, fmt.Errorf("short register read response for '%s'", address)
	}

	switch width {
	case IntWidth16:
		return int64(int16(binary.BigEndian.Uint16(resp))), nil
	case IntWidth32:
		return int64(int32(binary.BigEndian.Uint32(resp))), nil
	default:
		return int64(binary.BigEndian.Uint64(resp)), nil
	}
}

func (d *ModbusTCPDriver) WriteInt(ctx context.Context, address string, value int64, width IntWidth) error {
	unit, reg, err := splitAddress(address)
	if err != nil {
		return err
	}

	buf := make([]byte, width/8)
	switch width {
	case IntWidth16:
		binary.BigEndian.PutUint16(buf, uint16(value))
	case IntWidth32:
		binary.BigEndian.PutUint32(buf, uint32(value))
	default:
		binary.BigEndian.PutUint64(buf, uint64(value))
	}

	_, err = d.roundTrip(ctx, unit, funcWriteHRegs, reg, uint16(len(buf)/2), buf)
	return err
}

func (d *ModbusTCPDriver) ReadFloat(ctx context.Context, address string) (float32, error) {
	unit, reg, err := splitAddress(address)
	if err != nil {
		return 0, err
	}

	resp, err := d.roundTrip(ctx, unit, funcReadHRegs, reg, 2, nil)
	if err != nil {
		return 0, err
	}
	if len(resp) < 4 {
		return 0, fmt.Errorf("short float read response for '%s'", address)
	}
	return math.Float32frombits(binary.BigEndian.Uint32(resp)), nil
}

func (d *ModbusTCPDriver) WriteFloat(ctx context.Context, address string, value float32) error {
	unit, reg, err := splitAddress(address)
	if err != nil {
		return err
	}

	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(value))
	_, err = d.roundTrip(ctx, unit, funcWriteHRegs, reg, 2, buf)
	return err
}

// roundTrip sends one MBAP-framed PDU and returns the response's data bytes
// (header and function/address echo stripped). payload carries the extra
// byte-count-prefixed data a multi-register write needs; nil for everything
// else, where arg2 is taken as the PDU's second 16-bit field directly.
func (d *ModbusTCPDriver) roundTrip(ctx context.Context, unit byte, function byte, reg, arg2 uint16, payload []byte) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.conn == nil {
		return nil, ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = d.conn.SetDeadline(deadline)
	}

	pdu := make([]byte, 5)
	pdu[0] = function
	binary.BigEndian.PutUint16(pdu[1:3], reg)
	binary.BigEndian.PutUint16(pdu[3:5], arg2)
	if function == funcWriteHRegs {
		pdu = append(pdu, byte(len(payload)))
		pdu = append(pdu, payload...)
	}

	txID := uint16(d.transaction)
	d.transaction++

	frame := make([]byte, mbapHeaderLen+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], txID)
	binary.BigEndian.PutUint16(frame[2:4], 0) // protocol id, always 0 for Modbus
	binary.BigEndian.PutUint16(frame[4:6], uint16(1+len(pdu)))
	frame[6] = unit
	copy(frame[7:8], []byte{function})
	copy(frame[8:], pdu[1:])

	if _, err := d.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("modbus write to '%s' failed: %w", d.cfg.Name, err)
	}

	header := make([]byte, mbapHeaderLen)
	if _, err := readFull(d.conn, header); err != nil {
		return nil, fmt.Errorf("modbus header read from '%s' failed: %w", d.cfg.Name, err)
	}
	remaining := int(binary.BigEndian.Uint16(header[4:6])) - 1
	if remaining < 0 {
		return nil, fmt.Errorf("modbus response from '%s' has invalid length", d.cfg.Name)
	}

	body := make([]byte, remaining)
	if _, err := readFull(d.conn, body); err != nil {
		return nil, fmt.Errorf("modbus body read from '%s' failed: %w", d.cfg.Name, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty modbus response from '%s'", d.cfg.Name)
	}
	if body[0]&0x80 != 0 {
		return nil, fmt.Errorf("modbus exception from '%s': function=%#x code=%#x", d.cfg.Name, body[0]&0x7F, body[1])
	}

	switch function {
	case funcReadCoils, funcReadHRegs:
		if len(body) < 2 {
			return nil, fmt.Errorf("modbus short response body from '%s'", d.cfg.Name)
		}
		byteCount := int(body[1])
		if len(body) < 2+byteCount {
			return nil, fmt.Errorf("modbus truncated response body from '%s'", d.cfg.Name)
		}
		return body[2 : 2+byteCount], nil
	default:
		return nil, nil
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func splitAddress(address string) (unit byte, register uint16, err error) {
	parts := strings.SplitN(address, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid plc address '%s', expected '<unit>:<register>'", address)
	}
	u, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid unit id in address '%s': %w", address, err)
	}
	r, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid register in address '%s': %w", address, err)
	}
	return byte(u), uint16(r), nil
}
