// Package eventbus is C9: the ordered, multi-subscriber fan-out every other
// domain component publishes state changes onto instead of calling UI/export
// observers directly (spec.md §4.7).
package eventbus

import "time"

type Kind string

const (
	KindStateChanged          Kind = "StateChanged"
	KindSubTestChanged        Kind = "SubTestChanged"
	KindErrorDetail           Kind = "ErrorDetail"
	KindTestProgressChanged   Kind = "TestProgressChanged"
	KindManualTestStatusChanged Kind = "ManualTestStatusChanged"
	KindMonitoringData        Kind = "MonitoringData"
)

// Event is the envelope every publisher builds. Seq is assigned by the bus
// itself, monotonically per InstanceID, so two subscribers never observe a
// given instance's events out of order even if they drain their queues at
// different rates.
type Event struct {
	Kind       Kind
	InstanceID string
	BatchID    string
	Seq        uint64
	At         time.Time
	Payload    any
}

// StateChangedPayload accompanies KindStateChanged.
type StateChangedPayload struct {
	From string
	To   string
}

// SubTestChangedPayload accompanies KindSubTestChanged.
type SubTestChangedPayload struct {
	SubTestKey string
	Status     string
	Message    string
}

// ErrorDetailPayload accompanies KindErrorDetail.
type ErrorDetailPayload struct {
	Code    string
	Message string
}

// TestProgressChangedPayload accompanies KindTestProgressChanged.
type TestProgressChangedPayload struct {
	Total, Tested, Passed, Failed, Skipped, Started int
}

// ManualTestStatusChangedPayload accompanies KindManualTestStatusChanged.
type ManualTestStatusChangedPayload struct {
	SessionID string
	Operator  string
	Status    string
}

// MonitoringDataPayload accompanies KindMonitoringData: a single live reading
// pushed by the ManualTestCoordinator's PLC-monitoring helper.
type MonitoringDataPayload struct {
	Label    string
	RawValue float64
	EngValue float64
}
