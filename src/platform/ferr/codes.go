// Package ferr defines the error code taxonomy shared across fatorch's
// components, used as samber/oops codes so the originating failure class
// survives error wrapping up to the orchestration facade.
package ferr

// Precondition errors — reported to the caller, no state mutated.
const (
	NotFound          string = "NotFound"
	InvalidTransition string = "InvalidTransition"
	NotApplicable     string = "NotApplicable"
	AlreadyInProgress string = "AlreadyInProgress"
	PlcDisconnected   string = "PlcDisconnected"
	NoTestChannel     string = "NoTestChannel"
	DuplicateTag      string = "DuplicateTag"
	InvalidDefinition string = "InvalidDefinition"
)

// Transient I/O errors — retryable inside a StepExecutor per retry budget.
const (
	Timeout      string = "Timeout"
	ReadError    string = "ReadError"
	WriteError   string = "WriteError"
	ConnectError string = "ConnectError"
	Cancelled    string = "Cancelled"
)

// Test failures — normal business outcomes, recorded on RawTestOutcome.
const (
	OutOfTolerance     string = "OutOfTolerance"
	WireSystemMismatch string = "WireSystemMismatch"
	UnexpectedState    string = "UnexpectedState"
)

// Persistence errors — surfaced to the caller; scheduler halts the task.
const (
	PersistenceUnavailable string = "PersistenceUnavailable"
	IntegrityViolation     string = "IntegrityViolation"
)

// Fatal — terminate the process after flush.
const (
	ConfigurationInvalid string = "ConfigurationInvalid"
	LeadershipLost       string = "LeadershipLost"
)

// FileNotFound is used by the ambient platform packages (TLS/config
// loading) which don't fit the business taxonomy above but still want a
// stable code to match on.
const (
	FileNotFound string = "FileNotFound"
)

// Descriptions maps each code to a human-readable message.
var Descriptions = map[string]string{
	NotFound:               "no such resource",
	InvalidTransition:      "state transition not allowed",
	NotApplicable:          "sub-test item not applicable to this module type",
	AlreadyInProgress:      "operation already in progress",
	PlcDisconnected:        "PLC connection is not established",
	NoTestChannel:          "no compatible test-rig channel available",
	DuplicateTag:           "duplicate channel tag",
	InvalidDefinition:      "channel point definition missing required fields",
	Timeout:                "operation timed out",
	ReadError:              "PLC read failed",
	WriteError:             "PLC write failed",
	ConnectError:           "PLC connect failed",
	Cancelled:              "operation cancelled",
	OutOfTolerance:         "reading outside configured tolerance",
	WireSystemMismatch:     "observed logic inconsistent with configured wire system",
	UnexpectedState:        "unexpected instance state",
	PersistenceUnavailable: "persistence store unavailable",
	IntegrityViolation:     "persistence integrity constraint violated",
	ConfigurationInvalid:   "configuration invalid",
	LeadershipLost:         "lost orchestrator leadership lease",
	FileNotFound:           "file not found",
}

// Description returns a human-readable description for a code.
func Description(code string) string {
	if desc, ok := Descriptions[code]; ok {
		return desc
	}
	return "unknown error"
}
