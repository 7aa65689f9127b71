// Package model holds the data types shared by every fatorch component:
// the channel point definitions imported from the spreadsheet, the test-rig
// inventory, the allocation that pairs them, and the mutable test instance
// that StateManager owns exclusively.
package model

import (
	"time"

	"github.com/mitchellh/copystructure"
	optional "github.com/moznion/go-optional"
)

type ModuleType string

const (
	ModuleTypeAI            ModuleType = "AI"
	ModuleTypeAO            ModuleType = "AO"
	ModuleTypeDI            ModuleType = "DI"
	ModuleTypeDO            ModuleType = "DO"
	ModuleTypeAIPassive     ModuleType = "AI_passive"
	ModuleTypeAOPassive     ModuleType = "AO_passive"
	ModuleTypeDIPassive     ModuleType = "DI_passive"
	ModuleTypeDOPassive     ModuleType = "DO_passive"
	ModuleTypeCommunication ModuleType = "Communication"
)

// Base strips the _passive suffix so applicability/pairing rules only need
// to switch on four base families instead of nine.
func (m ModuleType) Base() ModuleType {
	switch m {
	case ModuleTypeAIPassive:
		return ModuleTypeAI
	case ModuleTypeAOPassive:
		return ModuleTypeAO
	case ModuleTypeDIPassive:
		return ModuleTypeDI
	case ModuleTypeDOPassive:
		return ModuleTypeDO
	default:
		return m
	}
}

func (m ModuleType) IsPassive() bool {
	switch m {
	case ModuleTypeAIPassive, ModuleTypeAOPassive, ModuleTypeDIPassive, ModuleTypeDOPassive:
		return true
	default:
		return false
	}
}

type DataType string

const (
	DataTypeBool   DataType = "Bool"
	DataTypeInt16  DataType = "Int16"
	DataTypeInt32  DataType = "Int32"
	DataTypeUInt16 DataType = "UInt16"
	DataTypeUInt32 DataType = "UInt32"
	DataTypeFloat  DataType = "Float"
	DataTypeDouble DataType = "Double"
	DataTypeString DataType = "String"
)

type PowerSupplyType string

const (
	PowerSupplySourced PowerSupplyType = "sourced"
	PowerSupplyPassive PowerSupplyType = "passive"
)

type WireSystem string

const (
	WireSystemNO WireSystem = "NO"
	WireSystemNC WireSystem = "NC"
)

// AlarmSetpoint is one of the four {value, setpoint_addr, feedback_addr}
// groups on a ChannelPointDefinition (LL/L/H/HH).
type AlarmSetpoint struct {
	Value         float64
	SetpointAddr  string
	FeedbackAddr  string
}

// ChannelPointDefinition is immutable after import (spec.md §3).
type ChannelPointDefinition struct {
	ID                      string
	Tag                     string
	VariableName            string
	Description             string
	StationName             string
	ModuleName              string
	ModuleType              ModuleType
	ChannelNumber           int
	DataType                DataType
	PowerSupplyType         PowerSupplyType
	WireSystem              WireSystem
	PlcAbsoluteAddress      string
	PlcCommunicationAddress string

	RangeLo     optional.Option[float64]
	RangeHi     optional.Option[float64]
	RangeLoAddr optional.Option[string]
	RangeHiAddr optional.Option[string]
	EngUnit     optional.Option[string]

	AlarmLL optional.Option[AlarmSetpoint]
	AlarmL  optional.Option[AlarmSetpoint]
	AlarmH  optional.Option[AlarmSetpoint]
	AlarmHH optional.Option[AlarmSetpoint]

	MaintenanceSetpoint   optional.Option[float64]
	MaintenanceEnableAddr optional.Option[string]
}

// HasEngineeringRange reports whether both ends of the range are present,
// required for AI/AO hardpoint executors to compute stimulus values.
func (d ChannelPointDefinition) HasEngineeringRange() bool {
	return d.RangeLo.IsSome() && d.RangeHi.IsSome()
}

type ChannelType string

const (
	ChannelTypeAI        ChannelType = ChannelType(ModuleTypeAI)
	ChannelTypeAO        ChannelType = ChannelType(ModuleTypeAO)
	ChannelTypeDI        ChannelType = ChannelType(ModuleTypeDI)
	ChannelTypeDO        ChannelType = ChannelType(ModuleTypeDO)
	ChannelTypeAIPassive ChannelType = ChannelType(ModuleTypeAIPassive)
	ChannelTypeAOPassive ChannelType = ChannelType(ModuleTypeAOPassive)
	ChannelTypeDIPassive ChannelType = ChannelType(ModuleTypeDIPassive)
	ChannelTypeDOPassive ChannelType = ChannelType(ModuleTypeDOPassive)
)

// TestPlcChannel is one entry of the fixed test-rig inventory.
type TestPlcChannel struct {
	ID                    string
	ChannelAddress        string
	ChannelType           ChannelType
	CommunicationAddress  string
	PowerSupplyType       PowerSupplyType
	Enabled               bool
}

// ChannelAllocation pairs a definition with a test-rig channel inside a batch.
// TestChannelID and TestCommAddress are empty when the partition's inventory
// was exhausted (NoTestChannel at test time, per spec.md §4.1).
type ChannelAllocation struct {
	DefinitionID    string
	TestChannelID   string
	BatchName       string
	TestCommAddress string
}

type OverallBatchStatus string

const (
	BatchStatusNotStarted            OverallBatchStatus = "NotStarted"
	BatchStatusInProgress            OverallBatchStatus = "InProgress"
	BatchStatusCompleted             OverallBatchStatus = "Completed"
	BatchStatusCompletedWithFailures OverallBatchStatus = "CompletedWithFailures"
)

type BatchCounters struct {
	Total   int
	Tested  int
	Passed  int
	Failed  int
	Skipped int
	Started int
}

type TestBatch struct {
	BatchID       string
	BatchName     string
	ProductModel  string
	SerialNumber  string
	StationName   string
	CreatedAt     time.Time
	Counters      BatchCounters
	OverallStatus OverallBatchStatus
}

type InstanceStatus string

const (
	InstanceStatusNotTested                  InstanceStatus = "NotTested"
	InstanceStatusWiringConfirmationRequired InstanceStatus = "WiringConfirmationRequired"
	InstanceStatusWiringConfirmed            InstanceStatus = "WiringConfirmed"
	InstanceStatusHardPointTesting           InstanceStatus = "HardPointTesting"
	InstanceStatusHardPointTestCompleted     InstanceStatus = "HardPointTestCompleted"
	InstanceStatusAlarmTesting               InstanceStatus = "AlarmTesting"
	InstanceStatusManualTesting               InstanceStatus = "ManualTesting"
	InstanceStatusTestCompletedPassed        InstanceStatus = "TestCompletedPassed"
	InstanceStatusTestCompletedFailed        InstanceStatus = "TestCompletedFailed"
	InstanceStatusSkipped                    InstanceStatus = "Skipped"
	InstanceStatusRetesting                  InstanceStatus = "Retesting"
)

func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusTestCompletedPassed, InstanceStatusTestCompletedFailed, InstanceStatusSkipped:
		return true
	default:
		return false
	}
}

type SubTestItemKind string

const (
	SubTestHardPoint         SubTestItemKind = "HardPoint"
	SubTestLowLowAlarm       SubTestItemKind = "LowLowAlarm"
	SubTestLowAlarm          SubTestItemKind = "LowAlarm"
	SubTestHighAlarm         SubTestItemKind = "HighAlarm"
	SubTestHighHighAlarm     SubTestItemKind = "HighHighAlarm"
	SubTestMaintenance       SubTestItemKind = "Maintenance"
	SubTestTrendCheck        SubTestItemKind = "TrendCheck"
	SubTestReportCheck       SubTestItemKind = "ReportCheck"
	SubTestStateDisplay      SubTestItemKind = "StateDisplay"
	SubTestCommunicationTest SubTestItemKind = "CommunicationTest"
	SubTestCustom            SubTestItemKind = "Custom"
)

// SubTestItem is an open set: Kind selects the fixed vocabulary above, Label
// carries the free-form name when Kind == SubTestCustom.
type SubTestItem struct {
	Kind  SubTestItemKind
	Label string
}

func (s SubTestItem) Key() string {
	if s.Kind == SubTestCustom {
		return string(SubTestCustom) + ":" + s.Label
	}
	return string(s.Kind)
}

func NewSubTestItem(kind SubTestItemKind) SubTestItem {
	return SubTestItem{Kind: kind}
}

func NewCustomSubTestItem(label string) SubTestItem {
	return SubTestItem{Kind: SubTestCustom, Label: label}
}

type SubTestStatus string

const (
	SubTestStatusNotTested      SubTestStatus = "NotTested"
	SubTestStatusTesting        SubTestStatus = "Testing"
	SubTestStatusPassed         SubTestStatus = "Passed"
	SubTestStatusFailed         SubTestStatus = "Failed"
	SubTestStatusNotApplicable  SubTestStatus = "NotApplicable"
	SubTestStatusSkipped        SubTestStatus = "Skipped"
)

func (s SubTestStatus) IsTerminal() bool {
	switch s {
	case SubTestStatusPassed, SubTestStatusFailed, SubTestStatusNotApplicable, SubTestStatusSkipped:
		return true
	default:
		return false
	}
}

type Reading struct {
	Label          string
	RawValue       float64
	EngValue       float64
	Percent        optional.Option[float64]
}

type SubTestResult struct {
	Status    SubTestStatus
	Message   optional.Option[string]
	Readings  []Reading
	Timestamp time.Time
}

// ErrorNotes are the three error-category notes attached to an instance by
// save_error_notes — distinguishing a wiring/programming problem from a
// genuine hardware failure for the FAT report.
type ErrorNotes struct {
	Integration     optional.Option[string]
	PlcProgramming  optional.Option[string]
	HmiConfiguration optional.Option[string]
}

// ChannelTestInstance is the mutable unit of testing: one definition tested
// inside one batch. Only StateManager may mutate it (I1).
type ChannelTestInstance struct {
	InstanceID      string
	DefinitionID    string
	BatchID         string
	OverallStatus   InstanceStatus
	SubTestResults  map[string]SubTestResult // keyed by SubTestItem.Key()

	StartTime      optional.Option[time.Time]
	FinalTestTime  optional.Option[time.Time]
	DurationMs     optional.Option[int64]
	RetriesCount   int
	CurrentOperator optional.Option[string]
	ErrorMessage   optional.Option[string]
	ErrorNotes     ErrorNotes

	LastRawValue   optional.Option[float64]
	LastEngValue   optional.Option[float64]
	LastPercent    optional.Option[float64]
}

// Snapshot returns a deep copy safe to hand to a reader without holding
// StateManager's per-instance lock any longer than the copy itself.
// copystructure walks the nested map/slice fields generically instead of
// the manual copy loop a hand-rolled clone would need to keep in sync with
// every future field addition.
func (i ChannelTestInstance) Snapshot() ChannelTestInstance {
	cloned, err := copystructure.Copy(i)
	if err != nil {
		// copystructure only fails on unsupported field kinds (channels,
		// funcs); ChannelTestInstance has neither, so this is unreachable
		// in practice. Fall back to the shallow copy rather than panic.
		return i
	}
	return cloned.(ChannelTestInstance)
}

// RawTestOutcome is the append-only record produced by a StepExecutor.
type RawTestOutcome struct {
	ID           string
	InstanceID   string
	SubTestItem  SubTestItem
	Success      bool
	Message      optional.Option[string]
	StartTime    time.Time
	EndTime      time.Time
	ReadingsJSON optional.Option[string]
}
