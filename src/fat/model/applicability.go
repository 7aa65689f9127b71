package model

// applicableSubTests is the table from spec.md §4.4: which sub-test items a
// module type can ever produce. StateManager consults this to enforce I3.
var applicableSubTests = map[ModuleType][]SubTestItemKind{
	ModuleTypeAI: {
		SubTestHardPoint,
		SubTestLowLowAlarm, SubTestLowAlarm, SubTestHighAlarm, SubTestHighHighAlarm,
		SubTestMaintenance, SubTestTrendCheck, SubTestReportCheck,
	},
	ModuleTypeAO: {
		SubTestHardPoint, SubTestTrendCheck, SubTestReportCheck,
	},
	ModuleTypeDI: {
		SubTestHardPoint, SubTestStateDisplay,
	},
	ModuleTypeDO: {
		SubTestHardPoint, SubTestStateDisplay,
	},
	ModuleTypeCommunication: {
		SubTestCommunicationTest,
	},
}

// IsApplicable reports whether sub_item may be recorded against an instance
// of the given module type (base family — passive variants inherit their
// base type's matrix).
func IsApplicable(moduleType ModuleType, item SubTestItem) bool {
	if item.Kind == SubTestCustom {
		return true
	}
	kinds, ok := applicableSubTests[moduleType.Base()]
	if !ok {
		return false
	}
	for _, k := range kinds {
		if k == item.Kind {
			return true
		}
	}
	return false
}

// ApplicableSubTests returns the full declared set for a module type, used
// by the manual coordinator to know when a session is complete and by the
// scheduler to know which hardpoint sub-items to dispatch.
func ApplicableSubTests(moduleType ModuleType) []SubTestItemKind {
	kinds := applicableSubTests[moduleType.Base()]
	out := make([]SubTestItemKind, len(kinds))
	copy(out, kinds)
	return out
}

// HardpointSubTests is the subset of a module's applicable sub-tests that
// the automatic StepExecutors (C6, driven by C7) produce.
func HardpointSubTests(moduleType ModuleType) []SubTestItemKind {
	switch moduleType.Base() {
	case ModuleTypeAI, ModuleTypeAO, ModuleTypeDI, ModuleTypeDO:
		return []SubTestItemKind{SubTestHardPoint}
	case ModuleTypeCommunication:
		return []SubTestItemKind{SubTestCommunicationTest}
	default:
		return nil
	}
}

// ManualSubTests is the subset gated on an operator, driven by C8.
func ManualSubTests(moduleType ModuleType) []SubTestItemKind {
	all := ApplicableSubTests(moduleType)
	hard := HardpointSubTests(moduleType)
	out := make([]SubTestItemKind, 0, len(all))
	for _, k := range all {
		isHard := false
		for _, h := range hard {
			if h == k {
				isHard = true
				break
			}
		}
		if !isHard {
			out = append(out, k)
		}
	}
	return out
}

// PairedChannelType implements the spec.md §4.1 pairing table: a definition
// of module type X and power-type P is tested against a complementary
// test-rig channel of this type.
func PairedChannelType(moduleType ModuleType, powerType PowerSupplyType) (ChannelType, bool) {
	base := moduleType.Base()
	sourced := powerType == PowerSupplySourced

	switch base {
	case ModuleTypeAI:
		if sourced {
			return ChannelTypeAOPassive, true
		}
		return ChannelTypeAO, true
	case ModuleTypeAO:
		if sourced {
			return ChannelTypeAI, true
		}
		return ChannelTypeAIPassive, true
	case ModuleTypeDI:
		if sourced {
			return ChannelTypeDOPassive, true
		}
		return ChannelTypeDO, true
	case ModuleTypeDO:
		if sourced {
			return ChannelTypeDI, true
		}
		return ChannelTypeDIPassive, true
	default:
		return "", false
	}
}
