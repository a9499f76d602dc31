package diag

// Priority classifies an error code by what the operator should do about
// the device that produced it.
type Priority uint8

const (
	// PriorityGeneric failures are re-testable conditions.
	PriorityGeneric Priority = iota

	// PriorityIsolate failures indicate the device should be removed from
	// service before further scheduling.
	PriorityIsolate
)

// Error codes reported by the daemon's test plugins. The numeric values
// are part of the daemon contract and are frozen.
const (
	CodeUnknown             uint32 = 0
	CodeMemoryDBE           uint32 = 19
	CodeMemoryReplayableXid uint32 = 20
	CodePendingPageRetire   uint32 = 21
	CodeRowRemapFailure     uint32 = 22
	CodeUncontainedError    uint32 = 23
	CodeThermalViolation    uint32 = 30
	CodePowerViolation      uint32 = 31
	CodeNVLinkFatal         uint32 = 40
	CodeNVLinkReplayable    uint32 = 41
	CodePCIeReplayRate      uint32 = 50
	CodeStressLevelLow      uint32 = 60
)

// isolateCodes are the failures that indicate hardware unfit for service.
var isolateCodes = map[uint32]struct{}{
	CodeMemoryDBE:         {},
	CodePendingPageRetire: {},
	CodeRowRemapFailure:   {},
	CodeUncontainedError:  {},
	CodeNVLinkFatal:       {},
}

// PriorityByCode maps an error code to its priority class. Codes not in
// the isolate set, including unknown codes, are generic.
func PriorityByCode(code uint32) Priority {
	if _, ok := isolateCodes[code]; ok {
		return PriorityIsolate
	}
	return PriorityGeneric
}
