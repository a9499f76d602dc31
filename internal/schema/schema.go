// Package schema defines the versioned request and response messages
// exchanged with the acceld management daemon for diagnostic runs.
//
// Every message generation is a closed, frozen shape. New capabilities are
// added by introducing a new version tag with a new pair of shapes; an
// existing tag's shape is never mutated. See versions.go for the tag
// pairings.
package schema

import (
	"encoding/json"
	"errors"
	"strings"
)

// Fixed capacities shared by all response generations. Frozen.
const (
	// MaxDevices is the capacity of the per-device result table.
	MaxDevices = 32

	// MaxErrors is the error-record capacity per test result (generations 9+).
	MaxErrors = 5

	// LevelOneTestCapacity is the capacity of the level-one table.
	LevelOneTestCapacity = 10

	// PerDeviceTestCountV7 is the per-device test table size in response
	// generations 7 through 9.
	PerDeviceTestCountV7 = 9

	// PerDeviceTestCountV10 is the per-device test table size in response
	// generation 10.
	PerDeviceTestCountV10 = 13
)

// DeviceIDNone marks a device slot which was never populated by the daemon.
// Response initializers set every slot to this sentinel so consumers can
// tell "slot never written" from "device 0".
const DeviceIDNone uint32 = MaxDevices

// TestStatus is the outcome of a single test on a single device.
type TestStatus uint8

const (
	TestNotRun TestStatus = iota
	TestPass
	TestSkip
	TestWarn
	TestFail
)

func (s TestStatus) String() string {
	switch s {
	case TestNotRun:
		return "Not Run"
	case TestPass:
		return "Pass"
	case TestSkip:
		return "Skip"
	case TestWarn:
		return "Warn"
	case TestFail:
		return "Fail"
	}
	return "Unknown"
}

// Per-device test table indices. Indices 0..8 exist in every generation,
// 9..12 only in generation 10.
const (
	TestMemory = iota
	TestDiagnostic
	TestPCIe
	TestSMStress
	TestTargetedStress
	TestTargetedPower
	TestMemoryBandwidth
	TestMemtest
	TestContextCreate
	TestPulse
	TestEUD
	TestLinkBandwidth
	TestWorkloadPower
)

// TestName returns the display name of a per-device test table index,
// or "" if the index is out of range.
func TestName(index int) string {
	names := [...]string{
		"Memory",
		"Diagnostic",
		"PCIe",
		"SM Stress",
		"Targeted Stress",
		"Targeted Power",
		"Memory Bandwidth",
		"Memtest",
		"Context Create",
		"Pulse",
		"EUD",
		"Link Bandwidth",
		"Workload Power",
	}
	if index < 0 || index >= len(names) {
		return ""
	}
	return names[index]
}

// LevelOneTestNames is the canonical ordering of the level-one (basic
// software/environment) tests. The order is frozen within a schema
// generation and must not change.
var LevelOneTestNames = [LevelOneTestCapacity]string{
	"Denylist",
	"Driver Library",
	"Compute Runtime Library",
	"Toolkit Library",
	"Permissions and OS Blocks",
	"Persistence Mode",
	"Environment Variables",
	"Page Retirement/Row Remap",
	"Graphics Processes",
	"Inforom",
}

// Status is the daemon's top-level result code for an RPC.
type Status int32

const (
	StatusOK Status = iota
	StatusGenericError
	StatusGroupIncompatible
	StatusUnsupportedDriver
	StatusPaused
	StatusTimeout
	StatusKilled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusGenericError:
		return "generic error"
	case StatusGroupIncompatible:
		return "group incompatible"
	case StatusUnsupportedDriver:
		return "unsupported driver"
	case StatusPaused:
		return "daemon paused"
	case StatusTimeout:
		return "timeout"
	case StatusKilled:
		return "killed"
	}
	return "unknown status"
}

// RunFlags alter how a diagnostic run executes.
type RunFlags uint32

const (
	FlagVerbose RunFlags = 1 << iota
	FlagStatsOnly
	FlagTrain
)

// RunRequest asks the daemon to run a diagnostic against a device group.
// The shape is request generation 7 and is shared by all run message
// versions currently defined. Immutable once submitted.
type RunRequest struct {
	// Version is the run message version the request was built for.
	// Stamped by EncodeRunRequest.
	Version uint32 `json:"version"`

	Flags   RunFlags `json:"flags"`
	GroupID uint32   `json:"groupId"`

	// DeviceList is a comma-separated list of device indices, or empty to
	// let the daemon pick the group's devices.
	DeviceList string `json:"deviceList"`

	// TestNames selects the tests to run; empty means the default suite.
	TestNames []string `json:"testNames,omitempty"`

	// TestParameters are free-form test.attribute=value overrides.
	TestParameters []string `json:"testParameters,omitempty"`

	// ConfigFileContents carries an optional daemon-side config document.
	ConfigFileContents string `json:"configFileContents,omitempty"`

	TotalIterations  uint32 `json:"totalIterations"`
	CurrentIteration uint32 `json:"currentIteration"`

	// TimeoutSeconds bounds the run on the daemon side; 0 means no bound.
	TimeoutSeconds uint32 `json:"timeoutSeconds"`
}

var ErrMalformedDeviceList = errors.New("device list must be a comma-separated list of numbers")

// ValidateDeviceList checks the comma-separated device list format.
// The empty string is valid and means "all devices in the group".
func ValidateDeviceList(list string) error {
	if list == "" {
		return nil
	}
	for _, tok := range strings.Split(list, ",") {
		if tok == "" {
			return ErrMalformedDeviceList
		}
		for _, r := range tok {
			if r < '0' || r > '9' {
				return ErrMalformedDeviceList
			}
		}
	}
	return nil
}

// StopRequest asks the daemon to abort an in-flight diagnostic.
type StopRequest struct {
	Version uint32 `json:"version"`
}

// SystemError is set only when the run could not start at all. A response
// carrying a system error has no per-device results.
type SystemError struct {
	Code    uint32 `json:"code"`
	Message string `json:"msg"`
}

// ErrorDetailV1 is the single error record shape of generations 7 and 8.
type ErrorDetailV1 struct {
	Code     uint32 `json:"code"`
	Message  string `json:"msg"`
	DeviceID uint32 `json:"deviceId"`
}

// ErrorDetailV2 adds the category and severity fields (generations 9+).
type ErrorDetailV2 struct {
	Code     uint32 `json:"code"`
	Category uint32 `json:"category"`
	Severity uint32 `json:"severity"`
	Message  string `json:"msg"`
	DeviceID uint32 `json:"deviceId"`
}

// TestResultV3 is the test result shape of generations 7 and 8: a status,
// at most one error record and free-text info.
type TestResultV3 struct {
	Status TestStatus    `json:"status"`
	Error  ErrorDetailV1 `json:"error"`
	Info   string        `json:"info,omitempty"`
}

// TestResultV4 is the generation 9 shape: multiple error records with
// category and severity.
type TestResultV4 struct {
	Status TestStatus              `json:"status"`
	Errors [MaxErrors]ErrorDetailV2 `json:"errors"`
	Info   string                  `json:"info,omitempty"`
}

// TestResultV5 is the generation 10 shape: V4 plus an auxiliary detail
// blob populated by tests that report structured extras (EUD et al).
type TestResultV5 struct {
	Status TestStatus              `json:"status"`
	Errors [MaxErrors]ErrorDetailV2 `json:"errors"`
	Info   string                  `json:"info,omitempty"`
	Aux    json.RawMessage         `json:"aux,omitempty"`
}

// Per-device entries, one shape per response generation.

type DeviceResultV4 struct {
	DeviceID uint32                             `json:"deviceId"`
	Results  [PerDeviceTestCountV7]TestResultV3 `json:"results"`
}

type DeviceResultV5 struct {
	DeviceID uint32                             `json:"deviceId"`
	Results  [PerDeviceTestCountV7]TestResultV4 `json:"results"`
}

type DeviceResultV6 struct {
	DeviceID uint32                              `json:"deviceId"`
	Results  [PerDeviceTestCountV10]TestResultV5 `json:"results"`
}

// RunResponseV7 is response generation 7, paired with run message version 5.
type RunResponseV7 struct {
	DaemonVersion string `json:"daemonVersion"`
	DriverVersion string `json:"driverVersion"`

	DeviceCount uint32             `json:"deviceCount"`
	DeviceIDs   [MaxDevices]string `json:"devIds"`

	Devices [MaxDevices]DeviceResultV4 `json:"devices"`

	LevelOneCount   uint32                              `json:"levelOneCount"`
	LevelOneResults [LevelOneTestCapacity]TestResultV3 `json:"levelOneResults"`

	SystemError SystemError `json:"systemError"`
}

// RunResponseV8 is response generation 8: V7 plus per-device serials.
// Paired with run message version 6.
type RunResponseV8 struct {
	DaemonVersion string `json:"daemonVersion"`
	DriverVersion string `json:"driverVersion"`

	DeviceCount   uint32             `json:"deviceCount"`
	DeviceIDs     [MaxDevices]string `json:"devIds"`
	DeviceSerials [MaxDevices]string `json:"devSerials"`

	Devices [MaxDevices]DeviceResultV4 `json:"devices"`

	LevelOneCount   uint32                              `json:"levelOneCount"`
	LevelOneResults [LevelOneTestCapacity]TestResultV3 `json:"levelOneResults"`

	SystemError SystemError `json:"systemError"`
}

// RunResponseV9 is response generation 9: V8 with multi-record errors
// carrying category and severity. Paired with run message version 7.
type RunResponseV9 struct {
	DaemonVersion string `json:"daemonVersion"`
	DriverVersion string `json:"driverVersion"`

	DeviceCount   uint32             `json:"deviceCount"`
	DeviceIDs     [MaxDevices]string `json:"devIds"`
	DeviceSerials [MaxDevices]string `json:"devSerials"`

	Devices [MaxDevices]DeviceResultV5 `json:"devices"`

	LevelOneCount   uint32                              `json:"levelOneCount"`
	LevelOneResults [LevelOneTestCapacity]TestResultV4 `json:"levelOneResults"`

	SystemError SystemError `json:"systemError"`
}

// RunResponseV10 is response generation 10: V9 with the expanded
// per-device test table and auxiliary detail blobs. Paired with run
// message version 8, the current generation.
type RunResponseV10 struct {
	DaemonVersion string `json:"daemonVersion"`
	DriverVersion string `json:"driverVersion"`

	DeviceCount   uint32             `json:"deviceCount"`
	DeviceIDs     [MaxDevices]string `json:"devIds"`
	DeviceSerials [MaxDevices]string `json:"devSerials"`

	Devices [MaxDevices]DeviceResultV6 `json:"devices"`

	LevelOneCount   uint32                              `json:"levelOneCount"`
	LevelOneResults [LevelOneTestCapacity]TestResultV5 `json:"levelOneResults"`

	SystemError SystemError `json:"systemError"`
}

// RunResponse is the current response generation. Consumers past the wire
// boundary work with this shape; older generations convert up explicitly.
type RunResponse = RunResponseV10

// NewRunResponse returns a response with every device slot marked
// unpopulated, so DevicesThatRan style consumers can distinguish written
// slots from never-written ones.
func NewRunResponse() *RunResponse {
	var r RunResponse
	for i := range r.Devices {
		r.Devices[i].DeviceID = DeviceIDNone
	}
	return &r
}

func (e ErrorDetailV1) current() ErrorDetailV2 {
	return ErrorDetailV2{Code: e.Code, Message: e.Message, DeviceID: e.DeviceID}
}

func (t TestResultV3) current() TestResultV5 {
	out := TestResultV5{Status: t.Status, Info: t.Info}
	if t.Error.Code != 0 || t.Error.Message != "" {
		out.Errors[0] = t.Error.current()
	}
	return out
}

func (t TestResultV4) current() TestResultV5 {
	return TestResultV5{Status: t.Status, Errors: t.Errors, Info: t.Info}
}

// Current converts a generation 7 response to the current shape. Fields the
// older generation lacks are left zero.
func (r *RunResponseV7) Current() *RunResponse {
	out := NewRunResponse()
	out.DaemonVersion = r.DaemonVersion
	out.DriverVersion = r.DriverVersion
	out.DeviceCount = r.DeviceCount
	out.DeviceIDs = r.DeviceIDs
	out.SystemError = r.SystemError
	out.LevelOneCount = r.LevelOneCount
	for i, t := range r.LevelOneResults {
		out.LevelOneResults[i] = t.current()
	}
	for i, d := range r.Devices {
		out.Devices[i].DeviceID = d.DeviceID
		for j, t := range d.Results {
			out.Devices[i].Results[j] = t.current()
		}
	}
	return out
}

// Current converts a generation 8 response to the current shape.
func (r *RunResponseV8) Current() *RunResponse {
	v7 := RunResponseV7{
		DaemonVersion:   r.DaemonVersion,
		DriverVersion:   r.DriverVersion,
		DeviceCount:     r.DeviceCount,
		DeviceIDs:       r.DeviceIDs,
		Devices:         r.Devices,
		LevelOneCount:   r.LevelOneCount,
		LevelOneResults: r.LevelOneResults,
		SystemError:     r.SystemError,
	}
	out := v7.Current()
	out.DeviceSerials = r.DeviceSerials
	return out
}

// Current converts a generation 9 response to the current shape.
func (r *RunResponseV9) Current() *RunResponse {
	out := NewRunResponse()
	out.DaemonVersion = r.DaemonVersion
	out.DriverVersion = r.DriverVersion
	out.DeviceCount = r.DeviceCount
	out.DeviceIDs = r.DeviceIDs
	out.DeviceSerials = r.DeviceSerials
	out.SystemError = r.SystemError
	out.LevelOneCount = r.LevelOneCount
	for i, t := range r.LevelOneResults {
		out.LevelOneResults[i] = t.current()
	}
	for i, d := range r.Devices {
		out.Devices[i].DeviceID = d.DeviceID
		for j, t := range d.Results {
			out.Devices[i].Results[j] = t.current()
		}
	}
	return out
}
