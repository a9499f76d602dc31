package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accelkit/acceldiag/internal/schema"
)

func TestValidateDeviceList(t *testing.T) {
	t.Parallel()
	valid := []string{"", "0", "0,1,2", "31", "12,7"}
	for _, list := range valid {
		require.NoError(t, schema.ValidateDeviceList(list), "list %q", list)
	}

	invalid := []string{",", "0,", ",1", "0,,1", "a", "0,x", "1 2", "-1", "0, 1"}
	for _, list := range invalid {
		err := schema.ValidateDeviceList(list)
		require.ErrorIs(t, err, schema.ErrMalformedDeviceList, "list %q", list)
	}
}

func TestResponseVersionFor(t *testing.T) {
	t.Parallel()
	pairs := map[uint32]uint32{
		schema.RunVersion5: schema.ResponseVersion7,
		schema.RunVersion6: schema.ResponseVersion8,
		schema.RunVersion7: schema.ResponseVersion9,
		schema.RunVersion8: schema.ResponseVersion10,
	}
	for run, want := range pairs {
		got, ok := schema.ResponseVersionFor(run)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := schema.ResponseVersionFor(42)
	require.False(t, ok)

	require.Equal(t, schema.RunVersion8, schema.RunVersionCurrent)
}

func TestRunRequestRoundTrip(t *testing.T) {
	t.Parallel()
	req := schema.RunRequest{
		Flags:          schema.FlagVerbose | schema.FlagStatsOnly,
		GroupID:        7,
		DeviceList:     "0,1",
		TestNames:      []string{"memory", "pcie"},
		TestParameters: []string{"pcie.h2d_d2h_single_pinned.min_bandwidth=4000"},
		TimeoutSeconds: 300,
	}

	for _, version := range []uint32{
		schema.RunVersion5, schema.RunVersion6,
		schema.RunVersion7, schema.RunVersion8,
	} {
		data, err := schema.EncodeRunRequest(version, req)
		require.NoError(t, err)

		got, err := schema.DecodeRunRequest(version, data)
		require.NoError(t, err)
		require.Equal(t, version, got.Version, "encoder must stamp the version")

		want := req
		want.Version = version
		require.Equal(t, want, got)
	}
}

func TestEncodeRunRequestUnknownVersion(t *testing.T) {
	t.Parallel()
	_, err := schema.EncodeRunRequest(99, schema.RunRequest{})
	require.ErrorIs(t, err, schema.ErrUnknownVersion)

	_, err = schema.DecodeRunRequest(99, []byte(`{}`))
	require.ErrorIs(t, err, schema.ErrUnknownVersion)
}

func TestDecodeVersionMismatch(t *testing.T) {
	t.Parallel()
	data, err := schema.EncodeRunRequest(schema.RunVersion5, schema.RunRequest{})
	require.NoError(t, err)

	// Same request shape, wrong tag.
	_, err = schema.DecodeRunRequest(schema.RunVersion6, data)
	require.ErrorIs(t, err, schema.ErrSchemaMismatch)
	require.ErrorContains(t, err, "decoder built for version 6")
	require.ErrorContains(t, err, "tagged 5")
}

func TestStopRequestRoundTrip(t *testing.T) {
	t.Parallel()
	data, err := schema.EncodeStopRequest(schema.StopVersionCurrent)
	require.NoError(t, err)

	got, err := schema.DecodeStopRequest(schema.StopVersion1, data)
	require.NoError(t, err)
	require.Equal(t, schema.StopVersion1, got.Version)

	_, err = schema.EncodeStopRequest(2)
	require.ErrorIs(t, err, schema.ErrUnknownVersion)
}

func TestRunResponseRoundTripCurrent(t *testing.T) {
	t.Parallel()
	res := schema.NewRunResponse()
	res.DaemonVersion = "3.4.1"
	res.DriverVersion = "560.35"
	res.DeviceCount = 2
	res.DeviceIDs[0] = "GPU-aaaa"
	res.DeviceIDs[1] = "GPU-bbbb"
	res.DeviceSerials[0] = "0321"
	res.Devices[0].DeviceID = 0
	res.Devices[0].Results[schema.TestMemory].Status = schema.TestPass
	res.Devices[0].Results[schema.TestPulse].Status = schema.TestFail
	res.Devices[0].Results[schema.TestPulse].Errors[0] = schema.ErrorDetailV2{
		Code: 31, Category: 2, Severity: 1, Message: "power violation", DeviceID: 0,
	}
	res.Devices[0].Results[schema.TestEUD].Aux = json.RawMessage(`{"version":"1.2"}`)
	res.LevelOneCount = 1
	res.LevelOneResults[0].Status = schema.TestPass

	data, err := res.Marshal()
	require.NoError(t, err)

	got, err := schema.DecodeRunResponse(schema.RunVersion8, data)
	require.NoError(t, err)
	require.Equal(t, res, got)
}

func TestDecodeRunResponseUpgradesOldGenerations(t *testing.T) {
	t.Parallel()

	t.Run("generation 7", func(t *testing.T) {
		t.Parallel()
		var res schema.RunResponseV7
		res.DaemonVersion = "2.0.0"
		res.DeviceCount = 1
		res.DeviceIDs[0] = "GPU-cccc"
		res.Devices[0].DeviceID = 0
		res.Devices[0].Results[schema.TestPCIe] = schema.TestResultV3{
			Status: schema.TestFail,
			Error:  schema.ErrorDetailV1{Code: 50, Message: "replay rate too high", DeviceID: 0},
			Info:   "h2d 3.1 GB/s",
		}
		for i := 1; i < schema.MaxDevices; i++ {
			res.Devices[i].DeviceID = schema.DeviceIDNone
		}

		data, err := res.Marshal()
		require.NoError(t, err)

		got, err := schema.DecodeRunResponse(schema.RunVersion5, data)
		require.NoError(t, err)

		r := got.Devices[0].Results[schema.TestPCIe]
		require.Equal(t, schema.TestFail, r.Status)
		require.Equal(t, uint32(50), r.Errors[0].Code)
		require.Equal(t, "replay rate too high", r.Errors[0].Message)
		require.Equal(t, "h2d 3.1 GB/s", r.Info)
		require.Equal(t, schema.DeviceIDNone, got.Devices[1].DeviceID)
		// V10-only slots stay untouched.
		require.Equal(t, schema.TestNotRun, got.Devices[0].Results[schema.TestPulse].Status)
	})

	t.Run("generation 8 carries serials", func(t *testing.T) {
		t.Parallel()
		var res schema.RunResponseV8
		res.DeviceCount = 1
		res.DeviceSerials[0] = "0654"
		res.Devices[0].DeviceID = 0

		data, err := res.Marshal()
		require.NoError(t, err)

		got, err := schema.DecodeRunResponse(schema.RunVersion6, data)
		require.NoError(t, err)
		require.Equal(t, "0654", got.DeviceSerials[0])
	})

	t.Run("generation 9 keeps multi-error records", func(t *testing.T) {
		t.Parallel()
		var res schema.RunResponseV9
		res.Devices[0].DeviceID = 0
		res.Devices[0].Results[schema.TestMemory].Status = schema.TestFail
		res.Devices[0].Results[schema.TestMemory].Errors[1] = schema.ErrorDetailV2{
			Code: 19, Category: 1, Severity: 3, Message: "double bit ECC", DeviceID: 0,
		}

		data, err := res.Marshal()
		require.NoError(t, err)

		got, err := schema.DecodeRunResponse(schema.RunVersion7, data)
		require.NoError(t, err)
		require.Equal(t, uint32(19), got.Devices[0].Results[schema.TestMemory].Errors[1].Code)
		require.Equal(t, uint32(3), got.Devices[0].Results[schema.TestMemory].Errors[1].Severity)
	})
}

func TestDecodeRunResponseWrongGeneration(t *testing.T) {
	t.Parallel()
	var res schema.RunResponseV9
	data, err := res.Marshal()
	require.NoError(t, err)

	// A client speaking run version 8 expects generation 10 on the wire.
	_, err = schema.DecodeRunResponse(schema.RunVersion8, data)
	require.ErrorIs(t, err, schema.ErrSchemaMismatch)

	_, err = schema.DecodeRunResponse(3, data)
	require.ErrorIs(t, err, schema.ErrUnknownVersion)
}

func TestNewRunResponseMarksSlotsUnpopulated(t *testing.T) {
	t.Parallel()
	res := schema.NewRunResponse()
	for i := range res.Devices {
		require.Equal(t, schema.DeviceIDNone, res.Devices[i].DeviceID)
	}
}

func TestTestName(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Memory", schema.TestName(schema.TestMemory))
	require.Equal(t, "Context Create", schema.TestName(schema.TestContextCreate))
	require.Equal(t, "Workload Power", schema.TestName(schema.TestWorkloadPower))
	require.Empty(t, schema.TestName(-1))
	require.Empty(t, schema.TestName(schema.PerDeviceTestCountV10))
}
