package service_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/accelkit/acceldiag/internal/schema"
	"github.com/accelkit/acceldiag/internal/service"
)

const diagConfig = `
diag:
  host: http://rack7-node3:5555
  version: 7
  iterations: 4
  timeout: "10m"
  cadence: "250ms"
  devices: "0,1,2,3"
  tests:
    - memory
    - pcie
  parameters:
    - pcie.h2d_d2h_single_pinned.min_bandwidth=4000
  verbose: true
  schedule:
    cron: "0 3 * * *"
`

func TestParseConfig(t *testing.T) {
	// can't be parallel as touches the viper package
	viper.SetConfigType("yaml")
	err := viper.ReadConfig(strings.NewReader(diagConfig))
	require.NoError(t, err)

	cfg, err := service.ParseConfig("diag")
	require.NoError(t, err)
	t.Logf("got: %+v", cfg)

	require.Equal(t, "http://rack7-node3:5555", cfg.Host)
	require.Equal(t, uint32(7), cfg.Version)
	require.Equal(t, uint32(4), cfg.Iterations)
	require.Equal(t, 10*time.Minute, cfg.Timeout)
	require.Equal(t, 250*time.Millisecond, cfg.Cadence)
	require.Equal(t, "0,1,2,3", cfg.Devices)
	require.Equal(t, []string{"memory", "pcie"}, cfg.Tests)
	require.True(t, cfg.Verbose)
	require.NotNil(t, cfg.Schedule)
	require.Equal(t, "0 3 * * *", cfg.Schedule.Cron)

	t.Run("request", func(t *testing.T) {
		req := cfg.RunRequest()
		require.Equal(t, "0,1,2,3", req.DeviceList)
		require.Equal(t, []string{"memory", "pcie"}, req.TestNames)
		require.Equal(t, uint32(600), req.TimeoutSeconds)
		require.NotZero(t, req.Flags&schema.FlagVerbose)
		require.Zero(t, req.Flags&schema.FlagStatsOnly)
	})
}

func TestParseConfigDefaults(t *testing.T) {
	viper.SetConfigType("yaml")
	err := viper.ReadConfig(strings.NewReader("diag:\n  host: http://localhost:5555\n"))
	require.NoError(t, err)

	cfg, err := service.ParseConfig("diag")
	require.NoError(t, err)
	require.Equal(t, schema.RunVersionCurrent, cfg.Version)
	require.Equal(t, uint32(1), cfg.Iterations)
	require.Nil(t, cfg.Schedule)
}

func TestParseConfigRejectsUnknownVersion(t *testing.T) {
	viper.SetConfigType("yaml")
	err := viper.ReadConfig(strings.NewReader("diag:\n  version: 99\n"))
	require.NoError(t, err)

	_, err = service.ParseConfig("diag")
	require.ErrorContains(t, err, "unsupported run message version 99")
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := service.Default()
	cfg.Devices = "0,1"
	cfg.Iterations = 3

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	require.Contains(t, buf.String(), "diag:")

	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(&buf))
	got, err := service.ParseConfig("diag")
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
