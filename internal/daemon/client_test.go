package daemon_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accelkit/acceldiag/internal/daemon"
	"github.com/accelkit/acceldiag/internal/schema"
)

const contentType = "application/vnd.acceldiag+json"

func TestNewHTTPClientValidatesURL(t *testing.T) {
	t.Parallel()
	for _, u := range []string{
		"http://localhost:5555",
		"https://daemon.example.com",
		"http://daemon:5555/",
	} {
		_, err := daemon.NewHTTPClient(u, schema.RunVersionCurrent)
		require.NoError(t, err, "url %q", u)
	}

	for _, u := range []string{
		"localhost:5555",
		"http://",
		"http://daemon:5555/some/path",
		"://nope",
	} {
		_, err := daemon.NewHTTPClient(u, schema.RunVersionCurrent)
		require.Error(t, err, "url %q", u)
	}
}

func TestNewHTTPClientRejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	_, err := daemon.NewHTTPClient("http://localhost:5555", 42)
	require.ErrorIs(t, err, schema.ErrUnknownVersion)
}

func TestRunDiagnostic(t *testing.T) {
	t.Parallel()

	res := schema.NewRunResponse()
	res.DaemonVersion = "3.4.1"
	res.DeviceCount = 1
	res.Devices[0].DeviceID = 0
	res.Devices[0].Results[schema.TestMemory].Status = schema.TestPass
	wire, err := res.Marshal()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/diag/run", r.URL.Path)
		require.Equal(t, contentType, r.Header.Get("Content-Type"))

		body, merr := json.Marshal(map[string]any{
			"status":   schema.StatusOK,
			"response": json.RawMessage(wire),
		})
		require.NoError(t, merr)

		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	client, err := daemon.NewHTTPClient(srv.URL, schema.RunVersion8)
	require.NoError(t, err)

	status, got, err := client.RunDiagnostic(testContext(t), schema.RunRequest{GroupID: 1})
	require.NoError(t, err)
	require.Equal(t, schema.StatusOK, status)
	require.Equal(t, res, got)
}

func TestRunDiagnosticStampsRequestVersion(t *testing.T) {
	t.Parallel()

	var seen schema.RunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		seen, err = schema.DecodeRunRequest(schema.RunVersion6, body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0}`))
	}))
	t.Cleanup(srv.Close)

	client, err := daemon.NewHTTPClient(srv.URL, schema.RunVersion6)
	require.NoError(t, err)

	status, got, err := client.RunDiagnostic(testContext(t), schema.RunRequest{DeviceList: "0,1"})
	require.NoError(t, err)
	require.Equal(t, schema.StatusOK, status)
	require.Nil(t, got, "a reply without a response body stays nil")
	require.Equal(t, schema.RunVersion6, seen.Version)
	require.Equal(t, "0,1", seen.DeviceList)
}

func TestRunDiagnosticWrongGeneration(t *testing.T) {
	t.Parallel()

	// Daemon replies with generation 9 to a client expecting generation 10.
	var stale schema.RunResponseV9
	wire, err := stale.Marshal()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"status":   schema.StatusOK,
			"response": json.RawMessage(wire),
		})
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	client, err := daemon.NewHTTPClient(srv.URL, schema.RunVersion8)
	require.NoError(t, err)

	_, _, err = client.RunDiagnostic(testContext(t), schema.RunRequest{})
	require.ErrorIs(t, err, schema.ErrSchemaMismatch)
}

func TestRunDiagnosticHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "daemon busy", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client, err := daemon.NewHTTPClient(srv.URL, schema.RunVersionCurrent)
	require.NoError(t, err)

	_, _, err = client.RunDiagnostic(testContext(t), schema.RunRequest{})
	require.ErrorContains(t, err, "daemon replied 503")
	require.ErrorContains(t, err, "daemon busy")
}

func TestRunDiagnosticRejectsForeignContentType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login page</html>"))
	}))
	t.Cleanup(srv.Close)

	client, err := daemon.NewHTTPClient(srv.URL, schema.RunVersionCurrent)
	require.NoError(t, err)

	_, _, err = client.RunDiagnostic(testContext(t), schema.RunRequest{})
	require.ErrorContains(t, err, "content type")
}

func TestStopDiagnostic(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/diag/stop", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		req, err := schema.DecodeStopRequest(schema.StopVersion1, body)
		require.NoError(t, err)
		require.Equal(t, schema.StopVersion1, req.Version)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0}`))
	}))
	t.Cleanup(srv.Close)

	client, err := daemon.NewHTTPClient(srv.URL, schema.RunVersionCurrent)
	require.NoError(t, err)

	status, err := client.StopDiagnostic(testContext(t))
	require.NoError(t, err)
	require.Equal(t, schema.StatusOK, status)
}

func TestRunDiagnosticConnectionRefused(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client, err := daemon.NewHTTPClient(srv.URL, schema.RunVersionCurrent)
	require.NoError(t, err)

	_, _, err = client.RunDiagnostic(testContext(t), schema.RunRequest{})
	require.Error(t, err)
}
