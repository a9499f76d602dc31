// Package daemon speaks the management daemon's diagnostic RPC surface:
// run a diagnostic, stop a diagnostic. Transport is plain HTTP carrying
// the versioned schema envelopes.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/accelkit/acceldiag/internal/schema"
)

const (
	runPath  = "api/v1/diag/run"
	stopPath = "api/v1/diag/stop"

	contentType = "application/vnd.acceldiag+json"
)

// Client is the daemon RPC surface the executor consumes.
type Client interface {
	// RunDiagnostic blocks until the daemon finishes or aborts the run.
	// The response may be nil when the reported status carries none.
	RunDiagnostic(ctx context.Context, req schema.RunRequest) (schema.Status, *schema.RunResponse, error)

	// StopDiagnostic asks the daemon to abort the in-flight run.
	StopDiagnostic(ctx context.Context) (schema.Status, error)
}

// HTTPClient talks to one daemon over HTTP, speaking one run message
// version chosen at construction time. There is no negotiation: the
// caller picks a version it knows the daemon supports.
type HTTPClient struct {
	baseURL    *url.URL
	client     *http.Client
	runVersion uint32
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates the daemon URL and binds the client to the
// given run message version.
func NewHTTPClient(serverURL string, runVersion uint32) (*HTTPClient, error) {
	if _, ok := schema.ResponseVersionFor(runVersion); !ok {
		return nil, fmt.Errorf("%w: run version %d", schema.ErrUnknownVersion, runVersion)
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")
	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("daemon url needs a scheme and no path, e.g. `http://some-host:5555`")
	}

	return &HTTPClient{
		baseURL:    parsedURL,
		client:     &http.Client{},
		runVersion: runVersion,
	}, nil
}

// RunVersion returns the run message version this client was built for.
func (c *HTTPClient) RunVersion() uint32 {
	return c.runVersion
}

// runReply is the daemon's reply framing: its status code plus the
// response envelope, when one exists.
type runReply struct {
	Status   schema.Status   `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

func (c *HTTPClient) RunDiagnostic(ctx context.Context, req schema.RunRequest) (schema.Status, *schema.RunResponse, error) {
	body, err := schema.EncodeRunRequest(c.runVersion, req)
	if err != nil {
		return schema.StatusGenericError, nil, err
	}

	raw, err := c.post(ctx, runPath, body)
	if err != nil {
		return schema.StatusGenericError, nil, err
	}

	var reply runReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return schema.StatusGenericError, nil, fmt.Errorf("decoding run reply: %w", err)
	}
	if len(reply.Response) == 0 {
		return reply.Status, nil, nil
	}

	resp, err := schema.DecodeRunResponse(c.runVersion, reply.Response)
	if err != nil {
		return reply.Status, nil, err
	}
	return reply.Status, resp, nil
}

func (c *HTTPClient) StopDiagnostic(ctx context.Context) (schema.Status, error) {
	body, err := schema.EncodeStopRequest(schema.StopVersionCurrent)
	if err != nil {
		return schema.StatusGenericError, err
	}

	raw, err := c.post(ctx, stopPath, body)
	if err != nil {
		return schema.StatusGenericError, err
	}

	var reply struct {
		Status schema.Status `json:"status"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return schema.StatusGenericError, fmt.Errorf("decoding stop reply: %w", err)
	}
	return reply.Status, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	u := *c.baseURL
	u.Path = path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("daemon replied %d: %s", resp.StatusCode, string(raw))
	}

	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("parsing reply content type: %w", err)
	}
	if ct != contentType && ct != "application/json" {
		return nil, fmt.Errorf("expected %q reply content type, got: %s", contentType, ct)
	}

	return io.ReadAll(resp.Body)
}
