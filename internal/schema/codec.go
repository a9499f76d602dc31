package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch reports that the version tag on wire data does not
	// match the decoder it was handed to. Fatal, never retried.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnknownVersion reports a version tag no generation is defined for.
	ErrUnknownVersion = errors.New("unknown message version")
)

// envelope is the wire framing: an explicit version tag plus the
// generation's payload.
type envelope struct {
	Version uint32          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

func encodeEnvelope(version uint32, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding version %d payload: %w", version, err)
	}
	return json.Marshal(envelope{Version: version, Payload: raw})
}

func decodeEnvelope(want uint32, data []byte, payload any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Version != want {
		return fmt.Errorf("%w: decoder built for version %d, wire data tagged %d",
			ErrSchemaMismatch, want, env.Version)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return fmt.Errorf("decoding version %d payload: %w", want, err)
	}
	return nil
}

// EncodeRunRequest stamps req with the run message version it is built for
// and frames it for the wire. The version must be a defined run version.
func EncodeRunRequest(version uint32, req RunRequest) ([]byte, error) {
	if _, ok := responseVersionByRun[version]; !ok {
		return nil, fmt.Errorf("%w: run version %d", ErrUnknownVersion, version)
	}
	req.Version = version
	return encodeEnvelope(version, req)
}

// DecodeRunRequest decodes a run request framed for the given version.
func DecodeRunRequest(version uint32, data []byte) (RunRequest, error) {
	var req RunRequest
	if _, ok := responseVersionByRun[version]; !ok {
		return req, fmt.Errorf("%w: run version %d", ErrUnknownVersion, version)
	}
	err := decodeEnvelope(version, data, &req)
	return req, err
}

// EncodeStopRequest frames a stop request for the wire.
func EncodeStopRequest(version uint32) ([]byte, error) {
	if version != StopVersion1 {
		return nil, fmt.Errorf("%w: stop version %d", ErrUnknownVersion, version)
	}
	return encodeEnvelope(version, StopRequest{Version: version})
}

// DecodeStopRequest decodes a stop request framed for the given version.
func DecodeStopRequest(version uint32, data []byte) (StopRequest, error) {
	var req StopRequest
	if version != StopVersion1 {
		return req, fmt.Errorf("%w: stop version %d", ErrUnknownVersion, version)
	}
	err := decodeEnvelope(version, data, &req)
	return req, err
}

// Marshal frames a generation 7 response for the wire.
func (r *RunResponseV7) Marshal() ([]byte, error) {
	return encodeEnvelope(ResponseVersion7, r)
}

// Marshal frames a generation 8 response for the wire.
func (r *RunResponseV8) Marshal() ([]byte, error) {
	return encodeEnvelope(ResponseVersion8, r)
}

// Marshal frames a generation 9 response for the wire.
func (r *RunResponseV9) Marshal() ([]byte, error) {
	return encodeEnvelope(ResponseVersion9, r)
}

// Marshal frames a generation 10 response for the wire.
func (r *RunResponseV10) Marshal() ([]byte, error) {
	return encodeEnvelope(ResponseVersion10, r)
}

// DecodeRunResponseV7 decodes wire data tagged with response generation 7.
func DecodeRunResponseV7(data []byte) (*RunResponseV7, error) {
	var r RunResponseV7
	if err := decodeEnvelope(ResponseVersion7, data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeRunResponseV8 decodes wire data tagged with response generation 8.
func DecodeRunResponseV8(data []byte) (*RunResponseV8, error) {
	var r RunResponseV8
	if err := decodeEnvelope(ResponseVersion8, data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeRunResponseV9 decodes wire data tagged with response generation 9.
func DecodeRunResponseV9(data []byte) (*RunResponseV9, error) {
	var r RunResponseV9
	if err := decodeEnvelope(ResponseVersion9, data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeRunResponseV10 decodes wire data tagged with response generation 10.
func DecodeRunResponseV10(data []byte) (*RunResponseV10, error) {
	var r RunResponseV10
	if err := decodeEnvelope(ResponseVersion10, data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// responseDecoders maps a response generation to a decoder producing the
// current in-memory shape. The lookup replaces any notion of reinterpreting
// one generation's bytes as another's.
var responseDecoders = map[uint32]func([]byte) (*RunResponse, error){
	ResponseVersion7: func(data []byte) (*RunResponse, error) {
		r, err := DecodeRunResponseV7(data)
		if err != nil {
			return nil, err
		}
		return r.Current(), nil
	},
	ResponseVersion8: func(data []byte) (*RunResponse, error) {
		r, err := DecodeRunResponseV8(data)
		if err != nil {
			return nil, err
		}
		return r.Current(), nil
	},
	ResponseVersion9: func(data []byte) (*RunResponse, error) {
		r, err := DecodeRunResponseV9(data)
		if err != nil {
			return nil, err
		}
		return r.Current(), nil
	},
	ResponseVersion10: DecodeRunResponseV10,
}

// DecodeRunResponse decodes the response to a run request built for
// runVersion, converting older generations to the current shape. Wire data
// tagged with any other generation fails with ErrSchemaMismatch.
func DecodeRunResponse(runVersion uint32, data []byte) (*RunResponse, error) {
	gen, ok := responseVersionByRun[runVersion]
	if !ok {
		return nil, fmt.Errorf("%w: run version %d", ErrUnknownVersion, runVersion)
	}
	return responseDecoders[gen](data)
}
