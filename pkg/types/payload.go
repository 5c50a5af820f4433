package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when an envelope body is valid JSON but not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Payload is the decoded body of an Envelope. Numbers are kept as json.Number so
// their exact source text survives until a consumer decides how to represent them.
type Payload map[string]any

// DecodePayload parses an envelope body into a Payload.
func DecodePayload(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode payload: trailing data after JSON value")
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Payload(obj), nil
}

// Has reports whether key is present, regardless of its value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the value at key when it is a JSON string.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Int64 returns the value at key when it is an integral JSON number.
func (p Payload) Int64(key string) (int64, bool) {
	n, ok := p[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// Float64 returns the value at key when it is a JSON number.
func (p Payload) Float64(key string) (float64, bool) {
	n, ok := p[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}
