// Package job defines the queued unit of work: its identity, its
// reservation/attempt metadata, and the wire format used to carry a
// handler name and argument bag between a dispatcher and a worker.
package job

import (
	"encoding/json"
	"fmt"
)

// Payload is the canonical on-disk/on-wire shape of a queued job body.
// Args values must be JSON-representable scalars, arrays, or objects;
// callers are responsible for that restriction, the encoder does not
// validate it beyond what encoding/json itself rejects.
type Payload struct {
	Class string         `json:"class"`
	Args  map[string]any `json:"args"`
}

// EncodePayload produces the canonical serialized form of a handler name
// and argument bag. encoding/json marshals map keys in sorted order, which
// is what makes two payloads built from the same (handler, args) pair
// byte-identical regardless of how the caller constructed the map.
func EncodePayload(handler string, args map[string]any) ([]byte, error) {
	if args == nil {
		args = map[string]any{}
	}
	buf, err := json.Marshal(Payload{Class: handler, Args: args})
	if err != nil {
		return nil, fmt.Errorf("job: encode payload for %q: %w", handler, err)
	}
	return buf, nil
}

// DecodePayload reverses EncodePayload, returning the handler name and
// argument bag it was built from. Numeric args decode as float64, the
// same as any other map[string]any produced by encoding/json.
func DecodePayload(raw []byte) (handler string, args map[string]any, err error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", nil, fmt.Errorf("job: decode payload: %w", err)
	}
	if p.Args == nil {
		p.Args = map[string]any{}
	}
	return p.Class, p.Args, nil
}
