package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// recordVersion is bumped whenever a stored record layout changes
// incompatibly.
const recordVersion = 1

// envelope wraps every stored record with its layout version.
type envelope struct {
	Version uint8           `cbor:"0,keyasint"`
	Data    cbor.RawMessage `cbor:"1,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
	return em
}()

// EncodeArtifact encodes an artifact into a versioned deterministic CBOR
// envelope.
func EncodeArtifact(a any) ([]byte, error) {
	data, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return encMode.Marshal(envelope{Version: recordVersion, Data: data})
}

// DecodeArtifact decodes a versioned CBOR envelope into out.
func DecodeArtifact(data []byte, out any) error {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != recordVersion {
		return fmt.Errorf("unsupported record version %d", env.Version)
	}
	if err := cbor.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}
