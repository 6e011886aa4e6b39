package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte which encodes as 0x-prefixed hexadecimal in JSON, as
// opposed to the base64 default.
type HexBytes []byte

// Hex returns the hexadecimal representation without prefix.
func (b HexBytes) Hex() string {
	return hex.EncodeToString(b)
}

// String returns the hexadecimal representation prefixed with "0x".
func (b HexBytes) String() string {
	return "0x" + b.Hex()
}

// Equal reports whether both byte slices hold the same content.
func (b HexBytes) Equal(other HexBytes) bool {
	return string(b) == string(other)
}

// MarshalJSON encodes the byte slice as a 0x-prefixed hexadecimal string.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+4)
	enc[0] = '"'
	enc[1] = '0'
	enc[2] = 'x'
	hex.Encode(enc[3:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

// UnmarshalJSON decodes a JSON string holding hexadecimal, with or without
// the 0x prefix.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	decoded, err := HexStringToHexBytes(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes converts a hex string, optionally 0x-prefixed, to
// HexBytes.
func HexStringToHexBytes(hexString string) (HexBytes, error) {
	hexString = strings.TrimPrefix(strings.TrimPrefix(hexString, "0x"), "0X")
	b, err := hex.DecodeString(hexString)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", hexString, err)
	}
	return b, nil
}
