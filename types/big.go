package types

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

// FieldModulus is the order of the BN254 scalar field, the field every
// commitment, nullifier, root and sibling lives in.
var FieldModulus = fr.Modulus()

// BigInt is a big.Int wrapper which marshals JSON and CBOR to the decimal
// string representation of the number. A nil pointer marshals as "0".
type BigInt big.Int

// NewInt creates a new BigInt from the given integer value.
func NewInt(x int) *BigInt {
	return new(BigInt).SetInt(x)
}

// NewBigInt wraps a copy of x. It returns nil when x is nil.
func NewBigInt(x *big.Int) *BigInt {
	if x == nil {
		return nil
	}
	return new(BigInt).SetBigInt(x)
}

// MarshalText returns the decimal string representation of the big number.
func (i *BigInt) MarshalText() ([]byte, error) {
	if i == nil {
		return []byte("0"), nil
	}
	return (*big.Int)(i).MarshalText()
}

// UnmarshalText parses the text representation into the big number. Both
// decimal and 0x-prefixed hexadecimal strings are accepted.
func (i *BigInt) UnmarshalText(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	if _, ok := (*big.Int)(i).SetString(string(data), 0); !ok {
		return fmt.Errorf("invalid number %q", data)
	}
	return nil
}

// UnmarshalJSON supports both string and numeric JSON representations.
func (i *BigInt) UnmarshalJSON(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	if len(data) > 1 && data[0] == '"' {
		return i.UnmarshalText(data[1 : len(data)-1])
	}
	return i.UnmarshalText(data)
}

// MarshalCBOR encodes BigInt as a CBOR text string.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	txt, err := i.MarshalText()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(string(txt))
}

// UnmarshalCBOR decodes a CBOR text string into BigInt.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return i.UnmarshalText([]byte(s))
}

// String returns the decimal representation of the number.
func (i *BigInt) String() string {
	if i == nil {
		return "<nil>"
	}
	return (*big.Int)(i).String()
}

// SetBytes interprets buf as big-endian unsigned integer.
func (i *BigInt) SetBytes(buf []byte) *BigInt {
	return (*BigInt)(i.MathBigInt().SetBytes(buf))
}

// Bytes returns the minimal big-endian representation of the number.
func (i *BigInt) Bytes() []byte {
	return (*big.Int)(i).Bytes()
}

// Bytes32 returns the number left padded to 32 bytes, the layout used for
// bytes32 contract arguments.
func (i *BigInt) Bytes32() common.Hash {
	return common.BigToHash(i.MathBigInt())
}

// MathBigInt converts i to a math/big *Int sharing the same memory.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

// SetUint64 sets the value of x to the big number.
func (i *BigInt) SetUint64(x uint64) *BigInt {
	return (*BigInt)(i.MathBigInt().SetUint64(x))
}

// SetInt sets the value of x to the big number.
func (i *BigInt) SetInt(x int) *BigInt {
	return (*BigInt)(i.MathBigInt().SetInt64(int64(x)))
}

// SetBigInt sets the value of x to the big number.
func (i *BigInt) SetBigInt(x *big.Int) *BigInt {
	return (*BigInt)(i.MathBigInt().Set(x))
}

// Equal reports whether both numbers hold the same value. Two nil values are
// equal.
func (i *BigInt) Equal(j *BigInt) bool {
	if i == nil || j == nil {
		return (i == nil) == (j == nil)
	}
	return i.MathBigInt().Cmp(j.MathBigInt()) == 0
}

// InField reports whether the number is a canonical element of the BN254
// scalar field, i.e. 0 <= i < FieldModulus.
func (i *BigInt) InField() bool {
	return i != nil && IsFieldElement(i.MathBigInt())
}

// IsFieldElement reports whether x is a canonical element of the BN254 scalar
// field.
func IsFieldElement(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(FieldModulus) < 0
}

// BigInts unwraps a slice of BigInt into math/big values sharing memory.
func BigInts(in []*BigInt) []*big.Int {
	out := make([]*big.Int, len(in))
	for idx, v := range in {
		out[idx] = v.MathBigInt()
	}
	return out
}
