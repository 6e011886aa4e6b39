package types

import (
	"encoding/json"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/fxamacker/cbor/v2"
)

func TestBigMarshalUnmarshalJSON(t *testing.T) {
	c := qt.New(t)
	bi := NewBigInt(big.NewInt(1234567890))
	encoded, err := json.Marshal(map[string]*BigInt{"bi": bi})
	c.Assert(err, qt.IsNil)
	c.Assert(string(encoded), qt.Equals, `{"bi":"1234567890"}`)

	var decoded map[string]*BigInt
	c.Assert(json.Unmarshal(encoded, &decoded), qt.IsNil)
	c.Assert(decoded["bi"].Equal(bi), qt.IsTrue)
}

func TestBigMarshalUnmarshalCBOR(t *testing.T) {
	c := qt.New(t)
	bi := new(BigInt).SetBigInt(new(big.Int).Sub(FieldModulus, big.NewInt(1)))
	encoded, err := cbor.Marshal(map[string]*BigInt{"bi": bi})
	c.Assert(err, qt.IsNil)

	var decoded map[string]*BigInt
	c.Assert(cbor.Unmarshal(encoded, &decoded), qt.IsNil)
	c.Assert(decoded["bi"].Equal(bi), qt.IsTrue)
}

func TestBigUnmarshalText(t *testing.T) {
	c := qt.New(t)

	var dec, hex, num BigInt
	c.Assert(json.Unmarshal([]byte(`"255"`), &dec), qt.IsNil)
	c.Assert(json.Unmarshal([]byte(`"0xff"`), &hex), qt.IsNil)
	c.Assert(json.Unmarshal([]byte(`255`), &num), qt.IsNil)
	c.Assert(dec.Equal(&hex), qt.IsTrue)
	c.Assert(dec.Equal(&num), qt.IsTrue)

	var bad BigInt
	c.Assert(json.Unmarshal([]byte(`"abc"`), &bad), qt.ErrorMatches, `invalid number "abc"`)
}

func TestFieldRange(t *testing.T) {
	c := qt.New(t)

	c.Assert(NewInt(0).InField(), qt.IsTrue)
	c.Assert(NewBigInt(new(big.Int).Sub(FieldModulus, big.NewInt(1))).InField(), qt.IsTrue)
	c.Assert(NewBigInt(FieldModulus).InField(), qt.IsFalse)
	c.Assert(NewInt(-1).InField(), qt.IsFalse)

	var nilInt *BigInt
	c.Assert(nilInt.InField(), qt.IsFalse)
	c.Assert(nilInt.Equal(nil), qt.IsTrue)
	c.Assert(nilInt.Equal(NewInt(0)), qt.IsFalse)
}

func TestBytes32(t *testing.T) {
	c := qt.New(t)

	b := NewInt(0x0102).Bytes32()
	c.Assert(b[30], qt.Equals, byte(0x01))
	c.Assert(b[31], qt.Equals, byte(0x02))
	c.Assert(new(BigInt).SetBytes(b[:]).Equal(NewInt(0x0102)), qt.IsTrue)
}
