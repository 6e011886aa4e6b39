package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytesJSON(t *testing.T) {
	c := qt.New(t)

	in := HexBytes{0xde, 0xad, 0xbe, 0xef}
	encoded, err := json.Marshal(in)
	c.Assert(err, qt.IsNil)
	c.Assert(string(encoded), qt.Equals, `"0xdeadbeef"`)

	var out HexBytes
	c.Assert(json.Unmarshal(encoded, &out), qt.IsNil)
	c.Assert(out.Equal(in), qt.IsTrue)

	c.Assert(json.Unmarshal([]byte(`"DEADBEEF"`), &out), qt.IsNil)
	c.Assert(out.Equal(in), qt.IsTrue)

	c.Assert(json.Unmarshal([]byte(`"0xzz"`), &out), qt.ErrorMatches, `invalid hex string .*`)
	c.Assert(json.Unmarshal([]byte(`12`), &out), qt.ErrorMatches, `invalid JSON string: .*`)
}
