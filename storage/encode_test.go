package storage

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/fxamacker/cbor/v2"
)

type testRecord struct {
	Name  string            `cbor:"0,keyasint"`
	Count int               `cbor:"1,keyasint"`
	Tags  map[string]string `cbor:"2,keyasint"`
}

func TestEnvelope(t *testing.T) {
	c := qt.New(t)
	rec := testRecord{Name: "test", Count: 42, Tags: map[string]string{"b": "2", "a": "1"}}

	c.Run("deterministic", func(c *qt.C) {
		first, err := EncodeArtifact(rec)
		c.Assert(err, qt.IsNil)
		second, err := EncodeArtifact(rec)
		c.Assert(err, qt.IsNil)
		c.Assert(first, qt.DeepEquals, second)

		var decoded testRecord
		c.Assert(DecodeArtifact(first, &decoded), qt.IsNil)
		c.Assert(decoded, qt.DeepEquals, rec)
	})

	c.Run("unknown version", func(c *qt.C) {
		data, err := cbor.Marshal(rec)
		c.Assert(err, qt.IsNil)
		raw, err := cbor.Marshal(envelope{Version: recordVersion + 1, Data: data})
		c.Assert(err, qt.IsNil)
		var decoded testRecord
		c.Assert(DecodeArtifact(raw, &decoded), qt.ErrorMatches, `unsupported record version 2`)
	})

	c.Run("garbage", func(c *qt.C) {
		var decoded testRecord
		c.Assert(DecodeArtifact([]byte{0xff, 0x00}, &decoded), qt.ErrorMatches, `decode envelope: .*`)
	})
}
