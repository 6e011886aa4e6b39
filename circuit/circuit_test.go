package circuit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
)

func fileOf(name string, content []byte) File {
	sum := sha256.Sum256(content)
	return File{Name: name, Hash: hex.EncodeToString(sum[:])}
}

// serve returns a server that answers every file in contents and 404
// otherwise, counting requests.
func serve(c *qt.C, contents map[string][]byte) (*HTTPSource, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		content, ok := contents[filepath.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	c.Cleanup(srv.Close)
	src, err := NewHTTPSource(srv.URL+"/v1/", nil)
	c.Assert(err, qt.IsNil)
	return src, &hits
}

func TestLoaderDownloadsAndCaches(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	contents := map[string][]byte{
		"vote.wasm":             []byte("wasm"),
		"vote.zkey":             []byte("zkey"),
		"verification_key.json": []byte(`{"protocol":"groth16"}`),
	}
	files := Files{
		Wasm:            fileOf("vote.wasm", contents["vote.wasm"]),
		ProvingKey:      fileOf("vote.zkey", contents["vote.zkey"]),
		VerificationKey: fileOf("verification_key.json", contents["verification_key.json"]),
	}
	remote, hits := serve(c, contents)
	dir := c.TempDir()

	artifacts, err := NewLoader(dir, remote).Load(ctx, files)
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts.Wasm, qt.DeepEquals, contents["vote.wasm"])
	c.Assert(artifacts.ProvingKey, qt.DeepEquals, contents["vote.zkey"])
	c.Assert(artifacts.VerificationKey, qt.DeepEquals, contents["verification_key.json"])
	c.Assert(hits.Load(), qt.Equals, int32(3))

	cached, err := os.ReadFile(filepath.Join(dir, "vote.zkey"))
	c.Assert(err, qt.IsNil)
	c.Assert(cached, qt.DeepEquals, contents["vote.zkey"])

	// second load is served from the cache
	_, err = NewLoader(dir, remote).Load(ctx, files)
	c.Assert(err, qt.IsNil)
	c.Assert(hits.Load(), qt.Equals, int32(3))
}

func TestLoaderFallback(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	good := []byte("good wasm")
	file := fileOf("vote.wasm", good)

	broken, _ := serve(c, map[string][]byte{})
	tampered, _ := serve(c, map[string][]byte{"vote.wasm": []byte("tampered")})
	healthy, _ := serve(c, map[string][]byte{"vote.wasm": good})

	dir := c.TempDir()
	// a corrupted cache entry is skipped and overwritten
	c.Assert(os.WriteFile(filepath.Join(dir, "vote.wasm"), []byte("stale"), 0o644), qt.IsNil)

	content, err := NewLoader(dir, broken, tampered, healthy).LoadFile(ctx, file)
	c.Assert(err, qt.IsNil)
	c.Assert(content, qt.DeepEquals, good)
	cached, err := os.ReadFile(filepath.Join(dir, "vote.wasm"))
	c.Assert(err, qt.IsNil)
	c.Assert(cached, qt.DeepEquals, good)

	_, err = NewLoader("", broken, tampered).LoadFile(ctx, file)
	c.Assert(err, qt.ErrorMatches, `(?s).*http status: 404.*\n.*hash mismatch.*`)
}

func TestLoaderHashes(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	dir := c.TempDir()
	src := NewDirSource(dir)
	c.Assert(src.Store(File{Name: "vote.wasm"}, []byte("dev")), qt.IsNil)

	_, err := NewLoader("", src).LoadFile(ctx, File{Name: "vote.wasm"})
	c.Assert(err, qt.ErrorMatches, "hash of vote.wasm not provided")

	content, err := NewLoader("", src).SkipHashCheck().LoadFile(ctx, File{Name: "vote.wasm"})
	c.Assert(err, qt.IsNil)
	c.Assert(string(content), qt.Equals, "dev")

	_, err = NewLoader("").LoadFile(ctx, File{Name: "vote.wasm", Hash: "00"})
	c.Assert(err, qt.ErrorMatches, "no artifact sources configured")

	_, err = NewLoader("", src).LoadFile(ctx, File{Name: "vote.wasm", Hash: "zz"})
	c.Assert(err, qt.ErrorMatches, `.*invalid expected hash "zz".*`)
}
