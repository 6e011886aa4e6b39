// Package circuit retrieves the artifacts of the voting circuit: the witness
// calculator wasm, the Groth16 proving key and the verification key. Every
// artifact is checked against its expected sha256 before use.
package circuit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vocdoni/zkvote/log"
)

// File describes one artifact: its file name, as served remotely and stored
// in the cache, and the hex encoded sha256 of its content.
type File struct {
	Name string
	Hash string
}

// Files groups the three artifacts of the voting circuit.
type Files struct {
	Wasm            File
	ProvingKey      File
	VerificationKey File
}

// Artifacts holds the loaded artifact contents.
type Artifacts struct {
	Wasm            []byte
	ProvingKey      []byte
	VerificationKey []byte
}

// Source provides artifact contents by file name.
type Source interface {
	Name() string
	Fetch(ctx context.Context, file File) ([]byte, error)
}

// Loader tries its sources in order and keeps the first content that matches
// the expected hash. Contents fetched from a source other than the cache are
// written to the cache directory.
type Loader struct {
	sources     []Source
	cache       *DirSource
	checkHashes bool
}

// NewLoader returns a loader that first looks in cacheDir and then in each of
// the given sources. An empty cacheDir disables caching.
func NewLoader(cacheDir string, sources ...Source) *Loader {
	l := &Loader{checkHashes: true}
	if cacheDir != "" {
		l.cache = NewDirSource(cacheDir)
		l.sources = append(l.sources, l.cache)
	}
	l.sources = append(l.sources, sources...)
	return l
}

// SkipHashCheck disables the hash verification, for development artifacts
// only.
func (l *Loader) SkipHashCheck() *Loader {
	l.checkHashes = false
	return l
}

// Load retrieves the three artifacts of files.
func (l *Loader) Load(ctx context.Context, files Files) (*Artifacts, error) {
	start := time.Now()
	wasm, err := l.LoadFile(ctx, files.Wasm)
	if err != nil {
		return nil, fmt.Errorf("error loading circuit wasm: %w", err)
	}
	pk, err := l.LoadFile(ctx, files.ProvingKey)
	if err != nil {
		return nil, fmt.Errorf("error loading proving key: %w", err)
	}
	vk, err := l.LoadFile(ctx, files.VerificationKey)
	if err != nil {
		return nil, fmt.Errorf("error loading verification key: %w", err)
	}
	log.Debugw("circuit artifacts loaded", "took", log.Since(start),
		"wasm", len(wasm), "provingKey", len(pk), "verificationKey", len(vk))
	return &Artifacts{Wasm: wasm, ProvingKey: pk, VerificationKey: vk}, nil
}

// LoadFile retrieves a single artifact. When every source fails the returned
// error joins the failure of each one.
func (l *Loader) LoadFile(ctx context.Context, file File) ([]byte, error) {
	if file.Name == "" {
		return nil, fmt.Errorf("artifact name not provided")
	}
	if l.checkHashes && file.Hash == "" {
		return nil, fmt.Errorf("hash of %s not provided", file.Name)
	}
	if len(l.sources) == 0 {
		return nil, fmt.Errorf("no artifact sources configured")
	}
	var errs []error
	for _, src := range l.sources {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(append(errs, err)...)
		}
		content, err := src.Fetch(ctx, file)
		if err == nil && l.checkHashes {
			err = checkHash(content, file.Hash)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if l.cache != nil && src != Source(l.cache) {
			if err := l.cache.Store(file, content); err != nil {
				log.Warnw("could not cache artifact", "file", file.Name, "error", err)
			}
		}
		log.Debugw("artifact retrieved", "file", file.Name, "source", src.Name(), "size", len(content))
		return content, nil
	}
	return nil, errors.Join(errs...)
}

func checkHash(content []byte, expected string) error {
	want, err := hex.DecodeString(strings.TrimPrefix(expected, "0x"))
	if err != nil {
		return fmt.Errorf("invalid expected hash %q: %w", expected, err)
	}
	got := sha256.Sum256(content)
	if !bytes.Equal(got[:], want) {
		return fmt.Errorf("hash mismatch: expected %x, got %x", want, got)
	}
	return nil
}

// DirSource reads artifacts from a local directory.
type DirSource struct {
	dir string
}

// NewDirSource returns a source reading from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Name() string { return "dir:" + s.dir }

// Fetch reads dir/name.
func (s *DirSource) Fetch(_ context.Context, file File) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, file.Name))
}

// Store writes content to dir/name through a temporary file, so a partial
// write is never read back as an artifact.
func (s *DirSource) Store(file File, content []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("error creating the cache directory: %w", err)
	}
	path := filepath.Join(s.dir, file.Name)
	partial := path + ".partial"
	if err := os.WriteFile(partial, content, 0o644); err != nil {
		return err
	}
	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}
