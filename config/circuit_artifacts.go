// Package config provides the defaults of the voting client: circuit
// artifact locations and hashes, funding amounts and the known networks.
package config

import (
	"fmt"

	"github.com/vocdoni/zkvote/circuit"
)

const (
	// DefaultArtifactsBaseURL is the base URL for circuit artifacts storage
	DefaultArtifactsBaseURL = "https://circuits.ams3.cdn.digitaloceanspaces.com"
	// DefaultArtifactsRelease is the release version for circuit artifacts
	DefaultArtifactsRelease = "zkvote-dev"
	// DefaultPathLength is the sibling capacity of the vote circuit
	DefaultPathLength = 16
)

// The artifact hashes are the hex encoded sha256 of each file. They are set
// at build time with -ldflags for release builds.
var (
	// VoteCircuitWasmHash is the hash of the vote circuit witness calculator
	VoteCircuitWasmHash = ""
	// VoteProvingKeyHash is the hash of the vote circuit proving key
	VoteProvingKeyHash = ""
	// VoteVerificationKeyHash is the hash of the vote circuit verification key
	VoteVerificationKeyHash = ""
)

// ArtifactsURL is the location of the configured artifacts release.
var ArtifactsURL = fmt.Sprintf("%s/%s", DefaultArtifactsBaseURL, DefaultArtifactsRelease)

// VoteCircuitFiles returns the artifact descriptors of the vote circuit.
func VoteCircuitFiles() circuit.Files {
	return circuit.Files{
		Wasm:            circuit.File{Name: "vote.wasm", Hash: VoteCircuitWasmHash},
		ProvingKey:      circuit.File{Name: "vote_final.zkey", Hash: VoteProvingKeyHash},
		VerificationKey: circuit.File{Name: "verification_key.json", Hash: VoteVerificationKeyHash},
	}
}
