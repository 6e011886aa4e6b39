package types

import "errors"

// Errors returned by the voting protocol components. Callers match them with
// errors.Is; every component wraps them with the context of the failure.
var (
	// ErrRandomnessUnavailable is returned when the entropy source fails.
	ErrRandomnessUnavailable = errors.New("randomness unavailable")
	// ErrMissingSecretInputs is returned when nullifier, secret or leaf index
	// cannot be resolved from the explicit inputs, the session or the store.
	ErrMissingSecretInputs = errors.New("missing secret inputs")
	// ErrEmptyAccumulator is returned when the ledger holds no leaves.
	ErrEmptyAccumulator = errors.New("empty accumulator")
	// ErrIndexOutOfRange is returned when the leaf index is not lower than the
	// number of leaves.
	ErrIndexOutOfRange = errors.New("leaf index out of range")
	// ErrDepthExceeded is returned when the inclusion path does not fit in the
	// requested depth.
	ErrDepthExceeded = errors.New("inclusion path exceeds depth")
	// ErrNoVoteSelected is returned when no choice was made before proving.
	ErrNoVoteSelected = errors.New("no vote selected")
	// ErrFieldOverflow is returned when a witness value is not a canonical
	// element of the scalar field.
	ErrFieldOverflow = errors.New("value out of field range")
	// ErrStaleRoot is returned when the ledger root does not match the root
	// rebuilt from the leaf events.
	ErrStaleRoot = errors.New("ledger root does not match leaf events")
	// ErrProofGenerationFailed wraps every circuit execution or proving error.
	ErrProofGenerationFailed = errors.New("proof generation failed")
	// ErrProofExists is returned when a proof for the opposite choice is
	// already stored and overwriting was not requested.
	ErrProofExists = errors.New("proof for another choice already exists")
	// ErrSubmissionFailed wraps funding, signing, broadcast and reverted
	// transaction errors of the relay.
	ErrSubmissionFailed = errors.New("vote submission failed")
	// ErrConfirmationPending is returned when the vote transaction was sent
	// but no receipt was observed before the confirmation timeout.
	ErrConfirmationPending = errors.New("vote confirmation pending")
	// ErrAlreadyVoted is returned when the relay already cast a vote.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrAlreadyRegistered is returned when the voter commitment is already
	// inserted in the accumulator.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrNotEligible is returned when the ledger does not list the address as
	// a voter.
	ErrNotEligible = errors.New("address is not an eligible voter")
	// ErrStorageCorrupted reports a stored record that cannot be decoded or
	// fails validation. Readers log it and behave as if nothing was stored.
	ErrStorageCorrupted = errors.New("stored record corrupted")
)
