package bridge

import "errors"

var (
	// ErrBridgePaused rejects new claims during an authority handover.
	ErrBridgePaused = errors.New("bridge: paused for authority set change")
	// ErrInvalidNotary rejects votes from keys outside the active set.
	ErrInvalidNotary = errors.New("bridge: not an active notary")
	// ErrDuplicateVote rejects a second vote by the same notary on one claim.
	ErrDuplicateVote = errors.New("bridge: notary already voted on claim")
	// ErrInvalidClaim rejects votes on unknown or finalized claims.
	ErrInvalidClaim = errors.New("bridge: no such claim")
)
