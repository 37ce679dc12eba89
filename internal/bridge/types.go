// Package bridge implements Ethereum event notarization: validators
// claim that an event happened on Ethereum, vote on its validity after
// independently checking the transaction receipt, and a threshold tally
// finalizes the claim as approved or rejected.
package bridge

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/emberchain/ember/internal/primitives"
)

// AuthorityID is a compressed ECDSA public key identifying a notary.
type AuthorityID [33]byte

// EventClaimID identifies a pending event claim.
type EventClaimID uint64

// EventProofID identifies an authority set handover proof.
type EventProofID uint64

// EventClaim is an unverified assertion that an Ethereum transaction
// emitted the given event log.
type EventClaim struct {
	TxHash         common.Hash
	Contract       common.Address
	EventSignature common.Hash
	Data           []byte
	Submitter      primitives.AccountID
}

// NotarizationResult is a notary's verdict on one claim. Anything other
// than NotarizationValid counts as a negative vote, the variants record
// why verification failed.
type NotarizationResult uint8

const (
	NotarizationValid NotarizationResult = iota
	// NotarizationNoTxReceipt means the transaction is unknown to the
	// queried Ethereum node.
	NotarizationNoTxReceipt
	// NotarizationTxStatusFailed means the transaction reverted.
	NotarizationTxStatusFailed
	// NotarizationUnexpectedContract means no log in the receipt came
	// from the claimed contract.
	NotarizationUnexpectedContract
	// NotarizationUnexpectedData means a log matched contract and
	// signature but carried different data.
	NotarizationUnexpectedData
	// NotarizationDataProviderErr means the Ethereum endpoint could not
	// be queried. Workers do not submit this, they retry instead.
	NotarizationDataProviderErr
)

func (r NotarizationResult) String() string {
	switch r {
	case NotarizationValid:
		return "valid"
	case NotarizationNoTxReceipt:
		return "no-tx-receipt"
	case NotarizationTxStatusFailed:
		return "tx-status-failed"
	case NotarizationUnexpectedContract:
		return "unexpected-contract"
	case NotarizationUnexpectedData:
		return "unexpected-data"
	case NotarizationDataProviderErr:
		return "data-provider-error"
	default:
		return "unknown"
	}
}

// ClaimOutcome is the terminal state of a finalized claim.
type ClaimOutcome uint8

const (
	ClaimApproved ClaimOutcome = iota
	ClaimRejected
	ClaimExpired
)

type EventClaimSubmitted struct {
	ClaimID EventClaimID
	TxHash  common.Hash
}

type EventClaimFinalized struct {
	ClaimID EventClaimID
	Outcome ClaimOutcome
}

type EventAuthoritySetChangeScheduled struct {
	ProofID EventProofID
}

type EventAuthoritySetChanged struct {
	SetID uint64
}
