package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/emberchain/ember/internal/chain"
	"github.com/emberchain/ember/internal/primitives"
	"github.com/emberchain/ember/pkg/db"
)

// Subscriber is notified when a claim it cares about finalizes.
type Subscriber interface {
	OnSuccess(claimID EventClaimID, contract common.Address, eventSignature common.Hash, data []byte)
	OnFailure(claimID EventClaimID, contract common.Address, eventSignature common.Hash, data []byte)
}

// RewardHandler credits the notaries whose votes approved a claim.
type RewardHandler interface {
	RewardNotaries(notaries []AuthorityID, claimID EventClaimID)
}

// FinalSessionTracker reports whether the active session is the last
// one of the current era. The bridge pauses across that boundary.
type FinalSessionTracker interface {
	IsActiveSessionFinal() bool
}

// Config holds the bridge runtime constants.
type Config struct {
	// NotarizationThreshold is the percentage of the notary set whose
	// positive votes approve a claim.
	NotarizationThreshold primitives.Percent
	// ClaimPruneDelay is how many blocks an unresolved claim lives
	// before it is pruned as expired.
	ClaimPruneDelay primitives.BlockNumber
}

func DefaultConfig() Config {
	return Config{
		NotarizationThreshold: 66,
		ClaimPruneDelay:       200,
	}
}

// Module is the on-chain half of the bridge: claim intake, vote tally
// and authority set rotation.
type Module struct {
	store        *Store
	sys          *chain.System
	cfg          Config
	finalSession FinalSessionTracker
	subscribers  []Subscriber
	rewards      RewardHandler
	log          zerolog.Logger
}

func NewModule(kv db.KVStore, sys *chain.System, cfg Config, tracker FinalSessionTracker, logger zerolog.Logger) *Module {
	return &Module{
		store:        NewStore(kv),
		sys:          sys,
		cfg:          cfg,
		finalSession: tracker,
		log:          logger,
	}
}

// Store exposes read access for query layers.
func (m *Module) Store() *Store {
	return m.store
}

// Subscribe registers a finalization subscriber. Not safe once block
// execution has started.
func (m *Module) Subscribe(s Subscriber) {
	m.subscribers = append(m.subscribers, s)
}

// SetRewardHandler registers the notary reward hook.
func (m *Module) SetRewardHandler(r RewardHandler) {
	m.rewards = r
}

// SetInitialNotaries installs the genesis notary set.
func (m *Module) SetInitialNotaries(keys []AuthorityID) error {
	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, []byte{prefixNotaryKeys}, keys); err != nil {
		return err
	}
	return batch.Commit()
}

// SubmitEventClaim records a new claim for notarization. Rejected while
// the bridge is paused for an authority handover.
func (m *Module) SubmitEventClaim(
	submitter primitives.AccountID,
	txHash common.Hash,
	contract common.Address,
	eventSignature common.Hash,
	data []byte,
) (EventClaimID, error) {
	paused, err := m.store.IsPaused()
	if err != nil {
		return 0, err
	}
	if paused {
		return 0, ErrBridgePaused
	}
	id, err := m.store.NextClaimID()
	if err != nil {
		return 0, err
	}
	claim := EventClaim{
		TxHash:         txHash,
		Contract:       contract,
		EventSignature: eventSignature,
		Data:           data,
		Submitter:      submitter,
	}
	expiry := m.sys.BlockNumber() + m.cfg.ClaimPruneDelay

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := insertClaim(batch, id, claim, expiry); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit claim: %w", err)
	}

	m.sys.Deposit(EventClaimSubmitted{ClaimID: id, TxHash: txHash})
	m.log.Debug().Uint64("claim", uint64(id)).Str("tx", txHash.Hex()).Msg("event claim submitted")
	return id, nil
}

// SubmitNotarization records one notary's verdict on a claim and
// finalizes the claim once the tally is decided. The tally is a pure
// function of the vote set, so vote arrival order cannot change the
// outcome.
func (m *Module) SubmitNotarization(notary AuthorityID, claimID EventClaimID, result NotarizationResult) error {
	notaries, err := m.store.NotaryKeys()
	if err != nil {
		return err
	}
	index := notaryIndex(notaries, notary)
	if index < 0 {
		return ErrInvalidNotary
	}
	rec, err := m.store.getClaimRecord(claimID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrInvalidClaim
	}
	voted, err := m.store.hasVote(claimID, uint16(index))
	if err != nil {
		return err
	}
	if voted {
		return ErrDuplicateVote
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, voteKey(claimID, uint16(index)), result); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit vote: %w", err)
	}

	votes, err := m.store.claimVotes(claimID)
	if err != nil {
		return err
	}
	return m.finalizeIfDecided(claimID, rec, notaries, votes)
}

func notaryIndex(notaries []AuthorityID, key AuthorityID) int {
	for i, n := range notaries {
		if n == key {
			return i
		}
	}
	return -1
}

// finalizeIfDecided tallies votes against the threshold. Approved once
// yes votes reach threshold% of the set, rejected as soon as the
// remaining undecided notaries cannot get there.
func (m *Module) finalizeIfDecided(id EventClaimID, rec *claimRecord, notaries []AuthorityID, votes []vote) error {
	var yes uint64
	for _, v := range votes {
		if v.Result == NotarizationValid {
			yes++
		}
	}
	setSize := uint64(len(notaries))
	threshold := uint64(m.cfg.NotarizationThreshold)

	if yes*100 >= threshold*setSize {
		return m.finalize(id, rec, votes, ClaimApproved, notaries)
	}
	possible := yes + (setSize - uint64(len(votes)))
	if possible*100 < threshold*setSize {
		return m.finalize(id, rec, votes, ClaimRejected, nil)
	}
	return nil
}

func (m *Module) finalize(id EventClaimID, rec *claimRecord, votes []vote, outcome ClaimOutcome, notaries []AuthorityID) error {
	batch := m.store.NewBatch()
	defer batch.Close()
	if err := removeClaim(batch, id, votes, rec.ExpiresAt); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit finalization: %w", err)
	}

	claim := rec.Claim
	switch outcome {
	case ClaimApproved:
		for _, s := range m.subscribers {
			s.OnSuccess(id, claim.Contract, claim.EventSignature, claim.Data)
		}
		if m.rewards != nil {
			var voters []AuthorityID
			for _, v := range votes {
				if v.Result == NotarizationValid {
					voters = append(voters, notaries[v.NotaryIndex])
				}
			}
			m.rewards.RewardNotaries(voters, id)
		}
	case ClaimRejected, ClaimExpired:
		for _, s := range m.subscribers {
			s.OnFailure(id, claim.Contract, claim.EventSignature, claim.Data)
		}
	}
	m.sys.Deposit(EventClaimFinalized{ClaimID: id, Outcome: outcome})
	m.log.Debug().Uint64("claim", uint64(id)).Uint8("outcome", uint8(outcome)).Msg("claim finalized")
	return nil
}

// HandleAuthoritiesChange stores the incoming notary set and allocates a
// proof id for the handover. When the active session is the era's final
// one the bridge pauses so a claim's threshold is never evaluated
// against a set that is mid replacement.
func (m *Module) HandleAuthoritiesChange(next []AuthorityID) error {
	proofID, err := m.store.NextProofID()
	if err != nil {
		return err
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, []byte{prefixNextNotaryKeys}, next); err != nil {
		return err
	}
	if err := put(batch, []byte{prefixNextProofID}, uint64(proofID)+1); err != nil {
		return err
	}
	if m.finalSession.IsActiveSessionFinal() {
		if err := batch.Put([]byte{prefixPaused}, []byte{1}); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit authorities change: %w", err)
	}

	m.sys.Deposit(EventAuthoritySetChangeScheduled{ProofID: proofID})
	return nil
}

// OnBeforeSessionEnding commits the pending notary set as active, bumps
// the set id and unpauses the bridge.
func (m *Module) OnBeforeSessionEnding() error {
	next, err := m.store.NextNotaryKeys()
	if err != nil {
		return err
	}
	if len(next) == 0 {
		return nil
	}
	setID, err := m.store.NotarySetID()
	if err != nil {
		return err
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, []byte{prefixNotaryKeys}, next); err != nil {
		return err
	}
	if err := batch.Delete([]byte{prefixNextNotaryKeys}); err != nil {
		return err
	}
	if err := put(batch, []byte{prefixNotarySetID}, setID+1); err != nil {
		return err
	}
	if err := batch.Delete([]byte{prefixPaused}); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit session end: %w", err)
	}

	m.sys.Deposit(EventAuthoritySetChanged{SetID: setID + 1})
	m.log.Info().Uint64("set_id", setID+1).Int("notaries", len(next)).Msg("notary set rotated")
	return nil
}

// OnInitialize implements chain.BlockHook, pruning claims that expired
// without reaching a verdict.
func (m *Module) OnInitialize(n primitives.BlockNumber) (uint64, error) {
	ids, err := m.store.ClaimIDsExpiringAt(n)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		rec, err := m.store.getClaimRecord(id)
		if err != nil {
			return uint64(len(ids)), err
		}
		if rec == nil {
			continue
		}
		votes, err := m.store.claimVotes(id)
		if err != nil {
			return uint64(len(ids)), err
		}
		if err := m.finalize(id, rec, votes, ClaimExpired, nil); err != nil {
			return uint64(len(ids)), err
		}
	}
	return uint64(len(ids)), nil
}

// PendingClaimCount supports status queries.
func (m *Module) PendingClaimCount() (int, error) {
	ids, err := m.store.PendingClaimIDs()
	return len(ids), err
}
