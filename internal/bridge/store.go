package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/emberchain/ember/internal/primitives"
	"github.com/emberchain/ember/pkg/db"
	"github.com/emberchain/ember/pkg/db/pebble"
)

// Storage key prefixes. Integer key components are big-endian so that
// iteration order equals numeric order.
const (
	prefixNotaryKeys byte = iota + 1
	prefixNextNotaryKeys
	prefixNotarySetID
	prefixNextProofID
	prefixPaused
	prefixNextClaimID
	prefixClaim
	prefixClaimVote
	prefixClaimExpiry
)

// Store wraps a KVStore with the bridge storage layout.
type Store struct {
	db.KVStore
}

func NewStore(kv db.KVStore) *Store {
	return &Store{KVStore: kv}
}

func claimKey(id EventClaimID) []byte {
	key := make([]byte, 9)
	key[0] = prefixClaim
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func voteKey(id EventClaimID, notaryIndex uint16) []byte {
	key := make([]byte, 11)
	key[0] = prefixClaimVote
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	binary.BigEndian.PutUint16(key[9:], notaryIndex)
	return key
}

func expiryKey(block primitives.BlockNumber, id EventClaimID) []byte {
	key := make([]byte, 17)
	key[0] = prefixClaimExpiry
	binary.BigEndian.PutUint64(key[1:], uint64(block))
	binary.BigEndian.PutUint64(key[9:], uint64(id))
	return key
}

func (s *Store) get(key []byte, out any) (bool, error) {
	raw, err := s.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %x: %w", key[0], err)
	}
	if err := scale.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal %x: %w", key[0], err)
	}
	return true, nil
}

func put(b db.Batch, key []byte, v any) error {
	raw, err := scale.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %x: %w", key[0], err)
	}
	return b.Put(key, raw)
}

// --- notary set ---

func (s *Store) NotaryKeys() ([]AuthorityID, error) {
	var keys []AuthorityID
	if _, err := s.get([]byte{prefixNotaryKeys}, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) NextNotaryKeys() ([]AuthorityID, error) {
	var keys []AuthorityID
	if _, err := s.get([]byte{prefixNextNotaryKeys}, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) NotarySetID() (uint64, error) {
	var id uint64
	if _, err := s.get([]byte{prefixNotarySetID}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) NextProofID() (EventProofID, error) {
	var id uint64
	if _, err := s.get([]byte{prefixNextProofID}, &id); err != nil {
		return 0, err
	}
	return EventProofID(id), nil
}

func (s *Store) IsPaused() (bool, error) {
	return s.Has([]byte{prefixPaused})
}

// --- claims ---

func (s *Store) NextClaimID() (EventClaimID, error) {
	var id uint64
	if _, err := s.get([]byte{prefixNextClaimID}, &id); err != nil {
		return 0, err
	}
	return EventClaimID(id), nil
}

// claimRecord is the persisted form of a claim, carrying the expiry
// block so finalization can clear the expiry index entry.
type claimRecord struct {
	Claim     EventClaim
	ExpiresAt primitives.BlockNumber
}

func (s *Store) getClaimRecord(id EventClaimID) (*claimRecord, error) {
	var rec claimRecord
	ok, err := s.get(claimKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetClaim(id EventClaimID) (*EventClaim, error) {
	rec, err := s.getClaimRecord(id)
	if err != nil || rec == nil {
		return nil, err
	}
	return &rec.Claim, nil
}

// PendingClaimIDs returns all unfinalized claim ids in id order.
func (s *Store) PendingClaimIDs() ([]EventClaimID, error) {
	iter, err := s.NewIterator(claimKey(0), []byte{prefixClaim + 1})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var ids []EventClaimID
	for iter.Next() {
		key := iter.Key()
		ids = append(ids, EventClaimID(binary.BigEndian.Uint64(key[1:])))
	}
	return ids, nil
}

// --- votes ---

type vote struct {
	NotaryIndex uint16
	Result      NotarizationResult
}

func (s *Store) hasVote(id EventClaimID, notaryIndex uint16) (bool, error) {
	return s.Has(voteKey(id, notaryIndex))
}

// claimVotes returns every recorded vote for a claim in notary index order.
func (s *Store) claimVotes(id EventClaimID) ([]vote, error) {
	iter, err := s.NewIterator(voteKey(id, 0), voteKey(id+1, 0))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var votes []vote
	for iter.Next() {
		key := iter.Key()
		raw, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("iterator value: %w", err)
		}
		var result NotarizationResult
		if err := scale.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal vote: %w", err)
		}
		votes = append(votes, vote{
			NotaryIndex: binary.BigEndian.Uint16(key[9:]),
			Result:      result,
		})
	}
	return votes, nil
}

// insertClaim writes the claim, its expiry index entry and the bumped
// claim counter in one batch.
func insertClaim(b db.Batch, id EventClaimID, claim EventClaim, expiry primitives.BlockNumber) error {
	if err := put(b, claimKey(id), claimRecord{Claim: claim, ExpiresAt: expiry}); err != nil {
		return err
	}
	if err := b.Put(expiryKey(expiry, id), []byte{1}); err != nil {
		return err
	}
	return put(b, []byte{prefixNextClaimID}, uint64(id)+1)
}

// removeClaim deletes the claim, its votes and its expiry entry. Used on
// every finalization path.
func removeClaim(b db.Batch, id EventClaimID, votes []vote, expiry primitives.BlockNumber) error {
	if err := b.Delete(claimKey(id)); err != nil {
		return err
	}
	for _, v := range votes {
		if err := b.Delete(voteKey(id, v.NotaryIndex)); err != nil {
			return err
		}
	}
	return b.Delete(expiryKey(expiry, id))
}

// ClaimIDsExpiringAt returns claims scheduled to expire at the given block.
func (s *Store) ClaimIDsExpiringAt(block primitives.BlockNumber) ([]EventClaimID, error) {
	iter, err := s.NewIterator(expiryKey(block, 0), expiryKey(block+1, 0))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var ids []EventClaimID
	for iter.Next() {
		key := iter.Key()
		ids = append(ids, EventClaimID(binary.BigEndian.Uint64(key[9:])))
	}
	return ids, nil
}
