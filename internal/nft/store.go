package nft

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
// iteration order equals numeric order; the layout is consensus critical.
const (
	prefixNextCollectionID byte = iota + 1
	prefixCollectionName
	prefixCollectionOwner
	prefixCollectionRoyalties
	prefixNextSeriesID
	prefixSeriesIssuance
	prefixSeriesRoyalties
	prefixSeriesMetadata
	prefixNextSerialNumber
	prefixTokenOwner
	prefixTokenLock
	prefixNextListingID
	prefixListing
	prefixListingEndSchedule
	prefixWinningBid
	prefixOpenCollectionListing
	prefixNextMarketplaceID
	prefixMarketplace
)

// Store wraps a KVStore with the marketplace storage layout. Reads go
// straight to the store, writes go through a caller supplied batch so
// each module operation commits atomically.
type Store struct {
	db.KVStore
}

func NewStore(kv db.KVStore) *Store {
	return &Store{KVStore: kv}
}

func collectionKey(prefix byte, c primitives.CollectionID) []byte {
	key := make([]byte, 5)
	key[0] = prefix
	binary.BigEndian.PutUint32(key[1:], uint32(c))
	return key
}

func seriesKey(prefix byte, c primitives.CollectionID, s primitives.SeriesID) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint32(key[1:], uint32(c))
	binary.BigEndian.PutUint32(key[5:], uint32(s))
	return key
}

func tokenKey(prefix byte, t primitives.TokenID) []byte {
	key := make([]byte, 13)
	key[0] = prefix
	binary.BigEndian.PutUint32(key[1:], uint32(t.Collection))
	binary.BigEndian.PutUint32(key[5:], uint32(t.Series))
	binary.BigEndian.PutUint32(key[9:], uint32(t.Serial))
	return key
}

func listingKey(prefix byte, id primitives.ListingID) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func scheduleKey(close primitives.BlockNumber, id primitives.ListingID) []byte {
	key := make([]byte, 17)
	key[0] = prefixListingEndSchedule
	binary.BigEndian.PutUint64(key[1:], uint64(close))
	binary.BigEndian.PutUint64(key[9:], uint64(id))
	return key
}

func openListingKey(c primitives.CollectionID, id primitives.ListingID) []byte {
	key := make([]byte, 13)
	key[0] = prefixOpenCollectionListing
	binary.BigEndian.PutUint32(key[1:], uint32(c))
	binary.BigEndian.PutUint64(key[5:], uint64(id))
	return key
}

func marketplaceKey(id primitives.MarketplaceID) []byte {
	key := make([]byte, 5)
	key[0] = prefixMarketplace
	binary.BigEndian.PutUint32(key[1:], uint32(id))
	return key
}

// get decodes the value at key into out, reporting presence.
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

// presentFlag marks bare index entries, the key itself is the datum.
var presentFlag = []byte{1}

// --- counters ---

func (s *Store) counter32(prefix byte) (uint32, error) {
	var n uint32
	if _, err := s.get([]byte{prefix}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) counter64(prefix byte) (uint64, error) {
	var n uint64
	if _, err := s.get([]byte{prefix}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) NextCollectionID() (primitives.CollectionID, error) {
	n, err := s.counter32(prefixNextCollectionID)
	return primitives.CollectionID(n), err
}

func (s *Store) NextListingID() (primitives.ListingID, error) {
	n, err := s.counter64(prefixNextListingID)
	return primitives.ListingID(n), err
}

func (s *Store) NextMarketplaceID() (primitives.MarketplaceID, error) {
	n, err := s.counter32(prefixNextMarketplaceID)
	return primitives.MarketplaceID(n), err
}

func (s *Store) NextSeriesID(c primitives.CollectionID) (primitives.SeriesID, error) {
	var n uint32
	if _, err := s.get(collectionKey(prefixNextSeriesID, c), &n); err != nil {
		return 0, err
	}
	return primitives.SeriesID(n), nil
}

func (s *Store) NextSerialNumber(c primitives.CollectionID, sid primitives.SeriesID) (primitives.SerialNumber, error) {
	var n uint32
	if _, err := s.get(seriesKey(prefixNextSerialNumber, c, sid), &n); err != nil {
		return 0, err
	}
	return primitives.SerialNumber(n), nil
}

func setCounter32(b db.Batch, prefix byte, n uint32) error {
	return put(b, []byte{prefix}, n)
}

func setCounter64(b db.Batch, prefix byte, n uint64) error {
	return put(b, []byte{prefix}, n)
}

// --- collections ---

func (s *Store) CollectionOwner(c primitives.CollectionID) (primitives.AccountID, bool, error) {
	var owner primitives.AccountID
	ok, err := s.get(collectionKey(prefixCollectionOwner, c), &owner)
	return owner, ok, err
}

func (s *Store) CollectionName(c primitives.CollectionID) ([]byte, error) {
	var name []byte
	_, err := s.get(collectionKey(prefixCollectionName, c), &name)
	return name, err
}

func (s *Store) CollectionRoyalties(c primitives.CollectionID) (*RoyaltiesSchedule, error) {
	var schedule RoyaltiesSchedule
	ok, err := s.get(collectionKey(prefixCollectionRoyalties, c), &schedule)
	if err != nil || !ok {
		return nil, err
	}
	return &schedule, nil
}

func (s *Store) putCollection(b db.Batch, c primitives.CollectionID, name []byte, owner primitives.AccountID, royalties *RoyaltiesSchedule) error {
	if err := put(b, collectionKey(prefixCollectionName, c), name); err != nil {
		return err
	}
	if err := put(b, collectionKey(prefixCollectionOwner, c), owner); err != nil {
		return err
	}
	if royalties != nil {
		if err := put(b, collectionKey(prefixCollectionRoyalties, c), *royalties); err != nil {
			return err
		}
	}
	return setCounter32(b, prefixNextCollectionID, uint32(c)+1)
}

// --- series ---

func (s *Store) SeriesIssuance(c primitives.CollectionID, sid primitives.SeriesID) (uint32, bool, error) {
	var issuance uint32
	ok, err := s.get(seriesKey(prefixSeriesIssuance, c, sid), &issuance)
	return issuance, ok, err
}

func (s *Store) SeriesRoyalties(c primitives.CollectionID, sid primitives.SeriesID) (*RoyaltiesSchedule, error) {
	var schedule RoyaltiesSchedule
	ok, err := s.get(seriesKey(prefixSeriesRoyalties, c, sid), &schedule)
	if err != nil || !ok {
		return nil, err
	}
	return &schedule, nil
}

func (s *Store) SeriesMetadata(c primitives.CollectionID, sid primitives.SeriesID) (MetadataScheme, bool, error) {
	var scheme MetadataScheme
	ok, err := s.get(seriesKey(prefixSeriesMetadata, c, sid), &scheme)
	return scheme, ok, err
}

// --- tokens ---

func (s *Store) TokenOwner(t primitives.TokenID) (primitives.AccountID, bool, error) {
	var owner primitives.AccountID
	ok, err := s.get(tokenKey(prefixTokenOwner, t), &owner)
	return owner, ok, err
}

func (s *Store) TokenLock(t primitives.TokenID) (*TokenLockReason, error) {
	var lock TokenLockReason
	ok, err := s.get(tokenKey(prefixTokenLock, t), &lock)
	if err != nil || !ok {
		return nil, err
	}
	return &lock, nil
}

// CollectedTokens returns all tokens in a collection owned by who, in
// (series, serial) order.
func (s *Store) CollectedTokens(c primitives.CollectionID, who primitives.AccountID) ([]primitives.TokenID, error) {
	start := collectionKey(prefixTokenOwner, c)
	end := collectionKey(prefixTokenOwner, c+1)
	iter, err := s.NewIterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var tokens []primitives.TokenID
	for iter.Next() {
		raw, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("iterator value: %w", err)
		}
		var owner primitives.AccountID
		if err := scale.Unmarshal(raw, &owner); err != nil {
			return nil, fmt.Errorf("unmarshal token owner: %w", err)
		}
		if owner != who {
			continue
		}
		key := iter.Key()
		tokens = append(tokens, primitives.TokenID{
			Collection: primitives.CollectionID(binary.BigEndian.Uint32(key[1:])),
			Series:     primitives.SeriesID(binary.BigEndian.Uint32(key[5:])),
			Serial:     primitives.SerialNumber(binary.BigEndian.Uint32(key[9:])),
		})
	}
	return tokens, nil
}

// --- listings ---

func (s *Store) GetListing(id primitives.ListingID) (Listing, error) {
	raw, err := s.Get(listingKey(prefixListing, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return decodeListing(raw)
}

func putListing(b db.Batch, id primitives.ListingID, l Listing) error {
	raw, err := encodeListing(l)
	if err != nil {
		return err
	}
	return b.Put(listingKey(prefixListing, id), raw)
}

func (s *Store) GetWinningBid(id primitives.ListingID) (*WinningBid, error) {
	var bid WinningBid
	ok, err := s.get(listingKey(prefixWinningBid, id), &bid)
	if err != nil || !ok {
		return nil, err
	}
	return &bid, nil
}

// HasScheduleEntry reports whether (close, id) is in the close index.
func (s *Store) HasScheduleEntry(close primitives.BlockNumber, id primitives.ListingID) (bool, error) {
	return s.Has(scheduleKey(close, id))
}

// ListingIDsDueAt returns listings scheduled to close at the given block.
func (s *Store) ListingIDsDueAt(block primitives.BlockNumber) ([]primitives.ListingID, error) {
	iter, err := s.NewIterator(scheduleKey(block, 0), scheduleKey(block+1, 0))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var ids []primitives.ListingID
	for iter.Next() {
		key := iter.Key()
		ids = append(ids, primitives.ListingID(binary.BigEndian.Uint64(key[9:])))
	}
	return ids, nil
}

// HasOpenListing reports whether a listing is in the per-collection index.
func (s *Store) HasOpenListing(c primitives.CollectionID, id primitives.ListingID) (bool, error) {
	return s.Has(openListingKey(c, id))
}

// OpenListingIDs returns all open listing ids for a collection in
// listing id order.
func (s *Store) OpenListingIDs(c primitives.CollectionID) ([]primitives.ListingID, error) {
	iter, err := s.NewIterator(openListingKey(c, 0), openListingKey(c+1, 0))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var ids []primitives.ListingID
	for iter.Next() {
		key := iter.Key()
		ids = append(ids, primitives.ListingID(binary.BigEndian.Uint64(key[5:])))
	}
	return ids, nil
}

// insertListing writes the listing plus every derived index entry
// (close schedule, open collection index, token locks) in one batch.
// All creation and extension paths go through here or removeListing so
// the derived indexes cannot drift from the listing itself.
func insertListing(b db.Batch, id primitives.ListingID, l Listing) error {
	if err := putListing(b, id, l); err != nil {
		return err
	}
	if err := b.Put(scheduleKey(l.CloseBlock(), id), presentFlag); err != nil {
		return err
	}
	tokens := l.ListedTokens()
	if err := b.Put(openListingKey(tokens[0].Collection, id), presentFlag); err != nil {
		return err
	}
	for _, t := range tokens {
		if err := put(b, tokenKey(prefixTokenLock, t), TokenLockReason{ListingID: id}); err != nil {
			return err
		}
	}
	return setCounter64(b, prefixNextListingID, uint64(id)+1)
}

// removeListing deletes the listing and every derived entry. Safe on
// any closure path: sale, cancellation, expiry, settlement failure.
func removeListing(b db.Batch, id primitives.ListingID, l Listing) error {
	if err := b.Delete(listingKey(prefixListing, id)); err != nil {
		return err
	}
	if err := b.Delete(scheduleKey(l.CloseBlock(), id)); err != nil {
		return err
	}
	if err := b.Delete(listingKey(prefixWinningBid, id)); err != nil {
		return err
	}
	tokens := l.ListedTokens()
	if err := b.Delete(openListingKey(tokens[0].Collection, id)); err != nil {
		return err
	}
	for _, t := range tokens {
		if err := b.Delete(tokenKey(prefixTokenLock, t)); err != nil {
			return err
		}
	}
	return nil
}

// --- marketplaces ---

func (s *Store) GetMarketplace(id primitives.MarketplaceID) (*Marketplace, error) {
	var m Marketplace
	ok, err := s.get(marketplaceKey(id), &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}
