package nft

import (
	"github.com/emberchain/ember/internal/primitives"
)

// MaxListingsPerPage caps a single listings query. Larger limits are
// clamped, not rejected.
const MaxListingsPerPage uint16 = 100

// ListedPair couples a listing with its id for query responses.
type ListedPair struct {
	ID      primitives.ListingID
	Listing Listing
}

// CollectedTokens returns every token in the collection owned by who.
func (m *Module) CollectedTokens(collection primitives.CollectionID, who primitives.AccountID) ([]primitives.TokenID, error) {
	return m.store.CollectedTokens(collection, who)
}

// GetCollectionInfo returns collection metadata, or nil when the
// collection does not exist.
func (m *Module) GetCollectionInfo(collection primitives.CollectionID) (*CollectionInfo, error) {
	owner, ok, err := m.store.CollectionOwner(collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	name, err := m.store.CollectionName(collection)
	if err != nil {
		return nil, err
	}
	royalties, err := m.store.CollectionRoyalties(collection)
	if err != nil {
		return nil, err
	}
	info := &CollectionInfo{Name: name, Owner: owner}
	if royalties != nil {
		info.Royalties = royalties.Entitlements
	}
	return info, nil
}

// GetTokenInfo returns the owner and effective royalty schedule of a
// token, or nil when the token does not exist.
func (m *Module) GetTokenInfo(token primitives.TokenID) (*TokenInfo, error) {
	owner, ok, err := m.store.TokenOwner(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	royalties, err := m.effectiveRoyalties(token)
	if err != nil {
		return nil, err
	}
	return &TokenInfo{Owner: owner, Royalties: royalties.Entitlements}, nil
}

// CollectionListings pages through the open listings of a collection in
// listing id order. The returned cursor is the offset of the next page,
// nil once the collection is exhausted.
func (m *Module) CollectionListings(
	collection primitives.CollectionID,
	cursor uint64,
	limit uint16,
) (*uint64, []ListedPair, error) {
	if limit > MaxListingsPerPage {
		limit = MaxListingsPerPage
	}
	ids, err := m.store.OpenListingIDs(collection)
	if err != nil {
		return nil, nil, err
	}
	if cursor >= uint64(len(ids)) {
		return nil, nil, nil
	}
	end := cursor + uint64(limit)
	if end > uint64(len(ids)) {
		end = uint64(len(ids))
	}
	pairs := make([]ListedPair, 0, end-cursor)
	for _, id := range ids[cursor:end] {
		listing, err := m.store.GetListing(id)
		if err != nil {
			return nil, nil, err
		}
		if listing == nil {
			continue
		}
		pairs = append(pairs, ListedPair{ID: id, Listing: listing})
	}
	if end < uint64(len(ids)) {
		next := cursor + uint64(limit)
		return &next, pairs, nil
	}
	return nil, pairs, nil
}
