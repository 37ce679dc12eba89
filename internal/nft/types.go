// Package nft implements the NFT marketplace module: collections,
// series and tokens, fixed price sales and auctions with royalty aware
// settlement, and the scheduled closing of listings.
//
// Execution is sequential and deterministic. Every operation validates
// fully before writing and commits its writes in one batch, so a failed
// operation leaves no partial state.
package nft

import (
	"unicode/utf8"

	"github.com/emberchain/ember/internal/primitives"
)

// MaxCollectionNameLength bounds collection names in bytes.
const MaxCollectionNameLength = 32

// MetadataKind discriminates metadata scheme variants.
type MetadataKind uint8

const (
	// MetadataIPFSDir references a directory CID, token metadata at <CID>/<serial>.
	MetadataIPFSDir MetadataKind = iota
	// MetadataHTTPS references an https base path.
	MetadataHTTPS
)

// MetadataScheme locates the off-chain metadata for tokens in a series.
type MetadataScheme struct {
	Kind MetadataKind
	Path []byte
}

// Entitlement is one royalty beneficiary and its fraction of sale price.
type Entitlement struct {
	Beneficiary primitives.AccountID
	Fraction    primitives.Permill
}

// RoyaltiesSchedule is an ordered list of royalty entitlements paid out
// of every sale of the tokens it covers.
type RoyaltiesSchedule struct {
	Entitlements []Entitlement
}

// Total returns the summed entitlement fraction, saturating.
func (r RoyaltiesSchedule) Total() primitives.Permill {
	var total primitives.Permill
	for _, e := range r.Entitlements {
		total = total.Add(e.Fraction)
	}
	return total
}

// Valid reports whether the schedule can be paid out: at least one
// entitlement and a total of at most 100%.
func (r RoyaltiesSchedule) Valid() bool {
	return len(r.Entitlements) > 0 && r.Total() <= primitives.PermillOne()
}

// TokenLockReason records why a token cannot be moved. Listed is the
// only reason in this version.
type TokenLockReason struct {
	ListingID primitives.ListingID
}

// Marketplace is a registered third party marketplace taking a cut of
// sales listed through it.
type Marketplace struct {
	Account     primitives.AccountID
	Entitlement primitives.Permill
}

// CollectionInfo is the queryable view of a collection.
type CollectionInfo struct {
	Name      []byte
	Owner     primitives.AccountID
	Royalties []Entitlement
}

// TokenInfo is the queryable view of a single token.
type TokenInfo struct {
	Owner     primitives.AccountID
	Royalties []Entitlement
}

func validCollectionName(name []byte) bool {
	if len(name) == 0 || len(name) > MaxCollectionNameLength {
		return false
	}
	return utf8.Valid(name)
}
