package primitives

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountID is a 20 byte chain account identifier, shared with the
// Ethereum address format so bridged accounts need no conversion.
type AccountID = common.Address

// AssetID identifies a fungible asset on the multi-asset ledger.
type AssetID uint32

// Balance is an amount of a fungible asset.
type Balance uint64

// BlockNumber is the height of the chain.
type BlockNumber uint64

// Percent is a whole number percentage in [0, 100].
type Percent uint8

type (
	// CollectionID identifies an NFT collection.
	CollectionID uint32
	// SeriesID identifies a series within a collection.
	SeriesID uint32
	// SerialNumber identifies an individual token within a series.
	SerialNumber uint32
	// ListingID identifies a marketplace listing.
	ListingID uint64
	// MarketplaceID identifies a registered marketplace.
	MarketplaceID uint32
)

// TokenID is the unique, hierarchical identifier of a single token.
type TokenID struct {
	Collection CollectionID
	Series     SeriesID
	Serial     SerialNumber
}

// AccountFromUint64 derives an AccountID from an integer, test keyrings only.
func AccountFromUint64(n uint64) AccountID {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}
