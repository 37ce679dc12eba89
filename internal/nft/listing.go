package nft

import (
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/emberchain/ember/internal/primitives"
)

// Listing is a tagged union of the two sale variants. Settlement and
// closing match exhaustively on the concrete type.
type Listing interface {
	// Seller is the account that created the listing.
	Seller() primitives.AccountID
	// CloseBlock is the block at which the listing is due to close.
	CloseBlock() primitives.BlockNumber
	// ListedTokens are the tokens held by the listing.
	ListedTokens() []primitives.TokenID

	listing()
}

// FixedPriceListing offers tokens at a fixed price, optionally to one
// designated buyer only.
type FixedPriceListing struct {
	PaymentAsset  primitives.AssetID
	FixedPrice    primitives.Balance
	Close         primitives.BlockNumber
	Buyer         *primitives.AccountID
	SellerAccount primitives.AccountID
	Tokens        []primitives.TokenID
	Royalties     RoyaltiesSchedule
	MarketplaceID *primitives.MarketplaceID
}

// AuctionListing offers tokens to the highest bidder at or above a
// reserve price.
type AuctionListing struct {
	PaymentAsset  primitives.AssetID
	ReservePrice  primitives.Balance
	Close         primitives.BlockNumber
	SellerAccount primitives.AccountID
	Tokens        []primitives.TokenID
	Royalties     RoyaltiesSchedule
	MarketplaceID *primitives.MarketplaceID
}

func (l FixedPriceListing) Seller() primitives.AccountID          { return l.SellerAccount }
func (l FixedPriceListing) CloseBlock() primitives.BlockNumber    { return l.Close }
func (l FixedPriceListing) ListedTokens() []primitives.TokenID    { return l.Tokens }
func (FixedPriceListing) listing()                                {}

func (l AuctionListing) Seller() primitives.AccountID       { return l.SellerAccount }
func (l AuctionListing) CloseBlock() primitives.BlockNumber { return l.Close }
func (l AuctionListing) ListedTokens() []primitives.TokenID { return l.Tokens }
func (AuctionListing) listing()                             {}

// WinningBid is the reserved highest bid on an auction listing.
type WinningBid struct {
	Bidder primitives.AccountID
	Amount primitives.Balance
}

const (
	listingTagFixedPrice byte = iota
	listingTagAuction
)

// encodeListing prefixes the SCALE encoded variant with a stable tag
// byte. The layout is consensus critical.
func encodeListing(l Listing) ([]byte, error) {
	switch v := l.(type) {
	case FixedPriceListing:
		raw, err := scale.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal fixed price listing: %w", err)
		}
		return append([]byte{listingTagFixedPrice}, raw...), nil
	case AuctionListing:
		raw, err := scale.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal auction listing: %w", err)
		}
		return append([]byte{listingTagAuction}, raw...), nil
	default:
		return nil, fmt.Errorf("unknown listing variant %T", l)
	}
}

func decodeListing(raw []byte) (Listing, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty listing encoding")
	}
	switch raw[0] {
	case listingTagFixedPrice:
		var v FixedPriceListing
		if err := scale.Unmarshal(raw[1:], &v); err != nil {
			return nil, fmt.Errorf("unmarshal fixed price listing: %w", err)
		}
		return v, nil
	case listingTagAuction:
		var v AuctionListing
		if err := scale.Unmarshal(raw[1:], &v); err != nil {
			return nil, fmt.Errorf("unmarshal auction listing: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown listing tag %d", raw[0])
	}
}
