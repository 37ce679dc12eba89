package nft

import "github.com/emberchain/ember/internal/primitives"

// AuctionClosureReason tags why an auction closed without or with settlement.
type AuctionClosureReason uint8

const (
	// ClosureExpiredNoBids expired without any bid.
	ClosureExpiredNoBids AuctionClosureReason = iota
	// ClosureSettlementFailed had a winning bid whose reserved funds
	// could not be repatriated, listing closed unpaid.
	ClosureSettlementFailed
	// ClosureVendorCancelled was cancelled by the seller.
	ClosureVendorCancelled
)

func (r AuctionClosureReason) String() string {
	switch r {
	case ClosureExpiredNoBids:
		return "expired-no-bids"
	case ClosureSettlementFailed:
		return "settlement-failed"
	case ClosureVendorCancelled:
		return "vendor-cancelled"
	default:
		return "unknown"
	}
}

type EventCreateCollection struct {
	CollectionID primitives.CollectionID
	Name         string
	Owner        primitives.AccountID
}

type EventCreateSeries struct {
	CollectionID primitives.CollectionID
	SeriesID     primitives.SeriesID
	Quantity     uint32
	Owner        primitives.AccountID
}

type EventTransfer struct {
	From     primitives.AccountID
	TokenIDs []primitives.TokenID
	To       primitives.AccountID
}

type EventBurn struct {
	CollectionID primitives.CollectionID
	SeriesID     primitives.SeriesID
	Serials      []primitives.SerialNumber
}

type EventFixedPriceSaleListed struct {
	CollectionID  primitives.CollectionID
	ListingID     primitives.ListingID
	MarketplaceID *primitives.MarketplaceID
}

type EventFixedPriceSaleComplete struct {
	CollectionID primitives.CollectionID
	ListingID    primitives.ListingID
	Buyer        primitives.AccountID
}

type EventFixedPriceSaleClosed struct {
	CollectionID primitives.CollectionID
	ListingID    primitives.ListingID
}

type EventAuctionOpen struct {
	CollectionID  primitives.CollectionID
	ListingID     primitives.ListingID
	MarketplaceID *primitives.MarketplaceID
}

type EventAuctionSold struct {
	CollectionID primitives.CollectionID
	ListingID    primitives.ListingID
	PaymentAsset primitives.AssetID
	Price        primitives.Balance
	Winner       primitives.AccountID
}

type EventAuctionClosed struct {
	CollectionID primitives.CollectionID
	ListingID    primitives.ListingID
	Reason       AuctionClosureReason
}

type EventBid struct {
	CollectionID primitives.CollectionID
	ListingID    primitives.ListingID
	Amount       primitives.Balance
	Bidder       primitives.AccountID
}

type EventRegisteredMarketplace struct {
	Account     primitives.AccountID
	Entitlement primitives.Permill
	ID          primitives.MarketplaceID
}
