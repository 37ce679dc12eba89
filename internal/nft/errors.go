package nft

import "errors"

var (
	// ErrNoPermission covers ownership failures and references to
	// tokens or listings the caller cannot act on. Missing tokens are
	// indistinguishable from unauthorized ones on purpose.
	ErrNoPermission = errors.New("nft: no permission")
	// ErrNoCollection means the collection does not exist.
	ErrNoCollection = errors.New("nft: no such collection")
	// ErrNoToken means an empty or unknown token selection.
	ErrNoToken = errors.New("nft: no such token")
	// ErrTokenListingProtection means the token is locked by an active listing.
	ErrTokenListingProtection = errors.New("nft: token is listed for sale")
	// ErrMixedBundleSale means a bundle spans multiple collections.
	ErrMixedBundleSale = errors.New("nft: bundled tokens must be from the same collection")
	// ErrRoyaltiesProtection means a bundle includes series level
	// royalties, where the split across tokens would be ambiguous.
	ErrRoyaltiesProtection = errors.New("nft: bundled tokens have royalties set")
	// ErrRoyaltiesInvalid means entitlements are empty or exceed 100%.
	ErrRoyaltiesInvalid = errors.New("nft: royalties schedule is invalid")
	// ErrNotForAuction means the listing is absent or not an auction.
	ErrNotForAuction = errors.New("nft: not listed for auction")
	// ErrNotForFixedPriceSale means the listing is absent or not a fixed price sale.
	ErrNotForFixedPriceSale = errors.New("nft: not listed for fixed price sale")
	// ErrBidTooLow means the bid does not beat the reserve or current winning bid.
	ErrBidTooLow = errors.New("nft: bid too low")
	// ErrCollectionNameInvalid means the name is empty, too long, or not UTF-8.
	ErrCollectionNameInvalid = errors.New("nft: collection name is invalid")
	// ErrMarketplaceNotRegistered means the referenced marketplace id is unknown.
	ErrMarketplaceNotRegistered = errors.New("nft: marketplace not registered")
)
