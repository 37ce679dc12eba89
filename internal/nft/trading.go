package nft

import (
	"fmt"

	"github.com/emberchain/ember/internal/ledger"
	"github.com/emberchain/ember/internal/primitives"
)

// Sell lists a single token for fixed price sale.
func (m *Module) Sell(
	caller primitives.AccountID,
	token primitives.TokenID,
	buyer *primitives.AccountID,
	paymentAsset primitives.AssetID,
	fixedPrice primitives.Balance,
	duration *primitives.BlockNumber,
	marketplaceID *primitives.MarketplaceID,
) (primitives.ListingID, error) {
	return m.SellBundle(caller, []primitives.TokenID{token}, buyer, paymentAsset, fixedPrice, duration, marketplaceID)
}

// SellBundle lists several tokens of one collection as a single fixed
// price listing. A designated buyer, when given, is the only account
// allowed to complete the purchase.
func (m *Module) SellBundle(
	caller primitives.AccountID,
	tokens []primitives.TokenID,
	buyer *primitives.AccountID,
	paymentAsset primitives.AssetID,
	fixedPrice primitives.Balance,
	duration *primitives.BlockNumber,
	marketplaceID *primitives.MarketplaceID,
) (primitives.ListingID, error) {
	royalties, err := m.prepareListing(caller, tokens, marketplaceID)
	if err != nil {
		return 0, err
	}
	id, err := m.store.NextListingID()
	if err != nil {
		return 0, err
	}
	listing := FixedPriceListing{
		PaymentAsset:  paymentAsset,
		FixedPrice:    fixedPrice,
		Close:         m.closeBlock(duration),
		Buyer:         buyer,
		SellerAccount: caller,
		Tokens:        tokens,
		Royalties:     royalties,
		MarketplaceID: marketplaceID,
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := insertListing(batch, id, listing); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit listing: %w", err)
	}

	m.sys.Deposit(EventFixedPriceSaleListed{
		CollectionID:  tokens[0].Collection,
		ListingID:     id,
		MarketplaceID: marketplaceID,
	})
	m.log.Debug().Uint64("listing", uint64(id)).Msg("fixed price listing opened")
	return id, nil
}

// Auction lists a single token for auction.
func (m *Module) Auction(
	caller primitives.AccountID,
	token primitives.TokenID,
	paymentAsset primitives.AssetID,
	reservePrice primitives.Balance,
	duration *primitives.BlockNumber,
	marketplaceID *primitives.MarketplaceID,
) (primitives.ListingID, error) {
	return m.AuctionBundle(caller, []primitives.TokenID{token}, paymentAsset, reservePrice, duration, marketplaceID)
}

// AuctionBundle lists several tokens of one collection as a single
// auction listing.
func (m *Module) AuctionBundle(
	caller primitives.AccountID,
	tokens []primitives.TokenID,
	paymentAsset primitives.AssetID,
	reservePrice primitives.Balance,
	duration *primitives.BlockNumber,
	marketplaceID *primitives.MarketplaceID,
) (primitives.ListingID, error) {
	royalties, err := m.prepareListing(caller, tokens, marketplaceID)
	if err != nil {
		return 0, err
	}
	id, err := m.store.NextListingID()
	if err != nil {
		return 0, err
	}
	listing := AuctionListing{
		PaymentAsset:  paymentAsset,
		ReservePrice:  reservePrice,
		Close:         m.closeBlock(duration),
		SellerAccount: caller,
		Tokens:        tokens,
		Royalties:     royalties,
		MarketplaceID: marketplaceID,
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := insertListing(batch, id, listing); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit listing: %w", err)
	}

	m.sys.Deposit(EventAuctionOpen{
		CollectionID:  tokens[0].Collection,
		ListingID:     id,
		MarketplaceID: marketplaceID,
	})
	m.log.Debug().Uint64("listing", uint64(id)).Msg("auction opened")
	return id, nil
}

// prepareListing runs the checks shared by both listing kinds and
// resolves the royalty schedule snapshot, including the marketplace cut.
func (m *Module) prepareListing(
	caller primitives.AccountID,
	tokens []primitives.TokenID,
	marketplaceID *primitives.MarketplaceID,
) (RoyaltiesSchedule, error) {
	if len(tokens) == 0 {
		return RoyaltiesSchedule{}, ErrNoToken
	}
	collection := tokens[0].Collection
	for _, token := range tokens {
		if token.Collection != collection {
			return RoyaltiesSchedule{}, ErrMixedBundleSale
		}
		if err := m.checkTransferable(caller, token); err != nil {
			return RoyaltiesSchedule{}, err
		}
	}
	royalties, err := m.listingRoyalties(tokens)
	if err != nil {
		return RoyaltiesSchedule{}, err
	}
	if marketplaceID != nil {
		marketplace, err := m.store.GetMarketplace(*marketplaceID)
		if err != nil {
			return RoyaltiesSchedule{}, err
		}
		if marketplace == nil {
			return RoyaltiesSchedule{}, ErrMarketplaceNotRegistered
		}
		if royalties.Total().Add(marketplace.Entitlement) > primitives.PermillOne() {
			return RoyaltiesSchedule{}, ErrRoyaltiesInvalid
		}
		// the marketplace cut rides the snapshot as one more entitlement
		royalties.Entitlements = append(royalties.Entitlements, Entitlement{
			Beneficiary: marketplace.Account,
			Fraction:    marketplace.Entitlement,
		})
	}
	return royalties, nil
}

func (m *Module) closeBlock(duration *primitives.BlockNumber) primitives.BlockNumber {
	d := m.cfg.DefaultListingDuration
	if duration != nil {
		d = *duration
	}
	return m.sys.BlockNumber() + d
}

// Buy completes a fixed price sale at the listed price.
func (m *Module) Buy(caller primitives.AccountID, listingID primitives.ListingID) error {
	stored, err := m.store.GetListing(listingID)
	if err != nil {
		return err
	}
	listing, ok := stored.(FixedPriceListing)
	if !ok {
		return ErrNotForFixedPriceSale
	}
	if listing.Buyer != nil && *listing.Buyer != caller {
		return ErrNoPermission
	}
	// distribution is several ledger transfers, check cover up front so
	// a partial payout cannot happen
	free, err := m.ledger.FreeBalance(listing.PaymentAsset, caller)
	if err != nil {
		return err
	}
	if free < listing.FixedPrice {
		return ledger.ErrInsufficientBalance
	}
	if err := m.paySalePrice(caller, listing.SellerAccount, listing.PaymentAsset, listing.FixedPrice, listing.Royalties); err != nil {
		return err
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := removeListing(batch, listingID, listing); err != nil {
		return err
	}
	for _, token := range listing.Tokens {
		if err := put(batch, tokenKey(prefixTokenOwner, token), caller); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit buy: %w", err)
	}

	m.sys.Deposit(EventFixedPriceSaleComplete{
		CollectionID: listing.Tokens[0].Collection,
		ListingID:    listingID,
		Buyer:        caller,
	})
	return nil
}

// paySalePrice distributes price from payer: royalty entitlements first,
// remainder to the seller.
func (m *Module) paySalePrice(
	payer, seller primitives.AccountID,
	asset primitives.AssetID,
	price primitives.Balance,
	royalties RoyaltiesSchedule,
) error {
	payouts, remainder := splitSalePrice(royalties, price)
	for _, p := range payouts {
		if err := m.ledger.Transfer(asset, payer, p.beneficiary, p.amount); err != nil {
			return err
		}
	}
	return m.ledger.Transfer(asset, payer, seller, remainder)
}

// Bid places an auction bid, reserving the bidder's funds and releasing
// the previous winner's. A bid inside the extension window pushes the
// close block out to keep snipe bids contestable.
func (m *Module) Bid(caller primitives.AccountID, listingID primitives.ListingID, amount primitives.Balance) error {
	stored, err := m.store.GetListing(listingID)
	if err != nil {
		return err
	}
	listing, ok := stored.(AuctionListing)
	if !ok {
		return ErrNotForAuction
	}
	if amount < listing.ReservePrice {
		return ErrBidTooLow
	}
	current, err := m.store.GetWinningBid(listingID)
	if err != nil {
		return err
	}
	if current != nil && amount <= current.Amount {
		return ErrBidTooLow
	}
	if err := m.ledger.Reserve(caller, listing.PaymentAsset, amount); err != nil {
		return err
	}
	if current != nil {
		if _, err := m.ledger.Unreserve(current.Bidder, listing.PaymentAsset, current.Amount); err != nil {
			return err
		}
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, listingKey(prefixWinningBid, listingID), WinningBid{Bidder: caller, Amount: amount}); err != nil {
		return err
	}
	now := m.sys.BlockNumber()
	if listing.Close <= now+m.cfg.AuctionExtensionPeriod {
		if err := batch.Delete(scheduleKey(listing.Close, listingID)); err != nil {
			return err
		}
		listing.Close = now + m.cfg.AuctionExtensionPeriod
		if err := batch.Put(scheduleKey(listing.Close, listingID), presentFlag); err != nil {
			return err
		}
		if err := putListing(batch, listingID, listing); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit bid: %w", err)
	}

	m.sys.Deposit(EventBid{
		CollectionID: listing.Tokens[0].Collection,
		ListingID:    listingID,
		Amount:       amount,
		Bidder:       caller,
	})
	return nil
}

// CancelSale cancels an unsettled listing. Only the seller may cancel.
// An outstanding winning bid is released back to the bidder.
func (m *Module) CancelSale(caller primitives.AccountID, listingID primitives.ListingID) error {
	listing, err := m.store.GetListing(listingID)
	if err != nil {
		return err
	}
	if listing == nil || listing.Seller() != caller {
		return ErrNoPermission
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := removeListing(batch, listingID, listing); err != nil {
		return err
	}

	switch l := listing.(type) {
	case FixedPriceListing:
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("commit cancel: %w", err)
		}
		m.sys.Deposit(EventFixedPriceSaleClosed{CollectionID: l.Tokens[0].Collection, ListingID: listingID})
	case AuctionListing:
		bid, err := m.store.GetWinningBid(listingID)
		if err != nil {
			return err
		}
		if bid != nil {
			if _, err := m.ledger.Unreserve(bid.Bidder, l.PaymentAsset, bid.Amount); err != nil {
				return err
			}
		}
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("commit cancel: %w", err)
		}
		m.sys.Deposit(EventAuctionClosed{
			CollectionID: l.Tokens[0].Collection,
			ListingID:    listingID,
			Reason:       ClosureVendorCancelled,
		})
	}
	return nil
}

// OnInitialize implements chain.BlockHook, settling listings due this block.
func (m *Module) OnInitialize(n primitives.BlockNumber) (uint64, error) {
	return m.CloseListingsAt(n)
}

// CloseListingsAt drains the close schedule for the given block. Work is
// bounded by the number of listings due, not the number of listings.
// Settlement failures never abort the block: the listing closes, the
// tokens unlock and no funds move.
func (m *Module) CloseListingsAt(block primitives.BlockNumber) (uint64, error) {
	ids, err := m.store.ListingIDsDueAt(block)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		listing, err := m.store.GetListing(id)
		if err != nil {
			return uint64(len(ids)), err
		}
		if listing == nil {
			continue
		}
		switch l := listing.(type) {
		case FixedPriceListing:
			if err := m.closeUnsold(id, l); err != nil {
				return uint64(len(ids)), err
			}
			m.sys.Deposit(EventFixedPriceSaleClosed{CollectionID: l.Tokens[0].Collection, ListingID: id})
		case AuctionListing:
			if err := m.closeAuction(id, l); err != nil {
				return uint64(len(ids)), err
			}
		}
	}
	return uint64(len(ids)), nil
}

func (m *Module) closeUnsold(id primitives.ListingID, listing Listing) error {
	batch := m.store.NewBatch()
	defer batch.Close()
	if err := removeListing(batch, id, listing); err != nil {
		return err
	}
	return batch.Commit()
}

func (m *Module) closeAuction(id primitives.ListingID, listing AuctionListing) error {
	collection := listing.Tokens[0].Collection
	bid, err := m.store.GetWinningBid(id)
	if err != nil {
		return err
	}
	if bid == nil {
		if err := m.closeUnsold(id, listing); err != nil {
			return err
		}
		m.sys.Deposit(EventAuctionClosed{CollectionID: collection, ListingID: id, Reason: ClosureExpiredNoBids})
		return nil
	}

	if err := m.settleAuction(id, listing, *bid); err != nil {
		// the winner's reserved funds are gone or the ledger refused the
		// payout. Close unpaid so the listing cannot poison the tokens.
		m.log.Warn().
			Uint64("listing", uint64(id)).
			Str("bidder", bid.Bidder.Hex()).
			Err(err).
			Msg("auction settlement failed, closing unpaid")
		if err := m.closeUnsold(id, listing); err != nil {
			return err
		}
		m.sys.Deposit(EventAuctionClosed{CollectionID: collection, ListingID: id, Reason: ClosureSettlementFailed})
		return nil
	}

	m.sys.Deposit(EventAuctionSold{
		CollectionID: collection,
		ListingID:    id,
		PaymentAsset: listing.PaymentAsset,
		Price:        bid.Amount,
		Winner:       bid.Bidder,
	})
	return nil
}

// settleAuction repatriates the winner's reserved funds through the
// royalty split and hands the tokens over.
func (m *Module) settleAuction(id primitives.ListingID, listing AuctionListing, bid WinningBid) error {
	reserved, err := m.ledger.ReservedBalance(listing.PaymentAsset, bid.Bidder)
	if err != nil {
		return err
	}
	if reserved < bid.Amount {
		return fmt.Errorf("winning bid %d no longer reserved (have %d)", bid.Amount, reserved)
	}
	if _, err := m.ledger.Unreserve(bid.Bidder, listing.PaymentAsset, bid.Amount); err != nil {
		return err
	}
	if err := m.paySalePrice(bid.Bidder, listing.SellerAccount, listing.PaymentAsset, bid.Amount, listing.Royalties); err != nil {
		return err
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := removeListing(batch, id, listing); err != nil {
		return err
	}
	for _, token := range listing.Tokens {
		if err := put(batch, tokenKey(prefixTokenOwner, token), bid.Bidder); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}
