package nft

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/emberchain/ember/internal/chain"
	"github.com/emberchain/ember/internal/primitives"
	"github.com/emberchain/ember/pkg/db"
)

// AssetLedger is the external multi-asset ledger the marketplace moves
// funds through. Calls are atomic: a failed call has no side effects.
// Shortfalls surface as ledger.ErrInsufficientBalance.
type AssetLedger interface {
	Transfer(asset primitives.AssetID, from, to primitives.AccountID, amount primitives.Balance) error
	Reserve(who primitives.AccountID, asset primitives.AssetID, amount primitives.Balance) error
	Unreserve(who primitives.AccountID, asset primitives.AssetID, amount primitives.Balance) (primitives.Balance, error)
	FreeBalance(asset primitives.AssetID, who primitives.AccountID) (primitives.Balance, error)
	ReservedBalance(asset primitives.AssetID, who primitives.AccountID) (primitives.Balance, error)
}

// Config holds the runtime constants of the marketplace.
type Config struct {
	// DefaultListingDuration is used when a listing gives no duration.
	DefaultListingDuration primitives.BlockNumber
	// AuctionExtensionPeriod is both the late-bid window and the
	// extension applied when a bid lands inside it.
	AuctionExtensionPeriod primitives.BlockNumber
}

func DefaultConfig() Config {
	return Config{
		DefaultListingDuration: 5,
		AuctionExtensionPeriod: 40,
	}
}

// Module is the NFT marketplace state machine.
type Module struct {
	store  *Store
	ledger AssetLedger
	sys    *chain.System
	cfg    Config
	log    zerolog.Logger
}

func NewModule(kv db.KVStore, ledger AssetLedger, sys *chain.System, cfg Config, logger zerolog.Logger) *Module {
	return &Module{
		store:  NewStore(kv),
		ledger: ledger,
		sys:    sys,
		cfg:    cfg,
		log:    logger,
	}
}

// Store exposes read access for query layers.
func (m *Module) Store() *Store {
	return m.store
}

// CreateCollection registers a new, empty collection owned by caller.
func (m *Module) CreateCollection(caller primitives.AccountID, name []byte, royalties *RoyaltiesSchedule) (primitives.CollectionID, error) {
	if !validCollectionName(name) {
		return 0, ErrCollectionNameInvalid
	}
	if royalties != nil && !royalties.Valid() {
		return 0, ErrRoyaltiesInvalid
	}
	id, err := m.store.NextCollectionID()
	if err != nil {
		return 0, err
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := m.store.putCollection(batch, id, name, caller, royalties); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit collection: %w", err)
	}

	m.sys.Deposit(EventCreateCollection{CollectionID: id, Name: string(name), Owner: caller})
	m.log.Debug().Uint32("collection", uint32(id)).Str("name", string(name)).Msg("collection created")
	return id, nil
}

// SetOwner transfers collection ownership.
func (m *Module) SetOwner(caller primitives.AccountID, collection primitives.CollectionID, newOwner primitives.AccountID) error {
	owner, ok, err := m.store.CollectionOwner(collection)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoCollection
	}
	if owner != caller {
		return ErrNoPermission
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, collectionKey(prefixCollectionOwner, collection), newOwner); err != nil {
		return err
	}
	return batch.Commit()
}

// MintSeries creates a new series in the collection and mints quantity
// tokens with serial numbers 0..quantity-1 to tokenOwner (caller when nil).
func (m *Module) MintSeries(
	caller primitives.AccountID,
	collection primitives.CollectionID,
	quantity uint32,
	tokenOwner *primitives.AccountID,
	metadata MetadataScheme,
	royalties *RoyaltiesSchedule,
) (primitives.SeriesID, error) {
	owner, ok, err := m.store.CollectionOwner(collection)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoCollection
	}
	if owner != caller {
		return 0, ErrNoPermission
	}
	if quantity == 0 {
		return 0, ErrNoToken
	}
	if royalties != nil && !royalties.Valid() {
		return 0, ErrRoyaltiesInvalid
	}
	seriesID, err := m.store.NextSeriesID(collection)
	if err != nil {
		return 0, err
	}
	mintTo := caller
	if tokenOwner != nil {
		mintTo = *tokenOwner
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, seriesKey(prefixSeriesIssuance, collection, seriesID), quantity); err != nil {
		return 0, err
	}
	if err := put(batch, seriesKey(prefixSeriesMetadata, collection, seriesID), metadata); err != nil {
		return 0, err
	}
	if royalties != nil {
		if err := put(batch, seriesKey(prefixSeriesRoyalties, collection, seriesID), *royalties); err != nil {
			return 0, err
		}
	}
	if err := put(batch, seriesKey(prefixNextSerialNumber, collection, seriesID), quantity); err != nil {
		return 0, err
	}
	for serial := uint32(0); serial < quantity; serial++ {
		token := primitives.TokenID{Collection: collection, Series: seriesID, Serial: primitives.SerialNumber(serial)}
		if err := put(batch, tokenKey(prefixTokenOwner, token), mintTo); err != nil {
			return 0, err
		}
	}
	if err := put(batch, collectionKey(prefixNextSeriesID, collection), uint32(seriesID)+1); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit series: %w", err)
	}

	m.sys.Deposit(EventCreateSeries{CollectionID: collection, SeriesID: seriesID, Quantity: quantity, Owner: mintTo})
	return seriesID, nil
}

// MintAdditional mints quantity more tokens into an existing series,
// continuing from the next serial number.
func (m *Module) MintAdditional(
	caller primitives.AccountID,
	collection primitives.CollectionID,
	series primitives.SeriesID,
	quantity uint32,
	tokenOwner *primitives.AccountID,
) error {
	if quantity == 0 {
		return ErrNoToken
	}
	issuance, ok, err := m.store.SeriesIssuance(collection, series)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoToken
	}
	owner, ok, err := m.store.CollectionOwner(collection)
	if err != nil {
		return err
	}
	if !ok || owner != caller {
		return ErrNoPermission
	}
	nextSerial, err := m.store.NextSerialNumber(collection, series)
	if err != nil {
		return err
	}
	mintTo := caller
	if tokenOwner != nil {
		mintTo = *tokenOwner
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	for i := uint32(0); i < quantity; i++ {
		token := primitives.TokenID{
			Collection: collection,
			Series:     series,
			Serial:     nextSerial + primitives.SerialNumber(i),
		}
		if err := put(batch, tokenKey(prefixTokenOwner, token), mintTo); err != nil {
			return err
		}
	}
	if err := put(batch, seriesKey(prefixNextSerialNumber, collection, series), uint32(nextSerial)+quantity); err != nil {
		return err
	}
	if err := put(batch, seriesKey(prefixSeriesIssuance, collection, series), issuance+quantity); err != nil {
		return err
	}
	return batch.Commit()
}

// Transfer moves one token to a new owner.
func (m *Module) Transfer(caller primitives.AccountID, token primitives.TokenID, newOwner primitives.AccountID) error {
	return m.TransferBatch(caller, []primitives.TokenID{token}, newOwner)
}

// TransferBatch moves several tokens to a new owner. All tokens must be
// owned by caller and none may be locked by a listing.
func (m *Module) TransferBatch(caller primitives.AccountID, tokens []primitives.TokenID, newOwner primitives.AccountID) error {
	if len(tokens) == 0 {
		return ErrNoToken
	}
	for _, token := range tokens {
		if err := m.checkTransferable(caller, token); err != nil {
			return err
		}
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	for _, token := range tokens {
		if err := put(batch, tokenKey(prefixTokenOwner, token), newOwner); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}

	m.sys.Deposit(EventTransfer{From: caller, TokenIDs: tokens, To: newOwner})
	return nil
}

// checkTransferable verifies ownership and absence of a listing lock.
func (m *Module) checkTransferable(caller primitives.AccountID, token primitives.TokenID) error {
	owner, ok, err := m.store.TokenOwner(token)
	if err != nil {
		return err
	}
	if !ok || owner != caller {
		return ErrNoPermission
	}
	lock, err := m.store.TokenLock(token)
	if err != nil {
		return err
	}
	if lock != nil {
		return ErrTokenListingProtection
	}
	return nil
}

// Burn destroys one token.
func (m *Module) Burn(caller primitives.AccountID, token primitives.TokenID) error {
	return m.BurnBatch(caller, token.Collection, token.Series, []primitives.SerialNumber{token.Serial})
}

// BurnBatch destroys several tokens of one series. When the last token
// of a series is burned the series storage is cleared.
func (m *Module) BurnBatch(
	caller primitives.AccountID,
	collection primitives.CollectionID,
	series primitives.SeriesID,
	serials []primitives.SerialNumber,
) error {
	if len(serials) == 0 {
		return ErrNoToken
	}
	seen := make(map[primitives.SerialNumber]struct{}, len(serials))
	for _, serial := range serials {
		if _, dup := seen[serial]; dup {
			return ErrNoPermission
		}
		seen[serial] = struct{}{}
		token := primitives.TokenID{Collection: collection, Series: series, Serial: serial}
		if err := m.checkTransferable(caller, token); err != nil {
			return err
		}
	}
	issuance, ok, err := m.store.SeriesIssuance(collection, series)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPermission
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	for _, serial := range serials {
		token := primitives.TokenID{Collection: collection, Series: series, Serial: serial}
		if err := batch.Delete(tokenKey(prefixTokenOwner, token)); err != nil {
			return err
		}
	}
	remaining := issuance - uint32(len(serials))
	if remaining == 0 {
		if err := batch.Delete(seriesKey(prefixSeriesIssuance, collection, series)); err != nil {
			return err
		}
		if err := batch.Delete(seriesKey(prefixSeriesRoyalties, collection, series)); err != nil {
			return err
		}
		if err := batch.Delete(seriesKey(prefixSeriesMetadata, collection, series)); err != nil {
			return err
		}
	} else {
		if err := put(batch, seriesKey(prefixSeriesIssuance, collection, series), remaining); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit burn: %w", err)
	}

	m.sys.Deposit(EventBurn{CollectionID: collection, SeriesID: series, Serials: serials})
	return nil
}

// RegisterMarketplace registers a marketplace account entitled to a cut
// of sales listed through it. The beneficiary defaults to caller.
func (m *Module) RegisterMarketplace(
	caller primitives.AccountID,
	beneficiary *primitives.AccountID,
	entitlement primitives.Permill,
) (primitives.MarketplaceID, error) {
	if entitlement > primitives.PermillOne() {
		return 0, ErrRoyaltiesInvalid
	}
	account := caller
	if beneficiary != nil {
		account = *beneficiary
	}
	id, err := m.store.NextMarketplaceID()
	if err != nil {
		return 0, err
	}

	batch := m.store.NewBatch()
	defer batch.Close()
	if err := put(batch, marketplaceKey(id), Marketplace{Account: account, Entitlement: entitlement}); err != nil {
		return 0, err
	}
	if err := setCounter32(batch, prefixNextMarketplaceID, uint32(id)+1); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit marketplace: %w", err)
	}

	m.sys.Deposit(EventRegisteredMarketplace{Account: account, Entitlement: entitlement, ID: id})
	return id, nil
}
