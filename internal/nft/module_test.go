package nft

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/emberchain/ember/internal/chain"
	"github.com/emberchain/ember/internal/ledger"
	"github.com/emberchain/ember/internal/primitives"
	"github.com/emberchain/ember/pkg/db/pebble"
)

const testAsset = primitives.AssetID(16_001)

type testEnv struct {
	t      *testing.T
	sys    *chain.System
	ledger *ledger.Ledger
	mod    *Module
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	lkv, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, kv.Close())
		require.NoError(t, lkv.Close())
	})

	sys := chain.NewSystem()
	led := ledger.New(lkv)
	mod := NewModule(kv, led, sys, DefaultConfig(), zerolog.Nop())
	sys.RegisterHook(mod)
	return &testEnv{t: t, sys: sys, ledger: led, mod: mod}
}

func (e *testEnv) fund(who primitives.AccountID, amount primitives.Balance) {
	e.t.Helper()
	require.NoError(e.t, e.ledger.DepositCreating(who, testAsset, amount))
}

// mintTokens creates a fresh collection with one series of quantity
// tokens, all owned by owner.
func (e *testEnv) mintTokens(owner primitives.AccountID, quantity uint32) (primitives.CollectionID, primitives.SeriesID) {
	e.t.Helper()
	collection, err := e.mod.CreateCollection(owner, []byte("test-collection"), nil)
	require.NoError(e.t, err)
	series, err := e.mod.MintSeries(owner, collection, quantity, nil, MetadataScheme{Kind: MetadataHTTPS, Path: []byte("example.com/metadata")}, nil)
	require.NoError(e.t, err)
	return collection, series
}

func (e *testEnv) free(who primitives.AccountID) primitives.Balance {
	e.t.Helper()
	free, err := e.ledger.FreeBalance(testAsset, who)
	require.NoError(e.t, err)
	return free
}

func (e *testEnv) reserved(who primitives.AccountID) primitives.Balance {
	e.t.Helper()
	reserved, err := e.ledger.ReservedBalance(testAsset, who)
	require.NoError(e.t, err)
	return reserved
}

func (e *testEnv) tokenOwner(token primitives.TokenID) primitives.AccountID {
	e.t.Helper()
	owner, ok, err := e.mod.Store().TokenOwner(token)
	require.NoError(e.t, err)
	require.True(e.t, ok)
	return owner
}

func TestCreateCollection(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)

	id, err := env.mod.CreateCollection(alice, []byte("my-collection"), nil)
	require.NoError(t, err)
	require.Equal(t, primitives.CollectionID(0), id)

	owner, ok, err := env.mod.Store().CollectionOwner(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alice, owner)
	require.True(t, env.sys.HasEvent(EventCreateCollection{CollectionID: id, Name: "my-collection", Owner: alice}))

	// ids are sequential
	next, err := env.mod.CreateCollection(alice, []byte("second"), nil)
	require.NoError(t, err)
	require.Equal(t, primitives.CollectionID(1), next)
}

func TestCreateCollectionInvalidName(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)

	_, err := env.mod.CreateCollection(alice, nil, nil)
	require.ErrorIs(t, err, ErrCollectionNameInvalid)
	_, err = env.mod.CreateCollection(alice, []byte("this-name-is-way-too-long-to-be-a-collection-name"), nil)
	require.ErrorIs(t, err, ErrCollectionNameInvalid)
	_, err = env.mod.CreateCollection(alice, []byte{0xff, 0xfe}, nil)
	require.ErrorIs(t, err, ErrCollectionNameInvalid)
}

func TestCreateCollectionInvalidRoyalties(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)

	over := &RoyaltiesSchedule{Entitlements: []Entitlement{
		{Beneficiary: alice, Fraction: primitives.PermillFromPercent(60)},
		{Beneficiary: primitives.AccountFromUint64(2), Fraction: primitives.PermillFromPercent(50)},
	}}
	_, err := env.mod.CreateCollection(alice, []byte("royal"), over)
	require.ErrorIs(t, err, ErrRoyaltiesInvalid)
}

func TestSetOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	id, err := env.mod.CreateCollection(alice, []byte("handover"), nil)
	require.NoError(t, err)

	require.ErrorIs(t, env.mod.SetOwner(bob, id, bob), ErrNoPermission)
	require.ErrorIs(t, env.mod.SetOwner(alice, id+1, bob), ErrNoCollection)

	require.NoError(t, env.mod.SetOwner(alice, id, bob))
	owner, _, err := env.mod.Store().CollectionOwner(id)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
}

func TestMintSeries(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	collection, series := env.mintTokens(alice, 3)
	require.Equal(t, primitives.SeriesID(0), series)

	issuance, ok, err := env.mod.Store().SeriesIssuance(collection, series)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(3), issuance)

	for serial := uint32(0); serial < 3; serial++ {
		token := primitives.TokenID{Collection: collection, Series: series, Serial: primitives.SerialNumber(serial)}
		require.Equal(t, alice, env.tokenOwner(token))
	}
	require.True(t, env.sys.HasEvent(EventCreateSeries{CollectionID: collection, SeriesID: series, Quantity: 3, Owner: alice}))

	metadata, ok, err := env.mod.Store().SeriesMetadata(collection, series)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MetadataHTTPS, metadata.Kind)
	require.Equal(t, []byte("example.com/metadata"), metadata.Path)

	// error precedence: collection existence, then ownership, then quantity
	_, err = env.mod.MintSeries(alice, collection+1, 1, nil, MetadataScheme{}, nil)
	require.ErrorIs(t, err, ErrNoCollection)
	_, err = env.mod.MintSeries(bob, collection, 1, nil, MetadataScheme{}, nil)
	require.ErrorIs(t, err, ErrNoPermission)
	_, err = env.mod.MintSeries(alice, collection, 0, nil, MetadataScheme{}, nil)
	require.ErrorIs(t, err, ErrNoToken)
}

func TestMintSeriesToOtherOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	collection, err := env.mod.CreateCollection(alice, []byte("gift"), nil)
	require.NoError(t, err)
	series, err := env.mod.MintSeries(alice, collection, 2, &bob, MetadataScheme{}, nil)
	require.NoError(t, err)

	token := primitives.TokenID{Collection: collection, Series: series, Serial: 0}
	require.Equal(t, bob, env.tokenOwner(token))
}

func TestMintAdditional(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	collection, series := env.mintTokens(alice, 2)

	require.NoError(t, env.mod.MintAdditional(alice, collection, series, 3, nil))

	// serials continue from the initial issuance
	token := primitives.TokenID{Collection: collection, Series: series, Serial: 4}
	require.Equal(t, alice, env.tokenOwner(token))
	issuance, _, err := env.mod.Store().SeriesIssuance(collection, series)
	require.NoError(t, err)
	require.Equal(t, uint32(5), issuance)

	require.ErrorIs(t, env.mod.MintAdditional(alice, collection, series+1, 1, nil), ErrNoToken)
	require.ErrorIs(t, env.mod.MintAdditional(bob, collection, series, 1, nil), ErrNoPermission)
	require.ErrorIs(t, env.mod.MintAdditional(alice, collection, series, 0, nil), ErrNoToken)
}

func TestTransferToken(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	collection, series := env.mintTokens(alice, 1)
	token := primitives.TokenID{Collection: collection, Series: series, Serial: 0}

	require.ErrorIs(t, env.mod.Transfer(bob, token, bob), ErrNoPermission)

	require.NoError(t, env.mod.Transfer(alice, token, bob))
	require.Equal(t, bob, env.tokenOwner(token))
	require.True(t, env.sys.HasEvent(EventTransfer{From: alice, TokenIDs: []primitives.TokenID{token}, To: bob}))
}

func TestBurn(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	collection, series := env.mintTokens(alice, 3)

	require.ErrorIs(t, env.mod.BurnBatch(alice, collection, series, nil), ErrNoToken)
	require.ErrorIs(t, env.mod.BurnBatch(alice, collection, series, []primitives.SerialNumber{0, 0}), ErrNoPermission)
	require.ErrorIs(t, env.mod.BurnBatch(bob, collection, series, []primitives.SerialNumber{0}), ErrNoPermission)

	require.NoError(t, env.mod.BurnBatch(alice, collection, series, []primitives.SerialNumber{0, 2}))
	issuance, ok, err := env.mod.Store().SeriesIssuance(collection, series)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), issuance)

	// burning the last token clears the series storage
	require.NoError(t, env.mod.Burn(alice, primitives.TokenID{Collection: collection, Series: series, Serial: 1}))
	_, ok, err = env.mod.Store().SeriesIssuance(collection, series)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegisterMarketplace(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	_, err := env.mod.RegisterMarketplace(alice, nil, primitives.PermillFromParts(primitives.PermillDenominator+1))
	require.ErrorIs(t, err, ErrRoyaltiesInvalid)

	// beneficiary defaults to the caller
	id, err := env.mod.RegisterMarketplace(alice, nil, primitives.PermillFromPercent(5))
	require.NoError(t, err)
	require.Equal(t, primitives.MarketplaceID(0), id)
	m, err := env.mod.Store().GetMarketplace(id)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, alice, m.Account)
	require.True(t, env.sys.HasEvent(EventRegisteredMarketplace{Account: alice, Entitlement: primitives.PermillFromPercent(5), ID: id}))

	id, err = env.mod.RegisterMarketplace(alice, &bob, primitives.PermillFromPercent(2))
	require.NoError(t, err)
	m, err = env.mod.Store().GetMarketplace(id)
	require.NoError(t, err)
	require.Equal(t, bob, m.Account)
}

func TestCollectedTokens(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)
	bob := primitives.AccountFromUint64(2)

	collection, series := env.mintTokens(alice, 4)
	one := primitives.TokenID{Collection: collection, Series: series, Serial: 1}
	require.NoError(t, env.mod.Transfer(alice, one, bob))

	tokens, err := env.mod.CollectedTokens(collection, alice)
	require.NoError(t, err)
	require.Equal(t, []primitives.TokenID{
		{Collection: collection, Series: series, Serial: 0},
		{Collection: collection, Series: series, Serial: 2},
		{Collection: collection, Series: series, Serial: 3},
	}, tokens)

	tokens, err = env.mod.CollectedTokens(collection, bob)
	require.NoError(t, err)
	require.Equal(t, []primitives.TokenID{one}, tokens)
}

func TestGetCollectionInfo(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)

	royalties := &RoyaltiesSchedule{Entitlements: []Entitlement{
		{Beneficiary: alice, Fraction: primitives.PermillFromPercent(10)},
	}}
	id, err := env.mod.CreateCollection(alice, []byte("info"), royalties)
	require.NoError(t, err)

	info, err := env.mod.GetCollectionInfo(id)
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, []byte("info"), info.Name)
	require.Equal(t, alice, info.Owner)
	require.Equal(t, royalties.Entitlements, info.Royalties)

	info, err = env.mod.GetCollectionInfo(id + 1)
	require.NoError(t, err)
	require.Nil(t, info)
}

func TestGetTokenInfo(t *testing.T) {
	env := newTestEnv(t)
	alice := primitives.AccountFromUint64(1)

	collection, err := env.mod.CreateCollection(alice, []byte("tok"), nil)
	require.NoError(t, err)
	seriesRoyalties := &RoyaltiesSchedule{Entitlements: []Entitlement{
		{Beneficiary: alice, Fraction: primitives.PermillFromPercent(7)},
	}}
	series, err := env.mod.MintSeries(alice, collection, 1, nil, MetadataScheme{}, seriesRoyalties)
	require.NoError(t, err)
	token := primitives.TokenID{Collection: collection, Series: series, Serial: 0}

	info, err := env.mod.GetTokenInfo(token)
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, alice, info.Owner)
	require.Equal(t, seriesRoyalties.Entitlements, info.Royalties)

	info, err = env.mod.GetTokenInfo(primitives.TokenID{Collection: collection, Series: series, Serial: 9})
	require.NoError(t, err)
	require.Nil(t, info)
}
