// Package ledger implements a multi-asset balance ledger with
// reservable funds. Every mutation validates before writing and
// commits through a single batch so failures leave no partial state.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/emberchain/ember/internal/primitives"
	"github.com/emberchain/ember/pkg/db"
	"github.com/emberchain/ember/pkg/db/pebble"
)

var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

const (
	prefixAccount byte = iota + 1
	prefixIssuance
)

// AccountData is the persisted balance record for one (asset, account) pair.
type AccountData struct {
	Free     primitives.Balance
	Reserved primitives.Balance
}

// Ledger is the KVStore backed asset ledger.
type Ledger struct {
	db db.KVStore
}

func New(kv db.KVStore) *Ledger {
	return &Ledger{db: kv}
}

func accountKey(asset primitives.AssetID, who primitives.AccountID) []byte {
	key := make([]byte, 1+4+len(who))
	key[0] = prefixAccount
	binary.BigEndian.PutUint32(key[1:], uint32(asset))
	copy(key[5:], who[:])
	return key
}

func issuanceKey(asset primitives.AssetID) []byte {
	key := make([]byte, 1+4)
	key[0] = prefixIssuance
	binary.BigEndian.PutUint32(key[1:], uint32(asset))
	return key
}

func (l *Ledger) account(asset primitives.AssetID, who primitives.AccountID) (AccountData, error) {
	raw, err := l.db.Get(accountKey(asset, who))
	if errors.Is(err, pebble.ErrNotFound) {
		return AccountData{}, nil
	}
	if err != nil {
		return AccountData{}, fmt.Errorf("get account: %w", err)
	}
	var data AccountData
	if err := scale.Unmarshal(raw, &data); err != nil {
		return AccountData{}, fmt.Errorf("unmarshal account: %w", err)
	}
	return data, nil
}

func putAccount(b db.Batch, asset primitives.AssetID, who primitives.AccountID, data AccountData) error {
	raw, err := scale.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return b.Put(accountKey(asset, who), raw)
}

// FreeBalance returns the spendable balance, zero for unknown accounts.
func (l *Ledger) FreeBalance(asset primitives.AssetID, who primitives.AccountID) (primitives.Balance, error) {
	data, err := l.account(asset, who)
	if err != nil {
		return 0, err
	}
	return data.Free, nil
}

// ReservedBalance returns the locked balance, zero for unknown accounts.
func (l *Ledger) ReservedBalance(asset primitives.AssetID, who primitives.AccountID) (primitives.Balance, error) {
	data, err := l.account(asset, who)
	if err != nil {
		return 0, err
	}
	return data.Reserved, nil
}

// TotalIssuance returns the sum of all balances ever deposited for an asset.
func (l *Ledger) TotalIssuance(asset primitives.AssetID) (primitives.Balance, error) {
	raw, err := l.db.Get(issuanceKey(asset))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get issuance: %w", err)
	}
	var total primitives.Balance
	if err := scale.Unmarshal(raw, &total); err != nil {
		return 0, fmt.Errorf("unmarshal issuance: %w", err)
	}
	return total, nil
}

// DepositCreating mints amount into who's free balance, creating the
// account if it does not exist.
func (l *Ledger) DepositCreating(who primitives.AccountID, asset primitives.AssetID, amount primitives.Balance) error {
	data, err := l.account(asset, who)
	if err != nil {
		return err
	}
	total, err := l.TotalIssuance(asset)
	if err != nil {
		return err
	}
	data.Free += amount
	total += amount

	batch := l.db.NewBatch()
	defer batch.Close()
	if err := putAccount(batch, asset, who, data); err != nil {
		return err
	}
	rawTotal, err := scale.Marshal(total)
	if err != nil {
		return fmt.Errorf("marshal issuance: %w", err)
	}
	if err := batch.Put(issuanceKey(asset), rawTotal); err != nil {
		return err
	}
	return batch.Commit()
}

// Transfer moves amount of free balance from one account to another.
// Fails with ErrInsufficientBalance and no side effects if from cannot cover it.
func (l *Ledger) Transfer(asset primitives.AssetID, from, to primitives.AccountID, amount primitives.Balance) error {
	if amount == 0 || from == to {
		return nil
	}
	fromData, err := l.account(asset, from)
	if err != nil {
		return err
	}
	if fromData.Free < amount {
		return ErrInsufficientBalance
	}
	toData, err := l.account(asset, to)
	if err != nil {
		return err
	}
	fromData.Free -= amount
	toData.Free += amount

	batch := l.db.NewBatch()
	defer batch.Close()
	if err := putAccount(batch, asset, from, fromData); err != nil {
		return err
	}
	if err := putAccount(batch, asset, to, toData); err != nil {
		return err
	}
	return batch.Commit()
}

// Reserve moves amount from who's free balance into the reserved pool.
func (l *Ledger) Reserve(who primitives.AccountID, asset primitives.AssetID, amount primitives.Balance) error {
	data, err := l.account(asset, who)
	if err != nil {
		return err
	}
	if data.Free < amount {
		return ErrInsufficientBalance
	}
	data.Free -= amount
	data.Reserved += amount

	batch := l.db.NewBatch()
	defer batch.Close()
	if err := putAccount(batch, asset, who, data); err != nil {
		return err
	}
	return batch.Commit()
}

// Unreserve releases up to amount back to who's free balance and
// returns how much was actually released.
func (l *Ledger) Unreserve(who primitives.AccountID, asset primitives.AssetID, amount primitives.Balance) (primitives.Balance, error) {
	data, err := l.account(asset, who)
	if err != nil {
		return 0, err
	}
	released := amount
	if data.Reserved < released {
		released = data.Reserved
	}
	data.Reserved -= released
	data.Free += released

	batch := l.db.NewBatch()
	defer batch.Close()
	if err := putAccount(batch, asset, who, data); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, err
	}
	return released, nil
}
