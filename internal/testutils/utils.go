package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/emberchain/ember/internal/bridge"
	"github.com/emberchain/ember/internal/primitives"
)

func RandomHash(t *testing.T) common.Hash {
	var hash common.Hash
	_, err := rand.Read(hash[:])
	require.NoError(t, err)
	return hash
}

func RandomAddress(t *testing.T) common.Address {
	var addr common.Address
	_, err := rand.Read(addr[:])
	require.NoError(t, err)
	return addr
}

func RandomAccountID(t *testing.T) primitives.AccountID {
	return RandomAddress(t)
}

func RandomAuthorityID(t *testing.T) bridge.AuthorityID {
	var key bridge.AuthorityID
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	return key
}

func RandomBytes(t *testing.T, n int) []byte {
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}
