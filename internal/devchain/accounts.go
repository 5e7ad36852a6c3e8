package devchain

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is a funded development signer.
type Account struct {
	Index   int
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// DeriveAccounts returns n deterministic signers. The same network name always yields the
// same addresses.
func DeriveAccounts(network string, n int) ([]Account, error) {
	accounts := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		seed := crypto.Keccak256([]byte(network + "/account/" + strconv.Itoa(i)))
		key, err := crypto.ToECDSA(seed)
		if err != nil {
			return nil, fmt.Errorf("derive account %d: %w", i, err)
		}
		accounts = append(accounts, Account{
			Index:   i,
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
		})
	}
	return accounts, nil
}

// Addresses returns the addresses of accounts in order.
func Addresses(accounts []Account) []common.Address {
	out := make([]common.Address, len(accounts))
	for i, a := range accounts {
		out[i] = a.Address
	}
	return out
}
