package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Logical names of the deployed collaborators.
const (
	ContractToken         = "token"
	ContractUSDC          = "usdc"
	ContractIPO           = "ipo"
	ContractVestingVault  = "vestingVault"
	ContractSimpleAMM     = "simpleAmm"
	ContractFakeSecondary = "fakeSecondary"
	AccountDeployer       = "deployer"
	AccountArtist         = "artist"
	AccountTreasury       = "treasury"
)

// AddressBook maps logical collaborator names to deployed identities.
// It is built once after deployment and never mutated; pass it by value.
type AddressBook struct {
	entries map[string]common.Address
}

// NewAddressBook copies entries into a new book.
func NewAddressBook(entries map[string]common.Address) AddressBook {
	m := make(map[string]common.Address, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return AddressBook{entries: m}
}

// Get resolves a logical name.
func (b AddressBook) Get(name string) (common.Address, error) {
	addr, ok := b.entries[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownContract, name)
	}
	return addr, nil
}

// Names returns the logical names in sorted order.
func (b AddressBook) Names() []string {
	names := make([]string, 0, len(b.entries))
	for k := range b.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Entries returns a copy of the mapping.
func (b AddressBook) Entries() map[string]common.Address {
	m := make(map[string]common.Address, len(b.entries))
	for k, v := range b.entries {
		m[k] = v
	}
	return m
}

// Len returns the number of entries.
func (b AddressBook) Len() int { return len(b.entries) }

// MarshalJSON renders the book as a flat name -> hex address object.
func (b AddressBook) MarshalJSON() ([]byte, error) {
	return marshalAddresses(b.entries)
}

// UnmarshalJSON parses a flat name -> hex address object.
func (b *AddressBook) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entries := make(map[string]common.Address, len(raw))
	for name, hex := range raw {
		if !common.IsHexAddress(hex) {
			return fmt.Errorf("address book entry %q: invalid address %q", name, hex)
		}
		entries[name] = common.HexToAddress(hex)
	}
	b.entries = entries
	return nil
}

func marshalAddresses(entries map[string]common.Address) ([]byte, error) {
	raw := make(map[string]string, len(entries))
	for name, addr := range entries {
		raw[name] = addr.Hex()
	}
	return json.MarshalIndent(raw, "", "  ")
}
