package deploy

import (
	"context"
	"fmt"

	"artist_ipo/internal/devchain"
	"artist_ipo/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Bind resolves every named contract of book on chain. A missing or mistyped entry fails
// with domain.ErrUnknownContract.
func Bind(ctx context.Context, chain *devchain.Chain, book domain.AddressBook) (*domain.Collaborators, error) {
	get := func(name string) (common.Address, error) {
		addr, err := book.Get(name)
		if err != nil {
			return common.Address{}, fmt.Errorf("bind %s: %w", name, err)
		}
		return addr, nil
	}

	var c domain.Collaborators
	var err error
	var addr common.Address

	if addr, err = get(domain.ContractToken); err != nil {
		return nil, err
	}
	if c.Asset, err = chain.Token(ctx, addr); err != nil {
		return nil, err
	}
	if addr, err = get(domain.ContractUSDC); err != nil {
		return nil, err
	}
	if c.Stable, err = chain.Stable(ctx, addr); err != nil {
		return nil, err
	}
	if addr, err = get(domain.ContractIPO); err != nil {
		return nil, err
	}
	if c.Vault, err = chain.SaleVault(ctx, addr); err != nil {
		return nil, err
	}
	if addr, err = get(domain.ContractSimpleAMM); err != nil {
		return nil, err
	}
	if c.Market, err = chain.AMM(ctx, addr); err != nil {
		return nil, err
	}
	if addr, err = get(domain.ContractFakeSecondary); err != nil {
		return nil, err
	}
	if c.Secondary, err = chain.FixedMarket(ctx, addr); err != nil {
		return nil, err
	}
	if addr, err = get(domain.ContractVestingVault); err != nil {
		return nil, err
	}
	if c.Lockup, err = chain.VestingVault(ctx, addr); err != nil {
		return nil, err
	}
	c.Clock = chain

	if c.Deployer, err = get(domain.AccountDeployer); err != nil {
		return nil, err
	}
	if c.Artist, err = get(domain.AccountArtist); err != nil {
		return nil, err
	}
	if c.Treasury, err = get(domain.AccountTreasury); err != nil {
		return nil, err
	}

	named := map[common.Address]bool{c.Deployer: true, c.Artist: true, c.Treasury: true}
	for _, acc := range chain.Accounts() {
		if !named[acc.Address] {
			c.Buyers = append(c.Buyers, acc.Address)
		}
	}
	return &c, nil
}
