// Package deploy stands up the contract set of a run and binds collaborators from an
// address book.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"artist_ipo/internal/devchain"
	"artist_ipo/internal/domain"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// Params describe the deployment.
type Params struct {
	TokenName   string
	TokenSymbol string
	TotalSupply quant.Wei

	LockupAllocation quant.Wei
	Cliff            time.Duration
	Duration         time.Duration

	SaleAllocation quant.Wei
	UnitPriceMicro quant.Micros
	WalletCap      quant.Wei

	FeeBps         int
	DeployerFaucet quant.Micros
	SeedTokens     quant.Wei
	SeedSettlement quant.Micros
}

// Deploy runs the deployment sequence with accounts 0, 1 and 2 as deployer, artist and
// treasury:
//
//  1. settlement coin and asset token
//  2. vesting vault for the artist, funded with the lockup allocation
//  3. sale vault paying the treasury, funded with the sale allocation
//  4. constant-product and fixed-price markets
//  5. seed the constant-product market with tokens bought from the sale vault
func Deploy(ctx context.Context, chain *devchain.Chain, p Params, logger *slog.Logger) (domain.AddressBook, error) {
	accounts := chain.Accounts()
	if len(accounts) < 3 {
		return domain.AddressBook{}, fmt.Errorf("deploy: need deployer, artist and treasury accounts, have %d", len(accounts))
	}
	deployer, artist, treasury := accounts[0].Address, accounts[1].Address, accounts[2].Address
	logger.Info("deploying",
		slog.String("deployer", deployer.Hex()),
		slog.String("artist", artist.Hex()),
		slog.String("treasury", treasury.Hex()))

	usdc, err := chain.DeployStable(ctx, deployer)
	if err != nil {
		return domain.AddressBook{}, err
	}
	token, err := chain.DeployToken(ctx, deployer, p.TokenName, p.TokenSymbol, p.TotalSupply)
	if err != nil {
		return domain.AddressBook{}, err
	}

	vault, err := chain.DeployVestingVault(ctx, deployer, token, artist, p.Cliff, p.Duration)
	if err != nil {
		return domain.AddressBook{}, err
	}
	if err := token.Transfer(ctx, deployer, vault.Address(), p.LockupAllocation); err != nil {
		return domain.AddressBook{}, fmt.Errorf("fund vesting vault: %w", err)
	}
	logger.Info("vesting vault funded", slog.String("amount", p.LockupAllocation.Format()))

	ipo, err := chain.DeploySaleVault(ctx, deployer, devchain.SaleVaultParams{
		Token:          token,
		Stable:         usdc,
		Treasury:       treasury,
		UnitPriceMicro: p.UnitPriceMicro,
		WalletCap:      p.WalletCap,
	})
	if err != nil {
		return domain.AddressBook{}, err
	}
	if err := token.Transfer(ctx, deployer, ipo.Address(), p.SaleAllocation); err != nil {
		return domain.AddressBook{}, fmt.Errorf("fund sale vault: %w", err)
	}
	logger.Info("sale vault funded", slog.String("amount", p.SaleAllocation.Format()))

	amm, err := chain.DeployAMM(ctx, deployer, token, usdc, p.FeeBps)
	if err != nil {
		return domain.AddressBook{}, err
	}
	secondary, err := chain.DeployFixedMarket(ctx, deployer, token, usdc)
	if err != nil {
		return domain.AddressBook{}, err
	}

	if err := seedMarket(ctx, usdc, token, ipo, amm, deployer, p); err != nil {
		return domain.AddressBook{}, err
	}
	logger.Info("market seeded",
		slog.String("tokens", p.SeedTokens.Format()),
		slog.String("settlement", p.SeedSettlement.USDString()))

	return domain.NewAddressBook(map[string]common.Address{
		domain.ContractToken:         token.Address(),
		domain.ContractUSDC:          usdc.Address(),
		domain.ContractIPO:           ipo.Address(),
		domain.ContractVestingVault:  vault.Address(),
		domain.ContractSimpleAMM:     amm.Address(),
		domain.ContractFakeSecondary: secondary.Address(),
		domain.AccountDeployer:       deployer,
		domain.AccountArtist:         artist,
		domain.AccountTreasury:       treasury,
	}), nil
}

// seedMarket buys the seed tokens from the sale vault and adds them to the market with the
// seed settlement.
func seedMarket(ctx context.Context, usdc *devchain.Stable, token *devchain.Token, ipo *devchain.SaleVault, amm *devchain.AMM, deployer common.Address, p Params) error {
	if p.DeployerFaucet > 0 {
		if err := usdc.Faucet(ctx, deployer, p.DeployerFaucet); err != nil {
			return fmt.Errorf("faucet deployer: %w", err)
		}
	}
	if p.SeedTokens.IsZero() {
		return nil
	}

	seedCost, err := quant.ToSettlementCost(p.SeedTokens, p.UnitPriceMicro)
	if err != nil {
		return fmt.Errorf("seed cost: %w", err)
	}
	if err := usdc.Approve(ctx, deployer, ipo.Address(), seedCost); err != nil {
		return fmt.Errorf("approve seed purchase: %w", err)
	}
	if err := ipo.Buy(ctx, deployer, p.SeedTokens); err != nil {
		return fmt.Errorf("buy seed tokens: %w", err)
	}

	if err := token.Approve(ctx, deployer, amm.Address(), p.SeedTokens); err != nil {
		return fmt.Errorf("approve seed tokens: %w", err)
	}
	if err := usdc.Approve(ctx, deployer, amm.Address(), p.SeedSettlement); err != nil {
		return fmt.Errorf("approve seed settlement: %w", err)
	}
	if err := amm.AddLiquidity(ctx, deployer, p.SeedTokens, p.SeedSettlement); err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}
	return nil
}
