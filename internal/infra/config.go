package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/pkg/quant"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Cap modes of the primary sale.
const (
	CapModePerTransaction = "per_transaction"
	CapModePerWallet      = "per_wallet"
)

// Remainder policies of the price-impact split.
const (
	RemainderReject = "reject"
	RemainderCarry  = "carry"
)

// Config holds every setting of a simulation run.
// LoadConfig starts from DefaultConfig, overlays the YAML file, then applies environment overrides.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Network struct {
		Name        string        `yaml:"name"`
		GenesisTime string        `yaml:"genesis_time"` // RFC 3339
		Accounts    int           `yaml:"accounts"`
		BlockTime   time.Duration `yaml:"block_time"`
		DumpPath    string        `yaml:"dump_path"`
	} `yaml:"network"`

	Token struct {
		Name        string          `yaml:"name"`
		Symbol      string          `yaml:"symbol"`
		TotalSupply decimal.Decimal `yaml:"total_supply"`
	} `yaml:"token"`

	Lockup struct {
		Allocation decimal.Decimal `yaml:"allocation"`
		Cliff      time.Duration   `yaml:"cliff"`
		Duration   time.Duration   `yaml:"duration"`
	} `yaml:"lockup"`

	Sale struct {
		Allocation         decimal.Decimal `yaml:"allocation"`
		UnitPrice          decimal.Decimal `yaml:"unit_price"` // settlement units per asset unit
		CapPerTransaction  decimal.Decimal `yaml:"cap_per_transaction"`
		WalletCap          decimal.Decimal `yaml:"wallet_cap"` // enforced by the vault; 0 disables
		CapMode            string          `yaml:"cap_mode"`
		Buyers             int             `yaml:"buyers"`
		Prefund            decimal.Decimal `yaml:"prefund"`
		FundingParallelism int             `yaml:"funding_parallelism"`
	} `yaml:"sale"`

	Market struct {
		FeeBps         int             `yaml:"fee_bps"`
		DeployerFaucet decimal.Decimal `yaml:"deployer_faucet"`
		SeedTokens     decimal.Decimal `yaml:"seed_tokens"`
		SeedSettlement decimal.Decimal `yaml:"seed_settlement"`
	} `yaml:"market"`

	Impact struct {
		TotalNotional decimal.Decimal `yaml:"total_notional"`
		Steps         int             `yaml:"steps"`
		Remainder     string          `yaml:"remainder"`
		BuyerIndex    int             `yaml:"buyer_index"`
	} `yaml:"impact"`

	Vesting struct {
		Advance time.Duration `yaml:"advance"`
	} `yaml:"vesting"`

	Drive struct {
		IPOPurchase    decimal.Decimal `yaml:"ipo_purchase"`
		Advance        time.Duration   `yaml:"advance"`
		SecondaryPrice decimal.Decimal `yaml:"secondary_price"`
		SeedTokens     decimal.Decimal `yaml:"seed_tokens"`
		SeedSettlement decimal.Decimal `yaml:"seed_settlement"`
		Buy            decimal.Decimal `yaml:"buy"`
		Sell           decimal.Decimal `yaml:"sell"`
	} `yaml:"drive"`

	Storage struct {
		Path          string `yaml:"path"`
		AddressesFile string `yaml:"addresses_file"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns the reference scenario: 1M supply, 400k locked, 600k sold at $0.15
// in 50k installments, $50k of secondary demand in 10 steps.
func DefaultConfig() *Config {
	var c Config
	c.App.Name = "artist-ipo"
	c.App.Version = "0.1.0"

	c.Network.Name = "devnet"
	c.Network.GenesisTime = "2025-01-01T00:00:00Z"
	c.Network.Accounts = 20
	c.Network.BlockTime = time.Second
	c.Network.DumpPath = "panic_dump.json"

	c.Token.Name = "Weasel Demo Artist"
	c.Token.Symbol = "WEAZ"
	c.Token.TotalSupply = decimal.NewFromInt(1_000_000)

	c.Lockup.Allocation = decimal.NewFromInt(400_000)
	c.Lockup.Cliff = 30 * 24 * time.Hour
	c.Lockup.Duration = 180 * 24 * time.Hour

	c.Sale.Allocation = decimal.NewFromInt(600_000)
	c.Sale.UnitPrice = decimal.RequireFromString("0.15")
	c.Sale.CapPerTransaction = decimal.NewFromInt(50_000)
	c.Sale.WalletCap = decimal.NewFromInt(50_000)
	c.Sale.CapMode = CapModePerTransaction
	c.Sale.Buyers = 12
	c.Sale.Prefund = decimal.NewFromInt(10_000)
	c.Sale.FundingParallelism = 4

	c.Market.FeeBps = 30
	c.Market.DeployerFaucet = decimal.NewFromInt(6_000_000)
	c.Market.SeedTokens = decimal.NewFromInt(50_000)
	c.Market.SeedSettlement = decimal.NewFromInt(7_500)

	c.Impact.TotalNotional = decimal.NewFromInt(50_000)
	c.Impact.Steps = 10
	c.Impact.Remainder = RemainderReject

	c.Vesting.Advance = 40 * 24 * time.Hour

	c.Drive.IPOPurchase = decimal.NewFromInt(2_000)
	c.Drive.Advance = 40 * 24 * time.Hour
	c.Drive.SecondaryPrice = decimal.RequireFromString("0.15")
	c.Drive.SeedTokens = decimal.NewFromInt(5_000)
	c.Drive.SeedSettlement = decimal.NewFromInt(1_000)
	c.Drive.Buy = decimal.NewFromInt(1_000)
	c.Drive.Sell = decimal.NewFromInt(500)

	c.Storage.Path = ""
	c.Storage.AddressesFile = "addresses.json"

	c.Logging.Level = "info"
	c.Logging.File = "logs/app.log"
	return &c
}

// LoadConfig reads and validates the configuration. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Genesis returns the parsed genesis timestamp.
func (c *Config) Genesis() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Network.GenesisTime)
	if err != nil {
		return time.Time{}, &domain.ConfigError{Field: "network.genesis_time", Err: err}
	}
	return t, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if _, err := c.Genesis(); err != nil {
		return err
	}
	if c.Network.Accounts < c.Sale.Buyers+3 {
		return fieldErr("network.accounts", "need %d accounts for deployer, artist, treasury and %d buyers, have %d",
			c.Sale.Buyers+3, c.Sale.Buyers, c.Network.Accounts)
	}
	if c.Network.BlockTime <= 0 {
		return fieldErr("network.block_time", "must be positive")
	}

	// Amounts must be representable in their unit.
	for field, d := range map[string]decimal.Decimal{
		"token.total_supply":        c.Token.TotalSupply,
		"lockup.allocation":         c.Lockup.Allocation,
		"sale.allocation":           c.Sale.Allocation,
		"sale.cap_per_transaction":  c.Sale.CapPerTransaction,
		"sale.wallet_cap":           c.Sale.WalletCap,
		"market.seed_tokens":        c.Market.SeedTokens,
		"drive.ipo_purchase":        c.Drive.IPOPurchase,
		"drive.seed_tokens":         c.Drive.SeedTokens,
		"drive.buy":                 c.Drive.Buy,
		"drive.sell":                c.Drive.Sell,
	} {
		if _, err := quant.WeiFromDecimal(d); err != nil {
			return &domain.ConfigError{Field: field, Err: err}
		}
	}
	for field, d := range map[string]decimal.Decimal{
		"sale.unit_price":        c.Sale.UnitPrice,
		"sale.prefund":           c.Sale.Prefund,
		"market.deployer_faucet": c.Market.DeployerFaucet,
		"market.seed_settlement": c.Market.SeedSettlement,
		"impact.total_notional":  c.Impact.TotalNotional,
		"drive.secondary_price":  c.Drive.SecondaryPrice,
		"drive.seed_settlement":  c.Drive.SeedSettlement,
	} {
		m, err := quant.MicrosFromDecimal(d)
		if err != nil {
			return &domain.ConfigError{Field: field, Err: err}
		}
		if m < 0 {
			return fieldErr(field, "must not be negative")
		}
	}

	if !c.Sale.UnitPrice.IsPositive() {
		return fieldErr("sale.unit_price", "must be positive")
	}
	if !c.Sale.CapPerTransaction.IsPositive() {
		return fieldErr("sale.cap_per_transaction", "must be positive")
	}
	if c.Lockup.Allocation.Add(c.Sale.Allocation).GreaterThan(c.Token.TotalSupply) {
		return fieldErr("token.total_supply", "lockup + sale allocations (%s) exceed total supply %s",
			c.Lockup.Allocation.Add(c.Sale.Allocation), c.Token.TotalSupply)
	}
	if c.Market.SeedTokens.GreaterThan(c.Sale.Allocation) {
		return fieldErr("market.seed_tokens", "exceeds sale allocation")
	}
	if c.Sale.CapMode != CapModePerTransaction && c.Sale.CapMode != CapModePerWallet {
		return fieldErr("sale.cap_mode", "unknown mode %q", c.Sale.CapMode)
	}
	if c.Sale.Buyers < 1 {
		return fieldErr("sale.buyers", "at least one buyer is required")
	}
	if c.Sale.FundingParallelism < 1 {
		return fieldErr("sale.funding_parallelism", "must be at least 1")
	}
	if c.Market.FeeBps < 0 || c.Market.FeeBps >= 10_000 {
		return fieldErr("market.fee_bps", "must be in [0, 10000)")
	}
	if c.Lockup.Cliff < 0 || c.Lockup.Duration <= 0 || c.Lockup.Cliff > c.Lockup.Duration {
		return fieldErr("lockup", "need 0 <= cliff <= duration and duration > 0")
	}
	if c.Impact.Steps < 1 {
		return fieldErr("impact.steps", "must be positive")
	}
	if c.Impact.Remainder != RemainderReject && c.Impact.Remainder != RemainderCarry {
		return fieldErr("impact.remainder", "unknown policy %q", c.Impact.Remainder)
	}
	if c.Impact.BuyerIndex < 0 || c.Impact.BuyerIndex >= c.Sale.Buyers {
		return fieldErr("impact.buyer_index", "must index the buyer pool")
	}
	if c.Vesting.Advance < 0 || c.Drive.Advance < 0 {
		return fieldErr("vesting.advance", "must not be negative")
	}

	return nil
}

func fieldErr(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if level := os.Getenv("ARTIST_IPO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv("ARTIST_IPO_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if mode := os.Getenv("ARTIST_IPO_CAP_MODE"); mode != "" {
		cfg.Sale.CapMode = mode
	}
	if steps := os.Getenv("ARTIST_IPO_IMPACT_STEPS"); steps != "" {
		n, err := strconv.Atoi(steps)
		if err != nil {
			return &domain.ConfigError{Field: "ARTIST_IPO_IMPACT_STEPS", Err: errors.Join(errors.New("not an integer"), err)}
		}
		cfg.Impact.Steps = n
	}
	return nil
}
