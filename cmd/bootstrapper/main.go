package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquiditybootstrap/internal/bootstrap"
	"liquiditybootstrap/internal/chain"
	"liquiditybootstrap/internal/config"
	"liquiditybootstrap/internal/dex"
	"liquiditybootstrap/internal/gateway"
	"liquiditybootstrap/internal/ledger"
	ledgerpg "liquiditybootstrap/internal/ledger/postgres"
	"liquiditybootstrap/internal/pricing"
)

func main() {
	root := &cobra.Command{
		Use:          "bootstrapper",
		Short:        "Post-IAO liquidity bootstrap engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Bootstrap liquidity for an agent token",
		RunE:  runBootstrap,
	}

	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().String("private-key", "", "signer private key (hex)")
	runCmd.Flags().String("factory", "", "V3 factory address")
	runCmd.Flags().String("position-manager", "", "position manager address")
	runCmd.Flags().String("reserve-token", "", "reserve token address")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the distribution ledger")
	runCmd.Flags().String("ledger-file", "./data/distributions.jsonl", "JSONL ledger path used when no Postgres DSN is set")
	runCmd.Flags().String("agent-id", "", "agent identifier")
	runCmd.Flags().String("token", "", "agent token address")
	runCmd.Flags().String("token-amount", "", "token amount in base units")
	runCmd.Flags().String("reserve-amount", "", "reserve amount in base units")
	runCmd.Flags().Uint32("fee-tier", 0, "pool fee tier (e.g. 500, 3000)")
	runCmd.Flags().String("tokens-sold", "", "tokens allocated to the offering, base units")
	runCmd.Flags().String("fallback-ratio", "1", "token-per-reserve ratio used when settlement reads fail")
	runCmd.Flags().String("slippage", "0.005", "mint slippage bound")
	runCmd.Flags().Bool("offering-finalized", false, "settlement finality flag from the offering workflow")
	runCmd.Flags().String("reserve-deposited", "", "total reserve deposited in the offering, base units")
	runCmd.Flags().String("reserve-usd-price", "", "reserve asset USD price")
	runCmd.Flags().Uint64("gas-limit", 0, "gas limit override, 0 estimates per transaction")
	runCmd.Flags().String("gas-price", "", "gas price override in wei, empty uses the node suggestion")
	runCmd.Flags().Duration("mint-deadline", 20*time.Minute, "mint transaction deadline")
	runCmd.Flags().Duration("confirm-timeout", 3*time.Minute, "transaction confirmation timeout")
	runCmd.Flags().Duration("poll-interval", 2*time.Second, "receipt poll interval")
	runCmd.Flags().Int("read-retries", 5, "maximum retry attempts for chain reads")
	runCmd.Flags().Duration("read-backoff", 500*time.Millisecond, "initial read retry backoff")
	runCmd.Flags().Bool("reconcile-positions", false, "treat an existing signer position as a mint whose record was lost")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show distribution record and pool state for an agent",
		RunE:  runStatus,
	}

	statusCmd.Flags().String("rpc", "", "chain RPC URL")
	statusCmd.Flags().String("factory", "", "V3 factory address")
	statusCmd.Flags().String("position-manager", "", "position manager address")
	statusCmd.Flags().String("reserve-token", "", "reserve token address")
	statusCmd.Flags().String("pg-dsn", "", "Postgres DSN for the distribution ledger")
	statusCmd.Flags().String("ledger-file", "./data/distributions.jsonl", "JSONL ledger path used when no Postgres DSN is set")
	statusCmd.Flags().String("agent-id", "", "agent identifier")
	statusCmd.Flags().String("token", "", "agent token address")
	statusCmd.Flags().Uint32("fee-tier", 0, "pool fee tier")
	statusCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(statusCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}

	agentID, _ := cmd.Flags().GetString("agent-id")
	if agentID == "" {
		return fmt.Errorf("agent id is required")
	}
	tokenHex, _ := cmd.Flags().GetString("token")
	token, err := parseAddress(tokenHex, "token")
	if err != nil {
		return err
	}
	tokenAmount, err := parseDecimalFlag(cmd, "token-amount")
	if err != nil {
		return err
	}
	reserveAmount, err := parseDecimalFlag(cmd, "reserve-amount")
	if err != nil {
		return err
	}
	feeTier, _ := cmd.Flags().GetUint32("fee-tier")

	factory, err := parseAddress(cfg.Factory, "factory")
	if err != nil {
		return err
	}
	positionManager, err := parseAddress(cfg.PositionManager, "position-manager")
	if err != nil {
		return err
	}
	reserveToken, err := parseAddress(cfg.ReserveToken, "reserve-token")
	if err != nil {
		return err
	}

	tokensSold, err := decimal.NewFromString(cfg.TokensSold)
	if err != nil {
		return fmt.Errorf("parse tokens-sold: %w", err)
	}
	fallbackRatio, err := decimal.NewFromString(cfg.FallbackRatio)
	if err != nil {
		return fmt.Errorf("parse fallback-ratio: %w", err)
	}
	slippage, err := decimal.NewFromString(cfg.Slippage)
	if err != nil {
		return fmt.Errorf("parse slippage: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var gasPrice *big.Int
	if cfg.GasPrice != "" {
		parsed, ok := new(big.Int).SetString(cfg.GasPrice, 10)
		if !ok {
			return fmt.Errorf("parse gas-price %q", cfg.GasPrice)
		}
		gasPrice = parsed
	}

	gw, err := gateway.NewEthGateway(gateway.EthConfig{
		Factory:         factory,
		PositionManager: positionManager,
		GasLimit:        cfg.GasLimit,
		GasPrice:        gasPrice,
		ConfirmTimeout:  cfg.ConfirmTimeout,
		PollInterval:    cfg.PollInterval,
		ReadRetries:     cfg.ReadRetries,
		ReadBackoff:     cfg.ReadBackoff,
	}, chainClient, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	settlement := pricing.StaticSettlement{Finalized: cfg.OfferingFinalized}
	if cfg.ReserveDeposited != "" {
		settlement.Deposited, err = decimal.NewFromString(cfg.ReserveDeposited)
		if err != nil {
			return fmt.Errorf("parse reserve-deposited: %w", err)
		}
	}
	feed := pricing.StaticFeed{}
	if cfg.ReserveUSDPrice != "" {
		feed.Price, err = decimal.NewFromString(cfg.ReserveUSDPrice)
		if err != nil {
			return fmt.Errorf("parse reserve-usd-price: %w", err)
		}
	}

	pricer, err := pricing.NewPricer(pricing.Config{
		TokensSold:    tokensSold,
		FallbackRatio: fallbackRatio,
	}, settlement, feed, logger)
	if err != nil {
		return err
	}

	engine, err := bootstrap.New(bootstrap.Config{
		ReserveToken:       reserveToken,
		PositionManager:    positionManager,
		Slippage:           slippage,
		MintDeadline:       cfg.MintDeadline,
		ReconcilePositions: cfg.ReconcilePositions,
	}, gw, pricer, store, logger)
	if err != nil {
		return err
	}

	result, err := engine.Bootstrap(ctx, bootstrap.Request{
		AgentID:       agentID,
		TokenAddress:  token,
		TokenAmount:   tokenAmount,
		ReserveAmount: reserveAmount,
		FeeTier:       feeTier,
	})
	if err != nil {
		return err
	}

	switch {
	case result.AlreadyDistributed:
		logger.Info("already distributed", zap.String("agent", agentID))
	case result.Reconciled:
		logger.Info("prior mint reconciled", zap.String("pool", result.PoolAddress.Hex()))
	default:
		logger.Info("bootstrap succeeded",
			zap.String("pool", result.PoolAddress.Hex()),
			zap.String("tx", result.TxHash.Hex()),
			zap.Uint64("block", result.BlockNumber))
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	agentID, _ := cmd.Flags().GetString("agent-id")
	if agentID == "" {
		return fmt.Errorf("agent id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	record, found, err := store.GetRecord(ctx, agentID)
	if err != nil {
		return fmt.Errorf("read record: %w", err)
	}
	if !found {
		fmt.Printf("agent %s: no distribution record\n", agentID)
		return nil
	}
	fmt.Printf("agent %s: liquidity_added=%v pool=%s tx=%s\n",
		agentID, record.LiquidityAdded, record.PoolAddress, record.TxHash)

	if cfg.RPCURL == "" {
		return nil
	}

	tokenHex, _ := cmd.Flags().GetString("token")
	feeTier, _ := cmd.Flags().GetUint32("fee-tier")
	if tokenHex == "" || feeTier == 0 {
		return nil
	}
	token, err := parseAddress(tokenHex, "token")
	if err != nil {
		return err
	}
	factory, err := parseAddress(cfg.Factory, "factory")
	if err != nil {
		return err
	}
	positionManager, err := parseAddress(cfg.PositionManager, "position-manager")
	if err != nil {
		return err
	}
	reserveToken, err := parseAddress(cfg.ReserveToken, "reserve-token")
	if err != nil {
		return err
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, "")
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	gw, err := gateway.NewEthGateway(gateway.EthConfig{
		Factory:         factory,
		PositionManager: positionManager,
		ReadRetries:     cfg.ReadRetries,
		ReadBackoff:     cfg.ReadBackoff,
	}, chainClient, logger)
	if err != nil {
		return err
	}

	pair, err := dex.OrderTokens(token, reserveToken)
	if err != nil {
		return err
	}
	pool, exists, err := gw.LookupPool(ctx, pair.Token0, pair.Token1, feeTier)
	if err != nil {
		return fmt.Errorf("lookup pool: %w", err)
	}
	if !exists {
		fmt.Println("pool: not created")
		return nil
	}
	poolState, err := gw.PoolState(ctx, pool)
	if err != nil {
		return fmt.Errorf("read pool state: %w", err)
	}
	fmt.Printf("pool %s: initialized=%v sqrt_price_x96=%s tick=%d\n",
		pool.Hex(), poolState.Initialized, poolState.SqrtPriceX96, poolState.Tick)
	return nil
}

func openLedger(ctx context.Context, cfg config.Config) (ledger.Ledger, func(), error) {
	if cfg.PGDSN != "" {
		store, err := ledgerpg.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return store, store.Close, nil
	}
	if cfg.LedgerFile == "" {
		return nil, nil, fmt.Errorf("either pg-dsn or ledger-file is required")
	}
	return ledger.NewJsonlLedger(cfg.LedgerFile), func() {}, nil
}

func parseAddress(value, name string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s address %q is invalid", name, value)
	}
	return common.HexToAddress(value), nil
}

func parseDecimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	value, _ := cmd.Flags().GetString(name)
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", name, err)
	}
	return parsed, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
