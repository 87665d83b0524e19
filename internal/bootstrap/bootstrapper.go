package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquiditybootstrap/internal/allowance"
	"liquiditybootstrap/internal/dex"
	"liquiditybootstrap/internal/gateway"
	"liquiditybootstrap/internal/ledger"
	"liquiditybootstrap/internal/model"
	"liquiditybootstrap/internal/pricing"
)

// state tracks attempt progress for logging. Every transition is re-derived
// from live reads on a re-run, so states never persist.
type state string

const (
	stateIdle            state = "idle"
	stateCheckedLedger   state = "checked_ledger"
	statePricedQuote     state = "priced_quote"
	statePoolResolved    state = "pool_resolved"
	statePoolInitialized state = "pool_initialized"
	stateApproved        state = "approved"
	stateMinted          state = "minted"
	stateRecorded        state = "recorded"
)

var one = decimal.New(1, 0)

// Request asks for a single liquidity bootstrap. Amounts are in base units
// of the respective token and must be positive.
type Request struct {
	AgentID       string
	TokenAddress  common.Address
	TokenAmount   decimal.Decimal
	ReserveAmount decimal.Decimal
	FeeTier       uint32
}

// Result reports a completed bootstrap. AlreadyDistributed marks the
// idempotent no-op path; Reconciled marks a mint recovered from on-chain
// state after a crash lost the success record.
type Result struct {
	AlreadyDistributed bool
	Reconciled         bool
	PoolAddress        common.Address
	TxHash             common.Hash
	TokenAmount        *big.Int
	ReserveAmount      *big.Int
	BlockNumber        uint64
}

// QuoteSource produces exchange-rate quotes; satisfied by pricing.Pricer.
type QuoteSource interface {
	QuoteFor(ctx context.Context, offeringID string) (pricing.Quote, error)
}

// Config fixes the deployment-level parameters of the bootstrapper.
type Config struct {
	// ReserveToken is the reserve asset every pool pairs against.
	ReserveToken common.Address
	// PositionManager is the approval spender and mint target.
	PositionManager common.Address
	// Slippage bounds the minimum acceptable minted amounts. Defaults to
	// 0.5%.
	Slippage decimal.Decimal
	// MintDeadline bounds how long a submitted mint stays valid.
	// Defaults to 20 minutes.
	MintDeadline time.Duration
	// ReconcilePositions makes a re-run treat an existing position held
	// by the signer, together with an initialized pool, as a mint whose
	// success record was lost, and record it instead of minting again.
	// Requires a signer dedicated to bootstrap mints.
	ReconcilePositions bool
}

// Bootstrapper drives one liquidity bootstrap end to end: ledger gate,
// settlement quote, pool resolution and initialization, approvals, mint,
// and the success record. One attempt is strictly sequential; every chain
// write is confirmed before the next step.
type Bootstrapper struct {
	cfg    Config
	gw     gateway.Gateway
	quotes QuoteSource
	store  ledger.Ledger
	allow  *allowance.Manager
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, gw gateway.Gateway, quotes QuoteSource, store ledger.Ledger, logger *zap.Logger) (*Bootstrapper, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if quotes == nil {
		return nil, fmt.Errorf("quote source is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if cfg.ReserveToken == (common.Address{}) {
		return nil, fmt.Errorf("reserve token address is required")
	}
	if cfg.PositionManager == (common.Address{}) {
		return nil, fmt.Errorf("position manager address is required")
	}
	if cfg.Slippage.Sign() == 0 {
		cfg.Slippage = decimal.RequireFromString("0.005")
	}
	if cfg.Slippage.Sign() < 0 || cfg.Slippage.Cmp(one) >= 0 {
		return nil, fmt.Errorf("slippage must be in [0, 1), got %s", cfg.Slippage)
	}
	if cfg.MintDeadline <= 0 {
		cfg.MintDeadline = 20 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{
		cfg:    cfg,
		gw:     gw,
		quotes: quotes,
		store:  store,
		allow:  allowance.NewManager(gw, logger),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Bootstrap runs one attempt. The returned error, when non-nil, is always a
// *Failure carrying the taxonomy kind and whether any transaction was
// submitted. A prior successful distribution returns a no-op Result with
// AlreadyDistributed set and no error.
func (b *Bootstrapper) Bootstrap(ctx context.Context, req Request) (Result, error) {
	log := b.logger.With(
		zap.String("agent", req.AgentID),
		zap.String("token", req.TokenAddress.Hex()),
	)

	if err := validateRequest(req, b.cfg.ReserveToken); err != nil {
		return Result{}, &Failure{Kind: KindUnknownFailure, Message: "invalid request", Err: err}
	}

	current := stateIdle
	advance := func(next state) {
		current = next
		log.Debug("bootstrap state", zap.String("state", string(current)))
	}

	// Idle -> CheckedLedger: the idempotency gate.
	record, found, err := b.store.GetRecord(ctx, req.AgentID)
	if err != nil {
		return Result{}, &Failure{Kind: KindUnknownFailure, Message: "read distribution record", Err: err}
	}
	if found && record.LiquidityAdded {
		log.Info("liquidity already distributed, nothing to do",
			zap.String("pool", record.PoolAddress),
			zap.String("tx", record.TxHash))
		return Result{
			AlreadyDistributed: true,
			PoolAddress:        common.HexToAddress(record.PoolAddress),
			TxHash:             common.HexToHash(record.TxHash),
		}, nil
	}
	advance(stateCheckedLedger)

	// -> PricedQuote.
	quote, err := b.quotes.QuoteFor(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, pricing.ErrSettlementNotFinal) {
			return Result{}, &Failure{Kind: KindSettlementNotFinal, Message: "offering not finalized", Err: err}
		}
		// Pre-flight read failure: nothing submitted, safe to re-run.
		return Result{}, &Failure{Kind: KindUnknownFailure, Message: "price quote", Retryable: true, Err: err}
	}
	advance(statePricedQuote)
	log.Info("exchange rate quoted",
		zap.String("token_per_reserve", quote.TokenPerReserveRatio.String()),
		zap.String("source", string(quote.Source)))

	tokenAmount := req.TokenAmount.BigInt()
	reserveAmount := req.ReserveAmount.BigInt()

	// Balance pre-flight: no transaction ever leaves the engine when the
	// signer cannot cover the requested amounts.
	if err := b.checkBalances(ctx, req.TokenAddress, tokenAmount, reserveAmount); err != nil {
		return Result{}, err
	}

	pair, err := dex.OrderTokens(req.TokenAddress, b.cfg.ReserveToken)
	if err != nil {
		return Result{}, &Failure{Kind: KindUnknownFailure, Message: "order tokens", Err: err}
	}

	// -> PoolResolved.
	pool, submitted, err := b.resolvePool(ctx, log, pair, req.FeeTier)
	if err != nil {
		return Result{}, b.classify(err, "resolve pool", submitted)
	}
	advance(statePoolResolved)

	// -> PoolInitialized. An already-priced pool is authoritative; the
	// engine never re-initializes or second-guesses it.
	_, initSubmitted, err := b.ensureInitialized(ctx, log, pool, pair, quote)
	submitted = submitted || initSubmitted
	if err != nil {
		return Result{}, b.classify(err, "initialize pool", submitted)
	}
	advance(statePoolInitialized)

	if b.cfg.ReconcilePositions {
		reconciled, err := b.reconcileExistingPosition(ctx, log, req, pair, pool, found)
		if err != nil {
			return Result{}, b.classify(err, "reconcile positions", submitted)
		}
		if reconciled {
			return Result{Reconciled: true, PoolAddress: pool}, nil
		}
	}

	// -> Approved: both sides against the position manager.
	approveSubmitted, err := b.allow.EnsureAllowance(ctx, req.TokenAddress, b.cfg.PositionManager, tokenAmount)
	submitted = submitted || approveSubmitted
	if err != nil {
		return Result{}, b.classify(err, "approve token", submitted)
	}
	approveSubmitted, err = b.allow.EnsureAllowance(ctx, b.cfg.ReserveToken, b.cfg.PositionManager, reserveAmount)
	submitted = submitted || approveSubmitted
	if err != nil {
		return Result{}, b.classify(err, "approve reserve", submitted)
	}
	advance(stateApproved)

	// -> Minted. The tick is re-read here: price can move between pool
	// resolution and submission.
	mint, err := b.mintPosition(ctx, log, req, pair, pool, quote, tokenAmount, reserveAmount, submitted)
	if err != nil {
		var failure *Failure
		if errors.As(err, &failure) {
			return Result{}, failure
		}
		return Result{}, b.classify(err, "mint position", submitted)
	}
	advance(stateMinted)

	// -> Recorded: the only point where success becomes externally
	// visible.
	record = model.DistributionRecord{
		AgentID:        req.AgentID,
		TokenAddress:   req.TokenAddress.Hex(),
		LiquidityAdded: true,
		PoolAddress:    pool.Hex(),
		TxHash:         mint.TxHash.Hex(),
		TokenAmount:    tokenAmount.String(),
		ReserveAmount:  reserveAmount.String(),
	}
	if err := b.store.SetLiquidityAdded(ctx, record); err != nil {
		return Result{}, &Failure{
			Kind:      KindUnknownFailure,
			Message:   fmt.Sprintf("mint %s confirmed but success record not persisted", mint.TxHash.Hex()),
			Submitted: true,
			Err:       err,
		}
	}
	advance(stateRecorded)

	log.Info("liquidity bootstrap complete",
		zap.String("state", string(current)),
		zap.String("pool", pool.Hex()),
		zap.String("tx", mint.TxHash.Hex()),
		zap.Uint64("block", mint.BlockNumber))

	return Result{
		PoolAddress:   pool,
		TxHash:        mint.TxHash,
		TokenAmount:   tokenAmount,
		ReserveAmount: reserveAmount,
		BlockNumber:   mint.BlockNumber,
	}, nil
}

func validateRequest(req Request, reserve common.Address) error {
	if req.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}
	if req.TokenAddress == (common.Address{}) {
		return fmt.Errorf("token address is required")
	}
	if req.TokenAddress == reserve {
		return fmt.Errorf("token address equals the reserve token")
	}
	if req.TokenAmount.Sign() <= 0 {
		return fmt.Errorf("token amount must be positive, got %s", req.TokenAmount)
	}
	if req.ReserveAmount.Sign() <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %s", req.ReserveAmount)
	}
	if req.FeeTier == 0 {
		return fmt.Errorf("fee tier is required")
	}
	return nil
}

func (b *Bootstrapper) checkBalances(ctx context.Context, token common.Address, tokenAmount, reserveAmount *big.Int) *Failure {
	sender := b.gw.Sender()

	tokenBalance, err := b.gw.BalanceOf(ctx, token, sender)
	if err != nil {
		return &Failure{Kind: KindUnknownFailure, Message: "read token balance", Err: err}
	}
	if tokenBalance.Cmp(tokenAmount) < 0 {
		return insufficientBalance("token", tokenAmount, tokenBalance)
	}

	reserveBalance, err := b.gw.BalanceOf(ctx, b.cfg.ReserveToken, sender)
	if err != nil {
		return &Failure{Kind: KindUnknownFailure, Message: "read reserve balance", Err: err}
	}
	if reserveBalance.Cmp(reserveAmount) < 0 {
		return insufficientBalance("reserve", reserveAmount, reserveBalance)
	}

	return nil
}

// resolvePool looks the pool up and creates it when absent. The bool return
// reports whether a creation transaction was submitted.
func (b *Bootstrapper) resolvePool(ctx context.Context, log *zap.Logger, pair dex.TokenPair, fee uint32) (common.Address, bool, error) {
	pool, exists, err := b.gw.LookupPool(ctx, pair.Token0, pair.Token1, fee)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("lookup pool: %w", err)
	}
	if exists {
		log.Info("pool exists", zap.String("pool", pool.Hex()))
		return pool, false, nil
	}

	txHash, err := b.gw.CreatePool(ctx, pair.Token0, pair.Token1, fee)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("create pool: %w", err)
	}
	log.Info("pool creation submitted", zap.String("tx", txHash.Hex()))
	if _, err := b.gw.WaitMined(ctx, txHash); err != nil {
		return common.Address{}, true, fmt.Errorf("confirm pool creation: %w", err)
	}

	pool, exists, err = b.gw.LookupPool(ctx, pair.Token0, pair.Token1, fee)
	if err != nil {
		return common.Address{}, true, fmt.Errorf("re-lookup pool: %w", err)
	}
	if !exists {
		return common.Address{}, true, fmt.Errorf("pool missing after confirmed creation %s", txHash.Hex())
	}
	log.Info("pool created", zap.String("pool", pool.Hex()))
	return pool, true, nil
}

// ensureInitialized reads the pool price and initializes it from the quote
// when sqrtPriceX96 is still zero.
func (b *Bootstrapper) ensureInitialized(ctx context.Context, log *zap.Logger, pool common.Address, pair dex.TokenPair, quote pricing.Quote) (gateway.PoolState, bool, error) {
	poolState, err := b.gw.PoolState(ctx, pool)
	if err != nil {
		return gateway.PoolState{}, false, fmt.Errorf("read pool state: %w", err)
	}
	if poolState.Initialized {
		log.Info("pool already initialized",
			zap.String("sqrt_price_x96", poolState.SqrtPriceX96.String()),
			zap.Int32("tick", poolState.Tick))
		return poolState, false, nil
	}

	price := poolOrientedPrice(quote.TokenPerReserveRatio, pair, b.cfg.ReserveToken)
	sqrtPrice, err := dex.PriceToSqrtX96(price)
	if err != nil {
		return gateway.PoolState{}, false, fmt.Errorf("encode initial price: %w", err)
	}

	txHash, err := b.gw.InitializePool(ctx, pool, sqrtPrice)
	if err != nil {
		return gateway.PoolState{}, false, fmt.Errorf("initialize pool: %w", err)
	}
	log.Info("pool initialize submitted",
		zap.String("tx", txHash.Hex()),
		zap.String("sqrt_price_x96", sqrtPrice.String()))
	if _, err := b.gw.WaitMined(ctx, txHash); err != nil {
		return gateway.PoolState{}, true, fmt.Errorf("confirm initialize: %w", err)
	}

	poolState, err = b.gw.PoolState(ctx, pool)
	if err != nil {
		return gateway.PoolState{}, true, fmt.Errorf("re-read pool state: %w", err)
	}
	if !poolState.Initialized {
		return gateway.PoolState{}, true, fmt.Errorf("pool uninitialized after confirmed initialize %s", txHash.Hex())
	}
	return poolState, true, nil
}

// reconcileExistingPosition handles the crash window between a confirmed
// mint and the success record: a signer dedicated to bootstrap mints holding
// a position on this exact pair and fee tier means a prior attempt got
// through. The record is completed from what is known rather than minting a
// second position. Positions the signer holds in other pools never count.
func (b *Bootstrapper) reconcileExistingPosition(ctx context.Context, log *zap.Logger, req Request, pair dex.TokenPair, pool common.Address, recordExists bool) (bool, error) {
	if !recordExists {
		return false, nil
	}
	held, err := b.gw.HasPoolPosition(ctx, b.gw.Sender(), pair.Token0, pair.Token1, req.FeeTier)
	if err != nil {
		return false, fmt.Errorf("read signer positions: %w", err)
	}
	if !held {
		return false, nil
	}

	log.Warn("existing position found for signer in this pool, recording prior mint instead of re-minting",
		zap.String("pool", pool.Hex()))

	record := model.DistributionRecord{
		AgentID:        req.AgentID,
		TokenAddress:   req.TokenAddress.Hex(),
		LiquidityAdded: true,
		PoolAddress:    pool.Hex(),
	}
	if err := b.store.SetLiquidityAdded(ctx, record); err != nil {
		return false, fmt.Errorf("persist reconciled record: %w", err)
	}
	return true, nil
}

func (b *Bootstrapper) mintPosition(ctx context.Context, log *zap.Logger, req Request, pair dex.TokenPair, pool common.Address, quote pricing.Quote, tokenAmount, reserveAmount *big.Int, submitted bool) (gateway.MintResult, error) {
	// Fresh read: the tick used for the range must be the live one.
	poolState, err := b.gw.PoolState(ctx, pool)
	if err != nil {
		return gateway.MintResult{}, fmt.Errorf("re-read pool state: %w", err)
	}

	spacing, err := b.gw.TickSpacing(ctx, pool)
	if err != nil {
		return gateway.MintResult{}, fmt.Errorf("read tick spacing: %w", err)
	}

	tickRange, err := b.computeRange(quote, pair, poolState, spacing)
	if err != nil {
		return gateway.MintResult{}, &Failure{Kind: KindInvalidTickRange, Message: "tick range computation", Submitted: submitted, Err: err}
	}
	if err := tickRange.Validate(poolState.Tick); err != nil {
		return gateway.MintResult{}, &Failure{Kind: KindInvalidTickRange, Message: "tick range validation", Submitted: submitted, Err: err}
	}

	amount0, amount1 := tokenAmount, reserveAmount
	if pair.Token0 == b.cfg.ReserveToken {
		amount0, amount1 = reserveAmount, tokenAmount
	}

	deadline := b.now().Add(b.cfg.MintDeadline).Unix()
	params := gateway.MintParams{
		Token0:         pair.Token0,
		Token1:         pair.Token1,
		Fee:            req.FeeTier,
		TickLower:      tickRange.Lower,
		TickUpper:      tickRange.Upper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     applySlippage(amount0, b.cfg.Slippage),
		Amount1Min:     applySlippage(amount1, b.cfg.Slippage),
		Recipient:      b.gw.Sender(),
		Deadline:       big.NewInt(deadline),
	}

	log.Info("minting position",
		zap.String("pool", pool.Hex()),
		zap.Int32("tick_lower", tickRange.Lower),
		zap.Int32("tick_upper", tickRange.Upper),
		zap.Int32("current_tick", poolState.Tick),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()))

	return b.gw.MintPosition(ctx, params)
}

// computeRange picks the band strategy: settlement-sourced quotes give a
// reference band; fallback quotes carry too little information to band on
// and get the symmetric band around the live tick instead.
func (b *Bootstrapper) computeRange(quote pricing.Quote, pair dex.TokenPair, poolState gateway.PoolState, spacing int32) (dex.TickRange, error) {
	if quote.Source == pricing.SourceSettlement {
		price := poolOrientedPrice(quote.TokenPerReserveRatio, pair, b.cfg.ReserveToken)
		return dex.RangeFromReferencePrice(price, poolState.Tick, spacing)
	}
	return dex.RangeAroundTick(poolState.Tick, spacing)
}

// poolOrientedPrice converts the token-per-reserve ratio into the pool's
// token1-per-token0 price, which depends on how the pair sorted.
func poolOrientedPrice(tokenPerReserve decimal.Decimal, pair dex.TokenPair, reserve common.Address) decimal.Decimal {
	if pair.ReserveIsToken1(reserve) {
		// token0 is the project token: price is reserve per token.
		return one.DivRound(tokenPerReserve, 40)
	}
	return tokenPerReserve
}

func applySlippage(amount *big.Int, slippage decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(amount, 0).Mul(one.Sub(slippage)).BigInt()
}

// classify maps collaborator errors onto the failure taxonomy.
func (b *Bootstrapper) classify(err error, message string, submitted bool) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	var revert *gateway.RevertError
	switch {
	case errors.Is(err, allowance.ErrApproveRejected):
		return &Failure{Kind: KindAllowanceRejected, Message: message, Submitted: true, Err: err}
	case errors.Is(err, gateway.ErrConfirmationTimeout):
		return &Failure{Kind: KindConfirmationTimeout, Message: message, Retryable: true, Submitted: true, Err: err}
	case errors.As(err, &revert):
		return &Failure{Kind: KindChainRevert, Message: message, Submitted: true, Err: err}
	default:
		return &Failure{Kind: KindUnknownFailure, Message: message, Submitted: submitted, Err: err}
	}
}
