package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquiditybootstrap/internal/chain"
	"liquiditybootstrap/internal/dex"
)

// EthConfig holds the addresses and submission settings for the on-chain
// gateway.
type EthConfig struct {
	Factory         common.Address
	PositionManager common.Address
	GasLimit        uint64
	GasPrice        *big.Int
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	ReadRetries     int
	ReadBackoff     time.Duration
}

// EthGateway implements Gateway against a go-ethereum client.
type EthGateway struct {
	cfg    EthConfig
	client *chain.Client
	logger *zap.Logger
}

// NewEthGateway builds a gateway over the chain client.
func NewEthGateway(cfg EthConfig, client *chain.Client, logger *zap.Logger) (*EthGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if cfg.Factory == (common.Address{}) {
		return nil, fmt.Errorf("factory address is required")
	}
	if cfg.PositionManager == (common.Address{}) {
		return nil, fmt.Errorf("position manager address is required")
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthGateway{cfg: cfg, client: client, logger: logger}, nil
}

func (g *EthGateway) Sender() common.Address {
	return g.client.Sender()
}

// BalanceOf returns the token balance of owner.
func (g *EthGateway) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := g.call(ctx, token, erc20, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return bal, nil
}

// LookupPool resolves the pool address from the factory.
func (g *EthGateway) LookupPool(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, bool, error) {
	factory, err := dex.V3FactoryABI()
	if err != nil {
		return common.Address{}, false, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := g.call(ctx, g.cfg.Factory, factory, "getPool", token0, token1, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, false, err
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, false, fmt.Errorf("getPool: %w", err)
	}
	if pool == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return pool, true, nil
}

// CreatePool submits a factory createPool transaction.
func (g *EthGateway) CreatePool(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Hash, error) {
	factory, err := dex.V3FactoryABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse factory abi: %w", err)
	}
	data, err := factory.Pack("createPool", token0, token1, big.NewInt(int64(fee)))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack createPool: %w", err)
	}
	return g.submit(ctx, g.cfg.Factory, data)
}

// PoolState reads slot0 for the pool.
func (g *EthGateway) PoolState(ctx context.Context, pool common.Address) (PoolState, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := g.call(ctx, pool, poolABI, "slot0")
	if err != nil {
		return PoolState{}, err
	}
	if len(values) < 2 {
		return PoolState{}, fmt.Errorf("slot0 returned %d values", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("slot0 sqrtPriceX96: %w", err)
	}
	tickBig, err := asBigInt(values[1])
	if err != nil {
		return PoolState{}, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickBig)
	if err != nil {
		return PoolState{}, fmt.Errorf("slot0 tick: %w", err)
	}

	return PoolState{
		Address:      pool,
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Initialized:  sqrtPrice.Sign() != 0,
	}, nil
}

// TickSpacing reads the pool's tick spacing.
func (g *EthGateway) TickSpacing(ctx context.Context, pool common.Address) (int32, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return 0, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := g.call(ctx, pool, poolABI, "tickSpacing")
	if err != nil {
		return 0, err
	}
	spacingBig, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("tickSpacing: %w", err)
	}
	spacing, err := int24FromBig(spacingBig)
	if err != nil {
		return 0, fmt.Errorf("tickSpacing: %w", err)
	}
	return spacing, nil
}

// InitializePool submits the pool initialize transaction with the starting
// sqrt price.
func (g *EthGateway) InitializePool(ctx context.Context, pool common.Address, sqrtPriceX96 *big.Int) (common.Hash, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse pool abi: %w", err)
	}
	data, err := poolABI.Pack("initialize", sqrtPriceX96)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack initialize: %w", err)
	}
	return g.submit(ctx, pool, data)
}

// Allowance reads the current allowance owner has granted spender.
func (g *EthGateway) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := g.call(ctx, token, erc20, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	allowance, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return allowance, nil
}

// Approve submits an ERC20 approve transaction.
func (g *EthGateway) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := erc20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}
	return g.submit(ctx, token, data)
}

// MintPosition submits the mint and blocks until it confirms, extracting the
// minted amounts from the IncreaseLiquidity event in the receipt.
func (g *EthGateway) MintPosition(ctx context.Context, params MintParams) (MintResult, error) {
	pmABI, err := dex.PositionManagerABI()
	if err != nil {
		return MintResult{}, fmt.Errorf("parse position manager abi: %w", err)
	}

	mintParams := struct {
		Token0         common.Address
		Token1         common.Address
		Fee            *big.Int
		TickLower      *big.Int
		TickUpper      *big.Int
		Amount0Desired *big.Int
		Amount1Desired *big.Int
		Amount0Min     *big.Int
		Amount1Min     *big.Int
		Recipient      common.Address
		Deadline       *big.Int
	}{
		Token0:         params.Token0,
		Token1:         params.Token1,
		Fee:            big.NewInt(int64(params.Fee)),
		TickLower:      big.NewInt(int64(params.TickLower)),
		TickUpper:      big.NewInt(int64(params.TickUpper)),
		Amount0Desired: params.Amount0Desired,
		Amount1Desired: params.Amount1Desired,
		Amount0Min:     params.Amount0Min,
		Amount1Min:     params.Amount1Min,
		Recipient:      params.Recipient,
		Deadline:       params.Deadline,
	}

	data, err := pmABI.Pack("mint", mintParams)
	if err != nil {
		return MintResult{}, fmt.Errorf("pack mint: %w", err)
	}

	txHash, err := g.submit(ctx, g.cfg.PositionManager, data)
	if err != nil {
		return MintResult{}, err
	}

	receipt, err := g.waitReceipt(ctx, txHash)
	if err != nil {
		return MintResult{}, err
	}

	result := MintResult{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}

	event, ok := pmABI.Events["IncreaseLiquidity"]
	if !ok {
		return result, nil
	}
	for _, logEntry := range receipt.Logs {
		if logEntry.Address != g.cfg.PositionManager || len(logEntry.Topics) < 2 {
			continue
		}
		if logEntry.Topics[0] != event.ID {
			continue
		}
		result.PositionID = new(big.Int).SetBytes(logEntry.Topics[1].Bytes())
		values, err := event.Inputs.NonIndexed().Unpack(logEntry.Data)
		if err != nil {
			g.logger.Warn("decode IncreaseLiquidity failed",
				zap.String("tx", txHash.Hex()), zap.Error(err))
			break
		}
		if len(values) >= 3 {
			if liq, err := asBigInt(values[0]); err == nil {
				result.Liquidity = liq
			}
			if amount0, err := asBigInt(values[1]); err == nil {
				result.Amount0 = amount0
			}
			if amount1, err := asBigInt(values[2]); err == nil {
				result.Amount1 = amount1
			}
		}
		break
	}

	return result, nil
}

// HasPoolPosition enumerates the owner's positions through
// tokenOfOwnerByIndex and matches each against the pair and fee tier.
// Only positions with nonzero liquidity count.
func (g *EthGateway) HasPoolPosition(ctx context.Context, owner, token0, token1 common.Address, fee uint32) (bool, error) {
	pmABI, err := dex.PositionManagerABI()
	if err != nil {
		return false, fmt.Errorf("parse position manager abi: %w", err)
	}
	values, err := g.call(ctx, g.cfg.PositionManager, pmABI, "balanceOf", owner)
	if err != nil {
		return false, err
	}
	count, err := asBigInt(values[0])
	if err != nil {
		return false, fmt.Errorf("position balanceOf: %w", err)
	}

	for i := int64(0); i < count.Int64(); i++ {
		values, err := g.call(ctx, g.cfg.PositionManager, pmABI, "tokenOfOwnerByIndex", owner, big.NewInt(i))
		if err != nil {
			return false, err
		}
		tokenID, err := asBigInt(values[0])
		if err != nil {
			return false, fmt.Errorf("tokenOfOwnerByIndex: %w", err)
		}

		values, err = g.call(ctx, g.cfg.PositionManager, pmABI, "positions", tokenID)
		if err != nil {
			return false, err
		}
		if len(values) < 8 {
			return false, fmt.Errorf("positions returned %d values", len(values))
		}
		posToken0, err := asAddress(values[2])
		if err != nil {
			return false, fmt.Errorf("positions token0: %w", err)
		}
		posToken1, err := asAddress(values[3])
		if err != nil {
			return false, fmt.Errorf("positions token1: %w", err)
		}
		posFee, err := asBigInt(values[4])
		if err != nil {
			return false, fmt.Errorf("positions fee: %w", err)
		}
		liquidity, err := asBigInt(values[7])
		if err != nil {
			return false, fmt.Errorf("positions liquidity: %w", err)
		}

		if posToken0 == token0 && posToken1 == token1 &&
			posFee.Cmp(big.NewInt(int64(fee))) == 0 && liquidity.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// WaitMined polls for the transaction receipt until the confirmation window
// closes.
func (g *EthGateway) WaitMined(ctx context.Context, txHash common.Hash) (Receipt, error) {
	receipt, err := g.waitReceipt(ctx, txHash)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{TxHash: txHash, BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

func (g *EthGateway) waitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, &RevertError{TxHash: txHash}
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			g.logger.Debug("receipt poll failed", zap.String("tx", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: tx %s after %s", ErrConfirmationTimeout, txHash.Hex(), g.cfg.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

func (g *EthGateway) submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	tx, err := g.client.SendContractTransaction(ctx, to, data, g.cfg.GasLimit, g.cfg.GasPrice)
	if err != nil {
		return common.Hash{}, err
	}
	g.logger.Info("transaction submitted",
		zap.String("to", to.Hex()),
		zap.String("tx", tx.Hash().Hex()))
	return tx.Hash(), nil
}

func (g *EthGateway) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}

	var resp []byte
	err = chain.WithRetry(ctx, g.cfg.ReadRetries, g.cfg.ReadBackoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.client.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
