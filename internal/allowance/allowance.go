package allowance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquiditybootstrap/internal/gateway"
)

// ErrApproveRejected wraps an approval the token contract reverted.
var ErrApproveRejected = errors.New("token approval rejected")

// Manager sequences ERC20 approvals idempotently. Some tokens revert on a
// nonzero-to-nonzero allowance change, so the nonzero path always resets to
// zero first. That is the default path, not a special case, which keeps the
// sequencing correct for both standard and nonstandard tokens at the cost of
// one extra transaction.
type Manager struct {
	gw     gateway.Gateway
	logger *zap.Logger
}

func NewManager(gw gateway.Gateway, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{gw: gw, logger: logger}
}

// EnsureAllowance makes the spender's allowance from the gateway's signer
// exactly target. The current allowance is read fresh on every call; a
// previously observed value is never trusted. Each approval is confirmed
// before the next is submitted. Confirmation timeouts propagate as-is
// (retryable); reverts come back wrapped in ErrApproveRejected (fatal).
// The bool return reports whether any approval transaction was submitted,
// including on error paths.
func (m *Manager) EnsureAllowance(ctx context.Context, token, spender common.Address, target *big.Int) (bool, error) {
	if target == nil || target.Sign() < 0 {
		return false, fmt.Errorf("allowance target must be non-negative")
	}

	current, err := m.gw.Allowance(ctx, token, m.gw.Sender(), spender)
	if err != nil {
		return false, fmt.Errorf("read allowance: %w", err)
	}

	if current.Cmp(target) == 0 {
		m.logger.Debug("allowance already at target",
			zap.String("token", token.Hex()),
			zap.String("spender", spender.Hex()),
			zap.String("target", target.String()))
		return false, nil
	}

	submitted := false
	if current.Sign() > 0 {
		ok, err := m.approveAndWait(ctx, token, spender, big.NewInt(0))
		submitted = submitted || ok
		if err != nil {
			return submitted, err
		}
	}

	ok, err := m.approveAndWait(ctx, token, spender, target)
	return submitted || ok, err
}

func (m *Manager) approveAndWait(ctx context.Context, token, spender common.Address, amount *big.Int) (bool, error) {
	txHash, err := m.gw.Approve(ctx, token, spender, amount)
	if err != nil {
		return false, fmt.Errorf("submit approve(%s): %w", amount, err)
	}

	m.logger.Info("approval submitted",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("amount", amount.String()),
		zap.String("tx", txHash.Hex()))

	if _, err := m.gw.WaitMined(ctx, txHash); err != nil {
		var revert *gateway.RevertError
		if errors.As(err, &revert) {
			return true, fmt.Errorf("%w: approve(%s) tx %s: %s", ErrApproveRejected, amount, txHash.Hex(), revert.Error())
		}
		return true, fmt.Errorf("confirm approve(%s): %w", amount, err)
	}
	return true, nil
}
