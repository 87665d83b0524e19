package allowance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquiditybootstrap/internal/gateway"
)

type approveCall struct {
	token   common.Address
	spender common.Address
	amount  *big.Int
}

// fakeGateway implements the allowance-facing subset of gateway.Gateway and
// records the approve sequence.
type fakeGateway struct {
	gateway.Gateway

	sender    common.Address
	allowance *big.Int
	readErr   error

	approves []approveCall
	waitErr  error
}

func (f *fakeGateway) Sender() common.Address {
	return f.sender
}

func (f *fakeGateway) Allowance(_ context.Context, _, _, _ common.Address) (*big.Int, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeGateway) Approve(_ context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.approves = append(f.approves, approveCall{token: token, spender: spender, amount: new(big.Int).Set(amount)})
	return common.HexToHash("0x01"), nil
}

func (f *fakeGateway) WaitMined(_ context.Context, txHash common.Hash) (gateway.Receipt, error) {
	if f.waitErr != nil {
		return gateway.Receipt{}, f.waitErr
	}
	return gateway.Receipt{TxHash: txHash, BlockNumber: 1}, nil
}

var (
	testToken   = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	testSpender = common.HexToAddress("0x0000000000000000000000000000000000000bbb")
)

func TestEnsureAllowanceResetSequence(t *testing.T) {
	gw := &fakeGateway{allowance: big.NewInt(500)}
	mgr := NewManager(gw, nil)

	submitted, err := mgr.EnsureAllowance(context.Background(), testToken, testSpender, big.NewInt(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !submitted {
		t.Fatalf("reset sequence must report submission")
	}

	if len(gw.approves) != 2 {
		t.Fatalf("approve count mismatch: %d != 2", len(gw.approves))
	}
	if gw.approves[0].amount.Sign() != 0 {
		t.Fatalf("first approve should reset to zero, got %s", gw.approves[0].amount)
	}
	if gw.approves[1].amount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("second approve should set target, got %s", gw.approves[1].amount)
	}
}

func TestEnsureAllowanceFromZero(t *testing.T) {
	gw := &fakeGateway{allowance: big.NewInt(0)}
	mgr := NewManager(gw, nil)

	submitted, err := mgr.EnsureAllowance(context.Background(), testToken, testSpender, big.NewInt(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !submitted {
		t.Fatalf("approval from zero must report submission")
	}

	if len(gw.approves) != 1 {
		t.Fatalf("approve count mismatch: %d != 1", len(gw.approves))
	}
	if gw.approves[0].amount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("approve amount mismatch: %s != 300", gw.approves[0].amount)
	}
}

func TestEnsureAllowanceNoop(t *testing.T) {
	gw := &fakeGateway{allowance: big.NewInt(300)}
	mgr := NewManager(gw, nil)

	submitted, err := mgr.EnsureAllowance(context.Background(), testToken, testSpender, big.NewInt(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if submitted {
		t.Fatalf("no-op must not report submission")
	}
	if len(gw.approves) != 0 {
		t.Fatalf("expected no approvals, got %d", len(gw.approves))
	}
}

func TestEnsureAllowanceRevertIsRejected(t *testing.T) {
	gw := &fakeGateway{
		allowance: big.NewInt(0),
		waitErr:   &gateway.RevertError{TxHash: common.HexToHash("0x01")},
	}
	mgr := NewManager(gw, nil)

	submitted, err := mgr.EnsureAllowance(context.Background(), testToken, testSpender, big.NewInt(300))
	if !errors.Is(err, ErrApproveRejected) {
		t.Fatalf("expected ErrApproveRejected, got %v", err)
	}
	if !submitted {
		t.Fatalf("reverted approval was still submitted")
	}
}

func TestEnsureAllowanceTimeoutPropagates(t *testing.T) {
	gw := &fakeGateway{
		allowance: big.NewInt(0),
		waitErr:   gateway.ErrConfirmationTimeout,
	}
	mgr := NewManager(gw, nil)

	submitted, err := mgr.EnsureAllowance(context.Background(), testToken, testSpender, big.NewInt(300))
	if !errors.Is(err, gateway.ErrConfirmationTimeout) {
		t.Fatalf("expected confirmation timeout, got %v", err)
	}
	if !submitted {
		t.Fatalf("timed-out approval was still submitted")
	}
}

func TestEnsureAllowanceReadFailureReportsNoSubmission(t *testing.T) {
	gw := &fakeGateway{allowance: big.NewInt(0), readErr: errors.New("rpc down")}
	mgr := NewManager(gw, nil)

	submitted, err := mgr.EnsureAllowance(context.Background(), testToken, testSpender, big.NewInt(300))
	if err == nil {
		t.Fatalf("expected error from failed allowance read")
	}
	if submitted {
		t.Fatalf("failed read must not report submission")
	}
	if len(gw.approves) != 0 {
		t.Fatalf("expected no approvals, got %d", len(gw.approves))
	}
}

func TestEnsureAllowanceRejectsNegativeTarget(t *testing.T) {
	gw := &fakeGateway{allowance: big.NewInt(0)}
	mgr := NewManager(gw, nil)

	if _, err := mgr.EnsureAllowance(context.Background(), testToken, testSpender, big.NewInt(-1)); err == nil {
		t.Fatalf("expected error for negative target")
	}
}
