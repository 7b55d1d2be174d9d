package escrow

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
)

// depositWith funds a unit with an explicit fee configuration so fee-sensitive
// scenarios can pick clean arithmetic.
func (env *testEnv) depositWith(t *testing.T, shape Shape, amount int64, contractor [20]byte, cfg FeeConfig) UnitRef {
	t.Helper()
	ref, err := env.engine.Deposit(testClient, DepositRequest{
		Shape:          shape,
		Token:          "USDT",
		Amount:         big.NewInt(amount),
		Contractor:     contractor,
		ContractorData: CommitmentHash(testData, testSalt),
		FeeConfig:      cfg,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return ref
}

func TestRequestReturnRecordsInitiator(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)

	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	unit := env.unit(t, ref)
	if unit.Status != StatusReturnRequested {
		t.Fatalf("expected RETURN_REQUESTED, got %s", unit.Status)
	}
	if unit.ReturnedBy != PartyClient {
		t.Fatalf("expected initiator CLIENT, got %s", unit.ReturnedBy)
	}
	if err := env.engine.RequestReturn(testClient, ref); !errors.Is(err, ErrReturnNotAllowed) {
		t.Fatalf("double request: expected ErrReturnNotAllowed, got %v", err)
	}
}

func TestRequestReturnContractorNeedsHourly(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)

	if err := env.engine.RequestReturn(testContractor, ref); !errors.Is(err, ErrUnauthorizedAccount) {
		t.Fatalf("contractor return on fixed: expected ErrUnauthorizedAccount, got %v", err)
	}
}

func TestCancelReturnRestoresStatus(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}

	if err := env.engine.CancelReturn(testContractor, ref, StatusSubmitted); !errors.Is(err, ErrUnauthorizedAccount) {
		t.Fatalf("non-initiator cancel: expected ErrUnauthorizedAccount, got %v", err)
	}
	if err := env.engine.CancelReturn(testClient, ref, StatusApproved); !errors.Is(err, ErrInvalidStatusProvided) {
		t.Fatalf("restore APPROVED: expected ErrInvalidStatusProvided, got %v", err)
	}
	if err := env.engine.CancelReturn(testClient, ref, StatusSubmitted); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	unit := env.unit(t, ref)
	if unit.Status != StatusSubmitted || unit.ReturnedBy != PartyNone {
		t.Fatalf("unexpected state after cancel: %s / %s", unit.Status, unit.ReturnedBy)
	}
}

func TestCancelReturnSubmittedNeedsContractor(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}

	// The unit never had a submission, so SUBMITTED is not a state it could
	// have held.
	if err := env.engine.CancelReturn(testClient, ref, StatusSubmitted); !errors.Is(err, ErrInvalidStatusProvided) {
		t.Fatalf("expected ErrInvalidStatusProvided, got %v", err)
	}
	if err := env.engine.CancelReturn(testClient, ref, StatusActive); err != nil {
		t.Fatalf("cancel to ACTIVE: %v", err)
	}
}

func TestApproveReturnAndWithdrawFullRefund(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	if err := env.engine.ApproveReturn(testContractor, ref); err != nil {
		t.Fatalf("approveReturn: %v", err)
	}
	unit := env.unit(t, ref)
	if unit.Status != StatusRefundApproved {
		t.Fatalf("expected REFUND_APPROVED, got %s", unit.Status)
	}
	if unit.AmountToWithdraw.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected withdrawable 100, got %s", unit.AmountToWithdraw)
	}

	if err := env.engine.Withdraw(testClient, ref); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	unit = env.unit(t, ref)
	if unit.Status != StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", unit.Status)
	}
	// The client recovers the escrowed amount plus the fee component charged
	// on it at deposit time.
	if got := env.state.balance(testClient, "USDT"); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("client not made whole: %s", got)
	}
	if got := env.state.vaultBalance(ref.ContractID, "USDT"); got.Sign() != 0 {
		t.Fatalf("vault not drained: %s", got)
	}
}

func TestApproveReturnAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}

	if err := env.engine.ApproveReturn(testClient, ref); !errors.Is(err, ErrUnauthorizedAccount) {
		t.Fatalf("client approveReturn: expected ErrUnauthorizedAccount, got %v", err)
	}
	if err := env.engine.ApproveReturn(testAdmin, ref); err != nil {
		t.Fatalf("admin approveReturn: %v", err)
	}
}

func TestWithdrawValidation(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	if err := env.engine.ApproveReturn(testContractor, ref); err != nil {
		t.Fatalf("approveReturn: %v", err)
	}

	if err := env.engine.Withdraw(testContractor, ref); !errors.Is(err, ErrUnauthorizedAccount) {
		t.Fatalf("contractor withdraw: expected ErrUnauthorizedAccount, got %v", err)
	}
	if err := env.engine.Withdraw(testClient, ref); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := env.engine.Withdraw(testClient, ref); !errors.Is(err, ErrInvalidStatusToWithdraw) {
		t.Fatalf("second withdraw: expected ErrInvalidStatusToWithdraw, got %v", err)
	}
}

func TestCreateDisputeOppositePartyOnly(t *testing.T) {
	env := newTestEnv(t)
	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}

	// The client opened the return request, so only the contractor may
	// contest it.
	if err := env.engine.CreateDispute(testClient, ref); !errors.Is(err, ErrUnauthorizedToApproveDispute) {
		t.Fatalf("initiator dispute: expected ErrUnauthorizedToApproveDispute, got %v", err)
	}
	if err := env.engine.CreateDispute(testStranger, ref); !errors.Is(err, ErrUnauthorizedToApproveDispute) {
		t.Fatalf("stranger dispute: expected ErrUnauthorizedToApproveDispute, got %v", err)
	}
	if err := env.engine.CreateDispute(testContractor, ref); err != nil {
		t.Fatalf("contractor dispute: %v", err)
	}
	if got := env.unit(t, ref).Status; got != StatusDisputed {
		t.Fatalf("expected DISPUTED, got %s", got)
	}
}

func TestResolveDisputeValidation(t *testing.T) {
	env := newTestEnv(t)
	ref := env.depositWith(t, ShapeFixed, 100, [20]byte{}, FeeNone)
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	if err := env.engine.CreateDispute(testContractor, ref); err != nil {
		t.Fatalf("createDispute: %v", err)
	}

	if err := env.engine.ResolveDispute(testClient, ref, WinnerSplit, big.NewInt(50), big.NewInt(50)); !errors.Is(err, ErrUnauthorizedAccount) {
		t.Fatalf("non-admin resolve: expected ErrUnauthorizedAccount, got %v", err)
	}
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerNone, big.NewInt(50), big.NewInt(50)); !errors.Is(err, ErrInvalidWinner) {
		t.Fatalf("winner NONE: expected ErrInvalidWinner, got %v", err)
	}
	if err := env.engine.ResolveDispute(testAdmin, ref, Winner(99), big.NewInt(50), big.NewInt(50)); !errors.Is(err, ErrInvalidWinner) {
		t.Fatalf("out-of-range winner: expected ErrInvalidWinner, got %v", err)
	}
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerSplit, big.NewInt(51), big.NewInt(50)); !errors.Is(err, ErrResolutionExceedsDeposit) {
		t.Fatalf("over-allocation: expected ErrResolutionExceedsDeposit, got %v", err)
	}
	// The bound is inclusive: allocating exactly the on-hand amount is fine.
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerSplit, big.NewInt(50), big.NewInt(50)); err != nil {
		t.Fatalf("exact allocation: %v", err)
	}
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerSplit, big.NewInt(50), big.NewInt(50)); !errors.Is(err, ErrDisputeNotActive) {
		t.Fatalf("double resolve: expected ErrDisputeNotActive, got %v", err)
	}
}

func TestResolveDisputeBoundSweep(t *testing.T) {
	// The allocation bound is inclusive across the whole split space: any
	// (toClient, toContractor) with sum above the on-hand amount is rejected
	// without mutation, any split summing to at most the amount is accepted.
	cases := []struct {
		amount       int64
		toClient     int64
		toContractor int64
	}{
		{1, 0, 1},
		{1, 1, 0},
		{2, 1, 1},
		{7, 3, 4},
		{100, 0, 100},
		{100, 100, 0},
		{100, 60, 40},
		{100, 30, 30}, // under-allocation is allowed; the remainder stays vaulted
		{12345, 4111, 8234},
	}
	for _, tc := range cases {
		env := newTestEnv(t)
		ref := env.depositWith(t, ShapeFixed, tc.amount, [20]byte{}, FeeNone)
		env.submit(t, ref)
		if err := env.engine.RequestReturn(testClient, ref); err != nil {
			t.Fatalf("amount %d: requestReturn: %v", tc.amount, err)
		}
		if err := env.engine.CreateDispute(testContractor, ref); err != nil {
			t.Fatalf("amount %d: createDispute: %v", tc.amount, err)
		}
		before := env.unit(t, ref)

		overProbes := []struct{ toClient, toContractor int64 }{
			{tc.amount + 1, 0},
			{0, tc.amount + 1},
			{tc.amount, 1},
			{tc.toClient + 1, tc.amount - tc.toClient},
		}
		for _, probe := range overProbes {
			err := env.engine.ResolveDispute(testAdmin, ref, WinnerSplit,
				big.NewInt(probe.toClient), big.NewInt(probe.toContractor))
			if !errors.Is(err, ErrResolutionExceedsDeposit) {
				t.Fatalf("amount %d, split %d/%d: expected ErrResolutionExceedsDeposit, got %v",
					tc.amount, probe.toClient, probe.toContractor, err)
			}
		}
		after := env.unit(t, ref)
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("amount %d: rejected resolution mutated the unit", tc.amount)
		}

		if err := env.engine.ResolveDispute(testAdmin, ref, WinnerSplit,
			big.NewInt(tc.toClient), big.NewInt(tc.toContractor)); err != nil {
			t.Fatalf("amount %d, split %d/%d: %v", tc.amount, tc.toClient, tc.toContractor, err)
		}
		unit := env.unit(t, ref)
		if unit.AmountToWithdraw.Cmp(big.NewInt(tc.toClient)) != 0 ||
			unit.AmountToClaim.Cmp(big.NewInt(tc.toContractor)) != 0 {
			t.Fatalf("amount %d: unexpected split applied: %s/%s",
				tc.amount, unit.AmountToWithdraw, unit.AmountToClaim)
		}
		if err := unit.Validate(); err != nil {
			t.Fatalf("amount %d: invariant broken after resolution: %v", tc.amount, err)
		}
	}
}

func TestResolveDisputeClientWins(t *testing.T) {
	env := newTestEnv(t)
	ref := env.depositWith(t, ShapeFixed, 100, [20]byte{}, FeeNone)
	env.submit(t, ref)
	// Stale approval before the return branch opens.
	if err := env.engine.Approve(testClient, ref, big.NewInt(80), nil, testContractor); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	if err := env.engine.CreateDispute(testContractor, ref); err != nil {
		t.Fatalf("createDispute: %v", err)
	}
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerClient, big.NewInt(100), big.NewInt(0)); err != nil {
		t.Fatalf("resolveDispute: %v", err)
	}

	unit := env.unit(t, ref)
	if unit.Status != StatusResolved {
		t.Fatalf("expected RESOLVED, got %s", unit.Status)
	}
	if unit.AmountToWithdraw.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected withdrawable 100, got %s", unit.AmountToWithdraw)
	}
	// The pre-dispute approval must not survive the ruling.
	if unit.AmountToClaim.Sign() != 0 {
		t.Fatalf("stale approval survived resolution: %s", unit.AmountToClaim)
	}
	if err := env.engine.Claim(testContractor, ref); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("loser claim: expected ErrNotApproved, got %v", err)
	}
}

func TestResolveDisputeContractorWins(t *testing.T) {
	env := newTestEnv(t)
	ref := env.depositWith(t, ShapeFixed, 100, [20]byte{}, FeeNone)
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	if err := env.engine.CreateDispute(testContractor, ref); err != nil {
		t.Fatalf("createDispute: %v", err)
	}
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerContractor, big.NewInt(0), big.NewInt(100)); err != nil {
		t.Fatalf("resolveDispute: %v", err)
	}

	// A CONTRACTOR ruling goes straight back to APPROVED so the regular claim
	// path applies.
	unit := env.unit(t, ref)
	if unit.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", unit.Status)
	}
	if err := env.engine.Claim(testContractor, ref); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := env.unit(t, ref).Status; got != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got)
	}
	if got := env.state.balance(testContractor, "USDT"); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("contractor payout: expected 100, got %s", got)
	}
}

func TestSplitDisputeBothSidesPaid(t *testing.T) {
	env := newTestEnv(t)
	ref := env.depositWith(t, ShapeFixed, 100, [20]byte{}, FeeNone)
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	if err := env.engine.CreateDispute(testContractor, ref); err != nil {
		t.Fatalf("createDispute: %v", err)
	}
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerSplit, big.NewInt(60), big.NewInt(40)); err != nil {
		t.Fatalf("resolveDispute: %v", err)
	}

	if err := env.engine.Withdraw(testClient, ref); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// The contractor's side is still outstanding, so the unit stays RESOLVED
	// rather than canceling.
	if got := env.unit(t, ref).Status; got != StatusResolved {
		t.Fatalf("expected RESOLVED after partial withdraw, got %s", got)
	}
	if err := env.engine.Claim(testContractor, ref); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := env.unit(t, ref).Status; got != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got)
	}
	if got := env.state.balance(testClient, "USDT"); got.Cmp(big.NewInt(999_960)) != 0 {
		t.Fatalf("client balance: expected 999960, got %s", got)
	}
	if got := env.state.balance(testContractor, "USDT"); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("contractor balance: expected 40, got %s", got)
	}
	if got := env.state.vaultBalance(ref.ContractID, "USDT"); got.Sign() != 0 {
		t.Fatalf("vault not drained: %s", got)
	}
}
