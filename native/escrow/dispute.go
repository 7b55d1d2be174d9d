package escrow

import (
	"fmt"
	"math/big"
)

// CreateDispute contests a pending return request. Only the party opposite
// the recorded return initiator may raise it: one party requests the return,
// the other disputes it.
func (e *Engine) CreateDispute(caller [20]byte, ref UnitRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	if unit.Status != StatusReturnRequested {
		return fmt.Errorf("%w: %s", ErrCreateDisputeNotAllowed, unit.Status)
	}
	switch unit.ReturnedBy {
	case PartyClient:
		if unit.Contractor == ([20]byte{}) || caller != unit.Contractor {
			return fmt.Errorf("%w: expected contractor", ErrUnauthorizedToApproveDispute)
		}
	case PartyContractor:
		if caller != contract.Client {
			return fmt.Errorf("%w: expected client", ErrUnauthorizedToApproveDispute)
		}
	default:
		return fmt.Errorf("%w: no return initiator recorded", ErrUnauthorizedToApproveDispute)
	}
	unit.Status = StatusDisputed
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewDisputeCreatedEvent(contract, ref.UnitIndex, unit))
	return nil
}

// ResolveDispute applies an admin-determined split of a disputed unit's
// amount between the two parties, bounded by the amount actually on deposit.
// A CONTRACTOR outcome makes the funds immediately claimable (APPROVED,
// skipping RESOLVED); CLIENT and SPLIT outcomes move to RESOLVED.
func (e *Engine) ResolveDispute(caller [20]byte, ref UnitRef, winner Winner, clientAmount, contractorAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	if !e.isAdmin(caller) {
		return unauthorized(caller)
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	if unit.Status != StatusDisputed {
		return fmt.Errorf("%w: %s", ErrDisputeNotActive, unit.Status)
	}
	if !winner.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidWinner, winner)
	}
	toClient := cloneBigInt(clientAmount)
	toContractor := cloneBigInt(contractorAmount)
	if toClient.Sign() < 0 || toContractor.Sign() < 0 {
		return ErrInvalidAmount
	}
	if new(big.Int).Add(toClient, toContractor).Cmp(unit.Amount) > 0 {
		return fmt.Errorf("%w: %s + %s > %s", ErrResolutionExceedsDeposit, toClient, toContractor, unit.Amount)
	}
	applyResolution(unit, winner, toClient, toContractor)
	unit.ReturnedBy = PartyNone
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(contract, ref.UnitIndex, unit, winner, toClient, toContractor))
	return nil
}

// applyResolution writes the dispute outcome onto the unit. Only the winning
// side's amount takes effect for single-winner outcomes; the losing side's
// entitlement is zeroed so stale approvals cannot resurface.
func applyResolution(unit *Unit, winner Winner, toClient, toContractor *big.Int) {
	switch winner {
	case WinnerClient:
		unit.AmountToWithdraw = toClient
		unit.AmountToClaim = big.NewInt(0)
		unit.Status = StatusResolved
	case WinnerContractor:
		unit.AmountToClaim = toContractor
		unit.AmountToWithdraw = big.NewInt(0)
		unit.Status = StatusApproved
	case WinnerSplit:
		unit.AmountToWithdraw = toClient
		unit.AmountToClaim = toContractor
		unit.Status = StatusResolved
	}
}
