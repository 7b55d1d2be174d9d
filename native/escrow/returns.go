package escrow

import (
	"fmt"
	"math/big"
)

// RequestReturn opens the return branch of the lifecycle. The client may
// request a return on any shape; on hourly contracts the bound contractor may
// too. The initiator is recorded on the unit so dispute creation can verify
// the caller is the opposite party. Allowed from any non-terminal state that
// is not already on the return branch.
func (e *Engine) RequestReturn(caller [20]byte, ref UnitRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	var party Party
	switch {
	case caller == contract.Client:
		party = PartyClient
	case contract.Shape == ShapeHourly && unit.Contractor != ([20]byte{}) && caller == unit.Contractor:
		party = PartyContractor
	default:
		return unauthorized(caller)
	}
	switch unit.Status {
	case StatusActive, StatusSubmitted, StatusApproved:
	default:
		return fmt.Errorf("%w: %s", ErrReturnNotAllowed, unit.Status)
	}
	unit.Status = StatusReturnRequested
	unit.ReturnedBy = party
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewReturnRequestedEvent(contract, ref.UnitIndex, unit))
	return nil
}

// CancelReturn withdraws a pending return request. Only the party that
// initiated the request may cancel it. The caller supplies the status to
// restore, which must be one the unit could legitimately have held before the
// request: ACTIVE, or SUBMITTED when a contractor is bound.
func (e *Engine) CancelReturn(caller [20]byte, ref UnitRef, restore Status) error {
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
		return fmt.Errorf("%w: %s", ErrNoReturnRequested, unit.Status)
	}
	switch unit.ReturnedBy {
	case PartyContractor:
		if err := requireContractor(unit, caller); err != nil {
			return err
		}
	default:
		if err := requireClient(contract, caller); err != nil {
			return err
		}
	}
	switch restore {
	case StatusActive:
	case StatusSubmitted:
		if unit.Contractor == ([20]byte{}) {
			return fmt.Errorf("%w: no contractor bound", ErrInvalidStatusProvided)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatusProvided, restore)
	}
	unit.Status = restore
	unit.ReturnedBy = PartyNone
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewReturnCanceledEvent(contract, ref.UnitIndex, unit))
	return nil
}

// ApproveReturn lets the contractor, or an admin, concede a pending return
// request. The full on-hand amount becomes withdrawable by the client.
func (e *Engine) ApproveReturn(caller [20]byte, ref UnitRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	if err := e.requireContractorOrAdmin(unit, caller); err != nil {
		return err
	}
	if unit.Status != StatusReturnRequested {
		return fmt.Errorf("%w: %s", ErrNoReturnRequested, unit.Status)
	}
	unit.AmountToWithdraw = cloneBigInt(unit.Amount)
	unit.Status = StatusRefundApproved
	unit.ReturnedBy = PartyNone
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewReturnApprovedEvent(contract, ref.UnitIndex, unit))
	return nil
}

// Withdraw pulls the client's withdrawable portion back out of the vault,
// including the fee component originally charged on it (the inverse of the
// deposit fee split). The unit cancels once its on-hand amount reaches zero;
// after a partial dispute split it stays RESOLVED awaiting the contractor's
// claim.
func (e *Engine) Withdraw(caller [20]byte, ref UnitRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	if !e.fees.configured() {
		return ErrNotSetFeeManager
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	if err := requireClient(contract, caller); err != nil {
		return err
	}
	if unit.Status != StatusRefundApproved && unit.Status != StatusResolved {
		return fmt.Errorf("%w: %s", ErrInvalidStatusToWithdraw, unit.Status)
	}
	if unit.AmountToWithdraw == nil || unit.AmountToWithdraw.Sign() <= 0 {
		return ErrNoFundsAvailableForWithdraw
	}
	if _, err := e.treasury(); err != nil {
		return err
	}
	withdrawn := cloneBigInt(unit.AmountToWithdraw)
	quote, err := e.fees.quoteDeposit(contract.Client, withdrawn, unit.FeeConfig)
	if err != nil {
		return err
	}
	vault, err := e.state.VaultAddress(unit.Token)
	if err != nil {
		return err
	}
	if err := e.state.VaultDebit(contract.ID, unit.Token, quote.Total); err != nil {
		return err
	}
	if err := e.transferToken(vault, contract.Client, unit.Token, quote.Total); err != nil {
		return err
	}
	unit.Amount = new(big.Int).Sub(unit.Amount, withdrawn)
	unit.AmountToWithdraw = big.NewInt(0)
	if unit.Amount.Sign() == 0 {
		unit.Status = StatusCanceled
	}
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(contract, ref.UnitIndex, unit, withdrawn, quote.Fee))
	return nil
}
