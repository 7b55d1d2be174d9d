package escrow

import (
	"fmt"
	"math/big"
)

// BatchClaimResult aggregates the effect of a ClaimAll invocation.
type BatchClaimResult struct {
	ContractID     uint64   `json:"contractId"`
	StartUnit      uint64   `json:"startUnit"`
	EndUnit        uint64   `json:"endUnit"`
	UnitsClaimed   uint64   `json:"unitsClaimed"`
	TotalClaimed   *big.Int `json:"totalClaimed"`
	TotalFee       *big.Int `json:"totalFee"`
	TotalClientFee *big.Int `json:"totalClientFee"`
}

// Claim pays the unit's claimable amount out to its bound contractor: the net
// portion to the contractor, the fee components to the treasury. The unit
// completes once its on-hand amount reaches zero; after a partial dispute
// split it keeps its status awaiting the client's withdraw.
func (e *Engine) Claim(caller [20]byte, ref UnitRef) error {
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
	if err := requireContractor(unit, caller); err != nil {
		return err
	}
	if unit.Status != StatusApproved && unit.Status != StatusResolved {
		return fmt.Errorf("%w: %s", ErrInvalidStatusToClaim, unit.Status)
	}
	if unit.AmountToClaim == nil || unit.AmountToClaim.Sign() <= 0 {
		return ErrNotApproved
	}
	treasury, err := e.treasury()
	if err != nil {
		return err
	}
	if _, err := e.claimUnit(contract, ref.UnitIndex, unit, treasury); err != nil {
		return err
	}
	return e.storeContract(contract)
}

// ClaimAll iterates an inclusive range of units, claiming every one whose
// bound contractor is the caller and which is in a claimable state with a
// nonzero claimable amount. Ineligible units are skipped silently so one
// contractor can sweep a heterogeneous batch; the aggregate result and one
// bulk event report what actually moved.
func (e *Engine) ClaimAll(caller [20]byte, contractID, startUnit, endUnit uint64) (*BatchClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return nil, err
	}
	if !e.fees.configured() {
		return nil, ErrNotSetFeeManager
	}
	contract, err := e.loadContract(contractID)
	if err != nil {
		return nil, err
	}
	if startUnit > endUnit {
		return nil, fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, startUnit, endUnit)
	}
	if endUnit >= uint64(len(contract.Units)) {
		return nil, fmt.Errorf("%w: end %d, unit count %d", ErrOutOfRange, endUnit, len(contract.Units))
	}
	treasury, err := e.treasury()
	if err != nil {
		return nil, err
	}

	result := &BatchClaimResult{
		ContractID:     contractID,
		StartUnit:      startUnit,
		EndUnit:        endUnit,
		TotalClaimed:   big.NewInt(0),
		TotalFee:       big.NewInt(0),
		TotalClientFee: big.NewInt(0),
	}
	for index := startUnit; index <= endUnit; index++ {
		unit := contract.Units[index]
		if unit == nil || unit.Contractor != caller {
			continue
		}
		if unit.Status != StatusApproved && unit.Status != StatusResolved {
			continue
		}
		if unit.AmountToClaim == nil || unit.AmountToClaim.Sign() <= 0 {
			continue
		}
		quote, err := e.claimUnit(contract, index, unit, treasury)
		if err != nil {
			return nil, err
		}
		result.UnitsClaimed++
		result.TotalClaimed.Add(result.TotalClaimed, quote.Requested)
		result.TotalFee.Add(result.TotalFee, quote.Fee)
		result.TotalClientFee.Add(result.TotalClientFee, quote.ClientFee)
	}
	if err := e.storeContract(contract); err != nil {
		return nil, err
	}
	e.emit(NewBulkClaimedEvent(contract, result))
	return result, nil
}

// claimUnit applies the claim effect to one unit: fee quote, payouts, vault
// debit and field updates. The caller persists the contract and already holds
// the engine mutex.
func (e *Engine) claimUnit(contract *Contract, index uint64, unit *Unit, treasury [20]byte) (ClaimQuote, error) {
	claimed := cloneBigInt(unit.AmountToClaim)
	quote, err := e.fees.quoteClaim(unit.Contractor, claimed, unit.FeeConfig)
	if err != nil {
		return ClaimQuote{}, err
	}
	vault, err := e.state.VaultAddress(unit.Token)
	if err != nil {
		return ClaimQuote{}, err
	}
	// Total vault outflow: net to the contractor, both fee components to the
	// treasury. The client-side component was collected into the vault at
	// deposit time.
	treasuryShare := new(big.Int).Add(quote.Fee, quote.ClientFee)
	totalOut := new(big.Int).Add(new(big.Int).Add(cloneBigInt(quote.Net), quote.Fee), quote.ClientFee)
	if err := e.state.VaultDebit(contract.ID, unit.Token, totalOut); err != nil {
		return ClaimQuote{}, err
	}
	if err := e.transferToken(vault, unit.Contractor, unit.Token, quote.Net); err != nil {
		return ClaimQuote{}, err
	}
	if err := e.transferToken(vault, treasury, unit.Token, treasuryShare); err != nil {
		return ClaimQuote{}, err
	}
	unit.Amount = new(big.Int).Sub(unit.Amount, claimed)
	unit.AmountToClaim = big.NewInt(0)
	if unit.Amount.Sign() == 0 {
		unit.Status = StatusCompleted
	}
	e.emit(NewClaimedEvent(contract, index, unit, quote))
	return quote, nil
}
