package fees

import (
	"fmt"
	"math/big"

	"escrowd/native/escrow"
)

const bpsDenominator = 10_000

// Manager is a deterministic basis-point fee engine satisfying the escrow
// engine's FeeEngine contract. The client-side component applies at deposit
// time, the contractor-side component at claim time; the fee configuration
// mode decides which party actually bears each component.
type Manager struct {
	clientBps     uint32
	contractorBps uint32
}

// NewManager creates a fee manager with the given client-side and
// contractor-side fee rates in basis points.
func NewManager(clientBps, contractorBps uint32) (*Manager, error) {
	if clientBps > bpsDenominator {
		return nil, fmt.Errorf("fees: client bps out of range: %d", clientBps)
	}
	if contractorBps > bpsDenominator {
		return nil, fmt.Errorf("fees: contractor bps out of range: %d", contractorBps)
	}
	return &Manager{clientBps: clientBps, contractorBps: contractorBps}, nil
}

// ComputeDepositAmountAndFee implements escrow.FeeEngine. The total is the
// gross amount pulled from the payer: the requested amount plus whatever fee
// components the configuration makes the client cover up front.
func (m *Manager) ComputeDepositAmountAndFee(payer [20]byte, amount *big.Int, cfg escrow.FeeConfig) (*big.Int, *big.Int, error) {
	base, err := m.checkAmount(amount, cfg)
	if err != nil {
		return nil, nil, err
	}
	fee := big.NewInt(0)
	switch cfg {
	case escrow.FeeClientCoversAll:
		fee.Add(bpsOf(base, m.clientBps), bpsOf(base, m.contractorBps))
	case escrow.FeeClientCoversOnly:
		fee = bpsOf(base, m.clientBps)
	case escrow.FeeContractorCoversClaim, escrow.FeeNone:
	}
	return new(big.Int).Add(base, fee), fee, nil
}

// ComputeClaimableAmountAndFee implements escrow.FeeEngine. The claimable
// amount is what the payee actually receives; the two returned fee components
// (payee-side deduction and the client-side component collected at deposit
// time) are routed to treasury by the caller.
func (m *Manager) ComputeClaimableAmountAndFee(payee [20]byte, amount *big.Int, cfg escrow.FeeConfig) (*big.Int, *big.Int, *big.Int, error) {
	base, err := m.checkAmount(amount, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	clientPart := bpsOf(base, m.clientBps)
	contractorPart := bpsOf(base, m.contractorBps)
	switch cfg {
	case escrow.FeeClientCoversAll:
		return base, big.NewInt(0), new(big.Int).Add(clientPart, contractorPart), nil
	case escrow.FeeClientCoversOnly:
		return new(big.Int).Sub(base, contractorPart), contractorPart, clientPart, nil
	case escrow.FeeContractorCoversClaim:
		return new(big.Int).Sub(base, contractorPart), contractorPart, big.NewInt(0), nil
	default:
		return base, big.NewInt(0), big.NewInt(0), nil
	}
}

func (m *Manager) checkAmount(amount *big.Int, cfg escrow.FeeConfig) (*big.Int, error) {
	if !cfg.Valid() {
		return nil, fmt.Errorf("fees: unsupported fee config %d", cfg)
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("fees: amount must be non-negative")
	}
	return new(big.Int).Set(amount), nil
}

func bpsOf(amount *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}
