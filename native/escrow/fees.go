package escrow

import (
	"fmt"
	"math/big"
)

// FeeEngine is the external fee computation collaborator. It must be
// configured before any deposit, refill, claim or withdraw; those operations
// fail with ErrNotSetFeeManager otherwise. Implementations never move funds,
// they only compute amounts.
type FeeEngine interface {
	// ComputeDepositAmountAndFee returns the gross amount that must be
	// pulled from the payer for a requested escrow amount, plus the fee
	// component included in it. The total is always >= the requested amount.
	ComputeDepositAmountAndFee(payer [20]byte, amount *big.Int, cfg FeeConfig) (total *big.Int, fee *big.Int, err error)
	// ComputeClaimableAmountAndFee returns the net amount the payee actually
	// receives for a requested claim amount, the payee-side fee component and
	// the payer-side fee component routed to treasury.
	ComputeClaimableAmountAndFee(payee [20]byte, amount *big.Int, cfg FeeConfig) (claimable *big.Int, fee *big.Int, clientFee *big.Int, err error)
}

// DepositQuote records a deposit-side fee computation: what was requested and
// what the engine returned.
type DepositQuote struct {
	Requested *big.Int
	Total     *big.Int
	Fee       *big.Int
}

// ClaimQuote records a claim-side fee computation.
type ClaimQuote struct {
	Requested *big.Int
	Net       *big.Int
	Fee       *big.Int
	ClientFee *big.Int
}

// feeShim wraps the external fee engine with the local bookkeeping the escrow
// engine relies on: a configured-engine check, nil normalisation and sanity
// bounds, so a deterministic engine can be substituted in tests.
type feeShim struct {
	engine FeeEngine
}

func (s feeShim) configured() bool { return s.engine != nil }

func (s feeShim) quoteDeposit(payer [20]byte, amount *big.Int, cfg FeeConfig) (DepositQuote, error) {
	if s.engine == nil {
		return DepositQuote{}, ErrNotSetFeeManager
	}
	requested := cloneBigInt(amount)
	total, fee, err := s.engine.ComputeDepositAmountAndFee(payer, cloneBigInt(amount), cfg)
	if err != nil {
		return DepositQuote{}, err
	}
	total = cloneBigInt(total)
	fee = cloneBigInt(fee)
	if total.Cmp(requested) < 0 {
		return DepositQuote{}, fmt.Errorf("escrow: fee engine returned total %s below requested %s", total, requested)
	}
	if fee.Sign() < 0 {
		return DepositQuote{}, fmt.Errorf("escrow: fee engine returned negative deposit fee")
	}
	return DepositQuote{Requested: requested, Total: total, Fee: fee}, nil
}

func (s feeShim) quoteClaim(payee [20]byte, amount *big.Int, cfg FeeConfig) (ClaimQuote, error) {
	if s.engine == nil {
		return ClaimQuote{}, ErrNotSetFeeManager
	}
	requested := cloneBigInt(amount)
	net, fee, clientFee, err := s.engine.ComputeClaimableAmountAndFee(payee, cloneBigInt(amount), cfg)
	if err != nil {
		return ClaimQuote{}, err
	}
	net = cloneBigInt(net)
	fee = cloneBigInt(fee)
	clientFee = cloneBigInt(clientFee)
	if net.Sign() < 0 || fee.Sign() < 0 || clientFee.Sign() < 0 {
		return ClaimQuote{}, fmt.Errorf("escrow: fee engine returned negative claim component")
	}
	if net.Cmp(requested) > 0 {
		return ClaimQuote{}, fmt.Errorf("escrow: fee engine returned net %s above requested %s", net, requested)
	}
	if new(big.Int).Add(net, fee).Cmp(requested) > 0 {
		return ClaimQuote{}, fmt.Errorf("escrow: fee engine claim components exceed requested %s", requested)
	}
	return ClaimQuote{Requested: requested, Net: net, Fee: fee, ClientFee: clientFee}, nil
}
