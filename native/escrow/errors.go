package escrow

import "errors"

// All failures are local and non-retryable: the operation aborts with no
// partial effect and no funds move. Callers fix the input and resubmit.
var (
	ErrNotInitialized     = errors.New("escrow: engine not initialized")
	ErrAlreadyInitialized = errors.New("escrow: engine already initialized")
	ErrNotSetFeeManager   = errors.New("escrow: fee manager not configured")

	ErrUnauthorizedAccount  = errors.New("escrow: unauthorized account")
	ErrUnauthorizedReceiver = errors.New("escrow: unauthorized receiver")
	ErrBlacklistedAccount   = errors.New("escrow: blacklisted account")

	ErrNotSupportedToken   = errors.New("escrow: token not supported")
	ErrZeroAddressProvided = errors.New("escrow: zero address provided")
	ErrInvalidFeeConfig    = errors.New("escrow: invalid fee config")
	ErrInvalidShape        = errors.New("escrow: invalid contract shape")

	ErrInvalidAmount    = errors.New("escrow: amount must be positive")
	ErrNotEnoughDeposit = errors.New("escrow: approval exceeds deposited amount")

	ErrContractNotFound = errors.New("escrow: contract not found")
	ErrUnitNotFound     = errors.New("escrow: unit not found")
	ErrTooManyUnits     = errors.New("escrow: contract unit limit reached")

	ErrInvalidStatusForSubmit    = errors.New("escrow: invalid status for submit")
	ErrInvalidContractorDataHash = errors.New("escrow: invalid contractor data hash")

	ErrInvalidStatusForApprove = errors.New("escrow: invalid status for approve")
	ErrRefillNotAllowed        = errors.New("escrow: refill not allowed in current status")

	ErrReturnNotAllowed      = errors.New("escrow: return not allowed in current status")
	ErrNoReturnRequested     = errors.New("escrow: no return requested")
	ErrInvalidStatusProvided = errors.New("escrow: invalid status provided")

	ErrCreateDisputeNotAllowed      = errors.New("escrow: dispute creation not allowed in current status")
	ErrUnauthorizedToApproveDispute = errors.New("escrow: caller is not the opposite party of the return request")
	ErrDisputeNotActive             = errors.New("escrow: dispute not active for this deposit")
	ErrResolutionExceedsDeposit     = errors.New("escrow: resolution exceeds deposited amount")
	ErrInvalidWinner                = errors.New("escrow: invalid winner")

	ErrInvalidStatusToWithdraw     = errors.New("escrow: invalid status for withdraw")
	ErrNoFundsAvailableForWithdraw = errors.New("escrow: no funds available for withdraw")

	ErrInvalidStatusToClaim = errors.New("escrow: invalid status for claim")
	ErrNotApproved          = errors.New("escrow: nothing approved to claim")

	ErrInvalidRange = errors.New("escrow: invalid unit range")
	ErrOutOfRange   = errors.New("escrow: unit range out of bounds")
)
