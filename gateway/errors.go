package gateway

import (
	"errors"
	"net/http"

	"escrowd/native/escrow"
)

// writeEngineError maps engine sentinels onto HTTP status codes. Every engine
// failure is local and non-retryable, so the mapping is purely informational
// for callers deciding how to fix their input.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	s.writeError(w, engineStatus(err), err)
}

func engineStatus(err error) int {
	switch {
	case errors.Is(err, escrow.ErrUnauthorizedAccount),
		errors.Is(err, escrow.ErrUnauthorizedReceiver),
		errors.Is(err, escrow.ErrUnauthorizedToApproveDispute),
		errors.Is(err, escrow.ErrBlacklistedAccount):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrContractNotFound),
		errors.Is(err, escrow.ErrUnitNotFound):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrNotInitialized),
		errors.Is(err, escrow.ErrNotSetFeeManager):
		return http.StatusServiceUnavailable
	case errors.Is(err, escrow.ErrInvalidStatusForSubmit),
		errors.Is(err, escrow.ErrInvalidStatusForApprove),
		errors.Is(err, escrow.ErrRefillNotAllowed),
		errors.Is(err, escrow.ErrReturnNotAllowed),
		errors.Is(err, escrow.ErrNoReturnRequested),
		errors.Is(err, escrow.ErrCreateDisputeNotAllowed),
		errors.Is(err, escrow.ErrDisputeNotActive),
		errors.Is(err, escrow.ErrInvalidStatusToWithdraw),
		errors.Is(err, escrow.ErrInvalidStatusToClaim),
		errors.Is(err, escrow.ErrNotApproved),
		errors.Is(err, escrow.ErrNoFundsAvailableForWithdraw),
		errors.Is(err, escrow.ErrTooManyUnits),
		errors.Is(err, escrow.ErrAlreadyInitialized):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
