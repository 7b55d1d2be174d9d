package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"escrowd/core/types"
)

const (
	EventTypeDeposited       = "escrow.deposited"
	EventTypeSubmitted       = "escrow.submitted"
	EventTypeApproved        = "escrow.approved"
	EventTypeRefilled        = "escrow.refilled"
	EventTypeClaimed         = "escrow.claimed"
	EventTypeBulkClaimed     = "escrow.bulk_claimed"
	EventTypeWithdrawn       = "escrow.withdrawn"
	EventTypeReturnRequested = "escrow.return_requested"
	EventTypeReturnApproved  = "escrow.return_approved"
	EventTypeReturnCanceled  = "escrow.return_canceled"
	EventTypeDisputeCreated  = "escrow.dispute_created"
	EventTypeDisputeResolved = "escrow.dispute_resolved"
)

// NewDepositedEvent returns the canonical event payload for a funded unit,
// including the gross amount actually pulled from the client.
func NewDepositedEvent(c *Contract, index uint64, u *Unit, quote DepositQuote) *types.Event {
	evt := newUnitEvent(EventTypeDeposited, c, index, u)
	evt.Attributes["grossAmount"] = bigString(quote.Total)
	evt.Attributes["depositFee"] = bigString(quote.Fee)
	return evt
}

// NewSubmittedEvent returns the canonical event payload for an accepted
// commit-reveal submission.
func NewSubmittedEvent(c *Contract, index uint64, u *Unit) *types.Event {
	return newUnitEvent(EventTypeSubmitted, c, index, u)
}

// NewApprovedEvent returns the canonical event payload for an approval,
// carrying both the approved and any simultaneously refilled amount.
func NewApprovedEvent(c *Contract, index uint64, u *Unit, approved, refilled *big.Int) *types.Event {
	evt := newUnitEvent(EventTypeApproved, c, index, u)
	evt.Attributes["amountApproved"] = bigString(approved)
	if refilled != nil && refilled.Sign() > 0 {
		evt.Attributes["amountRefilled"] = bigString(refilled)
	}
	return evt
}

// NewRefilledEvent returns the canonical event payload for a refill.
func NewRefilledEvent(c *Contract, index uint64, u *Unit, additional *big.Int) *types.Event {
	evt := newUnitEvent(EventTypeRefilled, c, index, u)
	evt.Attributes["amountRefilled"] = bigString(additional)
	return evt
}

// NewClaimedEvent returns the canonical event payload for a single-unit claim.
func NewClaimedEvent(c *Contract, index uint64, u *Unit, quote ClaimQuote) *types.Event {
	evt := newUnitEvent(EventTypeClaimed, c, index, u)
	evt.Attributes["amountClaimed"] = bigString(quote.Requested)
	evt.Attributes["netAmount"] = bigString(quote.Net)
	evt.Attributes["fee"] = bigString(quote.Fee)
	evt.Attributes["clientFee"] = bigString(quote.ClientFee)
	return evt
}

// NewBulkClaimedEvent returns the aggregate event payload for a batch claim.
func NewBulkClaimedEvent(c *Contract, result *BatchClaimResult) *types.Event {
	attrs := map[string]string{
		"contractId": strconv.FormatUint(c.ID, 10),
		"startUnit":  strconv.FormatUint(result.StartUnit, 10),
		"endUnit":    strconv.FormatUint(result.EndUnit, 10),
		"units":      strconv.FormatUint(result.UnitsClaimed, 10),
		"total":      bigString(result.TotalClaimed),
		"fee":        bigString(result.TotalFee),
		"clientFee":  bigString(result.TotalClientFee),
	}
	return &types.Event{Type: EventTypeBulkClaimed, Attributes: attrs}
}

// NewWithdrawnEvent returns the canonical event payload for a client
// withdrawal, carrying the withdrawn principal and the fee returned with it.
func NewWithdrawnEvent(c *Contract, index uint64, u *Unit, withdrawn, feeReturned *big.Int) *types.Event {
	evt := newUnitEvent(EventTypeWithdrawn, c, index, u)
	evt.Attributes["amountWithdrawn"] = bigString(withdrawn)
	evt.Attributes["feeReturned"] = bigString(feeReturned)
	return evt
}

// NewReturnRequestedEvent returns the canonical event payload for an opened
// return request, recording which party initiated it.
func NewReturnRequestedEvent(c *Contract, index uint64, u *Unit) *types.Event {
	evt := newUnitEvent(EventTypeReturnRequested, c, index, u)
	evt.Attributes["returnedBy"] = u.ReturnedBy.String()
	return evt
}

// NewReturnApprovedEvent returns the canonical event payload for a conceded
// return request.
func NewReturnApprovedEvent(c *Contract, index uint64, u *Unit) *types.Event {
	return newUnitEvent(EventTypeReturnApproved, c, index, u)
}

// NewReturnCanceledEvent returns the canonical event payload for a canceled
// return request.
func NewReturnCanceledEvent(c *Contract, index uint64, u *Unit) *types.Event {
	return newUnitEvent(EventTypeReturnCanceled, c, index, u)
}

// NewDisputeCreatedEvent returns the canonical event payload for a contested
// return request.
func NewDisputeCreatedEvent(c *Contract, index uint64, u *Unit) *types.Event {
	return newUnitEvent(EventTypeDisputeCreated, c, index, u)
}

// NewDisputeResolvedEvent returns the canonical event payload for a resolved
// dispute, carrying the winner selector and both split amounts.
func NewDisputeResolvedEvent(c *Contract, index uint64, u *Unit, winner Winner, toClient, toContractor *big.Int) *types.Event {
	evt := newUnitEvent(EventTypeDisputeResolved, c, index, u)
	evt.Attributes["winner"] = winner.String()
	evt.Attributes["clientAmount"] = bigString(toClient)
	evt.Attributes["contractorAmount"] = bigString(toContractor)
	return evt
}

func newUnitEvent(eventType string, c *Contract, index uint64, u *Unit) *types.Event {
	attrs := make(map[string]string)
	if c == nil || u == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["contractId"] = strconv.FormatUint(c.ID, 10)
	attrs["unitIndex"] = strconv.FormatUint(index, 10)
	attrs["shape"] = c.Shape.String()
	attrs["client"] = hex.EncodeToString(c.Client[:])
	attrs["token"] = u.Token
	attrs["amount"] = bigString(u.Amount)
	attrs["amountToClaim"] = bigString(u.AmountToClaim)
	attrs["amountToWithdraw"] = bigString(u.AmountToWithdraw)
	attrs["feeConfig"] = u.FeeConfig.String()
	attrs["status"] = u.Status.String()
	if u.Contractor != ([20]byte{}) {
		attrs["contractor"] = hex.EncodeToString(u.Contractor[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
