package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Status represents the lifecycle states of a single escrow unit.
type Status uint8

const (
	// StatusNone is the unused placeholder value. No operation ever assigns
	// it; a unit in this state was never deposited.
	StatusNone Status = iota
	// StatusActive marks a funded unit with no accepted submission.
	StatusActive
	// StatusSubmitted marks a unit whose contractor is bound and whose
	// commit-reveal proof was accepted.
	StatusSubmitted
	// StatusApproved marks a unit with a claimable amount set.
	StatusApproved
	// StatusCompleted is terminal: the unit's amount was fully claimed.
	StatusCompleted
	// StatusReturnRequested marks a pending return request.
	StatusReturnRequested
	// StatusRefundApproved marks a return the contractor or an admin agreed
	// to; the full amount is withdrawable by the client.
	StatusRefundApproved
	// StatusDisputed marks a contested return request awaiting an admin
	// resolution.
	StatusDisputed
	// StatusResolved marks a resolved dispute with a withdrawable and/or
	// claimable split applied.
	StatusResolved
	// StatusCanceled is terminal: the unit's amount was fully withdrawn.
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusNone:            "NONE",
	StatusActive:          "ACTIVE",
	StatusSubmitted:       "SUBMITTED",
	StatusApproved:        "APPROVED",
	StatusCompleted:       "COMPLETED",
	StatusReturnRequested: "RETURN_REQUESTED",
	StatusRefundApproved:  "REFUND_APPROVED",
	StatusDisputed:        "DISPUTED",
	StatusResolved:        "RESOLVED",
	StatusCanceled:        "CANCELED",
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether the status admits no further fund movement.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", uint8(s))
}

// ParseStatus decodes a canonical status name. Unknown names are rejected so
// malformed wire values never reach transition logic.
func ParseStatus(name string) (Status, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	for status, candidate := range statusNames {
		if candidate == trimmed {
			return status, nil
		}
	}
	return StatusNone, fmt.Errorf("%w: %q", ErrInvalidStatusProvided, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatusProvided, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Shape selects which structural variant a contract follows. The unit state
// machine is shared; shapes only change unit cardinality and a few
// authorization rules.
type Shape uint8

const (
	// ShapeUnspecified prevents zero-value contracts from being persisted
	// unintentionally.
	ShapeUnspecified Shape = iota
	// ShapeFixed holds exactly one unit per contract.
	ShapeFixed
	// ShapeMilestone holds an ordered list of independently progressing
	// units under one contract id.
	ShapeMilestone
	// ShapeHourly holds streaming prepayment units with the contractor
	// bound at deposit time.
	ShapeHourly
)

var shapeNames = map[Shape]string{
	ShapeFixed:     "FIXED",
	ShapeMilestone: "MILESTONE",
	ShapeHourly:    "HOURLY",
}

// Valid reports whether the shape value is within the supported range.
func (s Shape) Valid() bool {
	_, ok := shapeNames[s]
	return ok
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SHAPE(%d)", uint8(s))
}

// ParseShape decodes a canonical shape name.
func ParseShape(name string) (Shape, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	for shape, candidate := range shapeNames {
		if candidate == trimmed {
			return shape, nil
		}
	}
	return ShapeUnspecified, fmt.Errorf("%w: %q", ErrInvalidShape, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShape, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	parsed, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Party tags which side of the agreement performed an action. Return requests
// record their initiator so dispute creation can verify the caller is the
// opposite party instead of assuming a direction.
type Party uint8

const (
	PartyNone Party = iota
	PartyClient
	PartyContractor
)

func (p Party) String() string {
	switch p {
	case PartyClient:
		return "CLIENT"
	case PartyContractor:
		return "CONTRACTOR"
	default:
		return "NONE"
	}
}

// Winner selects how a disputed unit's funds are split between the parties.
type Winner uint8

const (
	WinnerNone Winner = iota
	WinnerClient
	WinnerContractor
	WinnerSplit
)

var winnerNames = map[Winner]string{
	WinnerClient:     "CLIENT",
	WinnerContractor: "CONTRACTOR",
	WinnerSplit:      "SPLIT",
}

// Valid reports whether the winner selects an actionable outcome. WinnerNone
// is representable but never actionable.
func (w Winner) Valid() bool {
	_, ok := winnerNames[w]
	return ok
}

func (w Winner) String() string {
	if name, ok := winnerNames[w]; ok {
		return name
	}
	return "NONE"
}

// ParseWinner decodes a dispute outcome selector, rejecting out-of-range wire
// values before they reach resolution logic.
func ParseWinner(name string) (Winner, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	for winner, candidate := range winnerNames {
		if candidate == trimmed {
			return winner, nil
		}
	}
	return WinnerNone, fmt.Errorf("%w: %q", ErrInvalidWinner, name)
}

// MarshalText implements encoding.TextMarshaler.
func (w Winner) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWinner, w)
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Winner) UnmarshalText(text []byte) error {
	parsed, err := ParseWinner(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// FeeConfig is an opaque mode token passed through to the fee engine; it
// determines which party bears which fee component. The arithmetic lives
// entirely in the engine behind the FeeEngine interface.
type FeeConfig uint8

const (
	// FeeClientCoversAll: the client funds both fee components at deposit
	// time and the contractor receives the full approved amount.
	FeeClientCoversAll FeeConfig = iota
	// FeeClientCoversOnly: the client funds only the client-side component;
	// the contractor-side component is deducted at claim time.
	FeeClientCoversOnly
	// FeeContractorCoversClaim: no fee is added at deposit time; the
	// contractor-side component is deducted at claim time.
	FeeContractorCoversClaim
	// FeeNone disables both fee components.
	FeeNone
)

var feeConfigNames = map[FeeConfig]string{
	FeeClientCoversAll:       "CLIENT_COVERS_ALL",
	FeeClientCoversOnly:      "CLIENT_COVERS_ONLY",
	FeeContractorCoversClaim: "CONTRACTOR_COVERS_CLAIM",
	FeeNone:                  "NO_FEES",
}

// Valid reports whether the fee configuration is within the supported range.
func (f FeeConfig) Valid() bool {
	_, ok := feeConfigNames[f]
	return ok
}

func (f FeeConfig) String() string {
	if name, ok := feeConfigNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FEE_CONFIG(%d)", uint8(f))
}

// ParseFeeConfig decodes a canonical fee configuration name.
func ParseFeeConfig(name string) (FeeConfig, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	for cfg, candidate := range feeConfigNames {
		if candidate == trimmed {
			return cfg, nil
		}
	}
	return FeeClientCoversAll, fmt.Errorf("%w: %q", ErrInvalidFeeConfig, name)
}

// MarshalText implements encoding.TextMarshaler.
func (f FeeConfig) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeConfig, f)
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FeeConfig) UnmarshalText(text []byte) error {
	parsed, err := ParseFeeConfig(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// NormalizeToken returns the canonical uppercase form of a token symbol.
// Whether the token is actually escrowable is decided by the registry.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrNotSupportedToken)
	}
	return trimmed, nil
}

// Unit is one escrowable work item: the whole contract in the fixed shape, a
// single milestone in the milestone shape, one prepayment window in the
// hourly shape. Its storage persists at zero amount as an audit record; units
// are never deleted.
type Unit struct {
	Contractor       [20]byte  `json:"contractor"`
	Token            string    `json:"token"`
	Amount           *big.Int  `json:"amount"`
	AmountToClaim    *big.Int  `json:"amountToClaim"`
	AmountToWithdraw *big.Int  `json:"amountToWithdraw"`
	ContractorData   [32]byte  `json:"contractorData"`
	FeeConfig        FeeConfig `json:"feeConfig"`
	Status           Status    `json:"status"`
	ReturnedBy       Party     `json:"returnedBy"`
}

// Clone returns a deep copy of the unit so callers can safely mutate the copy
// without affecting the stored instance.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Amount = cloneBigInt(u.Amount)
	clone.AmountToClaim = cloneBigInt(u.AmountToClaim)
	clone.AmountToWithdraw = cloneBigInt(u.AmountToWithdraw)
	return &clone
}

// Validate checks the unit's internal fund-conservation invariants.
func (u *Unit) Validate() error {
	if u == nil {
		return fmt.Errorf("escrow: unit must not be nil")
	}
	if !u.Status.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatusProvided, u.Status)
	}
	if !u.FeeConfig.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidFeeConfig, u.FeeConfig)
	}
	amount := cloneBigInt(u.Amount)
	claim := cloneBigInt(u.AmountToClaim)
	withdraw := cloneBigInt(u.AmountToWithdraw)
	if amount.Sign() < 0 || claim.Sign() < 0 || withdraw.Sign() < 0 {
		return fmt.Errorf("%w: negative unit balance", ErrInvalidAmount)
	}
	if claim.Cmp(amount) > 0 {
		return fmt.Errorf("escrow: claimable %s exceeds on-hand amount %s", claim, amount)
	}
	if withdraw.Cmp(amount) > 0 {
		return fmt.Errorf("escrow: withdrawable %s exceeds on-hand amount %s", withdraw, amount)
	}
	if new(big.Int).Add(claim, withdraw).Cmp(amount) > 0 {
		return fmt.Errorf("escrow: claimable plus withdrawable exceeds on-hand amount %s", amount)
	}
	return nil
}

// Contract aggregates one or more units under a monotonically increasing
// contract id.
type Contract struct {
	ID        uint64   `json:"id"`
	Client    [20]byte `json:"client"`
	Shape     Shape    `json:"shape"`
	Token     string   `json:"token,omitempty"`
	Units     []*Unit  `json:"units"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Clone returns a deep copy of the contract.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	clone := *c
	if len(c.Units) > 0 {
		clone.Units = make([]*Unit, len(c.Units))
		for i, unit := range c.Units {
			clone.Units[i] = unit.Clone()
		}
	}
	return &clone
}

// UnitAt returns the unit at the given index or nil when out of bounds.
func (c *Contract) UnitAt(index uint64) *Unit {
	if c == nil || index >= uint64(len(c.Units)) {
		return nil
	}
	return c.Units[index]
}

// SanitizeContract validates and normalises a contract definition, returning a
// cloned instance with canonical token casing and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeContract(c *Contract) (*Contract, error) {
	if c == nil {
		return nil, fmt.Errorf("escrow: nil contract")
	}
	if c.ID == 0 {
		return nil, fmt.Errorf("escrow: contract id must be positive")
	}
	if !c.Shape.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShape, c.Shape)
	}
	if c.Client == ([20]byte{}) {
		return nil, fmt.Errorf("%w: client", ErrZeroAddressProvided)
	}
	clone := c.Clone()
	if clone.Token != "" {
		token, err := NormalizeToken(clone.Token)
		if err != nil {
			return nil, err
		}
		clone.Token = token
	}
	for i, unit := range clone.Units {
		if unit == nil {
			return nil, fmt.Errorf("escrow: nil unit at index %d", i)
		}
		token, err := NormalizeToken(unit.Token)
		if err != nil {
			return nil, err
		}
		unit.Token = token
		unit.Amount = cloneBigInt(unit.Amount)
		unit.AmountToClaim = cloneBigInt(unit.AmountToClaim)
		unit.AmountToWithdraw = cloneBigInt(unit.AmountToWithdraw)
		if err := unit.Validate(); err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
