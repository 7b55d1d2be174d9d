package escrow

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"escrowd/core/events"
	"escrowd/core/types"
)

// engineState is the persistence backend the engine drives. Implementations
// must apply each call atomically.
type engineState interface {
	ContractPut(*Contract) error
	ContractGet(id uint64) (*Contract, bool)
	NextContractID() (uint64, error)
	ContractCounter() uint64
	VaultCredit(id uint64, token string, amt *big.Int) error
	VaultDebit(id uint64, token string, amt *big.Int) error
	VaultAddress(token string) ([20]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Registry resolves token support, account blacklisting and the treasury
// address. It is an external collaborator consulted on every round-trip, never
// cached across calls.
type Registry interface {
	IsTokenSupported(token string) bool
	IsBlacklisted(addr [20]byte) bool
	TreasuryAddress() [20]byte
}

// RoleSet resolves admin membership.
type RoleSet interface {
	IsAdmin(addr [20]byte) bool
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// UnitRef locates one unit: the contract's single deposit in the fixed shape,
// index N within the contract's unit list otherwise.
type UnitRef struct {
	ContractID uint64
	UnitIndex  uint64
}

// DepositRequest carries the inputs of a deposit operation. A zero ContractID
// allocates a new contract of the requested shape; a nonzero ContractID
// appends a unit to an existing milestone or hourly contract.
type DepositRequest struct {
	ContractID     uint64
	Shape          Shape
	Token          string
	Amount         *big.Int
	Contractor     [20]byte
	ContractorData [32]byte
	FeeConfig      FeeConfig
}

// Engine owns the per-unit escrow lifecycle. Every mutating operation holds
// the engine mutex for its full read-modify-write sequence, so callers on a
// non-atomic substrate get the same serialisation guarantee a transactional
// platform would provide.
type Engine struct {
	mu          sync.Mutex
	state       engineState
	registry    Registry
	roles       RoleSet
	fees        feeShim
	emitter     events.Emitter
	maxUnits    uint64
	nowFn       func() int64
	initialized bool
}

// DefaultMaxUnits caps the number of units a milestone or hourly contract may
// accumulate when no explicit limit is configured.
const DefaultMaxUnits = 64

// NewEngine creates an escrow engine with a no-op emitter. The engine is not
// usable until Initialize is called.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		maxUnits: DefaultMaxUnits,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// Initialize wires the engine to its collaborators. It may be called exactly
// once; a second call fails with ErrAlreadyInitialized.
func (e *Engine) Initialize(state engineState, registry Registry, roles RoleSet, maxUnits uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return ErrAlreadyInitialized
	}
	if state == nil {
		return fmt.Errorf("escrow: state must not be nil")
	}
	if registry == nil {
		return fmt.Errorf("escrow: registry must not be nil")
	}
	if roles == nil {
		return fmt.Errorf("escrow: role set must not be nil")
	}
	e.state = state
	e.registry = registry
	e.roles = roles
	if maxUnits > 0 {
		e.maxUnits = maxUnits
	}
	e.initialized = true
	return nil
}

// SetFeeEngine configures the external fee engine. Deposits, refills, claims
// and withdraws fail with ErrNotSetFeeManager until one is set.
func (e *Engine) SetFeeEngine(engine FeeEngine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fees = feeShim{engine: engine}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// requireReady checks the preconditions shared by every mutating operation:
// the engine is initialized and the acting identity is not blacklisted. It is
// consulted before any state mutation or fund movement.
func (e *Engine) requireReady(caller [20]byte) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if caller == ([20]byte{}) {
		return fmt.Errorf("%w: caller", ErrZeroAddressProvided)
	}
	if e.registry.IsBlacklisted(caller) {
		return fmt.Errorf("%w: %s", ErrBlacklistedAccount, hex.EncodeToString(caller[:]))
	}
	return nil
}

func unauthorized(account [20]byte) error {
	return fmt.Errorf("%w: %s", ErrUnauthorizedAccount, hex.EncodeToString(account[:]))
}

func (e *Engine) isAdmin(caller [20]byte) bool {
	return e.roles != nil && e.roles.IsAdmin(caller)
}

func requireClient(contract *Contract, caller [20]byte) error {
	if contract.Client != caller {
		return unauthorized(caller)
	}
	return nil
}

func (e *Engine) requireClientOrAdmin(contract *Contract, caller [20]byte) error {
	if contract.Client == caller || e.isAdmin(caller) {
		return nil
	}
	return unauthorized(caller)
}

func requireContractor(unit *Unit, caller [20]byte) error {
	if unit.Contractor == ([20]byte{}) || unit.Contractor != caller {
		return unauthorized(caller)
	}
	return nil
}

func (e *Engine) requireContractorOrAdmin(unit *Unit, caller [20]byte) error {
	if unit.Contractor != ([20]byte{}) && unit.Contractor == caller {
		return nil
	}
	if e.isAdmin(caller) {
		return nil
	}
	return unauthorized(caller)
}

func (e *Engine) loadContract(id uint64) (*Contract, error) {
	contract, ok := e.state.ContractGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrContractNotFound, id)
	}
	return contract, nil
}

func (e *Engine) loadUnit(ref UnitRef) (*Contract, *Unit, error) {
	contract, err := e.loadContract(ref.ContractID)
	if err != nil {
		return nil, nil, err
	}
	unit := contract.UnitAt(ref.UnitIndex)
	if unit == nil {
		return nil, nil, fmt.Errorf("%w: contract %d unit %d", ErrUnitNotFound, ref.ContractID, ref.UnitIndex)
	}
	return contract, unit, nil
}

func (e *Engine) storeContract(contract *Contract) error {
	contract.UpdatedAt = e.now()
	return e.state.ContractPut(contract)
}

// transferToken moves value between two accounts. It assumes the caller has
// already validated token support; an insufficient balance aborts the
// transfer atomically.
func (e *Engine) transferToken(from, to [20]byte, token string, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", ErrInvalidAmount)
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	if fromAcc == nil {
		fromAcc = types.NewAccount()
	}
	if toAcc == nil {
		toAcc = types.NewAccount()
	}
	balance := fromAcc.Balance(token)
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("escrow: insufficient %s balance: have %s, need %s", token, balance, amt)
	}
	fromAcc.SetBalance(token, new(big.Int).Sub(balance, amt))
	toAcc.SetBalance(token, new(big.Int).Add(toAcc.Balance(token), amt))
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

func (e *Engine) treasury() ([20]byte, error) {
	addr := e.registry.TreasuryAddress()
	if addr == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("%w: treasury", ErrZeroAddressProvided)
	}
	return addr, nil
}

// Deposit funds a new unit. For a zero ContractID a fresh contract of the
// requested shape is allocated and the caller becomes its client; otherwise a
// unit is appended to the identified contract, which only the client may do.
// The gross amount (requested plus fee component) is pulled from the caller
// into the token vault.
func (e *Engine) Deposit(caller [20]byte, req DepositRequest) (UnitRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return UnitRef{}, err
	}
	if !e.fees.configured() {
		return UnitRef{}, ErrNotSetFeeManager
	}
	amount := cloneBigInt(req.Amount)
	if amount.Sign() <= 0 {
		return UnitRef{}, ErrInvalidAmount
	}
	if !req.FeeConfig.Valid() {
		return UnitRef{}, fmt.Errorf("%w: %d", ErrInvalidFeeConfig, req.FeeConfig)
	}
	token, err := NormalizeToken(req.Token)
	if err != nil {
		return UnitRef{}, err
	}
	if !e.registry.IsTokenSupported(token) {
		return UnitRef{}, fmt.Errorf("%w: %s", ErrNotSupportedToken, token)
	}

	var contract *Contract
	if req.ContractID == 0 {
		if !req.Shape.Valid() {
			return UnitRef{}, fmt.Errorf("%w: %d", ErrInvalidShape, req.Shape)
		}
		id, err := e.state.NextContractID()
		if err != nil {
			return UnitRef{}, err
		}
		now := e.now()
		contract = &Contract{
			ID:        id,
			Client:    caller,
			Shape:     req.Shape,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if req.Shape == ShapeFixed || req.Shape == ShapeHourly {
			contract.Token = token
		}
	} else {
		contract, err = e.loadContract(req.ContractID)
		if err != nil {
			return UnitRef{}, err
		}
		if err := requireClient(contract, caller); err != nil {
			return UnitRef{}, err
		}
	}

	switch contract.Shape {
	case ShapeFixed:
		if len(contract.Units) >= 1 {
			return UnitRef{}, fmt.Errorf("%w: fixed contracts hold a single deposit", ErrTooManyUnits)
		}
	case ShapeMilestone, ShapeHourly:
		if uint64(len(contract.Units)) >= e.maxUnits {
			return UnitRef{}, fmt.Errorf("%w: %d", ErrTooManyUnits, e.maxUnits)
		}
	}
	if contract.Token != "" && token != contract.Token {
		return UnitRef{}, fmt.Errorf("%w: contract is denominated in %s", ErrNotSupportedToken, contract.Token)
	}

	contractor := req.Contractor
	if contract.Shape == ShapeHourly {
		// Hourly units stream to one contractor bound at deposit time.
		if bound := contract.UnitAt(0); bound != nil {
			if contractor == ([20]byte{}) {
				contractor = bound.Contractor
			} else if contractor != bound.Contractor {
				return UnitRef{}, fmt.Errorf("%w: %s", ErrUnauthorizedReceiver, hex.EncodeToString(contractor[:]))
			}
		}
		if contractor == ([20]byte{}) {
			return UnitRef{}, fmt.Errorf("%w: contractor", ErrZeroAddressProvided)
		}
	}

	quote, err := e.fees.quoteDeposit(caller, amount, req.FeeConfig)
	if err != nil {
		return UnitRef{}, err
	}
	vault, err := e.state.VaultAddress(token)
	if err != nil {
		return UnitRef{}, err
	}
	if err := e.transferToken(caller, vault, token, quote.Total); err != nil {
		return UnitRef{}, err
	}
	if err := e.state.VaultCredit(contract.ID, token, quote.Total); err != nil {
		return UnitRef{}, err
	}

	unit := &Unit{
		Contractor:       contractor,
		Token:            token,
		Amount:           amount,
		AmountToClaim:    big.NewInt(0),
		AmountToWithdraw: big.NewInt(0),
		ContractorData:   req.ContractorData,
		FeeConfig:        req.FeeConfig,
		Status:           StatusActive,
	}
	contract.Units = append(contract.Units, unit)
	if err := e.storeContract(contract); err != nil {
		return UnitRef{}, err
	}
	ref := UnitRef{ContractID: contract.ID, UnitIndex: uint64(len(contract.Units) - 1)}
	e.emit(NewDepositedEvent(contract, ref.UnitIndex, unit, quote))
	return ref, nil
}

// Submit opens the commit-reveal proof for a unit. If the unit has no bound
// contractor the caller becomes the contractor; otherwise only the bound
// contractor may submit. On success the stored commitment is replaced by the
// submission receipt and the unit advances to SUBMITTED. A proof mismatch
// performs no mutation.
func (e *Engine) Submit(caller [20]byte, ref UnitRef, data []byte, salt [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	if unit.Status != StatusActive {
		return fmt.Errorf("%w: %s", ErrInvalidStatusForSubmit, unit.Status)
	}
	if unit.Contractor != ([20]byte{}) && unit.Contractor != caller {
		return unauthorized(caller)
	}
	if CommitmentHash(data, salt) != unit.ContractorData {
		return ErrInvalidContractorDataHash
	}
	unit.Contractor = caller
	unit.ContractorData = SubmissionReceipt(caller, data, salt)
	unit.Status = StatusSubmitted
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewSubmittedEvent(contract, ref.UnitIndex, unit))
	return nil
}

// Approve entitles the unit's bound contractor to pull amountApprove. An
// already approved unit may be approved again; the new amount overwrites the
// claimable amount rather than accumulating. A positive amountAdditional
// performs a simultaneous refill first; the fixed shape may approve straight
// from ACTIVE only in combination with such a refill, the hourly shape may
// always approve from ACTIVE, the milestone shape requires SUBMITTED.
func (e *Engine) Approve(caller [20]byte, ref UnitRef, amountApprove, amountAdditional *big.Int, receiver [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	if err := e.requireClientOrAdmin(contract, caller); err != nil {
		return err
	}
	approve := cloneBigInt(amountApprove)
	additional := cloneBigInt(amountAdditional)
	if approve.Sign() < 0 || additional.Sign() < 0 {
		return ErrInvalidAmount
	}
	if approve.Sign() == 0 && additional.Sign() == 0 {
		return ErrInvalidAmount
	}

	switch unit.Status {
	case StatusSubmitted, StatusApproved:
	case StatusActive:
		switch contract.Shape {
		case ShapeHourly:
		case ShapeFixed:
			if additional.Sign() == 0 {
				return fmt.Errorf("%w: %s", ErrInvalidStatusForApprove, unit.Status)
			}
		default:
			return fmt.Errorf("%w: %s", ErrInvalidStatusForApprove, unit.Status)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatusForApprove, unit.Status)
	}

	if receiver == ([20]byte{}) || unit.Contractor == ([20]byte{}) || receiver != unit.Contractor {
		return fmt.Errorf("%w: %s", ErrUnauthorizedReceiver, hex.EncodeToString(receiver[:]))
	}

	if additional.Sign() > 0 {
		if err := e.refillUnit(contract, unit, additional); err != nil {
			return err
		}
	}
	if approve.Sign() > 0 {
		if approve.Cmp(unit.Amount) > 0 {
			return fmt.Errorf("%w: %s > %s", ErrNotEnoughDeposit, approve, unit.Amount)
		}
		unit.AmountToClaim = approve
		unit.Status = StatusApproved
	}
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewApprovedEvent(contract, ref.UnitIndex, unit, approve, additional))
	return nil
}

// Refill adds funds to a unit, pulling the corresponding gross amount from
// the client. Allowed from ACTIVE or SUBMITTED; refilling after submission
// does not change the status.
func (e *Engine) Refill(caller [20]byte, ref UnitRef, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(caller); err != nil {
		return err
	}
	contract, unit, err := e.loadUnit(ref)
	if err != nil {
		return err
	}
	if err := requireClient(contract, caller); err != nil {
		return err
	}
	additional := cloneBigInt(amount)
	if additional.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if unit.Status != StatusActive && unit.Status != StatusSubmitted {
		return fmt.Errorf("%w: %s", ErrRefillNotAllowed, unit.Status)
	}
	if err := e.refillUnit(contract, unit, additional); err != nil {
		return err
	}
	if err := e.storeContract(contract); err != nil {
		return err
	}
	e.emit(NewRefilledEvent(contract, ref.UnitIndex, unit, additional))
	return nil
}

func (e *Engine) refillUnit(contract *Contract, unit *Unit, additional *big.Int) error {
	quote, err := e.fees.quoteDeposit(contract.Client, additional, unit.FeeConfig)
	if err != nil {
		return err
	}
	vault, err := e.state.VaultAddress(unit.Token)
	if err != nil {
		return err
	}
	if err := e.transferToken(contract.Client, vault, unit.Token, quote.Total); err != nil {
		return err
	}
	if err := e.state.VaultCredit(contract.ID, unit.Token, quote.Total); err != nil {
		return err
	}
	unit.Amount = new(big.Int).Add(unit.Amount, additional)
	return nil
}

// Contract returns a deep copy of the identified contract.
func (e *Engine) Contract(id uint64) (*Contract, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	contract, err := e.loadContract(id)
	if err != nil {
		return nil, err
	}
	return contract.Clone(), nil
}

// Unit returns a deep copy of the identified unit.
func (e *Engine) Unit(ref UnitRef) (*Unit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	_, unit, err := e.loadUnit(ref)
	if err != nil {
		return nil, err
	}
	return unit.Clone(), nil
}

// UnitCount returns the number of units held by a contract.
func (e *Engine) UnitCount(contractID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	contract, err := e.loadContract(contractID)
	if err != nil {
		return 0, err
	}
	return uint64(len(contract.Units)), nil
}

// CurrentContractID returns the value of the global contract id counter: the
// id most recently allocated, zero when no contract exists yet.
func (e *Engine) CurrentContractID() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	return e.state.ContractCounter(), nil
}
