package gateway

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"escrowd/native/escrow"
)

// Address is a 20-byte identity encoded as hex in JSON payloads.
type Address [20]byte

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := decodeHex(string(text), 20)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	copy(a[:], decoded)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(a[:])), nil
}

// Hash32 is a 32-byte value encoded as hex in JSON payloads.
type Hash32 [32]byte

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash32) UnmarshalText(text []byte) error {
	decoded, err := decodeHex(string(text), 32)
	if err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}
	copy(h[:], decoded)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// Bytes is an arbitrary byte payload encoded as hex in JSON payloads.
type Bytes []byte

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(text)), "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex payload: %w", err)
	}
	*b = decoded
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

// Amount is a non-negative big integer encoded as a decimal string in JSON
// payloads.
type Amount struct {
	value *big.Int
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	trimmed := strings.TrimSpace(string(text))
	if trimmed == "" {
		a.value = big.NewInt(0)
		return nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return fmt.Errorf("invalid decimal amount %q", trimmed)
	}
	if parsed.Sign() < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	a.value = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.BigInt().String()), nil
}

// BigInt returns the decoded value, zero when unset.
func (a Amount) BigInt() *big.Int {
	if a.value == nil {
		return big.NewInt(0)
	}
	return a.value
}

func decodeHex(raw string, want int) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, err
	}
	if len(decoded) != want {
		return nil, fmt.Errorf("want %d bytes, got %d", want, len(decoded))
	}
	return decoded, nil
}

type depositRequest struct {
	Caller         Address          `json:"caller"`
	ContractID     uint64           `json:"contractId,omitempty"`
	Shape          escrow.Shape     `json:"shape,omitempty"`
	Token          string           `json:"token"`
	Amount         Amount           `json:"amount"`
	Contractor     *Address         `json:"contractor,omitempty"`
	ContractorData Hash32           `json:"contractorData"`
	FeeConfig      escrow.FeeConfig `json:"feeConfig"`
}

type submitRequest struct {
	Caller     Address `json:"caller"`
	ContractID uint64  `json:"contractId"`
	UnitIndex  uint64  `json:"unitIndex"`
	Data       Bytes   `json:"data"`
	Salt       Hash32  `json:"salt"`
}

type approveRequest struct {
	Caller           Address `json:"caller"`
	ContractID       uint64  `json:"contractId"`
	UnitIndex        uint64  `json:"unitIndex"`
	AmountApprove    Amount  `json:"amountApprove"`
	AmountAdditional Amount  `json:"amountAdditional,omitempty"`
	Receiver         Address `json:"receiver"`
}

type refillRequest struct {
	Caller     Address `json:"caller"`
	ContractID uint64  `json:"contractId"`
	UnitIndex  uint64  `json:"unitIndex"`
	Amount     Amount  `json:"amount"`
}

type unitOpRequest struct {
	Caller     Address `json:"caller"`
	ContractID uint64  `json:"contractId"`
	UnitIndex  uint64  `json:"unitIndex"`
}

type cancelReturnRequest struct {
	Caller        Address       `json:"caller"`
	ContractID    uint64        `json:"contractId"`
	UnitIndex     uint64        `json:"unitIndex"`
	RestoreStatus escrow.Status `json:"restoreStatus"`
}

type resolveDisputeRequest struct {
	Caller           Address       `json:"caller"`
	ContractID       uint64        `json:"contractId"`
	UnitIndex        uint64        `json:"unitIndex"`
	Winner           escrow.Winner `json:"winner"`
	ClientAmount     Amount        `json:"clientAmount"`
	ContractorAmount Amount        `json:"contractorAmount"`
}

type claimAllRequest struct {
	Caller     Address `json:"caller"`
	ContractID uint64  `json:"contractId"`
	StartUnit  uint64  `json:"startUnit"`
	EndUnit    uint64  `json:"endUnit"`
}

type unitRefResponse struct {
	ContractID uint64 `json:"contractId"`
	UnitIndex  uint64 `json:"unitIndex"`
}

type unitResponse struct {
	Contractor       string `json:"contractor,omitempty"`
	Token            string `json:"token"`
	Amount           string `json:"amount"`
	AmountToClaim    string `json:"amountToClaim"`
	AmountToWithdraw string `json:"amountToWithdraw"`
	ContractorData   string `json:"contractorData"`
	FeeConfig        string `json:"feeConfig"`
	Status           string `json:"status"`
	ReturnedBy       string `json:"returnedBy,omitempty"`
}

func newUnitResponse(u *escrow.Unit) unitResponse {
	resp := unitResponse{
		Token:            u.Token,
		Amount:           u.Amount.String(),
		AmountToClaim:    u.AmountToClaim.String(),
		AmountToWithdraw: u.AmountToWithdraw.String(),
		ContractorData:   hex.EncodeToString(u.ContractorData[:]),
		FeeConfig:        u.FeeConfig.String(),
		Status:           u.Status.String(),
	}
	if u.Contractor != ([20]byte{}) {
		resp.Contractor = hex.EncodeToString(u.Contractor[:])
	}
	if u.ReturnedBy != escrow.PartyNone {
		resp.ReturnedBy = u.ReturnedBy.String()
	}
	return resp
}

type contractResponse struct {
	ID        uint64         `json:"id"`
	Client    string         `json:"client"`
	Shape     string         `json:"shape"`
	Token     string         `json:"token,omitempty"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
	Units     []unitResponse `json:"units"`
}

func newContractResponse(c *escrow.Contract) contractResponse {
	resp := contractResponse{
		ID:        c.ID,
		Client:    hex.EncodeToString(c.Client[:]),
		Shape:     c.Shape.String(),
		Token:     c.Token,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Units:     make([]unitResponse, 0, len(c.Units)),
	}
	for _, unit := range c.Units {
		resp.Units = append(resp.Units, newUnitResponse(unit))
	}
	return resp
}
