package escrow

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestStatusParsing(t *testing.T) {
	for status, name := range statusNames {
		parsed, err := ParseStatus(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if parsed != status {
			t.Fatalf("parse %q: got %s", name, parsed)
		}
	}
	if parsed, err := ParseStatus(" approved "); err != nil || parsed != StatusApproved {
		t.Fatalf("case-insensitive parse failed: %v / %s", err, parsed)
	}
	if _, err := ParseStatus("PENDING"); !errors.Is(err, ErrInvalidStatusProvided) {
		t.Fatalf("unknown status: expected ErrInvalidStatusProvided, got %v", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	for status := range statusNames {
		want := status == StatusCompleted || status == StatusCanceled
		if status.Terminal() != want {
			t.Fatalf("%s: Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}

func TestEnumJSONRejection(t *testing.T) {
	var status Status
	if err := json.Unmarshal([]byte(`"DISPUTED"`), &status); err != nil || status != StatusDisputed {
		t.Fatalf("valid status decode failed: %v", err)
	}
	if err := json.Unmarshal([]byte(`"MAYBE"`), &status); err == nil {
		t.Fatalf("unknown status must not decode")
	}

	var winner Winner
	if err := json.Unmarshal([]byte(`"SPLIT"`), &winner); err != nil || winner != WinnerSplit {
		t.Fatalf("valid winner decode failed: %v", err)
	}
	if err := json.Unmarshal([]byte(`"NONE"`), &winner); err == nil {
		t.Fatalf("winner NONE must not decode")
	}
	if err := json.Unmarshal([]byte(`"DRAW"`), &winner); err == nil {
		t.Fatalf("unknown winner must not decode")
	}

	var shape Shape
	if err := json.Unmarshal([]byte(`"HOURLY"`), &shape); err != nil || shape != ShapeHourly {
		t.Fatalf("valid shape decode failed: %v", err)
	}
	if err := json.Unmarshal([]byte(`"RETAINER"`), &shape); err == nil {
		t.Fatalf("unknown shape must not decode")
	}

	var cfg FeeConfig
	if err := json.Unmarshal([]byte(`"NO_FEES"`), &cfg); err != nil || cfg != FeeNone {
		t.Fatalf("valid fee config decode failed: %v", err)
	}
	if err := json.Unmarshal([]byte(`"HALF_HALF"`), &cfg); err == nil {
		t.Fatalf("unknown fee config must not decode")
	}
}

func TestWinnerValidity(t *testing.T) {
	for _, winner := range []Winner{WinnerClient, WinnerContractor, WinnerSplit} {
		if !winner.Valid() {
			t.Fatalf("%s should be valid", winner)
		}
	}
	if WinnerNone.Valid() {
		t.Fatalf("WinnerNone must not be an actionable outcome")
	}
	if Winner(42).Valid() {
		t.Fatalf("out-of-range winner must not be valid")
	}
}

func TestNormalizeToken(t *testing.T) {
	token, err := NormalizeToken("  usdt ")
	if err != nil || token != "USDT" {
		t.Fatalf("normalize: got %q, %v", token, err)
	}
	if _, err := NormalizeToken("   "); !errors.Is(err, ErrNotSupportedToken) {
		t.Fatalf("blank token: expected ErrNotSupportedToken, got %v", err)
	}
}

func TestUnitValidate(t *testing.T) {
	base := func() *Unit {
		return &Unit{
			Token:            "USDT",
			Amount:           big.NewInt(100),
			AmountToClaim:    big.NewInt(40),
			AmountToWithdraw: big.NewInt(60),
			Status:           StatusResolved,
			FeeConfig:        FeeNone,
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("valid unit rejected: %v", err)
	}

	unit := base()
	unit.AmountToClaim = big.NewInt(101)
	if err := unit.Validate(); err == nil {
		t.Fatalf("claimable above amount must fail")
	}
	unit = base()
	unit.AmountToWithdraw = big.NewInt(101)
	if err := unit.Validate(); err == nil {
		t.Fatalf("withdrawable above amount must fail")
	}
	unit = base()
	unit.AmountToClaim = big.NewInt(50)
	unit.AmountToWithdraw = big.NewInt(51)
	if err := unit.Validate(); err == nil {
		t.Fatalf("claim plus withdraw above amount must fail")
	}
	unit = base()
	unit.Amount = big.NewInt(-1)
	if err := unit.Validate(); err == nil {
		t.Fatalf("negative amount must fail")
	}
	unit = base()
	unit.Status = Status(42)
	if err := unit.Validate(); err == nil {
		t.Fatalf("invalid status must fail")
	}
}

func TestSanitizeContract(t *testing.T) {
	contract := &Contract{
		ID:     7,
		Client: testClient,
		Shape:  ShapeMilestone,
		Units: []*Unit{{
			Token:     "usdt",
			Amount:    big.NewInt(10),
			Status:    StatusActive,
			FeeConfig: FeeNone,
		}},
	}
	sanitized, err := SanitizeContract(contract)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Units[0].Token != "USDT" {
		t.Fatalf("token not canonicalised: %s", sanitized.Units[0].Token)
	}
	if sanitized.Units[0].AmountToClaim == nil || sanitized.Units[0].AmountToWithdraw == nil {
		t.Fatalf("nil amounts not normalised")
	}
	// The input must not be mutated.
	if contract.Units[0].Token != "usdt" {
		t.Fatalf("sanitize mutated its input")
	}

	if _, err := SanitizeContract(&Contract{ID: 0, Client: testClient, Shape: ShapeFixed}); err == nil {
		t.Fatalf("zero id must fail")
	}
	if _, err := SanitizeContract(&Contract{ID: 1, Shape: ShapeFixed}); !errors.Is(err, ErrZeroAddressProvided) {
		t.Fatalf("zero client: expected ErrZeroAddressProvided, got %v", err)
	}
	if _, err := SanitizeContract(&Contract{ID: 1, Client: testClient, Shape: ShapeUnspecified}); !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("unspecified shape: expected ErrInvalidShape, got %v", err)
	}
}

func TestContractClone(t *testing.T) {
	contract := &Contract{
		ID:     3,
		Client: testClient,
		Shape:  ShapeFixed,
		Units: []*Unit{{
			Token:            "USDT",
			Amount:           big.NewInt(100),
			AmountToClaim:    big.NewInt(0),
			AmountToWithdraw: big.NewInt(0),
			Status:           StatusActive,
		}},
	}
	clone := contract.Clone()
	clone.Units[0].Amount.SetInt64(999)
	clone.Units[0].Status = StatusCanceled
	if contract.Units[0].Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("clone shares amount storage")
	}
	if contract.Units[0].Status != StatusActive {
		t.Fatalf("clone shares unit storage")
	}
}
