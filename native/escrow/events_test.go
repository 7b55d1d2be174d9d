package escrow

import (
	"math/big"
	"testing"

	"escrowd/core/events"
	"escrowd/core/types"
)

type captureEmitter struct {
	emitted []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		c.emitted = append(c.emitted, carrier.Event())
	}
}

func (c *captureEmitter) types() []string {
	names := make([]string, 0, len(c.emitted))
	for _, evt := range c.emitted {
		names = append(names, evt.Type)
	}
	return names
}

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	capture := &captureEmitter{}
	env.engine.SetEmitter(capture)

	ref := env.deposit(t, ShapeFixed, 100, [20]byte{})
	env.submit(t, ref)
	if err := env.engine.Approve(testClient, ref, big.NewInt(100), nil, testContractor); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.engine.Claim(testContractor, ref); err != nil {
		t.Fatalf("claim: %v", err)
	}

	want := []string{EventTypeDeposited, EventTypeSubmitted, EventTypeApproved, EventTypeClaimed}
	got := capture.types()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("event %d: expected %s, got %s", i, name, got[i])
		}
	}
}

func TestDepositedEventAttributes(t *testing.T) {
	env := newTestEnv(t)
	capture := &captureEmitter{}
	env.engine.SetEmitter(capture)

	env.deposit(t, ShapeFixed, 100, [20]byte{})
	if len(capture.emitted) != 1 {
		t.Fatalf("expected one event, got %d", len(capture.emitted))
	}
	attrs := capture.emitted[0].Attributes
	if attrs["contractId"] != "1" || attrs["unitIndex"] != "0" {
		t.Fatalf("unexpected locator attributes: %v", attrs)
	}
	if attrs["amount"] != "100" || attrs["grossAmount"] != "105" || attrs["depositFee"] != "5" {
		t.Fatalf("unexpected amount attributes: %v", attrs)
	}
	if attrs["status"] != "ACTIVE" || attrs["shape"] != "FIXED" || attrs["feeConfig"] != "CLIENT_COVERS_ALL" {
		t.Fatalf("unexpected descriptor attributes: %v", attrs)
	}
}

func TestDisputeResolvedEventAttributes(t *testing.T) {
	env := newTestEnv(t)
	ref := env.depositWith(t, ShapeFixed, 100, [20]byte{}, FeeNone)
	env.submit(t, ref)
	if err := env.engine.RequestReturn(testClient, ref); err != nil {
		t.Fatalf("requestReturn: %v", err)
	}
	if err := env.engine.CreateDispute(testContractor, ref); err != nil {
		t.Fatalf("createDispute: %v", err)
	}

	capture := &captureEmitter{}
	env.engine.SetEmitter(capture)
	if err := env.engine.ResolveDispute(testAdmin, ref, WinnerSplit, big.NewInt(60), big.NewInt(40)); err != nil {
		t.Fatalf("resolveDispute: %v", err)
	}
	if len(capture.emitted) != 1 {
		t.Fatalf("expected one event, got %d", len(capture.emitted))
	}
	attrs := capture.emitted[0].Attributes
	if attrs["winner"] != "SPLIT" || attrs["clientAmount"] != "60" || attrs["contractorAmount"] != "40" {
		t.Fatalf("unexpected resolution attributes: %v", attrs)
	}
	if attrs["status"] != "RESOLVED" {
		t.Fatalf("unexpected status attribute: %v", attrs)
	}
}
