package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/native/escrow"
	"escrowd/storage"
)

var (
	clientAddr     = [20]byte{0x01}
	contractorAddr = [20]byte{0x02}
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func sampleContract(id uint64) *escrow.Contract {
	return &escrow.Contract{
		ID:     id,
		Client: clientAddr,
		Shape:  escrow.ShapeMilestone,
		Units: []*escrow.Unit{{
			Contractor:       contractorAddr,
			Token:            "USDT",
			Amount:           big.NewInt(100),
			AmountToClaim:    big.NewInt(40),
			AmountToWithdraw: big.NewInt(0),
			Status:           escrow.StatusApproved,
			FeeConfig:        escrow.FeeClientCoversAll,
		}},
		CreatedAt: 1_700_000_000,
		UpdatedAt: 1_700_000_100,
	}
}

func TestContractRoundTrip(t *testing.T) {
	m := newTestManager(t)
	original := sampleContract(1)
	require.NoError(t, m.ContractPut(original))

	loaded, ok := m.ContractGet(1)
	require.True(t, ok)
	require.Equal(t, original.ID, loaded.ID)
	require.Equal(t, original.Client, loaded.Client)
	require.Equal(t, original.Shape, loaded.Shape)
	require.Len(t, loaded.Units, 1)
	require.Equal(t, escrow.StatusApproved, loaded.Units[0].Status)
	require.Zero(t, loaded.Units[0].Amount.Cmp(big.NewInt(100)))
	require.Zero(t, loaded.Units[0].AmountToClaim.Cmp(big.NewInt(40)))
	require.Equal(t, contractorAddr, loaded.Units[0].Contractor)
}

func TestContractGetUnknown(t *testing.T) {
	m := newTestManager(t)
	_, ok := m.ContractGet(99)
	require.False(t, ok)
}

func TestContractPutRejectsInvariantViolations(t *testing.T) {
	m := newTestManager(t)
	bad := sampleContract(1)
	bad.Units[0].AmountToClaim = big.NewInt(101)
	require.Error(t, m.ContractPut(bad))
	_, ok := m.ContractGet(1)
	require.False(t, ok, "invalid record must not persist")
}

func TestContractIDCounter(t *testing.T) {
	m := newTestManager(t)
	require.EqualValues(t, 0, m.ContractCounter())

	first, err := m.NextContractID()
	require.NoError(t, err)
	require.EqualValues(t, 1, first, "ids start at 1; zero means allocate")
	second, err := m.NextContractID()
	require.NoError(t, err)
	require.EqualValues(t, 2, second)
	require.EqualValues(t, 2, m.ContractCounter())
}

func TestVaultBalanceNeverNegative(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.VaultCredit(1, "USDT", big.NewInt(100)))

	require.Error(t, m.VaultDebit(1, "USDT", big.NewInt(101)))
	balance, err := m.VaultBalance(1, "USDT")
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(100)), "failed debit must not change the balance")

	require.NoError(t, m.VaultDebit(1, "USDT", big.NewInt(100)))
	balance, err = m.VaultBalance(1, "USDT")
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestVaultBalancesIsolatedPerContractAndToken(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.VaultCredit(1, "USDT", big.NewInt(10)))
	require.NoError(t, m.VaultCredit(1, "USDC", big.NewInt(20)))
	require.NoError(t, m.VaultCredit(2, "USDT", big.NewInt(30)))

	for _, tc := range []struct {
		id    uint64
		token string
		want  int64
	}{
		{1, "USDT", 10},
		{1, "USDC", 20},
		{2, "USDT", 30},
		{3, "USDT", 0},
	} {
		balance, err := m.VaultBalance(tc.id, tc.token)
		require.NoError(t, err)
		require.EqualValues(t, tc.want, balance.Int64())
	}
}

func TestVaultRejectsNegativeAmounts(t *testing.T) {
	m := newTestManager(t)
	require.Error(t, m.VaultCredit(1, "USDT", big.NewInt(-1)))
	require.Error(t, m.VaultDebit(1, "USDT", big.NewInt(-1)))
	require.Error(t, m.VaultCredit(1, "USDT", nil))
}

func TestAccountRoundTripAndMint(t *testing.T) {
	m := newTestManager(t)

	account, err := m.GetAccount(clientAddr[:])
	require.NoError(t, err)
	require.Zero(t, account.Balance("USDT").Sign(), "unknown account reads as empty")

	require.NoError(t, m.Mint(clientAddr, "USDT", big.NewInt(500)))
	require.NoError(t, m.Mint(clientAddr, "USDT", big.NewInt(250)))
	account, err = m.GetAccount(clientAddr[:])
	require.NoError(t, err)
	require.Zero(t, account.Balance("USDT").Cmp(big.NewInt(750)))

	account.Nonce = 3
	account.SetBalance("USDC", big.NewInt(7))
	require.NoError(t, m.PutAccount(clientAddr[:], account))
	loaded, err := m.GetAccount(clientAddr[:])
	require.NoError(t, err)
	require.EqualValues(t, 3, loaded.Nonce)
	require.Zero(t, loaded.Balance("USDC").Cmp(big.NewInt(7)))
}

func TestVaultAddressNormalizesToken(t *testing.T) {
	m := newTestManager(t)
	upper, err := m.VaultAddress("USDT")
	require.NoError(t, err)
	lower, err := m.VaultAddress(" usdt ")
	require.NoError(t, err)
	require.Equal(t, upper, lower)

	_, err = m.VaultAddress("  ")
	require.Error(t, err)
}
