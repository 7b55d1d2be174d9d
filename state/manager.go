// Package state persists escrow contracts, accounts and vault balances on a
// storage.Database, implementing the escrow engine's state contract.
package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"escrowd/core/types"
	"escrowd/native/escrow"
	"escrowd/storage"
)

const (
	contractPrefix = "escrow/contract/"
	vaultPrefix    = "escrow/vault/"
	accountPrefix  = "account/"
	counterKey     = "escrow/counter"
)

// Manager is the storage-backed state used by the escrow engine. Every write
// sanitizes its payload so invariant-violating records never persist.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager creates a state manager over the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func contractKey(id uint64) []byte {
	key := make([]byte, len(contractPrefix)+8)
	copy(key, contractPrefix)
	binary.BigEndian.PutUint64(key[len(contractPrefix):], id)
	return key
}

func vaultKey(id uint64, token string) []byte {
	return []byte(fmt.Sprintf("%s%d/%s", vaultPrefix, id, token))
}

func accountKey(addr []byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr))
}

// ContractPut validates and persists a contract record.
func (m *Manager) ContractPut(contract *escrow.Contract) error {
	sanitized, err := escrow.SanitizeContract(contract)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(contractKey(sanitized.ID), raw)
}

// ContractGet loads a contract record by id.
func (m *Manager) ContractGet(id uint64) (*escrow.Contract, bool) {
	raw, err := m.db.Get(contractKey(id))
	if err != nil {
		return nil, false
	}
	contract := &escrow.Contract{}
	if err := json.Unmarshal(raw, contract); err != nil {
		return nil, false
	}
	return contract, true
}

// NextContractID increments and returns the global contract id counter. The
// first allocated id is 1; zero marks "allocate a new contract" on deposits.
func (m *Manager) NextContractID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.counter() + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put([]byte(counterKey), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// ContractCounter returns the most recently allocated contract id.
func (m *Manager) ContractCounter() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter()
}

func (m *Manager) counter() uint64 {
	raw, err := m.db.Get([]byte(counterKey))
	if err != nil || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// VaultAddress returns the deterministic vault address holding escrowed funds
// for a token.
func (m *Manager) VaultAddress(token string) ([20]byte, error) {
	normalized, err := escrow.NormalizeToken(token)
	if err != nil {
		return [20]byte{}, err
	}
	return escrow.VaultAddressForToken(normalized), nil
}

// VaultCredit records funds entering a contract's vault balance.
func (m *Manager) VaultCredit(id uint64, token string, amt *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: negative vault credit")
	}
	if amt.Sign() == 0 {
		return nil
	}
	balance, err := m.vaultBalance(id, token)
	if err != nil {
		return err
	}
	return m.putVaultBalance(id, token, balance.Add(balance, amt))
}

// VaultDebit records funds leaving a contract's vault balance. The balance
// never goes negative; an over-debit aborts.
func (m *Manager) VaultDebit(id uint64, token string, amt *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: negative vault debit")
	}
	if amt.Sign() == 0 {
		return nil
	}
	balance, err := m.vaultBalance(id, token)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: vault balance %s below debit %s for contract %d", balance, amt, id)
	}
	return m.putVaultBalance(id, token, balance.Sub(balance, amt))
}

// VaultBalance returns the funds currently held for a contract in the given
// token.
func (m *Manager) VaultBalance(id uint64, token string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vaultBalance(id, token)
}

func (m *Manager) vaultBalance(id uint64, token string) (*big.Int, error) {
	raw, err := m.db.Get(vaultKey(id, token))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt vault balance for contract %d", id)
	}
	return balance, nil
}

func (m *Manager) putVaultBalance(id uint64, token string, balance *big.Int) error {
	return m.db.Put(vaultKey(id, token), []byte(balance.String()))
}

// GetAccount loads an account record, returning an empty account for unknown
// addresses.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, err
	}
	if account.Balances == nil {
		account.Balances = make(map[string]*big.Int)
	}
	return account, nil
}

// PutAccount persists an account record.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), raw)
}

// Mint credits an account balance directly. It exists for genesis funding and
// tests; escrow operations themselves only ever move existing balances.
func (m *Manager) Mint(addr [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: mint amount must be non-negative")
	}
	account, err := m.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account.SetBalance(token, new(big.Int).Add(account.Balance(token), amount))
	return m.PutAccount(addr[:], account)
}
