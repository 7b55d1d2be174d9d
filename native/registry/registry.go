// Package registry provides config-backed implementations of the escrow
// engine's external collaborators: the token/blacklist/treasury registry and
// the admin role set.
package registry

import (
	"strings"
	"sync"
)

// Registry resolves token support, blacklisted accounts and the treasury
// address from an in-memory table seeded at construction time and mutable at
// runtime by operators.
type Registry struct {
	mu        sync.RWMutex
	tokens    map[string]struct{}
	blacklist map[[20]byte]struct{}
	treasury  [20]byte
}

// New creates a registry supporting the given token symbols with the given
// treasury address.
func New(tokens []string, treasury [20]byte) *Registry {
	r := &Registry{
		tokens:    make(map[string]struct{}, len(tokens)),
		blacklist: make(map[[20]byte]struct{}),
		treasury:  treasury,
	}
	for _, token := range tokens {
		trimmed := strings.ToUpper(strings.TrimSpace(token))
		if trimmed == "" {
			continue
		}
		r.tokens[trimmed] = struct{}{}
	}
	return r
}

// IsTokenSupported reports whether the token may denominate escrow units.
func (r *Registry) IsTokenSupported(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[strings.ToUpper(strings.TrimSpace(token))]
	return ok
}

// AddToken whitelists a token symbol.
func (r *Registry) AddToken(token string) {
	trimmed := strings.ToUpper(strings.TrimSpace(token))
	if trimmed == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[trimmed] = struct{}{}
}

// IsBlacklisted reports whether the identity is currently barred from every
// mutating escrow operation.
func (r *Registry) IsBlacklisted(addr [20]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blacklist[addr]
	return ok
}

// SetBlacklisted adds or removes an identity from the blacklist.
func (r *Registry) SetBlacklisted(addr [20]byte, banned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if banned {
		r.blacklist[addr] = struct{}{}
		return
	}
	delete(r.blacklist, addr)
}

// TreasuryAddress returns the address receiving fee components.
func (r *Registry) TreasuryAddress() [20]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.treasury
}

// SetTreasury updates the treasury address.
func (r *Registry) SetTreasury(addr [20]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.treasury = addr
}

// RoleSet resolves admin membership from a fixed address set.
type RoleSet struct {
	mu     sync.RWMutex
	admins map[[20]byte]struct{}
}

// NewRoleSet creates a role set with the given admin addresses.
func NewRoleSet(admins [][20]byte) *RoleSet {
	rs := &RoleSet{admins: make(map[[20]byte]struct{}, len(admins))}
	for _, addr := range admins {
		if addr == ([20]byte{}) {
			continue
		}
		rs.admins[addr] = struct{}{}
	}
	return rs
}

// IsAdmin reports whether the identity holds the admin role.
func (rs *RoleSet) IsAdmin(addr [20]byte) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.admins[addr]
	return ok
}

// Grant adds an identity to the admin role.
func (rs *RoleSet) Grant(addr [20]byte) {
	if addr == ([20]byte{}) {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.admins[addr] = struct{}{}
}

// Revoke removes an identity from the admin role.
func (rs *RoleSet) Revoke(addr [20]byte) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.admins, addr)
}
