package escrow

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// CommitmentHash computes the double-keccak commitment bound to a unit at
// deposit time. The outer hash hides the inner opening until submission.
func CommitmentHash(data []byte, salt [32]byte) [32]byte {
	inner := ethcrypto.Keccak256(data, salt[:])
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(inner))
	return out
}

// SubmissionReceipt computes the hash that replaces the commitment once a
// submission is accepted. It binds the contractor to the revealed opening; it
// is a receipt, not a secret.
func SubmissionReceipt(contractor [20]byte, data []byte, salt [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(contractor[:], data, salt[:]))
	return out
}

// VaultAddressForToken derives the deterministic address holding escrowed
// funds for a token.
func VaultAddressForToken(token string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("escrowd/vault/"), []byte(token))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
