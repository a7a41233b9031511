// Package btcaddr performs structural validation of Bitcoin payout
// addresses: legacy base58 (P2PKH/P2SH) and bech32 segwit forms. It checks
// prefix, length and alphabet only; it does not verify checksums, which is
// the payment rail's job.
package btcaddr

import (
	"strings"
)

const (
	base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	bech32Alphabet = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

// Valid reports whether addr is structurally a mainnet Bitcoin address.
func Valid(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	lower := strings.ToLower(addr)
	if strings.HasPrefix(lower, "bc1") {
		return validBech32(addr)
	}
	return validBase58(addr)
}

func validBase58(addr string) bool {
	if len(addr) < 26 || len(addr) > 35 {
		return false
	}
	if addr[0] != '1' && addr[0] != '3' {
		return false
	}
	for _, r := range addr {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}

func validBech32(addr string) bool {
	// mixed case is invalid per BIP-173
	if addr != strings.ToLower(addr) && addr != strings.ToUpper(addr) {
		return false
	}
	addr = strings.ToLower(addr)
	if len(addr) < 14 || len(addr) > 74 {
		return false
	}
	data := addr[len("bc1"):]
	for _, r := range data {
		if !strings.ContainsRune(bech32Alphabet, r) {
			return false
		}
	}
	return true
}
