package utils

import (
	"github.com/ethereum/go-ethereum/common"
)

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// ChecksumAddress converts an address to its EIP-55 checksummed form.
// Callers must validate the input with IsValidAddress first.
func ChecksumAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// SameAddress reports whether two hex addresses refer to the same account
func SameAddress(a, b string) bool {
	if !IsValidAddress(a) || !IsValidAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
