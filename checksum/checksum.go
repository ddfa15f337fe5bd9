// Package checksum normalises Ethereum addresses into their EIP-55
// mixed-case checksum form.
package checksum

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAddress is returned for input that is not a 20-byte hex address
	ErrInvalidAddress = errors.New("invalid Ethereum address")

	// ErrChecksumMismatch is returned by Verify for mixed-case input whose
	// case pattern does not match the address hash
	ErrChecksumMismatch = errors.New("bad address checksum")
)

// Normalize validates raw and returns its checksummed form.
//
// Surrounding whitespace is ignored and the 0x prefix is optional. Any case
// mixture is accepted; the output case is derived from the address hash, so
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return common.HexToAddress(s).Hex(), nil
}

// IsValid reports whether raw is a syntactically valid address
func IsValid(raw string) bool {
	return common.IsHexAddress(strings.TrimSpace(raw))
}

// Verify validates raw strictly. All-lowercase and all-uppercase input carry
// no checksum and are accepted; mixed-case input must already be in
// checksum form.
func Verify(raw string) error {
	normalized, err := Normalize(raw)
	if err != nil {
		return err
	}

	digits := strip(strings.TrimSpace(raw))
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return nil
	}
	if digits != strip(normalized) {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, raw)
	}
	return nil
}

// Equal reports whether a and b name the same address regardless of case
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

func strip(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
