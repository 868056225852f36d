package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeIdentity trims the identity and, when it is a hex wallet
// address, rewrites it to its EIP-55 checksum form so that differently
// cased spellings of one address share rate limits and tokens. Any other
// non-empty string is kept as an opaque account identifier
func NormalizeIdentity(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrInvalidIdentity
	}
	if common.IsHexAddress(id) {
		return common.HexToAddress(id).Hex(), nil
	}
	return id, nil
}
