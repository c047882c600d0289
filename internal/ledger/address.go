package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress returns the lowercase hex form used as the read-model key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func IsAddress(addr string) bool {
	return common.IsHexAddress(strings.TrimSpace(addr))
}

func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

func normalize(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
