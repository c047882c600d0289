// internal/utils/crypto.go
package utils

import (
	"encoding/hex"
	"io"

	"golang.org/x/crypto/sha3"
)

// Keccak256Hex returns the 0x-prefixed Keccak-256 digest of data, the form
// in which document hashes are recorded on-chain.
func Keccak256Hex(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Keccak256Reader hashes everything read from r.
func Keccak256Reader(r io.Reader) (string, error) {
	h := sha3.NewLegacyKeccak256()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// ValidateDocumentHash reports whether data hashes to expected.
func ValidateDocumentHash(data []byte, expected string) bool {
	return Keccak256Hex(data) == expected
}
