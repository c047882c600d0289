package ledger

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifySignature reports whether signature is a personal_sign (EIP-191)
// signature of message by address.
func VerifySignature(address, message, signature string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("invalid signature length %d", len(sig))
	}

	// Wallets emit v as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}

	return SameAddress(crypto.PubkeyToAddress(*pub).Hex(), address), nil
}

// SignMessage produces a wallet-style personal_sign signature.
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// AddressOf returns the normalized address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return normalize(crypto.PubkeyToAddress(key.PublicKey))
}
