package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	message := "Sign in to Product Provenance\nNonce: 42"
	sig, err := SignMessage(key, message)
	require.NoError(t, err)

	ok, err := VerifySignature(AddressOf(key), message, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignature(AddressOf(other), message, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifySignature(AddressOf(key), "a different message", sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignatureRejectsMalformedInput(t *testing.T) {
	_, err := VerifySignature("0x0000000000000000000000000000000000000001", "hello", "not-hex")
	assert.Error(t, err)

	_, err = VerifySignature("0x0000000000000000000000000000000000000001", "hello", "0x1234")
	assert.Error(t, err)
}

func TestAddressHelpers(t *testing.T) {
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", NormalizeAddress(" 0xABCDEF0000000000000000000000000000000001 "))
	assert.True(t, SameAddress("0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001"))
	assert.True(t, IsAddress("0xabcdef0000000000000000000000000000000001"))
	assert.False(t, IsAddress("0x1234"))
}

func TestSortEventsIsChronological(t *testing.T) {
	events := []Event{
		TransferSigned{LogMeta: LogMeta{BlockNumber: 5, LogIndex: 0}},
		ProductRegistered{LogMeta: LogMeta{BlockNumber: 2, LogIndex: 3}},
		InvoiceCreated{LogMeta: LogMeta{BlockNumber: 2, LogIndex: 1}},
	}

	SortEvents(events)

	assert.Equal(t, KindInvoiceCreated, events[0].Kind())
	assert.Equal(t, KindProductRegistered, events[1].Kind())
	assert.Equal(t, KindTransferSigned, events[2].Kind())
}
