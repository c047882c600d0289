package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signed  = created.Add(time.Hour)
)

func TestInitiatedState(t *testing.T) {
	s := Initiated(created)

	assert.True(t, s.SellerSigned)
	assert.False(t, s.BuyerSigned)
	assert.False(t, s.Complete())
	assert.Equal(t, PhaseInitiated, s.Phase())
	require.NotNil(t, s.SellerSignedAt)
	assert.Equal(t, created, *s.SellerSignedAt)
}

func TestBuyerSignatureCompletes(t *testing.T) {
	tr, err := Sign(Initiated(created), PartyBuyer, signed)
	require.NoError(t, err)

	assert.True(t, tr.Completed)
	assert.Equal(t, PartyBuyer, tr.Party)
	assert.Equal(t, PhaseInitiated, tr.Before.Phase())
	assert.Equal(t, PhaseComplete, tr.After.Phase())
	require.NotNil(t, tr.After.CompletedAt)
	assert.Equal(t, signed, *tr.After.CompletedAt)
	assert.Equal(t, signed, *tr.After.BuyerSignedAt)
}

func TestSellerSignsLast(t *testing.T) {
	s := State{BuyerSigned: true}
	assert.Equal(t, PhasePartiallySigned, s.Phase())

	tr, err := Sign(s, PartySeller, signed)
	require.NoError(t, err)
	assert.True(t, tr.Completed)
}

func TestRejectedSignaturesLeaveStateUnchanged(t *testing.T) {
	initiated := Initiated(created)
	complete, _ := MarkSigned(initiated, PartyBuyer, signed)

	tests := []struct {
		name  string
		state State
		party Party
		err   error
	}{
		{"non party", initiated, PartyNone, ErrNotParty},
		{"seller twice", initiated, PartySeller, ErrAlreadySigned},
		{"buyer after completion", complete, PartyBuyer, ErrAlreadyComplete},
		{"seller after completion", complete, PartySeller, ErrAlreadyComplete},
		{"non party after completion", complete, PartyNone, ErrNotParty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.state
			tr, err := Sign(tt.state, tt.party, signed)

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, Transition{}, tr)
			assert.Equal(t, before, tt.state)
		})
	}
}

func TestMarkSignedIsIdempotent(t *testing.T) {
	s, changed := MarkSigned(Initiated(created), PartyBuyer, signed)
	require.True(t, changed)

	again, changed := MarkSigned(s, PartyBuyer, signed.Add(time.Hour))
	assert.False(t, changed)
	assert.Equal(t, s, again)
}

func TestMarkSignedRepairsCompletion(t *testing.T) {
	s := State{SellerSigned: true, BuyerSigned: true}

	repaired, changed := MarkSigned(s, PartyBuyer, signed)
	assert.True(t, changed)
	require.NotNil(t, repaired.CompletedAt)
	assert.Equal(t, signed, *repaired.CompletedAt)
}

func TestCompleteIffBothSigned(t *testing.T) {
	for _, seller := range []bool{false, true} {
		for _, buyer := range []bool{false, true} {
			s := State{SellerSigned: seller, BuyerSigned: buyer}
			assert.Equal(t, seller && buyer, s.Complete())
			assert.Equal(t, seller && buyer, s.Phase() == PhaseComplete)
		}
	}
}

func TestPartyOf(t *testing.T) {
	seller := "0xAaAa000000000000000000000000000000000001"
	buyer := "0xbbbb000000000000000000000000000000000002"

	assert.Equal(t, PartySeller, PartyOf(seller, buyer, "0xaaaa000000000000000000000000000000000001"))
	assert.Equal(t, PartyBuyer, PartyOf(seller, buyer, "0xBBBB000000000000000000000000000000000002"))
	assert.Equal(t, PartyNone, PartyOf(seller, buyer, "0xcccc000000000000000000000000000000000003"))
	assert.Equal(t, PartyNone, PartyOf(seller, buyer, ""))
	assert.Equal(t, PartyBuyer, PartySeller.Counterparty())
}
