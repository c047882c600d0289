// Package transfer holds the two-party signature state machine of a transfer
// certificate. It has no storage or ledger dependencies.
package transfer

import (
	"errors"
	"strings"
	"time"
)

// Phase is the workflow step derived from the two signature flags.
type Phase string

const (
	// PhaseInitiated is the state a certificate is created in: the seller
	// signed as part of initiation.
	PhaseInitiated Phase = "INITIATED"
	// PhasePartiallySigned means only the buyer's signature is recorded.
	PhasePartiallySigned Phase = "PARTIALLY_SIGNED"
	// PhaseComplete is terminal: both parties signed.
	PhaseComplete Phase = "COMPLETE"
	// PhaseUnsigned is only observable on a mirror row whose signatures
	// have not been replayed yet.
	PhaseUnsigned Phase = "UNSIGNED"
)

// Party identifies a signer of a certificate.
type Party int

const (
	// PartyNone is any address that is neither seller nor buyer.
	PartyNone Party = iota
	PartySeller
	PartyBuyer
)

func (p Party) String() string {
	switch p {
	case PartySeller:
		return "seller"
	case PartyBuyer:
		return "buyer"
	default:
		return "none"
	}
}

// Counterparty returns the other signer of the certificate.
func (p Party) Counterparty() Party {
	switch p {
	case PartySeller:
		return PartyBuyer
	case PartyBuyer:
		return PartySeller
	default:
		return PartyNone
	}
}

var (
	ErrNotParty        = errors.New("signer is neither seller nor buyer")
	ErrAlreadySigned   = errors.New("party has already signed")
	ErrAlreadyComplete = errors.New("transfer is already complete")
)

// State is the signature record of one certificate. Complete is derived from
// the two flags and never stored independently.
type State struct {
	SellerSigned   bool
	SellerSignedAt *time.Time
	BuyerSigned    bool
	BuyerSignedAt  *time.Time
	CompletedAt    *time.Time
}

// Initiated returns the state of a freshly created certificate.
func Initiated(at time.Time) State {
	return State{SellerSigned: true, SellerSignedAt: &at}
}

func (s State) Complete() bool {
	return s.SellerSigned && s.BuyerSigned
}

func (s State) Signed(p Party) bool {
	switch p {
	case PartySeller:
		return s.SellerSigned
	case PartyBuyer:
		return s.BuyerSigned
	default:
		return false
	}
}

func (s State) Phase() Phase {
	switch {
	case s.Complete():
		return PhaseComplete
	case s.SellerSigned:
		return PhaseInitiated
	case s.BuyerSigned:
		return PhasePartiallySigned
	default:
		return PhaseUnsigned
	}
}

// Transition describes the effect of one accepted signature.
type Transition struct {
	Party     Party
	Before    State
	After     State
	Completed bool
}

// Sign applies a signature by p. Rejected signatures leave s untouched.
func Sign(s State, p Party, at time.Time) (Transition, error) {
	if p != PartySeller && p != PartyBuyer {
		return Transition{}, ErrNotParty
	}
	if s.Complete() {
		return Transition{}, ErrAlreadyComplete
	}
	if s.Signed(p) {
		return Transition{}, ErrAlreadySigned
	}

	after, _ := MarkSigned(s, p, at)
	return Transition{
		Party:     p,
		Before:    s,
		After:     after,
		Completed: after.Complete(),
	}, nil
}

// MarkSigned sets the flag of p if it is not set yet and re-derives the
// completion timestamp. It reports whether anything changed, which makes it
// safe to replay the same signature any number of times.
func MarkSigned(s State, p Party, at time.Time) (State, bool) {
	changed := false
	switch p {
	case PartySeller:
		if !s.SellerSigned {
			s.SellerSigned = true
			s.SellerSignedAt = &at
			changed = true
		}
	case PartyBuyer:
		if !s.BuyerSigned {
			s.BuyerSigned = true
			s.BuyerSignedAt = &at
			changed = true
		}
	}
	if s.Complete() && s.CompletedAt == nil {
		s.CompletedAt = &at
		changed = true
	}
	return s, changed
}

// PartyOf resolves which side of the certificate signer is on. Addresses are
// compared case-insensitively.
func PartyOf(seller, buyer, signer string) Party {
	switch {
	case signer == "":
		return PartyNone
	case strings.EqualFold(signer, seller):
		return PartySeller
	case strings.EqualFold(signer, buyer):
		return PartyBuyer
	default:
		return PartyNone
	}
}
