package ledger

import (
	"time"

	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// Account is a ledger account: a normal-balance direction and two
// balance slots (posted, pending), guarded by an optimistic lock
// version. The store enforces the version predicate, not this struct.
type Account struct {
	ID              string
	InstanceID      string
	Address         string
	Name            string
	Type            AccountType
	NormalBalance   EntryType
	Currency        string
	AllowedNegative bool
	Description     string
	Context         string
	Available       int64
	Posted          Balance
	Pending         Balance
	LockVersion     int64
	CreatedAt       time.Time
}

// NewAccount builds an Account for creation, deriving NormalBalance
// from Type unless normalBalance is explicitly supplied (contra-account
// override, spec.md §3). Description and Context are the only fields
// spec.md §4.C7 allows an update_account command to touch later.
func NewAccount(instanceID, address, name string, typ AccountType, currency string, normalBalance *EntryType, allowedNegative bool, description, context string) Account {
	nb := DefaultNormalBalance(typ)
	if normalBalance != nil {
		nb = *normalBalance
	}
	return Account{
		InstanceID:      instanceID,
		Address:         address,
		Name:            name,
		Type:            typ,
		NormalBalance:   nb,
		Currency:        currency,
		AllowedNegative: allowedNegative,
		Description:     description,
		Context:         context,
	}
}

// ApplyEntry returns a new Account value with the entry's effect
// applied for the given transaction transition (spec.md §4.C2's
// transition table), recomputes Available, and enforces the
// NEGATIVE_BALANCE invariant. It does not touch LockVersion — the
// store layer increments that as the UPDATE's version predicate.
//
// oldAmount is only meaningful (and required) for the two
// pending-amount-change transitions; it is ignored for the others.
func (a Account) ApplyEntry(entry Entry, transition TrxTransition, oldAmount int64) (Account, error) {
	if entry.Currency() != a.Currency {
		return a, ledgererr.New(ledgererr.KindBalance, "CURRENCY_MISMATCH", "entry currency does not match account currency")
	}

	out := a
	et := entry.Type
	nb := a.NormalBalance
	amt := entry.Value.Amount

	switch transition {
	case TransitionPosted:
		out.Posted = UpdateBalance(out.Posted, amt, et, nb)
	case TransitionPending:
		out.Pending = UpdateBalance(out.Pending, amt, et, nb)
	case TransitionPendingToPosted:
		out.Pending = ReversePending(out.Pending, oldAmount, et, nb)
		out.Posted = UpdateBalance(out.Posted, amt, et, nb)
	case TransitionPendingToPending:
		out.Pending = ReverseAndUpdatePending(out.Pending, oldAmount, amt, et, nb)
	case TransitionPendingToArchived:
		out.Pending = ReversePending(out.Pending, amt, et, nb)
	default:
		return a, ledgererr.ErrInvalidTransition
	}

	opposite := nb.Opposite()
	available := out.Posted.Amount - out.Pending.side(opposite)
	if available < 0 && !out.AllowedNegative {
		return a, ledgererr.ErrNegativeBalance
	}
	if available < 0 {
		available = 0
	}
	out.Available = available

	return out, nil
}
