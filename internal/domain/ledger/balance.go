package ledger

// Balance is the embedded per-slot triple described in spec.md §3: a
// signed net amount plus the two gross sides that produced it.
//
// Invariant after any posting: Amount == Debit-Credit when the owning
// account's normal balance is debit, else Amount == Credit-Debit.
type Balance struct {
	Amount int64 `json:"amount"`
	Debit  int64 `json:"debit"`
	Credit int64 `json:"credit"`
}

func (b Balance) side(t EntryType) int64 {
	if t == EntryDebit {
		return b.Debit
	}
	return b.Credit
}

func (b *Balance) addSide(t EntryType, amount int64) {
	if t == EntryDebit {
		b.Debit += amount
	} else {
		b.Credit += amount
	}
}

func (b *Balance) subSide(t EntryType, amount int64) {
	if t == EntryDebit {
		b.Debit -= amount
	} else {
		b.Credit -= amount
	}
}

// UpdateBalance applies a forward entry posting of amount a, entry
// type et, against an account whose normal balance is ab. Matches
// spec.md §4.C1 "update": the gross side always records the entry;
// the net amount only grows when et matches the account's normal side.
func UpdateBalance(bal Balance, a int64, et EntryType, ab EntryType) Balance {
	out := bal
	if et == ab {
		out.Amount += a
	} else {
		out.Amount -= a
	}
	out.addSide(et, a)
	return out
}

// ReversePending undoes a previously applied pending entry of amount a
// and type et, releasing whatever availability it reserved. This is
// the exact mathematical inverse of UpdateBalance(bal, a, et, ab): the
// gross side is always decremented, and the net amount moves opposite
// to the direction UpdateBalance originally moved it, which is what
// keeps the per-slot invariant (amount == debit-credit, or its mirror
// for credit-normal accounts) holding after update+reverse round trips
// (spec.md §4.C1, §8 property 2).
func ReversePending(bal Balance, a int64, et EntryType, ab EntryType) Balance {
	out := bal
	if et == ab {
		out.Amount -= a
	} else {
		out.Amount += a
	}
	out.subSide(et, a)
	return out
}

// ReverseAndUpdatePending combines ReversePending(old) with
// UpdateBalance(new) on the same side in a single op, so a
// pending-amount change never observes an intermediate, inconsistent
// balance (spec.md §4.C1 "reverse_and_update_pending").
func ReverseAndUpdatePending(bal Balance, oldAmount, newAmount int64, et EntryType, ab EntryType) Balance {
	out := ReversePending(bal, oldAmount, et, ab)
	return UpdateBalance(out, newAmount, et, ab)
}
