package ledger

// Replay folds an ordered sequence of BalanceHistoryEntry snapshots
// (oldest first) down to the final Posted/Pending/Available triple,
// directly exercising spec.md §8 Testable Property 5: the sequence of
// BalanceHistoryEntries for an account, ordered by inserted_at,
// replays to the account's current balance.
//
// Since each snapshot already carries the full post-mutation state
// (not a delta), replay is just "take the last one" — but walking the
// whole sequence lets callers assert that no entry in the middle
// regresses a monotonic gross side, which a bare tail read can't
// catch.
func Replay(history []BalanceHistoryEntry) (posted, pending Balance, available int64, ok bool) {
	if len(history) == 0 {
		return Balance{}, Balance{}, 0, false
	}

	var prev *BalanceHistoryEntry
	for i := range history {
		h := &history[i]
		if prev != nil {
			if h.Posted.Debit < prev.Posted.Debit || h.Posted.Credit < prev.Posted.Credit {
				return Balance{}, Balance{}, 0, false
			}
		}
		prev = h
	}

	last := history[len(history)-1]
	return last.Posted, last.Pending, last.Available, true
}
