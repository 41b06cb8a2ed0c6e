package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// InsertTransaction creates the Transaction row (spec.md §4.C3 step 5).
func InsertTransaction(ctx context.Context, q Querier, instanceID string, status ledger.TransactionStatus) (ledger.Transaction, error) {
	var t ledger.Transaction
	t.InstanceID = instanceID
	t.Status = status

	var postedAt *time.Time
	if status == ledger.StatusPosted {
		now := time.Now().UTC()
		postedAt = &now
	}

	err := q.QueryRow(ctx, `
		INSERT INTO transactions (instance_id, status, posted_at) VALUES ($1,$2,$3)
		RETURNING id
	`, instanceID, status, postedAt).Scan(&t.ID)
	if err != nil {
		return t, err
	}
	t.PostedAt = postedAt
	return t, nil
}

// GetTransaction loads a transaction with its entries, for updates
// that must compute a transition relative to the previous state
// (spec.md §4.C3 step 3).
func GetTransaction(ctx context.Context, q Querier, id string) (ledger.Transaction, error) {
	var t ledger.Transaction
	t.ID = id
	err := q.QueryRow(ctx, `SELECT instance_id, status, posted_at FROM transactions WHERE id = $1`, id).
		Scan(&t.InstanceID, &t.Status, &t.PostedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return t, ledgererr.New(ledgererr.KindValidation, "TRANSACTION_NOT_FOUND", "transaction does not exist")
		}
		return t, err
	}

	rows, err := q.Query(ctx, `SELECT id, account_id, type, amount, currency FROM entries WHERE transaction_id = $1`, id)
	if err != nil {
		return t, err
	}
	defer rows.Close()
	for rows.Next() {
		var e ledger.Entry
		e.TransactionID = id
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Value.Amount, &e.Value.Currency); err != nil {
			return t, err
		}
		t.Entries = append(t.Entries, e)
	}
	return t, rows.Err()
}

// UpdateTransactionStatus applies a status transition to a transaction
// row, stamping posted_at on the move to posted (spec.md §4.C3 step 7)
// and clearing it when archived (S3: "posted_at=null").
func UpdateTransactionStatus(ctx context.Context, q Querier, id string, status ledger.TransactionStatus) error {
	var postedAt *time.Time
	if status == ledger.StatusPosted {
		now := time.Now().UTC()
		postedAt = &now
	}
	_, err := q.Exec(ctx, `UPDATE transactions SET status = $1, posted_at = $2 WHERE id = $3`, status, postedAt, id)
	return err
}

// InsertEntry creates a new Entry row for a transaction (spec.md
// §4.C3 step 5, create path).
func InsertEntry(ctx context.Context, q Querier, e ledger.Entry) (ledger.Entry, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO entries (transaction_id, account_id, type, amount, currency)
		VALUES ($1,$2,$3,$4,$5) RETURNING id
	`, e.TransactionID, e.AccountID, e.Type, e.Value.Amount, e.Value.Currency).Scan(&e.ID)
	return e, err
}

// UpdateEntryAmount changes an existing entry's amount in place,
// matched by account_id (spec.md §4.C3 step 5, update path — entries
// are "updated in place" and "entry type must not flip").
func UpdateEntryAmount(ctx context.Context, q Querier, entryID string, amount int64) error {
	_, err := q.Exec(ctx, `UPDATE entries SET amount = $1 WHERE id = $2`, amount, entryID)
	return err
}
