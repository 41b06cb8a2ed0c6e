package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// ResolveInstanceByAddress looks up an instance by its unique address,
// the first step of every worker pipeline (spec.md §4.C7).
func ResolveInstanceByAddress(ctx context.Context, q Querier, address string) (ledger.Instance, error) {
	var inst ledger.Instance
	row := q.QueryRow(ctx, `SELECT id, address, description, inserted_at FROM instances WHERE address = $1`, address)
	if err := row.Scan(&inst.ID, &inst.Address, &inst.Description, &inst.InsertedAt); err != nil {
		if err == pgx.ErrNoRows {
			return inst, ledgererr.New(ledgererr.KindValidation, "INSTANCE_NOT_FOUND", "instance address does not exist")
		}
		return inst, err
	}
	return inst, nil
}

// InsertInstance creates a new tenancy-boundary row. Unlike accounts
// and transactions, instances carry no balance invariant and are
// never touched by the OCC pipeline, so this is a direct insert rather
// than something routed through the command queue.
func InsertInstance(ctx context.Context, q Querier, address, description string) (ledger.Instance, error) {
	var inst ledger.Instance
	row := q.QueryRow(ctx, `
		INSERT INTO instances (address, description)
		VALUES ($1, $2)
		RETURNING id, address, description, inserted_at
	`, address, description)
	if err := row.Scan(&inst.ID, &inst.Address, &inst.Description, &inst.InsertedAt); err != nil {
		if isUniqueViolation(err) {
			return inst, ledgererr.New(ledgererr.KindDuplicate, "INSTANCE_ADDRESS_TAKEN", "instance address already exists")
		}
		return inst, err
	}
	return inst, nil
}

// InsertAccount creates a new account row (spec.md §4.C7
// create_account).
func InsertAccount(ctx context.Context, q Querier, a ledger.Account) (ledger.Account, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO accounts (instance_id, address, name, type, normal_balance, currency, allowed_negative,
			description, context, available, posted_amount, posted_debit, posted_credit, pending_amount, pending_debit, pending_credit)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, 0,0,0,0,0,0,0)
		RETURNING id, lock_version, inserted_at
	`, a.InstanceID, a.Address, a.Name, a.Type, a.NormalBalance, a.Currency, a.AllowedNegative, a.Description, a.Context)

	if err := row.Scan(&a.ID, &a.LockVersion, &a.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return a, ledgererr.New(ledgererr.KindDuplicate, "ACCOUNT_ADDRESS_TAKEN", "account address or name already exists in this instance")
		}
		return a, err
	}
	return a, nil
}

// GetAccountByAddress loads an account for mutation. Callers that will
// write it back must pass the same transaction to UpdateAccountOCC so
// the version they read is the version they check.
func GetAccountByAddress(ctx context.Context, q Querier, instanceID, address string) (ledger.Account, error) {
	return scanAccount(q.QueryRow(ctx, `
		SELECT id, instance_id, address, name, type, normal_balance, currency, allowed_negative,
			description, context,
			available, posted_amount, posted_debit, posted_credit, pending_amount, pending_debit, pending_credit,
			lock_version, inserted_at
		FROM accounts WHERE instance_id = $1 AND address = $2
	`, instanceID, address))
}

// GetAccountByID loads an account by primary key, used when the
// applier already holds resolved account IDs (e.g. from Entry rows).
func GetAccountByID(ctx context.Context, q Querier, id string) (ledger.Account, error) {
	return scanAccount(q.QueryRow(ctx, `
		SELECT id, instance_id, address, name, type, normal_balance, currency, allowed_negative,
			description, context,
			available, posted_amount, posted_debit, posted_credit, pending_amount, pending_debit, pending_credit,
			lock_version, inserted_at
		FROM accounts WHERE id = $1
	`, id))
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.ID, &a.InstanceID, &a.Address, &a.Name, &a.Type, &a.NormalBalance, &a.Currency, &a.AllowedNegative,
		&a.Description, &a.Context,
		&a.Available, &a.Posted.Amount, &a.Posted.Debit, &a.Posted.Credit,
		&a.Pending.Amount, &a.Pending.Debit, &a.Pending.Credit,
		&a.LockVersion, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return a, ledgererr.ErrAccountMissing
		}
		return a, err
	}
	return a, nil
}

// UpdateAccountOCC persists the new balance state with the version
// predicate spec.md §4.C2/§9 mandates: WHERE lock_version = oldVersion.
// A 0-row result is not an error from Postgres — it is the STALE
// signal the OCC driver retries on (never SELECT...FOR UPDATE).
func UpdateAccountOCC(ctx context.Context, q Querier, a ledger.Account, oldVersion int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE accounts SET
			available = $1,
			posted_amount = $2, posted_debit = $3, posted_credit = $4,
			pending_amount = $5, pending_debit = $6, pending_credit = $7,
			lock_version = lock_version + 1
		WHERE id = $8 AND lock_version = $9
	`, a.Available, a.Posted.Amount, a.Posted.Debit, a.Posted.Credit,
		a.Pending.Amount, a.Pending.Debit, a.Pending.Credit, a.ID, oldVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledgererr.ErrStaleAccount
	}
	return nil
}

// UpdateAccountFields applies an update_account command's mutable
// fields (description, context — spec.md §4.C7/§6; every other field
// is rejected as IMMUTABLE_FIELD by queue.ValidatePayload at submission).
// This does not touch lock_version: description/context are not part
// of the balance invariant the OCC predicate protects, so no STALE
// signal is possible here.
func UpdateAccountFields(ctx context.Context, q Querier, accountID, description, context string) error {
	_, err := q.Exec(ctx, `UPDATE accounts SET description = $1, context = $2 WHERE id = $3`, description, context, accountID)
	return err
}

// InsertBalanceHistoryEntry writes the immutable snapshot spec.md §3
// requires for every balance-affecting mutation, in the same
// transaction as the Account UPDATE that produced it.
func InsertBalanceHistoryEntry(ctx context.Context, q Querier, h ledger.BalanceHistoryEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO balance_history_entries
			(account_id, entry_id, posted_amount, posted_debit, posted_credit,
			 pending_amount, pending_debit, pending_credit, available)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, h.AccountID, h.EntryID, h.Posted.Amount, h.Posted.Debit, h.Posted.Credit,
		h.Pending.Amount, h.Pending.Debit, h.Pending.Credit, h.Available)
	return err
}

// ReplayBalanceHistory loads an account's history ordered oldest-first
// for ledger.Replay (spec.md §8 property 5).
func ReplayBalanceHistory(ctx context.Context, q Querier, accountID string) ([]ledger.BalanceHistoryEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, account_id, entry_id, posted_amount, posted_debit, posted_credit,
			pending_amount, pending_debit, pending_credit, available, inserted_at
		FROM balance_history_entries WHERE account_id = $1 ORDER BY inserted_at ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.BalanceHistoryEntry
	for rows.Next() {
		var h ledger.BalanceHistoryEntry
		if err := rows.Scan(&h.ID, &h.AccountID, &h.EntryID, &h.Posted.Amount, &h.Posted.Debit, &h.Posted.Credit,
			&h.Pending.Amount, &h.Pending.Debit, &h.Pending.Credit, &h.Available, &h.InsertedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
