package queue

import (
	"encoding/json"
	"fmt"

	"github.com/ledgerbank/ledger-core/internal/domain/ledger"
	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
	"github.com/ledgerbank/ledger-core/internal/pkg/validation"
)

// ValidatePayload decodes and checks a submission's event_map against
// spec.md §6's per-action contract before the Command is ever
// inserted: a VALIDATION failure here is never persisted and never
// retried by the queue (spec.md §7), unlike the taxonomy errors a
// worker can still raise once a command is already durable (a
// malformed-but-structurally-valid payload that only a downstream
// applier can reject, e.g. a currency mismatch resolved against live
// account state).
func ValidatePayload(cmdType CommandType, source, sourceIdempK, updateIdempK string, raw []byte) error {
	if err := validation.ValidateSource(source); err != nil {
		return ledgererr.Field(ledgererr.KindValidation, "INVALID_SOURCE", "source", err.Error())
	}
	if err := validation.ValidateRequired("source_idempk", sourceIdempK); err != nil {
		return ledgererr.Field(ledgererr.KindValidation, "MISSING_FIELD", "source_idempk", err.Error())
	}
	if cmdType.DependsOnCreate() {
		if err := validation.ValidateRequired("update_idempk", updateIdempK); err != nil {
			return ledgererr.Field(ledgererr.KindValidation, "MISSING_FIELD", "update_idempk", err.Error())
		}
	}

	switch cmdType {
	case CommandCreateAccount:
		var p CreateAccountPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err)
		}
		return validateCreateAccount(p)
	case CommandUpdateAccount:
		return validateUpdateAccount(raw)
	case CommandCreateTransaction:
		var p CreateTransactionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err)
		}
		return validateCreateTransaction(p)
	case CommandUpdateTransaction:
		var p UpdateTransactionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err)
		}
		return validateUpdateTransaction(p)
	default:
		return ledgererr.Field(ledgererr.KindValidation, "UNKNOWN_ACTION", "type", fmt.Sprintf("unknown command type %q", cmdType))
	}
}

func validateCreateAccount(p CreateAccountPayload) error {
	if err := validation.ValidateAddress(p.Address); err != nil {
		return ledgererr.Field(ledgererr.KindValidation, "INVALID_ADDRESS", "address", err.Error())
	}
	if err := validation.ValidateRequired("name", p.Name); err != nil {
		return ledgererr.Field(ledgererr.KindValidation, "MISSING_FIELD", "name", err.Error())
	}
	switch p.Type {
	case ledger.AccountAsset, ledger.AccountLiability, ledger.AccountEquity, ledger.AccountRevenue, ledger.AccountExpense:
	default:
		return ledgererr.Field(ledgererr.KindValidation, "INVALID_TYPE", "type", fmt.Sprintf("unknown account type %q", p.Type))
	}
	if err := validation.ValidateRequired("currency", p.Currency); err != nil {
		return ledgererr.Field(ledgererr.KindValidation, "MISSING_FIELD", "currency", err.Error())
	}
	if p.NormalBalance != nil {
		switch *p.NormalBalance {
		case ledger.EntryDebit, ledger.EntryCredit:
		default:
			return ledgererr.Field(ledgererr.KindValidation, "INVALID_NORMAL_BALANCE", "normal_balance", "normal_balance must be debit or credit")
		}
	}
	return nil
}

// updateAccountAllowedFields are the only event_map keys an
// update_account payload may carry (spec.md §6); anything else is
// IMMUTABLE_FIELD.
var updateAccountAllowedFields = map[string]bool{
	"account_address": true,
	"description":     true,
	"context":         true,
}

func validateUpdateAccount(raw []byte) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err)
	}
	for field := range generic {
		if !updateAccountAllowedFields[field] {
			return ledgererr.Field(ledgererr.KindValidation, "IMMUTABLE_FIELD", field,
				fmt.Sprintf("field %q cannot be modified by update_account", field))
		}
	}

	var p UpdateAccountPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ledgererr.Wrap(ledgererr.KindValidation, "MALFORMED_PAYLOAD", err)
	}
	if err := validation.ValidateRequired("account_address", p.AccountAddress); err != nil {
		return ledgererr.Field(ledgererr.KindValidation, "MISSING_FIELD", "account_address", err.Error())
	}
	if err := validation.ValidateAddress(p.AccountAddress); err != nil {
		return ledgererr.Field(ledgererr.KindValidation, "INVALID_ADDRESS", "account_address", err.Error())
	}
	return nil
}

func validateCreateTransaction(p CreateTransactionPayload) error {
	switch p.Status {
	case ledger.StatusPending, ledger.StatusPosted:
	default:
		return ledgererr.Field(ledgererr.KindValidation, "INVALID_STATUS", "status", "status must be pending or posted")
	}
	if len(p.Entries) < 2 {
		return ledgererr.Field(ledgererr.KindValidation, "TOO_FEW_ENTRIES", "entries", "a transaction requires at least 2 entries")
	}
	for i, e := range p.Entries {
		if err := validateEntryInputPayload(e); err != nil {
			return ledgererr.Field(ledgererr.KindValidation, "INVALID_ENTRY", fmt.Sprintf("entries[%d]", i), err.Error())
		}
	}
	return nil
}

func validateUpdateTransaction(p UpdateTransactionPayload) error {
	switch p.NewStatus {
	case ledger.StatusPending, ledger.StatusPosted, ledger.StatusArchived:
	default:
		return ledgererr.Field(ledgererr.KindValidation, "INVALID_STATUS", "new_status", "new_status must be pending, posted or archived")
	}
	for i, e := range p.Entries {
		if err := validateEntryInputPayload(e); err != nil {
			return ledgererr.Field(ledgererr.KindValidation, "INVALID_ENTRY", fmt.Sprintf("entries[%d]", i), err.Error())
		}
	}
	return nil
}

func validateEntryInputPayload(e EntryInputPayload) error {
	if err := validation.ValidateAddress(e.AccountAddress); err != nil {
		return err
	}
	switch e.Type {
	case ledger.EntryDebit, ledger.EntryCredit:
	default:
		return fmt.Errorf("entry type must be debit or credit")
	}
	if err := validation.ValidateAmount(e.Amount); err != nil {
		return err
	}
	return validation.ValidateRequired("currency", e.Currency)
}
