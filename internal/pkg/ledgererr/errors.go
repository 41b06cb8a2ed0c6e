// Package ledgererr defines the error taxonomy from spec.md §7: a
// fixed set of kinds the OCC driver, the queue scheduler and the HTTP
// layer all switch on, instead of matching on ad-hoc string content.
package ledgererr

import "errors"

// Kind is one of the taxonomy entries in spec.md §7.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindDuplicate      Kind = "IDEMPOTENCY_DUPLICATE"
	KindDependencyPend Kind = "DEPENDENCY_PENDING"
	KindDependencyDead Kind = "DEPENDENCY_DEAD"
	KindBalance        Kind = "BALANCE_INVARIANT"
	KindStaleAccount   Kind = "STALE_ACCOUNT"
	KindOCCTimeout     Kind = "OCC_TIMEOUT"
	KindInfrastructure Kind = "INFRASTRUCTURE"
)

// Error wraps an underlying cause with a taxonomy Kind and, for
// validation failures, the field path the error should be attached to
// when reported back to a synchronous caller (spec.md §7 propagation
// policy).
type Error struct {
	Kind    Kind
	Field   string // e.g. "entries[1].amount" — empty when not field-scoped
	Code    string // short machine code, e.g. "NEGATIVE_BALANCE"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a taxonomy error without a field path.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Field builds a taxonomy error scoped to a submitted-payload field
// path, for surfacing to a synchronous, no-save-on-error caller.
func Field(kind Kind, code, field, message string) *Error {
	return &Error{Kind: kind, Code: code, Field: field, Message: message}
}

// Wrap attaches a taxonomy Kind to an underlying error.
func Wrap(kind Kind, code string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInfrastructure
// for errors this package didn't produce (the conservative choice: an
// unrecognized failure is retried, never silently dead-lettered).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var (
	// ErrStaleAccount is the canonical OCC conflict signal: a 0-row
	// UPDATE because lock_version had already advanced.
	ErrStaleAccount = New(KindStaleAccount, "STALE_ACCOUNT", "account version changed concurrently")

	// ErrNegativeBalance marks a would-be negative available balance
	// on an account that does not allow it.
	ErrNegativeBalance = New(KindBalance, "NEGATIVE_BALANCE", "update would make available balance negative")

	// ErrAccountMissing marks a referenced account that does not
	// exist in the transaction's instance.
	ErrAccountMissing = New(KindBalance, "ACCOUNT_MISSING", "referenced account does not exist")

	// ErrAccountCrossInstance marks a referenced account belonging to
	// a different instance than the transaction.
	ErrAccountCrossInstance = New(KindBalance, "ACCOUNT_CROSS_INSTANCE", "referenced account belongs to another instance")

	// ErrInvalidTransition marks a transaction status transition not
	// in the allowed table (spec.md §3, §4.C2).
	ErrInvalidTransition = New(KindValidation, "INVALID_TRANSITION", "transaction status transition not allowed")
)
