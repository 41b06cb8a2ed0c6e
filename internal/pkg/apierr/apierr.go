// Package apierr maps the ledgererr taxonomy onto HTTP responses. It
// carries a Field so the synchronous no-save-on-error path can point a
// caller at exactly which submitted field was rejected.
package apierr

import (
	"net/http"

	"github.com/ledgerbank/ledger-core/internal/pkg/ledgererr"
)

// APIError is the JSON body every rejected request gets.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
}

func (e APIError) Error() string { return e.Message }

// statusFor maps a taxonomy Kind to the HTTP status a synchronous
// caller should see (spec.md §7's propagation policy).
func statusFor(kind ledgererr.Kind) int {
	switch kind {
	case ledgererr.KindValidation:
		return http.StatusBadRequest
	case ledgererr.KindDuplicate:
		return http.StatusConflict
	case ledgererr.KindDependencyPend:
		return http.StatusAccepted
	case ledgererr.KindDependencyDead:
		return http.StatusUnprocessableEntity
	case ledgererr.KindBalance:
		return http.StatusUnprocessableEntity
	case ledgererr.KindStaleAccount, ledgererr.KindOCCTimeout:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromLedgerErr converts a ledgererr.Error (or any error — unrecognized
// errors default to INFRASTRUCTURE/500) into an APIError a Gin handler
// can write directly as the response body.
func FromLedgerErr(err error) APIError {
	kind := ledgererr.KindOf(err)
	code := string(kind)
	field := ""
	if le, ok := err.(*ledgererr.Error); ok {
		if le.Code != "" {
			code = le.Code
		}
		field = le.Field
	}
	return APIError{
		Code:    code,
		Message: err.Error(),
		Field:   field,
		Status:  statusFor(kind),
	}
}

// NewValidation builds a plain 400 validation APIError not derived
// from a ledgererr.Error (e.g. malformed JSON).
func NewValidation(message string) APIError {
	return APIError{Code: string(ledgererr.KindValidation), Message: message, Status: http.StatusBadRequest}
}

// NewNotFound builds a 404 for a resource lookup miss.
func NewNotFound(resource string) APIError {
	return APIError{Code: "NOT_FOUND", Message: resource + " not found", Status: http.StatusNotFound}
}

// NewInternal builds a generic 500, never leaking the underlying
// error's detail to the client.
func NewInternal() APIError {
	return APIError{Code: string(ledgererr.KindInfrastructure), Message: "internal server error", Status: http.StatusInternalServerError}
}
