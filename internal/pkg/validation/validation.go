// Package validation implements the address and source identifier
// grammar every command payload is built from, plus the handful of
// scalar guards (amount, required strings) those payloads need
// checked before a Command row is ever inserted: one small package of
// pure, independent field checks each returning a plain error.
package validation

import (
	"fmt"
	"regexp"
)

var (
	addressPattern = regexp.MustCompile(`^[a-zA-Z_0-9]+(:[a-zA-Z_0-9]+)*$`)
	sourcePattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,29}$`)
)

// ValidateAddress enforces spec.md §6's address grammar, shared by
// instance, account and account_address fields.
func ValidateAddress(s string) error {
	if !addressPattern.MatchString(s) {
		return fmt.Errorf("address %q does not match ^[a-zA-Z_0-9]+(:[a-zA-Z_0-9]+)*$", s)
	}
	return nil
}

// ValidateSource enforces spec.md §6's source grammar: a 2-30
// character identifier starting with a lowercase letter or digit.
func ValidateSource(s string) error {
	if !sourcePattern.MatchString(s) {
		return fmt.Errorf("source %q does not match ^[a-z0-9](?:[a-z0-9_-]){1,29}$", s)
	}
	return nil
}

// ValidateAmount rejects a negative entry amount (spec.md §3 Entry:
// "value: {amount: int >= 0 ...}").
func ValidateAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("amount must be >= 0, got %d", amount)
	}
	return nil
}

// ValidateRequired rejects an empty required string field.
func ValidateRequired(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
