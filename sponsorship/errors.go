/*
errors.go - Error types for the sponsorship engine and its collaborators

PURPOSE:
  The calculation engine itself never fails for missing data: absent
  metrics, unset rule fields and zero denominators are legitimate zero
  outcomes. The errors here are raised at the edges - rule validation,
  deal workflow transitions and store lookups.

ERROR CATEGORIES:
  1. Validation errors - malformed rules or periods
  2. Workflow errors - illegal deal status transitions
  3. Store errors - missing records, duplicate writes

SEE ALSO:
  - factory/rule.go: Wraps ErrInvalidRule with field context
  - api/handlers.go: Maps these errors to HTTP statuses
*/
package sponsorship

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidRule is returned when a rule violates its field invariants.
	ErrInvalidRule = errors.New("invalid bonus rule")

	// ErrUnknownBonusType is returned for a bonus_type outside the closed set.
	ErrUnknownBonusType = errors.New("unknown bonus type")

	// ErrInvalidTransition is returned for an illegal deal status change.
	ErrInvalidTransition = errors.New("invalid deal status transition")

	ErrSponsorNotFound = errors.New("sponsor not found")
	ErrDealNotFound    = errors.New("deal not found")

	// ErrDuplicateCalculation is returned when a calculation with the same
	// idempotency key was already stored. Expected on recomputation.
	ErrDuplicateCalculation = errors.New("duplicate calculation")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// RuleError describes which rule field failed validation.
type RuleError struct {
	RuleID RuleID
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("invalid bonus rule: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid bonus rule %s: %s %s", e.RuleID, e.Field, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return ErrInvalidRule
}

// TransitionError describes a rejected deal status change.
type TransitionError struct {
	DealID DealID
	From   DealStatus
	To     DealStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("deal %s cannot move from %s to %s", e.DealID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrUnknownBonusType) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSponsorNotFound) ||
		errors.Is(err, ErrDealNotFound)
}
