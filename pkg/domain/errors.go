package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the amendment engine and disposal recorder.
// All are rejected before any write; a failed request leaves the prior
// current version fully intact and creates no version or log entry.
var (
	// ErrRecordGroupNotFound indicates the group id has no versions.
	ErrRecordGroupNotFound = errors.New("record group not found")
	// ErrNoOpAmendment indicates a non-void amendment whose changes match the
	// current version exactly.
	ErrNoOpAmendment = errors.New("amendment changes no field")
	// ErrMissingReason indicates a trimmed-empty amendment reason.
	ErrMissingReason = errors.New("amendment reason required")
	// ErrInvalidOutcomeCode indicates an outcome code outside the entity
	// type's registered vocabulary.
	ErrInvalidOutcomeCode = errors.New("invalid outcome code")
	// ErrCategoryMismatch indicates an outcome payload inconsistent with the
	// registered code (wrong category, or irrelevant contamination detail).
	ErrCategoryMismatch = errors.New("outcome category mismatch")
	// ErrConcurrentModification indicates an expected-version token that no
	// longer matches the current version.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// NotFoundError wraps ErrRecordGroupNotFound with the offending id.
func NotFoundError(groupID string) error {
	return fmt.Errorf("%w: %s", ErrRecordGroupNotFound, groupID)
}

// ConflictError wraps ErrConcurrentModification with the version numbers
// involved in the race.
func ConflictError(groupID string, expected, current int) error {
	return fmt.Errorf("%w: group %s expected version %d, current is %d", ErrConcurrentModification, groupID, expected, current)
}
