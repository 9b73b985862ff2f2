package domain

import "context"

// Transaction exposes the ledger operations a persistence implementation must
// support within an atomic scope. Appends either all commit or none do; a
// reader can never observe a group with two heads or a missing retirement.
type Transaction interface {
	Snapshot() TransactionView
	// CreateCulture opens a new record group at version 1 (original, no
	// reason required) and returns the created version.
	CreateCulture(fields CultureFields, actor string) (Version, error)
	// CreateGrow opens a new grow record group at version 1.
	CreateGrow(fields GrowFields, actor string) (Version, error)
	// AmendCulture applies a typed partial update, producing the next version
	// and its amendment log entry.
	AmendCulture(req AmendmentRequest, patch CulturePatch) (Version, error)
	// AmendGrow applies a typed partial update to a grow group.
	AmendGrow(req AmendmentRequest, patch GrowPatch) (Version, error)
	// Void terminates the group's active status without editing fields.
	Void(req AmendmentRequest) (Version, error)
	// Dispose terminates the group with a structured outcome payload. The
	// outcome must already be validated against the vocabulary.
	Dispose(req AmendmentRequest, outcome DisposalOutcome) (Version, error)
	// Merge absorbs sourceID into the surviving group named by req.GroupID,
	// optionally applying a culture or grow patch to the survivor.
	Merge(req AmendmentRequest, sourceID string, culture *CulturePatch, grow *GrowPatch) (Version, error)
}

// TransactionView provides read-only access to snapshot data for rules and
// queries.
type TransactionView interface {
	RuleView
	// AmendmentLog returns the group's log entries in append order.
	AmendmentLog(groupID string) []AmendmentLogEntry
}

// PersistentStore is a minimal abstraction over durable backends. Reads run
// fully concurrently with each other; writers serialize through
// RunInTransaction.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// Versions returns the group's chain ascending by Seq, or
	// ErrRecordGroupNotFound.
	Versions(groupID string) ([]Version, error)
	// AmendmentLog returns the group's log entries in append order.
	AmendmentLog(groupID string) ([]AmendmentLogEntry, error)
	// Groups lists every record group, including archived ones.
	Groups() []RecordGroup
}
