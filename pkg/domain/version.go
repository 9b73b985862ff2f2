package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AmendmentType classifies why a version was produced.
type AmendmentType string

// Amendment types recognised by the engine. Only the first version of a group
// carries AmendmentOriginal.
const (
	AmendmentOriginal   AmendmentType = "original"
	AmendmentCorrection AmendmentType = "correction"
	AmendmentUpdate     AmendmentType = "update"
	AmendmentVoid       AmendmentType = "void"
	AmendmentMerge      AmendmentType = "merge"
)

// Valid reports whether the amendment type is a member of the closed set.
func (t AmendmentType) Valid() bool {
	switch t {
	case AmendmentOriginal, AmendmentCorrection, AmendmentUpdate, AmendmentVoid, AmendmentMerge:
		return true
	}
	return false
}

// Version is one immutable snapshot of a record group's fields. Rows are
// append-only: once persisted, field values, Seq, and ValidFrom never change.
// ValidTo and IsCurrent are projections computed from the chain on read, never
// stored, so the ledger has no independently updatable "current" flag.
type Version struct {
	ID        string        `json:"id"`
	GroupID   string        `json:"record_group_id"`
	Entity    EntityType    `json:"entity_type"`
	Seq       int           `json:"version"`
	Type      AmendmentType `json:"amendment_type"`
	Reason    string        `json:"amendment_reason,omitempty"`
	ValidFrom time.Time     `json:"valid_from"`

	// Fields is the full field snapshot for Entity. Exactly one of Culture or
	// Grow is set; the pair keeps the union JSON-serialisable without
	// reflection.
	Culture *CultureFields `json:"culture,omitempty"`
	Grow    *GrowFields    `json:"grow,omitempty"`

	// Outcome is set only on disposal versions.
	Outcome *DisposalOutcome `json:"outcome,omitempty"`

	// MergedInto is set on the terminal version of a group absorbed by a merge;
	// MergedFrom is set on the merge version of the surviving group.
	MergedInto *string `json:"merged_into,omitempty"`
	MergedFrom *string `json:"merged_from,omitempty"`

	// Read-side projections populated by history queries.
	ValidTo   *time.Time `json:"valid_to,omitempty"`
	IsCurrent bool       `json:"is_current"`
}

// Fields returns the version's field snapshot as the tagged union.
func (v Version) Fields() FieldSet {
	switch {
	case v.Culture != nil:
		return *v.Culture
	case v.Grow != nil:
		return *v.Grow
	}
	return nil
}

// WithFields returns a copy of the version holding the supplied snapshot.
func (v Version) WithFields(fields FieldSet) (Version, error) {
	v.Culture = nil
	v.Grow = nil
	switch f := fields.(type) {
	case CultureFields:
		v.Culture = &f
	case GrowFields:
		v.Grow = &f
	default:
		return Version{}, fmt.Errorf("unsupported field set %T", fields)
	}
	v.Entity = fields.EntityType()
	return v, nil
}

// Archived reports whether this version terminates its group's active life.
func (v Version) Archived() bool {
	if v.Type == AmendmentVoid {
		return true
	}
	return v.Type == AmendmentMerge && v.MergedInto != nil
}

// Clone returns an independent copy of the version.
func (v Version) Clone() Version {
	cp := v
	if v.Culture != nil {
		c := *v.Culture
		cp.Culture = &c
	}
	if v.Grow != nil {
		g := *v.Grow
		cp.Grow = &g
	}
	if v.Outcome != nil {
		o := v.Outcome.Clone()
		cp.Outcome = &o
	}
	if v.MergedInto != nil {
		s := *v.MergedInto
		cp.MergedInto = &s
	}
	if v.MergedFrom != nil {
		s := *v.MergedFrom
		cp.MergedFrom = &s
	}
	if v.ValidTo != nil {
		t := *v.ValidTo
		cp.ValidTo = &t
	}
	return cp
}

// AmendmentLogEntry is the audit record explaining why a version exists.
// Entries are append-only and one-to-one with the version they produced,
// except merges, which record one entry per contributing group.
type AmendmentLogEntry struct {
	ID          string         `json:"id"`
	NewRecordID string         `json:"new_record_id"`
	GroupID     string         `json:"record_group_id"`
	AmendedBy   string         `json:"amended_by"`
	AmendedAt   time.Time      `json:"amended_at"`
	Changes     ChangesSummary `json:"changes_summary,omitempty"`
	Reason      string         `json:"reason"`

	// SourceGroupID is set on the extra entry a merge records for the absorbed
	// group.
	SourceGroupID string `json:"source_group_id,omitempty"`
}

// Clone returns an independent copy of the entry.
func (e AmendmentLogEntry) Clone() AmendmentLogEntry {
	cp := e
	cp.Changes = e.Changes.Clone()
	return cp
}

// RecordGroup is the stable identity of a business entity across its whole
// lifetime. The group id is never reused and the group is never deleted.
type RecordGroup struct {
	ID        string     `json:"id"`
	Entity    EntityType `json:"entity_type"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by,omitempty"`
}

// AmendmentRequest carries the caller's intent for one amendment.
type AmendmentRequest struct {
	GroupID string        `json:"record_group_id"`
	Type    AmendmentType `json:"amendment_type"`
	Reason  string        `json:"reason"`
	Actor   string        `json:"actor"`

	// ExpectedVersion, when positive, is an optimistic concurrency token: the
	// amendment fails with ErrConcurrentModification unless it equals the
	// current version's Seq at apply time.
	ExpectedVersion int `json:"expected_version,omitempty"`
}

// CurrentRecord is the single-record projection handed to display layers:
// the current version's field values merged with group metadata.
type CurrentRecord struct {
	GroupID   string           `json:"record_group_id"`
	Entity    EntityType       `json:"entity_type"`
	Seq       int              `json:"version"`
	VersionID string           `json:"version_id"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Archived  bool             `json:"archived"`
	Culture   *CultureFields   `json:"culture,omitempty"`
	Grow      *GrowFields      `json:"grow,omitempty"`
	Outcome   *DisposalOutcome `json:"outcome,omitempty"`
}

// MarshalSummary renders a changes summary deterministically for logs.
func MarshalSummary(s ChangesSummary) string {
	if len(s) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
