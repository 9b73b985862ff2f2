// Package domain defines the persistent record model, amendment primitives,
// and rule evaluation contracts used by mycocore.
package domain

import (
	"fmt"
	"strings"
)

// EntityType identifies the kind of business record tracked by a record group.
type EntityType string

// Supported entity type identifiers used in versions, amendment log entries,
// and persistence buckets.
const (
	// EntityCulture identifies a culture record (liquid culture, plate, slant, spawn).
	EntityCulture EntityType = "culture"
	// EntityGrow identifies a grow record (inoculated substrate through harvest).
	EntityGrow EntityType = "grow"
)

// Valid reports whether the entity type is one of the closed set.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCulture, EntityGrow:
		return true
	}
	return false
}

// CultureKind enumerates the physical forms a culture record can describe.
type CultureKind string

// Canonical culture kinds.
const (
	CultureLiquid   CultureKind = "liquid_culture"
	CulturePlate    CultureKind = "agar_plate"
	CultureSlant    CultureKind = "slant"
	CultureSpawnJar CultureKind = "spawn_jar"
)

// GrowStage enumerates the canonical grow lifecycle stages.
type GrowStage string

// Canonical grow stages used by listings and stage-transition reporting.
const (
	StageInoculated GrowStage = "inoculated"
	StageColonizing GrowStage = "colonizing"
	StagePinning    GrowStage = "pinning"
	StageFruiting   GrowStage = "fruiting"
	StageHarvested  GrowStage = "harvested"
)

// FieldChange records the before/after pair for a single amended field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangesSummary maps field names to their old/new pairs. Only fields whose
// values actually differ appear.
type ChangesSummary map[string]FieldChange

// Clone returns an independent copy of the summary.
func (c ChangesSummary) Clone() ChangesSummary {
	if c == nil {
		return nil
	}
	out := make(ChangesSummary, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// FieldSet is the tagged union over per-entity field schemas. Each entity type
// has an explicit struct so that diff computation is exhaustive and statically
// checked rather than reflection-based.
type FieldSet interface {
	// EntityType names the schema the field set belongs to.
	EntityType() EntityType
	// Validate rejects structurally invalid field values.
	Validate() error
	// CloneFields returns an independent copy as a FieldSet.
	CloneFields() FieldSet
}

// CultureFields is the full field snapshot of a culture version.
type CultureFields struct {
	Label        string      `json:"label"`
	Species      string      `json:"species"`
	Kind         CultureKind `json:"kind"`
	Medium       string      `json:"medium"`
	Generation   int         `json:"generation"`
	HealthRating int         `json:"health_rating"`
	Notes        string      `json:"notes"`
}

// EntityType implements FieldSet.
func (CultureFields) EntityType() EntityType { return EntityCulture }

// Validate checks culture field constraints shared by all amendment paths.
func (f CultureFields) Validate() error {
	if strings.TrimSpace(f.Label) == "" {
		return fmt.Errorf("culture label required")
	}
	if f.HealthRating < 0 || f.HealthRating > 5 {
		return fmt.Errorf("culture health rating %d out of range 0-5", f.HealthRating)
	}
	if f.Generation < 0 {
		return fmt.Errorf("culture generation cannot be negative")
	}
	return nil
}

// CloneFields implements FieldSet.
func (f CultureFields) CloneFields() FieldSet { return f }

// CulturePatch is a partial update to culture fields. Nil pointers leave the
// current value untouched.
type CulturePatch struct {
	Label        *string      `json:"label,omitempty"`
	Species      *string      `json:"species,omitempty"`
	Kind         *CultureKind `json:"kind,omitempty"`
	Medium       *string      `json:"medium,omitempty"`
	Generation   *int         `json:"generation,omitempty"`
	HealthRating *int         `json:"health_rating,omitempty"`
	Notes        *string      `json:"notes,omitempty"`
}

// IsZero reports whether the patch carries no field at all.
func (p CulturePatch) IsZero() bool {
	return p.Label == nil && p.Species == nil && p.Kind == nil && p.Medium == nil &&
		p.Generation == nil && p.HealthRating == nil && p.Notes == nil
}

// Apply overlays the patch onto a copy of base and returns the merged fields
// together with the summary of fields that actually changed.
func (p CulturePatch) Apply(base CultureFields) (CultureFields, ChangesSummary) {
	merged := base
	summary := ChangesSummary{}
	if p.Label != nil && *p.Label != base.Label {
		summary["label"] = FieldChange{Old: base.Label, New: *p.Label}
		merged.Label = *p.Label
	}
	if p.Species != nil && *p.Species != base.Species {
		summary["species"] = FieldChange{Old: base.Species, New: *p.Species}
		merged.Species = *p.Species
	}
	if p.Kind != nil && *p.Kind != base.Kind {
		summary["kind"] = FieldChange{Old: base.Kind, New: *p.Kind}
		merged.Kind = *p.Kind
	}
	if p.Medium != nil && *p.Medium != base.Medium {
		summary["medium"] = FieldChange{Old: base.Medium, New: *p.Medium}
		merged.Medium = *p.Medium
	}
	if p.Generation != nil && *p.Generation != base.Generation {
		summary["generation"] = FieldChange{Old: base.Generation, New: *p.Generation}
		merged.Generation = *p.Generation
	}
	if p.HealthRating != nil && *p.HealthRating != base.HealthRating {
		summary["health_rating"] = FieldChange{Old: base.HealthRating, New: *p.HealthRating}
		merged.HealthRating = *p.HealthRating
	}
	if p.Notes != nil && *p.Notes != base.Notes {
		summary["notes"] = FieldChange{Old: base.Notes, New: *p.Notes}
		merged.Notes = *p.Notes
	}
	return merged, summary
}

// GrowFields is the full field snapshot of a grow version.
type GrowFields struct {
	Label           string    `json:"label"`
	Species         string    `json:"species"`
	Substrate       string    `json:"substrate"`
	Stage           GrowStage `json:"stage"`
	Location        string    `json:"location"`
	SourceCultureID string    `json:"source_culture_id,omitempty"`
	Notes           string    `json:"notes"`
}

// EntityType implements FieldSet.
func (GrowFields) EntityType() EntityType { return EntityGrow }

// Validate checks grow field constraints shared by all amendment paths.
func (f GrowFields) Validate() error {
	if strings.TrimSpace(f.Label) == "" {
		return fmt.Errorf("grow label required")
	}
	return nil
}

// CloneFields implements FieldSet.
func (f GrowFields) CloneFields() FieldSet { return f }

// GrowPatch is a partial update to grow fields.
type GrowPatch struct {
	Label           *string    `json:"label,omitempty"`
	Species         *string    `json:"species,omitempty"`
	Substrate       *string    `json:"substrate,omitempty"`
	Stage           *GrowStage `json:"stage,omitempty"`
	Location        *string    `json:"location,omitempty"`
	SourceCultureID *string    `json:"source_culture_id,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

// IsZero reports whether the patch carries no field at all.
func (p GrowPatch) IsZero() bool {
	return p.Label == nil && p.Species == nil && p.Substrate == nil && p.Stage == nil &&
		p.Location == nil && p.SourceCultureID == nil && p.Notes == nil
}

// Apply overlays the patch onto a copy of base, returning the merged fields
// and the summary of fields that actually changed.
func (p GrowPatch) Apply(base GrowFields) (GrowFields, ChangesSummary) {
	merged := base
	summary := ChangesSummary{}
	if p.Label != nil && *p.Label != base.Label {
		summary["label"] = FieldChange{Old: base.Label, New: *p.Label}
		merged.Label = *p.Label
	}
	if p.Species != nil && *p.Species != base.Species {
		summary["species"] = FieldChange{Old: base.Species, New: *p.Species}
		merged.Species = *p.Species
	}
	if p.Substrate != nil && *p.Substrate != base.Substrate {
		summary["substrate"] = FieldChange{Old: base.Substrate, New: *p.Substrate}
		merged.Substrate = *p.Substrate
	}
	if p.Stage != nil && *p.Stage != base.Stage {
		summary["stage"] = FieldChange{Old: base.Stage, New: *p.Stage}
		merged.Stage = *p.Stage
	}
	if p.Location != nil && *p.Location != base.Location {
		summary["location"] = FieldChange{Old: base.Location, New: *p.Location}
		merged.Location = *p.Location
	}
	if p.SourceCultureID != nil && *p.SourceCultureID != base.SourceCultureID {
		summary["source_culture_id"] = FieldChange{Old: base.SourceCultureID, New: *p.SourceCultureID}
		merged.SourceCultureID = *p.SourceCultureID
	}
	if p.Notes != nil && *p.Notes != base.Notes {
		summary["notes"] = FieldChange{Old: base.Notes, New: *p.Notes}
		merged.Notes = *p.Notes
	}
	return merged, summary
}
