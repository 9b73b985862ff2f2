package domain

import (
	"fmt"
	"sort"
	"strings"
)

// OutcomeCategory classifies how an entity left active circulation.
type OutcomeCategory string

// Canonical outcome categories.
const (
	OutcomeSuccess OutcomeCategory = "success"
	OutcomeFailure OutcomeCategory = "failure"
	OutcomeNeutral OutcomeCategory = "neutral"
	OutcomePartial OutcomeCategory = "partial"
)

// Valid reports whether the category is a member of the closed set.
func (c OutcomeCategory) Valid() bool {
	switch c {
	case OutcomeSuccess, OutcomeFailure, OutcomeNeutral, OutcomePartial:
		return true
	}
	return false
}

// DisposalOutcome is the structured terminal payload recorded when an entity
// is disposed or archived. Contamination sub-fields are meaningful only when
// the code belongs to the contamination subset of the vocabulary.
type DisposalOutcome struct {
	Code              string          `json:"outcome_code"`
	Category          OutcomeCategory `json:"outcome_category"`
	Notes             string          `json:"notes,omitempty"`
	ContaminationType string          `json:"contamination_type,omitempty"`
	SuspectedCause    string          `json:"suspected_cause,omitempty"`
}

// Clone returns a copy of the outcome.
func (o DisposalOutcome) Clone() DisposalOutcome { return o }

// Reason derives the amendment reason text carried by the disposal version.
func (o DisposalOutcome) Reason() string {
	notes := strings.TrimSpace(o.Notes)
	if notes != "" {
		return fmt.Sprintf("%s: %s", o.Code, notes)
	}
	return o.Code
}

// OutcomeSpec describes one registered outcome code.
type OutcomeSpec struct {
	Code          string          `json:"code"`
	Category      OutcomeCategory `json:"category"`
	Contamination bool            `json:"contamination"`
	Description   string          `json:"description,omitempty"`
}

// OutcomeVocabulary is the closed, entity-type-scoped enumeration of terminal
// outcome codes. Lookups are by code; registration rejects duplicates.
type OutcomeVocabulary struct {
	entity EntityType
	specs  map[string]OutcomeSpec
}

// NewOutcomeVocabulary constructs an empty vocabulary for the entity type.
func NewOutcomeVocabulary(entity EntityType) *OutcomeVocabulary {
	return &OutcomeVocabulary{entity: entity, specs: make(map[string]OutcomeSpec)}
}

// Entity returns the entity type the vocabulary is scoped to.
func (v *OutcomeVocabulary) Entity() EntityType { return v.entity }

// Register adds a spec to the vocabulary.
func (v *OutcomeVocabulary) Register(spec OutcomeSpec) error {
	code := strings.TrimSpace(spec.Code)
	if code == "" {
		return fmt.Errorf("outcome code required")
	}
	if !spec.Category.Valid() {
		return fmt.Errorf("outcome %s: invalid category %q", code, spec.Category)
	}
	if _, ok := v.specs[code]; ok {
		return fmt.Errorf("outcome %s already registered for %s", code, v.entity)
	}
	spec.Code = code
	v.specs[code] = spec
	return nil
}

// Lookup retrieves the spec registered for code.
func (v *OutcomeVocabulary) Lookup(code string) (OutcomeSpec, bool) {
	spec, ok := v.specs[code]
	return spec, ok
}

// Specs returns all registered specs sorted by code.
func (v *OutcomeVocabulary) Specs() []OutcomeSpec {
	out := make([]OutcomeSpec, 0, len(v.specs))
	for _, spec := range v.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// OutcomeRegistry holds one vocabulary per entity type.
type OutcomeRegistry struct {
	vocabularies map[EntityType]*OutcomeVocabulary
}

// NewOutcomeRegistry constructs an empty registry.
func NewOutcomeRegistry() *OutcomeRegistry {
	return &OutcomeRegistry{vocabularies: make(map[EntityType]*OutcomeVocabulary)}
}

// Vocabulary returns the vocabulary for the entity type, creating it when
// first referenced.
func (r *OutcomeRegistry) Vocabulary(entity EntityType) *OutcomeVocabulary {
	if v, ok := r.vocabularies[entity]; ok {
		return v
	}
	v := NewOutcomeVocabulary(entity)
	r.vocabularies[entity] = v
	return v
}

// Entities returns the entity types with a registered vocabulary, sorted.
func (r *OutcomeRegistry) Entities() []EntityType {
	out := make([]EntityType, 0, len(r.vocabularies))
	for e := range r.vocabularies {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks an outcome payload against the vocabulary registered for
// the entity type. Unknown codes fail with ErrInvalidOutcomeCode; a category
// that contradicts the registered one fails with ErrCategoryMismatch; and
// contamination sub-fields supplied for a non-contamination code are rejected
// to prevent state drift between forms and the ledger.
func (r *OutcomeRegistry) Validate(entity EntityType, outcome DisposalOutcome) error {
	vocab, ok := r.vocabularies[entity]
	if !ok {
		return fmt.Errorf("%w: no vocabulary for entity %s", ErrInvalidOutcomeCode, entity)
	}
	spec, ok := vocab.Lookup(outcome.Code)
	if !ok {
		return fmt.Errorf("%w: %s is not registered for %s", ErrInvalidOutcomeCode, outcome.Code, entity)
	}
	if outcome.Category != "" && outcome.Category != spec.Category {
		return fmt.Errorf("%w: code %s is %s, payload says %s", ErrCategoryMismatch, spec.Code, spec.Category, outcome.Category)
	}
	if !spec.Contamination && (outcome.ContaminationType != "" || outcome.SuspectedCause != "") {
		return fmt.Errorf("%w: contamination details supplied for non-contamination code %s", ErrCategoryMismatch, spec.Code)
	}
	return nil
}

// DefaultOutcomeRegistry returns the registry preloaded with the lab's
// standard culture and grow vocabularies.
func DefaultOutcomeRegistry() *OutcomeRegistry {
	r := NewOutcomeRegistry()
	cultures := r.Vocabulary(EntityCulture)
	for _, spec := range []OutcomeSpec{
		{Code: "archived_healthy", Category: OutcomeSuccess, Description: "retired while viable, library copy retained"},
		{Code: "exhausted", Category: OutcomeNeutral, Description: "volume consumed by transfers"},
		{Code: "senescent", Category: OutcomeFailure, Description: "lost vigor across generations"},
		{Code: "contaminated_mold", Category: OutcomeFailure, Contamination: true, Description: "visible competitor mold"},
		{Code: "contaminated_bacteria", Category: OutcomeFailure, Contamination: true, Description: "bacterial wet spot or souring"},
	} {
		if err := cultures.Register(spec); err != nil {
			panic(err)
		}
	}
	grows := r.Vocabulary(EntityGrow)
	for _, spec := range []OutcomeSpec{
		{Code: "harvest_complete", Category: OutcomeSuccess, Description: "all flushes collected"},
		{Code: "low_yield", Category: OutcomePartial, Description: "harvested below projection"},
		{Code: "aborted", Category: OutcomeNeutral, Description: "stopped before fruiting"},
		{Code: "contaminated", Category: OutcomeFailure, Contamination: true, Description: "competitor organism in substrate"},
	} {
		if err := grows.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}
