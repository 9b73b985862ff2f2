package domain

import "testing"

func TestCultureFieldsValidate(t *testing.T) {
	valid := CultureFields{Label: "GL-01", Species: "P. ostreatus", Kind: CultureLiquid, HealthRating: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid fields, got %v", err)
	}
	cases := []struct {
		name   string
		fields CultureFields
	}{
		{"blank label", CultureFields{Label: "   "}},
		{"rating too high", CultureFields{Label: "GL-01", HealthRating: 6}},
		{"rating negative", CultureFields{Label: "GL-01", HealthRating: -1}},
		{"negative generation", CultureFields{Label: "GL-01", Generation: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fields.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestCulturePatchApplyDiffsOnlyChangedFields(t *testing.T) {
	base := CultureFields{Label: "GL-01", Species: "P. ostreatus", Kind: CultureLiquid, HealthRating: 5, Notes: "vigorous"}
	rating := 3
	sameLabel := "GL-01"
	patch := CulturePatch{Label: &sameLabel, HealthRating: &rating}

	merged, summary := patch.Apply(base)

	if merged.HealthRating != 3 {
		t.Fatalf("expected merged rating 3, got %d", merged.HealthRating)
	}
	if merged.Label != base.Label || merged.Species != base.Species || merged.Notes != base.Notes {
		t.Fatalf("unpatched fields must carry forward, got %+v", merged)
	}
	if len(summary) != 1 {
		t.Fatalf("expected single summary entry, got %v", summary)
	}
	change, ok := summary["health_rating"]
	if !ok {
		t.Fatalf("expected health_rating in summary, got %v", summary)
	}
	if change.Old != 5 || change.New != 3 {
		t.Fatalf("expected old=5 new=3, got %+v", change)
	}
}

func TestCulturePatchApplyIdenticalValuesIsEmpty(t *testing.T) {
	base := CultureFields{Label: "GL-01", HealthRating: 4}
	label := "GL-01"
	rating := 4
	_, summary := CulturePatch{Label: &label, HealthRating: &rating}.Apply(base)
	if len(summary) != 0 {
		t.Fatalf("expected empty summary for identical values, got %v", summary)
	}
}

func TestGrowPatchApply(t *testing.T) {
	base := GrowFields{Label: "tub-7", Species: "P. ostreatus", Substrate: "straw", Stage: StageColonizing}
	stage := StageFruiting
	location := "tent B"
	merged, summary := GrowPatch{Stage: &stage, Location: &location}.Apply(base)

	if merged.Stage != StageFruiting || merged.Location != "tent B" {
		t.Fatalf("patch not applied: %+v", merged)
	}
	if len(summary) != 2 {
		t.Fatalf("expected 2 summary entries, got %v", summary)
	}
	if summary["stage"].Old != StageColonizing || summary["stage"].New != StageFruiting {
		t.Fatalf("unexpected stage change: %+v", summary["stage"])
	}
}

func TestPatchIsZero(t *testing.T) {
	if !(CulturePatch{}).IsZero() || !(GrowPatch{}).IsZero() {
		t.Fatalf("empty patches must report zero")
	}
	notes := "n"
	if (CulturePatch{Notes: &notes}).IsZero() || (GrowPatch{Notes: &notes}).IsZero() {
		t.Fatalf("non-empty patches must not report zero")
	}
}

func TestEntityTypeValid(t *testing.T) {
	if !EntityCulture.Valid() || !EntityGrow.Valid() {
		t.Fatalf("canonical entity types must be valid")
	}
	if EntityType("mushroom").Valid() {
		t.Fatalf("unknown entity type must be invalid")
	}
}
