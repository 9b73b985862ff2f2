package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"mycocore/internal/infra/persistence/memory"
	"mycocore/pkg/domain"
)

// importChain builds a store holding exactly the supplied chain for one group.
func importChain(versions ...domain.Version) (*memory.Store, string) {
	groupID := "grp-1"
	for i := range versions {
		versions[i].GroupID = groupID
		versions[i].Entity = domain.EntityCulture
		if versions[i].ID == "" {
			versions[i].ID = "ver-" + string(rune('a'+i))
		}
	}
	store := memory.NewStore(nil)
	store.ImportState(memory.Snapshot{
		Groups: map[string]domain.RecordGroup{
			groupID: {ID: groupID, Entity: domain.EntityCulture, CreatedAt: time.Unix(0, 0).UTC()},
		},
		Versions: map[string][]domain.Version{groupID: versions},
	})
	return store, groupID
}

func TestVerifyChainDetectsCorruption(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fields := &domain.CultureFields{Label: "GL-01"}
	cases := []struct {
		name     string
		versions []domain.Version
		want     string
	}{
		{
			name: "sequence gap",
			versions: []domain.Version{
				{Seq: 1, Type: domain.AmendmentOriginal, ValidFrom: t0, Culture: fields},
				{Seq: 3, Type: domain.AmendmentUpdate, ValidFrom: t0.Add(time.Minute), Culture: fields},
			},
			want: "sequence gap",
		},
		{
			name: "first version not original",
			versions: []domain.Version{
				{Seq: 1, Type: domain.AmendmentUpdate, ValidFrom: t0, Culture: fields},
			},
			want: "first version",
		},
		{
			name: "repeated original",
			versions: []domain.Version{
				{Seq: 1, Type: domain.AmendmentOriginal, ValidFrom: t0, Culture: fields},
				{Seq: 2, Type: domain.AmendmentOriginal, ValidFrom: t0.Add(time.Minute), Culture: fields},
			},
			want: "repeats the original",
		},
		{
			name: "timestamp regression",
			versions: []domain.Version{
				{Seq: 1, Type: domain.AmendmentOriginal, ValidFrom: t0, Culture: fields},
				{Seq: 2, Type: domain.AmendmentUpdate, ValidFrom: t0.Add(-time.Minute), Culture: fields},
			},
			want: "predates",
		},
		{
			name: "append after terminal",
			versions: []domain.Version{
				{Seq: 1, Type: domain.AmendmentOriginal, ValidFrom: t0, Culture: fields},
				{Seq: 2, Type: domain.AmendmentVoid, ValidFrom: t0.Add(time.Minute), Culture: fields},
				{Seq: 3, Type: domain.AmendmentUpdate, ValidFrom: t0.Add(2 * time.Minute), Culture: fields},
			},
			want: "terminal",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, groupID := importChain(tc.versions...)
			svc := NewService(store)
			err := svc.VerifyChain(context.Background(), groupID)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyChainAcceptsWellFormedChain(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fields := &domain.CultureFields{Label: "GL-01"}
	store, groupID := importChain(
		domain.Version{Seq: 1, Type: domain.AmendmentOriginal, ValidFrom: t0, Culture: fields},
		domain.Version{Seq: 2, Type: domain.AmendmentCorrection, ValidFrom: t0.Add(time.Minute), Culture: fields},
		domain.Version{Seq: 3, Type: domain.AmendmentVoid, ValidFrom: t0.Add(2 * time.Minute), Culture: fields},
	)
	if err := NewService(store).VerifyChain(context.Background(), groupID); err != nil {
		t.Fatalf("well-formed chain must verify: %v", err)
	}
}
