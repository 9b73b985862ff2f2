package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"mycocore/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(nil)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	step := 0
	store.SetNowFunc(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	})
	return store
}

func createCulture(t *testing.T, store *Store, fields domain.CultureFields) domain.Version {
	t.Helper()
	var created domain.Version
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateCulture(fields, "mara")
		return txErr
	})
	if err != nil {
		t.Fatalf("create culture: %v", err)
	}
	return created
}

func TestCreateCultureOpensGroupAtVersionOne(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", Species: "P. ostreatus", Kind: domain.CultureLiquid, HealthRating: 5})

	if created.Seq != 1 || created.Type != domain.AmendmentOriginal {
		t.Fatalf("expected original version 1, got seq=%d type=%s", created.Seq, created.Type)
	}
	groups := store.Groups()
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].CreatedBy != "mara" {
		t.Fatalf("expected creator recorded, got %q", groups[0].CreatedBy)
	}
	log, err := store.AmendmentLog(created.GroupID)
	if err != nil {
		t.Fatalf("amendment log: %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("originals carry no amendment entry, got %d", len(log))
	}
}

func TestAmendCultureAppendsVersionAndLogEntry(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 5})

	rating := 3
	var amended domain.Version
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		amended, txErr = tx.AmendCulture(domain.AmendmentRequest{
			GroupID: created.GroupID,
			Type:    domain.AmendmentCorrection,
			Reason:  "rating recorded against the wrong jar",
			Actor:   "mara",
		}, domain.CulturePatch{HealthRating: &rating})
		return txErr
	})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}

	if amended.Seq != 2 || amended.Type != domain.AmendmentCorrection {
		t.Fatalf("expected correction at seq 2, got seq=%d type=%s", amended.Seq, amended.Type)
	}
	if amended.Culture.HealthRating != 3 || amended.Culture.Label != "GL-01" {
		t.Fatalf("unexpected merged fields: %+v", amended.Culture)
	}

	chain, err := store.Versions(created.GroupID)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(chain))
	}
	if chain[0].Culture.HealthRating != 5 {
		t.Fatalf("original version must be untouched, got rating %d", chain[0].Culture.HealthRating)
	}
	if !chain[1].ValidFrom.After(chain[0].ValidFrom) {
		t.Fatalf("timestamps must advance along the chain")
	}

	log, err := store.AmendmentLog(created.GroupID)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(log))
	}
	entry := log[0]
	if entry.NewRecordID != amended.ID {
		t.Fatalf("log must point at the produced version")
	}
	change, ok := entry.Changes["health_rating"]
	if !ok || change.Old != 5 || change.New != 3 {
		t.Fatalf("expected health_rating old=5 new=3, got %v", entry.Changes)
	}
	if entry.AmendedBy != "mara" || entry.Reason == "" {
		t.Fatalf("log entry missing actor or reason: %+v", entry)
	}
}

func TestAmendRejections(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 4})
	rating := 2

	run := func(req domain.AmendmentRequest, patch domain.CulturePatch) error {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, txErr := tx.AmendCulture(req, patch)
			return txErr
		})
		return err
	}

	if err := run(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentUpdate, Reason: "  "}, domain.CulturePatch{HealthRating: &rating}); !errors.Is(err, domain.ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}
	if err := run(domain.AmendmentRequest{GroupID: "nope", Type: domain.AmendmentUpdate, Reason: "r"}, domain.CulturePatch{HealthRating: &rating}); !errors.Is(err, domain.ErrRecordGroupNotFound) {
		t.Fatalf("expected ErrRecordGroupNotFound, got %v", err)
	}
	if err := run(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentUpdate, Reason: "no change"}, domain.CulturePatch{}); !errors.Is(err, domain.ErrNoOpAmendment) {
		t.Fatalf("expected ErrNoOpAmendment for empty patch, got %v", err)
	}
	same := 4
	if err := run(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentUpdate, Reason: "no change"}, domain.CulturePatch{HealthRating: &same}); !errors.Is(err, domain.ErrNoOpAmendment) {
		t.Fatalf("expected ErrNoOpAmendment for identical value, got %v", err)
	}
	if err := run(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentOriginal, Reason: "r"}, domain.CulturePatch{HealthRating: &rating}); err == nil {
		t.Fatalf("expected original type to be rejected on amendments")
	}

	chain, _ := store.Versions(created.GroupID)
	if len(chain) != 1 {
		t.Fatalf("rejected amendments must not append versions, got %d", len(chain))
	}
}

func TestExpectedVersionConflict(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 4})

	rating := 3
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.AmendCulture(domain.AmendmentRequest{
			GroupID: created.GroupID,
			Type:    domain.AmendmentUpdate,
			Reason:  "weekly check",
		}, domain.CulturePatch{HealthRating: &rating})
		return txErr
	})
	if err != nil {
		t.Fatalf("first amendment: %v", err)
	}

	stale := 2
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.AmendCulture(domain.AmendmentRequest{
			GroupID:         created.GroupID,
			Type:            domain.AmendmentUpdate,
			Reason:          "raced update",
			ExpectedVersion: 1,
		}, domain.CulturePatch{HealthRating: &stale})
		return txErr
	})
	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestVoidCarriesFieldsAndArchives(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 4})
	rating := 3
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.AmendCulture(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentUpdate, Reason: "weekly check"}, domain.CulturePatch{HealthRating: &rating})
		return txErr
	}); err != nil {
		t.Fatalf("amend: %v", err)
	}

	var voided domain.Version
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		voided, txErr = tx.Void(domain.AmendmentRequest{GroupID: created.GroupID, Reason: "duplicate of GL-02", Actor: "mara"})
		return txErr
	}); err != nil {
		t.Fatalf("void: %v", err)
	}

	if voided.Seq != 3 || voided.Type != domain.AmendmentVoid {
		t.Fatalf("expected void at seq 3, got seq=%d type=%s", voided.Seq, voided.Type)
	}
	if !voided.Archived() {
		t.Fatalf("void version must archive the group")
	}
	if voided.Culture == nil || voided.Culture.HealthRating != 3 {
		t.Fatalf("void must carry the head's field snapshot, got %+v", voided.Culture)
	}
	log, _ := store.AmendmentLog(created.GroupID)
	if len(log) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(log))
	}
	if len(log[1].Changes) != 0 {
		t.Fatalf("void log entry must carry an empty changes summary")
	}
}

func TestDisposeAttachesOutcomeAndDerivesReason(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 4})

	outcome := domain.DisposalOutcome{Code: "exhausted", Notes: "used for final spawn run"}
	var disposed domain.Version
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		disposed, txErr = tx.Dispose(domain.AmendmentRequest{GroupID: created.GroupID, Actor: "mara"}, outcome)
		return txErr
	}); err != nil {
		t.Fatalf("dispose: %v", err)
	}

	if disposed.Outcome == nil || disposed.Outcome.Code != "exhausted" {
		t.Fatalf("expected outcome attached, got %+v", disposed.Outcome)
	}
	if disposed.Reason != "exhausted: used for final spawn run" {
		t.Fatalf("expected derived reason, got %q", disposed.Reason)
	}
	if !disposed.Archived() {
		t.Fatalf("disposal must archive the group")
	}
}

func TestMergeProducesSurvivorVersionAndTerminalMarker(t *testing.T) {
	store := newTestStore(t)
	target := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 4})
	source := createCulture(t, store, domain.CultureFields{Label: "GL-01b", HealthRating: 4})

	notes := "absorbed duplicate GL-01b"
	var produced domain.Version
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		produced, txErr = tx.Merge(domain.AmendmentRequest{
			GroupID: target.GroupID,
			Reason:  "same isolate logged twice",
			Actor:   "mara",
		}, source.GroupID, &domain.CulturePatch{Notes: &notes}, nil)
		return txErr
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if produced.Type != domain.AmendmentMerge || produced.Seq != 2 {
		t.Fatalf("expected merge version at seq 2, got %+v", produced)
	}
	if produced.MergedFrom == nil || *produced.MergedFrom != source.GroupID {
		t.Fatalf("survivor version must record the absorbed group")
	}
	if produced.Archived() {
		t.Fatalf("survivor must stay active after merge")
	}

	sourceChain, _ := store.Versions(source.GroupID)
	marker := sourceChain[len(sourceChain)-1]
	if marker.Type != domain.AmendmentMerge || marker.MergedInto == nil || *marker.MergedInto != target.GroupID {
		t.Fatalf("absorbed group must end in a terminal merge marker, got %+v", marker)
	}
	if !marker.Archived() {
		t.Fatalf("absorbed group must be archived")
	}

	targetLog, _ := store.AmendmentLog(target.GroupID)
	var forProduced []domain.AmendmentLogEntry
	for _, entry := range targetLog {
		if entry.NewRecordID == produced.ID {
			forProduced = append(forProduced, entry)
		}
	}
	if len(forProduced) != 2 {
		t.Fatalf("merge must record one entry per contributing group, got %d", len(forProduced))
	}
	var sawSource bool
	for _, entry := range forProduced {
		if entry.SourceGroupID == source.GroupID {
			sawSource = true
		}
	}
	if !sawSource {
		t.Fatalf("one merge log entry must name the absorbed group")
	}
}

func TestMergeRejectsSelfAndCrossEntity(t *testing.T) {
	store := newTestStore(t)
	culture := createCulture(t, store, domain.CultureFields{Label: "GL-01"})
	var grow domain.Version
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		grow, txErr = tx.CreateGrow(domain.GrowFields{Label: "tub-1", Stage: domain.StageInoculated}, "mara")
		return txErr
	}); err != nil {
		t.Fatalf("create grow: %v", err)
	}

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.Merge(domain.AmendmentRequest{GroupID: culture.GroupID, Reason: "r"}, culture.GroupID, nil, nil)
		return txErr
	})
	if err == nil {
		t.Fatalf("expected self-merge rejection")
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.Merge(domain.AmendmentRequest{GroupID: culture.GroupID, Reason: "r"}, grow.GroupID, nil, nil)
		return txErr
	})
	if err == nil {
		t.Fatalf("expected cross-entity merge rejection")
	}
}

func TestFailedTransactionDiscardsAllAppends(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 4})

	rating := 2
	sentinel := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, txErr := tx.AmendCulture(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentUpdate, Reason: "r"}, domain.CulturePatch{HealthRating: &rating}); txErr != nil {
			return txErr
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	chain, _ := store.Versions(created.GroupID)
	if len(chain) != 1 {
		t.Fatalf("failed transaction must discard appends, got %d versions", len(chain))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 5})
	rating := 3
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.AmendCulture(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentCorrection, Reason: "typo"}, domain.CulturePatch{HealthRating: &rating})
		return txErr
	}); err != nil {
		t.Fatalf("amend: %v", err)
	}

	snap := store.ExportState()
	// Reverse chain order to prove ImportState re-sorts by Seq.
	chain := snap.Versions[created.GroupID]
	chain[0], chain[1] = chain[1], chain[0]

	restored := NewStore(nil)
	restored.ImportState(snap)

	got, err := restored.Versions(created.GroupID)
	if err != nil {
		t.Fatalf("versions after import: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("import must restore Seq order, got %+v", got)
	}
	log, _ := restored.AmendmentLog(created.GroupID)
	if len(log) != 1 {
		t.Fatalf("expected log restored, got %d entries", len(log))
	}
}

func TestViewIsIsolatedFromLaterCommits(t *testing.T) {
	store := newTestStore(t)
	created := createCulture(t, store, domain.CultureFields{Label: "GL-01", HealthRating: 5})

	err := store.View(context.Background(), func(v domain.TransactionView) error {
		before := v.Versions(created.GroupID)
		rating := 1
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, txErr := tx.AmendCulture(domain.AmendmentRequest{GroupID: created.GroupID, Type: domain.AmendmentUpdate, Reason: "r"}, domain.CulturePatch{HealthRating: &rating})
			return txErr
		}); err != nil {
			return err
		}
		after := v.Versions(created.GroupID)
		if len(before) != len(after) {
			t.Fatalf("view must be a stable snapshot: %d then %d", len(before), len(after))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
