package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mycocore/pkg/domain"
)

// Versions returns the full version chain for a record group, newest first.
// Each version carries the computed validity window: ValidTo is the next
// version's ValidFrom, and the head reports IsCurrent. Archived groups keep
// their single current version; archival only affects active listings.
func (s *Service) Versions(ctx context.Context, groupID string) ([]domain.Version, error) {
	var chain []domain.Version
	err := s.instrumentRead(ctx, "query_versions", func() error {
		var err error
		chain, err = s.store.Versions(groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	annotateChain(chain)
	// Storage hands back oldest first; readers want the latest on top.
	sort.Slice(chain, func(i, j int) bool { return chain[i].Seq > chain[j].Seq })
	return chain, nil
}

// instrumentRead covers query paths with tracing and metrics but no audit:
// reads never change the ledger.
func (s *Service) instrumentRead(ctx context.Context, operation string, fn func() error) error {
	ctx, span := s.opts.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn()
	span.End(err)
	s.opts.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	return err
}

// annotateChain fills the read-side projections on an oldest-first chain.
// Every group has exactly one current version: the head. Archival changes
// whether the group shows up in active listings, not which version is current.
func annotateChain(chain []domain.Version) {
	for i := range chain {
		if i+1 < len(chain) {
			next := chain[i+1].ValidFrom
			chain[i].ValidTo = &next
			chain[i].IsCurrent = false
			continue
		}
		chain[i].ValidTo = nil
		chain[i].IsCurrent = true
	}
}

// AmendmentLog returns the group's amendment entries keyed by the version
// each amendment produced. The survivor's merge version carries two entries,
// the second naming the absorbed group.
func (s *Service) AmendmentLog(ctx context.Context, groupID string) (map[string][]domain.AmendmentLogEntry, error) {
	var entries []domain.AmendmentLogEntry
	err := s.instrumentRead(ctx, "query_amendment_log", func() error {
		var err error
		entries, err = s.store.AmendmentLog(groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string][]domain.AmendmentLogEntry, len(entries))
	for _, entry := range entries {
		byVersion[entry.NewRecordID] = append(byVersion[entry.NewRecordID], entry)
	}
	return byVersion, nil
}

// CurrentRecord projects the latest version of a record group together with
// its group metadata and archival status.
func (s *Service) CurrentRecord(ctx context.Context, groupID string) (domain.CurrentRecord, error) {
	var record domain.CurrentRecord
	err := s.instrumentRead(ctx, "query_current", func() error {
		chain, err := s.store.Versions(groupID)
		if err != nil {
			return err
		}
		group, ok := findGroup(s.store.Groups(), groupID)
		if !ok {
			return domain.NotFoundError(groupID)
		}
		record = projectCurrent(group, chain)
		return nil
	})
	if err != nil {
		return domain.CurrentRecord{}, err
	}
	return record, nil
}

func findGroup(groups []domain.RecordGroup, groupID string) (domain.RecordGroup, bool) {
	for _, group := range groups {
		if group.ID == groupID {
			return group, true
		}
	}
	return domain.RecordGroup{}, false
}

func projectCurrent(group domain.RecordGroup, chain []domain.Version) domain.CurrentRecord {
	head := chain[len(chain)-1]
	record := domain.CurrentRecord{
		GroupID:   group.ID,
		Entity:    group.Entity,
		Seq:       head.Seq,
		VersionID: head.ID,
		CreatedAt: group.CreatedAt,
		UpdatedAt: head.ValidFrom,
		Archived:  head.Archived(),
		Outcome:   head.Outcome,
	}
	switch group.Entity {
	case domain.EntityCulture:
		record.Culture = head.Culture
	case domain.EntityGrow:
		record.Grow = head.Grow
	}
	return record
}

// ListActiveCultures returns the current record of every culture group that
// has not been archived, ordered by group creation time.
func (s *Service) ListActiveCultures(ctx context.Context) ([]domain.CurrentRecord, error) {
	return s.listActive(ctx, domain.EntityCulture)
}

// ListActiveGrows returns the current record of every non-archived grow group.
func (s *Service) ListActiveGrows(ctx context.Context) ([]domain.CurrentRecord, error) {
	return s.listActive(ctx, domain.EntityGrow)
}

func (s *Service) listActive(ctx context.Context, entity domain.EntityType) ([]domain.CurrentRecord, error) {
	var records []domain.CurrentRecord
	err := s.instrumentRead(ctx, "query_active", func() error {
		for _, group := range s.store.Groups() {
			if group.Entity != entity {
				continue
			}
			chain, err := s.store.Versions(group.ID)
			if err != nil {
				return err
			}
			record := projectCurrent(group, chain)
			if record.Archived {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// VerifyChain checks the structural invariants of a stored version chain:
// contiguous sequence numbers starting at 1, an original first version,
// non-decreasing timestamps, and no versions after a terminal marker.
func (s *Service) VerifyChain(ctx context.Context, groupID string) error {
	return s.instrumentRead(ctx, "verify_chain", func() error {
		chain, err := s.store.Versions(groupID)
		if err != nil {
			return err
		}
		if len(chain) == 0 {
			return fmt.Errorf("record group %s: empty version chain", groupID)
		}
		for i, version := range chain {
			if version.Seq != i+1 {
				return fmt.Errorf("record group %s: sequence gap at position %d (got %d)", groupID, i, version.Seq)
			}
			if i == 0 {
				if version.Type != domain.AmendmentOriginal {
					return fmt.Errorf("record group %s: first version is %s, want %s", groupID, version.Type, domain.AmendmentOriginal)
				}
				continue
			}
			if version.Type == domain.AmendmentOriginal {
				return fmt.Errorf("record group %s: version %d repeats the original", groupID, version.Seq)
			}
			if version.ValidFrom.Before(chain[i-1].ValidFrom) {
				return fmt.Errorf("record group %s: version %d predates version %d", groupID, version.Seq, chain[i-1].Seq)
			}
			if chain[i-1].Archived() {
				return fmt.Errorf("record group %s: version %d appended after terminal version %d", groupID, version.Seq, chain[i-1].Seq)
			}
		}
		return nil
	})
}
