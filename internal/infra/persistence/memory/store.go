// Package memory provides the in-memory, append-only ledger implementation of
// the core persistence contracts. It is the authoritative engine for the
// durable backends, which compose it and snapshot committed rows.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mycocore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the
// domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*Transaction)(nil)
	_ domain.TransactionView = (*view)(nil)
)

type groupState struct {
	group    domain.RecordGroup
	versions []domain.Version
	log      []domain.AmendmentLogEntry
}

func (g *groupState) clone() *groupState {
	cp := &groupState{group: g.group}
	cp.versions = make([]domain.Version, len(g.versions))
	for i, v := range g.versions {
		cp.versions[i] = v.Clone()
	}
	cp.log = make([]domain.AmendmentLogEntry, len(g.log))
	for i, e := range g.log {
		cp.log[i] = e.Clone()
	}
	return cp
}

func (g *groupState) head() domain.Version {
	return g.versions[len(g.versions)-1]
}

type memoryState struct {
	groups map[string]*groupState
}

func newMemoryState() memoryState {
	return memoryState{groups: make(map[string]*groupState)}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for id, g := range s.groups {
		cloned.groups[id] = g.clone()
	}
	return cloned
}

// Snapshot captures a point-in-time clone of the ledger for durable backends.
type Snapshot struct {
	Groups   map[string]domain.RecordGroup         `json:"groups"`
	Versions map[string][]domain.Version           `json:"versions"`
	Log      map[string][]domain.AmendmentLogEntry `json:"amendment_log"`
}

// Store is the in-memory transactional ledger. Versions and amendment log
// entries are append-only; committed state is immutable and replaced
// wholesale on commit, so readers never observe an intermediate chain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs a ledger backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// NowFunc returns the store's clock source.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// SetNowFunc overrides the store's clock source (tests).
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string { return uuid.NewString() }

// Transaction is a mutation set applied against a clone of committed state.
type Transaction struct {
	state   memoryState
	changes []domain.Change
	now     time.Time
}

// Snapshot exposes the transactional state read-only.
func (tx *Transaction) Snapshot() domain.TransactionView {
	return &view{state: &tx.state}
}

// RunInTransaction executes fn within a transactional copy of the ledger.
// Rules run before commit; blocking violations discard every append.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, &view{state: &tx.state}, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(&view{state: &snapshot})
}

func (tx *Transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *Transaction) createGroup(entity domain.EntityType, actor string) (*groupState, domain.Version) {
	group := domain.RecordGroup{ID: newID(), Entity: entity, CreatedAt: tx.now, CreatedBy: actor}
	version := domain.Version{
		ID:        newID(),
		GroupID:   group.ID,
		Entity:    entity,
		Seq:       1,
		Type:      domain.AmendmentOriginal,
		ValidFrom: tx.now,
	}
	g := &groupState{group: group}
	tx.state.groups[group.ID] = g
	return g, version
}

// CreateCulture opens a new culture record group at version 1.
func (tx *Transaction) CreateCulture(fields domain.CultureFields, actor string) (domain.Version, error) {
	if err := fields.Validate(); err != nil {
		return domain.Version{}, err
	}
	g, version := tx.createGroup(domain.EntityCulture, actor)
	f := fields
	version.Culture = &f
	g.versions = append(g.versions, version)
	tx.recordChange(domain.Change{Entity: domain.EntityCulture, Action: domain.ActionCreateGroup, GroupID: g.group.ID, Version: version.Clone()})
	return version.Clone(), nil
}

// CreateGrow opens a new grow record group at version 1.
func (tx *Transaction) CreateGrow(fields domain.GrowFields, actor string) (domain.Version, error) {
	if err := fields.Validate(); err != nil {
		return domain.Version{}, err
	}
	g, version := tx.createGroup(domain.EntityGrow, actor)
	f := fields
	version.Grow = &f
	g.versions = append(g.versions, version)
	tx.recordChange(domain.Change{Entity: domain.EntityGrow, Action: domain.ActionCreateGroup, GroupID: g.group.ID, Version: version.Clone()})
	return version.Clone(), nil
}

// validateRequest applies the write-free precondition checks shared by every
// amendment path. It returns the target group after all checks pass.
func (tx *Transaction) validateRequest(req domain.AmendmentRequest, entity domain.EntityType) (*groupState, error) {
	if !req.Type.Valid() || req.Type == domain.AmendmentOriginal {
		return nil, fmt.Errorf("unsupported amendment type %q", req.Type)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domain.ErrMissingReason
	}
	g, ok := tx.state.groups[req.GroupID]
	if !ok {
		return nil, domain.NotFoundError(req.GroupID)
	}
	if g.group.Entity != entity {
		return nil, fmt.Errorf("group %s is a %s, not a %s", req.GroupID, g.group.Entity, entity)
	}
	head := g.head()
	if req.ExpectedVersion > 0 && req.ExpectedVersion != head.Seq {
		return nil, domain.ConflictError(req.GroupID, req.ExpectedVersion, head.Seq)
	}
	return g, nil
}

// appendVersion allocates the next Seq, appends the version and its log
// entry, and records the change for rule evaluation.
func (tx *Transaction) appendVersion(g *groupState, req domain.AmendmentRequest, version domain.Version, summary domain.ChangesSummary) domain.Version {
	prior := g.head()
	version.ID = newID()
	version.GroupID = g.group.ID
	version.Entity = g.group.Entity
	version.Seq = prior.Seq + 1
	version.Type = req.Type
	version.Reason = strings.TrimSpace(req.Reason)
	version.ValidFrom = tx.now
	g.versions = append(g.versions, version)
	g.log = append(g.log, domain.AmendmentLogEntry{
		ID:          newID(),
		NewRecordID: version.ID,
		GroupID:     g.group.ID,
		AmendedBy:   req.Actor,
		AmendedAt:   tx.now,
		Changes:     summary.Clone(),
		Reason:      version.Reason,
	})
	p := prior.Clone()
	tx.recordChange(domain.Change{
		Entity:  g.group.Entity,
		Action:  domain.ActionAppendVersion,
		GroupID: g.group.ID,
		Prior:   &p,
		Version: version.Clone(),
	})
	return version.Clone()
}

// AmendCulture applies a typed partial update to a culture group.
func (tx *Transaction) AmendCulture(req domain.AmendmentRequest, patch domain.CulturePatch) (domain.Version, error) {
	if req.Type == domain.AmendmentVoid || req.Type == domain.AmendmentMerge {
		return domain.Version{}, fmt.Errorf("amendment type %q requires its dedicated operation", req.Type)
	}
	g, err := tx.validateRequest(req, domain.EntityCulture)
	if err != nil {
		return domain.Version{}, err
	}
	head := g.head()
	merged, summary := patch.Apply(*head.Culture)
	if len(summary) == 0 {
		return domain.Version{}, domain.ErrNoOpAmendment
	}
	if err := merged.Validate(); err != nil {
		return domain.Version{}, err
	}
	return tx.appendVersion(g, req, domain.Version{Culture: &merged}, summary), nil
}

// AmendGrow applies a typed partial update to a grow group.
func (tx *Transaction) AmendGrow(req domain.AmendmentRequest, patch domain.GrowPatch) (domain.Version, error) {
	if req.Type == domain.AmendmentVoid || req.Type == domain.AmendmentMerge {
		return domain.Version{}, fmt.Errorf("amendment type %q requires its dedicated operation", req.Type)
	}
	g, err := tx.validateRequest(req, domain.EntityGrow)
	if err != nil {
		return domain.Version{}, err
	}
	head := g.head()
	merged, summary := patch.Apply(*head.Grow)
	if len(summary) == 0 {
		return domain.Version{}, domain.ErrNoOpAmendment
	}
	if err := merged.Validate(); err != nil {
		return domain.Version{}, err
	}
	return tx.appendVersion(g, req, domain.Version{Grow: &merged}, summary), nil
}

// Void terminates the group's active status. Changes may be empty; the field
// snapshot is carried forward unchanged.
func (tx *Transaction) Void(req domain.AmendmentRequest) (domain.Version, error) {
	req.Type = domain.AmendmentVoid
	g, err := tx.validateVoidStyle(req)
	if err != nil {
		return domain.Version{}, err
	}
	next := carriedFields(g.head())
	return tx.appendVersion(g, req, next, nil), nil
}

// Dispose terminates the group carrying a structured outcome payload. When
// the request has no reason of its own, the outcome-derived reason is used.
func (tx *Transaction) Dispose(req domain.AmendmentRequest, outcome domain.DisposalOutcome) (domain.Version, error) {
	req.Type = domain.AmendmentVoid
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = outcome.Reason()
	}
	g, err := tx.validateVoidStyle(req)
	if err != nil {
		return domain.Version{}, err
	}
	next := carriedFields(g.head())
	o := outcome.Clone()
	next.Outcome = &o
	return tx.appendVersion(g, req, next, nil), nil
}

// validateVoidStyle is validateRequest without the entity pin: void and
// disposal apply to either entity type.
func (tx *Transaction) validateVoidStyle(req domain.AmendmentRequest) (*groupState, error) {
	g, ok := tx.state.groups[req.GroupID]
	if !ok {
		return nil, domain.NotFoundError(req.GroupID)
	}
	return tx.validateRequest(req, g.group.Entity)
}

// carriedFields clones the head's field snapshot into a fresh version shell.
func carriedFields(head domain.Version) domain.Version {
	next := domain.Version{}
	if head.Culture != nil {
		c := *head.Culture
		next.Culture = &c
	}
	if head.Grow != nil {
		gr := *head.Grow
		next.Grow = &gr
	}
	return next
}

// Merge absorbs sourceID into the group named by req.GroupID. The survivor
// gains a merge version (with the optional patch applied); the absorbed group
// gains a terminal merge marker. The log records one entry per contributing
// group against the survivor's produced version.
func (tx *Transaction) Merge(req domain.AmendmentRequest, sourceID string, culture *domain.CulturePatch, grow *domain.GrowPatch) (domain.Version, error) {
	req.Type = domain.AmendmentMerge
	target, err := tx.validateVoidStyle(req)
	if err != nil {
		return domain.Version{}, err
	}
	source, ok := tx.state.groups[sourceID]
	if !ok {
		return domain.Version{}, domain.NotFoundError(sourceID)
	}
	if sourceID == req.GroupID {
		return domain.Version{}, fmt.Errorf("cannot merge group %s into itself", sourceID)
	}
	if source.group.Entity != target.group.Entity {
		return domain.Version{}, fmt.Errorf("cannot merge %s group into %s group", source.group.Entity, target.group.Entity)
	}

	head := target.head()
	next := carriedFields(head)
	var summary domain.ChangesSummary
	switch {
	case next.Culture != nil && culture != nil:
		merged, s := culture.Apply(*next.Culture)
		if err := merged.Validate(); err != nil {
			return domain.Version{}, err
		}
		next.Culture = &merged
		summary = s
	case next.Grow != nil && grow != nil:
		merged, s := grow.Apply(*next.Grow)
		if err := merged.Validate(); err != nil {
			return domain.Version{}, err
		}
		next.Grow = &merged
		summary = s
	}
	src := sourceID
	next.MergedFrom = &src
	produced := tx.appendVersion(target, req, next, summary)

	// Terminal marker on the absorbed group, plus the extra log entry that
	// ties the absorbed chain to the survivor's produced version.
	marker := carriedFields(source.head())
	tgt := target.group.ID
	marker.MergedInto = &tgt
	markerReq := req
	markerReq.GroupID = sourceID
	markerReq.ExpectedVersion = 0
	tx.appendVersion(source, markerReq, marker, nil)
	target.log = append(target.log, domain.AmendmentLogEntry{
		ID:            newID(),
		NewRecordID:   produced.ID,
		GroupID:       target.group.ID,
		AmendedBy:     req.Actor,
		AmendedAt:     tx.now,
		Reason:        strings.TrimSpace(req.Reason),
		SourceGroupID: sourceID,
	})
	return produced, nil
}

// view implements domain.TransactionView over a memoryState.
type view struct {
	state *memoryState
}

// ListGroups returns every record group, archived included, sorted by
// creation time then id for stable output.
func (v *view) ListGroups() []domain.RecordGroup {
	out := make([]domain.RecordGroup, 0, len(v.state.groups))
	for _, g := range v.state.groups {
		out = append(out, g.group)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindGroup retrieves a record group by id.
func (v *view) FindGroup(id string) (domain.RecordGroup, bool) {
	g, ok := v.state.groups[id]
	if !ok {
		return domain.RecordGroup{}, false
	}
	return g.group, true
}

// Versions returns the group's chain ascending by Seq.
func (v *view) Versions(groupID string) []domain.Version {
	g, ok := v.state.groups[groupID]
	if !ok {
		return nil
	}
	out := make([]domain.Version, len(g.versions))
	for i, ver := range g.versions {
		out[i] = ver.Clone()
	}
	return out
}

// Head returns the group's current version.
func (v *view) Head(groupID string) (domain.Version, bool) {
	g, ok := v.state.groups[groupID]
	if !ok || len(g.versions) == 0 {
		return domain.Version{}, false
	}
	return g.head().Clone(), true
}

// AmendmentLog returns the group's log entries in append order.
func (v *view) AmendmentLog(groupID string) []domain.AmendmentLogEntry {
	g, ok := v.state.groups[groupID]
	if !ok {
		return nil
	}
	out := make([]domain.AmendmentLogEntry, len(g.log))
	for i, e := range g.log {
		out[i] = e.Clone()
	}
	return out
}

// Read helpers ---------------------------------------------------------------

// Versions returns the committed chain for a group ascending by Seq.
func (s *Store) Versions(groupID string) ([]domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.groups[groupID]
	if !ok {
		return nil, domain.NotFoundError(groupID)
	}
	out := make([]domain.Version, len(g.versions))
	for i, v := range g.versions {
		out[i] = v.Clone()
	}
	return out, nil
}

// AmendmentLog returns the committed log entries for a group in append order.
func (s *Store) AmendmentLog(groupID string) ([]domain.AmendmentLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.groups[groupID]
	if !ok {
		return nil, domain.NotFoundError(groupID)
	}
	out := make([]domain.AmendmentLogEntry, len(g.log))
	for i, e := range g.log {
		out[i] = e.Clone()
	}
	return out, nil
}

// Groups lists every record group, archived included.
func (s *Store) Groups() []domain.RecordGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&view{state: &s.state}).ListGroups()
}

// ExportState captures a snapshot of the full ledger for durable backends.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Groups:   make(map[string]domain.RecordGroup, len(s.state.groups)),
		Versions: make(map[string][]domain.Version, len(s.state.groups)),
		Log:      make(map[string][]domain.AmendmentLogEntry, len(s.state.groups)),
	}
	for id, g := range s.state.groups {
		snap.Groups[id] = g.group
		versions := make([]domain.Version, len(g.versions))
		for i, v := range g.versions {
			versions[i] = v.Clone()
		}
		snap.Versions[id] = versions
		entries := make([]domain.AmendmentLogEntry, len(g.log))
		for i, e := range g.log {
			entries[i] = e.Clone()
		}
		snap.Log[id] = entries
	}
	return snap
}

// ImportState replaces the ledger with the snapshot contents. Chains are
// re-sorted by Seq so row order from durable storage does not matter.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for id, group := range snap.Groups {
		g := &groupState{group: group}
		versions := append([]domain.Version(nil), snap.Versions[id]...)
		sort.Slice(versions, func(i, j int) bool { return versions[i].Seq < versions[j].Seq })
		g.versions = versions
		entries := append([]domain.AmendmentLogEntry(nil), snap.Log[id]...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].AmendedAt.Before(entries[j].AmendedAt) })
		g.log = entries
		state.groups[id] = g
	}
	s.state = state
}
