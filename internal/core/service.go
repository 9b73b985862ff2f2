// Package core exposes the transactional record-keeping service: amendment
// application, history queries, disposal recording, and the supporting
// observability seams.
package core

import (
	"context"
	"time"

	"mycocore/internal/infra/persistence/memory"
	"mycocore/pkg/domain"
)

// Service exposes the amendment engine, history queries, and disposal
// recorder over a persistent store. All mutations run inside store
// transactions so callers never observe a half-applied amendment.
type Service struct {
	store domain.PersistentStore
	opts  serviceOptions
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, options ...ServiceOption) *Service {
	opts := defaultServiceOptions()
	for _, apply := range options {
		apply(&opts)
	}
	return &Service{store: store, opts: opts}
}

// NewInMemoryService creates a service and in-memory ledger with the given
// rules engine. The service clock drives the ledger clock so version
// timestamps and audit timestamps agree.
func NewInMemoryService(engine *domain.RulesEngine, options ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	store := memory.NewStore(engine)
	svc := NewService(store, options...)
	store.SetNowFunc(svc.opts.clock.Now)
	return svc
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// OutcomeRegistry returns the disposal vocabulary registry in use.
func (s *Service) OutcomeRegistry() *domain.OutcomeRegistry { return s.opts.registry }

// auditOperation ties a service operation name to the entry metadata recorded
// for it. Operations absent from the table produce no audit entries.
type auditOperation struct {
	entity domain.EntityType
	action domain.Action
}

var auditOperations = map[string]auditOperation{
	"create_culture": {entity: domain.EntityCulture, action: domain.ActionCreateGroup},
	"create_grow":    {entity: domain.EntityGrow, action: domain.ActionCreateGroup},
	"amend_culture":  {entity: domain.EntityCulture, action: domain.ActionAppendVersion},
	"amend_grow":     {entity: domain.EntityGrow, action: domain.ActionAppendVersion},
	"void_record":    {action: domain.ActionAppendVersion},
	"dispose_record": {action: domain.ActionAppendVersion},
	"merge_records":  {action: domain.ActionAppendVersion},
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, groupID string, duration time.Duration) {
	meta, ok := auditOperations[operation]
	if !ok {
		return
	}
	s.opts.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		GroupID:   groupID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.opts.clock.Now(),
	})
}

func (s *Service) recordAuditFailure(ctx context.Context, operation, groupID string, duration time.Duration, err error) {
	meta, ok := auditOperations[operation]
	if !ok {
		return
	}
	s.opts.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		GroupID:   groupID,
		Status:    AuditStatusFailure,
		Error:     err.Error(),
		Duration:  duration,
		Timestamp: s.opts.clock.Now(),
	})
}

// instrument wraps one service operation with tracing, metrics, logging, and
// audit recording.
func (s *Service) instrument(ctx context.Context, operation, groupID string, fn func(context.Context) error) error {
	ctx, span := s.opts.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.opts.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.opts.logger.Error(operation+" failed", "record_group_id", groupID, "error", err)
		s.recordAuditFailure(ctx, operation, groupID, duration, err)
		return err
	}
	s.opts.logger.Debug(operation+" completed", "record_group_id", groupID)
	s.recordAuditSuccess(ctx, operation, groupID, duration)
	return nil
}

// CreateCulture opens a new culture record group at version 1.
func (s *Service) CreateCulture(ctx context.Context, fields domain.CultureFields, actor string) (domain.Version, domain.Result, error) {
	var created domain.Version
	var res domain.Result
	err := s.instrument(ctx, "create_culture", "", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateCulture(fields, actor)
			return txErr
		})
		return err
	})
	return created, res, err
}

// CreateGrow opens a new grow record group at version 1.
func (s *Service) CreateGrow(ctx context.Context, fields domain.GrowFields, actor string) (domain.Version, domain.Result, error) {
	var created domain.Version
	var res domain.Result
	err := s.instrument(ctx, "create_grow", "", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateGrow(fields, actor)
			return txErr
		})
		return err
	})
	return created, res, err
}

// AmendCulture applies a typed partial update to a culture group, producing
// the next version and its amendment log entry.
func (s *Service) AmendCulture(ctx context.Context, req domain.AmendmentRequest, patch domain.CulturePatch) (domain.Version, domain.Result, error) {
	var amended domain.Version
	var res domain.Result
	err := s.instrument(ctx, "amend_culture", req.GroupID, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			amended, txErr = tx.AmendCulture(req, patch)
			return txErr
		})
		return err
	})
	return amended, res, err
}

// AmendGrow applies a typed partial update to a grow group.
func (s *Service) AmendGrow(ctx context.Context, req domain.AmendmentRequest, patch domain.GrowPatch) (domain.Version, domain.Result, error) {
	var amended domain.Version
	var res domain.Result
	err := s.instrument(ctx, "amend_grow", req.GroupID, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			amended, txErr = tx.AmendGrow(req, patch)
			return txErr
		})
		return err
	})
	return amended, res, err
}

// Void terminates a record group's active status without editing fields. The
// group stays fully queryable.
func (s *Service) Void(ctx context.Context, req domain.AmendmentRequest) (domain.Version, domain.Result, error) {
	var voided domain.Version
	var res domain.Result
	err := s.instrument(ctx, "void_record", req.GroupID, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			voided, txErr = tx.Void(req)
			return txErr
		})
		return err
	})
	return voided, res, err
}

// Merge absorbs sourceID into the surviving group named by req.GroupID.
func (s *Service) Merge(ctx context.Context, req domain.AmendmentRequest, sourceID string, culture *domain.CulturePatch, grow *domain.GrowPatch) (domain.Version, domain.Result, error) {
	var merged domain.Version
	var res domain.Result
	err := s.instrument(ctx, "merge_records", req.GroupID, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			merged, txErr = tx.Merge(req, sourceID, culture, grow)
			return txErr
		})
		return err
	})
	return merged, res, err
}
