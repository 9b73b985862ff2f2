package core

import (
	"context"
	"fmt"
	"io"
	"path"

	"mycocore/internal/blob"
	"mycocore/pkg/domain"
)

// Dispose terminates a record group with a structured outcome. The outcome is
// validated against the vocabulary for the group's entity type before any
// write: a rejected code leaves the chain untouched.
func (s *Service) Dispose(ctx context.Context, req domain.AmendmentRequest, outcome domain.DisposalOutcome) (domain.Version, domain.Result, error) {
	var disposed domain.Version
	var res domain.Result
	err := s.instrument(ctx, "dispose_record", req.GroupID, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			group, ok := tx.Snapshot().FindGroup(req.GroupID)
			if !ok {
				return domain.NotFoundError(req.GroupID)
			}
			if err := s.opts.registry.Validate(group.Entity, outcome); err != nil {
				return err
			}
			var txErr error
			disposed, txErr = tx.Dispose(req, outcome)
			return txErr
		})
		return err
	})
	return disposed, res, err
}

// evidenceKey builds the blob key for an attachment: one namespace per group,
// one sub-namespace per version so evidence stays tied to the chain state it
// documented.
func evidenceKey(groupID string, seq int, name string) string {
	return path.Join("evidence", groupID, fmt.Sprintf("%03d", seq), name)
}

// AttachEvidence stores a supporting document (photo, lab report) against the
// group's current version. Evidence objects are write-once.
func (s *Service) AttachEvidence(ctx context.Context, groupID, name string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if s.opts.evidence == nil {
		return blob.Info{}, blob.ErrUnsupported
	}
	var info blob.Info
	err := s.instrumentRead(ctx, "attach_evidence", func() error {
		chain, err := s.store.Versions(groupID)
		if err != nil {
			return err
		}
		head := chain[len(chain)-1]
		if opts.Metadata == nil {
			opts.Metadata = map[string]string{}
		}
		opts.Metadata["record_group_id"] = groupID
		opts.Metadata["version_id"] = head.ID
		info, err = s.opts.evidence.Put(ctx, evidenceKey(groupID, head.Seq, name), r, opts)
		return err
	})
	return info, err
}

// ListEvidence returns all evidence stored for a record group, ascending by
// key (version order, then name).
func (s *Service) ListEvidence(ctx context.Context, groupID string) ([]blob.Info, error) {
	if s.opts.evidence == nil {
		return nil, blob.ErrUnsupported
	}
	var infos []blob.Info
	err := s.instrumentRead(ctx, "list_evidence", func() error {
		if _, err := s.store.Versions(groupID); err != nil {
			return err
		}
		var listErr error
		infos, listErr = s.opts.evidence.List(ctx, path.Join("evidence", groupID)+"/")
		return listErr
	})
	return infos, err
}

// OpenEvidence retrieves one evidence object by key.
func (s *Service) OpenEvidence(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	if s.opts.evidence == nil {
		return blob.Info{}, nil, blob.ErrUnsupported
	}
	return s.opts.evidence.Get(ctx, key)
}
