package core

import (
	"context"
	"fmt"

	"mycocore/pkg/domain"
)

// NewChainContinuityRule returns the rule enforcing structural chain
// integrity on every append: contiguous sequence numbers, original only at
// position one, and timestamps that never run backwards.
func NewChainContinuityRule() domain.Rule {
	return chainContinuityRule{}
}

type chainContinuityRule struct{}

func (chainContinuityRule) Name() string { return "chain_continuity" }

func (chainContinuityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Action {
		case domain.ActionCreateGroup:
			if change.Version.Seq != 1 || change.Version.Type != domain.AmendmentOriginal {
				res.Violations = append(res.Violations, violation("chain_continuity", change,
					fmt.Sprintf("group must open with an original at version 1, got %s at %d", change.Version.Type, change.Version.Seq)))
			}
		case domain.ActionAppendVersion:
			if change.Prior == nil {
				res.Violations = append(res.Violations, violation("chain_continuity", change, "append without prior version"))
				continue
			}
			if change.Version.Seq != change.Prior.Seq+1 {
				res.Violations = append(res.Violations, violation("chain_continuity", change,
					fmt.Sprintf("version %d does not follow %d", change.Version.Seq, change.Prior.Seq)))
			}
			if change.Version.Type == domain.AmendmentOriginal {
				res.Violations = append(res.Violations, violation("chain_continuity", change,
					fmt.Sprintf("version %d repeats the original", change.Version.Seq)))
			}
			if change.Version.ValidFrom.Before(change.Prior.ValidFrom) {
				res.Violations = append(res.Violations, violation("chain_continuity", change,
					fmt.Sprintf("version %d predates version %d", change.Version.Seq, change.Prior.Seq)))
			}
		}
	}
	return res, nil
}

func violation(rule string, change domain.Change, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   change.Entity,
		GroupID:  change.GroupID,
	}
}
