package core

import (
	"context"
	"fmt"

	"mycocore/pkg/domain"
)

// NewContaminationDetailRule returns the rule warning when a contamination
// outcome is recorded without its investigation sub-fields. The disposal
// still commits; the warning flags the record for follow-up.
func NewContaminationDetailRule(registry *domain.OutcomeRegistry) domain.Rule {
	if registry == nil {
		registry = domain.DefaultOutcomeRegistry()
	}
	return contaminationDetailRule{registry: registry}
}

type contaminationDetailRule struct {
	registry *domain.OutcomeRegistry
}

func (contaminationDetailRule) Name() string { return "contamination_detail" }

func (r contaminationDetailRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		outcome := change.Version.Outcome
		if outcome == nil {
			continue
		}
		spec, ok := r.registry.Vocabulary(change.Entity).Lookup(outcome.Code)
		if !ok || !spec.Contamination {
			continue
		}
		if outcome.ContaminationType != "" && outcome.SuspectedCause != "" {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "contamination_detail",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("contamination outcome %s recorded without type or suspected cause", outcome.Code),
			Entity:   change.Entity,
			GroupID:  change.GroupID,
		})
	}
	return res, nil
}
