package core

import (
	"context"
	"fmt"

	"mycocore/pkg/domain"
)

// NewGroupArchivedRule returns the rule blocking amendments against archived
// groups. Voided groups and merged-away groups stay queryable forever but
// accept no further versions.
func NewGroupArchivedRule() domain.Rule {
	return groupArchivedRule{}
}

type groupArchivedRule struct{}

func (groupArchivedRule) Name() string { return "group_archived" }

func (groupArchivedRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action != domain.ActionAppendVersion || change.Prior == nil {
			continue
		}
		if change.Prior.Archived() {
			res.Violations = append(res.Violations, violation("group_archived", change,
				fmt.Sprintf("record group %s is archived (version %d is terminal)", change.GroupID, change.Prior.Seq)))
		}
	}
	return res, nil
}
