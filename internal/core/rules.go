package core

import "mycocore/pkg/domain"

// NewDefaultRulesEngine returns a rules engine with the standard ledger
// rules registered: chain continuity, archived-group protection, and the
// contamination detail warning against the default vocabulary.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewChainContinuityRule())
	engine.Register(NewGroupArchivedRule())
	engine.Register(NewContaminationDetailRule(domain.DefaultOutcomeRegistry()))
	return engine
}
