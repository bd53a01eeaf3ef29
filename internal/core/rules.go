package core

import "sweepcore/pkg/domain"

// TransactionView aliases the read-only snapshot interface rules evaluate against.
type TransactionView = domain.TransactionView

// PersistentStore aliases the durable backend abstraction.
type PersistentStore = domain.PersistentStore

// Transaction aliases the atomic mutation scope.
type Transaction = domain.Transaction

// RulesEngine aliases the domain rule orchestrator.
type RulesEngine = domain.RulesEngine

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in series
// policy set evaluated against the supplied variable catalog. The catalog is
// shared by pointer so plugin-contributed variables become visible to the
// installed rules.
func NewDefaultRulesEngine(registry *Registry) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewChainVariablesRule(registry))
	engine.Register(NewValuePresenceRule(registry))
	engine.Register(NewValueParsableRule(registry))
	engine.Register(NewValueRangeRule(registry))
	engine.Register(NewStepWidthRule(registry))
	engine.Register(NewSweepDirectionRule(registry))
	return engine
}
