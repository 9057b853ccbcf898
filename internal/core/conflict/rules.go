package conflict

import "github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"

// Strategy is the automatic resolution policy applied to an entity type.
type Strategy string

const (
	// StrategyLastWriteWins keeps whichever side carries the newer timestamp;
	// ties go to remote.
	StrategyLastWriteWins Strategy = "last_write_wins"
	// StrategyFirstWriteWins keeps whichever side carries the older timestamp.
	StrategyFirstWriteWins Strategy = "first_write_wins"
	// StrategyPreferLocal always keeps the local payload.
	StrategyPreferLocal Strategy = "prefer_local"
	// StrategyPreferRemote always keeps the remote payload.
	StrategyPreferRemote Strategy = "prefer_remote"
	// StrategyMerge combines both sides field by field.
	StrategyMerge Strategy = "merge"
	// StrategyManual refuses to auto-resolve; the caller must decide.
	StrategyManual Strategy = "manual"
)

// Rule is the per-entity-type resolution policy.
type Rule struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	// AutoResolve lets the engine apply the strategy without user input.
	AutoResolve bool `json:"autoResolve" yaml:"autoResolve"`
	// MergeFields, when set, restricts field merging to the listed fields.
	// Empty means every field present on the remote side is considered.
	MergeFields []string `json:"mergeFields,omitempty" yaml:"mergeFields,omitempty"`
	// PriorityFields are merged by comparing the two sides' timestamps
	// instead of defaulting to the remote value.
	PriorityFields []string `json:"priorityFields,omitempty" yaml:"priorityFields,omitempty"`
}

// DefaultRules seeds the policy table for the household domain entity types.
func DefaultRules() map[change.EntityType]Rule {
	return map[change.EntityType]Rule{
		change.EntityExpense: {
			Strategy:    StrategyLastWriteWins,
			AutoResolve: true,
		},
		change.EntityTask: {
			Strategy:       StrategyMerge,
			AutoResolve:    true,
			PriorityFields: []string{"status", "completedAt"},
		},
		change.EntityMedication: {
			// Dosage disagreements are safety-relevant: lean remote but hold
			// for review.
			Strategy:    StrategyPreferRemote,
			AutoResolve: false,
		},
		change.EntityDocument: {
			Strategy:    StrategyManual,
			AutoResolve: false,
		},
		change.EntityCalendar: {
			Strategy:    StrategyLastWriteWins,
			AutoResolve: true,
		},
	}
}
