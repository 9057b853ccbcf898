package conflict

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

// Resolver owns the rule table and the registry of detected conflicts.
// Safe for concurrent use; all reads return defensive copies.
type Resolver struct {
	mu        sync.RWMutex
	rules     map[change.EntityType]Rule
	conflicts map[string]*SyncConflict
	logger    log.Log
	now       func() time.Time
}

// NewResolver creates a resolver seeded with the default domain rules.
func NewResolver(logger log.Log) *Resolver {
	return &Resolver{
		rules:     DefaultRules(),
		conflicts: make(map[string]*SyncConflict),
		logger:    logger.With(log.String("component", "conflict_resolver")),
		now:       time.Now,
	}
}

// SetRule installs or replaces the policy for an entity type at runtime.
func (r *Resolver) SetRule(entityType change.EntityType, rule Rule) {
	r.mu.Lock()
	r.rules[entityType] = rule
	r.mu.Unlock()

	r.logger.Info("Resolution rule set",
		log.String("entity_type", string(entityType)),
		log.String("strategy", string(rule.Strategy)),
		log.Bool("auto_resolve", rule.AutoResolve))
}

// GetRule returns the policy for an entity type.
func (r *Resolver) GetRule(entityType change.EntityType) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[entityType]
	return rule, ok
}

// DetectConflict compares a local and a remote snapshot of the same entity.
// Structurally equal payloads (ignoring volatile bookkeeping fields) are not
// a conflict regardless of timestamps. A real disagreement is registered as a
// pending conflict and returned.
func (r *Resolver) DetectConflict(entityType change.EntityType, entityID string, localPayload, remotePayload change.Payload, localTime, remoteTime time.Time) *SyncConflict {
	if localPayload.EqualIgnoringVolatile(remotePayload, true) {
		return nil
	}

	kind := KindUpdate
	switch {
	case localPayload == nil:
		kind = KindCreate
	case remotePayload == nil:
		kind = KindDelete
	}

	c := &SyncConflict{
		ID:            uuid.NewString(),
		EntityType:    entityType,
		EntityID:      entityID,
		LocalPayload:  localPayload.Clone(),
		RemotePayload: remotePayload.Clone(),
		LocalTime:     localTime,
		RemoteTime:    remoteTime,
		Kind:          kind,
		Status:        StatusPending,
		CreatedAt:     r.now(),
	}

	r.mu.Lock()
	r.conflicts[c.ID] = c
	r.mu.Unlock()

	r.logger.Warn("Conflict detected",
		log.String("conflict_id", c.ID),
		log.String("entity_type", string(entityType)),
		log.String("entity_id", entityID),
		log.String("kind", string(kind)))

	return c.clone()
}

// ResolveConflict settles a pending conflict. With an empty resolution it
// applies the entity type's rule; StrategyManual rules refuse and demand an
// explicit choice. Returns the winning payload (nil when a delete wins).
func (r *Resolver) ResolveConflict(conflictID string, resolution Resolution, manualPayload change.Payload) (change.Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conflicts[conflictID]
	if !ok {
		return nil, errors.Wrap(ErrConflictNotFound, conflictID)
	}
	rule, ok := r.rules[c.EntityType]
	if !ok {
		return nil, errors.Wrapf(ErrNoRule, "entity type %s", c.EntityType)
	}

	if resolution == "" {
		var err error
		resolution, err = decide(c, rule)
		if err != nil {
			return nil, errors.Wrapf(err, "conflict %s (%s/%s)", c.ID, c.EntityType, c.EntityID)
		}
	}

	var resolved change.Payload
	switch resolution {
	case ResolutionLocal:
		resolved = c.LocalPayload.Clone()
	case ResolutionRemote:
		resolved = c.RemotePayload.Clone()
	case ResolutionMerge:
		resolved = mergePayloads(c, rule, r.now())
	case ResolutionManual:
		if manualPayload == nil {
			return nil, errors.Wrap(ErrMissingResolvedPayload, conflictID)
		}
		resolved = manualPayload.Clone()
	}

	c.Status = StatusResolved
	c.Resolution = resolution
	c.ResolvedAt = r.now()
	c.ResolvedPayload = resolved.Clone()

	r.logger.Info("Conflict resolved",
		log.String("conflict_id", c.ID),
		log.String("entity_type", string(c.EntityType)),
		log.String("entity_id", c.EntityID),
		log.String("resolution", string(resolution)))

	return resolved, nil
}

// GetConflict returns a single conflict by id.
func (r *Resolver) GetConflict(conflictID string) (*SyncConflict, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conflicts[conflictID]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

// GetPendingConflicts returns every conflict still awaiting resolution.
func (r *Resolver) GetPendingConflicts() []*SyncConflict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*SyncConflict
	for _, c := range r.conflicts {
		if c.Status == StatusPending {
			out = append(out, c.clone())
		}
	}
	return out
}

// GetConflictsByEntity returns every registered conflict for one entity.
func (r *Resolver) GetConflictsByEntity(entityType change.EntityType, entityID string) []*SyncConflict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*SyncConflict
	for _, c := range r.conflicts {
		if c.EntityType == entityType && c.EntityID == entityID {
			out = append(out, c.clone())
		}
	}
	return out
}

// ClearResolvedConflicts purges resolved and ignored entries from the
// registry and returns how many were removed.
func (r *Resolver) ClearResolvedConflicts() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, c := range r.conflicts {
		if c.Status != StatusPending {
			delete(r.conflicts, id)
			removed++
		}
	}
	return removed
}

// ClearConflictsOlderThan removes conflicts of any status detected before
// the cutoff. Abandoned pending conflicts are cleaned up with everything
// else once they age out.
func (r *Resolver) ClearConflictsOlderThan(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, c := range r.conflicts {
		if c.CreatedAt.Before(cutoff) {
			delete(r.conflicts, id)
			removed++
		}
	}
	return removed
}

// GetConflictStats summarizes the registry.
func (r *Resolver) GetConflictStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		ByEntity:   make(map[change.EntityType]int),
		ByDecision: make(map[Resolution]int),
	}
	for _, c := range r.conflicts {
		stats.Total++
		stats.ByEntity[c.EntityType]++
		switch c.Status {
		case StatusPending:
			stats.Pending++
		case StatusResolved:
			stats.Resolved++
			stats.ByDecision[c.Resolution]++
		case StatusIgnored:
			stats.Ignored++
		}
	}
	return stats
}

// decide maps a rule onto a concrete resolution for one conflict. Timestamp
// strategies compare the two wall-clock times; equal timestamps go to remote.
func decide(c *SyncConflict, rule Rule) (Resolution, error) {
	switch rule.Strategy {
	case StrategyLastWriteWins:
		if c.RemoteTime.Before(c.LocalTime) {
			return ResolutionLocal, nil
		}
		return ResolutionRemote, nil
	case StrategyFirstWriteWins:
		if c.LocalTime.Before(c.RemoteTime) {
			return ResolutionLocal, nil
		}
		return ResolutionRemote, nil
	case StrategyPreferLocal:
		return ResolutionLocal, nil
	case StrategyPreferRemote:
		return ResolutionRemote, nil
	case StrategyMerge:
		return ResolutionMerge, nil
	case StrategyManual:
		return "", ErrManualResolutionRequired
	default:
		return "", errors.Errorf("unknown strategy %q", rule.Strategy)
	}
}
