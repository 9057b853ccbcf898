package version

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

// entityKey identifies one entity's history.
type entityKey struct {
	Type change.EntityType
	ID   string
}

// entityHistory holds the ordered version list and the next number to hand
// out. next is never reset, so numbering survives squash and cleanup.
type entityHistory struct {
	versions []*DataVersion
	next     int64
}

// Tracker owns version history for every entity in a household scope.
// Safe for concurrent use; all reads return defensive copies.
type Tracker struct {
	mu        sync.RWMutex
	histories map[entityKey]*entityHistory
	logger    log.Log
}

// NewTracker creates an empty tracker.
func NewTracker(logger log.Log) *Tracker {
	return &Tracker{
		histories: make(map[entityKey]*entityHistory),
		logger:    logger.With(log.String("component", "version_tracker")),
	}
}

// CreateVersion appends the next version for the entity, computing a checksum
// and, for updates with a known previous payload, a field-level change map.
// Version numbers start at 1 and increase by one per call.
func (t *Tracker) CreateVersion(entityType change.EntityType, entityID string, payload change.Payload, operation change.Operation, userID string, previousPayload change.Payload) *DataVersion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createLocked(entityType, entityID, payload, operation, userID, previousPayload, nil).clone()
}

func (t *Tracker) createLocked(entityType change.EntityType, entityID string, payload change.Payload, operation change.Operation, userID string, previousPayload change.Payload, metadata map[string]any) *DataVersion {
	key := entityKey{Type: entityType, ID: entityID}
	hist := t.histories[key]
	if hist == nil {
		hist = &entityHistory{next: 1}
		t.histories[key] = hist
	}

	v := &DataVersion{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Version:    hist.next,
		Payload:    payload.Clone(),
		Checksum:   Checksum(payload),
		CreatedAt:  time.Now(),
		CreatedBy:  userID,
		Operation:  operation,
		Metadata:   metadata,
	}
	if operation == change.OperationUpdate && previousPayload != nil {
		v.Changes = fieldChanges(previousPayload, payload)
	}

	hist.versions = append(hist.versions, v)
	hist.next++

	t.logger.Debug("Version created",
		log.String("entity_type", string(entityType)),
		log.String("entity_id", entityID),
		log.Int64("version", v.Version),
		log.String("operation", string(operation)))

	return v
}

// GetCurrentVersion returns the latest version for the entity, or nil if the
// entity has no history.
func (t *Tracker) GetCurrentVersion(entityType change.EntityType, entityID string) *DataVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hist := t.histories[entityKey{Type: entityType, ID: entityID}]
	if hist == nil || len(hist.versions) == 0 {
		return nil
	}
	return hist.versions[len(hist.versions)-1].clone()
}

// GetVersion returns the version with the given number, or nil if absent.
func (t *Tracker) GetVersion(entityType change.EntityType, entityID string, number int64) *DataVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if v := t.findLocked(entityType, entityID, number); v != nil {
		return v.clone()
	}
	return nil
}

// GetVersionHistory returns every recorded version for the entity in order.
func (t *Tracker) GetVersionHistory(entityType change.EntityType, entityID string) []*DataVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hist := t.histories[entityKey{Type: entityType, ID: entityID}]
	if hist == nil {
		return nil
	}
	out := make([]*DataVersion, 0, len(hist.versions))
	for _, v := range hist.versions {
		out = append(out, v.clone())
	}
	return out
}

// GetVersionsSince returns every version with a number strictly greater than
// the given one.
func (t *Tracker) GetVersionsSince(entityType change.EntityType, entityID string, since int64) []*DataVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hist := t.histories[entityKey{Type: entityType, ID: entityID}]
	if hist == nil {
		return nil
	}
	var out []*DataVersion
	for _, v := range hist.versions {
		if v.Version > since {
			out = append(out, v.clone())
		}
	}
	return out
}

// GetVersionsInRange returns versions with numbers in [from, to] inclusive.
func (t *Tracker) GetVersionsInRange(entityType change.EntityType, entityID string, from, to int64) []*DataVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hist := t.histories[entityKey{Type: entityType, ID: entityID}]
	if hist == nil {
		return nil
	}
	var out []*DataVersion
	for _, v := range hist.versions {
		if v.Version >= from && v.Version <= to {
			out = append(out, v.clone())
		}
	}
	return out
}

// GetDiff returns the full field diff between two recorded versions.
func (t *Tracker) GetDiff(entityType change.EntityType, entityID string, fromVersion, toVersion int64) ([]VersionDiff, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	from := t.findLocked(entityType, entityID, fromVersion)
	to := t.findLocked(entityType, entityID, toVersion)
	if from == nil || to == nil {
		return nil, errors.Wrapf(ErrVersionNotFound, "diff %s/%s %d..%d", entityType, entityID, fromVersion, toVersion)
	}
	return DiffPayloads(from.Payload, to.Payload), nil
}

// RevertToVersion appends a new version whose payload equals the target's,
// tagged with revert provenance. History is never rewritten; the current
// version number only moves forward.
func (t *Tracker) RevertToVersion(entityType change.EntityType, entityID string, targetVersion int64, userID string) (*DataVersion, error) {
	t.mu.Lock()

	key := entityKey{Type: entityType, ID: entityID}
	hist := t.histories[key]
	if hist == nil {
		t.mu.Unlock()
		return nil, errors.Wrapf(ErrEntityNotFound, "%s/%s", entityType, entityID)
	}
	target := t.findLocked(entityType, entityID, targetVersion)
	if target == nil {
		t.mu.Unlock()
		return nil, errors.Wrapf(ErrVersionNotFound, "%s/%s version %d", entityType, entityID, targetVersion)
	}
	var previous change.Payload
	if n := len(hist.versions); n > 0 {
		previous = hist.versions[n-1].Payload
	}
	v := t.createLocked(entityType, entityID, target.Payload.Clone(), change.OperationUpdate, userID, previous,
		map[string]any{MetaRevertedFrom: targetVersion}).clone()
	t.mu.Unlock()

	t.logger.Info("Version reverted",
		log.String("entity_type", string(entityType)),
		log.String("entity_id", entityID),
		log.Int64("target", targetVersion),
		log.Int64("new_version", v.Version))

	return v, nil
}

// SquashVersions collapses every version in [from, to] into a single version
// carrying the payload of the newest one in the range. The collapsed version
// keeps number from, so the intermediate numbers vanish: this is the one
// place the contiguity invariant is intentionally relaxed.
func (t *Tracker) SquashVersions(entityType change.EntityType, entityID string, from, to int64) (*DataVersion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entityKey{Type: entityType, ID: entityID}
	hist := t.histories[key]
	if hist == nil {
		return nil, errors.Wrapf(ErrEntityNotFound, "%s/%s", entityType, entityID)
	}

	var inRange []*DataVersion
	for _, v := range hist.versions {
		if v.Version >= from && v.Version <= to {
			inRange = append(inRange, v)
		}
	}
	if len(inRange) == 0 {
		return nil, errors.Wrapf(ErrEmptyRange, "%s/%s %d..%d", entityType, entityID, from, to)
	}

	newest := inRange[len(inRange)-1]
	squashedNumbers := make([]int64, 0, len(inRange))
	for _, v := range inRange {
		squashedNumbers = append(squashedNumbers, v.Version)
	}

	collapsed := &DataVersion{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Version:    from,
		Payload:    newest.Payload.Clone(),
		Checksum:   newest.Checksum,
		CreatedAt:  time.Now(),
		CreatedBy:  newest.CreatedBy,
		Operation:  newest.Operation,
		Metadata: map[string]any{
			MetaSquashed:      true,
			MetaSquashedRange: squashedNumbers,
			MetaSquashedCount: len(squashedNumbers),
		},
	}

	kept := make([]*DataVersion, 0, len(hist.versions)-len(inRange)+1)
	inserted := false
	for _, v := range hist.versions {
		if v.Version >= from && v.Version <= to {
			if !inserted {
				kept = append(kept, collapsed)
				inserted = true
			}
			continue
		}
		kept = append(kept, v)
	}
	hist.versions = kept

	t.logger.Info("Versions squashed",
		log.String("entity_type", string(entityType)),
		log.String("entity_id", entityID),
		log.Int64("from", from),
		log.Int64("to", to),
		log.Int("count", len(squashedNumbers)))

	return collapsed.clone(), nil
}

// CleanupOldVersions prunes history per entity, keeping the union of the
// policy's most-recent count and anything newer than the age cutoff. Returns
// how many versions were discarded.
func (t *Tracker) CleanupOldVersions(policy RetentionPolicy) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-policy.MaxAge)
	removed := 0
	for _, hist := range t.histories {
		n := len(hist.versions)
		if n == 0 {
			continue
		}
		kept := hist.versions[:0]
		for i, v := range hist.versions {
			recentByCount := n-i <= policy.MaxPerEntity
			recentByAge := policy.MaxAge > 0 && v.CreatedAt.After(cutoff)
			if recentByCount || recentByAge {
				kept = append(kept, v)
			} else {
				removed++
			}
		}
		hist.versions = kept
	}

	if removed > 0 {
		t.logger.Info("Version history pruned", log.Int("removed", removed))
	}
	return removed
}

// findLocked locates a version by number; caller holds at least a read lock.
func (t *Tracker) findLocked(entityType change.EntityType, entityID string, number int64) *DataVersion {
	hist := t.histories[entityKey{Type: entityType, ID: entityID}]
	if hist == nil {
		return nil
	}
	for _, v := range hist.versions {
		if v.Version == number {
			return v
		}
	}
	return nil
}

// fieldChanges builds the update change map using shallow (strict) value
// comparison per key: composite values always register as changed.
func fieldChanges(old, new change.Payload) map[string]FieldChange {
	out := make(map[string]FieldChange)
	for k, ov := range old {
		nv, ok := new[k]
		if !ok || !shallowEqual(ov, nv) {
			out[k] = FieldChange{Old: ov, New: nv}
		}
	}
	for k, nv := range new {
		if _, ok := old[k]; !ok {
			out[k] = FieldChange{Old: nil, New: nv}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// DiffPayloads computes the full added/modified/removed field diff between
// two payloads, sorted by field name.
func DiffPayloads(old, new change.Payload) []VersionDiff {
	var diffs []VersionDiff
	for k, ov := range old {
		nv, ok := new[k]
		switch {
		case !ok:
			diffs = append(diffs, VersionDiff{Field: k, OldValue: ov, Kind: DiffRemoved})
		case !shallowEqual(ov, nv):
			diffs = append(diffs, VersionDiff{Field: k, OldValue: ov, NewValue: nv, Kind: DiffModified})
		}
	}
	for k, nv := range new {
		if _, ok := old[k]; !ok {
			diffs = append(diffs, VersionDiff{Field: k, NewValue: nv, Kind: DiffAdded})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs
}

// shallowEqual mirrors strict equality: comparable values compare directly,
// everything else (maps, slices) counts as changed.
func shallowEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}
