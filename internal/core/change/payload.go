package change

import (
	"reflect"
	"time"
)

// Payload is the schemaless entity snapshot the engine moves around. A nil
// Payload means "entity absent" (deleted or never created on this side).
type Payload map[string]any

// Volatile bookkeeping fields stamped on every write. They are excluded from
// equality checks so that a round-tripped record does not look like a
// conflicting edit.
var volatileFields = map[string]struct{}{
	"updatedAt":  {},
	"syncedAt":   {},
	"lastSyncAt": {},
}

// IsVolatileField reports whether the named field is sync bookkeeping rather
// than user data.
func IsVolatileField(name string) bool {
	_, ok := volatileFields[name]
	return ok
}

// Clone returns a deep copy of the payload. Later mutation of the live
// payload never alters the copy, which is what lets stored versions stay
// immutable.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneValue deep-copies a single payload value.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Payload:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		// Scalars (and time.Time) are value types.
		return v
	}
}

// Equal reports deep structural equality between two payloads.
func (p Payload) Equal(other Payload) bool {
	return p.EqualIgnoringVolatile(other, false)
}

// EqualIgnoringVolatile compares two payloads, optionally skipping the
// volatile bookkeeping fields. Two nil payloads are equal; a nil payload
// never equals a non-nil one.
func (p Payload) EqualIgnoringVolatile(other Payload, ignoreVolatile bool) bool {
	if p == nil || other == nil {
		return p == nil && other == nil
	}
	for k, v := range p {
		if ignoreVolatile && IsVolatileField(k) {
			continue
		}
		ov, ok := other[k]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	for k := range other {
		if ignoreVolatile && IsVolatileField(k) {
			continue
		}
		if _, ok := p[k]; !ok {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok {
			return false
		}
		return Payload(at).Equal(Payload(bt))
	case Payload:
		bt, ok := b.(Payload)
		if !ok {
			return false
		}
		return at.Equal(bt)
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !valueEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	default:
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
		if ta != tb {
			return false
		}
		if !ta.Comparable() {
			// Typed slices and maps a host may legally put in a payload.
			return reflect.DeepEqual(a, b)
		}
		return a == b
	}
}

// TouchTimestamps stamps fresh update/sync times on the payload in place and
// returns it. Merge results always carry fresh bookkeeping.
func (p Payload) TouchTimestamps(now time.Time) Payload {
	if p == nil {
		return nil
	}
	p["updatedAt"] = now
	p["syncedAt"] = now
	return p
}
