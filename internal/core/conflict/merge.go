package conflict

import (
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// mergePayloads combines the two sides of a conflict field by field, starting
// from the local payload. The merge set is the rule's explicit field list or,
// when empty, every field present on the remote side. A field missing locally
// takes the remote value; a priority field takes the temporally newer side;
// anything else defaults to remote. The result is stamped with fresh
// update/sync timestamps.
func mergePayloads(c *SyncConflict, rule Rule, now time.Time) change.Payload {
	if c.LocalPayload == nil {
		return c.RemotePayload.Clone().TouchTimestamps(now)
	}
	if c.RemotePayload == nil {
		return c.LocalPayload.Clone().TouchTimestamps(now)
	}

	merged := c.LocalPayload.Clone()

	fields := rule.MergeFields
	if len(fields) == 0 {
		fields = make([]string, 0, len(c.RemotePayload))
		for k := range c.RemotePayload {
			fields = append(fields, k)
		}
	}

	priority := make(map[string]struct{}, len(rule.PriorityFields))
	for _, f := range rule.PriorityFields {
		priority[f] = struct{}{}
	}

	remoteNewer := !c.RemoteTime.Before(c.LocalTime)
	for _, f := range fields {
		remoteValue, inRemote := c.RemotePayload[f]
		if !inRemote {
			continue
		}
		if _, inLocal := merged[f]; !inLocal {
			merged[f] = change.CloneValue(remoteValue)
			continue
		}
		if _, isPriority := priority[f]; isPriority {
			if remoteNewer {
				merged[f] = change.CloneValue(remoteValue)
			}
			continue
		}
		merged[f] = change.CloneValue(remoteValue)
	}

	return merged.TouchTimestamps(now)
}
