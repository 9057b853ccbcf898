package engine

import "time"

// Status is the manager's externally visible state block. Hosts surface
// PendingChanges, ConflictCount and LastSyncAt; user input must never block
// on any of them.
type Status struct {
	Connected      bool      `json:"connected"`
	Online         bool      `json:"online"`
	Syncing        bool      `json:"syncing"`
	LastSyncAt     time.Time `json:"lastSyncAt"`
	PendingChanges int       `json:"pendingChanges"`
	FailedChanges  int       `json:"failedChanges"`
	ConflictCount  int       `json:"conflictCount"`
}

// Metrics are process-wide counters, reset only on restart or explicit Reset.
type Metrics struct {
	TotalSyncs       uint64        `json:"totalSyncs"`
	SuccessfulSyncs  uint64        `json:"successfulSyncs"`
	FailedSyncs      uint64        `json:"failedSyncs"`
	AverageLatency   time.Duration `json:"averageLatency"`
	BytesTransferred uint64        `json:"bytesTransferred"`
}

// record folds one delivery attempt into the aggregates.
func (m *Metrics) record(ok bool, latency time.Duration, bytes int) {
	m.TotalSyncs++
	if ok {
		m.SuccessfulSyncs++
		m.BytesTransferred += uint64(bytes)
		if m.AverageLatency == 0 {
			m.AverageLatency = latency
		} else {
			// Running average over successful deliveries.
			n := time.Duration(m.SuccessfulSyncs)
			m.AverageLatency += (latency - m.AverageLatency) / n
		}
	} else {
		m.FailedSyncs++
	}
}
