package ledger

import "encoding/json"

// SubmitResult is the ledger's synchronous answer to a submission. Most
// deployments assign the ordinal later, so Ordinal is usually nil.
type SubmitResult struct {
	Hash    string `json:"hash"`
	Ordinal *int64 `json:"ordinal,omitempty"`
}

// FiberRecord is a fiber as reported by the read replica.
type FiberRecord struct {
	FiberID            string          `json:"fiberId"`
	CurrentState       string          `json:"currentState"`
	StateData          json.RawMessage `json:"stateData,omitempty"`
	SequenceNumber     int64           `json:"sequenceNumber"`
	Status             string          `json:"status,omitempty"`
	Owners             []string        `json:"owners,omitempty"`
	ParentFiberID      string          `json:"parentFiberId,omitempty"`
	LastUpdatedOrdinal int64           `json:"lastUpdatedOrdinal,omitempty"`
}

// SequenceRecord is the replica's view of a fiber's next sequence.
type SequenceRecord struct {
	FiberID        string `json:"fiberId"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// Snapshot is a raw snapshot document plus its ordinal.
type Snapshot struct {
	Ordinal int64
	Raw     json.RawMessage
}

// EpochProgress reports the replica's consensus position.
type EpochProgress struct {
	Epoch   int64 `json:"epoch"`
	Ordinal int64 `json:"ordinal"`
}

// Endpoints are the path templates for each operation. "{id}" and
// "{ordinal}" are substituted with path-escaped values.
type Endpoints struct {
	Submit         string
	Fiber          string
	FiberSequence  string
	Snapshot       string
	LatestSnapshot string
	LatestOrdinal  string
	EpochProgress  string
	Rejections     string
}

// DefaultEndpoints returns the standard path layout.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Submit:         "/data",
		Fiber:          "/data-application/v1/state-machines/{id}",
		FiberSequence:  "/data-application/v1/state-machines/{id}/sequence",
		Snapshot:       "/snapshots/{ordinal}",
		LatestSnapshot: "/snapshots/latest",
		LatestOrdinal:  "/snapshots/latest/ordinal",
		EpochProgress:  "/epoch/progress",
		Rejections:     "/rejections",
	}
}

// WithDefaults fills empty templates from DefaultEndpoints.
func (e Endpoints) WithDefaults() Endpoints {
	d := DefaultEndpoints()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&e.Submit, d.Submit)
	fill(&e.Fiber, d.Fiber)
	fill(&e.FiberSequence, d.FiberSequence)
	fill(&e.Snapshot, d.Snapshot)
	fill(&e.LatestSnapshot, d.LatestSnapshot)
	fill(&e.LatestOrdinal, d.LatestOrdinal)
	fill(&e.EpochProgress, d.EpochProgress)
	fill(&e.Rejections, d.Rejections)
	return e
}
