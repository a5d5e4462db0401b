package types

import (
	"github.com/codetrek/syntrix-client/pkg/model"
)

// QueryPurpose says why a target is being listened to.
type QueryPurpose int

const (
	// PurposeListen is a client-requested listen.
	PurposeListen QueryPurpose = iota
	// PurposeExistenceFilterMismatch re-runs a query whose existence filter
	// disagreed with the local view.
	PurposeExistenceFilterMismatch
	// PurposeLimboResolution resolves the state of a document in limbo.
	PurposeLimboResolution
)

// QueryData is the persisted registration of an active target: the query, its
// server-assigned resume state, and bookkeeping for garbage collection.
type QueryData struct {
	Query           model.Query
	TargetID        int
	Purpose         QueryPurpose
	SequenceNumber  int64
	SnapshotVersion model.SnapshotVersion
	ResumeToken     []byte
}

func NewQueryData(query model.Query, targetID int, purpose QueryPurpose, sequenceNumber int64) *QueryData {
	return &QueryData{
		Query:          query,
		TargetID:       targetID,
		Purpose:        purpose,
		SequenceNumber: sequenceNumber,
	}
}

// WithResumeToken returns a copy carrying new resume state. Callers must not
// pass an empty token; the empty-token guard lives with them.
func (qd *QueryData) WithResumeToken(resumeToken []byte, snapshotVersion model.SnapshotVersion) *QueryData {
	out := *qd
	out.ResumeToken = append([]byte(nil), resumeToken...)
	out.SnapshotVersion = snapshotVersion
	return &out
}

// WithSequenceNumber returns a copy stamped with a fresh sequence number.
func (qd *QueryData) WithSequenceNumber(sequenceNumber int64) *QueryData {
	out := *qd
	out.SequenceNumber = sequenceNumber
	return &out
}
