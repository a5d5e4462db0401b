package mutation

import (
	"github.com/codetrek/syntrix-client/pkg/model"
)

type preconditionKind int

const (
	preconditionNone preconditionKind = iota
	preconditionExists
	preconditionUpdateTime
)

// Precondition gates the application of a mutation. It is a tagged variant so
// "no precondition" stays distinct from Exists(false).
type Precondition struct {
	kind       preconditionKind
	exists     bool
	updateTime model.SnapshotVersion
}

// PreconditionNone applies the mutation unconditionally.
func PreconditionNone() Precondition {
	return Precondition{kind: preconditionNone}
}

// PreconditionExists requires the document to exist (or not).
func PreconditionExists(exists bool) Precondition {
	return Precondition{kind: preconditionExists, exists: exists}
}

// PreconditionUpdateTime requires the document's version to match exactly.
func PreconditionUpdateTime(version model.SnapshotVersion) Precondition {
	return Precondition{kind: preconditionUpdateTime, updateTime: version}
}

func (p Precondition) IsNone() bool {
	return p.kind == preconditionNone
}

// IsValidFor evaluates the precondition against the current local view of the
// document. maybeDoc may be nil when nothing is known about the key.
func (p Precondition) IsValidFor(maybeDoc model.MaybeDocument) bool {
	switch p.kind {
	case preconditionNone:
		return true
	case preconditionExists:
		_, isDoc := maybeDoc.(*model.Document)
		return isDoc == p.exists
	case preconditionUpdateTime:
		doc, isDoc := maybeDoc.(*model.Document)
		return isDoc && doc.DocVersion.Equal(p.updateTime)
	default:
		return false
	}
}
