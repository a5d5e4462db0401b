package mutation

import (
	"time"

	"github.com/codetrek/syntrix-client/pkg/model"
)

// Mutation is a locally issued change to a single document. Mutations apply in
// two directions: onto the local overlay while pending, and onto the remote
// baseline once the server acknowledges them.
type Mutation interface {
	Key() model.DocumentKey
	Precondition() Precondition

	// ApplyToLocalView overlays the mutation on the current local view of the
	// document. maybeDoc may be nil. A mutation whose precondition does not
	// hold returns maybeDoc unchanged.
	ApplyToLocalView(maybeDoc model.MaybeDocument, localWriteTime time.Time) model.MaybeDocument

	// ApplyToRemoteDocument computes the acknowledged baseline for the
	// document, or nil when the acknowledgement carries no usable value (the
	// next remote event surfaces it instead). The server accepted the
	// mutation, so preconditions are not re-checked here.
	ApplyToRemoteDocument(maybeDoc model.MaybeDocument, result Result) model.MaybeDocument
}

// Result is the server's acknowledgement of a single mutation.
type Result struct {
	Version          model.SnapshotVersion
	TransformResults []interface{}
}

// postMutationVersion keeps the baseline document's version across an overlay;
// anything else is purely local and stays at the minimum version.
func postMutationVersion(maybeDoc model.MaybeDocument) model.SnapshotVersion {
	if doc, ok := maybeDoc.(*model.Document); ok {
		return doc.DocVersion
	}
	return model.SnapshotVersionMin
}

// Set replaces the document's contents wholesale.
type Set struct {
	DocKey model.DocumentKey
	Fields map[string]interface{}
	Pre    Precondition
}

func NewSet(key model.DocumentKey, fields map[string]interface{}) *Set {
	return &Set{DocKey: key, Fields: fields, Pre: PreconditionNone()}
}

func (m *Set) Key() model.DocumentKey     { return m.DocKey }
func (m *Set) Precondition() Precondition { return m.Pre }

func (m *Set) ApplyToLocalView(maybeDoc model.MaybeDocument, localWriteTime time.Time) model.MaybeDocument {
	if !m.Pre.IsValidFor(maybeDoc) {
		return maybeDoc
	}
	return &model.Document{
		DocKey:            m.DocKey,
		DocVersion:        postMutationVersion(maybeDoc),
		Fields:            model.CloneFields(m.Fields),
		HasLocalMutations: true,
	}
}

func (m *Set) ApplyToRemoteDocument(maybeDoc model.MaybeDocument, result Result) model.MaybeDocument {
	return &model.Document{
		DocKey:     m.DocKey,
		DocVersion: result.Version,
		Fields:     model.CloneFields(m.Fields),
	}
}

// Patch merges fields into an existing document under a field mask. Fields in
// the mask but absent from Fields are deleted. A patch against a document that
// does not exist locally is a blind patch: it stays queued but is invisible.
type Patch struct {
	DocKey model.DocumentKey
	Fields map[string]interface{}
	Mask   []string
	Pre    Precondition
}

func NewPatch(key model.DocumentKey, fields map[string]interface{}) *Patch {
	mask := make([]string, 0, len(fields))
	for k := range fields {
		mask = append(mask, k)
	}
	return &Patch{DocKey: key, Fields: fields, Mask: mask, Pre: PreconditionExists(true)}
}

func (m *Patch) Key() model.DocumentKey     { return m.DocKey }
func (m *Patch) Precondition() Precondition { return m.Pre }

func (m *Patch) ApplyToLocalView(maybeDoc model.MaybeDocument, localWriteTime time.Time) model.MaybeDocument {
	if !m.Pre.IsValidFor(maybeDoc) {
		return maybeDoc
	}
	doc, ok := maybeDoc.(*model.Document)
	if !ok {
		return maybeDoc
	}
	return &model.Document{
		DocKey:            m.DocKey,
		DocVersion:        postMutationVersion(maybeDoc),
		Fields:            m.patchFields(doc.Fields),
		HasLocalMutations: true,
	}
}

func (m *Patch) ApplyToRemoteDocument(maybeDoc model.MaybeDocument, result Result) model.MaybeDocument {
	// An acknowledged patch carries no contents of its own; the merged
	// document arrives with the next remote event.
	return nil
}

func (m *Patch) patchFields(base map[string]interface{}) map[string]interface{} {
	out := model.CloneFields(base)
	if out == nil {
		out = map[string]interface{}{}
	}
	for _, path := range m.Mask {
		if value, ok := model.GetField(m.Fields, path); ok {
			model.SetField(out, path, value)
		} else {
			model.DeleteField(out, path)
		}
	}
	return out
}

// Delete removes the document.
type Delete struct {
	DocKey model.DocumentKey
	Pre    Precondition
}

func NewDelete(key model.DocumentKey) *Delete {
	return &Delete{DocKey: key, Pre: PreconditionNone()}
}

func (m *Delete) Key() model.DocumentKey     { return m.DocKey }
func (m *Delete) Precondition() Precondition { return m.Pre }

func (m *Delete) ApplyToLocalView(maybeDoc model.MaybeDocument, localWriteTime time.Time) model.MaybeDocument {
	if !m.Pre.IsValidFor(maybeDoc) {
		return maybeDoc
	}
	// Local deletes are visible at version 0 until acknowledged.
	return &model.NoDocument{DocKey: m.DocKey, DocVersion: model.SnapshotVersionMin}
}

func (m *Delete) ApplyToRemoteDocument(maybeDoc model.MaybeDocument, result Result) model.MaybeDocument {
	return &model.NoDocument{DocKey: m.DocKey, DocVersion: result.Version}
}

// Transform rewrites individual fields of a document that a previous mutation
// or the baseline has materialized. Against a missing document the transform
// is skipped.
type Transform struct {
	DocKey     model.DocumentKey
	Transforms []FieldTransform
	Pre        Precondition
}

func NewTransform(key model.DocumentKey, transforms []FieldTransform) *Transform {
	return &Transform{DocKey: key, Transforms: transforms, Pre: PreconditionExists(true)}
}

func (m *Transform) Key() model.DocumentKey     { return m.DocKey }
func (m *Transform) Precondition() Precondition { return m.Pre }

func (m *Transform) ApplyToLocalView(maybeDoc model.MaybeDocument, localWriteTime time.Time) model.MaybeDocument {
	if !m.Pre.IsValidFor(maybeDoc) {
		return maybeDoc
	}
	doc, ok := maybeDoc.(*model.Document)
	if !ok {
		return maybeDoc
	}
	fields := model.CloneFields(doc.Fields)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	for _, ft := range m.Transforms {
		previous, _ := model.GetField(fields, ft.FieldPath)
		model.SetField(fields, ft.FieldPath, ft.Operation.ApplyLocal(previous, localWriteTime))
	}
	return &model.Document{
		DocKey:            m.DocKey,
		DocVersion:        doc.DocVersion,
		Fields:            fields,
		HasLocalMutations: true,
	}
}

func (m *Transform) ApplyToRemoteDocument(maybeDoc model.MaybeDocument, result Result) model.MaybeDocument {
	doc, ok := maybeDoc.(*model.Document)
	if !ok {
		// The server applied the transform but we never saw the base
		// document, so the merged contents are unknown.
		return &model.UnknownDocument{DocKey: m.DocKey, DocVersion: result.Version}
	}
	fields := model.CloneFields(doc.Fields)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	for i, ft := range m.Transforms {
		previous, _ := model.GetField(fields, ft.FieldPath)
		var serverValue interface{}
		if i < len(result.TransformResults) {
			serverValue = result.TransformResults[i]
		}
		model.SetField(fields, ft.FieldPath, ft.Operation.ApplyRemote(previous, serverValue))
	}
	return &model.Document{
		DocKey:     m.DocKey,
		DocVersion: result.Version,
		Fields:     fields,
	}
}
