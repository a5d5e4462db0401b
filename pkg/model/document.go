package model

import "strings"

// MaybeDocument is what the cache knows about a key: a Document with contents,
// a NoDocument tombstone, or an UnknownDocument whose contents have not been
// seen (produced by some transform acknowledgements).
type MaybeDocument interface {
	Key() DocumentKey
	Version() SnapshotVersion
}

// Document is a document that is known to exist, with its field contents.
type Document struct {
	DocKey            DocumentKey
	DocVersion        SnapshotVersion
	Fields            map[string]interface{}
	HasLocalMutations bool
}

func (d *Document) Key() DocumentKey         { return d.DocKey }
func (d *Document) Version() SnapshotVersion { return d.DocVersion }

// Field resolves a dotted field path against the document contents.
func (d *Document) Field(path string) (interface{}, bool) {
	return GetField(d.Fields, path)
}

// NoDocument records that a document is known not to exist.
type NoDocument struct {
	DocKey     DocumentKey
	DocVersion SnapshotVersion
}

func (d *NoDocument) Key() DocumentKey         { return d.DocKey }
func (d *NoDocument) Version() SnapshotVersion { return d.DocVersion }

// UnknownDocument records that a document exists remotely at a version but its
// contents are not known locally.
type UnknownDocument struct {
	DocKey     DocumentKey
	DocVersion SnapshotVersion
}

func (d *UnknownDocument) Key() DocumentKey         { return d.DocKey }
func (d *UnknownDocument) Version() SnapshotVersion { return d.DocVersion }

// GetField resolves a dotted field path against a field map.
func GetField(fields map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	current := fields
	for i, seg := range segments {
		value, ok := current[seg]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return value, true
		}
		nested, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = nested
	}
	return nil, false
}

// SetField writes a value at a dotted field path, creating intermediate maps.
func SetField(fields map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	current := fields
	for _, seg := range segments[:len(segments)-1] {
		nested, ok := current[seg].(map[string]interface{})
		if !ok {
			nested = map[string]interface{}{}
			current[seg] = nested
		}
		current = nested
	}
	current[segments[len(segments)-1]] = value
}

// DeleteField removes the value at a dotted field path, if present.
func DeleteField(fields map[string]interface{}, path string) {
	segments := strings.Split(path, ".")
	current := fields
	for _, seg := range segments[:len(segments)-1] {
		nested, ok := current[seg].(map[string]interface{})
		if !ok {
			return
		}
		current = nested
	}
	delete(current, segments[len(segments)-1])
}

// CloneFields deep-copies a field map.
func CloneFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = CloneFields(nested)
		} else {
			out[k] = v
		}
	}
	return out
}
