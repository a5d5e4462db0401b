package local

import (
	"github.com/codetrek/syntrix-client/pkg/model"
)

// ReferenceSet is an in-memory relation between document keys and the IDs
// holding them alive (target IDs for view pins). Reference counting is by
// distinct ID per key.
type ReferenceSet struct {
	byKey map[model.DocumentKey]map[int]struct{}
	byID  map[int]model.KeySet
}

func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{
		byKey: map[model.DocumentKey]map[int]struct{}{},
		byID:  map[int]model.KeySet{},
	}
}

func (r *ReferenceSet) AddReference(key model.DocumentKey, id int) {
	ids, ok := r.byKey[key]
	if !ok {
		ids = map[int]struct{}{}
		r.byKey[key] = ids
	}
	ids[id] = struct{}{}

	keys, ok := r.byID[id]
	if !ok {
		keys = model.NewKeySet()
		r.byID[id] = keys
	}
	keys.Add(key)
}

func (r *ReferenceSet) RemoveReference(key model.DocumentKey, id int) {
	ids := r.byKey[key]
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.byKey, key)
	}
	keys := r.byID[id]
	if keys != nil {
		keys.Remove(key)
		if keys.Len() == 0 {
			delete(r.byID, id)
		}
	}
}

// RemoveReferencesForID drops every reference held under id and returns the
// keys that were referenced, so callers can consider them for collection.
func (r *ReferenceSet) RemoveReferencesForID(id int) model.KeySet {
	keys := r.byID[id]
	delete(r.byID, id)
	out := model.NewKeySet()
	for key := range keys {
		out.Add(key)
		ids := r.byKey[key]
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byKey, key)
		}
	}
	return out
}

func (r *ReferenceSet) ContainsKey(key model.DocumentKey) (bool, error) {
	return len(r.byKey[key]) > 0, nil
}

// ReferencesForID returns the keys currently referenced under id.
func (r *ReferenceSet) ReferencesForID(id int) model.KeySet {
	out := model.NewKeySet()
	for key := range r.byID[id] {
		out.Add(key)
	}
	return out
}
