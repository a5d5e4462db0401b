package model

import "sort"

// MaybeDocumentMap is a change-set: MaybeDocuments keyed by DocumentKey,
// iterated in path order so observers see deterministic change lists.
type MaybeDocumentMap struct {
	keys []DocumentKey
	m    map[DocumentKey]MaybeDocument
}

func NewMaybeDocumentMap() *MaybeDocumentMap {
	return &MaybeDocumentMap{m: map[DocumentKey]MaybeDocument{}}
}

func (mm *MaybeDocumentMap) Len() int {
	return len(mm.keys)
}

func (mm *MaybeDocumentMap) Set(key DocumentKey, doc MaybeDocument) {
	if _, ok := mm.m[key]; !ok {
		i := sort.Search(len(mm.keys), func(i int) bool { return mm.keys[i].Compare(key) >= 0 })
		mm.keys = append(mm.keys, DocumentKey{})
		copy(mm.keys[i+1:], mm.keys[i:])
		mm.keys[i] = key
	}
	mm.m[key] = doc
}

func (mm *MaybeDocumentMap) Get(key DocumentKey) (MaybeDocument, bool) {
	doc, ok := mm.m[key]
	return doc, ok
}

func (mm *MaybeDocumentMap) Delete(key DocumentKey) {
	if _, ok := mm.m[key]; !ok {
		return
	}
	delete(mm.m, key)
	i := sort.Search(len(mm.keys), func(i int) bool { return mm.keys[i].Compare(key) >= 0 })
	mm.keys = append(mm.keys[:i], mm.keys[i+1:]...)
}

// Keys returns the keys in path order.
func (mm *MaybeDocumentMap) Keys() []DocumentKey {
	out := make([]DocumentKey, len(mm.keys))
	copy(out, mm.keys)
	return out
}

// Range calls fn for every entry in path order, stopping on false.
func (mm *MaybeDocumentMap) Range(fn func(key DocumentKey, doc MaybeDocument) bool) {
	for _, k := range mm.keys {
		if !fn(k, mm.m[k]) {
			return
		}
	}
}

// Values returns the documents in key order.
func (mm *MaybeDocumentMap) Values() []MaybeDocument {
	out := make([]MaybeDocument, 0, len(mm.keys))
	for _, k := range mm.keys {
		out = append(out, mm.m[k])
	}
	return out
}

// DocumentMap is an ordered map of present documents, as returned by queries.
type DocumentMap struct {
	keys []DocumentKey
	m    map[DocumentKey]*Document
}

func NewDocumentMap() *DocumentMap {
	return &DocumentMap{m: map[DocumentKey]*Document{}}
}

func (dm *DocumentMap) Len() int {
	return len(dm.keys)
}

func (dm *DocumentMap) Set(key DocumentKey, doc *Document) {
	if _, ok := dm.m[key]; !ok {
		i := sort.Search(len(dm.keys), func(i int) bool { return dm.keys[i].Compare(key) >= 0 })
		dm.keys = append(dm.keys, DocumentKey{})
		copy(dm.keys[i+1:], dm.keys[i:])
		dm.keys[i] = key
	}
	dm.m[key] = doc
}

func (dm *DocumentMap) Get(key DocumentKey) (*Document, bool) {
	doc, ok := dm.m[key]
	return doc, ok
}

func (dm *DocumentMap) Delete(key DocumentKey) {
	if _, ok := dm.m[key]; !ok {
		return
	}
	delete(dm.m, key)
	i := sort.Search(len(dm.keys), func(i int) bool { return dm.keys[i].Compare(key) >= 0 })
	dm.keys = append(dm.keys[:i], dm.keys[i+1:]...)
}

func (dm *DocumentMap) Keys() []DocumentKey {
	out := make([]DocumentKey, len(dm.keys))
	copy(out, dm.keys)
	return out
}

func (dm *DocumentMap) Range(fn func(key DocumentKey, doc *Document) bool) {
	for _, k := range dm.keys {
		if !fn(k, dm.m[k]) {
			return
		}
	}
}

func (dm *DocumentMap) Values() []*Document {
	out := make([]*Document, 0, len(dm.keys))
	for _, k := range dm.keys {
		out = append(out, dm.m[k])
	}
	return out
}

// KeySet is an unordered set of document keys.
type KeySet map[DocumentKey]struct{}

func NewKeySet(keys ...DocumentKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Add(key DocumentKey) {
	s[key] = struct{}{}
}

func (s KeySet) Remove(key DocumentKey) {
	delete(s, key)
}

func (s KeySet) Contains(key DocumentKey) bool {
	_, ok := s[key]
	return ok
}

func (s KeySet) Len() int {
	return len(s)
}

// Sorted returns the members in path order.
func (s KeySet) Sorted() []DocumentKey {
	out := make([]DocumentKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
