package local

import (
	"fmt"

	"github.com/codetrek/syntrix-client/internal/mutation"
	"github.com/codetrek/syntrix-client/internal/remote"
	"github.com/codetrek/syntrix-client/pkg/model"
)

// Test fixture builders shared by the local store suites.

func key(path string) model.DocumentKey {
	k, err := model.ParseDocumentKey(path)
	if err != nil {
		panic(err)
	}
	return k
}

func version(v int64) model.SnapshotVersion {
	return model.VersionFromMicros(v)
}

func fields(kv ...interface{}) map[string]interface{} {
	if len(kv)%2 != 0 {
		panic("fields requires key/value pairs")
	}
	m := map[string]interface{}{}
	for i := 0; i < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func doc(path string, v int64, f map[string]interface{}, hasLocalMutations bool) *model.Document {
	return &model.Document{
		DocKey:            key(path),
		DocVersion:        version(v),
		Fields:            f,
		HasLocalMutations: hasLocalMutations,
	}
}

func deletedDoc(path string, v int64) *model.NoDocument {
	return &model.NoDocument{DocKey: key(path), DocVersion: version(v)}
}

func query(path string) model.Query {
	return model.NewQuery(model.MustParseResourcePath(path))
}

func setMutation(path string, f map[string]interface{}) mutation.Mutation {
	return mutation.NewSet(key(path), f)
}

func patchMutation(path string, f map[string]interface{}) mutation.Mutation {
	return mutation.NewPatch(key(path), f)
}

func deleteMutation(path string) mutation.Mutation {
	return mutation.NewDelete(key(path))
}

func transformMutation(path string, transforms ...mutation.FieldTransform) mutation.Mutation {
	return mutation.NewTransform(key(path), transforms)
}

func resumeToken(seed int64) []byte {
	if seed == 0 {
		return nil
	}
	return []byte(fmt.Sprintf("token-%d", seed))
}

func viewChanges(targetID int, added, removed []string) ViewChanges {
	addedKeys := make([]model.DocumentKey, 0, len(added))
	for _, path := range added {
		addedKeys = append(addedKeys, key(path))
	}
	removedKeys := make([]model.DocumentKey, 0, len(removed))
	for _, path := range removed {
		removedKeys = append(removedKeys, key(path))
	}
	return NewViewChanges(targetID, addedKeys, removedKeys)
}

// addedRemoteEvent builds an event where the watch newly syncs the document
// to the updated targets.
func addedRemoteEvent(maybeDoc model.MaybeDocument, updatedIn, removedFrom []int) *remote.RemoteEvent {
	return docRemoteEvent(maybeDoc, updatedIn, removedFrom, nil, true)
}

// updateRemoteEvent builds an event where the watch reports a new state for a
// document already synced to the updated targets.
func updateRemoteEvent(maybeDoc model.MaybeDocument, updatedIn, removedFrom []int) *remote.RemoteEvent {
	return docRemoteEvent(maybeDoc, updatedIn, removedFrom, nil, false)
}

// updateRemoteEventWithActiveTargets additionally attributes the update to
// activeTargets the local store may not know about.
func updateRemoteEventWithActiveTargets(maybeDoc model.MaybeDocument, updatedIn, removedFrom, activeTargets []int) *remote.RemoteEvent {
	return docRemoteEvent(maybeDoc, updatedIn, removedFrom, activeTargets, false)
}

func docRemoteEvent(maybeDoc model.MaybeDocument, updatedIn, removedFrom, activeTargets []int, added bool) *remote.RemoteEvent {
	event := remote.NewRemoteEvent(maybeDoc.Version())
	attribution := make([]int, 0, len(updatedIn)+len(removedFrom)+len(activeTargets))
	attribution = append(attribution, updatedIn...)
	attribution = append(attribution, removedFrom...)
	attribution = append(attribution, activeTargets...)
	event.AddDocumentUpdate(maybeDoc, attribution...)

	_, isDocument := maybeDoc.(*model.Document)
	for _, targetID := range updatedIn {
		change := event.TargetChange(targetID)
		switch {
		case !isDocument:
			// A tombstone means the document no longer matches the target.
			change.RemovedDocuments.Add(maybeDoc.Key())
		case added:
			change.AddedDocuments.Add(maybeDoc.Key())
		default:
			change.ModifiedDocuments.Add(maybeDoc.Key())
		}
	}
	for _, targetID := range removedFrom {
		event.TargetChange(targetID).RemovedDocuments.Add(maybeDoc.Key())
	}
	return event
}
