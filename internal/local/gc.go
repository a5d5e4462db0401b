package local

import (
	"github.com/codetrek/syntrix-client/pkg/model"
)

// GarbageSource answers whether it still holds a reference to a key. The
// mutation queue, the target registry and the local view pins are all
// sources.
type GarbageSource interface {
	ContainsKey(key model.DocumentKey) (bool, error)
}

// GarbageCollector decides when unreferenced documents leave the remote
// document cache. The eager variant collects after every operation; the
// deferred variant leaves the hot path alone and reclaims at explicit sweeps.
type GarbageCollector interface {
	IsEager() bool
	AddGarbageSource(source GarbageSource)

	// AddPotentialGarbageKeys marks keys whose references may have dropped.
	AddPotentialGarbageKeys(keys ...model.DocumentKey)

	// CollectGarbage returns the marked keys no source references anymore.
	// The eager collector consumes its marks; the deferred one returns
	// nothing here and keeps accumulating for Sweep.
	CollectGarbage() (model.KeySet, error)
}

// EagerGarbageCollector reclaims a key the moment its reference count reaches
// zero.
type EagerGarbageCollector struct {
	sources          []GarbageSource
	potentialGarbage model.KeySet
}

func NewEagerGarbageCollector() *EagerGarbageCollector {
	return &EagerGarbageCollector{potentialGarbage: model.NewKeySet()}
}

func (gc *EagerGarbageCollector) IsEager() bool {
	return true
}

func (gc *EagerGarbageCollector) AddGarbageSource(source GarbageSource) {
	gc.sources = append(gc.sources, source)
}

func (gc *EagerGarbageCollector) AddPotentialGarbageKeys(keys ...model.DocumentKey) {
	for _, key := range keys {
		gc.potentialGarbage.Add(key)
	}
}

func (gc *EagerGarbageCollector) CollectGarbage() (model.KeySet, error) {
	garbage := model.NewKeySet()
	for key := range gc.potentialGarbage {
		referenced, err := gc.isReferenced(key)
		if err != nil {
			return nil, err
		}
		if !referenced {
			garbage.Add(key)
		}
	}
	gc.potentialGarbage = model.NewKeySet()
	return garbage, nil
}

func (gc *EagerGarbageCollector) isReferenced(key model.DocumentKey) (bool, error) {
	for _, source := range gc.sources {
		referenced, err := source.ContainsKey(key)
		if err != nil {
			return false, err
		}
		if referenced {
			return true, nil
		}
	}
	return false, nil
}

// DeferredGarbageCollector accumulates candidates and reclaims nothing until
// Sweep is called.
type DeferredGarbageCollector struct {
	sources          []GarbageSource
	potentialGarbage model.KeySet
}

func NewDeferredGarbageCollector() *DeferredGarbageCollector {
	return &DeferredGarbageCollector{potentialGarbage: model.NewKeySet()}
}

func (gc *DeferredGarbageCollector) IsEager() bool {
	return false
}

func (gc *DeferredGarbageCollector) AddGarbageSource(source GarbageSource) {
	gc.sources = append(gc.sources, source)
}

func (gc *DeferredGarbageCollector) AddPotentialGarbageKeys(keys ...model.DocumentKey) {
	for _, key := range keys {
		gc.potentialGarbage.Add(key)
	}
}

func (gc *DeferredGarbageCollector) CollectGarbage() (model.KeySet, error) {
	return model.NewKeySet(), nil
}

// Sweep consumes the accumulated candidates and returns the unreferenced
// ones. The local store runs it inside a transaction on request.
func (gc *DeferredGarbageCollector) Sweep() (model.KeySet, error) {
	garbage := model.NewKeySet()
	for key := range gc.potentialGarbage {
		referenced := false
		for _, source := range gc.sources {
			ok, err := source.ContainsKey(key)
			if err != nil {
				return nil, err
			}
			if ok {
				referenced = true
				break
			}
		}
		if !referenced {
			garbage.Add(key)
		}
	}
	gc.potentialGarbage = model.NewKeySet()
	return garbage, nil
}
