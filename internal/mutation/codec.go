package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/codetrek/syntrix-client/pkg/model"
)

// Wire envelopes for persisting mutations. Only persistence backends use
// these; the in-memory regime keeps mutations as-is.

type mutationEnvelope struct {
	Type         string                 `json:"type"`
	Key          string                 `json:"key"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
	Mask         []string               `json:"mask,omitempty"`
	Transforms   []transformEnvelope    `json:"transforms,omitempty"`
	Precondition preconditionEnvelope   `json:"precondition"`
}

type transformEnvelope struct {
	Field   string  `json:"field"`
	Op      string  `json:"op"`
	Operand float64 `json:"operand,omitempty"`
}

type preconditionEnvelope struct {
	Kind             string `json:"kind"`
	Exists           bool   `json:"exists,omitempty"`
	UpdateTimeMicros int64  `json:"updateTimeMicros,omitempty"`
}

func encodePrecondition(p Precondition) preconditionEnvelope {
	switch p.kind {
	case preconditionExists:
		return preconditionEnvelope{Kind: "exists", Exists: p.exists}
	case preconditionUpdateTime:
		return preconditionEnvelope{Kind: "update_time", UpdateTimeMicros: p.updateTime.Micros()}
	default:
		return preconditionEnvelope{Kind: "none"}
	}
}

func decodePrecondition(e preconditionEnvelope) (Precondition, error) {
	switch e.Kind {
	case "none", "":
		return PreconditionNone(), nil
	case "exists":
		return PreconditionExists(e.Exists), nil
	case "update_time":
		return PreconditionUpdateTime(model.VersionFromMicros(e.UpdateTimeMicros)), nil
	default:
		return Precondition{}, fmt.Errorf("%w: unknown precondition kind %q", model.ErrCorruption, e.Kind)
	}
}

// EncodeMutations serializes mutations for persistence.
func EncodeMutations(mutations []Mutation) ([]byte, error) {
	envelopes := make([]mutationEnvelope, 0, len(mutations))
	for _, m := range mutations {
		env := mutationEnvelope{Key: m.Key().String(), Precondition: encodePrecondition(m.Precondition())}
		switch mut := m.(type) {
		case *Set:
			env.Type = "set"
			env.Fields = mut.Fields
		case *Patch:
			env.Type = "patch"
			env.Fields = mut.Fields
			env.Mask = mut.Mask
		case *Delete:
			env.Type = "delete"
		case *Transform:
			env.Type = "transform"
			for _, ft := range mut.Transforms {
				te := transformEnvelope{Field: ft.FieldPath, Op: ft.Operation.Name()}
				if inc, ok := ft.Operation.(Increment); ok {
					te.Operand = inc.Operand
				}
				env.Transforms = append(env.Transforms, te)
			}
		default:
			return nil, fmt.Errorf("unknown mutation type %T", m)
		}
		envelopes = append(envelopes, env)
	}
	return json.Marshal(envelopes)
}

// DecodeMutations deserializes mutations persisted by EncodeMutations.
func DecodeMutations(data []byte) ([]Mutation, error) {
	var envelopes []mutationEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorruption, err)
	}
	mutations := make([]Mutation, 0, len(envelopes))
	for _, env := range envelopes {
		key, err := model.ParseDocumentKey(env.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: bad mutation key %q", model.ErrCorruption, env.Key)
		}
		pre, err := decodePrecondition(env.Precondition)
		if err != nil {
			return nil, err
		}
		switch env.Type {
		case "set":
			mutations = append(mutations, &Set{DocKey: key, Fields: env.Fields, Pre: pre})
		case "patch":
			mutations = append(mutations, &Patch{DocKey: key, Fields: env.Fields, Mask: env.Mask, Pre: pre})
		case "delete":
			mutations = append(mutations, &Delete{DocKey: key, Pre: pre})
		case "transform":
			transforms := make([]FieldTransform, 0, len(env.Transforms))
			for _, te := range env.Transforms {
				var op TransformOperation
				switch te.Op {
				case "server_timestamp":
					op = ServerTimestamp{}
				case "increment":
					op = Increment{Operand: te.Operand}
				default:
					return nil, fmt.Errorf("%w: unknown transform op %q", model.ErrCorruption, te.Op)
				}
				transforms = append(transforms, FieldTransform{FieldPath: te.Field, Operation: op})
			}
			mutations = append(mutations, &Transform{DocKey: key, Transforms: transforms, Pre: pre})
		default:
			return nil, fmt.Errorf("%w: unknown mutation type %q", model.ErrCorruption, env.Type)
		}
	}
	return mutations, nil
}
