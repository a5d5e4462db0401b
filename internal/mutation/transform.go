package mutation

import (
	"time"
)

// TransformOperation computes a field value from its previous value. The local
// variant runs against the overlay at write time; the remote variant folds in
// the value the server actually produced.
type TransformOperation interface {
	// ApplyLocal computes the locally visible value.
	ApplyLocal(previous interface{}, localWriteTime time.Time) interface{}
	// ApplyRemote folds in the server-computed value from the acknowledgement.
	ApplyRemote(previous interface{}, serverValue interface{}) interface{}
	// Name tags the operation for serialization.
	Name() string
}

// ServerTimestamp resolves to the commit time assigned by the server. Locally
// it estimates with the client's write time.
type ServerTimestamp struct{}

func (ServerTimestamp) ApplyLocal(previous interface{}, localWriteTime time.Time) interface{} {
	return localWriteTime.UTC().UnixMilli()
}

func (ServerTimestamp) ApplyRemote(previous interface{}, serverValue interface{}) interface{} {
	return serverValue
}

func (ServerTimestamp) Name() string { return "server_timestamp" }

// Increment adds a numeric operand to the previous value. A missing or
// non-numeric previous value counts as zero.
type Increment struct {
	Operand float64
}

func (op Increment) ApplyLocal(previous interface{}, localWriteTime time.Time) interface{} {
	base, _ := numeric(previous)
	return base + op.Operand
}

func (op Increment) ApplyRemote(previous interface{}, serverValue interface{}) interface{} {
	if serverValue != nil {
		return serverValue
	}
	return op.ApplyLocal(previous, time.Time{})
}

func (Increment) Name() string { return "increment" }

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// FieldTransform binds a transform operation to a dotted field path.
type FieldTransform struct {
	FieldPath string
	Operation TransformOperation
}
