package model

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// DocumentKey identifies a document by its full resource path. The backing
// representation is the joined path string so keys are comparable and usable
// as map keys.
type DocumentKey struct {
	path string
}

// NewDocumentKey builds a key from an even-segment resource path.
func NewDocumentKey(path ResourcePath) (DocumentKey, error) {
	if !path.IsDocumentPath() {
		return DocumentKey{}, fmt.Errorf("%w: document path must have an even number of segments, got %q", ErrInvalidPath, path.String())
	}
	return DocumentKey{path: path.String()}, nil
}

// ParseDocumentKey builds a key from a path string like "collection/id".
func ParseDocumentKey(path string) (DocumentKey, error) {
	p, err := ParseResourcePath(path)
	if err != nil {
		return DocumentKey{}, err
	}
	return NewDocumentKey(p)
}

func (k DocumentKey) String() string {
	return k.path
}

func (k DocumentKey) IsZero() bool {
	return k.path == ""
}

func (k DocumentKey) Path() ResourcePath {
	if k.path == "" {
		return nil
	}
	return ResourcePath(strings.Split(k.path, "/"))
}

// CollectionPath returns the parent collection of the document.
func (k DocumentKey) CollectionPath() ResourcePath {
	return k.Path().Parent()
}

func (k DocumentKey) Compare(other DocumentKey) int {
	return k.Path().Compare(other.Path())
}

// CalculateID calculates a stable 128-bit hex ID from a full path. Persistence
// backends use it where the raw path would make an unwieldy primary key.
func CalculateID(fullpath string) string {
	hash := blake3.Sum256([]byte(fullpath))
	return hex.EncodeToString(hash[:16])
}

// AutoID generates a fresh document ID for client-created documents.
func AutoID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewAutoKey builds a key for a new document in the given collection with a
// generated ID.
func NewAutoKey(collection ResourcePath) (DocumentKey, error) {
	if collection.IsDocumentPath() {
		return DocumentKey{}, fmt.Errorf("%w: collection path must have an odd number of segments, got %q", ErrInvalidPath, collection.String())
	}
	return NewDocumentKey(collection.Append(AutoID()))
}
