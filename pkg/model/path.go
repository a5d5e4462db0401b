package model

import (
	"fmt"
	"regexp"
	"strings"
)

var pathRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\./]+$`)

// ResourcePath is a slash-separated path into the document tree. Paths with an
// odd number of segments name collections, even ones name documents.
type ResourcePath []string

// ParseResourcePath validates and splits a path string.
func ParseResourcePath(path string) (ResourcePath, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	if !pathRegex.MatchString(path) {
		return nil, fmt.Errorf("%w: path contains invalid characters", ErrInvalidPath)
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return nil, fmt.Errorf("%w: path cannot start or end with /", ErrInvalidPath)
	}
	if strings.Contains(path, "//") {
		return nil, fmt.Errorf("%w: path cannot contain empty segments", ErrInvalidPath)
	}
	return ResourcePath(strings.Split(path, "/")), nil
}

// MustParseResourcePath is ParseResourcePath for statically known paths.
func MustParseResourcePath(path string) ResourcePath {
	p, err := ParseResourcePath(path)
	if err != nil {
		panic(err)
	}
	return p
}

func (p ResourcePath) String() string {
	return strings.Join(p, "/")
}

func (p ResourcePath) Length() int {
	return len(p)
}

// IsDocumentPath reports whether the path has an even number of segments.
func (p ResourcePath) IsDocumentPath() bool {
	return len(p)%2 == 0
}

// LastSegment returns the final segment, or "" for an empty path.
func (p ResourcePath) LastSegment() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path with the final segment removed.
func (p ResourcePath) Parent() ResourcePath {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Append returns a new path with the given segments appended.
func (p ResourcePath) Append(segments ...string) ResourcePath {
	out := make(ResourcePath, 0, len(p)+len(segments))
	out = append(out, p...)
	out = append(out, segments...)
	return out
}

// IsPrefixOf reports whether p is a (non-strict) prefix of other.
func (p ResourcePath) IsPrefixOf(other ResourcePath) bool {
	if len(p) > len(other) {
		return false
	}
	for i, seg := range p {
		if other[i] != seg {
			return false
		}
	}
	return true
}

// IsImmediateParentOf reports whether other is a direct child of p.
func (p ResourcePath) IsImmediateParentOf(other ResourcePath) bool {
	return len(other) == len(p)+1 && p.IsPrefixOf(other)
}

// Compare orders paths segment-wise, shorter prefixes first.
func (p ResourcePath) Compare(other ResourcePath) int {
	n := len(p)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(p[i], other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p) < len(other):
		return -1
	case len(p) > len(other):
		return 1
	default:
		return 0
	}
}

func (p ResourcePath) Equal(other ResourcePath) bool {
	return p.Compare(other) == 0
}
