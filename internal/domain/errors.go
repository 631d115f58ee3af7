package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the vector store and the retrieval engine.
var (
	ErrNotFound              = errors.New("collection not found")
	ErrNoStoreLoaded         = errors.New("no vector store loaded")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
	ErrCorruptCollection     = errors.New("corrupt collection")
	ErrBackendUnavailable    = errors.New("embedding backend unavailable")
	ErrInvalidK              = errors.New("k must be at least 1")
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// CollectionError wraps a store failure with the collection it concerns.
type CollectionError struct {
	Op   string
	Name string
	Err  error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s collection %q: %v", e.Op, e.Name, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// NewCollectionError creates a CollectionError.
func NewCollectionError(op, name string, err error) *CollectionError {
	return &CollectionError{Op: op, Name: name, Err: err}
}

// ValidateCollectionName rejects names that cannot be used as a storage key.
func ValidateCollectionName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
		}
	}
	return nil
}
