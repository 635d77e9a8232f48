package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection signals that the vector store or a model backend is unreachable.
	ErrConnection = errors.New("backend unreachable")
	// ErrSchemaMismatch signals that an existing collection lacks an expected field.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrDimensionMismatch signals that the collection vector dimension differs
	// from the configured embedding dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingBackend signals a failed embedding call.
	ErrEmbeddingBackend = errors.New("embedding backend error")
	// ErrGenerationBackend signals a failed text-generation call.
	ErrGenerationBackend = errors.New("generation backend error")
	// ErrBadRequest signals an invalid caller request.
	ErrBadRequest = errors.New("bad request")
)

// SchemaMismatchError wraps ErrSchemaMismatch with the missing field name.
type SchemaMismatchError struct {
	Collection string
	Field      string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: collection %q has no field %q", ErrSchemaMismatch.Error(), e.Collection, e.Field)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// DimensionMismatchError wraps ErrDimensionMismatch with the observed dimensions.
type DimensionMismatchError struct {
	Collection string
	Got        int
	Want       int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: collection %q has dim %d, embeddings have dim %d",
		ErrDimensionMismatch.Error(), e.Collection, e.Got, e.Want)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }
