package domain

import "errors"

var (
	// ErrProvider signals an embedding or generation backend that is
	// unreachable or rejected the input.
	ErrProvider = errors.New("provider error")
	// ErrDimensionMismatch signals a vector whose dimensionality differs
	// from the one pinned by the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrGeneration signals a generation call that failed after context
	// was successfully assembled.
	ErrGeneration = errors.New("generation failed")
	// ErrTimeout signals a blocking call that exceeded its budget.
	ErrTimeout = errors.New("operation timed out")
	// ErrIngest signals a chunking or index write failure during ingestion.
	ErrIngest = errors.New("ingest failed")
	// ErrQuery wraps retrieval or generation failures in the query flow.
	ErrQuery = errors.New("query failed")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrValidation signals invalid caller input.
	ErrValidation = errors.New("invalid input")
)
