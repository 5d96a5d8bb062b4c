package ingest

import "errors"

var (
	// ErrEmptyInput is returned when an upload holds no data.
	ErrEmptyInput = errors.New("ingest: empty input")
	// ErrUnsupportedFormat is returned for file types that cannot be read.
	ErrUnsupportedFormat = errors.New("ingest: unsupported format")
	// ErrMalformedTable is returned when no delimiter yields a usable header.
	ErrMalformedTable = errors.New("ingest: malformed table")
	// ErrSheetNotFound is returned when a named worksheet does not exist.
	ErrSheetNotFound = errors.New("ingest: sheet not found")
)
