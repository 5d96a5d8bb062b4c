package application

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("analysis: session not found")
	// ErrNoDataset is returned when a session has no uploaded dataset.
	ErrNoDataset = errors.New("analysis: no dataset uploaded")
	// ErrEmptyEntity is returned when an entity id is required but blank.
	ErrEmptyEntity = errors.New("analysis: empty entity id")
	// ErrNarratorUnavailable is returned when no LLM endpoint is configured.
	ErrNarratorUnavailable = errors.New("analysis: narrative generation not configured")
	// ErrMeasurementsUnavailable is returned when no grid API is configured.
	ErrMeasurementsUnavailable = errors.New("analysis: measurement source not configured")
	// ErrUnknownMeter is returned for meters missing from the configuration.
	ErrUnknownMeter = errors.New("analysis: unknown meter")
)

// Kind classifies an analysis failure.
type Kind string

const (
	// KindInput covers unparseable uploads and bad parameters.
	KindInput Kind = "input"
	// KindNoData covers requests whose selection holds nothing to compute on.
	KindNoData Kind = "no-data"
	// KindExternal covers grid API and LLM failures after retries.
	KindExternal Kind = "external"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// AnalysisError is the typed result of a failed analysis step.
type AnalysisError struct {
	Step string
	Kind Kind
	Err  error
}

func (e *AnalysisError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of err, KindInternal when it carries none.
func KindOf(err error) Kind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func fail(step string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	return &AnalysisError{Step: step, Kind: kind, Err: err}
}
