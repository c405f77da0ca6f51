package types

import "fmt"

// DataValidityError reports a window that cannot be used because the series
// it was cut from has a gap or is too short. It is recovered locally by
// rejecting the sample or prediction, never by interpolating.
type DataValidityError struct {
	ProjectID string
	Month     Month
	Reason    string
}

func (e *DataValidityError) Error() string {
	return fmt.Sprintf("invalid data for project %s at %s: %s", e.ProjectID, e.Month, e.Reason)
}

// ConfigurationError reports a configuration that can never produce a valid
// run: bad fractions, too few samples, inconsistent feature arity. Surfaced
// before training starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NumericalInstabilityError reports a non-finite training loss. Fatal for the
// run: retrying with identical inputs and seed reproduces it, and continuing
// would corrupt the checkpoint.
type NumericalInstabilityError struct {
	Epoch     int
	Batch     int
	ProjectID string
	Anchor    Month
	Loss      float64
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("non-finite loss %v at epoch %d batch %d (first sample %s@%s)",
		e.Loss, e.Epoch, e.Batch, e.ProjectID, e.Anchor)
}

// PersistenceError reports a checkpoint read or write failure after the one
// permitted retry.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
