package errors

import "fmt"

// Stage names the part of the import pipeline a failure belongs to.
type Stage string

const (
	StageRegistry Stage = "registry"
	StageParse    Stage = "parse"
	StageAnalyze  Stage = "analyze"
	StagePersist  Stage = "persist"
)

// StageError tags an error with the stage and unit that produced it.
// Every failure surfaced by the pipeline carries one, so callers can report
// "which stage, which unit" without parsing messages.
type StageError struct {
	Stage Stage
	Unit  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s stage (unit %s): %v", e.Stage, e.Unit, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WithStage wraps err in a StageError. Returns nil for a nil err.
func WithStage(err error, stage Stage, unit string) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Unit: unit, Err: err}
}

// StageOf returns the outermost stage attached to err, or "" if none.
func StageOf(err error) Stage {
	var se *StageError
	if As(err, &se) {
		return se.Stage
	}
	return ""
}

// UnitOf returns the unit name attached to err by WithStage, or "" if none.
func UnitOf(err error) string {
	var se *StageError
	if As(err, &se) {
		return se.Unit
	}
	return ""
}
