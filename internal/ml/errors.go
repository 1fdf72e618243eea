package ml

import "errors"

var (
	// ErrInsufficientData indicates the training dataset is too small or
	// degenerate (e.g. a single label class) to produce a usable model.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrNoViableCandidate indicates every candidate in the roster failed
	// to train, leaving nothing to select.
	ErrNoViableCandidate = errors.New("no viable model candidate")

	// ErrModelNotTrained indicates prediction was requested before any
	// training run completed or artifacts were restored.
	ErrModelNotTrained = errors.New("no trained model available")
)
