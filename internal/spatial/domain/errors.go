package spatial

import "errors"

var (
	// ErrTooFewPoints is returned when the optimizer has fewer than two samples.
	ErrTooFewPoints = errors.New("spatial: too few points")
	// ErrDegenerateBox is returned when the search box has zero width on an axis.
	ErrDegenerateBox = errors.New("spatial: degenerate search box")
	// ErrNotConverged is returned when the optimizer stops without converging.
	ErrNotConverged = errors.New("spatial: optimizer did not converge")
	// ErrOptimizerPanic is returned when the optimizer panics.
	ErrOptimizerPanic = errors.New("spatial: optimizer panic")
)
