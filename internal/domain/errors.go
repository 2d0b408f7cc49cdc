package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the study service. Use errors.Is to classify.
var (
	ErrValidation = errors.New("invalid request")
	ErrForbidden  = errors.New("card is not owned by user")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
)

// ErrInvalidRating is returned for ratings outside Failed..Easy.
var ErrInvalidRating = fmt.Errorf("%w: rating must be between 1 and 4", ErrValidation)
