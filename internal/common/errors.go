package common

import "errors"

// ErrValidation marks bad, empty or insufficient input at any pipeline stage.
// It is fatal to the call that returns it and is never retried.
var ErrValidation = errors.New("validation error")
