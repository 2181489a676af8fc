package batch

import (
	"errors"
	"fmt"
)

// ErrBatchBusy signals that a batch run is already in flight. Re-entering
// Processing concurrently for the same batch is illegal.
var ErrBatchBusy = errors.New("batch is already processing")

// ValidationError rejects malformed batch, tag or range input before any
// mutation happens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

func validationErrf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
