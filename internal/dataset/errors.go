package dataset

import (
	"errors"
	"fmt"
)

// Contract violations raised by Dataset and Controller. Callers match them with
// errors.Is; the wrapped message carries the dataset, id, or column involved.
var (
	ErrEntityExists    = errors.New("entity already exists")
	ErrDisabledDataset = errors.New("dataset is disabled")
	ErrUnknownDataset  = errors.New("unknown dataset")
	ErrUnknownID       = errors.New("unknown id")
	ErrMissingColumn   = errors.New("missing column")
	ErrInvalidColumn   = errors.New("invalid column")
	ErrInvalidInput    = errors.New("invalid input")
)

// EntityExistsError reports a non-update insert of an id that is already committed.
type EntityExistsError struct {
	Dataset string
	ID      string
}

func (e *EntityExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Dataset, e.ID)
}

// Unwrap lets errors.Is(err, ErrEntityExists) match.
func (e *EntityExistsError) Unwrap() error {
	return ErrEntityExists
}
