package ml

import (
	"errors"
	"fmt"
)

var (
	ErrSchema        = errors.New("schema error")
	ErrModelNotFound = errors.New("model not found: train the model first by running cmd/train_model")
	ErrDataLoad      = errors.New("data load error")
	ErrTraining      = errors.New("training error")
)

// SchemaError reports a record that is missing, mistyping or adding a feature.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: field %q: %s", e.Field, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErrorf(field, format string, args ...interface{}) error {
	return &SchemaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
