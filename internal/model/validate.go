package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedDocument is returned when a document is not valid JSON or
	// does not match the typed record shapes.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrMissingKey is returned when a record has no value for its key field.
	ErrMissingKey = errors.New("record key is required")

	// ErrUnknownCollection is returned for collection names outside the closed set.
	ErrUnknownCollection = errors.New("unknown collection")
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
// Err optionally carries a sentinel the failure corresponds to.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the sentinels attached to individual field errors.
func (e *ValidationError) Unwrap() []error {
	var errs []error
	for _, fe := range e.Errors {
		if fe.Err != nil {
			errs = append(errs, fe.Err)
		}
	}
	return errs
}

// HasKey reports whether r carries a key. Any non-empty string is a key,
// including one made of spaces.
func HasKey(r Record) bool {
	return r != nil && r.Key() != ""
}

// ValidateRecord checks a record for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the record is valid.
func ValidateRecord(r Record) error {
	var ve ValidationError
	checkRecord(&ve, string(r.Collection()), r)
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func checkRecord(ve *ValidationError, path string, r Record) {
	if !HasKey(r) {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   path + "." + r.Collection().KeyField(),
			Message: "is required",
			Err:     ErrMissingKey,
		})
	}

	switch v := r.(type) {
	case *Product:
		if v.Qty < 0 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".qty",
				Message: fmt.Sprintf("must not be negative, got %d", v.Qty),
			})
		}
	case *Return:
		if v.Qty < 0 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".qty",
				Message: fmt.Sprintf("must not be negative, got %d", v.Qty),
			})
		}
	}
}

// validateCollection checks every record of one collection and rejects
// duplicate keys, since the backend can hold only one row per key.
func validateCollection[T Record](ve *ValidationError, c Collection, recs []T) {
	seen := make(map[string]int, len(recs))
	for i, r := range recs {
		path := fmt.Sprintf("%s[%d]", c, i)
		if isNilRecord(r) {
			ve.Errors = append(ve.Errors, FieldError{Field: path, Message: "must be an object"})
			continue
		}
		checkRecord(ve, path, r)
		if !HasKey(r) {
			continue
		}
		if first, dup := seen[r.Key()]; dup {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + "." + c.KeyField(),
				Message: fmt.Sprintf("duplicates %s[%d] (%q)", c, first, r.Key()),
			})
			continue
		}
		seen[r.Key()] = i
	}
}

func isNilRecord(r Record) bool {
	switch v := r.(type) {
	case *Sale:
		return v == nil
	case *Product:
		return v == nil
	case *Supplier:
		return v == nil
	case *Customer:
		return v == nil
	case *Expense:
		return v == nil
	case *Return:
		return v == nil
	}
	return false
}
