package types

import "strings"

// FieldError names a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every field that failed validation in one request.
// A nil or empty ValidationErrors means the input was accepted.
type ValidationErrors []FieldError

// Add appends a failure for field.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// Fields returns the names of the invalid fields in the order they were added.
func (v ValidationErrors) Fields() []string {
	out := make([]string, 0, len(v))
	for _, fe := range v {
		out = append(out, fe.Field)
	}
	return out
}

// Has reports whether field was rejected.
func (v ValidationErrors) Has(field string) bool {
	for _, fe := range v {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// AppError converts the collected failures into a 400-class AppError whose
// details list each invalid field.
func (v ValidationErrors) AppError() *AppError {
	return NewAppErrorWithDetails(
		ErrCodeValidationPreferences,
		v.Error(),
		nil,
		map[string]any{"fields": []FieldError(v)},
	)
}
