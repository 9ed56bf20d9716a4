package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidCredentials covers every failed token request: unknown
	// email, wrong password, inactive or unverified account.
	ErrInvalidCredentials = errors.New("unable to authenticate with provided credentials")

	// ErrUnauthenticated is returned when a bearer key does not resolve to
	// an active user.
	ErrUnauthenticated = errors.New("invalid token")

	// ErrInvalidImage is returned when an upload is not a decodable image.
	ErrInvalidImage = errors.New("upload a valid image; the file you uploaded was either not an image or a corrupted image")
)

const (
	msgRequired = "This field is required."
	msgBlank    = "This field may not be blank."
)

// ValidationError collects field-keyed messages for a rejected request.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an error carrying a single field message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add records a message for field.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], message)
}

// Merge copies every message from other into v.
func (v *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, messages := range other.Fields {
		for _, message := range messages {
			v.Add(field, message)
		}
	}
}

// Empty reports whether no message was recorded.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// Err returns v as an error, or nil when it is empty.
func (v *ValidationError) Err() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	fields := make([]string, 0, len(v.Fields))
	for field := range v.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(v.Fields[field], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
