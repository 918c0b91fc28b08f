package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// ValidationError reports a malformed request parameter
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// queryInt reads an optional non-negative integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ValidationError{Field: name, Message: "must be an integer", Value: raw}
	}
	if v < 0 {
		return 0, ValidationError{Field: name, Message: "cannot be negative", Value: v}
	}
	return v, nil
}

// validateRunID checks that id is a comparison run id
func validateRunID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ValidationError{Field: "id", Message: "must be a UUID", Value: id}
	}
	return nil
}
