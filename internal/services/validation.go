package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// All API responses share the envelope: successes are
// {"success":true,...}, failures {"success":false,"error":...}.

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error envelope. Validation errors add a
// per-field details map; internal detail never reaches the client.
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body := map[string]any{
		"success": false,
		"error":   message,
	}
	if validationErr != nil {
		if errs, ok := validationErr.(validator.ValidationErrors); ok {
			details := make(map[string]string, len(errs))
			for _, err := range errs {
				details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
			}
			body["details"] = details
		}
	}

	json.NewEncoder(w).Encode(body)
}

// SendSuccessResponse sends a JSON success envelope with the given fields.
func SendSuccessResponse(w http.ResponseWriter, fields map[string]any) {
	w.Header().Set("Content-Type", "application/json")

	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}

	json.NewEncoder(w).Encode(body)
}
