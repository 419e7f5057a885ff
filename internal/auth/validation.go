// internal/auth/validation.go
package auth

import (
	"strings"

	"adreel/internal/common/errors"
	"adreel/internal/common/validation"
)

func intPtr(v int) *int { return &v }

// GetCredentialsSchema returns the schema shared by signup and login bodies.
func GetCredentialsSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"username": {
				Type:        "string",
				Description: "Account name, 3-32 word characters",
				MinLength:   intPtr(3),
				MaxLength:   intPtr(32),
			},
			"password": {
				Type:        "string",
				Description: "Account password",
				MinLength:   intPtr(6),
				MaxLength:   intPtr(128),
			},
		},
		Required:             []string{"username", "password"},
		AdditionalProperties: false,
	}
}

// ValidateCredentials checks a decoded signup/login body against the schema.
func ValidateCredentials(input map[string]interface{}) error {
	result := validation.ValidateInput(input, GetCredentialsSchema())
	if !result.Valid {
		return errors.NewValidationFailedError(strings.Join(result.GetErrorMessages(), "; "))
	}

	username, _ := input["username"].(string)
	if !validation.ValidateUsername(username) {
		return errors.NewValidationFailedError("username: must contain only letters, digits, '_', '.' or '-'")
	}
	return nil
}
