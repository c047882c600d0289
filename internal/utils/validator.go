// internal/utils/validator.go
package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/javajoker/provenance-backend/internal/apperr"
)

var validate *validator.Validate

var (
	txHashPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("tx_hash", validateTxHash)
	validate.RegisterValidation("username", validateUsername)
}

// ValidateStruct checks s against its validate tags. Failures are returned
// as validation errors wrapping validator.ValidationErrors.
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return &apperr.Error{Kind: apperr.KindValidation, Msg: "validation failed", Err: err}
	}
	return nil
}

func validateTxHash(fl validator.FieldLevel) bool {
	return txHashPattern.MatchString(fl.Field().String())
}

func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()

	// Username should be alphanumeric and underscores, 3-50 characters
	if len(username) < 3 || len(username) > 50 {
		return false
	}
	return usernamePattern.MatchString(username)
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "url":
		return e.Field() + " must be a valid URL"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gt":
		return e.Field() + " must be greater than " + e.Param()
	case "oneof":
		return e.Field() + " must be one of " + e.Param()
	case "eth_addr":
		return e.Field() + " must be a 0x-prefixed 20-byte hex address"
	case "tx_hash":
		return e.Field() + " must be a 0x-prefixed 32-byte hex hash"
	case "username":
		return "Username must be 3-50 characters and contain only letters, numbers, and underscores"
	default:
		return e.Field() + " is invalid"
	}
}
