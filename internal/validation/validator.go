package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/recipe-service/pkg/util/errorutil"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// Validator wraps the go-playground validator with the service's custom rules.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator reporting JSON field names.
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// identifier: letters, digits, dot, dash, underscore and @.
	_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
	// bcryptmax: at most 72 bytes, the longest input bcrypt accepts.
	_ = validate.RegisterValidation("bcryptmax", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPasswordBytes
	})
	return &Validator{validate: validate}
}

// Struct validates s and returns a VALIDATION_FAILED domain error listing the
// offending fields.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = message(fe)
	}
	return apperrors.NewValidationError("validation failed", details)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "bcryptmax":
		return fmt.Sprintf("%s must be at most %d bytes long", fe.Field(), MaxPasswordBytes)
	case "identifier":
		return fmt.Sprintf("%s may contain only letters, digits, '.', '-', '_' and '@'", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
