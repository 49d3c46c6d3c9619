package shared

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs v against s and converts the first failure into an
// ErrValidation carrying a client-facing message.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return Validation("Invalid request")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return Validation("Field '%s' is required", fe.Field())
	case "email":
		return Validation("Field '%s' must be a valid email address", fe.Field())
	case "min":
		return Validation("Field '%s' must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return Validation("Field '%s' must be at most %s characters", fe.Field(), fe.Param())
	case "gt":
		return Validation("Field '%s' must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return Validation("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "datetime":
		return Validation("Field '%s' must be a date in YYYY-MM-DD format", fe.Field())
	default:
		return Validation("Field '%s' is invalid", fe.Field())
	}
}
