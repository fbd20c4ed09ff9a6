package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/audiostack/backend/internal/dto"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so details line up with the payload.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct returns field-keyed validation details, or nil when the
// value passes.
func validateStruct(value interface{}) []dto.FieldError {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []dto.FieldError{{Field: "body", Message: "Invalid request body"}}
	}

	details := make([]dto.FieldError, 0, len(errs))
	for _, fe := range errs {
		details = append(details, dto.FieldError{Field: fe.Field(), Message: messageFor(fe)})
	}
	return details
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Valid email is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
