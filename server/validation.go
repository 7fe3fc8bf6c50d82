package server

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teranos/shelf/errors"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct validates a request payload against its validate tags
func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError joins field errors into one invalid-request error
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.NewInvalidRequestError("%v", err)
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.NewInvalidRequestError("%s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := jsonPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must have at least " + e.Param() + " entries"
	case "max":
		return field + " must be at most " + e.Param() + " long"
	case "url":
		return field + " must be an absolute URL"
	default:
		return field + " is invalid"
	}
}

// jsonPath drops the request type from a namespace such as
// "batchRequest.bookmarks[1].url".
func jsonPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
