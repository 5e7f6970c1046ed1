package client

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError is a payload rejected before it was sent. Fields are
// keyed by their JSON names, like the server's field errors.
type ValidationError struct {
	Resource string
	Fields   []FieldError
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Resource, e.Message())
}

// Message returns the first field message
func (e *ValidationError) Message() string {
	for _, f := range e.Fields {
		if len(f.Messages) > 0 {
			return f.Messages[0]
		}
	}
	return "invalid " + e.Resource
}

// FieldMessages returns the messages for field
func (e *ValidationError) FieldMessages(field string) []string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Messages
		}
	}
	return nil
}

func (e *ValidationError) add(field, msg string) {
	for i := range e.Fields {
		if e.Fields[i].Field == field {
			e.Fields[i].Messages = append(e.Fields[i].Messages, msg)
			return
		}
	}
	e.Fields = append(e.Fields, FieldError{Field: field, Messages: []string{msg}})
}

// validateInput checks in against its validate tags
func validateInput(resource string, in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid %s: %w", resource, err)
	}

	ve := &ValidationError{Resource: resource}
	for _, fe := range verrs {
		field, _, _ := strings.Cut(fe.Field(), "[")
		ve.add(field, fieldMessage(fe))
	}
	return ve
}

// fieldMessage phrases one failed rule for people
func fieldMessage(fe validator.FieldError) string {
	label := fe.StructField()
	if i := strings.IndexByte(label, '['); i > 0 {
		label = label[:i]
	}

	text := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "gt":
		if fe.Param() == "0" {
			return label + " is required"
		}
		return fmt.Sprintf("%s must be greater than %s", label, fe.Param())
	case "min":
		if text {
			return fmt.Sprintf("%s should be at least %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s should be at least %s", label, fe.Param())
	case "max":
		if text {
			return fmt.Sprintf("%s should be at most %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s should be at most %s", label, fe.Param())
	case "numeric":
		return label + " must be a number"
	default:
		return label + " is invalid"
	}
}
