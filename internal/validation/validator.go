// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package validation provides struct validation using go-playground/validator
// v10. It holds a thread-safe singleton validator with custom rules for the
// engine's inputs, and translates failures into the API's VALIDATION_ERROR
// response format.
package validation

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is a single field failure.
type ValidationError struct {
	field   string
	tag     string
	param   string
	message string
}

// Field returns the struct field that failed validation.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Error returns a human-readable message.
func (e *ValidationError) Error() string { return e.message }

// RequestValidationError is a collection of field failures for one request.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field failures.
func (ve *RequestValidationError) Errors() []ValidationError { return ve.errors }

// Error implements the error interface.
func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}

	msgs := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		msgs = append(msgs, err.message)
	}
	return strings.Join(msgs, "; ")
}

// Details returns a field-to-message map for API error responses.
func (ve *RequestValidationError) Details() map[string]interface{} {
	details := make(map[string]interface{}, len(ve.errors))
	for _, err := range ve.errors {
		details[err.field] = err.message
	}
	return details
}

// getValidator returns the singleton, creating it on first use.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// ip_address accepts IPv4 or IPv6 literals, not hostnames.
		_ = validate.RegisterValidation("ip_address", func(fl validator.FieldLevel) bool {
			return net.ParseIP(fl.Field().String()) != nil
		})
	})

	return validate
}

// ValidateStruct validates s and returns a *RequestValidationError when any
// rule fails, nil otherwise.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return &RequestValidationError{errors: []ValidationError{{
			field:   "",
			message: "invalid value passed to validator",
		}}}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{errors: []ValidationError{{
			field:   "",
			message: err.Error(),
		}}}
	}

	ve := &RequestValidationError{}
	for _, fe := range fieldErrs {
		ve.errors = append(ve.errors, ValidationError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			message: messageFor(fe),
		})
	}

	return ve
}

// messageFor renders a readable message for one field error.
func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "ip_address":
		return fmt.Sprintf("%s must be a valid IP address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
