// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide. Field names in errors
// are taken from koanf or json tags, so configuration errors read as
// "reload.freeze_timeout" rather than Go field names. Two custom tags are
// registered: clientid (a non-empty client identifier without whitespace)
// and feature (one of the known feature flag names).
//
//	type saveRequest struct {
//	    Reason string `json:"reason" validate:"required,max=256"`
//	}
//	if err := validation.Validate(&req); err != nil {
//	    respondError(w, http.StatusBadRequest, err)
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/crashguard/internal/features"
)

// maxClientIDLength bounds client identifiers accepted by the clientid tag.
const maxClientIDLength = 128

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is a single failed field.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the dotted field path that failed validation.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "100" for "max=100".
func (e *ValidationError) Param() string { return e.param }

// Value returns the rejected value.
func (e *ValidationError) Value() interface{} { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of one struct.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the failed fields.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(tagName)
		_ = validate.RegisterValidation("clientid", validateClientID)
		_ = validate.RegisterValidation("feature", validateFeature)
	})
	return validate
}

// ValidateStruct validates s and returns nil or the collected field errors.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fe := range validationErrs {
		field := fieldPath(fe)
		fieldErrors[i] = ValidationError{
			field:   field,
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe, field),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// Validate is ValidateStruct returning a plain error.
func Validate(s interface{}) error {
	if verr := ValidateStruct(s); verr != nil {
		return verr
	}
	return nil
}

// tagName prefers the koanf tag, then json, then the Go field name.
func tagName(f reflect.StructField) string {
	for _, key := range []string{"koanf", "json"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validateClientID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > maxClientIDLength {
		return false
	}
	return strings.IndexFunc(id, unicode.IsSpace) < 0
}

func validateFeature(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	for _, known := range features.Known() {
		if name == known {
			return true
		}
	}
	return false
}

var errorMessageTemplates = map[string]string{
	"required":      "%s is required",
	"clientid":      "%s must be a client identifier without whitespace",
	"feature":       "%s must be a known feature name",
	"hostname_port": "%s must be a host:port address",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError, field string) string {
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
