// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// identifierPattern matches party and participant ids: a leading alphanumeric
// followed by up to 127 characters of [A-Za-z0-9_.:-].
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:\-]{0,127}$`)

// FieldError is one failed rule. Field is the wire name of the field.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

func (e FieldError) Error() string { return e.Message }

// RequestValidationError collects every failed rule of one validation call.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	return strings.Join(ve.messages(), "; ")
}

func (ve *RequestValidationError) messages() []string {
	out := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		out[i] = f.Message
	}
	return out
}

// APIError mirrors models.APIError; models cannot be imported from here.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError shapes the error for the REST envelope. A single failure carries
// its field and tag in Details; several failures are listed under "fields".
func (ve *RequestValidationError) ToAPIError() *APIError {
	apiErr := &APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	switch len(ve.Fields) {
	case 0:
	case 1:
		f := ve.Fields[0]
		apiErr.Message = f.Message
		apiErr.Details = map[string]interface{}{"field": f.Field, "tag": f.Tag}
	default:
		fields := make([]map[string]interface{}, len(ve.Fields))
		for i, f := range ve.Fields {
			fields[i] = map[string]interface{}{"field": f.Field, "tag": f.Tag, "message": f.Message}
		}
		apiErr.Message = ve.Error()
		apiErr.Details = map[string]interface{}{"fields": fields}
	}
	return apiErr
}

// GetValidator returns the shared validator with the custom tags registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		register("identifier", func(fl validator.FieldLevel) bool {
			return fl.Field().Kind() == reflect.String && identifierPattern.MatchString(fl.Field().String())
		})
		register("finite", func(fl validator.FieldLevel) bool {
			switch fl.Field().Kind() {
			case reflect.Float32, reflect.Float64:
				v := fl.Field().Float()
				return !math.IsNaN(v) && !math.IsInf(v, 0)
			}
			return false
		})
	})
	return validate
}

// jsonFieldName reports wire names (partyId, issuedAt) instead of Go names.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

func register(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// ValidateStruct runs the struct's validate tags. It returns nil on success.
func ValidateStruct(s interface{}) *RequestValidationError {
	return convert(GetValidator().Struct(s), "")
}

// ValidateVar checks a single value against tag and reports it under name.
func ValidateVar(name string, value interface{}, tag string) *RequestValidationError {
	return convert(GetValidator().Var(value, tag), name)
}

// IsIdentifier reports whether s is a usable party or participant id.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func convert(err error, name string) *RequestValidationError {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := name
		if field == "" {
			field = fe.Field()
		}
		if field == "" {
			field = "value"
		}
		out.Fields = append(out.Fields, FieldError{
			Field:   field,
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe, field),
		})
	}
	return out
}

func describe(fe validator.FieldError, field string) string {
	param := fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "identifier":
		return field + " must start with a letter or digit and contain only letters, digits, '_', '.', ':' or '-' (max 128)"
	case "finite":
		return field + " must be a finite number"
	case "hostname":
		return field + " must be a valid hostname"
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
