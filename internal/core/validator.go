package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"willitrain/internal/types"
)

// ValidationError is one failed field rule, reported to clients under
// details.validation_errors.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects every failed rule for a struct.
type ValidationResult struct {
	Errors []ValidationError
}

func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator for request DTOs. Field names in
// reports use the json tag.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{validate: v, logger: logger}
}

// Check runs the struct rules and returns every failure.
func (v *Validator) Check(s any) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: a programming error, not bad input.
		v.logger.Error("validator misuse", "error", err, "type", fmt.Sprintf("%T", s))
		return ValidationResult{Errors: []ValidationError{{
			Code:    string(types.ErrCodeValidationInvalidBody),
			Message: "request could not be validated",
		}}}
	}

	result := ValidationResult{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    string(codeForTag(fe.Tag())),
			Message: messageFor(fe),
		})
	}
	return result
}

// ValidateStruct returns nil or an AppError whose code is that of the first
// failure, with all failures under details.validation_errors.
func (v *Validator) ValidateStruct(s any) error {
	result := v.Check(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case "latitude":
		return types.ErrCodeValidationInvalidLat
	case "longitude":
		return types.ErrCodeValidationInvalidLon
	case "datetime":
		return types.ErrCodeValidationInvalidDate
	default:
		return types.ErrCodeValidationInvalidBody
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "latitude":
		return fmt.Sprintf("%s must be between -90 and 90", fe.Field())
	case "longitude":
		return fmt.Sprintf("%s must be between -180 and 180", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must match %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
