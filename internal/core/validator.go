package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"formguard/internal/types"
)

// Validator wraps go-playground/validator and reports failures as
// validation_failed AppErrors keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with FormGuard's custom tags registered.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("plan", func(fl validator.FieldLevel) bool {
		return types.PlanName(fl.Field().String()).IsValid()
	})
	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s against its `validate` tags.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		if v.logger != nil {
			v.logger.Error("validator misuse", "error", err)
		}
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not run", err)
	}

	fields := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe.Namespace())] = describeTag(fe)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationFailed, "request failed validation", err,
		map[string]any{"fields": fields})
}

// ValidateVar validates a single value against a tag expression.
func (v *Validator) ValidateVar(value any, tag string) error {
	return v.validate.Var(value, tag)
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// fieldPath drops the top-level struct name: "createFormRequest.settings.redirect_url"
// becomes "settings.redirect_url".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "plan":
		return "must be a known plan"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
