package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"snipper/internal/types"
)

// ValidationError describes one failed struct-tag rule.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validator wraps go-playground/validator with the custom tags used by
// request structs.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator registers:
//   - is_timezone: the value loads as an IANA location.
//
// Field names in errors follow the json tag.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("is_timezone", validateTimezone)
	return &Validator{validate: v, logger: logger}
}

// ValidateStruct runs the struct tags on s. Failures come back as a
// validation AppError whose details carry every failed field; the code is
// taken from the first failure.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("struct validation failed unexpectedly", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return types.NewAppErrorWithDetails(
		tagToErrorCode(verrs[0].Tag()),
		out[0].Message,
		err,
		map[string]any{"validation_errors": out},
	)
}

func tagToErrorCode(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case "is_timezone":
		return types.ErrCodeValidationInvalidTimezone
	default:
		return types.ErrCodeValidationInvalidJSON
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "is_timezone":
		return fe.Field() + " must be an IANA timezone name"
	case "min", "max":
		return fe.Field() + " must be within " + fe.Tag() + "=" + fe.Param()
	default:
		return fe.Field() + " failed " + fe.Tag()
	}
}

func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
