package validator

import (
	"errors"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	ierr "github.com/revuo/revuo/internal/errors"
)

var (
	validate *validator.Validate
	once     sync.Once

	planKeyRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,62}$`)
)

// GetValidator returns the shared validator with the custom tags registered.
func GetValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("plan_key", func(fl validator.FieldLevel) bool {
			return planKeyRegex.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateRequest runs struct tag validation and converts failures into ErrValidation.
func ValidateRequest(req interface{}) error {
	err := GetValidator().Struct(req)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return ierr.WithError(err).
			WithHint("Request validation failed").
			Mark(ierr.ErrValidation)
	}

	details := make(map[string]any, len(validationErrs))
	for _, fieldErr := range validationErrs {
		details[fieldErr.Field()] = fieldErr.Tag()
	}

	return ierr.WithError(err).
		WithHint("Request validation failed").
		WithReportableDetails(details).
		Mark(ierr.ErrValidation)
}
