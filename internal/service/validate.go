package service

import (
	"time"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

var validate = validator.New()

// validateStruct runs the request through the shared validator and
// maps failures into the domain validation error.
func validateStruct(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return nil
}

// parseDate parses an optional YYYY-MM-DD request field.
func parseDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	return &t, nil
}
