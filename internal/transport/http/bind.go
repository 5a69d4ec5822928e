package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "csvmail/internal/errors"
	"csvmail/internal/tabular"
	api "csvmail/pkg/contracts/api/v1"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

// RequestValidator checks contract structs and reports failures by their
// json field names.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a validator using json tag names in errors.
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// Struct validates v and returns an *apierrors.APIError on failure.
func (rv *RequestValidator) Struct(v interface{}) error {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	validationErrors := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		validationErrors = append(validationErrors, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(validationErrors)
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "numeric":
		return fmt.Sprintf("%s must be a non-negative integer", field)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "alphanum":
		return fmt.Sprintf("%s must be a valid file token", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// parseUpload reads the multipart form and returns the "file" part. The
// caller closes the file.
func parseUpload(r *http.Request) (io.ReadCloser, string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", maxErr
		}
		return nil, "", apierrors.InvalidRequestWithError(err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", apierrors.ErrMissingFile
		}
		return nil, "", apierrors.InvalidRequestWithError(err)
	}
	return file, header.Filename, nil
}

// decodeJSON decodes a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return maxErr
		}
		return apierrors.InvalidRequestWithError(err)
	}
	return nil
}

// columnIndex parses a validated index. Negative values parse and are
// reported by the column resolver.
func columnIndex(raw api.ColumnIndex) (int, error) {
	idx, err := tabular.ParseColumnIndex(string(raw))
	if err != nil {
		return 0, apierrors.ErrValidation("emailColumnIndex", err.Error())
	}
	return idx, nil
}

// delimiter converts the optional single-character delimiter field.
func delimiter(raw string) rune {
	if raw == "" {
		return 0
	}
	return []rune(raw)[0]
}
