package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewValidationErrors(t *testing.T) {
	single := NewValidationErrors([]ValidationError{{Field: "file", Message: "file is required"}})
	assert.Equal(t, http.StatusBadRequest, single.StatusCode)
	assert.Equal(t, "file is required", single.Error())

	multi := NewValidationErrors([]ValidationError{
		{Field: "file", Message: "file is required"},
		{Field: "emailColumnIndex", Message: "emailColumnIndex is required"},
	})
	assert.Equal(t, "Request validation failed", multi.Message)
	assert.Len(t, multi.Details.(ValidationErrors).Errors, 2)
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("report")
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, "report not found", err.Error())
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	p := NewProblemDetails(http.StatusConflict, TypeConflict, "Conflict", "busy", "/x").
		WithExtension("status", "overridden").
		WithExtension("job", "abc")

	data, err := p.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "/errors/conflict",
		"title": "Conflict",
		"status": 409,
		"detail": "busy",
		"instance": "/x",
		"message": "busy",
		"job": "abc"
	}`, string(data))
}
