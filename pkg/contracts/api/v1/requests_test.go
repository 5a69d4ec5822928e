package api

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnIndex_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		body    string
		want    ColumnIndex
		wantErr bool
	}{
		{`{"emailColumnIndex":"2"}`, "2", false},
		{`{"emailColumnIndex":2}`, "2", false},
		{`{"emailColumnIndex":null}`, "", false},
		{`{}`, "", false},
		{`{"emailColumnIndex":1.5}`, "", true},
		{`{"emailColumnIndex":true}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var req ValidateRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.EmailColumnIndex)
		})
	}
}

func TestRequestTags(t *testing.T) {
	v := validator.New()

	assert.NoError(t, v.Struct(ProcessRequest{EmailColumnIndex: "1", RemoveEmptyEmails: "true"}))
	assert.NoError(t, v.Struct(ProcessRequest{EmailColumnIndex: "1"}))
	assert.Error(t, v.Struct(ProcessRequest{EmailColumnIndex: "1", RemoveEmptyEmails: "yes"}))
	assert.Error(t, v.Struct(PreviewRequest{}))
	assert.Error(t, v.Struct(PreviewRequest{EmailColumnIndex: "abc"}))
	assert.Error(t, v.Struct(PreviewRequest{EmailColumnIndex: "1", Delimiter: ";;"}))
	assert.Error(t, v.Struct(FilenameParam{Filename: "../etc/passwd"}))
	assert.NoError(t, v.Struct(FilenameParam{Filename: "9wE4QXQcLHnU8m6pNo8Lnp7ZuHksgYVq7BqC1ZrRhnMi"}))
}
