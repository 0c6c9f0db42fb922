package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteIncludesDetailInDevelopment(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/federation/token-exchange", nil)

	Write(rec, req, http.StatusBadRequest, TypeInvalidGrant, "Invalid Grant", errors.New("subject token inactive"), "development")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, TypeInvalidGrant, p.Type)
	assert.Equal(t, "subject token inactive", p.Detail)
	assert.Equal(t, "/api/federation/token-exchange", p.Instance)
}

func TestWriteHidesDetailInProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/federation/instances", nil)

	Write(rec, req, http.StatusInternalServerError, TypeInternal, "Internal Error", errors.New("pool exhausted"), "production")

	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), p.Detail)
	assert.NotContains(t, rec.Body.String(), "pool exhausted")
}

func TestWriteProblemCarriesFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteProblem(rec, ProblemDetails{
		Type:   TypeInvalidRequest,
		Title:  "Validation Failed",
		Status: http.StatusUnprocessableEntity,
		Errors: map[string]any{"resource.classification": "unknown level"},
	})

	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unknown level", p.Errors["resource.classification"])
}
