package respond

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestError_CodedError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := apperr.New(apperr.CodeValidation, "price must be positive").WithDetails(map[string]any{"field": "price"})

	Error(context.Background(), logger.Nop(), rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "price must be positive", env.Error.Message)
	assert.Equal(t, map[string]any{"field": "price"}, env.Error.Details)
}

func TestError_WrappedStateConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	base := apperr.New(apperr.CodeStateConflict, "invalid transition")
	err := apperr.Wrap(apperr.CodeStateConflict, base, "cannot move post")

	Error(context.Background(), nil, rec, err)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "cannot move post", decodeEnvelope(t, rec).Error.Message)
}

func TestError_ForeignErrorIsHidden(t *testing.T) {
	rec := httptest.NewRecorder()

	Error(context.Background(), logger.Nop(), rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Equal(t, "internal server error", env.Error.Message)
	assert.Nil(t, env.Error.Details)
}

func TestError_UnauthorizedHasNoDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := apperr.New(apperr.CodeUnauthorized, "invalid token").WithDetails("secret")

	Error(context.Background(), nil, rec, err)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, decodeEnvelope(t, rec).Error.Details)
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	JSON(rec, http.StatusCreated, map[string]string{"id": "post-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"post-1"}`, rec.Body.String())
}
