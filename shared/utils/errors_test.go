package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestStatusOf(t *testing.T) {
	t.Parallel()

	sentinel := BadRequest("bad input")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"http error", NotFound("Article not found"), http.StatusNotFound, "Article not found"},
		{"wrapped sentinel", fmt.Errorf("%w: extra detail", sentinel), http.StatusBadRequest, "bad input"},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, "Resource not found"},
		{"duplicate key", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), http.StatusConflict, DuplicateValueMessage},
		{"open breaker", ErrCircuitOpen, http.StatusServiceUnavailable, "Service temporarily unavailable"},
		{"internal keeps cause private", Internal("Failed to save", errors.New("pq: relation missing")), http.StatusInternalServerError, "Failed to save"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, msg := StatusOf(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RespondError(c, Conflict("email already in use"))

	require.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())

	var body APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "email already in use", body.Error)
}

func TestHTTPError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root")
	err := Internal("failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed: root", err.Error())
}
