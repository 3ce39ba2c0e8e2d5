package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-roomchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	tests := []struct {
		name  string
		value any
		log   string
	}{
		{"error value", errors.New("test panic"), "panic: test panic"},
		{"string value", "something broke", "panic: something broke"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			app := &GoChatApp{
				log: testutil.TestLogger(t),
			}
			app.log.SetOutput(buf)

			panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tc.value)
			})

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			app.errorHandler(panicHandler).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, "close", rr.Header().Get("Connection"))
			assert.Contains(t, buf.String(), tc.log)

			var apiErr ApiError
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
			assert.Equal(t, ApiError{StatusCode: 500, Message: "internal server error"}, apiErr)
		})
	}
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &GoChatApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	app.errorHandler(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestApiError(t *testing.T) {
	err := NewInternalServerError(errors.New("boom"))
	assert.Equal(t, "internal server error: boom", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "boom")

	assert.Equal(t, "forbidden", NewForbiddenError().Error())
	assert.Equal(t, http.StatusServiceUnavailable, NewServiceUnavailableError(nil).StatusCode)
}
