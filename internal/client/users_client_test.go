package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-workflows/internal/middleware"
)

func TestGetUsersByRoleCode(t *testing.T) {
	var gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users", r.URL.Path)
		assert.Equal(t, "DEPT HEAD", r.URL.Query().Get("role_code"))
		gotRequestID = r.Header.Get(middleware.RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"users":[{"id":"u-9"},{"id":"u-2","email":"b@example.edu"}],"total":2}`))
	}))
	defer srv.Close()

	c := NewUsersClient(srv.URL+"/", time.Second)
	ctx := middleware.WithRequestID(context.Background(), "req-7")

	ids, err := c.GetUsersByRoleCode(ctx, "DEPT HEAD")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-9", "u-2"}, ids)
	assert.Equal(t, "req-7", gotRequestID)
}

func TestGetUsersByRoleCodeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"UNAVAILABLE","error":"maintenance"}`))
	}))
	defer srv.Close()

	_, err := NewUsersClient(srv.URL, time.Second).GetUsersByRoleCode(context.Background(), "ADMIN")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "UNAVAILABLE", statusErr.Code)
	assert.Equal(t, "maintenance", statusErr.Message)
}

func TestGetUsersByRoleCodeBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewUsersClient(srv.URL, time.Second).GetUsersByRoleCode(context.Background(), "ADMIN")
	assert.ErrorContains(t, err, "failed to decode response")
}
