package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "meetingd-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"name":"pipe"}`)
	}))
	defer srv.Close()

	c := New(Config{
		UserAgent: "meetingd-test",
		Token:     "secret",
		Header:    http.Header{"Accept": {"application/vnd.github+json"}},
	})

	var out struct{ Name string }
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "pipe", out.Name)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status      int
		rateLimited bool
	}{
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := New(Config{}).Get(context.Background(), srv.URL)
			require.Error(t, err)

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, tt.rateLimited, fe.RateLimited)
			assert.Equal(t, tt.rateLimited, IsRateLimited(fmt.Errorf("wrapped: %w", err)))
			assert.Equal(t, "nope", fe.Body)
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{}).Get(context.Background(), url)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
	assert.False(t, IsRateLimited(err))
}

func TestPostJSONLeavesBodyOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer srv.Close()

	resp, err := New(Config{}).PostJSON(context.Background(), srv.URL, map[string]string{"k": "v"})
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(data))
}
