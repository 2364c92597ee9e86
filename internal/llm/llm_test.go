package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingd/internal/fetch"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, req chatRequest)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return New(fetch.New(fetch.Config{Token: "sk-test"}), srv.URL+"/v1/", "local-model")
}

func TestComplete(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, req chatRequest) {
		assert.Equal(t, "local-model", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Ana (pm), Bo (eng)"}}]}`)
	})

	got, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "identify"},
		{Role: RoleUser, Content: "transcript"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana (pm), Bo (eng)", got)
}

func TestCompleteNoChoices(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	_, err := c.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStream(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, req chatRequest) {
		assert.True(t, req.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"the ", "team ", "agreed"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	got, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "sum"}}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "the team agreed", got)
	assert.Equal(t, []string{"the ", "team ", "agreed"}, deltas)
}

func TestStreamError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"type\":\"overloaded\",\"message\":\"try later\"}}\n\n")
	})

	got, err := c.Stream(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "try later")
	assert.Equal(t, "par", got)
}

func TestSSEScannerMultiline(t *testing.T) {
	sc := newSSEScanner(strings.NewReader("event: x\ndata: a\ndata: b\r\n\ndata: tail"))
	require.True(t, sc.Next())
	assert.Equal(t, "a\nb", sc.Data())
	require.True(t, sc.Next())
	assert.Equal(t, "tail", sc.Data())
	assert.False(t, sc.Next())
	assert.NoError(t, sc.Err())
}
