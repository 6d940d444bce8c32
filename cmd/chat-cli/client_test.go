package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/stream", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var p chatPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "hi", p.Message)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamChatCollectsTokens(t *testing.T) {
	srv := sseServer(t, `{"token":"Hel"}`, `{"token":"lo"}`, `{"done":true}`)
	c := newGatewayClient(srv.URL, "tok")

	var seen []string
	reply, err := c.streamChat(context.Background(), chatPayload{Message: "hi"}, func(s string) { seen = append(seen, s) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
	assert.Equal(t, []string{"Hel", "lo"}, seen)
}

func TestStreamChatErrorEvent(t *testing.T) {
	srv := sseServer(t, `{"token":"a"}`, `{"error":"engine timed out"}`)
	c := newGatewayClient(srv.URL, "tok")

	reply, err := c.streamChat(context.Background(), chatPayload{Message: "hi"}, func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine timed out")
	assert.Equal(t, "a", reply)
}

func TestStreamChatTruncated(t *testing.T) {
	srv := sseServer(t, `{"token":"a"}`)
	c := newGatewayClient(srv.URL, "tok")

	_, err := c.streamChat(context.Background(), chatPayload{Message: "hi"}, func(string) {})
	assert.Error(t, err)
}

func TestStatusErrorUsesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail":"validation failed: message is required"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := newGatewayClient(srv.URL, "").streamChat(context.Background(), chatPayload{}, func(string) {})
	require.Error(t, err)
	assert.Equal(t, "status 400: validation failed: message is required", err.Error())
}

func TestContextCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"character_id":"ada","conversation_count":1,"conversations":[{"user":"hi","assistant":"hey"}]}`)
		case http.MethodDelete:
			fmt.Fprint(w, `{"deleted":true}`)
		}
	}))
	t.Cleanup(srv.Close)
	c := newGatewayClient(srv.URL, "")

	view, err := c.getContext(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, 1, view.ConversationCount)
	assert.Equal(t, "hey", view.Conversations[0].Assistant)

	deleted, err := c.deleteContext(context.Background(), "ada")
	require.NoError(t, err)
	assert.True(t, deleted)
}
