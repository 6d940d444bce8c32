package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go/packages/ssestream"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Message             string    `json:"message"`
	CharacterID         string    `json:"character_id,omitempty"`
	SystemPrompt        string    `json:"system_prompt,omitempty"`
	Memory              string    `json:"memory,omitempty"`
	ConversationHistory []message `json:"conversation_history,omitempty"`
	Model               string    `json:"model,omitempty"`
}

type streamEvent struct {
	Token string `json:"token"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

type contextView struct {
	CharacterID       string `json:"character_id"`
	ConversationCount int    `json:"conversation_count"`
	Conversations     []struct {
		User      string    `json:"user"`
		Assistant string    `json:"assistant"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"conversations"`
	Context *struct {
		SystemPrompt string    `json:"system_prompt"`
		Memory       string    `json:"memory"`
		History      []message `json:"history"`
	} `json:"context"`
}

type gatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newGatewayClient(baseURL, token string) *gatewayClient {
	return &gatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

func (c *gatewayClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *gatewayClient) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	var e struct {
		Detail string `json:"detail"`
	}
	body, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, e.Detail)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// streamChat posts to /chat/stream and calls onToken for each token. It
// returns the full reply once the done event arrives.
func (c *gatewayClient) streamChat(ctx context.Context, payload chatPayload, onToken func(string)) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/stream", payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return "", statusError(resp)
	}

	dec := ssestream.NewDecoder(resp)
	defer dec.Close()

	var full strings.Builder
	for dec.Next() {
		var ev streamEvent
		if err := json.Unmarshal(dec.Event().Data, &ev); err != nil {
			continue
		}
		switch {
		case ev.Error != "":
			return full.String(), fmt.Errorf("stream error: %s", ev.Error)
		case ev.Done:
			return full.String(), nil
		default:
			full.WriteString(ev.Token)
			onToken(ev.Token)
		}
	}
	if err := dec.Err(); err != nil {
		return full.String(), err
	}
	return full.String(), fmt.Errorf("stream closed before completion")
}

func (c *gatewayClient) getContext(ctx context.Context, characterID string) (*contextView, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/context/"+url.PathEscape(characterID), nil)
	if err != nil {
		return nil, err
	}
	var view contextView
	if err := c.doJSON(req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *gatewayClient) deleteContext(ctx context.Context, characterID string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/context/"+url.PathEscape(characterID), nil)
	if err != nil {
		return false, err
	}
	var res struct {
		Deleted bool `json:"deleted"`
	}
	if err := c.doJSON(req, &res); err != nil {
		return false, err
	}
	return res.Deleted, nil
}

func (c *gatewayClient) saveContext(ctx context.Context, characterID, systemPrompt, memory string, history []message) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/context/save", map[string]any{
		"character_id":         characterID,
		"system_prompt":        systemPrompt,
		"memory":               memory,
		"conversation_history": history,
	})
	if err != nil {
		return err
	}
	var res map[string]any
	return c.doJSON(req, &res)
}
