// Package llm is a minimal client for OpenAI-compatible chat completion
// APIs, used to summarize sessions and identify their participants.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"meetingd/internal/fetch"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"
)

// ErrEmptyResponse is returned when a completion has no choices.
var ErrEmptyResponse = errors.New("llm: response has no choices")

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client sends chat completion requests.
type Client struct {
	http    *fetch.Client
	baseURL string
	model   string
}

// New creates a Client. httpClient carries the API key as its token.
func New(httpClient *fetch.Client, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

func (c *Client) endpoint() string {
	return c.baseURL + "/chat/completions"
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.http.PostJSON(ctx, c.endpoint(), chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// Stream requests a streamed completion, calling onDelta with each piece of
// content as it arrives, and returns the concatenated content.
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(string)) (string, error) {
	resp, err := c.http.PostJSON(ctx, c.endpoint(), chatRequest{Model: c.model, Messages: messages, Stream: true})
	if err != nil {
		return "", fmt.Errorf("llm: stream: %w", err)
	}
	defer resp.Body.Close()

	var b strings.Builder
	sc := newSSEScanner(resp.Body)
	for sc.Next() {
		data := sc.Data()
		if data == "[DONE]" {
			return b.String(), nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return b.String(), fmt.Errorf("llm: parse stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return b.String(), fmt.Errorf("llm: stream error: %s: %s", chunk.Error.Type, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			b.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return b.String(), fmt.Errorf("llm: read stream: %w", err)
	}
	// some servers close without [DONE]
	return b.String(), nil
}
