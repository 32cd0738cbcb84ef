// Package streamclient consumes the chat API from the client side: it
// submits a turn, decodes the event stream incrementally and reconciles the
// finished assistant message.
package streamclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const dataPrefix = "data: "

// FailureMessage replaces the in-progress assistant text whenever the
// server terminates a stream with an error frame. Users never see raw
// internal errors.
const FailureMessage = "Sorry, I encountered an error. Please try again."

// ErrNoTerminalFrame is returned when the stream ends without a done or
// error frame.
var ErrNoTerminalFrame = errors.New("streamclient: stream ended without a terminal frame")

type frame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// Conversation mirrors the server's conversation summary.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Client talks to a chat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: streams stay open for the duration of a turn.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamMessage submits one turn and consumes the resulting event stream.
// Each chunk's text is forwarded to onChunk (when non-nil) as it arrives and
// accumulated into the returned assistant message. Malformed frames are
// skipped. An error frame discards the accumulated text and yields
// FailureMessage instead.
func (c *Client) StreamMessage(ctx context.Context, conversationID, message string, onChunk func(text string)) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"conversationId": conversationID,
		"message":        message,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limited := io.LimitReader(resp.Body, 4096)
		body, _ := io.ReadAll(limited)
		return "", fmt.Errorf("streamclient: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Line-based buffering: a frame split across read boundaries is
	// reassembled by the reader, never dropped.
	reader := bufio.NewReader(resp.Body)
	var assistant strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return assistant.String(), ErrNoTerminalFrame
			}
			return assistant.String(), err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		var f frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, dataPrefix)), &f); err != nil {
			// Malformed frames must not abort the stream.
			continue
		}
		switch f.Type {
		case "chunk":
			assistant.WriteString(f.Content)
			if onChunk != nil {
				onChunk(f.Content)
			}
		case "done":
			return assistant.String(), nil
		case "error":
			return FailureMessage, nil
		}
	}
}

// CreateConversation creates a conversation for the given user.
func (c *Client) CreateConversation(ctx context.Context, userID, mode, title string) (*Conversation, error) {
	var conv Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/conversations",
		map[string]string{"userId": userID, "mode": mode, "title": title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	var list []Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/conversations/"+userID, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/chat/conversations/"+conversationID,
		map[string]string{"userId": userID}, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("streamclient: decode response: %w", err)
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = resp.Status
		}
		return fmt.Errorf("streamclient: %s", env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("streamclient: decode data: %w", err)
		}
	}
	return nil
}
