// Package assistant is the client side of the assistant service: it
// opens the chat event stream, runs requirement detection, and reads
// stored conversations to seed new sessions.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/assistant/detect"
	"github.com/caseflow/caseflow-backend/internal/assistant/session"
)

const (
	chatPath          = "/api/v1/assistant/chat"
	detectPath        = "/api/v1/assistant/detect"
	conversationsPath = "/api/v1/assistant/conversations"

	// detectTimeout bounds the supplementary detection call; the chat
	// stream itself has no client-side deadline.
	detectTimeout = 15 * time.Second
)

// Client talks to the assistant service. It implements
// session.Transport and detect.Detector.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logrus.Entry
}

// NewClient creates a client for the assistant service at baseURL.
// token, when non-empty, is sent as a bearer credential.
func NewClient(baseURL, token string, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
		log:     log,
	}
}

// OpenStream posts the chat request and hands back the raw event-stream
// body. Non-OK statuses and missing bodies are stream-level errors.
func (c *Client) OpenStream(ctx context.Context, req session.ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("assistant service error: %s - %s", resp.Status, string(respBody))
	}
	if resp.Body == nil {
		return nil, errors.New("assistant service returned no body")
	}

	return resp.Body, nil
}

// detectRequest is the POST body of the detection endpoint.
type detectRequest struct {
	Messages []session.Message `json:"messages"`
}

// Detect sends the sampled messages to the detection endpoint.
func (c *Client) Detect(ctx context.Context, messages []session.Message) (*detect.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	body, err := json.Marshal(detectRequest{Messages: messages})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+detectPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detection error: %s - %s", resp.Status, string(respBody))
	}

	var result detect.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding detection response: %w", err)
	}
	return &result, nil
}

// conversationResponse is the stored-conversation read used to seed a
// session when the surface reopens an existing chat.
type conversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []session.Message `json:"messages"`
}

// ConversationSummary is one stored conversation in a listing.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListConversations fetches the stored conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+conversationsPath, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("listing conversations: %s - %s", resp.Status, string(respBody))
	}

	var out struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding conversation list: %w", err)
	}
	return out.Conversations, nil
}

// DeleteConversation removes a stored conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	url := fmt.Sprintf("%s%s/%s", c.baseURL, conversationsPath, conversationID)
	httpReq, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("deleting conversation: %s - %s", resp.Status, string(respBody))
	}
	return nil
}

// History fetches a stored conversation's messages.
func (c *Client) History(ctx context.Context, conversationID string) ([]session.Message, error) {
	url := fmt.Sprintf("%s%s/%s/messages", c.baseURL, conversationsPath, conversationID)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("loading conversation: %s - %s", resp.Status, string(respBody))
	}

	var conv conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	return conv.Messages, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
