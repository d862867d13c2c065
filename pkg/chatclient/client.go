// Package chatclient is the Go client for the chat API: a thin HTTP wrapper
// plus the polling loop that stands in for push delivery.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client calls the chat endpoints with the caller's auth cookie.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string // kh_token cookie value
}

func New(baseURL, token string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		BaseURL: baseURL,
		Token:   token,
	}
}

type Thread struct {
	ID              string    `json:"id"`
	JobID           *uint     `json:"job_id,omitempty"`
	JobTitle        string    `json:"job_title,omitempty"`
	EmployerID      string    `json:"employer_id"`
	WorkerID        string    `json:"worker_id"`
	IsAdminThread   bool      `json:"is_admin_thread"`
	LastMessageText string    `json:"last_message_text"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
}

type Message struct {
	ID        uint      `json:"id"`
	ThreadID  string    `json:"thread_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Created bool            `json:"created"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: "kh_token", Value: c.Token})

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("chat api: %s (status %d)", msg, resp.StatusCode)
	}
	return &env, nil
}

// EnsureThread finds or creates the thread for a job + counterpart pair.
func (c *Client) EnsureThread(ctx context.Context, jobID uint, participantID string) (*Thread, bool, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/chat/threads", map[string]interface{}{
		"job_id":         jobID,
		"participant_id": participantID,
	})
	if err != nil {
		return nil, false, err
	}
	var t Thread
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return nil, false, err
	}
	return &t, env.Created, nil
}

// EnsureAdminThread finds or creates the caller's contact-admin thread.
func (c *Client) EnsureAdminThread(ctx context.Context) (*Thread, bool, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/chat/threads", map[string]interface{}{
		"admin": true,
	})
	if err != nil {
		return nil, false, err
	}
	var t Thread
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return nil, false, err
	}
	return &t, env.Created, nil
}

func (c *Client) ListThreads(ctx context.Context) ([]Thread, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/chat/threads", nil)
	if err != nil {
		return nil, err
	}
	var out []Thread
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchMessages returns messages in send order. afterID = 0 fetches from the
// beginning; otherwise only messages newer than the cursor come back.
func (c *Client) FetchMessages(ctx context.Context, threadID string, afterID uint, limit int) ([]Message, error) {
	path := "/api/chat/threads/" + threadID + "/messages"
	sep := "?"
	if afterID > 0 {
		path += sep + "after_id=" + strconv.FormatUint(uint64(afterID), 10)
		sep = "&"
	}
	if limit > 0 {
		path += sep + "limit=" + strconv.Itoa(limit)
	}

	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out []Message
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, threadID, body string) (*Message, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/chat/threads/"+threadID+"/messages", map[string]string{
		"body": body,
	})
	if err != nil {
		return nil, err
	}
	var m Message
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) MarkRead(ctx context.Context, threadID string) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/chat/threads/"+threadID+"/read", nil)
	return err
}

func (c *Client) UnreadTotal(ctx context.Context) (int64, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/chat/unread-total", nil)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := json.Unmarshal(env.Data, &total); err != nil {
		return 0, err
	}
	return total, nil
}
