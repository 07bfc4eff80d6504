// Package chatclient talks to the streaming chat API and keeps the caller's
// transcript reconciled with server history.
package chatclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"github.com/suPer8Hu/streamchat/internal/transcript"
)

type Client struct {
	http  *resty.Client
	state *transcript.ConversationState
	seq   atomic.Int64
}

func New(baseURL, token string) *Client {
	r := resty.New().SetBaseURL(strings.TrimRight(baseURL, "/"))
	if token != "" {
		r.SetAuthToken(token)
	}
	return &Client{http: r, state: transcript.NewConversationState()}
}

func (c *Client) State() *transcript.ConversationState { return c.state }

// Transcript is the merged, duplicate-free view of the conversation.
func (c *Client) Transcript() []transcript.Message { return c.state.Transcript() }

// NewChat forgets the current session.
func (c *Client) NewChat() { c.state.Reset() }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

func apiError(status int, body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Message == "" {
		return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Code: env.Code, Message: env.Message}
}

// LoadHistory switches to sessionID and replaces the loaded history with the
// server's copy.
func (c *Client) LoadHistory(ctx context.Context, sessionID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("session_id", sessionID).
		Get("/chat/history")
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return apiError(res.StatusCode(), res.Body())
	}

	var env envelope
	if err := json.Unmarshal(res.Body(), &env); err != nil {
		return err
	}
	var data struct {
		Messages []transcript.Message `json:"messages"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return err
	}

	c.state.Adopt(sessionID)
	c.state.SetLoaded(data.Messages)
	return nil
}

type Reply struct {
	SessionID string
	StreamID  string
	Content   string
	Model     string
	// Warning is set when the server could not save the exchange.
	Warning string
}

type outMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sendBody struct {
	Messages  []outMessage `json:"messages"`
	SessionID string       `json:"session_id,omitempty"`
}

func (c *Client) nextID() string {
	return fmt.Sprintf("live-%d", c.seq.Add(1))
}

// Send streams a reply to text. onDelta, when set, sees each fragment as it
// arrives. The exchange joins the live transcript only once the server
// reports done.
func (c *Client) Send(ctx context.Context, text string, onDelta func(string)) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("chat client: empty message")
	}

	body := sendBody{SessionID: c.state.SessionID()}
	for _, m := range c.state.Transcript() {
		body.Messages = append(body.Messages, outMessage{Role: m.Role, Content: m.Content})
	}
	body.Messages = append(body.Messages, outMessage{Role: "user", Content: text})

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/chat/stream")
	if err != nil {
		return nil, err
	}
	raw := res.RawBody()
	defer raw.Close()

	if !res.IsSuccess() {
		b, _ := io.ReadAll(io.LimitReader(raw, 64*1024))
		return nil, apiError(res.StatusCode(), b)
	}

	reply := &Reply{
		SessionID: res.Header().Get("X-Session-Id"),
		StreamID:  res.Header().Get("X-Stream-Id"),
	}
	if reply.SessionID != "" {
		c.state.Adopt(reply.SessionID)
	}

	var b strings.Builder
	done := false
	err = readEvents(raw, func(event string, data json.RawMessage) error {
		switch event {
		case "chunk":
			var ch struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal(data, &ch); err != nil {
				return err
			}
			b.WriteString(ch.Delta)
			if onDelta != nil {
				onDelta(ch.Delta)
			}
		case "warning":
			var w struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(data, &w)
			reply.Warning = w.Message
		case "done":
			var d struct {
				SessionID string `json:"session_id"`
				Model     string `json:"model"`
			}
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			reply.Model = d.Model
			if reply.SessionID == "" {
				reply.SessionID = d.SessionID
				c.state.Adopt(d.SessionID)
			}
			done = true
		case "error":
			var e struct {
				Message string `json:"message"`
				Details string `json:"details"`
			}
			_ = json.Unmarshal(data, &e)
			if e.Details != "" {
				return fmt.Errorf("chat stream: %s (%s)", e.Message, e.Details)
			}
			return fmt.Errorf("chat stream: %s", e.Message)
		}
		return nil
	})
	reply.Content = b.String()
	if err != nil {
		return reply, err
	}
	if !done {
		return reply, errors.New("chat stream: ended without done")
	}

	c.state.AppendLive(
		transcript.Message{ID: c.nextID(), Role: "user", Content: text},
		transcript.Message{ID: c.nextID(), Role: "assistant", Content: reply.Content},
	)
	return reply, nil
}

// Cancel stops a running stream by its id.
func (c *Client) Cancel(ctx context.Context, streamID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("stream_id", streamID).
		Post("/chat/streams/{stream_id}/cancel")
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return apiError(res.StatusCode(), res.Body())
	}
	return nil
}

// readEvents calls fn for each "event:"/"data:" pair until the body ends.
func readEvents(r io.Reader, fn func(event string, data json.RawMessage) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var event string
	var data []string
	flush := func() error {
		defer func() { event, data = "", nil }()
		if event == "" && len(data) == 0 {
			return nil
		}
		if event == "" {
			event = "message"
		}
		return fn(event, json.RawMessage(strings.Join(data, "\n")))
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}
