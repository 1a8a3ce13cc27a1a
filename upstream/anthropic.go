package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const anthropicVersion = "2023-06-01"

// Chat relay defaults applied when the dashboard omits them.
const (
	DefaultChatModel     = "claude-3-opus-20240229"
	DefaultChatMaxTokens = 4000
)

var defaultChatTemperature = 0.7

// ChatMessage is one entry of the dashboard's message list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the structured payload the dashboard posts to the
// relay. System messages travel inside Messages; the relay moves them
// to the upstream's dedicated system field.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Messages    []ChatMessage `json:"messages"`
}

// Validate checks the request shape before any upstream call is made.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages list must not be empty")
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("message %d has no role", i)
		}
	}
	return nil
}

// anthropicRequest is the wire format of the Messages API.
type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat relays completion requests to the Anthropic Messages API.
type Chat struct {
	http *resty.Client
}

// NewChat creates a chat relay client. timeout bounds each call.
func NewChat(apiKey, baseURL string, timeout time.Duration) *Chat {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetHeader("Content-Type", "application/json")

	return &Chat{http: rc}
}

// Relay forwards a chat request upstream and returns the upstream's
// response body verbatim on success. Transport failures and non-200
// statuses come back as *Error so the handler can translate them.
func (c *Chat) Relay(ctx context.Context, req ChatRequest) (json.RawMessage, error) {
	// Pull system messages out of the list; the Messages API carries
	// them in a separate field.
	var systemParts []string
	messages := make([]ChatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		messages = append(messages, msg)
	}

	upReq := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if upReq.Model == "" {
		upReq.Model = DefaultChatModel
	}
	if upReq.MaxTokens == 0 {
		upReq.MaxTokens = DefaultChatMaxTokens
	}
	if upReq.Temperature == nil {
		upReq.Temperature = &defaultChatTemperature
	}
	if len(systemParts) > 0 {
		upReq.System = strings.Join(systemParts, "\n")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(upReq).
		Post("/v1/messages")
	if err != nil {
		return nil, transportError(NameChat, err)
	}
	if resp.IsError() {
		var body anthropicErrorBody
		msg := ""
		if json.Unmarshal(resp.Body(), &body) == nil {
			msg = body.Error.Message
		}
		return nil, rejectedError(NameChat, resp.StatusCode(), msg)
	}

	return json.RawMessage(resp.Body()), nil
}
