// Package wecom delivers relay payloads to a WeCom group-robot webhook
// with optional HMAC request signing.
package wecom

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sungwon/wecom-relay/internal/relay"
)

// Config holds webhook endpoint settings.
type Config struct {
	// URL is the group-robot webhook URL.
	URL string
	// Secret enables request signing when non-empty.
	Secret string
}

// Webhook sends payloads to a WeCom group-robot webhook endpoint.
type Webhook struct {
	url    string
	secret string
	client HTTPClient
	now    func() time.Time
}

// NewWebhook creates a Webhook sender from the given configuration.
func NewWebhook(cfg Config, client HTTPClient) *Webhook {
	return &Webhook{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: client,
		now:    time.Now,
	}
}

// Result contains the outcome of a successful delivery.
type Result struct {
	StatusCode int
	Timestamp  time.Time
}

// wecomMessage matches the group-robot send JSON schema for text messages.
type wecomMessage struct {
	MsgType string    `json:"msgtype"`
	Text    wecomText `json:"text"`
}

type wecomText struct {
	Content string `json:"content"`
}

// wecomResponse is the API response envelope. WeCom reports business
// failures as HTTP 200 with a nonzero errcode.
type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Send posts one payload to the webhook. Failures are returned as
// *WebhookError classified permanent or transient; use IsPermanent and
// IsTransient to route retries.
func (w *Webhook) Send(ctx context.Context, payload *relay.OutboundPayload) (*Result, error) {
	body, err := json.Marshal(wecomMessage{
		MsgType: string(payload.Kind),
		Text:    wecomText{Content: payload.Text},
	})
	if err != nil {
		return nil, fmt.Errorf("wecom: marshal message: %w", err)
	}

	resp, err := w.client.Do(&HTTPRequest{
		Method: "POST",
		URL:    SignedURL(w.url, w.secret, w.now().UnixMilli()),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("wecom: send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, string(resp.Body))
	}

	var apiResp wecomResponse
	if err := json.Unmarshal(resp.Body, &apiResp); err == nil && apiResp.ErrCode != 0 {
		return nil, classifyErrCode(resp.StatusCode, apiResp.ErrCode, apiResp.ErrMsg)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Timestamp:  w.now(),
	}, nil
}
