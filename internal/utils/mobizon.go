package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const mobizonURL = "https://api.mobizon.kz/service/message/sendsmsmessage"

type Client struct {
	ApiKey  string
	Sender  string // optional
	DryRun  bool
	BaseURL string
	HTTP    *http.Client
}

type SendSMSResponse struct {
	Code int `json:"code"`
	Data struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewClientWithOptions(apiKey, sender string, dryRun bool) *Client {
	return &Client{
		ApiKey:  apiKey,
		Sender:  sender,
		DryRun:  dryRun,
		BaseURL: mobizonURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SendSMS delivers text through Mobizon. In dry-run mode (or without an API
// key) the message is only logged.
func (c *Client) SendSMS(ctx context.Context, to, text string) (*SendSMSResponse, error) {
	if c.DryRun || c.ApiKey == "" || c.ApiKey == "dry-run" {
		logrus.WithFields(logrus.Fields{"to": to, "sender": c.Sender}).Infof("[sms][dry-run] %s", text)
		return &SendSMSResponse{Code: 0}, nil
	}

	form := url.Values{
		"apiKey":    {c.ApiKey},
		"recipient": {to},
		"text":      {text},
	}
	if c.Sender != "" {
		form.Set("from", c.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read SMS response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("mobizon http status %d", resp.StatusCode)
	}

	var result SendSMSResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("mobizon returned error code: %d", result.Code)
	}
	logrus.WithFields(logrus.Fields{"to": to, "message_id": result.Data.MessageID}).Debug("[sms] sent")
	return &result, nil
}
