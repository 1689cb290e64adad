package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Sender delivers one rendered email. Implementations treat any transport or
// non-2xx failure as retriable; the delivery worker decides the retry policy.
type Sender interface {
	Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error
}

// Client talks to a Postmark-compatible transactional email API.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	sender    string
	authToken string
}

// NewClient builds an API client. timeout applies per send attempt.
func NewClient(baseURL, sender, authToken string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing email API base url: %w", err)
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   u,
		sender:    sender,
		authToken: authToken,
	}, nil
}

type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Send posts one email to the API. A non-2xx status is an error so the caller
// can requeue.
func (c *Client) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	endpoint := c.baseURL.JoinPath("email")

	payload, err := json.Marshal(sendEmailRequest{
		From:     c.sender,
		To:       recipient,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return fmt.Errorf("encoding email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending email to %s: %w", recipient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}
	return nil
}
