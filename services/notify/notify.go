// Package notify sends transactional email through the platform's email
// relay service. A failed send surfaces as a 503 so users see the
// temporarily-unavailable page rather than a silent drop.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
)

// Email is one outbound message
type Email struct {
	To      []string `json:"to"`
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	ReplyTo string   `json:"replyTo,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Client handles communication with the email relay
type Client struct {
	baseURL     string
	apiKey      string
	fromName    string
	fromAddress string
	httpClient  *http.Client
}

// New creates a new email client
func New(baseURL, apiKey, fromName, fromAddress string) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		fromName:    fromName,
		fromAddress: fromAddress,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers one email. Transport and relay failures are returned as
// unavailable errors so handlers render the 503 page.
func (c *Client) Send(ctx context.Context, email Email) error {
	if email.From == "" {
		email.From = fmt.Sprintf("%s <%s>", c.fromName, c.fromAddress)
	}

	reqBody, err := json.Marshal(email)
	if err != nil {
		return apierrors.Internal("failed to marshal email", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return apierrors.Internal("failed to create email request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("email send failed", "error", err, "tags", email.Tags)
		return apierrors.Unavailable("failed to send email", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		slog.Error("email relay returned error", "status", resp.StatusCode, "body", string(respBody), "tags", email.Tags)
		return apierrors.Unavailable(fmt.Sprintf("email relay returned status %d", resp.StatusCode), nil)
	}

	slog.Info("email sent", "subject", email.Subject, "tags", email.Tags)
	return nil
}
