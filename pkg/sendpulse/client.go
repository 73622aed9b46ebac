package sendpulse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

var errCredentialsRequired = errors.New("sendpulse client id and secret are required")

// Email is one outgoing SMTP API message.
type Email struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Client sends transactional email through the SendPulse SMTP API. The
// OAuth access token is cached by the token source until it expires.
type Client struct {
	http      *http.Client
	baseURL   string
	fromEmail string
	fromName  string
}

func NewClient(ctx context.Context, cfg config.SendPulseConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errCredentialsRequired
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("sendpulse from email is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/oauth/access_token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: 15 * time.Second}
	if logg != nil {
		logg.Info(ctx, "sendpulse client initialized")
	}
	return &Client{
		http:      creds.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base)),
		baseURL:   baseURL,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

type address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type emailBody struct {
	HTML    string    `json:"html"`
	Text    string    `json:"text,omitempty"`
	Subject string    `json:"subject"`
	From    address   `json:"from"`
	To      []address `json:"to"`
}

// Send delivers msg. The HTML part is base64 encoded as the API requires.
func (c *Client) Send(ctx context.Context, msg Email) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return errors.New("recipient email is required")
	}
	payload, err := json.Marshal(map[string]emailBody{"email": {
		HTML:    base64.StdEncoding.EncodeToString([]byte(msg.HTML)),
		Text:    msg.Text,
		Subject: msg.Subject,
		From:    address{Name: c.fromName, Email: c.fromEmail},
		To:      []address{{Name: msg.ToName, Email: msg.ToEmail}},
	}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/smtp/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendpulse rejected email: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded struct {
		Result bool `json:"result"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil && !decoded.Result {
		return fmt.Errorf("sendpulse did not accept email: %s", strings.TrimSpace(string(raw)))
	}
	return nil
}
