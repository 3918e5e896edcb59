package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-ops/internal/observability"
)

// Message is one transactional email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Mailer posts messages as JSON to an email provider's HTTP API.
type Mailer struct {
	Endpoint string
	Key      string
	From     string
	Client   *http.Client
}

func NewMailer(endpoint, key, from string) *Mailer {
	return &Mailer{Endpoint: endpoint, Key: key, From: from, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (m *Mailer) Send(ctx context.Context, msg Message) (err error) {
	defer func() { observability.ProviderCalls.WithLabelValues("email", observability.Outcome(err)).Inc() }()
	if msg.To == "" {
		return errors.New("email: missing recipient")
	}
	body := map[string]any{"from": m.From, "to": []string{msg.To}, "subject": msg.Subject, "html": msg.HTML}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Key != "" {
		req.Header.Set("Authorization", "Bearer "+m.Key)
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("email request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("email provider status %d", resp.StatusCode)
	}
	return nil
}

// Discard drops every message. Used when no provider is configured.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }
