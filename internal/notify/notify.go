// Package notify delivers release announcements.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"releaseweaver/internal/release"
)

// Payload is the JSON body posted to a webhook. Text carries a rendered
// summary for chat services that only read that field.
type Payload struct {
	Text       string `json:"text"`
	Title      string `json:"title"`
	Version    string `json:"version"`
	Tag        string `json:"tag"`
	PackageURL string `json:"package_url,omitempty"`
	ReleaseURL string `json:"release_url,omitempty"`
}

// Render formats msg as plain text.
func Render(msg release.Message) string {
	var b strings.Builder
	b.WriteString(msg.Title)
	fmt.Fprintf(&b, "\nVersion: %s (%s)", msg.Version, msg.Tag)
	if msg.PackageURL != "" {
		fmt.Fprintf(&b, "\nPackage: %s", msg.PackageURL)
	}
	if msg.ReleaseURL != "" {
		fmt.Fprintf(&b, "\nRelease: %s", msg.ReleaseURL)
	}
	return b.String()
}

// Webhook posts announcements to an incoming-webhook URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Webhook) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWebhook returns a notifier posting to url.
func NewWebhook(url string, opts ...Option) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url cannot be empty")
	}
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Send posts msg. Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, msg release.Message) error {
	body, err := json.Marshal(Payload{
		Text:       Render(msg),
		Title:      msg.Title,
		Version:    msg.Version,
		Tag:        msg.Tag,
		PackageURL: msg.PackageURL,
		ReleaseURL: msg.ReleaseURL,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "releaseweaver")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	w.logger.Debug("webhook delivered", "status", resp.StatusCode)
	return nil
}

// Log writes announcements to a logger instead of delivering them.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(ctx context.Context, msg release.Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "announcement", "title", msg.Title, "version", msg.Version,
		"tag", msg.Tag, "package_url", msg.PackageURL, "release_url", msg.ReleaseURL)
	return nil
}

// Memory records announcements.
type Memory struct {
	mu   sync.Mutex
	sent []release.Message
}

func (m *Memory) Send(_ context.Context, msg release.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns every recorded announcement.
func (m *Memory) Sent() []release.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]release.Message(nil), m.sent...)
}

// Multi sends to every notifier and joins their errors.
type Multi []release.Notifier

func (m Multi) Send(ctx context.Context, msg release.Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
