package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/watchnode/internal/version"
)

// Delivery is the outcome of sending to one recipient.
type Delivery struct {
	Recipient Recipient `json:"recipient"`
	ChatID    string    `json:"chat_id"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Chat sends messages to chat recipients.
type Chat interface {
	Send(ctx context.Context, recipients []Recipient, image []byte, caption string) []Delivery
}

// WhatsAppOptions configures the GOWA gateway client.
type WhatsAppOptions struct {
	APIURL   string
	DeviceID string
	Username string
	Password string
	Compress bool
	Timeout  time.Duration
}

// WhatsApp is a client for a go-whatsapp-web-multidevice (GOWA) gateway.
type WhatsApp struct {
	opts   WhatsAppOptions
	http   *http.Client
	logger *slog.Logger
}

// NewWhatsApp creates a gateway client.
func NewWhatsApp(opts WhatsAppOptions, logger *slog.Logger) *WhatsApp {
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

// Send delivers caption, with image when non-empty, to every recipient.
// Failures are reported per recipient and never abort the remaining sends.
func (w *WhatsApp) Send(ctx context.Context, recipients []Recipient, image []byte, caption string) []Delivery {
	results := make([]Delivery, 0, len(recipients))
	for _, r := range recipients {
		chatID := ChatID(r.Value)
		d := Delivery{Recipient: r, ChatID: chatID}

		var err error
		if len(image) > 0 {
			err = w.sendImage(ctx, chatID, image, caption)
		} else {
			err = w.sendMessage(ctx, chatID, caption)
		}
		if err != nil {
			d.Error = err.Error()
			w.logger.Warn("WhatsApp delivery failed", "recipient", r.Name, "error", err)
		} else {
			d.Success = true
		}
		results = append(results, d)
	}

	sent := 0
	for _, d := range results {
		if d.Success {
			sent++
		}
	}
	w.logger.Info("WhatsApp notifications sent", "sent", sent, "total", len(results))
	return results
}

func (w *WhatsApp) sendImage(ctx context.Context, chatID string, image []byte, caption string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"phone":    chatID,
		"caption":  caption,
		"compress": strconv.FormatBool(w.opts.Compress),
	}
	for _, k := range []string{"phone", "caption", "compress"} {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="detection.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return w.post(ctx, "/send/image", mw.FormDataContentType(), &buf)
}

func (w *WhatsApp) sendMessage(ctx context.Context, chatID, message string) error {
	body, err := json.Marshal(map[string]string{"phone": chatID, "message": message})
	if err != nil {
		return err
	}
	return w.post(ctx, "/send/message", "application/json", bytes.NewReader(body))
}

func (w *WhatsApp) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, w.opts.APIURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if w.opts.DeviceID != "" {
		req.Header.Set("X-Device-Id", w.opts.DeviceID)
	}
	if w.opts.Username != "" && w.opts.Password != "" {
		req.SetBasicAuth(w.opts.Username, w.opts.Password)
	}
	return req, nil
}

func (w *WhatsApp) post(ctx context.Context, path, contentType string, body io.Reader) error {
	req, err := w.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// Status checks gateway connectivity and credentials.
func (w *WhatsApp) Status(ctx context.Context) (bool, int, error) {
	req, err := w.newRequest(ctx, http.MethodGet, "/app/status", nil)
	if err != nil {
		return false, 0, err
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode, nil
}

// Group is a joined WhatsApp group.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Groups lists the groups the gateway account has joined.
func (w *WhatsApp) Groups(ctx context.Context) ([]Group, error) {
	req, err := w.newRequest(ctx, http.MethodGet, "/user/my/groups", nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	var out struct {
		Results struct {
			Data []struct {
				JID  string `json:"JID"`
				Name string `json:"Name"`
			} `json:"data"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}

	groups := make([]Group, 0, len(out.Results.Data))
	for _, g := range out.Results.Data {
		groups = append(groups, Group{ID: g.JID, Name: g.Name})
	}
	return groups, nil
}
