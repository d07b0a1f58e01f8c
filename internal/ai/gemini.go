package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smazurov/watchnode/internal/version"
)

// DefaultBaseURL is the Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewGemini creates a client. An empty model selects gemini-1.5-flash.
func NewGemini(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *GeminiClient {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   strings.TrimPrefix(model, "models/"),
		HTTP:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *GeminiClient) Enabled() bool {
	return c.APIKey != ""
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func textPart(s string) part {
	return part{Text: s}
}

func jpegPart(data []byte) part {
	return part{InlineData: &inlineData{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(data)}}
}

func referenceParts(intro string, refs []Reference) []part {
	if len(refs) == 0 {
		return nil
	}
	parts := []part{textPart(intro)}
	for _, ref := range refs {
		if len(ref.JPEG) == 0 {
			continue
		}
		parts = append(parts, textPart(fmt.Sprintf("This is %s:", ref.Name)), jpegPart(ref.JPEG))
	}
	return parts
}

// Analyze sends one image with optional reference faces.
func (c *GeminiClient) Analyze(ctx context.Context, frame []byte, prompt string, refs []Reference) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrDisabled
	}

	parts := referenceParts("Here are reference images of people I know. Use these to identify them in the new scene:", refs)
	parts = append(parts, textPart(prompt), jpegPart(frame))

	text, err := c.generate(ctx, parts)
	if err != nil {
		return Result{}, err
	}

	detections, cleaned := ParseDetections(text)
	return Result{Text: cleaned, Raw: text, Detections: detections}, nil
}

// AnalyzeMany sends several labeled camera images in one request.
func (c *GeminiClient) AnalyzeMany(ctx context.Context, frames []Image, prompt string, refs []Reference) (MultiResult, error) {
	if !c.Enabled() {
		return MultiResult{}, ErrDisabled
	}

	parts := referenceParts("Here are reference images of people I know. Use these to identify anyone in the camera feeds:", refs)
	parts = append(parts, textPart(prompt))
	for _, img := range frames {
		label := img.CameraName
		if label == "" {
			label = img.CameraID
		}
		parts = append(parts, textPart("Camera: "+label), jpegPart(img.JPEG))
	}

	text, err := c.generate(ctx, parts)
	if err != nil {
		return MultiResult{}, err
	}
	return ParseMulti(text, frames), nil
}

func (c *GeminiClient) generate(ctx context.Context, parts []part) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Role: "user", Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.BaseURL, url.PathEscape(c.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("x-goog-api-key", c.APIKey)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("generateContent request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("generateContent status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("generateContent status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	c.logger.Debug("Model responded", "model", c.Model, "duration", time.Since(start), "chars", sb.Len())
	return sb.String(), nil
}

// ListModels returns the models that support generateContent.
func (c *GeminiClient) ListModels(ctx context.Context) ([]string, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1beta/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("x-goog-api-key", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models status %d", resp.StatusCode)
	}

	var out struct {
		Models []struct {
			Name                       string   `json:"name"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	models := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				models = append(models, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}
	return models, nil
}
