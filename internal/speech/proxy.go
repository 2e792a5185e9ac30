package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/iqra/internal/logger"
)

// Compile-time interface check.
var _ Synthesizer = (*ProxyClient)(nil)

// ProxyOption configures the proxy client.
type ProxyOption func(*ProxyClient)

// WithProxyVoice asks the proxy for a specific voice. Empty means the
// proxy's default.
func WithProxyVoice(voice string) ProxyOption {
	return func(c *ProxyClient) {
		c.voice = voice
	}
}

// WithProxyTimeout sets the HTTP client timeout.
func WithProxyTimeout(d time.Duration) ProxyOption {
	return func(c *ProxyClient) {
		c.httpClient.Timeout = d
	}
}

// ProxyClient synthesizes through the iqra-tts-proxy service, so the
// Azure key never has to live on the device.
type ProxyClient struct {
	baseURL    string
	voice      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewProxyClient creates a client for the proxy at baseURL.
func NewProxyClient(baseURL string, log *logger.Logger, opts ...ProxyOption) *ProxyClient {
	c := &ProxyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Voice returns the requested voice, or "proxy-default".
func (c *ProxyClient) Voice() string {
	if c.voice == "" {
		return "proxy-default"
	}
	return c.voice
}

type proxyRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize posts the text to the proxy and returns the audio it relays.
func (c *ProxyClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(proxyRequest{Text: text, Voice: c.voice})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("tts proxy", resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	c.log.Debug("tts proxy: got %d bytes for %d chars", len(audio), len(text))
	return audio, nil
}
