// Package client talks to the KidsHub backend over HTTP: Auth implements
// provider.Identity against /auth/v1 and Rest implements store.Store
// against /rest/v1.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/geocoder89/kidshub/internal/persist"
)

// PlaceholderURL is the endpoint value shipped in sample configuration.
// A client configured with it (or with no URL at all) runs in demo mode.
const PlaceholderURL = "https://your-project.example.com"

// IsPlaceholder reports whether baseURL means "no backend configured".
func IsPlaceholder(baseURL string) bool {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return u == "" || u == PlaceholderURL
}

type Config struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
	Storage    persist.Storage
	Logger     *slog.Logger

	// RefreshMargin is how long before expiry the access token is renewed.
	RefreshMargin time.Duration
	Now           func() time.Time
}

func (c *Config) defaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Storage == nil {
		c.Storage = persist.NewMemoryStorage()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = 60 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// errorEnvelope is the backend's error body:
// {"error":{"code":"...","message":"...","requestId":"...","details":...}}
type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
		Details   any    `json:"details"`
	} `json:"error"`
}

type httpError struct {
	Status  int
	Code    string
	Message string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

type requester struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func (r requester) do(ctx context.Context, method, path string, query url.Values, token string, headers map[string]string, in, out any) error {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		he := &httpError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Code != "" {
			he.Code = env.Error.Code
			he.Message = env.Error.Message
		}
		return he
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
