// Package api talks to the note-share backend over HTTP. It owns the
// translation from transport and backend failures into error kinds, so
// callers never match on error message strings.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	sherr "github.com/alexjbarnes/vault-share/internal/errors"
)

// Kind classifies a backend failure. The coordinator shows the generic
// user-visible message only for KindUnknown; everything else propagates
// to the caller for display.
type Kind int

const (
	// KindUnknown is the backend's catch-all failure. The server
	// reports it with the literal body message "Unknown error".
	KindUnknown Kind = iota

	// KindNetwork covers transport failures and server-side trouble
	// (timeouts, connection refused, 5xx).
	KindNetwork

	// KindValidation covers request rejections (4xx other than auth).
	KindValidation

	// KindAuth covers 401/403 responses.
	KindAuth
)

// Error is a classified backend failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a backend error, or (0, false) when err
// did not come from the API boundary.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}

	return 0, false
}

// IsUnknown reports whether err is the backend's generic unclassified
// failure.
func IsUnknown(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUnknown
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024

	// unknownErrorMessage is the backend's sentinel body for a generic,
	// unclassified failure. It is matched here, at the API boundary,
	// and nowhere else.
	unknownErrorMessage = "Unknown error"
)

// Client talks to the note-share REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	clientID   string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the API key from
// leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client for the given backend base URL.
// clientID is the minted per-installation identifier; apiKey may be
// empty until the user runs `vault-share auth`. If httpClient is nil, a
// client with a 30-second timeout and same-host redirect policy is used.
func NewClient(httpClient *http.Client, baseURL, apiKey, clientID string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		clientID:   clientID,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// classify maps an HTTP status and backend error message to a Kind.
func classify(status int, message string) Kind {
	if message == unknownErrorMessage {
		return KindUnknown
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 400 && status < 500:
		return KindValidation
	case status >= 500:
		return KindNetwork
	}

	return KindUnknown
}

// do sends a JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", c.clientID)

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("sending request to %s: %w", endpoint, err)
		// Network errors (timeouts, connection refused, DNS failures).
		return &Error{Kind: KindNetwork, Err: wrapped}
	}
	defer resp.Body.Close()

	// Cap response reads at 1MB. API responses are small JSON payloads.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	// The backend reports failures either as a non-200 status or as a
	// 200 with an "error" field in the body. Peek at the field before
	// committing to a full decode.
	if msg := gjson.GetBytes(respBody, "error").Str; msg != "" {
		return &Error{
			Kind: classify(resp.StatusCode, msg),
			Err:  fmt.Errorf("API %s (%d): %s", endpoint, resp.StatusCode, msg),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind: classify(resp.StatusCode, ""),
			Err:  fmt.Errorf("API %s returned status %d: %s", endpoint, resp.StatusCode, sanitizeResponseBody(respBody)),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
	}

	return nil
}

// checkShareResult validates an upload response. A success payload
// missing its id or link is a hard failure, never silently accepted.
func checkShareResult(res *ShareResult, endpoint string) error {
	if res.ID == "" || res.Link == "" {
		return fmt.Errorf("%w: %s returned incomplete share result (id=%q link=%q)",
			sherr.ErrAPIResponse, endpoint, res.ID, res.Link)
	}

	return nil
}

// Create uploads a never-shared note and returns its new remote
// identity.
func (c *Client) Create(ctx context.Context, title, content string) (*ShareResult, error) {
	req := noteRequest{Title: title, Content: content}

	var res ShareResult
	if err := c.do(ctx, http.MethodPost, "/v1/notes", req, &res); err != nil {
		return nil, fmt.Errorf("creating share: %w", err)
	}

	if err := checkShareResult(&res, "/v1/notes"); err != nil {
		return nil, err
	}

	return &res, nil
}

// Update re-uploads an already-shared note in place.
func (c *Client) Update(ctx context.Context, id, title, content string) (*ShareResult, error) {
	req := noteRequest{Title: title, Content: content}
	endpoint := "/v1/notes/" + id

	var res ShareResult
	if err := c.do(ctx, http.MethodPut, endpoint, req, &res); err != nil {
		return nil, fmt.Errorf("updating share %s: %w", id, err)
	}

	if err := checkShareResult(&res, endpoint); err != nil {
		return nil, err
	}

	return &res, nil
}

// ListShared returns every note the account has shared, in backend
// order.
func (c *Client) ListShared(ctx context.Context) ([]RemoteNote, error) {
	var notes []RemoteNote
	if err := c.do(ctx, http.MethodGet, "/v1/account/notes", nil, &notes); err != nil {
		return nil, fmt.Errorf("listing shared notes: %w", err)
	}

	return notes, nil
}
