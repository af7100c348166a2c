// internal/gateway/client.go
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	xerrors "physioportal-client/internal/pkg/errors"

	json "github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// SessionFlags is the slice of the session manager the gateway needs: the
// bearer token for outbound requests and the two reactive flags raised from
// response codes.
type SessionFlags interface {
	Token() string
	MarkTokenInvalid()
	MarkTermsUnsigned()
}

// Client is the transport wrapper for the portal backend. Every request
// attaches the bearer token when one is held and a ULID request id; every
// response goes through one classification point (network vs 4xx vs 5xx).
type Client struct {
	baseURL    string
	portalHost string
	http       *http.Client
	session    SessionFlags
	logger     *zap.Logger
}

func NewClient(baseURL, portalHost string, session SessionFlags, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		portalHost: portalHost,
		http:       &http.Client{},
		session:    session,
		logger:     logger,
	}
}

// WithHTTPClient swaps the underlying HTTP client, used by tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// get issues a GET request and decodes the 2xx body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, "", out)
}

// post issues a JSON POST request and decodes the 2xx body into out.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(data), "application/json", out)
}

// postMultipart uploads a single file under the given form field.
func (c *Client) postMultipart(ctx context.Context, path, field, filename string, file io.Reader, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to buffer upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, &buf, w.FormDataContentType(), out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := ulid.Make().String()
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request transport failure",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return &xerrors.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &xerrors.NetworkError{Err: err}
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
	)

	if err := c.classify(resp.StatusCode, data); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: %v", xerrors.ErrUnexpectedResponse, err)
		}
	}
	return nil
}

// classify is the single error-classification point. 408 and 423 raise the
// global session flags and still propagate as classified errors for the
// caller to react to.
func (c *Client) classify(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	switch status {
	case http.StatusRequestTimeout:
		c.session.MarkTokenInvalid()
	case http.StatusLocked:
		c.session.MarkTermsUnsigned()
	}

	return &xerrors.APIError{Status: status, Message: extractMessage(status, body)}
}

// extractMessage digs the human message out of the body's nested error
// field, falling back to a flat message field, then to a generic string.
func extractMessage(status int, body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return fmt.Sprintf("request failed with status %d", status)
}
