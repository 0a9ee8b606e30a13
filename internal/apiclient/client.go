package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/config"
	"go.uber.org/zap"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrUnreachable     = errors.New("backend unreachable")
	ErrInvalidPayload  = errors.New("invalid backend payload")
)

// StatusError is a non-2xx answer from the backend other than 401/403.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: backend answered %d", e.Method, e.Path, e.Status)
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Client talks to the REST backend on behalf of a session.
type Client struct {
	baseURL   string
	http      *http.Client
	validator *Validator
	logger    *zap.Logger
}

func New(cfg config.APIConfig, logger *zap.Logger) (*Client, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: cfg.Timeout},
		validator: validator,
		logger:    logger,
	}, nil
}

// do sends a request and returns the raw response body. A nil session
// sends no Authorization header.
func (c *Client) do(ctx context.Context, s *auth.Session, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s != nil {
		req.Header.Set("Authorization", s.Header())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, method, path, fmt.Errorf("reading body: %w", err))
	}

	c.logger.Debug("Backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s answered %d", ErrUnauthenticated, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// transportError classifies a failed exchange. Timeouts, whether from ctx
// or from the client's own deadline, wrap context.DeadlineExceeded.
func transportError(ctx context.Context, method, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", method, path, ctxErr)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s %s: %w (%v)", method, path, context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
}

func (c *Client) doJSON(ctx context.Context, s *auth.Session, method, path string, in, out any) error {
	data, err := c.do(ctx, s, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidPayload, method, path, err)
	}
	return nil
}

func requireSession(s *auth.Session) error {
	if s == nil {
		return ErrUnauthenticated
	}
	return nil
}

// Describe turns an error from this package into a message for the user
// that tells authentication, server and network problems apart.
func Describe(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "not authenticated"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("server error: %d", statusErr.Status)
	case errors.Is(err, ErrUnreachable):
		return "backend unreachable"
	case errors.Is(err, ErrInvalidPayload):
		return "unexpected response from server"
	case errors.Is(err, context.DeadlineExceeded):
		return "backend did not answer in time"
	default:
		return "unexpected error: " + err.Error()
	}
}
