// Package functions calls HTTPS callable cloud functions. Requests are
// posted as {"data": payload}; responses carry either {"result": ...} or
// {"error": {"status", "message", "details"}}.
package functions

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
	"time"

	"github.com/narvanalabs/fleet-portal/internal/metrics"
)

// Function names.
const (
	CreateAccountWithDetails = "create_account_with_details"
	InquireEmail             = "inquire_email"
)

// Errors mapped from callable error responses.
var (
	ErrFunctionNotFound = errors.New("function not deployed")
	ErrEmailInUse       = errors.New("email address is already in use")
	ErrWeakPassword     = errors.New("password is too weak")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotConfigured    = errors.New("functions base url is not configured")
)

// CallError is an error response that maps to no known sentinel.
type CallError struct {
	Function   string
	HTTPStatus int
	Status     string
	Code       string
	Message    string
}

func (e *CallError) Error() string {
	code := e.Status
	if e.Code != "" {
		code = e.Code
	}
	return fmt.Sprintf("function %s failed (%d %s): %s", e.Function, e.HTTPStatus, code, e.Message)
}

// Config holds client settings.
type Config struct {
	// BaseURL is the functions endpoint, e.g.
	// https://us-central1-project.cloudfunctions.net
	BaseURL string
	Timeout time.Duration
}

// Client invokes callable functions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a Client. m may be nil.
func NewClient(cfg *Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
		logger:  logger,
	}
}

type callRequest struct {
	Data any `json:"data"`
}

type callResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *callError      `json:"error"`
}

type callError struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type errorDetails struct {
	Code string `json:"code"`
}

// Call invokes the named function with payload and returns the raw result.
func (c *Client) Call(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	result, err := c.call(ctx, name, payload)
	if err != nil {
		c.metrics.FunctionCalled(name, metrics.OutcomeError)
		c.logger.Error("function call failed", "function", name, "error", err)
		return nil, err
	}
	c.metrics.FunctionCalled(name, metrics.OutcomeSuccess)
	return result, nil
}

func (c *Client) call(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(callRequest{Data: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Fleet-Portal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out callResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if out.Error != nil || resp.StatusCode != http.StatusOK {
		return nil, classify(name, resp.StatusCode, out.Error)
	}
	return out.Result, nil
}

func classify(name string, httpStatus int, ce *callError) error {
	if ce == nil {
		ce = &callError{Message: http.StatusText(httpStatus)}
	}

	var details errorDetails
	if len(ce.Details) > 0 {
		_ = json.Unmarshal(ce.Details, &details)
	}

	switch details.Code {
	case "auth/email-already-in-use", "auth/email-already-exists":
		return ErrEmailInUse
	case "auth/weak-password", "auth/invalid-password":
		return ErrWeakPassword
	case "auth/invalid-email":
		return ErrInvalidEmail
	}

	switch ce.Status {
	case "NOT_FOUND":
		return fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	case "ALREADY_EXISTS":
		return ErrEmailInUse
	case "INVALID_ARGUMENT":
		return fmt.Errorf("%w: %s", ErrInvalidArgument, ce.Message)
	case "PERMISSION_DENIED":
		return ErrPermissionDenied
	}

	if httpStatus == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}

	return &CallError{
		Function:   name,
		HTTPStatus: httpStatus,
		Status:     ce.Status,
		Code:       details.Code,
		Message:    ce.Message,
	}
}
