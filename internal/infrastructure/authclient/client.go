// Package authclient verifies bearer tokens by calling the identity service.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
	"github.com/tasktracker/task-system/internal/pkg/metrics"
)

const (
	defaultTimeout = 3 * time.Second
	maxRetries     = 2
	retryBase      = 50 * time.Millisecond
	mePath         = "/auth/users/me"
)

// Client is a ports.Verifier backed by GET /auth/users/me.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	log     zerolog.Logger
}

var _ ports.Verifier = (*Client)(nil)

// Config configures a Client. Timeout bounds each attempt, not the whole call.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{},
		log:     log,
	}
}

// Verify resolves token through the identity service. A 401 maps to
// domain.ErrUnauthenticated and a 403 to domain.ErrForbidden; anything else
// that is not a 200 is domain.ErrVerifierUnavailable.
func (c *Client) Verify(ctx context.Context, token string) (*domain.PublicUser, error) {
	if token == "" {
		metrics.DelegatedVerificationsTotal.WithLabelValues("unauthenticated").Inc()
		return nil, domain.ErrUnauthenticated
	}

	var user *domain.PublicUser
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		u, err := c.call(ctx, token)
		if err != nil {
			return err
		}
		user = u
		return nil
	})

	switch {
	case err == nil:
		metrics.DelegatedVerificationsTotal.WithLabelValues("ok").Inc()
		return user, nil
	case errors.Is(err, domain.ErrUnauthenticated):
		metrics.DelegatedVerificationsTotal.WithLabelValues("unauthenticated").Inc()
		return nil, err
	case errors.Is(err, domain.ErrForbidden):
		metrics.DelegatedVerificationsTotal.WithLabelValues("forbidden").Inc()
		return nil, err
	default:
		metrics.DelegatedVerificationsTotal.WithLabelValues("unavailable").Inc()
		c.log.Warn().Err(err).Msg("identity service verification failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrVerifierUnavailable, err)
	}
}

// call performs one attempt. Transport errors and 5xx answers are retryable.
func (c *Client) call(ctx context.Context, token string) (*domain.PublicUser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+mePath, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var user domain.PublicUser
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("decode verify response: %w", err)
		}
		if user.ID <= 0 || !user.Role.Valid() {
			return nil, fmt.Errorf("verify response carries no usable identity")
		}
		return &user, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrUnauthenticated
	case resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrForbidden
	case resp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, retry.RetryableError(fmt.Errorf("identity service returned %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}
}
