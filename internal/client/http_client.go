package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"leadboard/internal/config"
)

// HTTPClient posts signed payloads to the export sink, retrying transport errors and
// 5xx responses with exponential backoff. 4xx responses are not retried.
type HTTPClient struct {
	client        *http.Client
	retryAttempts int
	initialDelay  time.Duration
	logger        *logrus.Logger
}

func NewHTTPClient(cfg *config.Config, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		retryAttempts: cfg.RetryAttempts,
		initialDelay:  500 * time.Millisecond,
		logger:        logger,
	}
}

// WithInitialDelay sets the first retry delay.
func (c *HTTPClient) WithInitialDelay(d time.Duration) *HTTPClient {
	c.initialDelay = d
	return c
}

func (c *HTTPClient) PostExportData(ctx context.Context, url string, data interface{}, signature string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal export data: %w", err)
	}

	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create export request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", signature)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("client error: %d", resp.StatusCode))
		default:
			return fmt.Errorf("server error: %d", resp.StatusCode)
		}
	}

	notify := func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": wait,
			"url":     url,
		}).WithError(err).Warn("Retrying export after backoff")
	}

	if err := backoff.RetryNotify(operation, c.policy(ctx), notify); err != nil {
		return fmt.Errorf("export failed after %d attempts: %w", attempt, err)
	}

	c.logger.WithFields(logrus.Fields{
		"attempt": attempt,
		"url":     url,
	}).Debug("Export request successful")
	return nil
}

func (c *HTTPClient) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialDelay
	b.MaxElapsedTime = 0

	retries := c.retryAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
