// Package opensearch makes parsed instruction records searchable.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "opensearch: at least one address is required")
	ErrConnectionFailed = errors.New(errors.ErrCodeExternalService, "opensearch: connection failed")
)

const (
	defaultMaxRetries          = 3
	defaultRetryBackoff        = 100 * time.Millisecond
	defaultHealthCheckInterval = 30 * time.Second
)

// Client manages the cluster connection and tracks its health.
type Client struct {
	client  *opensearch.Client
	cfg     config.OpenSearchConfig
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient connects to cfg.Addresses and starts a background health
// check.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if len(cfg.Addresses) == 0 {
		return nil, ErrInvalidConfig
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	sdk, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    defaultMaxRetries,
		RetryBackoff:  func(int) time.Duration { return defaultRetryBackoff },
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create opensearch client")
	}

	c := newClient(sdk, cfg, log)
	if err := c.Ping(ctx); err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}

	hcCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.healthLoop(hcCtx, defaultHealthCheckInterval)

	log.Info("opensearch client connected", logging.Strings("addresses", cfg.Addresses))
	return c, nil
}

func newClient(sdk *opensearch.Client, cfg config.OpenSearchConfig, log logging.Logger) *Client {
	return &Client{client: sdk, cfg: cfg, logger: log, cancel: func() {}}
}

// Ping checks the cluster and updates the health flag.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping failed", logging.Err(err))
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.Newf(errors.ErrCodeExternalService, "ping returned status %d", resp.StatusCode)
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the result of the last ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// GetClient returns the SDK client.
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// Close stops the health check.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("opensearch client closed")
	return nil
}

func (c *Client) healthLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()
			if prev && !curr {
				c.logger.Error("opensearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("opensearch cluster recovered")
			}
		}
	}
}
