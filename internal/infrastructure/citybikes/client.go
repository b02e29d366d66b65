package citybikes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/domain/repository"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// UpstreamError - апстрим ответил не 2xx
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("citybikes API error: status %d, body: %s", e.StatusCode, e.Body)
}

type networksResponse struct {
	Networks []domain.Network `json:"networks"`
}

type networkResponse struct {
	Network *domain.NetworkDetails `json:"network"`
}

type client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *zap.Logger
}

// NewClient создает клиент публичного API сетей велопроката
func NewClient(cfg *config.UpstreamConfig, logger *zap.Logger) repository.NetworkRepository {
	return &client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// ListNetworks - GET /networks
func (c *client) ListNetworks(ctx context.Context) ([]domain.Network, error) {
	var resp networksResponse
	if err := c.get(ctx, "/networks", &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("Citybikes networks fetched", zap.Int("count", len(resp.Networks)))

	if resp.Networks == nil {
		return []domain.Network{}, nil
	}
	return resp.Networks, nil
}

// GetNetwork - GET /networks/{id}
func (c *client) GetNetwork(ctx context.Context, id string) (*domain.NetworkDetails, error) {
	if id == "" {
		return nil, fmt.Errorf("network id cannot be empty")
	}

	var resp networkResponse
	if err := c.get(ctx, "/networks/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	if resp.Network == nil {
		return nil, fmt.Errorf("citybikes API returned no network for %q", id)
	}
	if resp.Network.Stations == nil {
		resp.Network.Stations = []domain.Station{}
	}

	c.logger.Debug("Citybikes network fetched",
		zap.String("network_id", id),
		zap.Int("stations", len(resp.Network.Stations)))

	return resp.Network, nil
}

func (c *client) get(ctx context.Context, path string, out interface{}) error {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Error("Failed to create request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to execute request", zap.String("url", endpoint), zap.Error(err))
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Citybikes API returned error",
			zap.String("url", endpoint),
			zap.Int("status_code", resp.StatusCode))
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("Failed to decode response", zap.String("url", endpoint), zap.Error(err))
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
