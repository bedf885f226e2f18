// Package platform reads users, orders and profile meta from the host platform's REST API.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"playerhooks/internal/models"
)

// Client calls the host platform API. It satisfies payload.Directory.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for lookups.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetUser returns nil, nil when the user does not exist.
func (c *Client) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	found, err := c.lookup(ctx, fmt.Sprintf("%s/api/v1/users/%d", c.baseURL, id), fmt.Sprintf("platform:user:%d", id), &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

// GetOrder returns nil, nil when the order does not exist.
func (c *Client) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	found, err := c.lookup(ctx, fmt.Sprintf("%s/api/v1/orders/%d", c.baseURL, id), fmt.Sprintf("platform:order:%d", id), &o)
	if err != nil || !found {
		return nil, err
	}
	return &o, nil
}

// GetProfile returns the user's profile meta as strings.
func (c *Client) GetProfile(ctx context.Context, userID int64) (map[string]string, error) {
	var wrap struct {
		Meta map[string]string `json:"meta"`
	}
	found, err := c.lookup(ctx,
		fmt.Sprintf("%s/api/v1/users/%d/profile", c.baseURL, userID),
		fmt.Sprintf("platform:profile:%d", userID), &wrap)
	if err != nil || !found {
		return nil, err
	}
	return wrap.Meta, nil
}

// HealthCheck checks if the platform API is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, endpoint, cacheKey string, out any) (bool, error) {
	if c.readCache(ctx, cacheKey, out) {
		return true, nil
	}
	found, err := c.doGet(ctx, endpoint, out)
	if err != nil || !found {
		return found, err
	}
	c.writeCache(ctx, cacheKey, out)
	return true, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("GET %s: http %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return true, nil
}
