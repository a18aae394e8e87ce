// Package xtream is a thin client for the Xtream-codes player API
// (player_api.php). It validates subscriber credentials before they are bound
// to an account and proxies the stream listings the TV app renders.
package xtream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/vistaflix/tvlink/internal/redis"
)

const requestTimeout = 15 * time.Second

// StreamKind selects which provider listing to fetch.
type StreamKind string

const (
	StreamKindLive   StreamKind = "live"
	StreamKindVOD    StreamKind = "vod"
	StreamKindSeries StreamKind = "series"
)

var kindActions = map[StreamKind]string{
	StreamKindLive:   "get_live_streams",
	StreamKindVOD:    "get_vod_streams",
	StreamKindSeries: "get_series",
}

// Credentials identifies a subscriber on a provider.
type Credentials struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Client struct {
	httpClient  *http.Client
	redisClient *redisclient.Client
	cacheTTL    time.Duration
}

// NewClient returns a provider client. redisClient may be nil, in which case
// listings are fetched uncached.
func NewClient(redisClient *redisclient.Client, cacheTTL time.Duration) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// ValidateCredentials performs the player_api.php auth handshake and reports
// whether the provider accepts the subscriber. A reachable provider that
// rejects the credentials returns (false, nil); transport failures return an
// error.
func (c *Client) ValidateCredentials(ctx context.Context, creds Credentials) (bool, error) {
	body, err := c.get(ctx, creds, "")
	if err != nil {
		return false, err
	}

	var resp struct {
		UserInfo *struct {
			Auth   int    `json:"auth"`
			Status string `json:"status"`
		} `json:"user_info"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode auth response: %w", err)
	}

	if resp.UserInfo == nil || resp.UserInfo.Auth != 1 {
		log.Warn().Str("url", creds.URL).Msg("provider rejected credentials")
		return false, nil
	}

	return true, nil
}

// GetStreams fetches a raw listing for the given kind, serving from the redis
// cache when possible. The payload is passed through untouched; field mapping
// is the TV app's concern.
func (c *Client) GetStreams(ctx context.Context, creds Credentials, kind StreamKind) (json.RawMessage, error) {
	action, ok := kindActions[kind]
	if !ok {
		return nil, fmt.Errorf("unknown stream kind %q", kind)
	}

	cacheKey := redisclient.XtreamCacheKey(creds.Username, action)
	if c.redisClient != nil {
		cached, err := c.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			return json.RawMessage(cached), nil
		}
		if err != redis.Nil {
			log.Warn().Err(err).Msg("xtream cache read failed")
		}
	}

	body, err := c.get(ctx, creds, action)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("provider returned invalid JSON for %s", action)
	}

	if c.redisClient != nil && c.cacheTTL > 0 {
		if err := c.redisClient.Set(ctx, cacheKey, string(body), c.cacheTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("xtream cache write failed")
		}
	}

	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, creds Credentials, action string) ([]byte, error) {
	base := strings.TrimSuffix(creds.URL, "/")

	// Encode to prevent query injection from special chars in user/pass.
	q := url.Values{}
	q.Set("username", creds.Username)
	q.Set("password", creds.Password)
	if action != "" {
		q.Set("action", action)
	}
	reqURL := base + "/player_api.php?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("url", base).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("provider request failed")
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	return body, nil
}
