package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// QRSessionKey is the redis key for a QR login session.
func QRSessionKey(sessionID string) string {
	return fmt.Sprintf("qr_session:%s", sessionID)
}

// XtreamCacheKey is the redis key for a cached provider listing.
func XtreamCacheKey(username, action string) string {
	return fmt.Sprintf("xtream:%s:%s", username, action)
}
