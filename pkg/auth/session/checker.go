package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redisclient "github.com/angelmondragon/settlements-backend/pkg/redis"
	redislib "github.com/redis/go-redis/v9"
)

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type sessionStore interface {
	Get(ctx context.Context, key string) (string, error)
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
}

// Checker verifies that the identity collaborator still holds a live session
// for the access token's jti. Sessions are written by the auth service; the
// ledger only ever reads them.
type Checker struct {
	store sessionStore
	keyer sessionKeyer
}

// NewChecker constructs a session checker backed by the shared Redis.
func NewChecker(client *redisclient.Client) (*Checker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Checker{store: client, keyer: client}, nil
}

// HasSession reports whether a session entry exists for the access identifier.
func (c *Checker) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, nil
	}
	_, err := c.store.Get(ctx, c.keyer.AccessSessionKey(accessID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
