package client

import (
	"context"
	"sync"
)

// Credentials supplies the bearer token attached to backend requests. Login
// and refresh belong to the caller; the client only reads and invalidates.
type Credentials interface {
	// Token returns the current token, or "" to send no Authorization header.
	Token(ctx context.Context) (string, error)

	// Invalidate discards the current token after the backend rejected it.
	Invalidate()
}

// StaticCredentials holds a fixed token until it is invalidated.
type StaticCredentials struct {
	mu    sync.RWMutex
	token string
}

// NewStaticCredentials returns credentials holding token.
func NewStaticCredentials(token string) *StaticCredentials {
	return &StaticCredentials{token: token}
}

// Token returns the held token.
func (c *StaticCredentials) Token(context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Invalidate clears the held token.
func (c *StaticCredentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Set replaces the held token.
func (c *StaticCredentials) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}
