// Package auth obtains OAuth2 client-credentials tokens for outbound HTTP
// calls such as the remote contact store.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type ClientCred struct {
	conf  clientcredentials.Config
	mu    sync.Mutex
	token *oauth2.Token
}

func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{
		conf: conf.toOauth2Config(),
	}
}

// GetToken returns the cached access token, fetching a new one when the
// cached token is missing or expired.
func (c *ClientCred) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx, false); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

// ForceRefresh discards the cached token and fetches a new one.
func (c *ClientCred) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx, true); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

// SetAuthHeader sets the Authorization header of r, using r's context for
// any token request.
func (c *ClientCred) SetAuthHeader(r *http.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(r.Context(), false); err != nil {
		return err
	}
	c.token.SetAuthHeader(r)
	return nil
}

func (c *ClientCred) ensure(ctx context.Context, force bool) error {
	if !force && c.token != nil && c.token.Valid() {
		return nil
	}
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return nil
}
