package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection settings.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 mount, e.g. "secret"
	SecretPath string `json:"secret_path"` // path under the mount, e.g. "trading-bot/broker"
}

// Credentials are the broker API credentials stored in Vault.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Client wraps the HashiCorp Vault client for broker credential lookup. When
// Vault is disabled the client returns nothing and callers fall back to
// config/env credentials.
type Client struct {
	client *api.Client
	config Config
	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a Vault client.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetBrokerCredentials retrieves the broker credentials. Returns nil with no
// error when Vault is disabled or the secret does not exist.
func (c *Client) GetBrokerCredentials(ctx context.Context) (*Credentials, error) {
	if !c.config.Enabled {
		return nil, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read broker credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := &Credentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.SecretKey = v
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	return creds, nil
}
