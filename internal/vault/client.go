// Package vault resolves broker credentials, from HashiCorp Vault when
// enabled or from static configuration otherwise.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"regime-trading-bot/config"
)

// ErrMissingCredentials is fatal for the broker it concerns.
var ErrMissingCredentials = errors.New("missing broker credentials")

// Credentials for a broker account.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Testnet   bool   `json:"is_testnet"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	static map[string]Credentials
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]Credentials
}

// NewClient creates a new Vault client. When Vault is disabled only static
// credentials registered with SetStatic are served.
func NewClient(cfg config.VaultConfig, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		static: make(map[string]Credentials),
		cache:  make(map[string]Credentials),
		logger: logger.With().Str("component", "Vault").Logger(),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client
	return c, nil
}

// SetStatic registers fallback credentials for broker, used when Vault is
// disabled.
func (c *Client) SetStatic(broker string, creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.static[broker] = creds
}

// Credentials returns the credentials for broker. Missing or incomplete
// credentials yield ErrMissingCredentials.
func (c *Client) Credentials(ctx context.Context, broker string) (Credentials, error) {
	c.mu.RLock()
	if cached, ok := c.cache[broker]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	static, hasStatic := c.static[broker]
	c.mu.RUnlock()

	var creds Credentials
	if c.config.Enabled {
		read, err := c.read(ctx, broker)
		if err != nil {
			return Credentials{}, err
		}
		creds = read
	} else if hasStatic {
		creds = static
	}

	if creds.APIKey == "" || creds.SecretKey == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredentials, broker)
	}

	c.mu.Lock()
	c.cache[broker] = creds
	c.mu.Unlock()
	return creds, nil
}

func (c *Client) read(ctx context.Context, broker string) (Credentials, error) {
	path := c.secretPath(broker)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("%w: nothing at %s", ErrMissingCredentials, path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("invalid secret format at %s", path)
	}
	c.logger.Debug().Str("broker", broker).Msg("Credentials loaded from vault")
	return Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Testnet:   getBool(data, "is_testnet"),
	}, nil
}

// Store writes credentials for broker to Vault.
func (c *Client) Store(ctx context.Context, broker string, creds Credentials) error {
	if !c.config.Enabled {
		c.SetStatic(broker, creds)
		c.invalidate(broker)
		return nil
	}
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"is_testnet": creds.Testnet,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(broker), payload); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}
	c.invalidate(broker)
	return nil
}

func (c *Client) invalidate(broker string) {
	c.mu.Lock()
	delete(c.cache, broker)
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// HealthCheck checks the Vault connection
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(broker string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, broker)
}

func getString(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
