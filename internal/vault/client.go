// Package vault resolves runtime secrets (database password, API shared
// key, Telegram token) from HashiCorp Vault when enabled. Absent or
// disabled Vault leaves the values from config/environment untouched.
package vault

import (
	"context"
	"fmt"
	"os"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// Client wraps a Vault KV v2 mount.
type Client struct {
	api   *vaultapi.Client
	mount string
	path  string
}

// Config holds Vault client settings.
type Config struct {
	Address string
	Token   string
	Mount   string // KV v2 mount, default "secret"
	Path    string // secret path under the mount
}

// NewClient creates a Vault client. Token falls back to VAULT_TOKEN.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Timeout = 10 * time.Second

	api, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	api.SetToken(cfg.Token)

	return &Client{api: api, mount: cfg.Mount, path: cfg.Path}, nil
}

// Secrets reads the configured secret path and returns its string fields.
func (c *Client) Secrets(ctx context.Context) (map[string]string, error) {
	kv := c.api.KVv2(c.mount)
	secret, err := kv.Get(ctx, c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault secret %s/%s: %w", c.mount, c.path, err)
	}

	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}

	log.Info().
		Str("mount", c.mount).
		Str("path", c.path).
		Int("keys", len(out)).
		Msg("Loaded secrets from Vault")

	return out, nil
}

// Resolve overwrites dst with the Vault value under key when present.
func Resolve(secrets map[string]string, key string, dst *string) {
	if v, ok := secrets[key]; ok && v != "" {
		*dst = v
	}
}
