// Package config loads environment-based configuration for vault-share.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for vault-share.
type Config struct {
	// Vault directory containing the markdown notes to publish.
	VaultDir string `env:"VAULT_DIR"`

	// Share backend endpoints. APIURL is where upload and listing
	// requests go; BaseURL is the public prefix that issued share
	// links carry.
	APIURL  string `env:"SHARE_API_URL" envDefault:"https://api.noteshare.site"`
	BaseURL string `env:"SHARE_BASE_URL" envDefault:"https://noteshare.site"`

	// YAMLField is the base frontmatter field name the ShareRecord is
	// stored under. The link lives at "<field>_link", the id at
	// "<field>_id" and so on, letting users dodge collisions with
	// their own metadata.
	YAMLField string `env:"SHARE_YAML_FIELD" envDefault:"share"`

	// CopyOnShare copies the share link to the clipboard after every
	// successful share, not just when the user asks for it.
	CopyOnShare bool `env:"COPY_ON_SHARE" envDefault:"true"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// MCP server settings (required when running `vault-share serve`).
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
	MCPAPIKeys    string `env:"MCP_API_KEYS"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the API key to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve VaultDir to an absolute path at startup. Downstream code
	// relies on string prefix comparison for traversal checks, which
	// only works reliably with absolute paths.
	absDir, err := filepath.Abs(cfg.VaultDir)
	if err != nil {
		return nil, fmt.Errorf("resolving vault dir to absolute path: %w", err)
	}

	cfg.VaultDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.VaultDir == "" {
		return fmt.Errorf("VAULT_DIR is required")
	}

	for name, raw := range map[string]string{
		"SHARE_API_URL":  c.APIURL,
		"SHARE_BASE_URL": c.BaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	// Trailing slashes make joined link paths ambiguous; strip them once
	// here so the rest of the code never has to care.
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.YAMLField == "" {
		return fmt.Errorf("SHARE_YAML_FIELD must not be empty")
	}

	if strings.ContainsAny(c.YAMLField, ": \t") {
		return fmt.Errorf("SHARE_YAML_FIELD must be a plain YAML key, got %q", c.YAMLField)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// APIKeyEntry holds a pre-configured API key and its associated user
// identity parsed from MCP_API_KEYS.
type APIKeyEntry struct {
	UserID string
	Key    string
}

const (
	// apiKeyMinLen is the minimum accepted MCP API key length. Shorter
	// keys do not carry enough entropy for hash-based lookup.
	apiKeyMinLen = 16
)

// ParseMCPAPIKeys parses the MCP_API_KEYS string.
// Format: "user1:key1,user2:key2"
func (c *Config) ParseMCPAPIKeys() ([]APIKeyEntry, error) {
	if c.MCPAPIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.MCPAPIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		key := pair[idx+1:]
		if userID == "" || key == "" {
			return nil, fmt.Errorf("empty user or key in entry %d", len(entries)+1)
		}

		if len(key) < apiKeyMinLen {
			return nil, fmt.Errorf("API key too short in entry %d (minimum %d characters)", len(entries)+1, apiKeyMinLen)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in MCP_API_KEYS", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Key: key})
	}

	return entries, nil
}
