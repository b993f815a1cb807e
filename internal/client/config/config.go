// Package config handles configuration for the authmaker admin CLI:
// defaults, an optional JSON file and command-line flags.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the admin CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the authmaker gRPC endpoint.
//   - SecretKey: shared HS256 secret used to mint service tokens.
//   - Operator: name recorded in the service token.
//   - TokenValidity: lifetime of a minted service token.
//   - RequestTimeout: per-call deadline.
type Config struct {
	ServerEndpointAddr string
	SecretKey          string
	Operator           string
	TokenValidity      time.Duration
	RequestTimeout     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.SecretKey = "secretKey"
	c.Operator = "admin-cli"
	c.TokenValidity = 5 * time.Minute
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig applies defaults, the JSON file named by -c / -config and the
// leading command-line flags of args, in that order. It returns the
// arguments left after the flags (the sub-command and its arguments).
func LoadConfig(args []string) (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, nil, err
	}
	rest, err := parseFlags(cfg, args)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SecretKey == "" {
		return nil, nil, fmt.Errorf("secret key must not be empty")
	}
	return cfg, rest, nil
}
