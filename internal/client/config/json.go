package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authmaker/internal/flagx"
	"github.com/dmitrijs2005/authmaker/internal/timex"
)

// JsonConfig is the on-disk shape of the CLI config file.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	SecretKey          string         `json:"secret_key"`
	Operator           string         `json:"operator"`
	TokenValidity      timex.Duration `json:"token_validity"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
}

// parseJson overlays cfg with the file named by -c / -config, if any. Keys
// absent from the file keep their current value.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.Operator != "" {
		cfg.Operator = jc.Operator
	}
	if jc.TokenValidity.Duration != 0 {
		cfg.TokenValidity = jc.TokenValidity.Duration
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	return nil
}
