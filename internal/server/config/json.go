package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authmaker/internal/flagx"
	"github.com/dmitrijs2005/authmaker/internal/timex"
)

// JsonConfig is the on-disk shape of the server config file. Durations use
// timex.Duration so both "90s" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	ServiceTokenValidityDuration timex.Duration `json:"service_token_validity_duration"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	ScopeFanOut                  int            `json:"scope_fan_out"`
	AvatarUploadExpiry           timex.Duration `json:"avatar_upload_expiry"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c / -config. Keys that
// are absent from the file keep their current value.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)

	if c.ServiceTokenValidityDuration.Duration != 0 {
		config.ServiceTokenValidityDuration = c.ServiceTokenValidityDuration.Duration
	}
	if c.AvatarUploadExpiry.Duration != 0 {
		config.AvatarUploadExpiry = c.AvatarUploadExpiry.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.ScopeFanOut != 0 {
		config.ScopeFanOut = c.ScopeFanOut
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
