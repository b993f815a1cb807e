package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"server_endpoint_addr": "example:1",
		"secret_key":           "s",
		"operator":             "ops",
		"token_validity":       "2m",
		"request_timeout":      int64(time.Second),
	})

	cfg := &Config{}
	require.NoError(t, parseJson(cfg, []string{"-c", path}))
	assert.Equal(t, &Config{
		ServerEndpointAddr: "example:1",
		SecretKey:          "s",
		Operator:           "ops",
		TokenValidity:      2 * time.Minute,
		RequestTimeout:     time.Second,
	}, cfg)

	t.Run("no file", func(t *testing.T) {
		cfg := &Config{Operator: "keep"}
		require.NoError(t, parseJson(cfg, []string{"show"}))
		assert.Equal(t, "keep", cfg.Operator)
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("[1,"), 0o600))
		assert.ErrorContains(t, parseJson(&Config{}, []string{"-c", bad}), "decode config")
	})
}
