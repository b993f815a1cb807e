package config

import (
	"flag"
	"fmt"
	"time"
)

// parseFlags reads the global flags that precede the sub-command and
// returns the remaining arguments.
//
// Supported flags (short forms):
//
//	-a string   address and port of the backend server
//	-s string   shared secret for service tokens
//	-o string   operator name
//	-t int      request timeout in seconds
//	-c, -config path to a JSON config file (read by parseJson)
func parseFlags(cfg *Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("authmaker-cli", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "service token secret")
	fs.StringVar(&cfg.Operator, "o", cfg.Operator, "operator name")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	var ignored string
	fs.StringVar(&ignored, "c", "", "path to JSON config file (short)")
	fs.StringVar(&ignored, "config", "", "path to JSON config file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	return fs.Args(), nil
}
