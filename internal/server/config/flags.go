package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authmaker/internal/flagx"
)

var serverFlags = []string{"-a", "-d", "-s", "-t", "-k", "-f", "-x", "-u", "-p", "-b", "-g", "-e", "-l"}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   service token HMAC secret key
//	-t int      service token validity, minutes
//	-k int      bcrypt cost
//	-f int      scope loader fan-out
//	-x int      avatar upload URL validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   log level
//
// Duration flags are accepted as integers in minutes.
func parseFlags(config *Config, osArgs []string) error {
	args := flagx.FilterArgs(osArgs, serverFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.ServiceTokenValidityDuration.Minutes()), "service token validity (in minutes)")
	fs.IntVar(&config.BcryptCost, "k", config.BcryptCost, "bcrypt cost")
	fs.IntVar(&config.ScopeFanOut, "f", config.ScopeFanOut, "concurrent scope loads")
	uploadExpiry := fs.Int("x", int(config.AvatarUploadExpiry.Minutes()), "avatar upload URL validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	config.ServiceTokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
	config.AvatarUploadExpiry = time.Duration(*uploadExpiry) * time.Minute
	return nil
}
