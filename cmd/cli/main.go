package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authmaker/internal/client/cli"
	"github.com/dmitrijs2005/authmaker/internal/client/client"
	"github.com/dmitrijs2005/authmaker/internal/client/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, args, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	c, err := client.NewGRPCClient(client.Options{
		EndpointURL:    cfg.ServerEndpointAddr,
		Operator:       cfg.Operator,
		SecretKey:      cfg.SecretKey,
		TokenValidity:  cfg.TokenValidity,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		return 1
	}
	defer c.Close()

	if err := cli.NewApp(c, os.Stdout).Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}
