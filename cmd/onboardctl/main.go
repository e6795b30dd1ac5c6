package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JonMunkholm/agrionboard/internal/application"
	"github.com/JonMunkholm/agrionboard/internal/cli"
	"github.com/JonMunkholm/agrionboard/internal/config"
	"github.com/JonMunkholm/agrionboard/internal/logging"
	"github.com/joho/godotenv"
)

func main() {
	// Unlike the server, the shell environment wins over .env here.
	_ = godotenv.Load()

	build := func(ctx context.Context) (*application.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		return application.Build(ctx, cfg)
	}

	if err := cli.NewRootCmd(build).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
