// Copyright 2026 Teyda Authors

// Command teyda bridges Telegram and Discord bot accounts onto the OneBot 12
// protocol: platform traffic is translated into canonical events and
// canonical actions are routed back onto the platform APIs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exerrors"

	"github.com/teyda/teyda/pkg/onebot"
	"github.com/teyda/teyda/pkg/teyda"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "teyda",
	Short:         "A OneBot 12 implementation for Telegram and Discord",
	Version:       fmt.Sprintf("%s (%s, built %s)", Tag, Commit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringP("config", "c", "config.yaml", "path to the configuration file")
}

func run(cmd *cobra.Command, _ []string) error {
	configPath := exerrors.Must(cmd.Flags().GetString("config"))
	cfg, err := teyda.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.StampMilli,
	}).Level(cfg.Level()).With().Timestamp().Logger()
	log.Info().Str("tag", Tag).Str("commit", Commit).Msg("Starting teyda")

	core := teyda.New(cfg, onebot.NewLocalServer, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return core.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
