// Copyright 2026 Teyda Authors

// Package teyda assembles the bridge: one shared file store, one adapter
// per configured bot account, all speaking the same canonical protocol
// through the injected hub server factory.
package teyda

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/teyda/teyda/pkg/discord"
	"github.com/teyda/teyda/pkg/filestore"
	"github.com/teyda/teyda/pkg/onebot"
	"github.com/teyda/teyda/pkg/telegram"
)

// Adapter is one platform bot session. Start must not block; Stop halts the
// session and its reconnection attempts.
type Adapter interface {
	Start() error
	Stop() error
}

// Core owns the configured adapters and their shared file store.
type Core struct {
	log      zerolog.Logger
	store    *filestore.Store
	adapters []Adapter
}

// New assembles a core from config. The factory decides how adapters reach
// the hub side; embedders pass their own transport, the CLI passes the
// in-process server.
func New(cfg *Config, factory onebot.ServerFactory, log zerolog.Logger) *Core {
	store := filestore.New(cfg.DataDir, log)
	adapters := make([]Adapter, 0, len(cfg.Telegram)+len(cfg.Discord))
	for _, tc := range cfg.Telegram {
		adapters = append(adapters, telegram.New(tc, factory, store, log))
	}
	for _, dc := range cfg.Discord {
		adapters = append(adapters, discord.New(dc, factory, store, log))
	}
	return &Core{
		log:      log.With().Str("component", "core").Logger(),
		store:    store,
		adapters: adapters,
	}
}

// Store exposes the shared file store.
func (c *Core) Store() *filestore.Store {
	return c.store
}

// Start brings every adapter up.
func (c *Core) Start() error {
	var group errgroup.Group
	for _, adapter := range c.adapters {
		group.Go(adapter.Start)
	}
	return group.Wait()
}

// Stop tears every adapter down, collecting the first error.
func (c *Core) Stop() error {
	var group errgroup.Group
	for _, adapter := range c.adapters {
		group.Go(adapter.Stop)
	}
	return group.Wait()
}

// Run starts the bridge and blocks until the context is canceled, then
// stops everything.
func (c *Core) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		_ = c.Stop()
		return err
	}
	c.log.Info().Int("adapters", len(c.adapters)).Msg("Bridge running")
	<-ctx.Done()
	c.log.Info().Msg("Shutting down")
	return c.Stop()
}
