// Copyright 2026 Teyda Authors

// Package discord is the push-based platform adapter: it maintains a gateway
// websocket session for inbound events and drives the REST API for actions.
package discord

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/teyda/teyda/pkg/filestore"
	"github.com/teyda/teyda/pkg/onebot"
)

// Namespace is the file-id namespace for Discord-resident content.
const Namespace = "dc"

// Platform is the platform tag reported in canonical events.
const Platform = "discord"

// Lifecycle states.
const (
	stateStopped = iota
	stateStarting
	stateRunning
)

// Config is one Discord adapter instance.
type Config struct {
	Token string `yaml:"token"`
	// GatewayURL overrides the public gateway endpoint. Used by tests.
	GatewayURL string `yaml:"gateway_url,omitempty"`
	// APIBase overrides the public REST endpoint. Used by tests.
	APIBase string `yaml:"api_base,omitempty"`
	// RetryIntervalMS is the fixed backoff between failed identity probes or
	// dropped gateway sessions. Defaults to 500. Retries never give up;
	// prolonged offline state is observable through meta.status_update
	// events.
	RetryIntervalMS int `yaml:"retry_interval_ms,omitempty"`
}

func (c Config) gatewayURL() string {
	if c.GatewayURL == "" {
		return defaultGatewayURL
	}
	return c.GatewayURL
}

func (c Config) retryInterval() time.Duration {
	if c.RetryIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.RetryIntervalMS) * time.Millisecond
}

var supportedActions = []string{
	onebot.ActionGetSupportedActions,
	onebot.ActionGetStatus,
	onebot.ActionGetVersion,
	onebot.ActionSendMessage,
	onebot.ActionDeleteMessage,
	onebot.ActionGetSelfInfo,
	onebot.ActionGetUserInfo,
	onebot.ActionGetGroupInfo,
	onebot.ActionGetGroupMemberInfo,
	onebot.ActionSetGroupName,
	onebot.ActionLeaveGroup,
	onebot.ActionUploadFile,
	onebot.ActionUploadFileFragmented,
	onebot.ActionGetFile,
	onebot.ActionGetFileFragmented,
}

// Adapter owns one Discord bot session: the gateway connection, the action
// router and event translation.
type Adapter struct {
	config Config
	server onebot.Server
	store  *filestore.Store
	client *Client
	log    zerolog.Logger

	mu       sync.Mutex
	state    int
	online   bool
	self     onebot.Self
	stopChan chan struct{}

	// Gateway resume state, cleared when the platform invalidates the
	// session.
	sessionID string
	seq       int64
}

// New builds an adapter around a fresh REST client.
func New(cfg Config, factory onebot.ServerFactory, store *filestore.Store, log zerolog.Logger) *Adapter {
	componentLog := log.With().Str("component", "discord").Logger()
	a := &Adapter{
		config: cfg,
		store:  store,
		client: NewClient(cfg.Token, cfg.APIBase, componentLog),
		log:    componentLog,
		self:   onebot.Self{Platform: Platform},
	}
	a.server = factory(a.handleAction, a.handleReady)
	return a
}

// Start brings the session up. It is idempotent while the adapter is
// starting or running.
func (a *Adapter) Start() error {
	a.mu.Lock()
	if a.state != stateStopped {
		a.mu.Unlock()
		return nil
	}
	a.state = stateStarting
	stop := make(chan struct{})
	a.stopChan = stop
	a.mu.Unlock()

	go a.run(stop)
	return nil
}

// Stop tears the session down and halts reconnection. REST calls already
// dispatched are not aborted.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.state == stateStopped {
		a.mu.Unlock()
		return nil
	}
	a.state = stateStopped
	close(a.stopChan)
	a.mu.Unlock()
	return a.server.Shutdown()
}

// run probes the bot identity until it succeeds, then starts the hub server
// and hands over to the gateway loop. There is no startup deadline.
func (a *Adapter) run(stop chan struct{}) {
	for {
		if err := a.probe(); err == nil {
			break
		} else {
			a.log.Warn().Err(err).Msg("Identity probe failed, retrying")
		}
		select {
		case <-stop:
			return
		case <-time.After(a.config.retryInterval()):
		}
	}

	a.mu.Lock()
	if a.state == stateStarting {
		a.state = stateRunning
	}
	a.mu.Unlock()

	if err := a.server.Start(onebot.ConnectInfo{
		Impl:          onebot.Impl,
		Version:       onebot.ImplVersion,
		OneBotVersion: onebot.ProtocolVersion,
	}); err != nil {
		a.log.Error().Err(err).Msg("Hub server failed to start")
		return
	}

	a.gatewayLoop(stop)
}

// probe verifies the bot token against the REST API.
func (a *Adapter) probe() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	user, err := a.client.GetCurrentUser(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.self.UserID = user.ID
	a.mu.Unlock()
	a.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("Authenticated")
	return nil
}

// setOnline flips the liveness flag and emits a status update. Repeated
// identical signals are no-ops.
func (a *Adapter) setOnline(online bool) {
	a.mu.Lock()
	if a.online == online {
		a.mu.Unlock()
		return
	}
	a.online = online
	a.mu.Unlock()

	a.log.Info().Bool("online", online).Msg("Liveness changed")
	a.server.Send(a.statusUpdateEvent())
}

// handleReady emits the initial connect/status pair once the hub transport
// is live.
func (a *Adapter) handleReady() {
	a.server.Send(a.connectEvent())
	a.server.Send(a.statusUpdateEvent())
}

// status snapshots the liveness report derived from adapter state.
func (a *Adapter) status() *onebot.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &onebot.Status{
		Good: a.online && a.state == stateRunning,
		Bots: []onebot.BotStatus{{Self: a.self, Online: a.online}},
	}
}

func (a *Adapter) selfID() onebot.Self {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.self
}
