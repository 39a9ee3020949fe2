// Copyright 2026 Teyda Authors

// Package telegram is the pull-based platform adapter: it drives a long-poll
// update loop against the Bot API, translates updates into canonical events
// and routes canonical actions onto Bot API calls.
package telegram

import (
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/teyda/teyda/pkg/filestore"
	"github.com/teyda/teyda/pkg/onebot"
)

// Namespace is the file-id namespace for Telegram-resident content.
const Namespace = "tg"

// Platform is the platform tag reported in canonical events.
const Platform = "telegram"

// Lifecycle states.
const (
	stateStopped = iota
	stateStarting
	stateRunning
)

// Config is one Telegram adapter instance.
type Config struct {
	Token       string `yaml:"token"`
	APIEndpoint string `yaml:"api_endpoint,omitempty"`
	// PollTimeout is the long-poll timeout in seconds. Defaults to 60.
	PollTimeout int `yaml:"poll_timeout,omitempty"`
	// RetryIntervalMS is the fixed backoff between failed polls or identity
	// probes. Defaults to 500. Retries never give up; prolonged offline
	// state is observable through meta.status_update events.
	RetryIntervalMS int `yaml:"retry_interval_ms,omitempty"`
}

func (c Config) pollTimeout() int {
	if c.PollTimeout <= 0 {
		return 60
	}
	return c.PollTimeout
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

// Adapter owns one Telegram bot session: its polling loop, action router
// and event translation.
type Adapter struct {
	config Config
	server onebot.Server
	store  *filestore.Store
	log    zerolog.Logger

	mu       sync.Mutex
	state    int
	online   bool
	self     onebot.Self
	offset   int
	api      API
	stopChan chan struct{}
}

// New builds an adapter. The Bot API client is dialed during Start so a
// broken token or unreachable API never fails construction.
func New(cfg Config, factory onebot.ServerFactory, store *filestore.Store, log zerolog.Logger) *Adapter {
	a := &Adapter{
		config: cfg,
		store:  store,
		log:    log.With().Str("component", "telegram").Logger(),
		self:   onebot.Self{Platform: Platform},
	}
	a.server = factory(a.handleAction, a.handleReady)
	return a
}

// NewWithAPI builds an adapter around an existing platform client,
// bypassing the dial-time identity probe. Used by tests.
func NewWithAPI(cfg Config, factory onebot.ServerFactory, store *filestore.Store, api API, log zerolog.Logger) *Adapter {
	a := New(cfg, factory, store, log)
	a.api = api
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

// Stop tears the session down and halts reconnection. Calls already
// dispatched to the platform are not aborted.
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
// and enters the polling loop. There is no startup deadline.
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

	a.pollLoop(stop)
}

// probe dials the client if needed and verifies the bot identity.
func (a *Adapter) probe() error {
	a.mu.Lock()
	api := a.api
	a.mu.Unlock()

	if api == nil {
		dialed, err := dial(a.config)
		if err != nil {
			return err
		}
		api = dialed
	}
	me, err := api.GetMe()
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.api = api
	a.self.UserID = strconv.FormatInt(me.ID, 10)
	a.mu.Unlock()
	a.log.Info().Str("user_id", a.self.UserID).Str("username", me.UserName).Msg("Authenticated")
	return nil
}

// pollLoop is strictly sequential: one outstanding getUpdates request at a
// time, cursor advanced to the highest update id seen. Failures flip the
// liveness signal and back off; they never terminate the loop.
func (a *Adapter) pollLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		updates, err := a.apiClient().GetUpdates(tgbotapi.UpdateConfig{
			Offset:  a.offset + 1,
			Timeout: a.config.pollTimeout(),
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("Poll failed")
			a.setOnline(false)
			select {
			case <-stop:
				return
			case <-time.After(a.config.retryInterval()):
			}
			continue
		}

		a.setOnline(true)
		for _, update := range updates {
			if update.UpdateID > a.offset {
				a.offset = update.UpdateID
			}
			a.handleUpdate(update)
		}
	}
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

// apiClient snapshots the platform client. probe replaces it under the same
// mutex, so callers outside the polling goroutine must go through here.
func (a *Adapter) apiClient() API {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.api
}
