// Copyright 2026 Teyda Authors

package discord

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

var (
	errReconnectRequested = errors.New("discord: gateway requested reconnect")
	errSessionInvalidated = errors.New("discord: gateway invalidated the session")
)

// gatewayLoop runs websocket sessions until stop closes. Every session end,
// clean or not, flips liveness off and reconnects after the retry interval;
// whether the next session resumes or re-identifies depends on the resume
// state the previous one left behind.
func (a *Adapter) gatewayLoop(stop chan struct{}) {
	for {
		if err := a.runSession(stop); err != nil {
			a.log.Warn().Err(err).Msg("Gateway session ended")
		}
		a.setOnline(false)

		select {
		case <-stop:
			return
		case <-time.After(a.config.retryInterval()):
		}
	}
}

// session is the per-connection write side: one mutex serializes the
// heartbeat goroutine against the read loop's replies.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) send(payload gatewayPayload) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// runSession drives one websocket connection through the handshake and
// dispatch stream. It returns when the connection drops or the platform
// asks for a reconnect.
func (a *Adapter) runSession(stop chan struct{}) error {
	conn, _, err := websocket.DefaultDialer.Dial(a.config.gatewayURL(), nil)
	if err != nil {
		return err
	}
	sess := &session{conn: conn}

	// Unblock the read loop when the adapter stops.
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()
	go func() {
		select {
		case <-stop:
			conn.Close()
		case <-done:
		}
	}()

	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			return err
		}
		switch payload.Op {
		case opHello:
			if err := a.handleHello(sess, payload.D, done, stop); err != nil {
				return err
			}
		case opDispatch:
			a.recordSeq(payload.S)
			a.handleDispatch(payload.T, payload.D)
		case opHeartbeat:
			if err := sess.send(a.heartbeatPayload()); err != nil {
				return err
			}
		case opHeartbeatACK:
			// Nothing to track; a dead connection surfaces as a read error.
		case opReconnect:
			return errReconnectRequested
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(payload.D, &resumable)
			if !resumable {
				a.clearResumeState()
			}
			return errSessionInvalidated
		default:
			a.log.Trace().Int("op", payload.Op).Msg("Unhandled gateway opcode")
		}
	}
}

// handleHello starts the heartbeat schedule and answers with either a resume
// or a fresh identify, depending on whether the previous session left resume
// state behind.
func (a *Adapter) handleHello(sess *session, data json.RawMessage, done, stop chan struct{}) error {
	var hello helloData
	if err := json.Unmarshal(data, &hello); err != nil {
		return err
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	go a.heartbeatLoop(sess, interval, done, stop)

	a.mu.Lock()
	sessionID := a.sessionID
	seq := a.seq
	a.mu.Unlock()

	if sessionID != "" {
		a.log.Debug().Str("session_id", sessionID).Int64("seq", seq).Msg("Resuming gateway session")
		resume, err := json.Marshal(resumeData{Token: a.config.Token, SessionID: sessionID, Seq: seq})
		if err != nil {
			return err
		}
		return sess.send(gatewayPayload{Op: opResume, D: resume})
	}

	a.log.Debug().Msg("Identifying gateway session")
	identify, err := json.Marshal(identifyData{
		Token: a.config.Token,
		Intents: intentGuilds | intentGuildMembers | intentGuildMessages |
			intentDirectMessages | intentMessageContent,
		Properties: identifyProperties{OS: "linux", Browser: "teyda", Device: "teyda"},
	})
	if err != nil {
		return err
	}
	return sess.send(gatewayPayload{Op: opIdentify, D: identify})
}

func (a *Adapter) heartbeatLoop(sess *session, interval time.Duration, done, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := sess.send(a.heartbeatPayload()); err != nil {
				return
			}
		}
	}
}

// heartbeatPayload carries the last seen sequence number, null before any
// dispatch arrived.
func (a *Adapter) heartbeatPayload() gatewayPayload {
	a.mu.Lock()
	seq := a.seq
	a.mu.Unlock()

	d := json.RawMessage("null")
	if seq > 0 {
		d, _ = json.Marshal(seq)
	}
	return gatewayPayload{Op: opHeartbeat, D: d}
}

func (a *Adapter) recordSeq(seq int64) {
	a.mu.Lock()
	if seq > a.seq {
		a.seq = seq
	}
	a.mu.Unlock()
}

func (a *Adapter) clearResumeState() {
	a.mu.Lock()
	a.sessionID = ""
	a.seq = 0
	a.mu.Unlock()
}
