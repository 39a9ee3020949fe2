// Copyright 2026 Teyda Authors

// Package testinfra runs end-to-end tests of the assembled bridge: a core
// with one Telegram and one Discord adapter, wired against in-process fake
// platform backends. The full pipeline is covered in both directions:
// platform payload -> canonical event, and canonical action -> platform API
// call, including the shared file store between adapters.
package testinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/teyda/teyda/pkg/discord"
	"github.com/teyda/teyda/pkg/onebot"
	"github.com/teyda/teyda/pkg/telegram"
	"github.com/teyda/teyda/pkg/teyda"
)

// fakeTelegram is a minimal Bot API backend: it serves getMe, hands out one
// scripted update batch and records sent messages.
type fakeTelegram struct {
	mu        sync.Mutex
	served    bool
	sendForms []map[string]string
}

func (f *fakeTelegram) handler() http.Handler {
	writeResult := func(w http.ResponseWriter, result any) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		switch method {
		case "getMe":
			writeResult(w, map[string]any{
				"id": 100, "is_bot": true, "first_name": "Teyda", "username": "teyda_bot",
			})
		case "getUpdates":
			f.mu.Lock()
			served := f.served
			f.served = true
			f.mu.Unlock()
			if served {
				time.Sleep(10 * time.Millisecond)
				writeResult(w, []any{})
				return
			}
			writeResult(w, []any{map[string]any{
				"update_id": 5,
				"message": map[string]any{
					"message_id": 1,
					"date":       1700000000,
					"chat":       map[string]any{"id": 42, "type": "private"},
					"from":       map[string]any{"id": 42, "first_name": "User"},
					"text":       "ping",
				},
			}})
		case "sendMessage":
			r.ParseForm()
			form := make(map[string]string)
			for k := range r.Form {
				form[k] = r.Form.Get(k)
			}
			f.mu.Lock()
			f.sendForms = append(f.sendForms, form)
			f.mu.Unlock()
			writeResult(w, map[string]any{
				"message_id": 77,
				"date":       1700000100,
				"chat":       map[string]any{"id": 42, "type": "private"},
			})
		default:
			writeResult(w, map[string]any{})
		}
	})
}

func (f *fakeTelegram) sentForms() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sendForms...)
}

// fakeDiscord is a minimal gateway plus REST backend: the gateway performs
// the hello/identify/ready handshake and delivers one scripted message.
type fakeDiscord struct {
	upgrader websocket.Upgrader
}

func (f *fakeDiscord) gateway(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteJSON(map[string]any{"op": 10, "d": map[string]any{"heartbeat_interval": 45000}})
	if _, _, err := conn.ReadMessage(); err != nil { // identify or resume
		return
	}
	conn.WriteJSON(map[string]any{
		"op": 0, "s": 1, "t": "READY",
		"d": map[string]any{"session_id": "sess-e2e", "user": map[string]any{"id": "200"}},
	})
	conn.WriteJSON(map[string]any{
		"op": 0, "s": 2, "t": "MESSAGE_CREATE",
		"d": map[string]any{
			"id":         "901",
			"channel_id": "500",
			"guild_id":   "77",
			"author":     map[string]any{"id": "9", "username": "ada"},
			"content":    "pong",
		},
	})
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	conn.ReadMessage()
}

func (f *fakeDiscord) rest() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "200", "username": "teyda"})
	})
	return mux
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func findEvent(events []*onebot.Event, match func(*onebot.Event) bool) *onebot.Event {
	for _, evt := range events {
		if match(evt) {
			return evt
		}
	}
	return nil
}

// TestBridgeEndToEnd boots a full core against both fake platforms and
// checks the complete pipeline.
func TestBridgeEndToEnd(t *testing.T) {
	tg := &fakeTelegram{}
	tgSrv := httptest.NewServer(tg.handler())
	defer tgSrv.Close()

	dc := &fakeDiscord{}
	dcMux := http.NewServeMux()
	dcMux.Handle("/", dc.rest())
	dcMux.HandleFunc("/gateway", dc.gateway)
	dcSrv := httptest.NewServer(dcMux)
	defer dcSrv.Close()

	cfg := &teyda.Config{
		DataDir: t.TempDir(),
		Telegram: []telegram.Config{{
			Token:           "tg-token",
			APIEndpoint:     tgSrv.URL + "/bot%s/%s",
			PollTimeout:     1,
			RetryIntervalMS: 1,
		}},
		Discord: []discord.Config{{
			Token:           "dc-token",
			APIBase:         dcSrv.URL,
			GatewayURL:      "ws" + strings.TrimPrefix(dcSrv.URL, "http") + "/gateway",
			RetryIntervalMS: 1,
		}},
	}

	// Adapters are built in config order: telegram first, then discord.
	var (
		mu      sync.Mutex
		servers []*onebot.LocalServer
	)
	factory := func(handler onebot.Handler, onReady func()) onebot.Server {
		ls := onebot.NewLocalServer(handler, onReady).(*onebot.LocalServer)
		mu.Lock()
		servers = append(servers, ls)
		mu.Unlock()
		return ls
	}

	core := teyda.New(cfg, factory, zerolog.Nop())
	if err := core.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer core.Stop()

	mu.Lock()
	if len(servers) != 2 {
		mu.Unlock()
		t.Fatalf("got %d hub servers, want 2", len(servers))
	}
	tgServer, dcServer := servers[0], servers[1]
	mu.Unlock()

	// Inbound: both platforms produce a message event.
	waitFor(t, 5*time.Second, func() bool {
		return findEvent(tgServer.Events(), func(e *onebot.Event) bool { return e.Type == onebot.EventMessage }) != nil
	}, "telegram message event")
	waitFor(t, 5*time.Second, func() bool {
		return findEvent(dcServer.Events(), func(e *onebot.Event) bool { return e.Type == onebot.EventMessage }) != nil
	}, "discord message event")

	tgMsg := findEvent(tgServer.Events(), func(e *onebot.Event) bool { return e.Type == onebot.EventMessage })
	if tgMsg.MessageID != "42/1" || tgMsg.AltMessage != "ping" || tgMsg.Self.Platform != "telegram" {
		t.Errorf("telegram event = %#v", tgMsg)
	}
	dcMsg := findEvent(dcServer.Events(), func(e *onebot.Event) bool { return e.Type == onebot.EventMessage })
	if dcMsg.MessageID != "500/901" || dcMsg.AltMessage != "pong" || dcMsg.Self.UserID != "200" {
		t.Errorf("discord event = %#v", dcMsg)
	}

	// Both adapters announced themselves before any message.
	for name, server := range map[string]*onebot.LocalServer{"telegram": tgServer, "discord": dcServer} {
		events := server.Events()
		if events[0].DetailType != "connect" {
			t.Errorf("%s first event = %s, want meta.connect", name, events[0].DetailType)
		}
		online := findEvent(events, func(e *onebot.Event) bool {
			return e.DetailType == "status_update" && e.Status.Good
		})
		if online == nil {
			t.Errorf("%s never reported itself online", name)
		}
	}

	// Outbound: a canonical send_message lands on the platform API.
	ctx := context.Background()
	params, _ := json.Marshal(onebot.SendMessageParams{
		DetailType: "private",
		UserID:     "42",
		Message:    onebot.Message{onebot.Text("reply from hub")},
	})
	resp := tgServer.Do(ctx, &onebot.Request{Action: onebot.ActionSendMessage, Params: params, Echo: "e2e-1"})
	if resp.Status != onebot.StatusOK || resp.Echo != "e2e-1" {
		t.Fatalf("send_message response = %#v", resp)
	}
	if id := resp.Data.(*onebot.SendMessageResult).MessageID; id != "42/77" {
		t.Errorf("message_id = %q, want 42/77", id)
	}
	forms := tg.sentForms()
	if len(forms) != 1 || forms[0]["text"] != "reply from hub" || forms[0]["chat_id"] != "42" {
		t.Errorf("platform received %#v", forms)
	}

	// Shared store: a file uploaded through one adapter is readable through
	// the other.
	upload, _ := json.Marshal(onebot.UploadFileParams{Type: "data", Name: "shared.txt", Data: []byte("shared")})
	resp = tgServer.Do(ctx, &onebot.Request{Action: onebot.ActionUploadFile, Params: upload})
	if resp.Status != onebot.StatusOK {
		t.Fatalf("upload_file response = %#v", resp)
	}
	fileID := resp.Data.(*onebot.FileIDResult).FileID

	get, _ := json.Marshal(onebot.GetFileParams{FileID: fileID, Type: "data"})
	resp = dcServer.Do(ctx, &onebot.Request{Action: onebot.ActionGetFile, Params: get})
	if resp.Status != onebot.StatusOK {
		t.Fatalf("get_file response = %#v", resp)
	}
	if got := resp.Data.(*onebot.GetFileResult); string(got.Data) != "shared" {
		t.Errorf("cross-adapter file = %q", got.Data)
	}

	// Unknown actions fail uniformly on every adapter.
	for _, server := range []*onebot.LocalServer{tgServer, dcServer} {
		resp := server.Do(ctx, &onebot.Request{Action: "set_avatar", Echo: "nope"})
		if resp.Retcode != onebot.RetUnsupportedAction || resp.Echo != "nope" {
			t.Errorf("unsupported action response = %#v", resp)
		}
	}

	if err := core.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

// TestBridgeSurvivesPlatformOutage verifies that a failing platform flips
// liveness instead of killing the adapter.
func TestBridgeSurvivesPlatformOutage(t *testing.T) {
	var (
		mu   sync.Mutex
		fail bool
	)
	writeResult := func(w http.ResponseWriter, result any) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		mu.Lock()
		down := fail
		mu.Unlock()
		switch {
		case method == "getMe":
			writeResult(w, map[string]any{"id": 100, "is_bot": true, "first_name": "Teyda"})
		case down:
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"ok":false,"error_code":502,"description":"bad gateway"}`)
		default:
			time.Sleep(5 * time.Millisecond)
			writeResult(w, []any{})
		}
	}))
	defer srv.Close()

	var server *onebot.LocalServer
	factory := func(handler onebot.Handler, onReady func()) onebot.Server {
		server = onebot.NewLocalServer(handler, onReady).(*onebot.LocalServer)
		return server
	}
	core := teyda.New(&teyda.Config{
		DataDir: t.TempDir(),
		Telegram: []telegram.Config{{
			Token:           "tg-token",
			APIEndpoint:     srv.URL + "/bot%s/%s",
			PollTimeout:     1,
			RetryIntervalMS: 1,
		}},
	}, factory, zerolog.Nop())
	if err := core.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer core.Stop()

	statusFlips := func() []bool {
		var flips []bool
		for _, evt := range server.Events() {
			if evt.DetailType == "status_update" {
				flips = append(flips, evt.Status.Good)
			}
		}
		return flips
	}

	waitFor(t, 5*time.Second, func() bool {
		flips := statusFlips()
		return len(flips) > 0 && flips[len(flips)-1]
	}, "adapter online")

	mu.Lock()
	fail = true
	mu.Unlock()
	waitFor(t, 5*time.Second, func() bool {
		flips := statusFlips()
		return len(flips) > 0 && !flips[len(flips)-1]
	}, "adapter offline after outage")

	mu.Lock()
	fail = false
	mu.Unlock()
	waitFor(t, 5*time.Second, func() bool {
		flips := statusFlips()
		return len(flips) > 0 && flips[len(flips)-1]
	}, "adapter back online after recovery")
}
