// Copyright 2026 Teyda Authors

package teyda

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/teyda/teyda/pkg/discord"
	"github.com/teyda/teyda/pkg/onebot"
	"github.com/teyda/teyda/pkg/telegram"
)

type stubAdapter struct {
	started  atomic.Int32
	stopped  atomic.Int32
	startErr error
}

func (s *stubAdapter) Start() error {
	s.started.Add(1)
	return s.startErr
}

func (s *stubAdapter) Stop() error {
	s.stopped.Add(1)
	return nil
}

func TestNewBuildsAdapterPerEntry(t *testing.T) {
	cfg := &Config{
		DataDir:  t.TempDir(),
		Telegram: []telegram.Config{{Token: "t1"}, {Token: "t2"}},
		Discord:  []discord.Config{{Token: "d1"}},
	}
	core := New(cfg, onebot.NewLocalServer, zerolog.Nop())
	if len(core.adapters) != 3 {
		t.Errorf("got %d adapters, want 3", len(core.adapters))
	}
	if core.Store() == nil || core.Store().Root() != cfg.DataDir {
		t.Errorf("store root = %#v", core.Store())
	}
}

func TestCoreStartStop(t *testing.T) {
	a1, a2 := &stubAdapter{}, &stubAdapter{}
	core := &Core{log: zerolog.Nop(), adapters: []Adapter{a1, a2}}

	if err := core.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if a1.started.Load() != 1 || a2.started.Load() != 1 {
		t.Errorf("start counts = %d/%d", a1.started.Load(), a2.started.Load())
	}
	if err := core.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if a1.stopped.Load() != 1 || a2.stopped.Load() != 1 {
		t.Errorf("stop counts = %d/%d", a1.stopped.Load(), a2.stopped.Load())
	}
}

func TestCoreStartErrorPropagates(t *testing.T) {
	failing := &stubAdapter{startErr: errors.New("bad token")}
	core := &Core{log: zerolog.Nop(), adapters: []Adapter{&stubAdapter{}, failing}}
	if err := core.Start(); err == nil {
		t.Errorf("Start() swallowed adapter error")
	}
}

func TestCoreRunStopsOnCancel(t *testing.T) {
	a := &stubAdapter{}
	core := &Core{log: zerolog.Nop(), adapters: []Adapter{a}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- core.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if a.started.Load() != 1 || a.stopped.Load() != 1 {
		t.Errorf("lifecycle counts = %d/%d", a.started.Load(), a.stopped.Load())
	}
}
