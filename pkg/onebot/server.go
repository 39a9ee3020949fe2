// Copyright 2026 Teyda Authors

package onebot

import (
	"context"
	"sync"
)

// Handler processes one canonical action request and returns its response.
// Implementations must always echo the request's correlation token back.
type Handler func(ctx context.Context, req *Request) *Response

// ConnectInfo describes the implementation to the hub server at startup.
type ConnectInfo struct {
	Impl          string
	Version       string
	OneBotVersion string
}

// Server is the hub-protocol transport contract the adapters drive. The wire
// framing and connection management live outside this module; adapters only
// push events out and have their handler invoked for inbound actions.
type Server interface {
	Start(info ConnectInfo) error
	Shutdown() error
	Send(evt *Event)
}

// ServerFactory builds a Server bound to an action handler. onReady, when
// non-nil, is invoked once the transport is live so the adapter can emit its
// initial connect/status events.
type ServerFactory func(handler Handler, onReady func()) Server

// maxBufferedEvents caps the retained event log. The in-process server has
// no push transport, so without a cap an unattended process would grow the
// log for as long as any adapter receives traffic; once full, the oldest
// events are dropped.
const maxBufferedEvents = 4096

// LocalServer is an in-process Server used by tests and embedders. It
// records outbound events and exposes the handler for direct invocation.
type LocalServer struct {
	handler Handler
	onReady func()

	mu      sync.Mutex
	started bool
	events  []*Event
}

var _ Server = (*LocalServer)(nil)

// NewLocalServer builds a LocalServer. It satisfies ServerFactory.
func NewLocalServer(handler Handler, onReady func()) Server {
	return &LocalServer{handler: handler, onReady: onReady}
}

func (s *LocalServer) Start(_ ConnectInfo) error {
	s.mu.Lock()
	already := s.started
	s.started = true
	s.mu.Unlock()
	if !already && s.onReady != nil {
		s.onReady()
	}
	return nil
}

func (s *LocalServer) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *LocalServer) Send(evt *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= maxBufferedEvents {
		n := copy(s.events, s.events[1:])
		s.events = s.events[:n]
	}
	s.events = append(s.events, evt)
}

// Do routes a request through the registered handler.
func (s *LocalServer) Do(ctx context.Context, req *Request) *Response {
	return s.handler(ctx, req)
}

// Events returns a copy of everything sent so far.
func (s *LocalServer) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*Event, len(s.events))
	copy(cp, s.events)
	return cp
}
