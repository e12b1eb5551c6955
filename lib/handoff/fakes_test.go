// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/switchboard/lib/bus"
	"github.com/bureau-foundation/switchboard/lib/bus/bustest"
	"github.com/bureau-foundation/switchboard/lib/trace"
)

// eventLog records the order in which fakes were exercised.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeSpawner struct {
	log     *eventLog
	onStart func(argv []string)
	err     error
	started [][]string
}

func (s *fakeSpawner) Start(argv []string) (int, error) {
	s.log.add("spawn")
	if s.err != nil {
		return 0, s.err
	}
	s.started = append(s.started, argv)
	if s.onStart != nil {
		s.onStart(argv)
	}
	return 900, nil
}

type fakeProcesses struct {
	mu          sync.Mutex
	log         *eventLog
	running     map[string]bool
	alive       map[int]bool
	onTerminate func(name string)
	terminated  []string
}

func (p *fakeProcesses) Running(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[name]
}

func (p *fakeProcesses) Alive(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid]
}

func (p *fakeProcesses) TerminateAll(name string, grace time.Duration) ([]int, error) {
	p.mu.Lock()
	p.terminated = append(p.terminated, name)
	wasRunning := p.running[name]
	p.running[name] = false
	callback := p.onTerminate
	p.mu.Unlock()

	p.log.add("terminate " + name)
	if callback != nil {
		callback(name)
	}
	if wasRunning {
		return []int{900}, nil
	}
	return nil, nil
}

type fakeDirWatch struct {
	log       *eventLog
	directory string
	events    chan string
	mu        sync.Mutex
	closed    bool
}

func (w *fakeDirWatch) Next(ctx context.Context, name string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case path := <-w.events:
			if lastElement(path) == name {
				return path, nil
			}
		}
	}
}

func (w *fakeDirWatch) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		w.log.add("close dir watch")
	}
	return nil
}

func (w *fakeDirWatch) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func lastElement(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// scriptedTracer replays a fixed sequence of trace events.
type scriptedTracer struct {
	log      *eventLog
	script   []trace.Event
	attached []int
	resumed  []unix.Signal
	closed   bool
	err      error
}

func (t *scriptedTracer) Attach(pid int) (trace.Session, error) {
	t.log.add("attach")
	if t.err != nil {
		return nil, t.err
	}
	t.attached = append(t.attached, pid)
	return &scriptedSession{tracer: t, pid: pid}, nil
}

type scriptedSession struct {
	tracer *scriptedTracer
	pid    int
	next   int
}

func (s *scriptedSession) PID() int { return s.pid }

func (s *scriptedSession) Wait() (trace.Event, error) {
	if s.next >= len(s.tracer.script) {
		return trace.Event{}, errors.New("script exhausted")
	}
	event := s.tracer.script[s.next]
	s.next++
	return event, nil
}

func (s *scriptedSession) Resume(signal unix.Signal) error {
	s.tracer.resumed = append(s.tracer.resumed, signal)
	return nil
}

func (s *scriptedSession) Close() error {
	s.tracer.closed = true
	return nil
}

// peer simulates the stock browser's bus behavior: it waits until the
// identity is free and then claims it, the way a queued name request
// would.
type peer struct {
	conn    *bustest.Conn
	claimed chan struct{}
}

func newPeer(b *bustest.Bus, exclusive bool) *peer {
	conn := b.Connect()
	conn.Exclusive = exclusive
	return &peer{conn: conn, claimed: make(chan struct{})}
}

func (p *peer) claimWhenFree(name string) {
	subscription, err := p.conn.WatchOwner(name)
	if err != nil {
		panic(err)
	}
	go func() {
		for {
			if owner, _ := p.conn.NameOwner(name); owner == "" {
				if err := p.conn.RequestName(name); err == nil {
					subscription.Close()
					close(p.claimed)
					return
				}
			}
			if _, ok := <-subscription.Changes(); !ok {
				return
			}
		}
	}()
}

// dispatchRecorder serves the peer's request channel.
type dispatchRecorder struct {
	mu    sync.Mutex
	calls []bustest.Call
	err   error
}

func (r *dispatchRecorder) handler(ctx context.Context, target bus.Address, method string, args []any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, bustest.Call{Target: target, Method: method, Args: args})
	return r.err
}

func (r *dispatchRecorder) list() []bustest.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bustest.Call(nil), r.calls...)
}
