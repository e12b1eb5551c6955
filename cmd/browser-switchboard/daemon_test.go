// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/switchboard/lib/dispatch"
	"github.com/bureau-foundation/switchboard/lib/handoff"
	"github.com/bureau-foundation/switchboard/lib/launch"
	"github.com/bureau-foundation/switchboard/lib/oscbrowser"
	"github.com/bureau-foundation/switchboard/lib/testutil"
)

// recordingDispatcher records requests and reloads on the loop
// goroutine and reports each request on handled.
type recordingDispatcher struct {
	requests []dispatch.Request
	reloads  []dispatch.Settings
	err      error
	handled  chan struct{}
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, request dispatch.Request) error {
	r.requests = append(r.requests, request)
	r.handled <- struct{}{}
	return r.err
}

func (r *recordingDispatcher) Reload(settings dispatch.Settings) {
	r.reloads = append(r.reloads, settings)
}

type loopHarness struct {
	dispatcher *recordingDispatcher
	calls      chan oscbrowser.Call
	signals    chan os.Signal
	reaped     chan struct{}
	daemon     *daemon
	done       chan error
}

func newLoopHarness(continuous bool) *loopHarness {
	h := &loopHarness{
		dispatcher: &recordingDispatcher{handled: make(chan struct{}, 8)},
		calls:      make(chan oscbrowser.Call),
		signals:    make(chan os.Signal),
		reaped:     make(chan struct{}, 8),
		done:       make(chan error, 1),
	}
	h.daemon = &daemon{
		dispatcher: h.dispatcher,
		calls:      h.calls,
		signals:    h.signals,
		reap: func() []launch.Exited {
			h.reaped <- struct{}{}
			return []launch.Exited{{PID: 77}}
		},
		reload: func() dispatch.Settings {
			return dispatch.Settings{DefaultBrowser: "tear"}
		},
		continuous: continuous,
		logger:     slog.New(slog.DiscardHandler),
	}
	return h
}

func (h *loopHarness) start(ctx context.Context) {
	go func() { h.done <- h.daemon.loop(ctx) }()
}

func TestOneShotExitsAfterFirstRequest(t *testing.T) {
	h := newLoopHarness(false)
	h.start(t.Context())

	address := "http://example.com"
	h.calls <- oscbrowser.Call{Method: "load_url", Request: dispatch.Request{URI: &address}}

	if err := testutil.RequireReceive(t, h.done, 5*time.Second, "waiting for loop exit"); err != nil {
		t.Fatalf("loop returned %v", err)
	}
	if len(h.dispatcher.requests) != 1 || *h.dispatcher.requests[0].URI != address {
		t.Errorf("requests = %+v", h.dispatcher.requests)
	}
}

func TestContinuousKeepsServing(t *testing.T) {
	h := newLoopHarness(true)
	ctx, cancel := context.WithCancel(t.Context())
	h.start(ctx)

	for i := 0; i < 3; i++ {
		h.calls <- oscbrowser.Call{Method: "top_application", Request: dispatch.Request{ForceHandoff: true}}
	}
	h.signals <- syscall.SIGCHLD
	testutil.RequireReceive(t, h.reaped, 5*time.Second, "waiting for reap")
	h.signals <- syscall.SIGHUP

	cancel()
	if err := testutil.RequireReceive(t, h.done, 5*time.Second, "waiting for loop exit"); err != nil {
		t.Fatalf("loop returned %v", err)
	}
	if len(h.dispatcher.requests) != 3 {
		t.Errorf("handled %d requests, want 3", len(h.dispatcher.requests))
	}
	if len(h.dispatcher.reloads) != 1 || h.dispatcher.reloads[0].DefaultBrowser != "tear" {
		t.Errorf("reloads = %+v", h.dispatcher.reloads)
	}
}

func TestOneShotExitsOnHangup(t *testing.T) {
	h := newLoopHarness(false)
	h.start(t.Context())

	h.signals <- syscall.SIGHUP
	if err := testutil.RequireReceive(t, h.done, 5*time.Second, "waiting for loop exit"); err != nil {
		t.Fatalf("loop returned %v", err)
	}
	if len(h.dispatcher.reloads) != 0 {
		t.Error("one-shot daemon reloaded instead of exiting")
	}
}

func TestFatalHandoffErrorStopsLoop(t *testing.T) {
	h := newLoopHarness(true)
	h.dispatcher.err = fmt.Errorf("%w: subscribing to owner changes", handoff.ErrProtocolSetup)
	h.start(t.Context())

	h.calls <- oscbrowser.Call{Method: "load_url", Request: dispatch.Request{}}

	err := testutil.RequireReceive(t, h.done, 5*time.Second, "waiting for loop exit")
	if !errors.Is(err, handoff.ErrProtocolSetup) {
		t.Fatalf("loop returned %v, want ErrProtocolSetup", err)
	}
}

func TestLaunchFailureIsNotFatal(t *testing.T) {
	h := newLoopHarness(true)
	h.dispatcher.err = errors.New("launching fennec: exec: not found")
	ctx, cancel := context.WithCancel(t.Context())
	h.start(ctx)

	h.calls <- oscbrowser.Call{Method: "load_url", Request: dispatch.Request{}}
	h.calls <- oscbrowser.Call{Method: "load_url", Request: dispatch.Request{}}
	cancel()

	if err := testutil.RequireReceive(t, h.done, 5*time.Second, "waiting for loop exit"); err != nil {
		t.Fatalf("loop returned %v", err)
	}
	if len(h.dispatcher.requests) != 2 {
		t.Errorf("handled %d requests, want 2", len(h.dispatcher.requests))
	}
}
