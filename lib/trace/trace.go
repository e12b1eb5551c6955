// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace follows another process to its end using ptrace.
//
// The switchboard cannot wait for the peer's engine directly: the
// engine is not its child. Attaching as a tracer makes wait4 report the
// engine's stops and its exit, at the cost of intercepting every signal
// the engine receives. A consumer of a Session must resume each stop,
// passing the intercepted signal through so the engine behaves as if
// untraced.
//
// ptrace binds the tracee to the tracing OS thread, so a Session pins
// the calling goroutine to its thread from Attach until Close. Every
// Session method must be called from that goroutine.
package trace

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Kind classifies a traced process's state change.
type Kind int

const (
	// Stopped means the tracee is paused and waits to be resumed.
	Stopped Kind = iota

	// Exited means the tracee called exit.
	Exited

	// Signaled means the tracee was killed by a signal.
	Signaled
)

func (k Kind) String() string {
	switch k {
	case Stopped:
		return "stopped"
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one state change reported by Wait.
type Event struct {
	Kind Kind

	// Signal is the stop signal for Stopped and the fatal signal for
	// Signaled.
	Signal unix.Signal

	// ExitStatus is set for Exited.
	ExitStatus int
}

// Terminal reports whether the tracee is gone.
func (e Event) Terminal() bool {
	return e.Kind == Exited || e.Kind == Signaled
}

// Tracer attaches to processes.
type Tracer interface {
	Attach(pid int) (Session, error)
}

// Session is an attached trace of one process.
type Session interface {
	// PID returns the traced process.
	PID() int

	// Wait blocks until the tracee changes state.
	Wait() (Event, error)

	// Resume continues a stopped tracee, delivering signal. Zero
	// delivers nothing.
	Resume(signal unix.Signal) error

	// Close detaches if the tracee is still alive and releases the
	// OS thread.
	Close() error
}

// Ptrace is the production Tracer.
type Ptrace struct{}

// Attach begins tracing pid. The kernel stops the tracee with SIGSTOP
// as part of attaching; that stop is the first event Wait reports.
func (Ptrace) Attach(pid int) (Session, error) {
	runtime.LockOSThread()
	if err := unix.PtraceAttach(pid); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("attaching to pid %d: %w", pid, err)
	}
	return &ptraceSession{pid: pid}, nil
}

type ptraceSession struct {
	pid    int
	ended  bool
	closed bool

	// stopped is true between a stop reported by Wait and the next
	// successful Resume.
	stopped bool
}

func (s *ptraceSession) PID() int { return s.pid }

func (s *ptraceSession) Wait() (Event, error) {
	for {
		var status unix.WaitStatus
		_, err := unix.Wait4(s.pid, &status, unix.WALL, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return Event{}, fmt.Errorf("waiting for traced pid %d: %w", s.pid, err)
		}
		switch {
		case status.Exited():
			s.ended = true
			return Event{Kind: Exited, ExitStatus: status.ExitStatus()}, nil
		case status.Signaled():
			s.ended = true
			return Event{Kind: Signaled, Signal: status.Signal()}, nil
		case status.Stopped():
			s.stopped = true
			return Event{Kind: Stopped, Signal: status.StopSignal()}, nil
		}
		// Continued notifications carry nothing for the consumer.
	}
}

func (s *ptraceSession) Resume(signal unix.Signal) error {
	if err := unix.PtraceCont(s.pid, int(signal)); err != nil {
		return fmt.Errorf("resuming traced pid %d: %w", s.pid, err)
	}
	s.stopped = false
	return nil
}

func (s *ptraceSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer runtime.UnlockOSThread()
	if s.ended {
		return nil
	}
	if s.stopped {
		// Already in ptrace-stop: a SIGSTOP would produce no new state
		// change to wait for.
		if err := unix.PtraceDetach(s.pid); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("detaching from pid %d: %w", s.pid, err)
		}
		return nil
	}
	// PTRACE_DETACH requires a stopped tracee. Stop it, wait for the
	// stop, then detach; ESRCH means it died in between.
	if err := unix.Kill(s.pid, unix.SIGSTOP); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("stopping traced pid %d for detach: %w", s.pid, err)
	}
	var status unix.WaitStatus
	if _, err := unix.Wait4(s.pid, &status, unix.WALL, nil); err != nil {
		return fmt.Errorf("waiting to detach from pid %d: %w", s.pid, err)
	}
	if status.Exited() || status.Signaled() {
		return nil
	}
	if err := unix.PtraceDetach(s.pid); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("detaching from pid %d: %w", s.pid, err)
	}
	// The SIGSTOP used to detach is still pending on a tracee that
	// stopped for another reason; continue it so it does not stay
	// stopped after we let go.
	_ = unix.Kill(s.pid, unix.SIGCONT)
	return nil
}
