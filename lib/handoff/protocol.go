// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/switchboard/lib/bus"
	"github.com/bureau-foundation/switchboard/lib/clock"
	"github.com/bureau-foundation/switchboard/lib/handoffstate"
	"github.com/bureau-foundation/switchboard/lib/strategy"
	"github.com/bureau-foundation/switchboard/lib/trace"
)

// DefaultTerminateGrace is how long a transient peer gets to exit after
// SIGTERM before it is killed.
const DefaultTerminateGrace = 2 * time.Second

// Protocol runs handoffs. Fields are read at the start of each Run;
// the owner may change them between runs (on configuration reload) but
// never during one.
type Protocol struct {
	Spawner   Spawner
	Processes Processes
	WatchDir  func(directory string) (DirWatch, error)
	Tracer    trace.Tracer
	Clock     clock.Clock
	Logger    *slog.Logger

	// SpuriousPauses is how many SIGSTOP stops at the start of a trace
	// are absorbed rather than forwarded. Attaching always produces
	// one.
	SpuriousPauses int

	// OwnershipTimeout bounds AwaitingPeerOwnership. Zero waits
	// forever.
	OwnershipTimeout time.Duration

	// TerminateGrace is passed to Processes.TerminateAll in
	// Reclaiming. Zero means DefaultTerminateGrace.
	TerminateGrace time.Duration

	// StateDir holds the in-flight handoff record. Empty disables it.
	StateDir string

	// Observer, if set, is called on every state transition.
	Observer func(from, to State)

	state State
}

func (p *Protocol) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func (p *Protocol) clock() clock.Clock {
	if p.Clock == nil {
		return clock.Real()
	}
	return p.Clock
}

// State returns the current state.
func (p *Protocol) State() State { return p.state }

func (p *Protocol) transition(next State) {
	previous := p.state
	p.state = next
	p.logger().Debug("handoff state", "from", previous.String(), "to", next.String())
	if p.Observer != nil {
		p.Observer(previous, next)
	}
}

// sessionWatch bundles the watches installed for one run.
type sessionWatch struct {
	owners bus.Subscription
	dir    DirWatch
	closed bool
}

func (w *sessionWatch) close(logger *slog.Logger) {
	if w.closed {
		return
	}
	w.closed = true
	if w.dir != nil {
		if err := w.dir.Close(); err != nil {
			logger.Warn("closing session directory watch", "error", err)
		}
	}
	if w.owners != nil {
		if err := w.owners.Close(); err != nil {
			logger.Warn("closing owner subscription", "error", err)
		}
	}
}

// Run hands identity to the peer described by target, delivers request,
// and reclaims identity according to policy. identity is borrowed for
// the duration of the call.
//
// Run returns with the Protocol Idle. On success the identity is held
// again. On a fatal error (IsFatal) it may not be, and the caller must
// exit.
func (p *Protocol) Run(ctx context.Context, identity *Identity, target strategy.IdentityHandoff, policy Policy, request Request) error {
	if p.state != Idle {
		return ErrBusy
	}
	defer p.transition(Idle)

	logger := p.logger().With("browser", target.ID, "policy", policy.String())

	p.transition(PreparingWatch)
	watch, err := p.prepareWatch(identity, target)
	if err != nil {
		return err
	}
	defer watch.close(logger)

	p.transition(StartingPeer)
	spawned, err := p.startPeer(target, logger)
	if err != nil {
		return err
	}
	p.writeRecord(target, policy, spawned, logger)

	p.transition(ReleasingIdentity)
	if err := identity.Release(); err != nil {
		return fmt.Errorf("%w: releasing %s: %v", ErrProtocolSetup, identity.Name(), err)
	}

	p.transition(AwaitingPeerOwnership)
	peer, err := p.awaitPeer(ctx, identity, watch.owners)
	if err != nil {
		return err
	}
	logger.Info("peer owns identity", "identity", identity.Name(), "owner", peer)

	p.transition(Dispatching)
	method, args := request.method()
	if err := identity.Conn().Call(ctx, target.RequestChannel, method, args...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDispatch, method, err)
	}
	logger.Info("request dispatched to peer", "method", method, "uri", request.URI)

	if policy == Transient {
		p.transition(AwaitingSessionEnd)
		pid, err := p.awaitSessionEnd(ctx, watch.dir, target, logger)
		if err != nil {
			return err
		}

		p.transition(TracingPeer)
		if err := p.tracePeer(pid, logger); err != nil {
			return err
		}
	}

	p.transition(Reclaiming)
	watch.close(logger)
	if policy == Transient {
		p.terminatePeer(target, logger)
	}
	if err := identity.Acquire(); err != nil {
		return fmt.Errorf("%w: reclaiming %s: %v", ErrProtocolSetup, identity.Name(), err)
	}
	p.clearRecord(logger)
	logger.Info("identity reclaimed", "identity", identity.Name())
	return nil
}

// prepareWatch installs the owner subscription, then the directory
// watch. Both exist before the peer can act.
func (p *Protocol) prepareWatch(identity *Identity, target strategy.IdentityHandoff) (*sessionWatch, error) {
	owners, err := identity.Conn().WatchOwner(identity.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing to owner changes: %v", ErrProtocolSetup, err)
	}
	dir, err := p.WatchDir(target.SessionDir)
	if err != nil {
		owners.Close()
		return nil, fmt.Errorf("%w: watching %s: %v", ErrProtocolSetup, target.SessionDir, err)
	}
	return &sessionWatch{owners: owners, dir: dir}, nil
}

// startPeer starts the peer unless it is already running. It reports
// whether it started one.
func (p *Protocol) startPeer(target strategy.IdentityHandoff, logger *slog.Logger) (bool, error) {
	if target.PeerProcess != "" && p.Processes.Running(target.PeerProcess) {
		logger.Info("peer already running", "process", target.PeerProcess)
		return false, nil
	}
	pid, err := p.Spawner.Start(target.PeerStart)
	if err != nil {
		return false, fmt.Errorf("%w: starting peer: %v", ErrProtocolSetup, err)
	}
	logger.Info("started peer", "argv", target.PeerStart, "pid", pid)
	return true, nil
}

// awaitPeer waits until some other connection owns the identity. The
// subscription predates the release, so checking the current owner
// first and then reading changes cannot miss the peer's claim.
func (p *Protocol) awaitPeer(ctx context.Context, identity *Identity, owners bus.Subscription) (string, error) {
	self := identity.Conn().UniqueName()

	owner, err := identity.Conn().NameOwner(identity.Name())
	if err != nil {
		return "", fmt.Errorf("%w: querying owner of %s: %v", ErrProtocolSetup, identity.Name(), err)
	}
	if owner != "" && owner != self {
		return owner, nil
	}

	var timeout <-chan time.Time
	if p.OwnershipTimeout > 0 {
		timeout = p.clock().After(p.OwnershipTimeout)
	}
	for {
		select {
		case change, ok := <-owners.Changes():
			if !ok {
				return "", fmt.Errorf("%w: owner subscription closed", ErrProtocolSetup)
			}
			if change.NewOwner != "" && change.NewOwner != self {
				return change.NewOwner, nil
			}
		case <-timeout:
			return "", fmt.Errorf("%w: waited %s", ErrPeerTimeout, p.OwnershipTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// awaitSessionEnd waits for the session artifact to be created by a
// live engine and returns the engine's PID. Artifacts that cannot be
// resolved or that name a dead process are skipped.
func (p *Protocol) awaitSessionEnd(ctx context.Context, dir DirWatch, target strategy.IdentityHandoff, logger *slog.Logger) (int, error) {
	for {
		path, err := dir.Next(ctx, target.SessionArtifact)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("%w: waiting for %s: %v", ErrProtocolSetup, target.SessionArtifact, err)
		}
		pid, err := ArtifactPID(path)
		if err != nil {
			logger.Info("session artifact unreadable, waiting for the next one", "path", path, "error", err)
			continue
		}
		if !p.Processes.Alive(pid) {
			logger.Info("session artifact is stale, waiting for the next one", "path", path, "pid", pid)
			continue
		}
		return pid, nil
	}
}

// tracePeer follows pid until it exits, passing every intercepted
// signal through except the pauses attaching causes.
func (p *Protocol) tracePeer(pid int, logger *slog.Logger) error {
	session, err := p.Tracer.Attach(pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			logger.Info("engine exited before it could be traced", "pid", pid)
			return nil
		}
		return fmt.Errorf("%w: tracing engine: %v", ErrProtocolSetup, err)
	}
	defer session.Close()
	logger.Info("tracing engine", "pid", pid)

	absorbed := 0
	for {
		event, err := session.Wait()
		if err != nil {
			if errors.Is(err, unix.ECHILD) || errors.Is(err, unix.ESRCH) {
				return nil
			}
			return fmt.Errorf("%w: tracing engine: %v", ErrProtocolSetup, err)
		}
		if event.Terminal() {
			logger.Info("engine ended", "pid", pid, "how", event.Kind.String(),
				"exit_status", event.ExitStatus, "signal", int(event.Signal))
			return nil
		}

		forward := event.Signal
		if event.Signal == unix.SIGSTOP && absorbed < p.SpuriousPauses {
			absorbed++
			forward = 0
		}
		if err := session.Resume(forward); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return nil
			}
			return fmt.Errorf("%w: resuming engine: %v", ErrProtocolSetup, err)
		}
	}
}

// terminatePeer stops whatever remains of a transient peer.
func (p *Protocol) terminatePeer(target strategy.IdentityHandoff, logger *slog.Logger) {
	if target.PeerProcess == "" {
		return
	}
	grace := p.TerminateGrace
	if grace == 0 {
		grace = DefaultTerminateGrace
	}
	pids, err := p.Processes.TerminateAll(target.PeerProcess, grace)
	if err != nil {
		logger.Warn("terminating peer", "process", target.PeerProcess, "error", err)
	}
	if len(pids) > 0 {
		logger.Info("terminated peer", "process", target.PeerProcess, "pids", pids)
	}
}

func (p *Protocol) writeRecord(target strategy.IdentityHandoff, policy Policy, spawned bool, logger *slog.Logger) {
	if p.StateDir == "" {
		return
	}
	record := handoffstate.Record{
		Browser:        target.ID,
		PeerProcess:    target.PeerProcess,
		Spawned:        spawned,
		Transient:      policy == Transient,
		SwitchboardPID: os.Getpid(),
		Started:        p.clock().Now(),
	}
	if err := handoffstate.Write(handoffstate.Path(p.StateDir), record); err != nil {
		logger.Warn("recording handoff", "error", err)
	}
}

func (p *Protocol) clearRecord(logger *slog.Logger) {
	if p.StateDir == "" {
		return
	}
	if err := handoffstate.Clear(handoffstate.Path(p.StateDir)); err != nil {
		logger.Warn("clearing handoff record", "error", err)
	}
}
