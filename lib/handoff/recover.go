// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"errors"
	"time"

	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/handoffstate"
)

// RecordMaxAge bounds how old an in-flight record may be and still be
// acted on at startup.
const RecordMaxAge = 10 * time.Minute

// RecoverOrphan handles a handoff a previous switchboard left
// unfinished. If a recent record shows that instance started a
// transient peer, the peer is terminated: nothing would ever hand its
// identity back. The record is cleared either way. Recovery problems
// are logged, never returned; startup proceeds regardless.
func (p *Protocol) RecoverOrphan() {
	if p.StateDir == "" {
		return
	}
	path := handoffstate.Path(p.StateDir)
	record, inFlight, err := handoffstate.Check(path, RecordMaxAge, p.clock().Now())
	if err != nil {
		attrs := []any{"path", path, "error", err}
		var decodeErr *handoffstate.DecodeError
		if errors.As(err, &decodeErr) {
			if diagnostic, diagErr := codec.Diagnose(decodeErr.Data); diagErr == nil {
				attrs = append(attrs, "contents", diagnostic)
			}
		}
		p.logger().Warn("unreadable handoff record, discarding", attrs...)
		if err := handoffstate.Clear(path); err != nil {
			p.logger().Warn("clearing handoff record", "error", err)
		}
		return
	}
	if !inFlight {
		return
	}

	logger := p.logger().With(
		"browser", record.Browser,
		"previous_pid", record.SwitchboardPID,
		"started", record.Started.Format(time.RFC3339),
	)
	if record.Spawned && record.Transient && record.PeerProcess != "" {
		grace := p.TerminateGrace
		if grace == 0 {
			grace = DefaultTerminateGrace
		}
		pids, err := p.Processes.TerminateAll(record.PeerProcess, grace)
		if err != nil {
			logger.Warn("terminating orphaned peer", "error", err)
		}
		logger.Info("recovered unfinished handoff", "terminated", pids)
	} else {
		logger.Info("recovered unfinished handoff, peer left running")
	}

	if err := handoffstate.Clear(path); err != nil {
		logger.Warn("clearing handoff record", "error", err)
	}
}
