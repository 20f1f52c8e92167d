// Package approval coordinates the single pending tool-call approval.
// The pending slot itself lives in the transcript; the gate owns the
// resolution handshake with the server.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// ErrResolutionInFlight is returned when a decision for the same call is
// already being reported.
var ErrResolutionInFlight = errors.New("approval resolution already in flight")

// Resolver records the user's decision server-side. Implemented by
// api.Client.
type Resolver interface {
	ResolveApproval(ctx context.Context, sessionID, callID string, approved bool) error
}

// Gate resolves pending approvals. The local slot is cleared only after
// the server acknowledged the decision; a failed call leaves the slot
// intact so the user can retry.
type Gate struct {
	resolver Resolver
	dispatch func(transcript.Event)

	mu       sync.Mutex
	inflight map[string]bool
}

func NewGate(resolver Resolver, dispatch func(transcript.Event)) *Gate {
	return &Gate{
		resolver: resolver,
		dispatch: dispatch,
		inflight: make(map[string]bool),
	}
}

// Resolve reports the decision for a pending approval and, on success,
// clears the local slot.
func (g *Gate) Resolve(ctx context.Context, sessionID string, pending transcript.PendingApproval, approved bool) error {
	g.mu.Lock()
	if g.inflight[pending.CallID] {
		g.mu.Unlock()
		return ErrResolutionInFlight
	}
	g.inflight[pending.CallID] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inflight, pending.CallID)
		g.mu.Unlock()
	}()

	if err := g.resolver.ResolveApproval(ctx, sessionID, pending.CallID, approved); err != nil {
		return fmt.Errorf("resolve approval %s: %w", pending.CallID, err)
	}
	g.dispatch(transcript.ApprovalResolved{CallID: pending.CallID})
	return nil
}

// Abandon clears the local slot without telling the server, for when the
// approval no longer applies (session switched or cleared).
func (g *Gate) Abandon(callID string) {
	g.dispatch(transcript.ApprovalResolved{CallID: callID})
}
