package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

type scriptedResolver struct {
	err   error
	calls int
	block chan struct{}
}

func (r *scriptedResolver) ResolveApproval(ctx context.Context, sessionID, callID string, approved bool) error {
	r.calls++
	if r.block != nil {
		<-r.block
	}
	return r.err
}

func TestResolveClearsSlotOnlyOnSuccess(t *testing.T) {
	pending := transcript.PendingApproval{CallID: "c1", ToolName: "bash"}

	t.Run("success clears", func(t *testing.T) {
		var cleared []string
		resolver := &scriptedResolver{}
		g := NewGate(resolver, func(ev transcript.Event) {
			if r, ok := ev.(transcript.ApprovalResolved); ok {
				cleared = append(cleared, r.CallID)
			}
		})
		if err := g.Resolve(context.Background(), "s1", pending, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cleared) != 1 || cleared[0] != "c1" {
			t.Fatalf("slot not cleared: %v", cleared)
		}
	})

	t.Run("failure keeps the slot", func(t *testing.T) {
		resolver := &scriptedResolver{err: errors.New("server unreachable")}
		dispatched := false
		g := NewGate(resolver, func(transcript.Event) { dispatched = true })
		err := g.Resolve(context.Background(), "s1", pending, false)
		if err == nil {
			t.Fatal("expected error")
		}
		if dispatched {
			t.Fatal("slot cleared despite server failure")
		}
	})
}

func TestResolveGuardsDoubleSubmission(t *testing.T) {
	resolver := &scriptedResolver{block: make(chan struct{})}
	g := NewGate(resolver, func(transcript.Event) {})
	pending := transcript.PendingApproval{CallID: "c1"}

	first := make(chan error, 1)
	go func() {
		first <- g.Resolve(context.Background(), "s1", pending, true)
	}()

	// Wait until the first resolution is holding the call id.
	for {
		g.mu.Lock()
		held := g.inflight["c1"]
		g.mu.Unlock()
		if held {
			break
		}
	}

	if err := g.Resolve(context.Background(), "s1", pending, true); !errors.Is(err, ErrResolutionInFlight) {
		t.Fatalf("expected ErrResolutionInFlight, got %v", err)
	}

	close(resolver.block)
	if err := <-first; err != nil {
		t.Fatalf("first resolution failed: %v", err)
	}
	if resolver.calls != 1 {
		t.Fatalf("expected 1 server call, got %d", resolver.calls)
	}
}
