package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// ErrConnectionLost marks a feed that ended without the client asking
// for it. A deliberate Close never produces it.
var ErrConnectionLost = errors.New("session feed connection lost")

// refetchDelay is the pause between a message.completed event and the
// authoritative history re-fetch that reconciles server-assigned part
// rows with locally accumulated ones.
const refetchDelay = 300 * time.Millisecond

// Source provides the two server calls a subscription needs. Implemented
// by api.Client.
type Source interface {
	Messages(ctx context.Context, sessionID string) ([]transcript.Message, error)
	Stream(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// Disconnect reports an unrequested end of a live subscription: the
// server closed the feed or the read failed. Reconnecting is the
// consumer's decision; the controller never retries on its own.
type Disconnect struct {
	SessionID string
	Err       error
}

// Controller owns the single live session subscription. Open switches
// it, Close tears it down. One goroutine per subscription runs the
// decode→route→apply loop; every state publication is guarded by a
// generation counter, so a frame read by an already-cancelled
// subscription can never touch the successor's transcript.
//
// Controller 同一时间只保留一条活动订阅，旧订阅的晚到帧一律丢弃。
type Controller struct {
	source Source
	logger *log.Logger

	// delay is refetchDelay unless a test shortens it.
	delay time.Duration

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	session string
	state   transcript.Transcript

	onChange     func(transcript.Transcript)
	onDisconnect func(Disconnect)
}

func NewController(source Source, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{source: source, logger: logger, delay: refetchDelay}
}

// OnChange registers the snapshot consumer. Called outside the
// controller lock with an immutable transcript value.
func (c *Controller) OnChange(fn func(transcript.Transcript)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// OnDisconnect registers the connection-loss consumer. Deliberate
// cancellation is silent and never reaches it.
func (c *Controller) OnDisconnect(fn func(Disconnect)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Snapshot returns the current transcript value.
func (c *Controller) Snapshot() transcript.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the id of the active subscription, or "".
func (c *Controller) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Open subscribes to a session's feed. Opening the already-active
// session is a no-op; opening a different one cancels the previous
// subscription first and resets the transcript.
func (c *Controller) Open(sessionID string) {
	c.mu.Lock()
	if c.session == sessionID && c.cancel != nil {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.session = sessionID
	c.state = transcript.Transcript{}
	notify := c.onChange
	snap := c.state
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	go c.run(ctx, gen, sessionID)
}

// Close cancels the active subscription, if any. Always silent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.session = ""
	c.mu.Unlock()
}

// Dispatch applies a locally-originated event (optimistic user message,
// approval resolution, clear) to the current transcript.
func (c *Controller) Dispatch(ev transcript.Event) {
	c.mu.Lock()
	c.state = transcript.Apply(c.state, ev)
	snap := c.state
	notify := c.onChange
	c.mu.Unlock()
	if notify != nil {
		notify(snap)
	}
}

// Refresh re-fetches history for the active session and folds it in.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	gen := c.gen
	sessionID := c.session
	c.mu.Unlock()
	if sessionID == "" {
		return nil
	}
	msgs, err := c.source.Messages(ctx, sessionID)
	if err != nil {
		return err
	}
	c.publish(gen, transcript.Load{Messages: msgs})
	return nil
}

// publish applies ev to the transcript iff gen is still the live
// generation. Reports whether the event landed.
func (c *Controller) publish(gen uint64, ev transcript.Event) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.state = transcript.Apply(c.state, ev)
	snap := c.state
	notify := c.onChange
	c.mu.Unlock()
	if notify != nil {
		notify(snap)
	}
	return true
}

func (c *Controller) run(ctx context.Context, gen uint64, sessionID string) {
	// Seed from history so the feed's deltas land on known messages.
	if msgs, err := c.source.Messages(ctx, sessionID); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("history fetch failed", "session", sessionID, "err", err)
	} else if !c.publish(gen, transcript.Load{Messages: msgs}) {
		return
	}

	body, err := c.source.Stream(ctx, sessionID)
	if err != nil {
		c.lost(ctx, gen, sessionID, err)
		return
	}
	defer body.Close()

	dec := NewDecoder(body)
	for {
		frame, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				c.lost(ctx, gen, sessionID, ErrConnectionLost)
			} else {
				c.lost(ctx, gen, sessionID, err)
			}
			return
		}

		ev, err := DecodeFrame(frame)
		if err != nil {
			// Poison frame: drop it, keep the feed alive.
			c.logger.Warn("dropping bad frame", "session", sessionID, "event", frame.Event, "err", err)
			continue
		}
		if ev == nil {
			continue
		}
		if !c.publish(gen, ev) {
			return
		}
		if _, ok := ev.(transcript.MessageCompleted); ok {
			go c.refetchLater(ctx, gen, sessionID)
		}
	}
}

// refetchLater waits briefly, then replaces accumulated state with the
// server's authoritative rows. Bound to the subscription context so a
// session switch cancels it.
func (c *Controller) refetchLater(ctx context.Context, gen uint64, sessionID string) {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	msgs, err := c.source.Messages(ctx, sessionID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("history refetch failed", "session", sessionID, "err", err)
		}
		return
	}
	c.publish(gen, transcript.Load{Messages: msgs})
}

// lost reports an unrequested termination, unless this subscription has
// already been superseded. The dead subscription is also unregistered so
// a subsequent Open of the same session starts a fresh one instead of
// hitting the idempotency guard.
func (c *Controller) lost(ctx context.Context, gen uint64, sessionID string, err error) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	stale := gen != c.gen
	if !stale && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	notify := c.onDisconnect
	c.mu.Unlock()
	if stale {
		return
	}
	c.logger.Warn("session feed lost", "session", sessionID, "err", err)
	if notify != nil {
		notify(Disconnect{SessionID: sessionID, Err: err})
	}
}
