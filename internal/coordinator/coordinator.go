// Package coordinator serializes every mutation, subscription change, and
// periodic sync through a single goroutine, so the document and the
// subscription tree are each touched by exactly one writer.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"icepeak/internal/broadcaster"
	"icepeak/internal/log"
	"icepeak/internal/metrics"
	"icepeak/internal/persistence"
	"icepeak/internal/store"
	"icepeak/internal/subtree"
	"icepeak/internal/value"
)

// command is the sum type of operations the coordinator's run loop
// processes, one at a time, in arrival order.
type command struct {
	kind       kind
	mod        store.Modification
	path       value.Path
	subID      string
	sub        subtree.Subscriber
	reply      chan error
	subsResult chan value.Value // initial snapshot delivered to a new subscriber
}

type kind int

const (
	kindModify kind = iota
	kindSubscribe
	kindUnsubscribe
	kindTick
	kindShutdown
)

// ErrStopped is returned by any Coordinator method called after Run has
// already exited (the command queue has no reader left).
var ErrStopped = errors.New("coordinator: stopped")

// Coordinator is the single-writer actor owning the document, the
// subscription tree, and the journal handle (via persistence).
type Coordinator struct {
	pv       *persistence.PersistentValue
	tree     *subtree.Tree
	bc       *broadcaster.Broadcaster
	commands chan command
	done     chan struct{}
}

// New constructs a Coordinator. Run must be called to start processing.
func New(pv *persistence.PersistentValue) *Coordinator {
	return &Coordinator{
		pv:       pv,
		tree:     subtree.New(),
		bc:       broadcaster.New(),
		commands: make(chan command, 256),
		done:     make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled or Shutdown is called. It
// is meant to be run in its own goroutine; Run returns once the queue is
// drained and a final sync completes.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			// Process whatever is already queued before the final sync. A
			// queued Shutdown needs no reply: its caller unblocks on c.done.
			for drained := false; !drained; {
				select {
				case cmd := <-c.commands:
					if cmd.kind != kindShutdown {
						c.process(cmd)
					}
				default:
					drained = true
				}
			}
			c.shutdown()
			return
		case cmd := <-c.commands:
			if cmd.kind == kindShutdown {
				c.shutdown()
				if cmd.reply != nil {
					cmd.reply <- nil
				}
				return
			}
			c.process(cmd)
		}
	}
}

func (c *Coordinator) process(cmd command) {
	switch cmd.kind {
	case kindModify:
		newVal, err := c.pv.Apply(cmd.mod)
		if err != nil {
			log.WithComponent("coordinator").Error().Err(err).Msg("apply modification failed")
			if cmd.reply != nil {
				cmd.reply <- err
			}
			return
		}
		targets := c.tree.BroadcastTargets(cmd.mod.ChangedPath())
		c.bc.Notify(newVal, targets)
		if cmd.reply != nil {
			cmd.reply <- nil
		}
	case kindSubscribe:
		c.tree.Subscribe(cmd.path, cmd.subID, cmd.sub)
		metrics.Subscribers.Inc()
		v, _ := value.Get(c.pv.Value(), cmd.path)
		if cmd.subsResult != nil {
			cmd.subsResult <- v
		}
	case kindUnsubscribe:
		c.tree.Unsubscribe(cmd.path, cmd.subID)
		metrics.Subscribers.Dec()
		if cmd.reply != nil {
			cmd.reply <- nil
		}
	case kindTick:
		if err := c.pv.Sync(); err != nil {
			log.WithComponent("coordinator").Error().Err(err).Msg("periodic sync failed")
		}
		if cmd.reply != nil {
			cmd.reply <- nil
		}
	}
}

// shutdown tells every live subscriber to disconnect, then performs a final
// sync. Subscribers are notified before the document is closed so a client
// racing to read during shutdown never sees a closed store.
func (c *Coordinator) shutdown() {
	for _, sub := range c.tree.AllSubscribers() {
		if sub.Close != nil {
			sub.Close()
		}
	}
	if err := c.pv.Close(); err != nil {
		log.WithComponent("coordinator").Error().Err(err).Msg("final sync on shutdown failed")
	}
}

// Modify submits a modification and blocks until it has been applied (and
// journaled, if journaling is enabled) or fails.
func (c *Coordinator) Modify(ctx context.Context, m store.Modification) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{kind: kindModify, mod: m, reply: reply}:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers deliver at path under subID and returns the current
// value at path as an initial snapshot. close, if non-nil, is invoked when
// the coordinator shuts down so the subscriber can disconnect its client.
func (c *Coordinator) Subscribe(ctx context.Context, path value.Path, subID string, deliver subtree.Handler, close func()) (value.Value, error) {
	result := make(chan value.Value, 1)
	sub := subtree.Subscriber{Deliver: deliver, Close: close}
	select {
	case c.commands <- command{kind: kindSubscribe, path: path, subID: subID, sub: sub, subsResult: result}:
	case <-c.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case v := <-result:
		return v, nil
	case <-c.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes subID's subscription at path.
func (c *Coordinator) Unsubscribe(ctx context.Context, path value.Path, subID string) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{kind: kindUnsubscribe, path: path, subID: subID, reply: reply}:
	case <-c.done:
		// Run has already exited (e.g. during shutdown, which disconnects
		// every subscriber itself), so there is nothing left to unsubscribe.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick requests an immediate sync, blocking until it completes.
func (c *Coordinator) Tick(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{kind: kindTick, reply: reply}:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the value currently at path, lock-free.
func (c *Coordinator) Get(path value.Path) (value.Value, bool) {
	return value.Get(c.pv.Value(), path)
}

// Shutdown requests the run loop stop, performing a final sync, and blocks
// until it has fully exited.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{kind: kindShutdown, reply: reply}:
	case <-c.done:
		// Run already exited (e.g. its context was cancelled independently);
		// the final sync it performed on the way out stands in for ours.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
	case <-c.done:
	case <-ctx.Done():
		return fmt.Errorf("coordinator: shutdown: %w", ctx.Err())
	}
	return nil
}
