// Package broadcaster delivers value notifications to subscribers off the
// coordinator's hot path: each delivery runs in its own goroutine, so one
// slow subscriber can never stall the writer or any other subscriber. The
// subvalue for each target is extracted on the calling goroutine before its
// delivery goroutine starts. Deliver receives the value itself; the
// broadcaster does not encode it to JSON (the subscriber does).
package broadcaster

import (
	"icepeak/internal/log"
	"icepeak/internal/subtree"
	"icepeak/internal/value"
)

// Broadcaster fans modifications out to subscription targets.
type Broadcaster struct{}

// New returns a Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{}
}

// Notify extracts, for each target, the value at target.Path within
// newValue, and then delivers it in its own goroutine. Targets whose path no
// longer resolves (it was deleted) receive nil.
func (b *Broadcaster) Notify(newValue value.Value, targets []subtree.Target) {
	for _, target := range targets {
		target := target
		v, _ := value.Get(newValue, target.Path)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithComponent("broadcaster").Error().
						Interface("panic", r).Str("target", target.ID).
						Msg("recovered panic delivering notification")
				}
			}()
			target.Deliver(v)
		}()
	}
}
