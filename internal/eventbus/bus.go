// Package eventbus implements the bounded, back-pressuring event channel
// that sits between watchers (producers) and the cluster/template
// consumers (spec §5 "Tasks and their containment"). Every controller tier
// owns exactly one Bus shared by all of its watchers and its single
// consumer goroutine.
package eventbus

import (
	"context"

	"github.com/illallangi/alfaoperator/internal/document"
)

// Type is the Kubernetes watch event kind, including the ERROR type the
// server sends on the watch stream.
type Type string

const (
	Added    Type = "ADDED"
	Modified Type = "MODIFIED"
	Deleted  Type = "DELETED"
	Error    Type = "ERROR"
)

// Event is one decoded watch-stream line: a type tag and the affected
// object. Reason is a slot for the Status reason of Error events; the
// watcher reads that reason (such as "Expired") from the object itself
// and leaves this field empty.
type Event struct {
	Type   Type
	Object document.Doc
	Reason string
}

// Bus is a bounded FIFO of Events. It never drops: Publish blocks (subject
// to ctx cancellation) so that a slow consumer applies back-pressure to its
// watchers instead of letting memory grow without bound, per spec §5.
type Bus struct {
	ch chan Event
}

// New returns a Bus with the given channel capacity.
func New(capacity int) *Bus {
	return &Bus{ch: make(chan Event, capacity)}
}

// Publish enqueues ev, blocking until there is room or ctx is done.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the receive side for the owning consumer.
func (b *Bus) Events() <-chan Event {
	return b.ch
}
