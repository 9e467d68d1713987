// Package watcher implements the producer side of the pipeline (spec
// §4.2): one goroutine per watched kind, streaming chunked watch events
// into an eventbus.Bus and resuming at the last-seen resourceVersion
// across reconnects.
package watcher

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/eventbus"
	"github.com/illallangi/alfaoperator/internal/metrics"
)

// denylist holds well-known controller lease objects that churn constantly
// and carry no signal for template rendering; dropped at debug level per
// spec §4.2.
var denylist = map[string]bool{
	"cert-manager-controller":                      true,
	"cert-manager-cainjector-leader-election-core": true,
	"cert-manager-cainjector-leader-election":      true,
}

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// rawEvent is the wire shape of one watch-stream line.
type rawEvent struct {
	Type   string         `json:"type"`
	Object document.Doc   `json:"object"`
}

// Watcher streams one kind's watch endpoint forever, publishing filtered
// events to Bus and tracking resourceVersion for resumable reconnects.
type Watcher struct {
	Kind Kind
	Bus  *eventbus.Bus
	Log  logr.Logger

	resourceVersion int64
}

// Kind is the minimal surface Watcher needs from apikind.APIKind: stream
// the watch endpoint starting at an optional resourceVersion.
type Kind interface {
	Watch(ctx context.Context, resourceVersion int64) (io.ReadCloser, error)
	Name() string
}

// restKind adapts an apikind.APIKind to the Kind interface using its REST
// client, so tests can substitute a fake without touching client-go.
type restKind struct {
	k apikind.APIKind
}

// NewRESTKind wraps a discovered APIKind for watching.
func NewRESTKind(k apikind.APIKind) Kind {
	return restKind{k: k}
}

func (r restKind) Name() string { return r.k.Kind }

func (r restKind) Watch(ctx context.Context, resourceVersion int64) (io.ReadCloser, error) {
	req := r.k.RESTClient().Get().AbsPath(r.k.ListURL("")).Param("watch", "1")
	if resourceVersion > 0 {
		req = req.Param("resourceVersion", strconv.FormatInt(resourceVersion, 10))
	}
	return req.Stream(ctx)
}

// New constructs a Watcher for kind, publishing to bus.
func New(kind Kind, bus *eventbus.Bus, log logr.Logger) *Watcher {
	return &Watcher{
		Kind: kind,
		Bus:  bus,
		Log:  log.WithName("watcher").WithValues("kind", kind.Name()),
	}
}

// Run streams events until ctx is cancelled. It reconnects forever on any
// transport error, resuming at the last resourceVersion it saw, and resets
// to 0 on an Error/Expired event per spec §4.2.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stream, err := w.Kind.Watch(ctx, w.resourceVersion)
		if err != nil {
			w.Log.Error(err, "connect failed, reconnecting", "resourceVersion", w.resourceVersion, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			metrics.WatchReconnectsTotal.WithLabelValues(w.Kind.Name()).Inc()
			continue
		}
		backoff = minBackoff
		w.Log.Info("connected", "resourceVersion", w.resourceVersion)

		expired := w.consume(ctx, stream)
		stream.Close()
		if expired {
			w.resourceVersion = 0
			w.Log.Info("stream expired, resuming from 0")
			metrics.WatchReconnectsTotal.WithLabelValues(w.Kind.Name()).Inc()
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.Log.Info("stream ended, reconnecting", "resourceVersion", w.resourceVersion)
		metrics.WatchReconnectsTotal.WithLabelValues(w.Kind.Name()).Inc()
	}
}

// consume reads NDJSON lines from stream until it ends or ctx is
// cancelled, returning true when the break was caused by an Expired error
// event (spec §4.2's "reset resourceVersion := 0, break inner loop").
func (w *Watcher) consume(ctx context.Context, stream io.ReadCloser) bool {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return false
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev rawEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			w.Log.Error(err, "decode error on watch line, continuing")
			continue
		}

		if ev.Type == string(eventbus.Error) {
			reason, _ := document.RecursiveGet(ev.Object, "reason", ".").(string)
			if reason == "Expired" {
				return true
			}
		}

		if !w.handle(ctx, ev) {
			continue
		}
	}
	return false
}

// handle applies the filtering and resourceVersion-advance rules of spec
// §4.2 to one decoded event, publishing it if it survives. Returns false
// when the event was filtered out.
func (w *Watcher) handle(ctx context.Context, ev rawEvent) bool {
	name, _ := document.RecursiveGet(ev.Object, "metadata.name", ".").(string)
	if name == "" {
		w.Log.V(1).Info("ignoring event with no metadata.name")
		return false
	}
	if denylist[name] {
		w.Log.V(2).Info("ignoring denylisted object", "name", name, "type", ev.Type)
		return false
	}

	if rvStr, ok := document.RecursiveGet(ev.Object, "metadata.resourceVersion", ".").(string); ok {
		if rv, err := strconv.ParseInt(rvStr, 10, 64); err == nil && rv > w.resourceVersion {
			w.resourceVersion = rv
		}
	}

	if err := w.Bus.Publish(ctx, eventbus.Event{Type: eventbus.Type(ev.Type), Object: ev.Object}); err != nil {
		w.Log.V(1).Info("publish cancelled", "name", name)
		return false
	}
	w.Log.Info("handled event", "name", name, "type", ev.Type, "resourceVersion", w.resourceVersion)
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := d * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
