package watcher

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/illallangi/alfaoperator/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedKind replays a fixed sequence of streams, one per call to Watch,
// and records the resourceVersion each call was started with.
type scriptedKind struct {
	streams   []string
	calls     []int64
	callIndex int
}

func (s *scriptedKind) Name() string { return "Widget" }

func (s *scriptedKind) Watch(ctx context.Context, resourceVersion int64) (io.ReadCloser, error) {
	s.calls = append(s.calls, resourceVersion)
	if s.callIndex >= len(s.streams) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	body := s.streams[s.callIndex]
	s.callIndex++
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestWatcherPublishesFilteredEvents(t *testing.T) {
	stream := `{"type":"ADDED","object":{"metadata":{"name":"widget-a","resourceVersion":"10"}}}
{"type":"MODIFIED","object":{"metadata":{"name":"cert-manager-controller","resourceVersion":"11"}}}
{"type":"ADDED","object":{"metadata":{"resourceVersion":"12"}}}
{"type":"MODIFIED","object":{"metadata":{"name":"widget-a","resourceVersion":"13"}}}
`
	kind := &scriptedKind{streams: []string{stream}}
	bus := eventbus.New(4)
	w := New(kind, bus, testr.New(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	first := <-bus.Events()
	assert.Equal(t, eventbus.Added, first.Type)

	second := <-bus.Events()
	assert.Equal(t, eventbus.Modified, second.Type)

	select {
	case ev := <-bus.Events():
		t.Fatalf("unexpected third event published: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, int64(13), w.resourceVersion)
}

func TestWatcherResumesAtLastResourceVersion(t *testing.T) {
	stream := `{"type":"ADDED","object":{"metadata":{"name":"widget-a","resourceVersion":"5"}}}
`
	kind := &scriptedKind{streams: []string{stream, stream}}
	bus := eventbus.New(4)
	w := New(kind, bus, testr.New(t))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	<-bus.Events()
	<-bus.Events()

	require.GreaterOrEqual(t, len(kind.calls), 2)
	assert.Equal(t, int64(0), kind.calls[0])
	assert.Equal(t, int64(5), kind.calls[1])
}

func TestWatcherResetsResourceVersionOnExpired(t *testing.T) {
	expired := `{"type":"ADDED","object":{"metadata":{"name":"widget-a","resourceVersion":"99"}}}
{"type":"ERROR","object":{"reason":"Expired"}}
`
	resumed := `{"type":"ADDED","object":{"metadata":{"name":"widget-b","resourceVersion":"1"}}}
`
	kind := &scriptedKind{streams: []string{expired, resumed}}
	bus := eventbus.New(4)
	w := New(kind, bus, testr.New(t))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	<-bus.Events()
	<-bus.Events()

	require.GreaterOrEqual(t, len(kind.calls), 2)
	assert.Equal(t, int64(0), kind.calls[0])
	assert.Equal(t, int64(0), kind.calls[1])
}
