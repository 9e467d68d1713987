package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndReceive(t *testing.T) {
	b := New(1)
	ev := Event{Type: Added, Object: document.Doc{"metadata": document.Doc{"name": "widget-a"}}}

	require.NoError(t, b.Publish(context.Background(), ev))

	got := <-b.Events()
	assert.Equal(t, ev, got)
}

func TestPublishBlocksWhenFull(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Publish(context.Background(), Event{Type: Added}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Publish(ctx, Event{Type: Modified})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishUnblocksOnDrain(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Publish(context.Background(), Event{Type: Added}))

	done := make(chan error, 1)
	go func() {
		done <- b.Publish(context.Background(), Event{Type: Deleted})
	}()

	<-b.Events()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Publish did not unblock after drain")
	}
}
