package template

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/illallangi/alfaoperator/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls int32
}

func (r *countingReconciler) Reconcile(ctx context.Context, spec Spec) error {
	atomic.AddInt32(&r.calls, 1)
	return nil
}

func TestConsumerCollapsesBurstIntoOneCycle(t *testing.T) {
	bus := eventbus.New(8)
	rec := &countingReconciler{}
	released := make(chan struct{})

	consumer := &Consumer{
		Spec:       Spec{Name: "widgets"},
		Bus:        bus,
		Reconciler: rec,
		Log:        testr.New(t),
		sleep: func(ctx context.Context, d time.Duration) {
			<-released
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	require.NoError(t, bus.Publish(ctx, eventbus.Event{Type: eventbus.Added}))
	require.NoError(t, bus.Publish(ctx, eventbus.Event{Type: eventbus.Modified}))
	require.NoError(t, bus.Publish(ctx, eventbus.Event{Type: eventbus.Modified}))

	close(released)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&rec.calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&rec.calls))
}

func TestConsumerRunsAgainForNextBurst(t *testing.T) {
	bus := eventbus.New(8)
	rec := &countingReconciler{}

	consumer := &Consumer{
		Spec:       Spec{Name: "widgets"},
		Bus:        bus,
		Reconciler: rec,
		Log:        testr.New(t),
		sleep:      func(ctx context.Context, d time.Duration) {},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	require.NoError(t, bus.Publish(ctx, eventbus.Event{Type: eventbus.Added}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&rec.calls) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, eventbus.Event{Type: eventbus.Modified}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&rec.calls) == 2 }, time.Second, 5*time.Millisecond)
}
