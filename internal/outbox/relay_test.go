package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/infrastructure/store/mocks"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/example/ec-order-events/internal/outbox"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, db *mocks.MockOrderDB, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		evt := order.OrderCreated{EventID: fmt.Sprintf("evt-%d", i), OrderID: int64(i), CustomerID: 1}
		require.NoError(t, db.Outbox().Enqueue(context.Background(), evt))
	}
}

func TestRelay_PublishesPendingEvents(t *testing.T) {
	db := mocks.NewMockOrderDB()
	enqueue(t, db, 3)
	publisher := mocks.NewMockPublisher()
	m := metrics.New("order-service")

	relay := outbox.NewRelay(db.Outbox(), publisher, time.Minute, 10, m)
	n, err := relay.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, publisher.Calls())
	for _, r := range db.OutboxRecords() {
		assert.True(t, r.Published, r.Event.EventID)
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(m.OutboxRelayed.WithLabelValues(metrics.ResultDelivered)))

	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, publisher.Calls())
}

func TestRelay_RespectsBatchSize(t *testing.T) {
	db := mocks.NewMockOrderDB()
	enqueue(t, db, 5)
	publisher := mocks.NewMockPublisher()

	n, err := outbox.NewRelay(db.Outbox(), publisher, time.Minute, 2, nil).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "evt-1", publisher.Published[0].EventID)
	assert.Equal(t, "evt-2", publisher.Published[1].EventID)
}

func TestRelay_TransportErrorStopsPass(t *testing.T) {
	db := mocks.NewMockOrderDB()
	enqueue(t, db, 3)
	publisher := mocks.NewMockPublisher()
	publisher.Err = errors.New("connection refused")

	n, err := outbox.NewRelay(db.Outbox(), publisher, time.Minute, 10, nil).RunOnce(context.Background())

	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, publisher.Calls())
	records := db.OutboxRecords()
	assert.Equal(t, 1, records[0].Attempts)
	assert.Equal(t, "connection refused", records[0].LastError)
	assert.False(t, records[0].Published)
	assert.Zero(t, records[1].Attempts)
}

func TestRelay_UnroutedEventStaysPending(t *testing.T) {
	db := mocks.NewMockOrderDB()
	enqueue(t, db, 2)
	publisher := mocks.NewMockPublisher()
	publisher.Delivered = false
	m := metrics.New("order-service")

	n, err := outbox.NewRelay(db.Outbox(), publisher, time.Minute, 10, m).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, publisher.Calls())
	for _, r := range db.OutboxRecords() {
		assert.False(t, r.Published)
		assert.Equal(t, 1, r.Attempts)
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxRelayed.WithLabelValues(metrics.ResultUnrouted)))
}

func TestRelay_RunStopsWithContext(t *testing.T) {
	db := mocks.NewMockOrderDB()
	enqueue(t, db, 1)
	publisher := mocks.NewMockPublisher()
	relay := outbox.NewRelay(db.Outbox(), publisher, 5*time.Millisecond, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return publisher.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelay_NonPositiveIntervalDoesNotPanic(t *testing.T) {
	db := mocks.NewMockOrderDB()
	relay := outbox.NewRelay(db.Outbox(), mocks.NewMockPublisher(), 0, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotPanics(t, func() { relay.Run(ctx) })
}
