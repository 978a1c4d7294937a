package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

func TestMailboxPreservesPublishOrder(t *testing.T) {
	b := newBroadcaster(8)
	defer b.closeAll()
	sub := b.subscribe()

	const total = 500
	for i := 0; i < total; i++ {
		b.publish(types.Notification{
			Kind:   types.NotifyWatchEvent,
			Origin: types.Origin{WatchPath: fmt.Sprintf("/p/%d", i)},
		})
	}

	for i := 0; i < total; i++ {
		select {
		case n := <-sub.Notifications():
			assert.Equal(t, fmt.Sprintf("/p/%d", i), n.Origin.WatchPath)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out at notification %d", i)
		}
	}
}

func TestPublishNeverBlocksOnSlowConsumer(t *testing.T) {
	b := newBroadcaster(2)
	defer b.closeAll()
	sub := b.subscribe()

	// Far more events than channel capacity, with nobody reading. The
	// mailbox queue absorbs them without losing any.
	const total = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			b.publish(types.Notification{Kind: types.NotifySearchDone})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}

	received := 0
	for received < total {
		select {
		case <-sub.Notifications():
			received++
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d notifications delivered", received, total)
		}
	}
}

func TestEachSubscriberGetsEveryNotification(t *testing.T) {
	b := newBroadcaster(8)
	defer b.closeAll()
	first := b.subscribe()
	second := b.subscribe()
	require.Equal(t, 2, b.count())

	b.publish(types.Notification{Kind: types.NotifyOperationState, State: types.StateQueued})

	for _, sub := range []*Subscriber{first, second} {
		select {
		case n := <-sub.Notifications():
			assert.Equal(t, types.NotifyOperationState, n.Kind)
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber missed the notification")
		}
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := newBroadcaster(8)
	defer b.closeAll()
	sub := b.subscribe()

	b.publish(types.Notification{Kind: types.NotifySearchDone})
	n := <-sub.Notifications()
	assert.False(t, n.Timestamp.IsZero())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newBroadcaster(8)
	defer b.closeAll()
	sub := b.subscribe()

	b.unsubscribe(sub.ID())
	require.Equal(t, 0, b.count())
	b.publish(types.Notification{Kind: types.NotifySearchDone})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Notifications():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after unsubscribe")
		}
	}
}

func TestUnsubscribeUnknownIDIsNoop(t *testing.T) {
	b := newBroadcaster(8)
	defer b.closeAll()
	sub := b.subscribe()
	b.unsubscribe(sub.ID())
	b.unsubscribe(sub.ID())
}

func TestCloseAllClosesEveryChannel(t *testing.T) {
	b := newBroadcaster(8)
	first := b.subscribe()
	second := b.subscribe()
	b.publish(types.Notification{Kind: types.NotifySearchDone})
	b.closeAll()

	for _, sub := range []*Subscriber{first, second} {
		deadline := time.After(2 * time.Second)
		for {
			closed := false
			select {
			case _, ok := <-sub.Notifications():
				closed = !ok
			case <-deadline:
				t.Fatal("channel not closed after closeAll")
			}
			if closed {
				break
			}
		}
	}
}
