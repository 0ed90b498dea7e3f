package feed

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBrokerCommitOrder(t *testing.T) {
	b := NewBroker(nil, nil)
	ch, cancel := b.Subscribe(16, nil)
	defer cancel()

	gid := uuid.New()
	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), Event{Entity: EntityMembership, Op: OpUpdate, GeofenceID: gid})
	}

	for want := uint64(1); want <= 5; want++ {
		e := <-ch
		require.Equal(t, want, e.Seq)
		require.Equal(t, EntityMembership, e.Entity)
		require.NotEqual(t, uuid.Nil, e.ID)
		require.False(t, e.At.IsZero())
	}
}

func TestBrokerFilter(t *testing.T) {
	b := NewBroker(nil, nil)
	mine := uuid.New()
	other := uuid.New()

	ch, cancel := b.Subscribe(16, func(e Event) bool { return e.GeofenceID == mine })
	defer cancel()

	b.Publish(context.Background(), Event{Entity: EntityGeofence, Op: OpUpdate, GeofenceID: other})
	b.Publish(context.Background(), Event{Entity: EntityGeofence, Op: OpUpdate, GeofenceID: mine})

	e := <-ch
	require.Equal(t, mine, e.GeofenceID)
	// The filtered-out event still consumed a sequence number: the
	// feed is globally ordered, visibility is per subscriber.
	require.Equal(t, uint64(2), e.Seq)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker(nil, nil)
	ch, cancel := b.Subscribe(1, nil)
	cancel()
	_, open := <-ch
	require.False(t, open)

	// Cancel is idempotent and publishing after cancel must not panic.
	cancel()
	b.Publish(context.Background(), Event{Entity: EntityDevice, Op: OpDelete, UserID: "u1"})
}

func TestBrokerDropsSlowSubscriber(t *testing.T) {
	b := NewBroker(nil, nil)
	ch, cancel := b.Subscribe(1, nil)
	defer cancel()

	b.Publish(context.Background(), Event{Entity: EntityGeofence, Op: OpInsert})
	b.Publish(context.Background(), Event{Entity: EntityGeofence, Op: OpInsert}) // overflows, drops subscriber

	first, open := <-ch
	require.True(t, open)
	require.Equal(t, uint64(1), first.Seq)
	_, open = <-ch
	require.False(t, open)
}

// Concurrent transactions committing through PublishTx must take
// sequence numbers in commit order: the closure runs under the same
// lock that assigns the sequence, so a later commit can never publish
// first.
func TestPublishTxPinsSeqToCommitOrder(t *testing.T) {
	b := NewBroker(nil, nil)
	ch, cancel := b.Subscribe(256, nil)
	defer cancel()

	var commits uint64
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				err := b.PublishTx(context.Background(), func() ([]Event, error) {
					commits++ // runs under the broker lock
					return []Event{{
						Entity: EntityGeofence,
						Op:     OpInsert,
						UserID: strconv.FormatUint(commits, 10),
					}}, nil
				})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		e := <-ch
		require.Equal(t, e.UserID, strconv.FormatUint(e.Seq, 10),
			"commit %s was published as seq %d", e.UserID, e.Seq)
	}
}

func TestPublishTxFailedCommitPublishesNothing(t *testing.T) {
	outbox := &captureOutbox{}
	b := NewBroker(outbox, nil)
	ch, cancel := b.Subscribe(4, nil)
	defer cancel()

	boom := errors.New("commit failed")
	err := b.PublishTx(context.Background(), func() ([]Event, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, outbox.events)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	default:
	}

	// The failed commit consumed no sequence number.
	b.Publish(context.Background(), Event{Entity: EntityGeofence, Op: OpInsert})
	require.Equal(t, uint64(1), (<-ch).Seq)
}

func TestPublishTxNilBrokerStillCommits(t *testing.T) {
	var b *Broker
	committed := false
	err := b.PublishTx(context.Background(), func() ([]Event, error) {
		committed = true
		return []Event{{Entity: EntityDevice, Op: OpInsert}}, nil
	})
	require.NoError(t, err)
	require.True(t, committed)
}

type captureOutbox struct {
	events []Event
}

func (o *captureOutbox) Append(_ context.Context, e Event) error {
	o.events = append(o.events, e)
	return nil
}

func TestBrokerOutboxSeesEveryEvent(t *testing.T) {
	outbox := &captureOutbox{}
	b := NewBroker(outbox, nil)

	// No subscribers at all: the outbox still records each commit once.
	b.Publish(context.Background(), Event{Entity: EntityMembership, Op: OpInsert, UserID: "u1"})
	b.Publish(context.Background(), Event{Entity: EntityMembership, Op: OpDelete, UserID: "u1"})

	require.Len(t, outbox.events, 2)
	require.Equal(t, uint64(1), outbox.events[0].Seq)
	require.Equal(t, uint64(2), outbox.events[1].Seq)
	require.Equal(t, OpInsert, outbox.events[0].Op)
	require.Equal(t, OpDelete, outbox.events[1].Op)
}
