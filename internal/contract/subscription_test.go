package contract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func collect() (chan Message, func(Message)) {
	ch := make(chan Message, 16)
	return ch, func(m Message) { ch <- m }
}

func next(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a wave")
		return Message{}
	}
}

func requireQuiet(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected wave %q", m.Text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_ReplayThenLiveWithoutGapOrDuplicate(t *testing.T) {
	c := newFakeContract()
	before := waveLog(t, bob, 100, "before listing", 40, 1, 0)
	gap1 := waveLog(t, bob, 101, "gap one", 43, 2, 0)
	gap2 := waveLog(t, alice, 102, "gap two", 44, 3, 1)
	c.filtered = []types.Log{before, gap1, gap2}
	c.live <- gap2 // the live stream overlaps the replayed range
	c.live <- waveLog(t, bob, 103, "live", 45, 4, 0)

	ch, onNew := collect()
	sub, err := newTestGateway(c, fakeHead{}, nil).Subscribe(context.Background(), testSession(), 43, onNew)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Equal(t, "gap one", next(t, ch).Text)
	got := next(t, ch)
	require.Equal(t, "gap two", got.Text)
	require.Equal(t, alice, got.Sender)
	require.Equal(t, EventID{TxHash: gap2.TxHash, Index: 1}, got.Event)
	require.EqualValues(t, 44, got.Block)
	require.Equal(t, "live", next(t, ch).Text)
	requireQuiet(t, ch)
}

func TestSubscribe_FromZeroSkipsReplay(t *testing.T) {
	c := newFakeContract()
	c.filtered = []types.Log{waveLog(t, bob, 1, "old", 1, 1, 0)}
	c.live <- waveLog(t, bob, 2, "new", 2, 2, 0)

	ch, onNew := collect()
	sub, err := newTestGateway(c, fakeHead{}, nil).Subscribe(context.Background(), nil, 0, onNew)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Equal(t, "new", next(t, ch).Text)
	requireQuiet(t, ch)
}

func TestSubscribe_SkipsRemovedAndForeignLogs(t *testing.T) {
	c := newFakeContract()
	removed := waveLog(t, bob, 1, "reorged", 5, 1, 0)
	removed.Removed = true
	foreign := waveLog(t, bob, 2, "elsewhere", 5, 2, 0)
	foreign.Address = bob
	c.live <- removed
	c.live <- foreign
	c.live <- waveLog(t, bob, 3, "kept", 6, 3, 0)

	ch, onNew := collect()
	sub, err := newTestGateway(c, fakeHead{}, nil).Subscribe(context.Background(), nil, 0, onNew)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Equal(t, "kept", next(t, ch).Text)
	requireQuiet(t, ch)
}

func TestSubscribe_NoCallbacksAfterUnsubscribe(t *testing.T) {
	c := newFakeContract()
	c.live <- waveLog(t, bob, 1, "one", 1, 1, 0)

	ch, onNew := collect()
	sub, err := newTestGateway(c, fakeHead{}, nil).Subscribe(context.Background(), nil, 0, onNew)
	require.NoError(t, err)
	require.Equal(t, "one", next(t, ch).Text)

	sub.Unsubscribe()
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Unsubscribe")
	}

	c.live <- waveLog(t, bob, 2, "two", 2, 2, 0)
	requireQuiet(t, ch)
	require.NoError(t, sub.Err())

	// idempotent
	sub.Unsubscribe()
}

func TestSubscribe_ContextCancelStopsDelivery(t *testing.T) {
	c := newFakeContract()
	ctx, cancel := context.WithCancel(context.Background())
	ch, onNew := collect()
	sub, err := newTestGateway(c, fakeHead{}, nil).Subscribe(ctx, nil, 0, onNew)
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
	c.live <- waveLog(t, bob, 1, "late", 1, 1, 0)
	requireQuiet(t, ch)
	sub.Unsubscribe()
}

func TestSubscribe_StreamDropIsRecorded(t *testing.T) {
	c := newFakeContract()
	dropped := errors.New("connection reset")

	_, onNew := collect()
	sub, err := newTestGateway(c, fakeHead{}, nil).Subscribe(context.Background(), nil, 0, onNew)
	require.NoError(t, err)
	c.liveErr <- dropped

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
	var subErr *SubscriptionError
	require.ErrorAs(t, sub.Err(), &subErr)
	require.Equal(t, sub.ID(), subErr.ID)
	require.ErrorIs(t, sub.Err(), dropped)
	sub.Unsubscribe()
}

func TestSubscribe_WatchFailure(t *testing.T) {
	c := newFakeContract()
	c.watchErr = errors.New("notifications not supported")

	_, err := newTestGateway(c, fakeHead{}, nil).Subscribe(context.Background(), nil, 0, func(Message) {})
	var subErr *SubscriptionError
	require.ErrorAs(t, err, &subErr)
	require.ErrorIs(t, err, c.watchErr)
}

func TestSubscribe_SeenSetIsPruned(t *testing.T) {
	s := newSubscription(func() {})
	for i := uint64(0); i < 3*seenDepth; i++ {
		s.remember(EventID{Index: uint(i)}, i)
	}
	require.LessOrEqual(t, len(s.seen), 2*seenDepth+1)
	_, oldKept := s.seen[EventID{Index: 0}]
	require.False(t, oldKept)
	_, newestKept := s.seen[EventID{Index: 3*seenDepth - 1}]
	require.True(t, newestKept)
}
