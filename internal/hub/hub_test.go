package hub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/hub"
	"studysprint/backend/internal/model"
)

func snapshotAt(elapsed int) model.Snapshot {
	return model.Snapshot{
		SessionID:      "sess-1",
		Status:         model.StatusActive,
		ElapsedSeconds: elapsed,
		ActiveSeconds:  elapsed,
		Persisted:      true,
	}
}

func receiveEnvelope(t *testing.T, sub *hub.Subscriber) hub.Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.Receive():
		require.True(t, ok, "subscriber channel closed")
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return hub.Envelope{}
	}
}

func TestSubscribeDeliversImmediateSnapshot(t *testing.T) {
	h := hub.New(zap.NewNop())

	sub := h.Subscribe("sess-1", snapshotAt(42))
	defer h.Unsubscribe(sub)

	env := receiveEnvelope(t, sub)
	require.Equal(t, hub.MessageSnapshot, env.Type)
	require.NotNil(t, env.Snapshot)
	require.Equal(t, 42, env.Snapshot.ElapsedSeconds)
}

func TestBroadcastReachesAllObserversIdentically(t *testing.T) {
	h := hub.New(zap.NewNop())

	sub1 := h.Subscribe("sess-1", snapshotAt(0))
	sub2 := h.Subscribe("sess-1", snapshotAt(0))
	other := h.Subscribe("sess-2", snapshotAt(0))
	defer h.Unsubscribe(sub1)
	defer h.Unsubscribe(sub2)
	defer h.Unsubscribe(other)

	receiveEnvelope(t, sub1)
	receiveEnvelope(t, sub2)
	receiveEnvelope(t, other)

	for i := 1; i <= 3; i++ {
		h.Broadcast("sess-1", snapshotAt(i))
	}

	for i := 1; i <= 3; i++ {
		env1 := receiveEnvelope(t, sub1)
		env2 := receiveEnvelope(t, sub2)
		require.Equal(t, i, env1.Snapshot.ElapsedSeconds)
		require.Equal(t, env1.Snapshot, env2.Snapshot)
	}

	// The other session's observer saw none of it.
	select {
	case env := <-other.Receive():
		t.Fatalf("unexpected envelope for sess-2: %+v", env)
	default:
	}
}

func TestSendErrorTargetsRequesterOnly(t *testing.T) {
	h := hub.New(zap.NewNop())

	requester := h.Subscribe("sess-1", snapshotAt(0))
	bystander := h.Subscribe("sess-1", snapshotAt(0))
	defer h.Unsubscribe(requester)
	defer h.Unsubscribe(bystander)

	receiveEnvelope(t, requester)
	receiveEnvelope(t, bystander)

	h.SendError(requester, apperrors.InvalidState("session is not active"))

	env := receiveEnvelope(t, requester)
	require.Equal(t, hub.MessageError, env.Type)
	require.NotNil(t, env.Error)
	require.Equal(t, "invalid_state", env.Error.Kind)

	select {
	case env := <-bystander.Receive():
		t.Fatalf("bystander received unexpected envelope: %+v", env)
	default:
	}
}

func TestUnsubscribeClosesChannelAndResubscribeGetsFreshState(t *testing.T) {
	h := hub.New(zap.NewNop())

	sub := h.Subscribe("sess-1", snapshotAt(0))
	receiveEnvelope(t, sub)

	h.Broadcast("sess-1", snapshotAt(10))
	h.Unsubscribe(sub)

	// Drain to the close; no panic, no deadlock.
	for range sub.Receive() {
	}

	require.Equal(t, 0, h.SubscriberCount())

	// A reconnecting observer gets current state, not a replay.
	fresh := h.Subscribe("sess-1", snapshotAt(25))
	defer h.Unsubscribe(fresh)
	env := receiveEnvelope(t, fresh)
	require.Equal(t, 25, env.Snapshot.ElapsedSeconds)
	require.Equal(t, 1, h.SubscriberCount())
}

func TestBackloggedSubscriberDropsFramesWithoutBlocking(t *testing.T) {
	h := hub.New(zap.NewNop())

	sub := h.Subscribe("sess-1", snapshotAt(0))
	defer h.Unsubscribe(sub)

	// Nobody reads; broadcasts beyond the buffer are dropped, and Broadcast
	// itself must never block.
	done := make(chan struct{})
	go func() {
		for i := 1; i <= 100; i++ {
			h.Broadcast("sess-1", snapshotAt(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a backlogged subscriber")
	}

	received := 0
	for {
		select {
		case <-sub.Receive():
			received++
			continue
		default:
		}
		break
	}
	require.LessOrEqual(t, received, 17)
	require.Greater(t, received, 0)
}

func TestBroadcastToSessionWithoutObserversIsNoop(t *testing.T) {
	h := hub.New(zap.NewNop())
	h.Broadcast("sess-ghost", snapshotAt(1))
	require.Equal(t, 0, h.SubscriberCount())
}
